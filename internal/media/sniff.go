package media

import (
	"errors"
	"fmt"
	"strings"

	"dataset-tagger/internal/apperrors"

	"github.com/gabriel-vasile/mimetype"
)

// ErrNotImage is wrapped by the DecodeFailure returned for non-image input
var ErrNotImage = errors.New("content is not an image")

// Sniff detects the MIME type of data from its content and rejects anything
// that is not an image.
func Sniff(path string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperrors.Decode("sniff", path, fmt.Errorf("empty file: %w", ErrNotImage))
	}
	m := mimetype.Detect(data)
	if !strings.HasPrefix(m.String(), "image/") {
		return m.String(), apperrors.Decode("sniff", path, fmt.Errorf("%s: %w", m.String(), ErrNotImage))
	}
	return m.String(), nil
}
