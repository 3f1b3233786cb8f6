package imagetypes

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// ImageID identifies one record. It is stable for a given normalized path.
type ImageID string

// HashSize is the digest length in bytes
const HashSize = 32

// Hash is a fixed-size content digest used as the duplicate-detection key.
type Hash [HashSize]byte

// String returns the lowercase hex form
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Compare orders hashes bytewise
func (h Hash) Compare(other Hash) int {
	return bytes.Compare(h[:], other[:])
}

// MarshalText encodes the hash as hex
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText decodes the hex form
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash parses the hex form produced by String
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("parse hash: %w", err)
	}
	if len(b) != HashSize {
		return h, fmt.Errorf("parse hash: want %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// ThumbnailStatus is the lifecycle of a record's thumbnail.
type ThumbnailStatus int

const (
	// ThumbnailUnloaded means no bitmap is cached and none is being decoded
	ThumbnailUnloaded ThumbnailStatus = iota
	// ThumbnailLoading means a decode is queued or running
	ThumbnailLoading
	// ThumbnailReady means the bitmap is in the cache
	ThumbnailReady
	// ThumbnailFailed means the last decode failed; Reason says why
	ThumbnailFailed
)

func (s ThumbnailStatus) String() string {
	switch s {
	case ThumbnailUnloaded:
		return "unloaded"
	case ThumbnailLoading:
		return "loading"
	case ThumbnailReady:
		return "ready"
	case ThumbnailFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// MarshalText encodes the status by name
func (s ThumbnailStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name
func (s *ThumbnailStatus) UnmarshalText(text []byte) error {
	for _, st := range []ThumbnailStatus{ThumbnailUnloaded, ThumbnailLoading, ThumbnailReady, ThumbnailFailed} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown thumbnail status %q", text)
}

// ThumbnailState is a status plus the failure reason when Status is Failed.
type ThumbnailState struct {
	Status ThumbnailStatus `json:"status"`
	Reason string          `json:"reason,omitempty"`
}

// Unloaded is the initial thumbnail state
func Unloaded() ThumbnailState { return ThumbnailState{Status: ThumbnailUnloaded} }

// Loading marks a queued decode
func Loading() ThumbnailState { return ThumbnailState{Status: ThumbnailLoading} }

// Ready marks a cached bitmap
func Ready() ThumbnailState { return ThumbnailState{Status: ThumbnailReady} }

// Failed marks a decode failure
func Failed(reason string) ThumbnailState {
	return ThumbnailState{Status: ThumbnailFailed, Reason: reason}
}

// SortOrder selects how a record's tag list is ordered for display.
type SortOrder string

const (
	// SortInsertion keeps insertion order
	SortInsertion SortOrder = ""
	// SortAlphaAsc sorts tags A→Z
	SortAlphaAsc SortOrder = "alpha_asc"
	// SortAlphaDesc sorts tags Z→A
	SortAlphaDesc SortOrder = "alpha_desc"
	// SortFrequencyDesc puts the most used tags first
	SortFrequencyDesc SortOrder = "freq_desc"
	// SortFrequencyAsc puts the least used tags first
	SortFrequencyAsc SortOrder = "freq_asc"
)

// ImageExtensions maps file extensions to whether they are supported image formats.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".tiff": true,
	".tif":  true,
}

// MimeTypes maps supported extensions to their MIME types.
var MimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
}

// IsSupportedImage reports whether path has a supported image extension.
func IsSupportedImage(path string) bool {
	return ImageExtensions[strings.ToLower(filepath.Ext(path))]
}

// GetMimeType returns the MIME type for a path's extension.
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(path string) string {
	if mime, ok := MimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mime
	}
	return "application/octet-stream"
}
