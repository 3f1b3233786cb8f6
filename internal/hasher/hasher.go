package hasher

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	"dataset-tagger/internal/apperrors"
	"dataset-tagger/internal/imagetypes"

	"github.com/corona10/goimagehash"
	"golang.org/x/crypto/blake2b"

	// decoders needed by Perceptual
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Mode selects the duplicate contract.
type Mode string

const (
	// ModeExact treats byte-identical files as duplicates
	ModeExact Mode = "exact"
	// ModePerceptual treats images with the same difference hash as duplicates
	ModePerceptual Mode = "perceptual"
)

// Hasher turns raw file bytes into a duplicate-detection key.
type Hasher interface {
	Sum(data []byte) (imagetypes.Hash, error)
}

// New returns the hasher for mode. An empty mode means exact.
func New(mode Mode) (Hasher, error) {
	switch mode {
	case "", ModeExact:
		return Content{}, nil
	case ModePerceptual:
		return Perceptual{}, nil
	default:
		return nil, fmt.Errorf("unknown dedupe mode %q", mode)
	}
}

// Content hashes raw bytes with BLAKE2b-256. It never fails on in-memory data.
type Content struct{}

// Sum returns the digest of data
func (Content) Sum(data []byte) (imagetypes.Hash, error) {
	return imagetypes.Hash(blake2b.Sum256(data)), nil
}

// SumReader streams r through the hash.
func (Content) SumReader(r io.Reader) (imagetypes.Hash, error) {
	var h imagetypes.Hash
	d, err := blake2b.New256(nil)
	if err != nil {
		return h, apperrors.Hash("hash", "", err)
	}
	if _, err := io.Copy(d, r); err != nil {
		return h, apperrors.Hash("hash", "", err)
	}
	copy(h[:], d.Sum(nil))
	return h, nil
}

// File hashes the file at path without loading it into memory.
func (c Content) File(path string) (imagetypes.Hash, error) {
	f, err := os.Open(path)
	if err != nil {
		return imagetypes.Hash{}, apperrors.Hash("open", path, err)
	}
	defer f.Close()

	h, err := c.SumReader(f)
	if err != nil {
		return h, apperrors.Hash("read", path, errors.Unwrap(err))
	}
	return h, nil
}

// Perceptual decodes the image and stores its 64-bit difference hash in the
// first eight bytes of the digest.
type Perceptual struct{}

// Sum decodes data and returns its difference hash
func (Perceptual) Sum(data []byte) (imagetypes.Hash, error) {
	var h imagetypes.Hash
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return h, apperrors.Hash("decode", "", err)
	}
	return PerceptualImage(img)
}

// PerceptualImage hashes an already decoded image.
func PerceptualImage(img image.Image) (imagetypes.Hash, error) {
	var h imagetypes.Hash
	dh, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return h, apperrors.Hash("dhash", "", err)
	}
	binary.BigEndian.PutUint64(h[:8], dh.GetHash())
	return h, nil
}
