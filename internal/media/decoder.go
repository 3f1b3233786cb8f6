package media

import (
	"bytes"
	"image"
	"image/jpeg"

	"dataset-tagger/internal/apperrors"
	"dataset-tagger/internal/logging"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultThumbnailSize is the side of the box thumbnails are fitted into
	DefaultThumbnailSize = 800

	// MaxImagePixels is the largest source we decode without vips; a 20MP
	// image already needs ~80MB as RGBA
	MaxImagePixels = 20_000_000
)

// Decoder turns encoded image bytes into bounded thumbnails.
type Decoder struct {
	size      int
	maxPixels int
	useVips   bool
}

// NewDecoder returns a decoder fitting images into a size×size box. A
// non-positive size selects DefaultThumbnailSize.
func NewDecoder(size int) *Decoder {
	if size <= 0 {
		size = DefaultThumbnailSize
	}
	return &Decoder{size: size, maxPixels: MaxImagePixels, useVips: IsVipsAvailable()}
}

// Size returns the thumbnail box side
func (d *Decoder) Size() int { return d.size }

// Thumbnail decodes data and fits it into the decoder's box. path is only
// used in errors and logs.
func (d *Decoder) Thumbnail(path string, data []byte) (image.Image, error) {
	if _, err := Sniff(path, data); err != nil {
		return nil, err
	}

	if d.useVips {
		img, err := thumbnailWithVips(data, d.size)
		if err == nil {
			return img, nil
		}
		logging.Debug("vips failed for %s, falling back to imaging: %v", path, err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Decode("decode", path, err)
	}
	if cfg.Width*cfg.Height > d.maxPixels {
		logging.Info("large image %s (%dx%d), decoding may be slow", path, cfg.Width, cfg.Height)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperrors.Decode("decode", path, err)
	}

	b := img.Bounds()
	if b.Dx() <= d.size && b.Dy() <= d.size {
		return img, nil
	}
	return imaging.Fit(img, d.size, d.size, imaging.Lanczos), nil
}

// BitmapBytes estimates the memory held by a decoded image as RGBA.
func BitmapBytes(img image.Image) int64 {
	b := img.Bounds()
	return int64(b.Dx()) * int64(b.Dy()) * 4
}

// EncodeJPEG encodes a thumbnail for transport.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
