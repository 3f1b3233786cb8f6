package scanner

import (
	"context"
	"errors"

	"dataset-tagger/internal/apperrors"
	"dataset-tagger/internal/filesystem"
	"dataset-tagger/internal/hasher"
	"dataset-tagger/internal/imagetypes"
	"dataset-tagger/internal/media"
	"dataset-tagger/internal/thumbcache"
)

// Result is the outcome of processing one file. Err is set when the file
// could not be read at all; HashErr and DecodeErr are independent.
type Result struct {
	Path      string
	Hash      *imagetypes.Hash
	Thumbnail *thumbcache.Bitmap
	Err       error
	HashErr   error
	DecodeErr error
}

// Outcome classifies a result for stats and metrics
func (r Result) Outcome() string {
	switch {
	case r.Err != nil:
		return "io_failed"
	case r.HashErr != nil:
		return "hash_failed"
	case r.DecodeErr != nil:
		return "decode_failed"
	default:
		return "ok"
	}
}

// Processor turns a path into a Result. Implementations must be safe for
// concurrent use.
type Processor interface {
	Process(ctx context.Context, path string) Result
}

// FileProcessor reads, hashes and decodes files from disk.
type FileProcessor struct {
	Hasher  hasher.Hasher
	Decoder *media.Decoder // nil skips thumbnails
	Retry   filesystem.RetryConfig
}

// NewFileProcessor returns a processor with the default retry policy.
func NewFileProcessor(h hasher.Hasher, d *media.Decoder) *FileProcessor {
	if h == nil {
		h = hasher.Content{}
	}
	return &FileProcessor{Hasher: h, Decoder: d, Retry: filesystem.DefaultRetryConfig()}
}

// Process handles one file
func (fp *FileProcessor) Process(ctx context.Context, path string) Result {
	res := Result{Path: path}

	data, err := filesystem.ReadFileWithRetry(path, fp.Retry)
	if err != nil {
		res.Err = apperrors.IO("read", path, err)
		return res
	}

	h, err := fp.Hasher.Sum(data)
	if err != nil {
		res.HashErr = withPath(err, path)
	} else {
		res.Hash = &h
	}

	if fp.Decoder == nil || ctx.Err() != nil {
		return res
	}
	img, err := fp.Decoder.Thumbnail(path, data)
	if err != nil {
		res.DecodeErr = withPath(err, path)
		return res
	}
	res.Thumbnail = thumbcache.NewBitmap(img)
	return res
}

// withPath fills in the path on errors raised from in-memory data.
func withPath(err error, path string) error {
	var ae *apperrors.Error
	if errors.As(err, &ae) {
		if ae.Path == "" {
			c := *ae
			c.Path = path
			return &c
		}
		return err
	}
	return apperrors.Hash("hash", path, err)
}
