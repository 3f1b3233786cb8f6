package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dataset-tagger/internal/apperrors"
	"dataset-tagger/internal/dataset"
	"dataset-tagger/internal/filesystem"
	"dataset-tagger/internal/imagetypes"
	"dataset-tagger/internal/logging"

	"github.com/hashicorp/go-multierror"
)

var log = logging.For("store")

// SidecarStore keeps tags in text files beside the images under Root.
type SidecarStore struct {
	root  string
	retry filesystem.RetryConfig
}

// NewSidecarStore returns a sidecar store for images under root
func NewSidecarStore(root string) *SidecarStore {
	return &SidecarStore{root: root, retry: filesystem.DefaultRetryConfig()}
}

// Name implements Store
func (s *SidecarStore) Name() string { return "sidecar" }

// Close implements Store
func (s *SidecarStore) Close() error { return nil }

// Save writes each entry's sidecar. Unchanged files are left alone and an
// image without tags only gets a file when one already exists. Every failed
// write is reported.
func (s *SidecarStore) Save(ctx context.Context, entries []Entry) (err error) {
	start := time.Now()
	defer func() { observe(s.Name(), "save", start, err) }()

	var result *multierror.Error
	written := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			result = multierror.Append(result, ctx.Err())
			break
		}
		changed, werr := s.write(e)
		if werr != nil {
			result = multierror.Append(result, werr)
			continue
		}
		if changed {
			written++
		}
	}
	log.Info("saved tags: %d of %d sidecars written", written, len(entries))
	return result.ErrorOrNil()
}

func (s *SidecarStore) write(e Entry) (bool, error) {
	path := imagetypes.SidecarPath(e.Path)
	content := dataset.FormatTags(e.Tags)

	existing, err := os.ReadFile(path)
	switch {
	case err == nil:
		if strings.TrimSpace(string(existing)) == content {
			return false, nil
		}
	case errors.Is(err, fs.ErrNotExist):
		if len(e.Tags) == 0 {
			return false, nil
		}
	default:
		return false, apperrors.IO("read sidecar", path, err)
	}

	if err := filesystem.WriteFileAtomic(path, []byte(content), 0o644); err != nil {
		return false, apperrors.IO("write sidecar", path, err)
	}
	return true, nil
}

// Load walks Root and returns an entry for every image with a sidecar.
func (s *SidecarStore) Load(ctx context.Context) (entries []Entry, err error) {
	start := time.Now()
	defer func() { observe(s.Name(), "load", start, err) }()

	entries = []Entry{}
	walkErr := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.root {
				return err
			}
			log.Warn("error accessing %s: %v", path, err)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if path != s.root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !imagetypes.IsSupportedImage(path) {
			return nil
		}
		tags, ok, terr := s.read(path)
		if terr != nil {
			log.Warn("%v", terr)
			return nil
		}
		if ok {
			entries = append(entries, Entry{Path: path, Tags: tags})
		}
		return nil
	})
	if walkErr != nil {
		return nil, apperrors.IO("load sidecars", s.root, walkErr)
	}
	return entries, nil
}

// Tags reads the sidecar for one image
func (s *SidecarStore) Tags(_ context.Context, path string) ([]string, bool, error) {
	return s.read(path)
}

func (s *SidecarStore) read(imagePath string) ([]string, bool, error) {
	path := imagetypes.SidecarPath(imagePath)
	data, err := filesystem.ReadFileWithRetry(path, s.retry)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.IO("read sidecar", path, err)
	}
	return dataset.ParseTags(string(data)), true, nil
}
