package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"dataset-tagger/internal/apperrors"
	"dataset-tagger/internal/dataset"
	"dataset-tagger/internal/filesystem"
	"dataset-tagger/internal/imagetypes"
	"dataset-tagger/internal/logging"
	"dataset-tagger/internal/metrics"
	"dataset-tagger/internal/store"
	"dataset-tagger/internal/workers"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

var log = logging.For("backup")

const (
	manifestName = "manifest.json"
	timeLayout   = "20060102-150405"
	externalDir  = "_external"
)

// Manifest describes one snapshot
type Manifest struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Root      string    `json:"root"`
	Dir       string    `json:"dir"`
	Images    int       `json:"images"`
	Files     int64     `json:"files"`
	Bytes     int64     `json:"bytes"`
	Failed    int       `json:"failed"`
}

// Snapshotter writes snapshots below a backup directory.
type Snapshotter struct {
	dir     string
	workers int
	retry   filesystem.RetryConfig
}

// New returns a snapshotter writing below dir
func New(dir string) *Snapshotter {
	return &Snapshotter{
		dir:     dir,
		workers: workers.ForIO(8),
		retry:   filesystem.DefaultRetryConfig(),
	}
}

// Dir returns the backup directory
func (s *Snapshotter) Dir() string { return s.dir }

// Snapshot copies every entry's image and tags into a new directory. Paths
// under root keep their relative layout; others are placed in _external.
// Every failure is reported in the returned error; the manifest is written
// regardless and counts what was copied.
func (s *Snapshotter) Snapshot(ctx context.Context, root string, entries []store.Entry) (Manifest, error) {
	start := time.Now()
	id := uuid.New()
	name := start.Format(timeLayout) + "-" + id.String()[:8]
	dest := filepath.Join(s.dir, name)

	if err := os.MkdirAll(dest, 0o755); err != nil {
		metrics.BackupsTotal.WithLabelValues("error").Inc()
		return Manifest{}, apperrors.IO("create snapshot", dest, err)
	}

	m := Manifest{ID: id.String(), CreatedAt: start, Root: root, Dir: dest, Images: len(entries)}
	log.Info("writing snapshot %s (%d images)", dest, len(entries))

	var (
		files, bytes atomic.Int64
		mu           sync.Mutex
		result       *multierror.Error
	)
	jobs := make(chan store.Entry)
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range jobs {
				n, copied, err := s.copyEntry(root, dest, e)
				files.Add(copied)
				bytes.Add(n)
				if err != nil {
					mu.Lock()
					result = multierror.Append(result, err)
					mu.Unlock()
				}
			}
		}()
	}

feed:
	for _, e := range entries {
		select {
		case jobs <- e:
		case <-ctx.Done():
			mu.Lock()
			result = multierror.Append(result, ctx.Err())
			mu.Unlock()
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	m.Files = files.Load()
	m.Bytes = bytes.Load()
	if result != nil {
		m.Failed = len(result.Errors)
	}
	if err := writeManifest(dest, m); err != nil {
		result = multierror.Append(result, err)
	}

	metrics.BackupFilesCopied.Add(float64(m.Files))
	metrics.BackupBytesCopied.Add(float64(m.Bytes))
	if err := result.ErrorOrNil(); err != nil {
		metrics.BackupsTotal.WithLabelValues("error").Inc()
		log.Warn("snapshot %s finished with %d errors", dest, len(result.Errors))
		return m, err
	}
	metrics.BackupsTotal.WithLabelValues("success").Inc()
	log.Info("snapshot %s complete: %d files, %s in %v", dest, m.Files,
		humanize.IBytes(uint64(m.Bytes)), time.Since(start).Round(time.Millisecond))
	return m, nil
}

// copyEntry copies one image and writes its tag file.
func (s *Snapshotter) copyEntry(root, dest string, e store.Entry) (int64, int64, error) {
	target := filepath.Join(dest, relativeTo(root, e.Path))

	n, err := filesystem.CopyFile(e.Path, target, s.retry)
	if err != nil {
		return n, 0, apperrors.IO("backup", e.Path, err)
	}
	copied := int64(1)

	sidecar := imagetypes.SidecarPath(target)
	content := []byte(dataset.FormatTags(e.Tags))
	if err := filesystem.WriteFileAtomic(sidecar, content, 0o644); err != nil {
		return n, copied, apperrors.IO("backup tags", sidecar, err)
	}
	return n + int64(len(content)), copied + 1, nil
}

func relativeTo(root, path string) string {
	if root != "" {
		if rel, err := filepath.Rel(root, path); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	return filepath.Join(externalDir, filepath.Base(path))
}

func writeManifest(dir string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	path := filepath.Join(dir, manifestName)
	if err := filesystem.WriteFileAtomic(path, data, 0o644); err != nil {
		return apperrors.IO("write manifest", path, err)
	}
	return nil
}

// List returns the manifests of existing snapshots, newest first. Directories
// without a readable manifest are skipped.
func (s *Snapshotter) List() ([]Manifest, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return []Manifest{}, nil
	}
	if err != nil {
		return nil, apperrors.IO("list snapshots", s.dir, err)
	}

	out := make([]Manifest, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name(), manifestName))
		if err != nil {
			continue
		}
		var m Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			log.Warn("unreadable manifest in %s: %v", e.Name(), err)
			continue
		}
		m.Dir = filepath.Join(s.dir, e.Name())
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Prune deletes all but the newest keep snapshots and returns how many were
// removed. keep <= 0 disables pruning.
func (s *Snapshotter) Prune(keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	snaps, err := s.List()
	if err != nil {
		return 0, err
	}
	if len(snaps) <= keep {
		return 0, nil
	}

	var result *multierror.Error
	removed := 0
	for _, m := range snaps[keep:] {
		if err := os.RemoveAll(m.Dir); err != nil {
			result = multierror.Append(result, apperrors.IO("prune", m.Dir, err))
			continue
		}
		removed++
	}
	log.Info("pruned %d old snapshots", removed)
	return removed, result.ErrorOrNil()
}
