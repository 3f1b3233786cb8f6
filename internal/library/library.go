package library

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"dataset-tagger/internal/apperrors"
	"dataset-tagger/internal/backup"
	"dataset-tagger/internal/dataset"
	"dataset-tagger/internal/filesystem"
	"dataset-tagger/internal/hasher"
	"dataset-tagger/internal/imagetypes"
	"dataset-tagger/internal/logging"
	"dataset-tagger/internal/media"
	"dataset-tagger/internal/memory"
	"dataset-tagger/internal/metrics"
	"dataset-tagger/internal/scanner"
	"dataset-tagger/internal/store"
	"dataset-tagger/internal/tagdb"
	"dataset-tagger/internal/thumbcache"
	"dataset-tagger/internal/workers"

	"github.com/dustin/go-humanize"
)

var log = logging.For("library")

// Config configures a Library
type Config struct {
	Root             string
	CacheBytes       int64
	CacheQueue       int
	ThumbnailSize    int
	ThumbnailWorkers int
	ScanWorkers      int
	ScanQueue        int
	Dedupe           hasher.Mode
	Monitor          *memory.Monitor
	BackupKeep       int
}

// DefaultCacheBytes is the thumbnail budget when none is configured
const DefaultCacheBytes = 512 << 20

// Library is a dataset rooted at one directory.
type Library struct {
	config    Config
	index     *dataset.Index
	cache     *thumbcache.Cache
	decoder   *media.Decoder
	hasher    hasher.Hasher
	processor *scanner.FileProcessor
	pipeline  *scanner.Pipeline
	retry     filesystem.RetryConfig

	store   store.Store
	backups *backup.Snapshotter

	tagsMu sync.RWMutex
	tags   *tagdb.Database

	ctx       context.Context
	cancel    context.CancelFunc
	loaders   sync.WaitGroup
	closeOnce sync.Once
}

// Option configures optional collaborators
type Option func(*Library)

// WithStore persists tags to st
func WithStore(st store.Store) Option {
	return func(l *Library) { l.store = st }
}

// WithBackups enables snapshots through s
func WithBackups(s *backup.Snapshotter) Option {
	return func(l *Library) { l.backups = s }
}

// WithTagDatabase resolves aliases and suggestions against db
func WithTagDatabase(db *tagdb.Database) Option {
	return func(l *Library) { l.tags = db }
}

// Open builds a library and starts its thumbnail loaders. The loaders run
// until Close or until ctx is done.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Library, error) {
	if cfg.Root == "" {
		return nil, apperrors.Invalid("open", "dataset root is required")
	}
	root, err := imagetypes.NormalizePath(cfg.Root)
	if err != nil {
		return nil, apperrors.Invalid("open", err.Error())
	}
	cfg.Root = root
	if cfg.CacheBytes <= 0 {
		cfg.CacheBytes = DefaultCacheBytes
	}
	cfg.ThumbnailWorkers = workers.Resolve(cfg.ThumbnailWorkers, workers.ForCPU, 8)

	h, err := hasher.New(cfg.Dedupe)
	if err != nil {
		return nil, apperrors.Invalid("open", err.Error())
	}

	l := &Library{
		config:  cfg,
		index:   dataset.NewIndex(),
		decoder: media.NewDecoder(cfg.ThumbnailSize),
		hasher:  h,
		retry:   filesystem.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.cache = thumbcache.New(cfg.CacheBytes, cfg.CacheQueue, l.index)
	l.index.SetEvictor(l.cache)
	l.processor = scanner.NewFileProcessor(h, l.decoder)
	l.pipeline = scanner.New(scanner.Config{
		Workers:    cfg.ScanWorkers,
		QueueSize:  cfg.ScanQueue,
		SkipHidden: true,
		Monitor:    cfg.Monitor,
	}, l.processor, l)

	l.ctx, l.cancel = context.WithCancel(ctx)
	l.loaders.Add(1)
	go func() {
		defer l.loaders.Done()
		l.cache.Run(l.ctx, l, cfg.ThumbnailWorkers)
	}()

	log.Info("library at %s: thumbnail cache %s, %dpx thumbnails, %d scan workers, dedupe %s",
		root, humanize.IBytes(uint64(cfg.CacheBytes)), l.decoder.Size(), l.pipeline.Workers(), modeName(cfg.Dedupe))
	return l, nil
}

func modeName(m hasher.Mode) string {
	if m == "" {
		return string(hasher.ModeExact)
	}
	return string(m)
}

// Root returns the dataset directory
func (l *Library) Root() string { return l.config.Root }

// Index returns the underlying index
func (l *Library) Index() *dataset.Index { return l.index }

// Cache returns the thumbnail cache
func (l *Library) Cache() *thumbcache.Cache { return l.cache }

// Monitor returns the memory monitor, or nil when none is configured
func (l *Library) Monitor() *memory.Monitor { return l.config.Monitor }

// Close cancels any scan, stops the thumbnail loaders and closes the store.
func (l *Library) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.pipeline.Cancel()
		l.cancel()
		l.loaders.Wait()
		if l.store != nil {
			err = l.store.Close()
		}
		log.Info("library closed")
	})
	return err
}

// Apply records one scan result: the record is created (restoring stored
// tags for new paths), its hash or hash failure is recorded and its
// thumbnail is handed to the cache.
func (l *Library) Apply(res scanner.Result) {
	id, created, err := l.index.Upsert(res.Path)
	if err != nil {
		log.Warn("cannot index %s: %v", res.Path, err)
		return
	}
	if created {
		l.restoreTags(id, res.Path)
	} else {
		l.invalidateIfChanged(id, res)
	}

	switch {
	case res.Err != nil:
		l.recordHashError(id, res.Err)
	case res.HashErr != nil:
		l.recordHashError(id, res.HashErr)
	case res.Hash != nil:
		if _, err := l.index.AssignHash(id, *res.Hash); err != nil {
			log.Warn("assign hash %s: %v", res.Path, err)
		}
	}

	switch {
	case res.Err != nil:
		l.cache.Fail(id, res.Err)
	case res.DecodeErr != nil:
		l.cache.Fail(id, res.DecodeErr)
	case res.Thumbnail != nil:
		l.cache.Insert(id, res.Thumbnail)
	}
}

// invalidateIfChanged drops the hash and cached thumbnail of an indexed file
// whose bytes no longer match. A fresh read that failed also counts as a
// change, so a stale hash never keeps a file in a duplicate group.
func (l *Library) invalidateIfChanged(id imagetypes.ImageID, res scanner.Result) {
	rec, ok := l.index.Get(id)
	if !ok || rec.ContentHash == nil {
		return
	}
	if res.Hash != nil && *res.Hash == *rec.ContentHash {
		return
	}
	l.index.ResetHash(id)
	l.cache.Evict(id)
	log.Debug("%s changed on disk, hash and thumbnail invalidated", res.Path)
}

func (l *Library) recordHashError(id imagetypes.ImageID, err error) {
	if serr := l.index.SetHashError(id, err.Error()); serr != nil {
		log.Warn("%v", serr)
	}
}

func (l *Library) restoreTags(id imagetypes.ImageID, path string) {
	if l.store == nil {
		return
	}
	tags, ok, err := l.store.Tags(l.ctx, path)
	if err != nil {
		log.Warn("restore tags for %s: %v", path, err)
		return
	}
	if !ok || len(tags) == 0 {
		return
	}
	if err := l.index.SetTags(id, tags); err != nil {
		log.Warn("restore tags for %s: %v", path, err)
	}
}

// Ingest processes and applies one file outside a scan.
func (l *Library) Ingest(ctx context.Context, path string) (imagetypes.ImageID, error) {
	if !imagetypes.IsSupportedImage(path) {
		return "", apperrors.Invalid("ingest", "unsupported file type: "+path)
	}
	res := l.processor.Process(ctx, path)
	if res.Err != nil {
		return "", res.Err
	}
	l.Apply(res)
	id, _, err := imagetypes.IDFromPath(path)
	return id, err
}

// Forget removes the record for path, if any.
func (l *Library) Forget(path string) bool {
	rec, ok := l.index.Lookup(path)
	if !ok {
		return false
	}
	return l.index.Remove(rec.ID) == nil
}

// LoadThumbnail reads and decodes an image for the cache. Records loaded from
// a store are hashed here the first time their bytes are read.
func (l *Library) LoadThumbnail(ctx context.Context, id imagetypes.ImageID) (*thumbcache.Bitmap, error) {
	rec, ok := l.index.Get(id)
	if !ok {
		return nil, apperrors.NotFound("thumbnail", string(id))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := filesystem.ReadFileWithRetry(rec.Path, l.retry)
	if err != nil {
		return nil, apperrors.IO("read", rec.Path, err)
	}

	if rec.ContentHash == nil && rec.HashError == "" {
		if h, err := l.hasher.Sum(data); err != nil {
			l.recordHashError(id, err)
		} else if _, err := l.index.AssignHash(id, h); err != nil {
			log.Debug("lazy hash %s: %v", rec.Path, err)
		}
	}

	img, err := l.decoder.Thumbnail(rec.Path, data)
	if err != nil {
		return nil, err
	}
	return thumbcache.NewBitmap(img), nil
}

// Thumbnail returns the cached thumbnail for id or requests it.
func (l *Library) Thumbnail(id imagetypes.ImageID) (thumbcache.Lookup, error) {
	if _, ok := l.index.Get(id); !ok {
		return thumbcache.Lookup{}, apperrors.NotFound("thumbnail", string(id))
	}
	return l.cache.GetOrRequest(id), nil
}

// RetryThumbnail clears a decode failure and requests id again.
func (l *Library) RetryThumbnail(id imagetypes.ImageID) (thumbcache.Lookup, error) {
	if _, ok := l.index.Get(id); !ok {
		return thumbcache.Lookup{}, apperrors.NotFound("thumbnail", string(id))
	}
	return l.cache.Retry(id), nil
}

// GetStats implements metrics.StatsProvider
func (l *Library) GetStats() metrics.Stats {
	s := l.index.Stats()
	dups := l.index.Duplicates()
	groups := dups.Count()
	return metrics.Stats{
		Records:         s.Records,
		TaggedRecords:   s.Tagged,
		DistinctTags:    l.index.Frequency().Len(),
		DuplicateGroups: groups,
		DuplicateFiles:  dups.Redundant() + groups,
		CacheEntries:    l.cache.Len(),
		CacheBytes:      l.cache.Used(),
	}
}

// exists reports whether path is present on disk
func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ForgetUnder removes every record below dir and returns how many were
// removed.
func (l *Library) ForgetUnder(dir string) int {
	prefix := filepath.Clean(dir) + string(filepath.Separator)
	n := 0
	for _, rec := range l.index.Records() {
		if strings.HasPrefix(rec.Path, prefix) && l.index.Remove(rec.ID) == nil {
			n++
		}
	}
	return n
}
