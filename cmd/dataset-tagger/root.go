package main

import (
	"context"
	"path/filepath"
	"strings"

	"dataset-tagger/internal/backup"
	"dataset-tagger/internal/library"
	"dataset-tagger/internal/logging"
	"dataset-tagger/internal/memory"
	"dataset-tagger/internal/startup"
	"dataset-tagger/internal/store"
	"dataset-tagger/internal/tagdb"

	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand
type globalFlags struct {
	configPath string
	datasetDir string
	logLevel   string
	store      string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "dataset-tagger",
		Short: "Index, tag and deduplicate image datasets",
		Long: strings.TrimSpace(`
Index a directory of training images, edit their comma separated tag files,
find byte-identical duplicates and serve the dataset over a JSON API.

Configuration comes from an optional YAML file, then environment variables
(DATASET_DIR, TAG_DATABASE, STORE, ...), then the flags below.`),
		SilenceUsage: true,
		Version:      startup.Version,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "YAML configuration file")
	pf.StringVarP(&flags.datasetDir, "dataset", "d", "", "dataset root (overrides DATASET_DIR)")
	pf.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	pf.StringVar(&flags.store, "store", "", "tag store: sidecar, sqlite or none (overrides STORE)")

	root.AddCommand(
		newServeCmd(flags),
		newScanCmd(flags),
		newDedupeCmd(flags),
		newBackupCmd(flags),
		newSuggestCmd(flags),
	)
	return root
}

// load resolves the configuration and applies the log level
func (f *globalFlags) load(overrides ...func(*startup.Config)) (*startup.Config, error) {
	overrides = append([]func(*startup.Config){func(c *startup.Config) {
		if f.datasetDir != "" {
			c.DatasetDir = f.datasetDir
		}
		if f.logLevel != "" {
			c.LogLevel = f.logLevel
		}
		if f.store != "" {
			c.Store = f.store
		}
	}}, overrides...)

	cfg, err := startup.Load(f.configPath, overrides...)
	if err != nil {
		return nil, err
	}
	if level, ok := logging.ParseLevel(cfg.LogLevel); ok {
		logging.SetLevel(level)
	}
	return cfg, nil
}

// session is an opened library together with everything it owns. The
// library owns the store and closes it.
type session struct {
	lib     *library.Library
	store   store.Store
	monitor *memory.Monitor
}

func (s *session) Close() {
	if err := s.lib.Close(); err != nil {
		logging.Warn("close library: %v", err)
	}
	s.monitor.Stop()
}

// openSession builds the library described by cfg
func openSession(ctx context.Context, cfg *startup.Config) (*session, error) {
	s := &session{monitor: memory.NewMonitor(memory.DefaultConfig())}
	var opts []library.Option

	if cfg.TagDatabase != "" {
		db, err := tagdb.LoadFile(cfg.TagDatabase)
		if err != nil {
			return nil, err
		}
		opts = append(opts, library.WithTagDatabase(db))
	}

	switch cfg.Store {
	case startup.StoreSidecar:
		s.store = store.NewSidecarStore(cfg.DatasetDir)
	case startup.StoreSQLite:
		if err := startup.EnsureDirectory(filepath.Dir(cfg.DatabasePath), "database"); err != nil {
			return nil, err
		}
		st, err := store.OpenSQLite(ctx, cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		s.store = st
	}
	if s.store != nil {
		opts = append(opts, library.WithStore(s.store))
	}

	if cfg.BackupDir != "" {
		opts = append(opts, library.WithBackups(backup.New(cfg.BackupDir)))
	}

	s.monitor.Start()
	lib, err := library.Open(ctx, library.Config{
		Root:             cfg.DatasetDir,
		CacheBytes:       cfg.CacheBytes(),
		ThumbnailSize:    cfg.ThumbnailSize,
		ThumbnailWorkers: cfg.ThumbnailWorkers,
		ScanWorkers:      cfg.ScanWorkers,
		ScanQueue:        cfg.ScanQueue,
		Dedupe:           cfg.DedupeMode(),
		Monitor:          s.monitor,
		BackupKeep:       cfg.BackupKeep,
	}, opts...)
	if err != nil {
		s.monitor.Stop()
		if s.store != nil {
			_ = s.store.Close()
		}
		return nil, err
	}
	s.lib = lib
	return s, nil
}
