package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dataset-tagger/internal/handlers"
	"dataset-tagger/internal/library"
	"dataset-tagger/internal/logging"
	"dataset-tagger/internal/media"
	"dataset-tagger/internal/memory"
	"dataset-tagger/internal/metrics"
	"dataset-tagger/internal/scheduler"
	"dataset-tagger/internal/startup"
	"dataset-tagger/internal/tagdb"
	"dataset-tagger/internal/watcher"

	"github.com/spf13/cobra"
)

const (
	statsInterval   = 30 * time.Second
	shutdownTimeout = 30 * time.Second
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Scan the dataset and serve the JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(func(c *startup.Config) {
				if port != "" {
					c.Port = port
				}
			})
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, nil)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides PORT)")
	return cmd
}

// serve runs until ctx is done. When listening is non-nil it receives the
// bound address once the server accepts connections.
func serve(ctx context.Context, cfg *startup.Config, listening chan<- string) error {
	started := time.Now()

	startup.PrintBanner()
	startup.LogConfig(cfg)
	startup.LogMemoryConfig(memory.ConfigureFromEnv())

	metrics.InitializeMetrics()
	bi := startup.GetBuildInfo()
	metrics.AppInfo.WithLabelValues(bi.Version, bi.Commit, bi.GoVersion).Set(1)

	if err := media.InitVips(media.VipsConfig{}); err != nil {
		logging.Warn("libvips unavailable, using the Go decoders: %v", err)
	}
	defer media.ShutdownVips()

	sess, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer sess.Close()
	lib := sess.lib

	if sess.store != nil {
		n, err := lib.Load(ctx)
		if err != nil {
			logging.Warn("load tags from %s store: %v", sess.store.Name(), err)
		} else {
			startup.LogStep("TAGS", "restored %d records from %s store", n, sess.store.Name())
		}
	}
	if err := lib.Scan(); err != nil {
		return err
	}

	if cfg.Watch {
		w := watcher.New(cfg.DatasetDir, lib, watcher.DefaultDebounce)
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logging.Error("watcher stopped: %v", err)
			}
		}()
	}

	if cfg.TagDatabase != "" {
		go reloadTagDatabaseOnHangup(ctx, lib, cfg.TagDatabase)
	}

	sched := scheduler.New()
	if sess.store != nil {
		if _, err := sched.Add("autosave", cfg.AutosaveCron, lib.Save); err != nil {
			return err
		}
	}
	if cfg.BackupDir != "" {
		if _, err := sched.Add("backup", cfg.BackupCron, func(ctx context.Context) error {
			_, err := lib.Backup(ctx)
			return err
		}); err != nil {
			return err
		}
	}
	sched.Start()
	defer sched.Stop()

	collector := metrics.NewCollector(lib, statsInterval)
	collector.Start()
	defer collector.Stop()

	router := handlers.New(lib).Router(handlers.RouterConfig{
		Metrics:         cfg.MetricsEnabled,
		LogHealthChecks: cfg.LogHealthChecks,
	})
	startup.LogHTTPRoutes(router)

	srv := &http.Server{
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	startup.LogServerStarted(cfg.Port, cfg.MetricsEnabled, time.Since(started))
	if listening != nil {
		listening <- ln.Addr().String()
	}

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	startup.LogShutdownInitiated(context.Cause(ctx).Error())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("HTTP server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	lib.CancelScan()
	startup.LogShutdownStepComplete("Scan cancelled")

	if sess.store != nil {
		if err := lib.Save(shutdownCtx); err != nil {
			logging.Error("final save failed: %v", err)
		} else {
			startup.LogShutdownStepComplete("Tags saved to " + sess.store.Name() + " store")
		}
	}
	startup.LogShutdownComplete()
	return nil
}

// reloadTagDatabaseOnHangup re-reads the tag CSV on SIGHUP. A file that fails
// to load leaves the current database in place.
func reloadTagDatabaseOnHangup(ctx context.Context, lib *library.Library, path string) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-hup:
			db, err := tagdb.LoadFile(path)
			if err != nil {
				logging.Error("reload tag database: %v", err)
				continue
			}
			lib.SetTagDatabase(db)
			logging.Info("tag database reloaded: %d tags from %s", db.Len(), path)
		case <-ctx.Done():
			return
		}
	}
}
