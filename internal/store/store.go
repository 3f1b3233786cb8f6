package store

import (
	"context"
	"time"

	"dataset-tagger/internal/metrics"
)

// Entry is the persisted state of one image
type Entry struct {
	Path string   `json:"path"`
	Tags []string `json:"tags"`
}

// Store saves and loads tag state.
type Store interface {
	// Save writes a snapshot of entries
	Save(ctx context.Context, entries []Entry) error
	// Load returns every stored entry
	Load(ctx context.Context) ([]Entry, error)
	// Tags returns the stored tags for one image and whether any were stored
	Tags(ctx context.Context, path string) ([]string, bool, error)
	// Name identifies the backend in logs and metrics
	Name() string
	Close() error
}

// observe records an operation's outcome and duration.
func observe(backend, op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.StoreOperations.WithLabelValues(backend, op, status).Inc()
	metrics.StoreDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}
