package handlers

import (
	"net/http"
	"time"

	"dataset-tagger/internal/library"
	"dataset-tagger/internal/middleware"

	"github.com/gorilla/mux"
)

// Handlers serves the API for one library
type Handlers struct {
	lib         *library.Library
	jpegQuality int
	started     time.Time
}

// New returns handlers bound to lib
func New(lib *library.Library) *Handlers {
	return &Handlers{
		lib:         lib,
		jpegQuality: 85,
		started:     time.Now(),
	}
}

// RouterConfig selects the optional parts of the router
type RouterConfig struct {
	Metrics         bool
	LogHealthChecks bool
}

// Router builds the mux router with logging, metrics and compression applied.
func (h *Handlers) Router(cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()

	logCfg := middleware.DefaultLoggingConfig()
	logCfg.LogHealthChecks = cfg.LogHealthChecks
	r.Use(middleware.Logger(logCfg))
	if cfg.Metrics {
		r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
		r.Handle("/metrics", h.MetricsHandler()).Methods(http.MethodGet)
	}
	r.Use(middleware.Compression(middleware.DefaultCompressionConfig()))

	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/images", h.ListImages).Methods(http.MethodGet)
	api.HandleFunc("/images/{id}", h.GetImage).Methods(http.MethodGet)
	api.HandleFunc("/images/{id}/tags", h.AddImageTag).Methods(http.MethodPost)
	api.HandleFunc("/images/{id}/tags", h.SetImageTags).Methods(http.MethodPut)
	api.HandleFunc("/images/{id}/tags", h.RemoveImageTag).Methods(http.MethodDelete)
	api.HandleFunc("/images/{id}/thumbnail", h.GetThumbnail).Methods(http.MethodGet)
	api.HandleFunc("/images/{id}/thumbnail/retry", h.RetryThumbnail).Methods(http.MethodPost)

	api.HandleFunc("/tags", h.GetTagFrequencies).Methods(http.MethodGet)
	api.HandleFunc("/tags", h.BulkAddTag).Methods(http.MethodPost)
	api.HandleFunc("/tags", h.BulkRemoveTag).Methods(http.MethodDelete)
	api.HandleFunc("/tags/suggest", h.SuggestTags).Methods(http.MethodGet)
	api.HandleFunc("/tags/resolve", h.ResolveTag).Methods(http.MethodGet)

	api.HandleFunc("/duplicates", h.ListDuplicates).Methods(http.MethodGet)
	api.HandleFunc("/duplicates/resolve", h.ResolveAllDuplicates).Methods(http.MethodPost)
	api.HandleFunc("/duplicates/{hash}/resolve", h.ResolveDuplicates).Methods(http.MethodPost)

	api.HandleFunc("/scan", h.GetScan).Methods(http.MethodGet)
	api.HandleFunc("/scan", h.StartScan).Methods(http.MethodPost)
	api.HandleFunc("/scan", h.CancelScan).Methods(http.MethodDelete)

	api.HandleFunc("/stats", h.GetStats).Methods(http.MethodGet)
	api.HandleFunc("/save", h.Save).Methods(http.MethodPost)
	api.HandleFunc("/backup", h.Backup).Methods(http.MethodPost)

	return r
}
