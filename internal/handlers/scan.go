package handlers

import (
	"net/http"

	"dataset-tagger/internal/dataset"
	"dataset-tagger/internal/library"
	"dataset-tagger/internal/metrics"
)

// StatsResponse combines index, scan and cache figures
type StatsResponse struct {
	Index   dataset.Stats      `json:"index"`
	Scan    library.ScanReport `json:"scan"`
	Summary metrics.Stats      `json:"summary"`
	Cache   CacheStatsResponse `json:"thumbnailCache"`
}

// CacheStatsResponse describes the thumbnail cache
type CacheStatsResponse struct {
	Entries  int   `json:"entries"`
	Bytes    int64 `json:"bytes"`
	Capacity int64 `json:"capacity"`
	Pending  int   `json:"pending"`
}

// GetScan returns the current or last scan report
func (h *Handlers) GetScan(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.lib.ScanReport())
}

// StartScan starts a background scan of the dataset root
func (h *Handlers) StartScan(w http.ResponseWriter, _ *http.Request) {
	if err := h.lib.Scan(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.lib.ScanReport())
}

// CancelScan stops a running scan
func (h *Handlers) CancelScan(w http.ResponseWriter, _ *http.Request) {
	h.lib.CancelScan()
	writeJSON(w, http.StatusOK, h.lib.ScanReport())
}

// GetStats returns dataset statistics
func (h *Handlers) GetStats(w http.ResponseWriter, _ *http.Request) {
	cache := h.lib.Cache()
	writeJSON(w, http.StatusOK, StatsResponse{
		Index:   h.lib.Index().Stats(),
		Scan:    h.lib.ScanReport(),
		Summary: h.lib.GetStats(),
		Cache: CacheStatsResponse{
			Entries:  cache.Len(),
			Bytes:    cache.Used(),
			Capacity: cache.Capacity(),
			Pending:  cache.Pending(),
		},
	})
}

// Save writes every image's tags to the configured store
func (h *Handlers) Save(w http.ResponseWriter, r *http.Request) {
	if err := h.lib.Save(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSONStatus(w, "saved")
}

// Backup snapshots the dataset into the backup directory
func (h *Handlers) Backup(w http.ResponseWriter, r *http.Request) {
	m, err := h.lib.Backup(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}
