package handlers

import (
	"net/http"
	"runtime"
	"time"

	"dataset-tagger/internal/scanner"
	"dataset-tagger/internal/startup"

	"github.com/dustin/go-humanize"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Ready     bool   `json:"ready"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	ScanState string `json:"scanState"`
	ScanError string `json:"scanError,omitempty"`
	Records   int    `json:"records"`
	Cache     string `json:"thumbnailCache"`

	Memory *MemoryStatus `json:"memory,omitempty"`

	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// MemoryStatus is the memory monitor's view of the heap
type MemoryStatus struct {
	Used      string  `json:"used"`
	Limit     string  `json:"limit"`
	Usage     float64 `json:"usage"`
	Throttled bool    `json:"throttled"`
	Paused    bool    `json:"paused"`
}

// memoryStatus is nil when no monitor or no limit is configured
func (h *Handlers) memoryStatus() *MemoryStatus {
	m := h.lib.Monitor()
	if m == nil {
		return nil
	}
	current, limit, usage := m.GetStats()
	if limit <= 0 {
		return nil
	}
	return &MemoryStatus{
		Used:      humanize.IBytes(uint64(current)),
		Limit:     humanize.IBytes(uint64(limit)),
		Usage:     usage,
		Throttled: m.ShouldThrottle(),
		Paused:    m.IsPaused(),
	}
}

// ready reports whether the index can serve queries: either a scan is not
// running, or an earlier load already populated it.
func (h *Handlers) ready() bool {
	return h.lib.ScanState() != scanner.Scanning || h.lib.Index().Len() > 0
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	report := h.lib.ScanReport()
	cache := h.lib.Cache()

	response := HealthResponse{
		Status:       statusHealthy,
		Ready:        h.ready(),
		Version:      startup.Version,
		Uptime:       time.Since(h.started).Round(time.Second).String(),
		ScanState:    report.State,
		ScanError:    report.Error,
		Records:      report.Indexed,
		Cache:        humanize.IBytes(uint64(cache.Used())) + " / " + humanize.IBytes(uint64(cache.Capacity())),
		Memory:       h.memoryStatus(),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	status := http.StatusOK
	switch {
	case !response.Ready:
		response.Status = statusStarting
		status = http.StatusServiceUnavailable
	case report.State == scanner.Failed.String():
		response.Status = statusDegraded
	case response.Memory != nil && response.Memory.Paused:
		// scan workers are stalled until memory recovers
		response.Status = statusDegraded
	}
	writeJSON(w, status, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ReadinessCheck returns 200 only when the service is ready to accept traffic
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if h.ready() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}
