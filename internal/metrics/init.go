package metrics

// InitializeMetrics pre-populates the expected label combinations so every
// series is exported from the first scrape. Call once at startup.
func InitializeMetrics() {
	for _, state := range []string{"completed", "cancelled", "failed"} {
		ScanRunsTotal.WithLabelValues(state)
	}
	for _, outcome := range []string{"ok", "hash_failed", "decode_failed", "io_failed"} {
		ScanFilesProcessed.WithLabelValues(outcome)
	}
	for _, op := range []string{"add", "remove"} {
		TagMutationsTotal.WithLabelValues(op)
	}
	for _, result := range []string{"hit", "pending", "failed"} {
		ThumbnailCacheRequests.WithLabelValues(result)
	}
	for _, status := range []string{"success", "error"} {
		ThumbnailDecodeTotal.WithLabelValues(status)
		BackupsTotal.WithLabelValues(status)
	}
	for _, backend := range []string{"sidecar", "sqlite"} {
		for _, op := range []string{"save", "load"} {
			StoreOperations.WithLabelValues(backend, op, "success")
			StoreOperations.WithLabelValues(backend, op, "error")
			StoreDuration.WithLabelValues(backend, op)
		}
	}
	for _, op := range []string{"stat", "open", "read"} {
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
		FilesystemStaleErrors.WithLabelValues(op)
	}
	for _, t := range []string{"create", "write", "remove", "rename", "chmod"} {
		WatcherEventsTotal.WithLabelValues(t)
	}
	for _, job := range []string{"autosave", "backup"} {
		SchedulerJobRuns.WithLabelValues(job, "success")
		SchedulerJobRuns.WithLabelValues(job, "error")
	}
}
