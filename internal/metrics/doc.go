// Package metrics provides Prometheus instrumentation for dataset-tagger.
//
// All metrics are registered with promauto at package init and prefixed with
// "dataset_tagger_". The HTTP server exposes them on /metrics.
//
// # Metric Categories
//
// ## HTTP Metrics
//   - HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight
//
// ## Scan Metrics
//   - ScanRunsTotal: scans by final state
//   - ScanDuration: wall time of finished scans
//   - ScanFilesProcessed: per-file outcomes (ok, hash_failed, decode_failed, io_failed)
//   - ScanInProgress, ScanQueueDepth
//
// ## Index Metrics
//
// Gauges refreshed by the [Collector]:
//   - IndexRecords, IndexTaggedRecords, IndexDistinctTags
//   - DuplicateGroups, DuplicateFiles
//
// TagMutationsTotal counts tag adds and removes as they happen.
//
// ## Thumbnail Cache Metrics
//   - ThumbnailCacheRequests: lookups by result (hit, pending, failed)
//   - ThumbnailCacheEvictions, ThumbnailCacheBytes, ThumbnailCacheEntries
//   - ThumbnailDecodeDuration, ThumbnailDecodeTotal
//
// ## Storage Metrics
//   - StoreOperations, StoreDuration: save/load by backend
//   - BackupsTotal, BackupFilesCopied, BackupBytesCopied
//   - FilesystemRetryAttempts, FilesystemRetryFailures, FilesystemStaleErrors
//
// ## Runtime Metrics
//   - MemoryUsageRatio, MemoryPaused, MemoryGCPauses
//   - WatcherEventsTotal, WatcherErrors, WatchedDirectories
//   - SchedulerJobRuns
//   - AppInfo
package metrics
