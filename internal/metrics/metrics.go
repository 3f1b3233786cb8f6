package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_tagger_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dataset_tagger_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataset_tagger_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Scan metrics
var (
	ScanRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_tagger_scan_runs_total",
			Help: "Total number of scans by final state",
		},
		[]string{"state"},
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dataset_tagger_scan_duration_seconds",
			Help:    "Duration of finished scans",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	ScanFilesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_tagger_scan_files_processed_total",
			Help: "Files processed by scan workers by outcome",
		},
		[]string{"outcome"},
	)

	ScanInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataset_tagger_scan_in_progress",
			Help: "1 while a scan is running",
		},
	)

	ScanQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataset_tagger_scan_queue_depth",
			Help: "Paths waiting for a scan worker",
		},
	)
)

// Index metrics
var (
	IndexRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataset_tagger_index_records",
			Help: "Number of indexed images",
		},
	)

	IndexTaggedRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataset_tagger_index_tagged_records",
			Help: "Number of indexed images with at least one tag",
		},
	)

	IndexDistinctTags = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataset_tagger_index_distinct_tags",
			Help: "Number of distinct tags in use",
		},
	)

	DuplicateGroups = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataset_tagger_duplicate_groups",
			Help: "Number of content hashes shared by two or more images",
		},
	)

	DuplicateFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataset_tagger_duplicate_files",
			Help: "Number of redundant images beyond the first of each duplicate group",
		},
	)

	TagMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_tagger_tag_mutations_total",
			Help: "Tag adds and removes applied to records",
		},
		[]string{"op"},
	)
)

// Thumbnail cache metrics
var (
	ThumbnailCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_tagger_thumbnail_cache_requests_total",
			Help: "Thumbnail lookups by result",
		},
		[]string{"result"},
	)

	ThumbnailCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dataset_tagger_thumbnail_cache_evictions_total",
			Help: "Thumbnails evicted to stay within the byte budget",
		},
	)

	ThumbnailCacheBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataset_tagger_thumbnail_cache_bytes",
			Help: "Approximate bytes held by cached thumbnails",
		},
	)

	ThumbnailCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataset_tagger_thumbnail_cache_entries",
			Help: "Number of cached thumbnails",
		},
	)

	ThumbnailDecodeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dataset_tagger_thumbnail_decode_duration_seconds",
			Help:    "Time to decode and fit one thumbnail",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	ThumbnailDecodeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_tagger_thumbnail_decode_total",
			Help: "Thumbnail decodes by status",
		},
		[]string{"status"},
	)
)

// Storage metrics
var (
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_tagger_store_operations_total",
			Help: "Save and load operations by backend and status",
		},
		[]string{"backend", "operation", "status"},
	)

	StoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dataset_tagger_store_duration_seconds",
			Help:    "Save and load duration by backend",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"backend", "operation"},
	)

	BackupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_tagger_backups_total",
			Help: "Backup snapshots by status",
		},
		[]string{"status"},
	)

	BackupFilesCopied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dataset_tagger_backup_files_copied_total",
			Help: "Files copied into backup snapshots",
		},
	)

	BackupBytesCopied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dataset_tagger_backup_bytes_copied_total",
			Help: "Bytes copied into backup snapshots",
		},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_tagger_filesystem_retry_attempts_total",
			Help: "Retries of transient filesystem errors",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_tagger_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after all retries",
		},
		[]string{"operation"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_tagger_filesystem_transient_errors_total",
			Help: "Transient filesystem errors (ESTALE, EAGAIN, EINTR)",
		},
		[]string{"operation"},
	)
)

// Runtime metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataset_tagger_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataset_tagger_memory_paused",
			Help: "1 while scan workers are paused for memory pressure",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dataset_tagger_memory_gc_pauses_total",
			Help: "Times scan workers were paused for memory pressure",
		},
	)

	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_tagger_watcher_events_total",
			Help: "Filesystem events seen by the dataset watcher",
		},
		[]string{"type"},
	)

	WatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dataset_tagger_watcher_errors_total",
			Help: "Errors reported by the dataset watcher",
		},
	)

	WatchedDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataset_tagger_watched_directories",
			Help: "Directories registered with the dataset watcher",
		},
	)

	SchedulerJobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_tagger_scheduler_job_runs_total",
			Help: "Scheduled job runs by job and status",
		},
		[]string{"job", "status"},
	)

	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dataset_tagger_app_info",
			Help: "Build information; the value is always 1",
		},
		[]string{"version", "commit", "go_version"},
	)
)
