// Package startup loads configuration and writes the startup and shutdown log.
//
// # Configuration
//
// [Load] starts from [Defaults], applies an optional YAML file (unknown keys
// are rejected) and then environment variables:
//
//   - DATASET_DIR: dataset root (default: current directory)
//   - TAG_DATABASE: CSV tag database, optional
//   - PORT: HTTP port (default: 8080)
//   - LOG_LEVEL: debug, info, warn or error (default: info)
//   - THUMBNAIL_CACHE_MB: thumbnail cache budget (default: 512)
//   - THUMBNAIL_SIZE: thumbnail bounding box in pixels (default: 800)
//   - THUMBNAIL_WORKERS, SCAN_WORKERS, SCAN_QUEUE: pool sizes (0 = auto)
//   - DEDUPE: exact or perceptual (default: exact)
//   - STORE: sidecar, sqlite or none (default: sidecar)
//   - DATABASE_PATH: SQLite file (default: DATASET_DIR/.dataset-tagger.db)
//   - BACKUP_DIR, BACKUP_KEEP: snapshot location and retention
//   - AUTOSAVE_CRON, BACKUP_CRON: cron expressions; empty disables the job
//   - WATCH: index file changes as they happen (default: true)
//   - METRICS_ENABLED: serve /metrics (default: true)
//   - LOG_HEALTH_CHECKS: log /healthz requests (default: false)
//
// Memory limits (MEMORY_LIMIT, MEMORY_RATIO, GOMEMLIMIT) are handled by the
// memory package; [LogMemoryConfig] reports the outcome.
//
// # Build Information
//
// Version, Commit and BuildTime are injected via ldflags and exposed via
// [GetBuildInfo].
package startup
