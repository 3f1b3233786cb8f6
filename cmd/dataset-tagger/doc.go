// Package main provides the dataset-tagger command.
//
// dataset-tagger indexes a directory of training images, keeps their
// comma separated tag files in sync, finds byte-identical duplicates and
// serves the dataset over a JSON API.
//
// # Commands
//
//   - serve: scan, watch the dataset root and serve the HTTP API until
//     SIGINT/SIGTERM, then save tags and shut down
//   - scan: scan once and print a report (live progress on a terminal)
//   - dedupe: scan and delete redundant copies, keeping the first path of
//     each group
//   - backup: scan and write a snapshot of images and tags
//   - suggest: complete a tag prefix from the tag database and the dataset
//
// # Serve Lifecycle
//
//  1. Configuration: defaults, YAML file, environment, flags
//  2. Memory: GOMEMLIMIT from environment or cgroup limits
//  3. Library: tag database, tag store, backups, thumbnail cache
//  4. Background services:
//     - Scan of the dataset root
//     - fsnotify watcher for live changes
//     - Cron jobs for autosave and backups
//     - Metrics collector for the index gauges
//     - SIGHUP reloads the tag database CSV
//  5. HTTP server with logging, metrics and compression middleware
//  6. Graceful shutdown: stop the server, cancel the scan, save tags
package main
