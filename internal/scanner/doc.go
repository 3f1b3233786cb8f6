// Package scanner populates a dataset index from a directory tree.
//
// A scan walks the root, feeding supported image paths into a bounded job
// queue. A fixed pool of workers reads each file, hashes it and decodes a
// thumbnail. Results flow through a single channel to one drain goroutine,
// which is the only place results are applied to the sink.
//
// States:
//   - Idle: no scan has run
//   - Scanning: a scan is in progress
//   - Completed, Cancelled, Failed: terminal; a new scan may be started
//
// Hidden files and directories (prefixed with '.') are skipped. A file that
// cannot be read, hashed or decoded is counted and recorded but never aborts
// the scan.
package scanner
