// Package logging provides the leveled, printf-style logger used across the
// dataset tagger.
//
// Levels, from most to least verbose:
//   - DEBUG: per-file scan and cache activity
//   - INFO: lifecycle messages (scan started/finished, saves, backups)
//   - WARN: recoverable problems (a malformed tag row, an unreadable image)
//   - ERROR: failures that need attention
//   - FATAL: startup failures that terminate the process
//
// The initial level comes from DEBUG=true or LOG_LEVEL. The config file may
// override it at startup through SetLevel.
//
// Components that log a lot (scanner, thumbnail cache, watcher) take a
// prefixed logger from For so lines can be filtered by subsystem:
//
//	log := logging.For("scanner")
//	log.Info("scan of %s finished in %v", root, elapsed)
package logging
