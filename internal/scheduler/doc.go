// Package scheduler runs periodic dataset maintenance (autosave, backups)
// on cron expressions. A job that is still running when its next tick comes
// is skipped for that tick.
package scheduler
