// Package backup copies a dataset into timestamped snapshot directories.
//
// Each snapshot holds a copy of every image, laid out as it is under the
// dataset root, the image's tags as a "<image>.txt" file, and a
// manifest.json describing the snapshot. Snapshots are never modified after
// they are written; Prune removes the oldest ones.
package backup
