// Package store persists image tags between runs.
//
// Two backends are provided:
//   - SidecarStore writes one "<image>.txt" file next to every image,
//     holding its tags comma separated ("a, b, c"). This is the format most
//     training tools read.
//   - SQLiteStore keeps every image's tags in one SQLite database. The
//     schema is managed with embedded goose migrations.
//
// Both implement Store. Save writes a full snapshot; Load returns every
// stored entry; Tags answers for a single path and is used while scanning.
package store
