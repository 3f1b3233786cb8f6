// Package dataset is the in-memory model of an image dataset: one Record per
// image file with its ordered tag list, content hash and thumbnail state.
//
// [Index] owns every record and is the only writer. Two derived structures
// are kept in step with it while its write lock is held:
//
//   - [TagFrequencyIndex] counts tag usage and answers AND searches.
//   - [DuplicateDetector] groups records that share a content hash.
//
// Readers always receive copies, so a record is never observed with a tag
// list half-way through an edit. Bulk edits lock one record at a time:
// each record moves from its old to its new state atomically, but a reader
// may see some records edited and others not yet.
//
// Lock order is Index, then TagFrequencyIndex or DuplicateDetector. Neither
// derived structure calls back into the index while holding its own lock.
package dataset
