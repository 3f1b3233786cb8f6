// Package library wires the dataset engine together.
//
// A Library owns one dataset.Index, the thumbnail cache, the scan pipeline
// and the optional persistence collaborators (tag store, backup
// snapshotter, tag alias database). It is the scan pipeline's sink and the
// cache's loader, and exposes the operations used by the HTTP API and the
// command line.
package library
