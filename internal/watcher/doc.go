// Package watcher keeps a dataset in step with its directory while the
// server runs.
//
// Every non-hidden directory under the root is watched with fsnotify. New or
// rewritten images are ingested once their events settle; removed or
// renamed images are dropped from the index. Directories created later are
// added to the watch set and any images already inside them are ingested.
package watcher
