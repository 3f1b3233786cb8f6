// Package tagdb provides the read-only tag database used for autocomplete and
// alias resolution.
//
// A Database is built once, usually from a booru-style CSV export with rows of
//
//	name,category,description,"alias1,alias2"
//
// and is then shared by pointer. Nothing mutates it after construction, so it
// is safe for concurrent use without locking.
//
// Matching is case-insensitive and treats spaces as underscores, so typing
// "long hair" finds "long_hair".
package tagdb
