// Package thumbcache holds decoded thumbnails in memory under a byte budget.
//
// Entries are evicted least-recently-used first, synchronously on Insert, so
// the sum of cached bitmap sizes never exceeds the configured capacity.
// Misses are answered with Pending and turned into decode requests on a
// bounded queue that [Cache.Run] workers drain through a [Loader].
//
// Every state change of a thumbnail (loading, ready, failed, evicted) is
// reported to a [StateSink], normally the dataset index. The sink is always
// called after the cache lock has been released.
package thumbcache
