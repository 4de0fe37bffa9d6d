package feed

import "sync/atomic"

var (
	cacheHitsTotal   atomic.Int64
	cacheMissesTotal atomic.Int64
)

func incrementCacheHit() {
	cacheHitsTotal.Add(1)
}

func incrementCacheMiss() {
	cacheMissesTotal.Add(1)
}

// CacheStats returns total cache hits and misses across the feed caches.
func CacheStats() (hits, misses int64) {
	return cacheHitsTotal.Load(), cacheMissesTotal.Load()
}
