// Package cache provides the shared key/value cache used for upstream
// results, backed by Redis.
//
// Entries carry their own expiry; Redis TTLs are set from it so stale data
// is dropped by the store as well as on read. A Manager built with Disabled
// never reaches a store: Get always misses and writes are dropped, so
// callers run unchanged when no Redis is configured.
//
// # Basic Usage
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.CacheKey{
//		Namespace:   "search",
//		Endpoint:    "/sbdb_query.api",
//		Fingerprint: req.Fingerprint(),
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from upstream, then:
//		_ = manager.Set(ctx, key, cache.NewEntry(data, ttl, time.Now()))
//	}
//
// # Metrics
//
//   - astro_cache_hits_total{namespace}
//   - astro_cache_misses_total{namespace}
//   - astro_cache_errors_total{operation}
package cache
