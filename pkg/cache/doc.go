// Package cache provides a Redis-backed cache for paginated API responses.
//
// The client consults the cache before issuing a page request and stores
// successful page bodies afterwards. Entries expire after a fixed TTL chosen
// by the caller; the cache is an optimization for repeated runs against the
// same API and never a source of partial-run state.
//
// A BodyValidator installed with WithValidator keeps unusable pages out of
// the cache: a body that fails it is refused by Set, and a stored body that
// fails it is evicted by Get and reported as a miss.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient, cache.WithValidator(func(body []byte) error {
//		if !json.Valid(body) {
//			return errors.New("not json")
//		}
//		return nil
//	}))
//
//	key := cache.CacheKey{
//		URL:         "https://api.example.com/v1/suppliers",
//		QueryParams: url.Values{"page": []string{"1"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the API, then:
//		_ = manager.Set(ctx, key, cache.NewEntry(body, 200, 10*time.Minute))
//	}
//
// # Metrics
//
//   - extract_cache_hits_total - Cache hits
//   - extract_cache_misses_total - Cache misses
//   - extract_cache_stored_bytes_total - Bytes written
//   - extract_cache_rejected_total{operation} - Bodies refused or evicted by validation
//   - extract_cache_errors_total{operation} - Cache operation errors
package cache
