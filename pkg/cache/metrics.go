package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks page responses served from Redis
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "extract_cache_hits_total",
			Help: "Total number of page cache hits",
		},
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "extract_cache_misses_total",
			Help: "Total number of page cache misses",
		},
	)

	// CacheStoredBytes tracks bytes written to the cache
	CacheStoredBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "extract_cache_stored_bytes_total",
			Help: "Total bytes of page responses written to the cache",
		},
	)

	// CacheRejected tracks page bodies refused by the validator
	CacheRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extract_cache_rejected_total",
			Help: "Total number of page bodies refused or evicted by validation",
		},
		[]string{"operation"}, // "get", "set"
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extract_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
