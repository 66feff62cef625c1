package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested page is not cached
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the stored entry could not be decoded
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrRejectedBody indicates a page body failed validation and was not stored
	ErrRejectedBody = errors.New("page body rejected")
)

// BodyValidator checks that a page body is usable before it enters the cache
// and again when it is served from it.
type BodyValidator func(body []byte) error

// Option configures a Manager.
type Option func(*Manager)

// WithValidator installs a page body check.
// Bodies that fail it are never stored, and stored bodies that fail it are evicted.
func WithValidator(validate BodyValidator) Option {
	return func(m *Manager) {
		m.validate = validate
	}
}

// Manager is the Redis-backed page cache.
type Manager struct {
	redis    *redis.Client
	validate BodyValidator
}

// NewManager creates a page cache on redisClient.
func NewManager(redisClient *redis.Client, opts ...Option) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	m := &Manager{redis: redisClient}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the cached page for key.
// Missing, expired and invalid pages all report ErrCacheMiss; the latter two are evicted.
// A stored value that is not an entry at all returns ErrInvalidEntry.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	raw, err := m.redis.Get(ctx, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}
	if err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	// Redis expiry and entry expiry can drift by clock skew
	if entry.IsExpired() {
		m.evict(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	if err := m.check(entry.Data); err != nil {
		CacheRejected.WithLabelValues("get").Inc()
		m.evict(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.Inc()
	return &entry, nil
}

// Set stores a page until entry.Expires.
// Expired entries are skipped silently; non-2xx or invalid bodies return ErrRejectedBody.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	if entry.StatusCode < 200 || entry.StatusCode >= 300 {
		CacheRejected.WithLabelValues("set").Inc()
		return fmt.Errorf("%w: status %d", ErrRejectedBody, entry.StatusCode)
	}
	if err := m.check(entry.Data); err != nil {
		CacheRejected.WithLabelValues("set").Inc()
		return fmt.Errorf("%w: %v", ErrRejectedBody, err)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheStoredBytes.Add(float64(len(data)))
	return nil
}

// Delete removes a cached page.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (m *Manager) check(body []byte) error {
	if m.validate == nil {
		return nil
	}
	return m.validate(body)
}

func (m *Manager) evict(ctx context.Context, key CacheKey) {
	_ = m.Delete(ctx, key)
}
