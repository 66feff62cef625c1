package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces all page cache keys in Redis.
const KeyPrefix = "extract"

// CacheKey identifies one cached API response.
type CacheKey struct {
	// URL is the request URL without its query string
	// (e.g. "https://api.example.com/v1/suppliers")
	URL string

	// QueryParams are the request query parameters (e.g. {"page": "3"})
	QueryParams url.Values
}

// String generates a deterministic cache key string.
// Format: extract:host/path:param1=val1:param2=val2
//
// Example:
//
//	extract:api.example.com/v1/suppliers:activeOnly=true:page=3:pageSize=500
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	if target := normalizeURL(k.URL); target != "" {
		parts = append(parts, target)
	}

	// Query params sorted for determinism
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(k.QueryParams[key], ",")))
		}
	}

	return strings.Join(parts, ":")
}

// normalizeURL drops the scheme and surrounding slashes so that
// http/https and trailing-slash variants share a key.
func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.Trim(raw, "/")
	}
	return strings.Trim(u.Host+u.Path, "/")
}
