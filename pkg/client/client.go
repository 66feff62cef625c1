// Package client provides the HTTP transport used to read paginated APIs:
// GET with query parameters, error classification, retry with backoff
// and an optional Redis response cache.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/paged-extract/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extract_http_requests_total",
		Help: "Total API requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "extract_http_request_duration_seconds",
		Help:    "API request duration in seconds, retries included",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extract_http_errors_total",
		Help: "Total API errors by class",
	}, []string{"class"})
)

// Client performs GET requests against a JSON API.
type Client struct {
	httpClient *http.Client
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// User-Agent header sent with every request
	UserAgent string

	// Timeout per HTTP attempt (transport default policy)
	Timeout time.Duration

	// Retry policy for server and network errors
	Retry RetryConfig

	// Cache is optional; nil disables response caching
	Cache *cache.Manager

	// CacheTTL is how long cached responses stay fresh (required with Cache)
	CacheTTL time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Cache != nil && cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("cache_ttl must be > 0 when a cache is configured (got %s)", cfg.CacheTTL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "http-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache:  cfg.Cache,
		config: cfg,
		logger: logger,
	}, nil
}

// Get issues a GET request for baseURL with query merged into its query string
// and returns the body of a 2xx response.
// Non-2xx statuses and transport failures return an *HTTPError (possibly
// wrapped in ErrRetryExhausted).
func (c *Client) Get(ctx context.Context, baseURL string, query url.Values) ([]byte, error) {
	target, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	merged := target.Query()
	for key, values := range query {
		merged[key] = values
	}
	target.RawQuery = merged.Encode()

	startTime := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(startTime).Seconds())
	}()

	cacheKey := cache.CacheKey{
		URL:         baseURLWithoutQuery(target),
		QueryParams: merged,
	}

	if c.cache != nil {
		entry, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			c.logger.Debug().
				Str("url", target.String()).
				Time("cached_at", entry.CachedAt).
				Msg("Serving response from cache")
			return entry.Data, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("url", target.String()).Msg("Cache get error")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("url", target.String()).
		Msg("Executing request")

	var body []byte
	var statusCode int

	retryErr := retryWithBackoff(ctx, c.config.Retry, func() (ErrorClass, error) {
		resp, reqErr := c.httpClient.Do(req)
		if reqErr != nil {
			c.logger.Error().Err(reqErr).Str("url", target.String()).Msg("HTTP request failed")
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues("network_error").Inc()
			return ErrorClassNetwork, &HTTPError{
				ErrorClass: ErrorClassNetwork,
				Message:    "request failed",
				Err:        reqErr,
			}
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			errClass := classifyStatus(resp.StatusCode)
			errorsTotal.WithLabelValues(string(errClass)).Inc()

			c.logger.Warn().
				Str("url", target.String()).
				Int("status", resp.StatusCode).
				Str("error_class", string(errClass)).
				Msg("API request error")

			return errClass, &HTTPError{
				StatusCode: resp.StatusCode,
				ErrorClass: errClass,
				Message:    resp.Status,
			}
		}

		if readErr != nil {
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			return ErrorClassNetwork, &HTTPError{
				StatusCode: resp.StatusCode,
				ErrorClass: ErrorClassNetwork,
				Message:    "read response body",
				Err:        readErr,
			}
		}

		body = data
		statusCode = resp.StatusCode
		return "", nil
	})
	if retryErr != nil {
		return nil, retryErr
	}

	if c.cache != nil {
		err := c.cache.Set(ctx, cacheKey, cache.NewEntry(body, statusCode, c.config.CacheTTL))
		switch {
		case errors.Is(err, cache.ErrRejectedBody):
			c.logger.Warn().Err(err).Str("url", target.String()).Msg("Response not cached")
		case err != nil:
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		default:
			c.logger.Debug().
				Str("url", target.String()).
				Dur("ttl", c.config.CacheTTL).
				Msg("Cached response")
		}
	}

	return body, nil
}

func baseURLWithoutQuery(u *url.URL) string {
	stripped := *u
	stripped.RawQuery = ""
	stripped.Fragment = ""
	return stripped.String()
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
