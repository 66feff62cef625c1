// Package metrics exposes the Prometheus registry used by the extractor and
// serves it over HTTP.
// All metrics are defined in their respective packages (client, cache,
// pagination, sink) to maintain modularity and avoid circular dependencies.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the extractor.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// ReadyFunc reports whether the process dependencies are reachable.
type ReadyFunc func(ctx context.Context) error

// NewMux returns a handler serving /metrics, /health and /ready.
// A nil ready is treated as always ready.
func NewMux(ready ReadyFunc) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(ready))
	return mux
}

// NewServer returns an HTTP server for NewMux on addr. The caller starts it
// with ListenAndServe and stops it with Shutdown.
func NewServer(addr string, ready ReadyFunc) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewMux(ready),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(ready ReadyFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := ready(ctx); err != nil {
				http.Error(w, fmt.Sprintf("not ready: %v", err), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - extract_cache_hits_total (Counter): Page responses served from Redis
//   - extract_cache_misses_total (Counter): Page responses not found in Redis
//   - extract_cache_stored_bytes_total (Counter): Bytes written to Redis
//   - extract_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - extract_http_requests_total{status} (Counter): Total requests by HTTP status
//   - extract_http_request_duration_seconds (Histogram): Request duration
//   - extract_http_errors_total{class} (Counter): Errors by class (client, server, network)
//
// Retry Metrics (pkg/client):
//   - extract_http_retries_total{error_class} (Counter): Retry attempts by error class
//   - extract_http_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - extract_http_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Pagination Metrics (pkg/pagination):
//   - extract_pages_total{outcome} (Counter): Page fetches by outcome (ok, empty, failed)
//   - extract_page_fetch_errors_total{error_class} (Counter): Failed page fetches by class
//   - extract_records_flattened_total (Counter): Records flattened into datasets
//   - extract_download_duration_seconds (Histogram): Duration of a full download
//
// Sink Metrics (pkg/sink):
//   - extract_sink_lines_written_total (Counter): NDJSON lines appended
//   - extract_sink_bytes_written_total (Counter): Bytes appended
//
// Run Metrics (pkg/extractor):
//   - extract_runs_total{result} (Counter): Runs by result (ok, partial, failed)
//   - extract_last_run_records (Gauge): Records saved by the most recent run
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(extract_cache_hits_total[5m])) /
//   (sum(rate(extract_cache_hits_total[5m])) + sum(rate(extract_cache_misses_total[5m])))
//
//   # Failed Page Ratio
//   rate(extract_pages_total{outcome="failed"}[1h]) / rate(extract_pages_total[1h])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(extract_http_request_duration_seconds_bucket[5m]))
