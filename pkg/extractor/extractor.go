// Package extractor composes one download run: fetch every page, flatten the
// records, append them to the output file and report a summary.
package extractor

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/paged-extract/pkg/cache"
	"github.com/Sternrassler/paged-extract/pkg/client"
	"github.com/Sternrassler/paged-extract/pkg/config"
	"github.com/Sternrassler/paged-extract/pkg/logging"
	"github.com/Sternrassler/paged-extract/pkg/pagination"
	"github.com/Sternrassler/paged-extract/pkg/sink"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extract_runs_total",
		Help: "Extractor runs by result (ok, partial, failed)",
	}, []string{"result"})

	lastRunRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "extract_last_run_records",
		Help: "Records saved by the most recent run",
	})
)

// Summary describes a finished run.
type Summary struct {
	RunID        string
	TotalPages   int
	PagesFetched int
	FailedPages  []int
	Records      int
	Output       string
	Duration     time.Duration
}

// Options carries optional collaborators.
type Options struct {
	// Redis enables the page response cache
	Redis *redis.Client

	// OnProgress receives page progress of every run
	OnProgress pagination.ProgressFunc
}

// Extractor runs paginated downloads for one configuration.
type Extractor struct {
	cfg         config.Config
	client      *client.Client
	coordinator *pagination.Coordinator
}

// New validates cfg and wires the HTTP client, page fetcher and coordinator.
func New(cfg config.Config, opts Options) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clientCfg := client.DefaultConfig(cfg.UserAgent)
	clientCfg.Timeout = cfg.Timeout.Std()
	clientCfg.Retry = client.RetryConfig{
		MaxAttempts:    cfg.Retry.Attempts,
		InitialBackoff: cfg.Retry.Backoff.Std(),
		MaxBackoff:     cfg.Retry.MaxBackoff.Std(),
	}
	params := cfg.APIParams()
	if opts.Redis != nil {
		clientCfg.Cache = cache.NewManager(opts.Redis, cache.WithValidator(pagination.EnvelopeValidator(params)))
		clientCfg.CacheTTL = cfg.Redis.CacheTTL.Std()
	}

	httpClient, err := client.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}

	fetcher := pagination.NewHTTPFetcher(httpClient, params)
	coordinator := pagination.NewCoordinator(fetcher, pagination.Config{
		MaxConcurrency: cfg.Workers,
		PageSize:       cfg.PageSize,
		KeyPrefix:      cfg.KeyPrefix,
		OnProgress:     opts.OnProgress,
	})

	return &Extractor{
		cfg:         cfg,
		client:      httpClient,
		coordinator: coordinator,
	}, nil
}

// Run downloads the whole dataset and appends it to the output file.
//
// Failed pages do not fail the run; they are listed in the summary. A run
// interrupted by ctx writes nothing and returns the context error, so a later
// run never sees a partial dataset appended. Output errors are returned as is
// (sink.ErrCreateDir, sink.ErrWrite).
func (e *Extractor) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	summary := Summary{
		RunID:  uuid.NewString(),
		Output: e.cfg.Output,
	}
	runLogger := logging.WithRun(log.Logger, summary.RunID)
	logger := runLogger.With().Str("component", "extractor").Logger()

	logger.Info().
		Str("base_url", e.cfg.URL).
		Str("output", e.cfg.Output).
		Int("workers", e.cfg.Workers).
		Msg("Run started")

	dataset, err := e.coordinator.WithLogger(runLogger).DownloadAll(ctx, e.cfg.URL)

	summary.TotalPages = dataset.TotalPages()
	summary.PagesFetched = dataset.PagesFetched()
	summary.FailedPages = dataset.FailedPages()

	if err != nil {
		summary.Duration = time.Since(start)
		runsTotal.WithLabelValues("failed").Inc()
		logger.Warn().
			Err(err).
			Int("records", dataset.Len()).
			Msg("Run interrupted, nothing written")
		return summary, fmt.Errorf("download %s: %w", e.cfg.URL, err)
	}

	if err := sink.AppendAll(e.cfg.Output, dataset.Records()); err != nil {
		summary.Duration = time.Since(start)
		runsTotal.WithLabelValues("failed").Inc()
		logger.Error().
			Err(err).
			Str("path", e.cfg.Output).
			Msg("Failed to save records")
		return summary, err
	}

	summary.Records = dataset.Len()
	summary.Duration = time.Since(start)

	result := "ok"
	if len(summary.FailedPages) > 0 {
		result = "partial"
	}
	runsTotal.WithLabelValues(result).Inc()
	lastRunRecords.Set(float64(summary.Records))

	logger.Info().
		Int("total_pages", summary.TotalPages).
		Int("pages_fetched", summary.PagesFetched).
		Ints("failed_pages", summary.FailedPages).
		Int("records", summary.Records).
		Str("path", summary.Output).
		Dur("duration", summary.Duration).
		Msg("Run complete")

	return summary, nil
}

// Close releases idle HTTP connections.
func (e *Extractor) Close() error {
	return e.client.Close()
}
