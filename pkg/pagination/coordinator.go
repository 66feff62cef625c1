package pagination

import (
	"context"
	"sync"
	"time"

	"github.com/Sternrassler/paged-extract/pkg/flatten"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for pagination.
var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extract_pages_total",
		Help: "Total page fetches by outcome (ok, empty, failed)",
	}, []string{"outcome"})

	fetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extract_page_fetch_errors_total",
		Help: "Total failed page fetches by error class",
	}, []string{"error_class"})

	recordsFlattenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "extract_records_flattened_total",
		Help: "Total records flattened into the dataset",
	})

	downloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "extract_download_duration_seconds",
		Help:    "Duration of a full paginated download",
		Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800},
	})
)

// Progress is emitted once discovery is done and after every later page completes.
type Progress struct {
	PagesCompleted int
	TotalPages     int
}

// ProgressFunc receives progress notifications on the coordinator goroutine.
type ProgressFunc func(Progress)

// Config holds coordinator configuration.
type Config struct {
	// MaxConcurrency is the maximum number of in-flight page fetches
	MaxConcurrency int

	// PageSize requested per page (capped at MaxPageSize)
	PageSize int

	// KeyPrefix is prepended to every flattened key
	KeyPrefix string

	// OnProgress is optional
	OnProgress ProgressFunc
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 5,
		PageSize:       MaxPageSize,
	}
}

// Coordinator discovers the page count from page 1 and fetches the
// remaining pages through a bounded worker pool.
type Coordinator struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// NewCoordinator creates a new coordinator.
func NewCoordinator(fetcher PageFetcher, config Config) *Coordinator {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 5
	}
	config.PageSize = ClampPageSize(config.PageSize)

	return &Coordinator{
		fetcher: fetcher,
		config:  config,
		logger:  log.With().Str("component", "coordinator").Logger(),
	}
}

// WithLogger returns a copy of the coordinator that logs through logger.
func (c *Coordinator) WithLogger(logger zerolog.Logger) *Coordinator {
	clone := *c
	clone.logger = logger.With().Str("component", "coordinator").Logger()
	return &clone
}

// DownloadAll fetches every page of baseURL and returns the flattened records.
//
// Page 1 fixes the total page count (its remaining pages + 1); remaining-page
// values reported by later pages are ignored. Failed pages are logged and
// skipped. The returned error is non-nil only when ctx ended and pages were
// lost to it, in which case the Dataset holds what was collected so far.
func (c *Coordinator) DownloadAll(ctx context.Context, baseURL string) (*Dataset, error) {
	start := time.Now()
	defer func() {
		downloadDuration.Observe(time.Since(start).Seconds())
	}()

	dataset := NewDataset()

	first := c.fetcher.FetchPage(ctx, baseURL, 1, c.config.PageSize)
	c.collect(dataset, first)

	if len(first.Records) == 0 {
		c.logger.Info().
			Str("base_url", baseURL).
			Bool("failed", first.Failed()).
			Msg("First page empty, nothing to download")
		return dataset, ctx.Err()
	}

	totalPages := first.RemainingPages + 1
	dataset.totalPages = totalPages

	c.logger.Info().
		Str("base_url", baseURL).
		Int("total_pages", totalPages).
		Int("workers", c.config.MaxConcurrency).
		Msg("Starting parallel page fetch")

	c.report(1, totalPages)

	if totalPages == 1 {
		c.logger.Info().
			Int("records", dataset.Len()).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete (single page)")
		return dataset, nil
	}

	pageQueue := make(chan int)
	pageResults := make(chan PageResult, c.config.MaxConcurrency)

	// Fill page queue (page 1 already fetched)
	go func() {
		defer close(pageQueue)
		for page := 2; page <= totalPages; page++ {
			select {
			case pageQueue <- page:
			case <-ctx.Done():
				return
			}
		}
	}()

	workers := c.config.MaxConcurrency
	if workers > totalPages-1 {
		workers = totalPages - 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go c.worker(ctx, baseURL, pageQueue, pageResults, &wg, i)
	}

	go func() {
		wg.Wait()
		close(pageResults)
	}()

	// Only this goroutine touches the dataset
	completed := 1
	for result := range pageResults {
		c.collect(dataset, result)
		completed++
		c.report(completed, totalPages)
	}

	c.logger.Info().
		Int("pages", completed).
		Int("total", totalPages).
		Int("failed_pages", len(dataset.FailedPages())).
		Int("records", dataset.Len()).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	// Pages skipped or failed after cancellation make the dataset partial
	if err := ctx.Err(); err != nil && (completed < totalPages || len(dataset.FailedPages()) > 0) {
		return dataset, err
	}
	return dataset, nil
}

// worker fetches pages from the queue and hands results to the collector.
func (c *Coordinator) worker(ctx context.Context, baseURL string, pageQueue <-chan int, results chan<- PageResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for pageNum := range pageQueue {
		results <- c.fetcher.FetchPage(ctx, baseURL, pageNum, c.config.PageSize)
		pagesProcessed++
	}

	c.logger.Debug().
		Int("worker_id", workerID).
		Int("pages_processed", pagesProcessed).
		Msg("Worker completed")
}

// collect flattens a successful batch into the dataset or records the failure.
func (c *Coordinator) collect(dataset *Dataset, result PageResult) {
	if result.Err != nil {
		event := c.logger.Warn().
			Err(result.Err).
			Int("page", result.PageNumber)
		if fetchErr, ok := result.Err.(*FetchError); ok {
			event = event.Str("error_class", string(fetchErr.Class()))
		}
		event.Msg("Page fetch failed, skipping")
		dataset.MarkFailed(result.PageNumber)
		return
	}

	if len(result.Records) == 0 {
		return
	}

	batch := make([]*flatten.FlatRecord, len(result.Records))
	for i, r := range result.Records {
		batch[i] = flatten.Flatten(r, c.config.KeyPrefix)
	}
	dataset.Append(batch)
	recordsFlattenedTotal.Add(float64(len(batch)))
}

func (c *Coordinator) report(completed, total int) {
	if c.config.OnProgress != nil {
		c.config.OnProgress(Progress{PagesCompleted: completed, TotalPages: total})
	}
}
