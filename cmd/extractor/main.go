package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/paged-extract/pkg/config"
	"github.com/Sternrassler/paged-extract/pkg/extractor"
	"github.com/Sternrassler/paged-extract/pkg/logging"
	"github.com/Sternrassler/paged-extract/pkg/metrics"
	"github.com/Sternrassler/paged-extract/pkg/progress"
	"github.com/Sternrassler/paged-extract/pkg/sink"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitInvalidArgs  = 2
	ExitCacheError   = 3
	ExitOutputError  = 4
	ExitInterrupted  = 5
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("extractor", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "YAML config file")
	var override config.Config
	fs.StringVar(&override.URL, "url", "", "Base URL of the paginated API")
	fs.StringVar(&override.Output, "output", "", "NDJSON output file (appended to)")
	fs.IntVar(&override.PageSize, "page-size", 0, "Records per page (max 500)")
	fs.IntVar(&override.Workers, "workers", 0, "Concurrent page fetches")
	fs.StringVar(&override.KeyPrefix, "key-prefix", "", "Prefix for every flattened key")
	fs.StringVar(&override.Redis.URL, "redis", "", "Redis URL for the page response cache (redis://host:6379/0)")
	fs.StringVar(&override.Schedule, "schedule", "", "Cron expression; run repeatedly instead of once")
	fs.StringVar(&override.MetricsAddr, "metrics-addr", "", "Serve /metrics, /health and /ready on this address")
	fs.StringVar(&override.Log.Level, "log-level", "", "Log level (debug, info, warn, error)")
	fs.BoolVar(&override.Log.Pretty, "pretty", false, "Human-readable logs")

	fs.Usage = func() {
		fmt.Fprintln(stderr, `Usage: extractor [options]

Download every page of a paginated JSON API, flatten each record and
append the records to an NDJSON file.

Settings are read from -config, then EXTRACT_* environment variables,
then these flags.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		return ExitInvalidArgs
	}

	cfg, err := loadConfig(*configPath, override)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	level, _ := logging.ParseLevel(cfg.Log.Level)
	logging.Setup(logging.Config{Level: level, Pretty: cfg.Log.Pretty, Output: stderr})
	logger := logging.NewLogger("main")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = connectRedis(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to connect to Redis")
			return ExitCacheError
		}
		defer redisClient.Close()
		logger.Info().Msg("Connected to Redis, page cache enabled")
	}

	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr, readyCheck(redisClient))
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("Starting metrics server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	reporter := progress.NewReporter(progress.Options{Output: stdout})
	ex, err := extractor.New(cfg, extractor.Options{
		Redis:      redisClient,
		OnProgress: reporter.Report,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitGeneralError
	}
	defer ex.Close()

	runOnce := func(ctx context.Context) error {
		summary, err := ex.Run(ctx)
		reporter.Finish()
		if err != nil {
			return err
		}
		if len(summary.FailedPages) > 0 {
			fmt.Fprintf(stdout, "Skipped %d failed page(s): %v\n", len(summary.FailedPages), summary.FailedPages)
		}
		fmt.Fprintf(stdout, "Download complete. Total records saved: %d\n", summary.Records)
		return nil
	}

	if cfg.Schedule != "" {
		stop, err := extractor.NewScheduler(cfg.Schedule, runOnce).Start(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return ExitInvalidArgs
		}
		<-ctx.Done()
		stop()
		return ExitSuccess
	}

	if err := runOnce(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	return ExitSuccess
}

// loadConfig applies the config file, then the environment, then flags.
func loadConfig(path string, override config.Config) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		cfg, err = config.LoadFromFile(path)
		if err != nil {
			return cfg, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return cfg, err
	}
	cfg = cfg.Merge(override)
	return cfg, cfg.Validate()
}

func connectRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping %s: %w", opts.Addr, err)
	}
	return client, nil
}

func readyCheck(redisClient *redis.Client) metrics.ReadyFunc {
	if redisClient == nil {
		return nil
	}
	return func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		log.Warn().Msg("Interrupted, no records written")
		return ExitInterrupted
	case errors.Is(err, sink.ErrCreateDir), errors.Is(err, sink.ErrWrite):
		return ExitOutputError
	default:
		return ExitGeneralError
	}
}
