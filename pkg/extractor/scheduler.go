package extractor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RunFunc is one scheduled job.
type RunFunc func(ctx context.Context) error

// Scheduler runs a job on a cron expression. A tick that fires while the
// previous run is still going is skipped.
type Scheduler struct {
	expr    string
	run     RunFunc
	logger  zerolog.Logger
	cron    *cron.Cron
	parent  context.Context
	mu      sync.Mutex
	running bool
}

// NewScheduler builds a scheduler for a standard five-field cron expression
// or a descriptor such as "@hourly" or "@every 30m".
func NewScheduler(expr string, run RunFunc) *Scheduler {
	return &Scheduler{
		expr:   strings.TrimSpace(expr),
		run:    run,
		logger: log.With().Str("component", "scheduler").Logger(),
	}
}

// Start registers the job and starts the cron loop. The returned stop
// function waits for a running job to finish; it is also called when
// parent is cancelled.
func (s *Scheduler) Start(parent context.Context) (stop func(), err error) {
	s.parent = parent
	c := cron.New()
	id, err := c.AddFunc(s.expr, s.runOnce)
	if err != nil {
		return nil, fmt.Errorf("register cron job %q: %w", s.expr, err)
	}
	s.cron = c
	c.Start()

	s.logger.Info().
		Str("cron", s.expr).
		Time("next", c.Entry(id).Next).
		Msg("Scheduler started")

	var once sync.Once
	stop = func() {
		once.Do(func() {
			ctx := s.cron.Stop()
			<-ctx.Done()
			s.logger.Info().Msg("Scheduler stopped")
		})
	}

	go func() {
		<-parent.Done()
		stop()
	}()

	return stop, nil
}

func (s *Scheduler) runOnce() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn().Msg("Previous run still in progress, skipping schedule")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx := s.parent
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		s.logger.Info().Msg("Scheduler context cancelled, skipping run")
		return
	}

	start := time.Now()
	if err := s.run(ctx); err != nil {
		s.logger.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Scheduled run failed")
		return
	}
	s.logger.Info().
		Dur("duration", time.Since(start)).
		Msg("Scheduled run completed")
}
