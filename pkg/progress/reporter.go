// Package progress renders page download progress on a terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/Sternrassler/paged-extract/pkg/pagination"
)

// Options configures the progress reporter.
type Options struct {
	// Output is where to write progress output.
	// Default: os.Stdout
	Output io.Writer

	// Prefix is prepended to every line.
	// Default: "[extract]"
	Prefix string
}

// Reporter prints the discovered page count once, then rewrites a single
// "Pages completed" line as pages finish.
type Reporter struct {
	opts Options

	mu        sync.Mutex
	startTime time.Time
	started   bool
	last      pagination.Progress
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Prefix == "" {
		opts.Prefix = "[extract]"
	}
	return &Reporter{opts: opts}
}

// Report renders p. It matches pagination.ProgressFunc.
func (r *Reporter) Report(p pagination.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		r.started = true
		r.startTime = time.Now()
		fmt.Fprintf(r.opts.Output, "%s Total pages to download: %d\n", r.opts.Prefix, p.TotalPages)
	}

	r.last = p
	fmt.Fprintf(r.opts.Output, "\r%s Pages completed: %d/%d", r.opts.Prefix, p.PagesCompleted, p.TotalPages)
}

// Finish terminates the progress line and prints the elapsed time.
// It is a no-op when nothing was reported since the last Finish. The next
// Report after Finish starts a new header, so one Reporter serves many runs.
func (r *Reporter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return
	}
	r.started = false

	fmt.Fprintf(r.opts.Output, "\n%s Done in %s (%d/%d pages)\n",
		r.opts.Prefix,
		formatDuration(time.Since(r.startTime)),
		r.last.PagesCompleted,
		r.last.TotalPages,
	)
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}
