// Package sink persists flattened records as newline-delimited JSON.
package sink

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

var (
	// ErrCreateDir is returned when the parent directory cannot be created.
	ErrCreateDir = errors.New("create output directory")

	// ErrWrite is returned when records cannot be encoded or appended.
	ErrWrite = errors.New("write output file")
)

var (
	linesWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "extract_sink_lines_written_total",
		Help: "Total NDJSON lines appended to output files",
	})

	bytesWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "extract_sink_bytes_written_total",
		Help: "Total bytes appended to output files",
	})
)

// AppendAll appends one JSON line per record to path, in order, creating the
// parent directory if needed. Existing content is never truncated, so repeated
// calls accumulate; managing the file between runs is up to the caller.
//
// All lines are encoded before the file is opened and written with a single
// append; an encoding failure leaves the file untouched. An empty batch still
// creates the directory and the file, so directory errors surface either way.
func AppendAll[T any](path string, records []T) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("%w: encode record %d: %v", ErrWrite, i, err)
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w %s: %v", ErrCreateDir, dir, err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrWrite, path, err)
	}

	if len(records) == 0 {
		if err := f.Close(); err != nil {
			return fmt.Errorf("%w: close %s: %v", ErrWrite, path, err)
		}
		return nil
	}

	n, err := f.Write(buf.Bytes())
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: append to %s: %v", ErrWrite, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrWrite, path, err)
	}

	linesWrittenTotal.Add(float64(len(records)))
	bytesWrittenTotal.Add(float64(n))

	log.Debug().
		Str("path", path).
		Int("lines", len(records)).
		Int("bytes", n).
		Msg("Appended records")

	return nil
}
