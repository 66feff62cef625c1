package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Sternrassler/paged-extract/pkg/client"
	"github.com/Sternrassler/paged-extract/pkg/record"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MaxPageSize is the largest page size the API accepts.
const MaxPageSize = 500

// MaxRemainingPages caps the remaining-page count read from an envelope.
const MaxRemainingPages = 1 << 20

// ErrMalformedBody indicates the response was not a usable page envelope.
var ErrMalformedBody = errors.New("malformed page body")

// PageFetcher fetches a single page.
// Implementations never return a Go error: failures are carried in PageResult.Err
// together with an empty batch, so one bad page cannot abort a run.
type PageFetcher interface {
	FetchPage(ctx context.Context, baseURL string, pageNum, pageSize int) PageResult
}

// PageResult represents the result of fetching a single page.
type PageResult struct {
	PageNumber     int
	Records        []record.Value
	RemainingPages int
	Err            error // *FetchError when the page failed
}

// Failed reports whether the page fetch failed.
func (r PageResult) Failed() bool {
	return r.Err != nil
}

// FetchError describes a page that could not be fetched or parsed.
type FetchError struct {
	PageNumber int
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch page %d: %v", e.PageNumber, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Class returns the failure class for logs and metrics.
func (e *FetchError) Class() client.ErrorClass {
	if errors.Is(e.Err, ErrMalformedBody) {
		return client.ErrorClassDecode
	}
	return client.ClassOf(e.Err)
}

// Getter is the transport contract: GET baseURL with query, return the 2xx body.
// *client.Client implements it.
type Getter interface {
	Get(ctx context.Context, baseURL string, query url.Values) ([]byte, error)
}

// APIParams names the query parameters and envelope fields of the API.
type APIParams struct {
	PageParam      string
	PageSizeParam  string
	ActiveParam    string // sent with the literal "true"; empty omits the filter
	ResultsField   string
	RemainingField string
}

// DefaultAPIParams returns the parameter names of the documented API.
func DefaultAPIParams() APIParams {
	return APIParams{
		PageParam:      "page",
		PageSizeParam:  "pageSize",
		ActiveParam:    "activeOnly",
		ResultsField:   "results",
		RemainingField: "remainingPages",
	}
}

// HTTPFetcher fetches pages through a Getter.
type HTTPFetcher struct {
	getter Getter
	params APIParams
	logger zerolog.Logger
}

// NewHTTPFetcher creates a PageFetcher on top of getter.
func NewHTTPFetcher(getter Getter, params APIParams) *HTTPFetcher {
	return &HTTPFetcher{
		getter: getter,
		params: params,
		logger: log.With().Str("component", "page-fetcher").Logger(),
	}
}

// FetchPage fetches and parses one page.
// An empty results array ends the data regardless of the reported remaining pages.
func (f *HTTPFetcher) FetchPage(ctx context.Context, baseURL string, pageNum, pageSize int) PageResult {
	query := url.Values{}
	query.Set(f.params.PageParam, strconv.Itoa(pageNum))
	query.Set(f.params.PageSizeParam, strconv.Itoa(ClampPageSize(pageSize)))
	if f.params.ActiveParam != "" {
		query.Set(f.params.ActiveParam, "true")
	}

	body, err := f.getter.Get(ctx, baseURL, query)
	if err != nil {
		return f.failed(pageNum, err)
	}

	records, remaining, err := decodeEnvelope(f.params, body)
	if err != nil {
		return f.failed(pageNum, err)
	}

	if len(records) == 0 {
		pagesTotal.WithLabelValues("empty").Inc()
		return PageResult{PageNumber: pageNum}
	}

	pagesTotal.WithLabelValues("ok").Inc()
	f.logger.Debug().
		Int("page", pageNum).
		Int("records", len(records)).
		Int("remaining_pages", remaining).
		Msg("Page fetched")

	return PageResult{
		PageNumber:     pageNum,
		Records:        records,
		RemainingPages: remaining,
	}
}

func (f *HTTPFetcher) failed(pageNum int, err error) PageResult {
	fetchErr := &FetchError{PageNumber: pageNum, Err: err}
	pagesTotal.WithLabelValues("failed").Inc()
	fetchErrorsTotal.WithLabelValues(string(fetchErr.Class())).Inc()
	return PageResult{PageNumber: pageNum, Err: fetchErr}
}

// EnvelopeValidator returns a check that accepts exactly the bodies FetchPage can decode.
// It is meant for cache.WithValidator so malformed pages never reach the cache.
func EnvelopeValidator(params APIParams) func(body []byte) error {
	return func(body []byte) error {
		_, _, err := decodeEnvelope(params, body)
		return err
	}
}

// decodeEnvelope extracts the record batch and remaining-page count.
// Absent fields default to an empty batch and zero remaining pages;
// the count is clamped to [0, MaxRemainingPages].
func decodeEnvelope(params APIParams, body []byte) ([]record.Value, int, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if envelope == nil {
		return nil, 0, fmt.Errorf("%w: envelope is null", ErrMalformedBody)
	}

	var records []record.Value
	if raw, ok := envelope[params.ResultsField]; ok {
		items, err := record.DecodeList(raw)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: field %q: %v", ErrMalformedBody, params.ResultsField, err)
		}
		for i, item := range items {
			if item.Kind() != record.KindMapping {
				return nil, 0, fmt.Errorf("%w: record %d is a %s, want object", ErrMalformedBody, i, item.Kind())
			}
		}
		records = items
	}

	var remaining int
	if raw, ok := envelope[params.RemainingField]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &remaining); err != nil {
			return nil, 0, fmt.Errorf("%w: field %q: %v", ErrMalformedBody, params.RemainingField, err)
		}
	}
	switch {
	case remaining < 0:
		remaining = 0
	case remaining > MaxRemainingPages:
		remaining = MaxRemainingPages
	}

	return records, remaining, nil
}

// ClampPageSize caps size at MaxPageSize; non-positive sizes become MaxPageSize.
func ClampPageSize(size int) int {
	if size <= 0 || size > MaxPageSize {
		return MaxPageSize
	}
	return size
}
