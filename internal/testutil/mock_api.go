// Package testutil provides testing utilities for paginated API downloads.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockPage defines the response for one page number.
type MockPage struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// MockAPI is a configurable paginated API server for testing.
// Pages without a configured response return an empty results array.
type MockAPI struct {
	server *httptest.Server
	mu     sync.RWMutex
	pages  map[int]MockPage

	// PageParam is the query parameter carrying the page number (default "page")
	PageParam string

	// Tracking
	requestCount   int
	requestedPages []int
	lastQuery      url.Values
	lastHeader     http.Header
}

// NewMockAPI creates a new mock API server.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		pages:     make(map[int]MockPage),
		PageParam: "page",
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))

	return mock
}

func (m *MockAPI) handle(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	pageNum, _ := strconv.Atoi(query.Get(m.PageParam))

	m.mu.Lock()
	m.requestCount++
	m.requestedPages = append(m.requestedPages, pageNum)
	m.lastQuery = query
	m.lastHeader = r.Header.Clone()
	page, exists := m.pages[pageNum]
	m.mu.Unlock()

	if !exists {
		page = NewPageResponse(0)
	}

	if page.Delay > 0 {
		time.Sleep(page.Delay)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(page.StatusCode)
	if page.Body != "" {
		w.Write([]byte(page.Body))
	}
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.requestedPages = nil
	m.lastQuery = nil
	m.lastHeader = nil
}

// SetPage configures the response for a page number.
func (m *MockAPI) SetPage(pageNum int, page MockPage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[pageNum] = page
}

// SetDataset serves pages 1..len(pages), each reporting the pages left after it.
// pages[i] holds the raw JSON objects of page i+1.
func (m *MockAPI) SetDataset(pages [][]string) {
	for i, records := range pages {
		m.SetPage(i+1, NewPageResponse(len(pages)-i-1, records...))
	}
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// RequestedPages returns every requested page number, sorted.
func (m *MockAPI) RequestedPages() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pages := make([]int, len(m.requestedPages))
	copy(pages, m.requestedPages)
	sort.Ints(pages)
	return pages
}

// LastQuery returns the query string of the most recent request.
func (m *MockAPI) LastQuery() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastQuery
}

// LastHeader returns the headers of the most recent request.
func (m *MockAPI) LastHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHeader
}

// NewPageResponse creates a 200 OK page envelope with the given raw JSON records.
func NewPageResponse(remainingPages int, records ...string) MockPage {
	return MockPage{
		StatusCode: http.StatusOK,
		Body: fmt.Sprintf(`{"results":[%s],"remainingPages":%d}`,
			strings.Join(records, ","), remainingPages),
	}
}

// NewRawResponse creates a 200 OK response with an arbitrary body.
func NewRawResponse(body string) MockPage {
	return MockPage{
		StatusCode: http.StatusOK,
		Body:       body,
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockPage {
	return MockPage{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockPage {
	return MockPage{
		StatusCode: http.StatusNotFound,
		Body:       `{"error": "Not found"}`,
	}
}

// Records builds n distinct raw JSON records for page pageNum.
func Records(pageNum, n int) []string {
	records := make([]string, n)
	for i := 0; i < n; i++ {
		records[i] = fmt.Sprintf(`{"id":"%d-%d","page":%d,"address":{"city":"c%d","zip":"%05d"},"tags":["t%d"]}`,
			pageNum, i, pageNum, i, i, i)
	}
	return records
}
