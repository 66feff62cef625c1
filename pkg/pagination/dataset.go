package pagination

import (
	"github.com/Sternrassler/paged-extract/pkg/flatten"
)

// Dataset accumulates flattened records across all fetched pages.
// Record order follows page completion order, which is not page order.
// A Dataset is owned by one goroutine and is not safe for concurrent use.
type Dataset struct {
	records     []*flatten.FlatRecord
	totalPages  int
	pagesOK     int
	failedPages []int
}

// NewDataset returns an empty Dataset.
func NewDataset() *Dataset {
	return &Dataset{}
}

// Append adds one page's flattened batch.
func (d *Dataset) Append(batch []*flatten.FlatRecord) {
	d.records = append(d.records, batch...)
	d.pagesOK++
}

// MarkFailed records a page whose fetch failed.
func (d *Dataset) MarkFailed(pageNum int) {
	d.failedPages = append(d.failedPages, pageNum)
}

// Records returns the accumulated records.
func (d *Dataset) Records() []*flatten.FlatRecord {
	return d.records
}

// Len returns the number of accumulated records.
func (d *Dataset) Len() int {
	return len(d.records)
}

// TotalPages returns the page count fixed by the first page, or 0 when
// the first page was empty or failed.
func (d *Dataset) TotalPages() int {
	return d.totalPages
}

// PagesFetched returns the number of pages that returned records.
func (d *Dataset) PagesFetched() int {
	return d.pagesOK
}

// FailedPages returns the page numbers that failed, in completion order.
func (d *Dataset) FailedPages() []int {
	return d.failedPages
}
