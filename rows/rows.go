package rows

import (
	"context"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
)

// Link points at one externally stored chunk of a result set.
// Links are immutable once received from the server.
type Link struct {
	// Pre-signed URL of the chunk
	URL string

	// Position of the first row of the chunk in the result set
	RowOffset int64

	// Number of rows in the chunk
	RowCount int64

	// Time after which the URL is no longer valid. Zero if unknown.
	ExpiryTime time.Time

	// Size of the chunk in bytes as reported by the server. Zero if unknown.
	ByteCount int64
}

// End returns the row offset immediately following the chunk.
func (l Link) End() int64 {
	return l.RowOffset + l.RowCount
}

// Page is the result of one control plane fetch: an ordered set of links
// and whether more pages follow.
type Page struct {
	Links   []Link
	HasMore bool
}

// Watermark returns the row offset following the last link of the page,
// or 0 for a page without links.
func (p *Page) Watermark() int64 {
	if p == nil || len(p.Links) == 0 {
		return 0
	}
	return p.Links[len(p.Links)-1].End()
}

// RowCount returns the total number of rows referenced by the page.
func (p *Page) RowCount() int64 {
	if p == nil {
		return 0
	}
	var n int64
	for i := range p.Links {
		n += p.Links[i].RowCount
	}
	return n
}

// PageSource provides the pages of links of a result set.
type PageSource interface {
	// FetchNext requests the page of links that starts at the given row watermark.
	// The watermark is 0 only on the first call.
	FetchNext(ctx context.Context, watermark int64) (*Page, error)
}

// PageSourceFunc adapts an ordinary function to the PageSource interface.
type PageSourceFunc func(ctx context.Context, watermark int64) (*Page, error)

func (f PageSourceFunc) FetchNext(ctx context.Context, watermark int64) (*Page, error) {
	return f(ctx, watermark)
}

// BatchReader reads the record batches of a result set in order.
type BatchReader interface {
	// Schema of all returned records.
	Schema() *arrow.Schema

	// Retrieve the next arrow.Record. The caller must Release it.
	// Will return io.EOF if there are no more records.
	NextBatch(ctx context.Context) (arrow.Record, error)

	// Release any resources in use by the reader.
	Close() error
}
