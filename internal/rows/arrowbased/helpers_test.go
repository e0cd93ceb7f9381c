package arrowbased

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/ipc"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/databricks/databricks-cloudfetch-go/rows"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/require"
)

var testSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "name", Type: arrow.BinaryTypes.String},
}, nil)

// generateArrowBytes writes an IPC stream holding rows [start, start+count)
// split into records of at most batchSize rows.
func generateArrowBytes(t *testing.T, schema *arrow.Schema, start, count, batchSize int64) []byte {
	t.Helper()
	mem := memory.NewGoAllocator()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(mem))

	for off := start; off < start+count; off += batchSize {
		n := batchSize
		if off+n > start+count {
			n = start + count - off
		}

		builder := array.NewRecordBuilder(mem, schema)
		for i := off; i < off+n; i++ {
			builder.Field(0).(*array.Int64Builder).Append(i)
			if len(schema.Fields()) > 1 {
				builder.Field(1).(*array.StringBuilder).Append(fmt.Sprintf("row-%d", i))
			}
		}
		rec := builder.NewRecord()
		require.NoError(t, w.Write(rec))
		rec.Release()
		builder.Release()
	}

	require.NoError(t, w.Close())
	return buf.Bytes()
}

func lz4Compress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// fakeDownloader serves canned bytes or errors per URL
type fakeDownloader struct {
	mu      sync.Mutex
	files   map[string][]byte
	errs    map[string]error
	fetches []string
	closed  int
}

func newFakeDownloader() *fakeDownloader {
	return &fakeDownloader{files: map[string][]byte{}, errs: map[string]error{}}
}

func (d *fakeDownloader) Fetch(ctx context.Context, link rows.Link) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fetches = append(d.fetches, link.URL)
	if err, ok := d.errs[link.URL]; ok {
		return nil, err
	}
	data, ok := d.files[link.URL]
	if !ok {
		return nil, fmt.Errorf("no file for %s", link.URL)
	}
	return data, nil
}

func (d *fakeDownloader) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
}

// fakePageSource returns pages in sequence and records the watermarks it is called with
type fakePageSource struct {
	pages      []*rows.Page
	errs       []error
	watermarks []int64
}

func (s *fakePageSource) FetchNext(ctx context.Context, watermark int64) (*rows.Page, error) {
	i := len(s.watermarks)
	s.watermarks = append(s.watermarks, watermark)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.pages) {
		return &rows.Page{}, nil
	}
	return s.pages[i], nil
}

// linkFor registers a file for rows [offset, offset+count) with d and returns its link
func linkFor(t *testing.T, d *fakeDownloader, offset, count, batchSize int64) rows.Link {
	url := fmt.Sprintf("https://storage.example.com/chunk-%d", offset)
	d.files[url] = generateArrowBytes(t, testSchema, offset, count, batchSize)
	return rows.Link{URL: url, RowOffset: offset, RowCount: count}
}

// drain reads every batch, returning the ids in order and the terminating error
func drain(t *testing.T, r *cloudFetchReader) ([]int64, int, error) {
	t.Helper()
	var ids []int64
	batches := 0
	for {
		rec, err := r.NextBatch(context.Background())
		if err != nil {
			return ids, batches, err
		}
		batches++
		col := rec.Column(0).(*array.Int64)
		ids = append(ids, col.Int64Values()...)
		rec.Release()
	}
}
