package arrowbased

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/databricks/databricks-cloudfetch-go/driverctx"
	dbsqlerr "github.com/databricks/databricks-cloudfetch-go/errors"
	"github.com/databricks/databricks-cloudfetch-go/internal/config"
	dbsqlerrint "github.com/databricks/databricks-cloudfetch-go/internal/errors"
	"github.com/databricks/databricks-cloudfetch-go/internal/fetcher"
	dbsqllog "github.com/databricks/databricks-cloudfetch-go/logger"
	"github.com/databricks/databricks-cloudfetch-go/rows"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Stats counts the work done by a reader.
type Stats struct {
	PagesFetched    int
	LinksOpened     int
	BatchesReturned int64
	RowsReturned    int64
}

type ReaderOption func(*cloudFetchReader)

// WithDownloader replaces the http downloader.
func WithDownloader(d fetcher.Downloader) ReaderOption {
	return func(r *cloudFetchReader) {
		r.newDownloader = func() fetcher.Downloader { return d }
	}
}

// WithDecompressor replaces the decompressor selected by the config.
func WithDecompressor(dc Decompressor) ReaderOption {
	return func(r *cloudFetchReader) {
		r.decompressor = dc
	}
}

// WithAllocator sets the allocator used for decoded records.
func WithAllocator(mem memory.Allocator) ReaderOption {
	return func(r *cloudFetchReader) {
		if mem != nil {
			r.mem = mem
		}
	}
}

// WithMetrics records reader activity in m.
func WithMetrics(m *Metrics) ReaderOption {
	return func(r *cloudFetchReader) {
		r.metrics = m
	}
}

// WithHTTPClient sets the base http client used for downloads.
func WithHTTPClient(c *http.Client) ReaderOption {
	return func(r *cloudFetchReader) {
		r.httpClient = c
	}
}

// WithDiscoveredSchema lets the reader start without a schema. The schema of
// the first link becomes the declared schema and later links are checked against it.
func WithDiscoveredSchema() ReaderOption {
	return func(r *cloudFetchReader) {
		r.discoverSchema = true
	}
}

// WithReaderLogger sets the logger. By default a logger tagged with the reader
// and correlation ids is used.
func WithReaderLogger(l *dbsqllog.DBSQLLogger) ReaderOption {
	return func(r *cloudFetchReader) {
		r.logger = l
	}
}

// NewCloudFetchReader creates a reader over the pages of links returned by source.
// No request is made until the first call to NextBatch.
func NewCloudFetchReader(
	ctx context.Context,
	source rows.PageSource,
	schema *arrow.Schema,
	cfg *config.CloudFetchConfig,
	opts ...ReaderOption,
) (*cloudFetchReader, error) {
	if source == nil {
		return nil, dbsqlerrint.NewDriverError(ctx, dbsqlerrint.ErrNilPageSource, nil)
	}
	// the caller keeps ownership of cfg
	c := cfg.DeepCopy()
	if c == nil {
		c = config.WithDefaults()
	}
	c.Normalize()

	id := driverctx.ReaderIdFromContext(ctx)
	if id == "" {
		id = uuid.NewString()
	}

	r := &cloudFetchReader{
		id:            id,
		correlationId: driverctx.CorrelationIdFromContext(ctx),
		schema:        schema,
		cfg:           *c,
		source:        source,
		mem:           memory.DefaultAllocator,
		decompressor:  NewDecompressor(c.UseLz4Compression),
	}

	for _, opt := range opts {
		opt(r)
	}

	if schema == nil && !r.discoverSchema {
		return nil, dbsqlerrint.NewDriverError(ctx, dbsqlerrint.ErrNilSchema, nil)
	}

	if r.logger == nil {
		r.logger = dbsqllog.WithContext(r.id, r.correlationId)
	}
	if r.newDownloader == nil {
		r.newDownloader = r.httpDownloader
	}

	r.logger.Debug().Msgf("cloudfetch: new reader, schema %s, lz4 %v, max retries %d", describeSchema(schema), c.UseLz4Compression, c.MaxRetries)

	return r, nil
}

// cloudFetchReader pulls record batches through the stages
// page fetch -> download -> decompress -> decode.
// It is not safe for concurrent use.
type cloudFetchReader struct {
	id            string
	correlationId string
	schema        *arrow.Schema
	cfg           config.CloudFetchConfig
	source        rows.PageSource
	logger        *dbsqllog.DBSQLLogger
	mem           memory.Allocator
	decompressor  Decompressor
	metrics       *Metrics
	httpClient    *http.Client
	// schema is taken from the first link
	discoverSchema bool

	newDownloader func() fetcher.Downloader
	downloader    fetcher.Downloader

	// cursor
	page        *rows.Page
	linkIndex   int
	watermark   int64
	active      Decoder
	activeIndex int
	// the current page is the last one
	finalPage  bool
	terminated bool
	closed     bool
	// failure of a link, returned by every later call
	err error

	stats Stats
}

var _ rows.BatchReader = (*cloudFetchReader)(nil)

// Schema returns the declared schema. A reader created WithDiscoveredSchema
// returns nil until the first link is opened.
func (r *cloudFetchReader) Schema() *arrow.Schema {
	return r.schema
}

// Id returns the reader id used in logs and errors.
func (r *cloudFetchReader) Id() string {
	return r.id
}

func (r *cloudFetchReader) Stats() Stats {
	return r.stats
}

// NextBatch returns the next record batch of the result set, or io.EOF once
// the result set is exhausted or the reader is closed.
func (r *cloudFetchReader) NextBatch(ctx context.Context) (arrow.Record, error) {
	if r.closed {
		return nil, io.EOF
	}

	// a failed link cannot be skipped without losing rows
	if r.err != nil {
		return nil, r.err
	}

	ctx = r.withIds(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return nil, dbsqlerrint.NewCancellationError(ctx, dbsqlerrint.ErrCanceled, err)
		}

		// drain the current link first
		if r.active != nil {
			rec, err := r.active.Next()
			if err == nil {
				r.stats.BatchesReturned++
				r.stats.RowsReturned += rec.NumRows()
				r.metrics.observeBatch(rec.NumRows())
				return rec, nil
			}

			r.releaseDecoder()
			if err != io.EOF {
				r.metrics.observeLinkFailure(dbsqlerr.StageDecode)
				r.err = dbsqlerrint.NewDecodeError(ctx, r.activeIndex, dbsqlerrint.ErrDecodeFailed, err)
				return nil, r.err
			}
		}

		// open the next link of the current page
		if r.page != nil && r.linkIndex < len(r.page.Links) {
			idx := r.linkIndex
			link := r.page.Links[idx]
			r.linkIndex++

			dec, err := r.openLink(ctx, idx, link)
			if err != nil {
				// the link is consumed even when canceled, it is never opened twice
				r.err = err
				return nil, err
			}
			r.active = dec
			r.activeIndex = idx
			continue
		}

		if r.terminated {
			return nil, io.EOF
		}

		if r.finalPage {
			r.logger.Debug().Msgf("cloudfetch: end of results at row %d", r.watermark)
			r.terminate()
			return nil, io.EOF
		}

		if err := r.fetchPage(ctx); err != nil {
			return nil, err
		}
	}
}

// Close releases the active decoder and the transport. It is safe to call more than once.
func (r *cloudFetchReader) Close() error {
	if r.closed {
		return nil
	}

	r.closed = true
	r.terminate()
	if r.downloader != nil {
		r.downloader.Close()
		r.downloader = nil
	}

	return nil
}

func (r *cloudFetchReader) fetchPage(ctx context.Context) error {
	r.logger.Debug().Msgf("cloudfetch: fetching result page starting at row %d", r.watermark)

	page, err := r.source.FetchNext(ctx, r.watermark)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return dbsqlerrint.NewCancellationError(ctx, dbsqlerrint.ErrCanceled, ctxErr)
		}
		if dbsqlerrint.IsCancellation(err) {
			return dbsqlerrint.NewCancellationError(ctx, dbsqlerrint.ErrCanceled, err)
		}
		r.logger.Err(err).Msg(dbsqlerrint.ErrFetchPageFailed)
		return dbsqlerrint.NewProtocolError(ctx, r.watermark, dbsqlerrint.ErrFetchPageFailed, err)
	}

	r.stats.PagesFetched++
	r.metrics.observePage()

	if page == nil || len(page.Links) == 0 {
		if page != nil && page.HasMore {
			r.logger.Error().Msgf("cloudfetch: empty result page at row %d with more rows reported", r.watermark)
			return dbsqlerrint.NewProtocolError(ctx, r.watermark, dbsqlerrint.ErrEmptyPageWithMore, nil)
		}

		r.logger.Debug().Msgf("cloudfetch: empty result page, end of results at row %d", r.watermark)
		r.terminate()
		return nil
	}

	links := make([]rows.Link, len(page.Links))
	copy(links, page.Links)
	next := &rows.Page{Links: links, HasMore: page.HasMore}

	if first := links[0].RowOffset; first != r.watermark {
		r.logger.Warn().Msgf("cloudfetch: result page starts at row %d, expected %d", first, r.watermark)
	}
	if w := next.Watermark(); w < r.watermark {
		r.logger.Warn().Msgf("cloudfetch: result page ends at row %d, before previous watermark %d", w, r.watermark)
	}

	r.page = next
	r.linkIndex = 0
	r.watermark = next.Watermark()
	r.finalPage = !next.HasMore

	r.logger.Debug().Msgf("cloudfetch: new result page, %d links, %d rows, hasMore: %v", len(links), next.RowCount(), next.HasMore)

	return nil
}

// openLink runs download, decompression and decoding for one link.
func (r *cloudFetchReader) openLink(ctx context.Context, idx int, link rows.Link) (Decoder, error) {
	r.logger.Debug().Msgf("cloudfetch: opening link %d, rows [%d, %d)", idx, link.RowOffset, link.End())
	r.stats.LinksOpened++
	defer r.logger.Duration(r.logger.Track(fmt.Sprintf("cloudfetch: link %d opened", idx)))

	data, err := r.getDownloader().Fetch(ctx, link)
	if err != nil {
		if errors.Is(err, dbsqlerr.CancellationError) {
			return nil, err
		}
		r.metrics.observeLinkFailure(dbsqlerr.StageDownload)
		err = dbsqlerrint.WithLinkIndex(err, idx)
		r.logger.Err(err).Msgf("cloudfetch: link %d download failed", idx)
		return nil, err
	}

	data, err = r.decompressor.Decompress(data)
	if err != nil {
		r.metrics.observeLinkFailure(dbsqlerr.StageDecompress)
		return nil, dbsqlerrint.NewCorruptionError(ctx, idx, dbsqlerrint.ErrDecompressFailed, err)
	}

	dec, err := NewDecoder(r.schema, data, r.mem)
	if err != nil {
		r.metrics.observeLinkFailure(dbsqlerr.StageDecode)
		return nil, dbsqlerrint.NewDecodeError(ctx, idx, dbsqlerrint.ErrDecodeFailed, err)
	}

	if r.schema == nil {
		r.schema = dec.Schema()
		r.logger.Debug().Msgf("cloudfetch: schema taken from link %d, %s", idx, describeSchema(r.schema))
	}

	return dec, nil
}

func (r *cloudFetchReader) getDownloader() fetcher.Downloader {
	if r.downloader == nil {
		r.downloader = r.newDownloader()
	}
	return r.downloader
}

func (r *cloudFetchReader) httpDownloader() fetcher.Downloader {
	opts := []fetcher.DownloaderOption{fetcher.WithLogger(r.logger)}
	if r.httpClient != nil {
		opts = append(opts, fetcher.WithHTTPClient(r.httpClient))
	}
	if r.metrics != nil {
		opts = append(opts, fetcher.WithObserver(r.metrics))
	}
	return fetcher.NewDownloader(&r.cfg, opts...)
}

func (r *cloudFetchReader) releaseDecoder() {
	if r.active != nil {
		r.active.Release()
		r.active = nil
	}
}

func (r *cloudFetchReader) terminate() {
	r.terminated = true
	r.releaseDecoder()
	r.page = nil
	r.linkIndex = 0
}

func (r *cloudFetchReader) withIds(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if driverctx.ReaderIdFromContext(ctx) == "" {
		ctx = driverctx.NewContextWithReaderId(ctx, r.id)
	}
	if r.correlationId != "" && driverctx.CorrelationIdFromContext(ctx) == "" {
		ctx = driverctx.NewContextWithCorrelationId(ctx, r.correlationId)
	}
	return ctx
}
