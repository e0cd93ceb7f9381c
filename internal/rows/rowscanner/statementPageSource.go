package rowscanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/databricks/databricks-cloudfetch-go/driverctx"
	dbsqlerrint "github.com/databricks/databricks-cloudfetch-go/internal/errors"
	dbsqllog "github.com/databricks/databricks-cloudfetch-go/logger"
	"github.com/databricks/databricks-cloudfetch-go/rows"
	sqlexec "github.com/databricks/databricks-sdk-go/service/sql"
	"github.com/pkg/errors"
)

func errNoChunkAtRow(watermark int64) string {
	return fmt.Sprintf("databricks: no result chunk starts at row %d", watermark)
}

var errNotArrowStream = "databricks: statement result format is not ARROW_STREAM"

type PageSourceOption func(*statementPageSource)

// WithInitialResult serves the first page from a result already returned by
// ExecuteStatement or GetStatement instead of requesting chunk 0.
func WithInitialResult(data *sqlexec.ResultData) PageSourceOption {
	return func(s *statementPageSource) {
		s.initial = data
	}
}

// WithManifest checks the result format against the statement manifest.
func WithManifest(m *sqlexec.ResultManifest) PageSourceOption {
	return func(s *statementPageSource) {
		s.manifest = m
	}
}

// NewStatementPageSource returns a page source over the external links of a
// statement's result. Each page is one result chunk.
func NewStatementPageSource(api StatementAPI, statementId string, opts ...PageSourceOption) (rows.PageSource, error) {
	if api == nil {
		return nil, errors.New("databricks: nil statement api")
	}

	s := &statementPageSource{
		api:         api,
		statementId: statementId,
		chunks:      map[int64]int{0: 0},
		logger:      statementLogger(statementId),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.manifest != nil && s.manifest.Format != "" && s.manifest.Format != sqlexec.FormatArrowStream {
		return nil, errors.New(errNotArrowStream)
	}

	return s, nil
}

type statementPageSource struct {
	api         StatementAPI
	statementId string
	initial     *sqlexec.ResultData
	manifest    *sqlexec.ResultManifest
	logger      *dbsqllog.DBSQLLogger

	mu sync.Mutex
	// chunk index of the page starting at each watermark seen so far
	chunks map[int64]int
}

var _ rows.PageSource = (*statementPageSource)(nil)

// FetchNext returns the chunk whose rows start at watermark. Asking again for the
// same watermark requests the same chunk.
func (s *statementPageSource) FetchNext(ctx context.Context, watermark int64) (*rows.Page, error) {
	s.mu.Lock()
	chunk, ok := s.chunks[watermark]
	s.mu.Unlock()
	if !ok {
		return nil, errors.New(errNoChunkAtRow(watermark))
	}

	var data *sqlexec.ResultData
	if s.initial != nil && s.initial.ChunkIndex == chunk && len(s.initial.ExternalLinks) > 0 {
		data = s.initial
	} else {
		ctx = driverctx.NewContextWithStatementId(ctx, s.statementId)
		s.logger.Debug().Msgf("databricks: fetching result chunk %d for row %d", chunk, watermark)

		var err error
		data, err = s.api.GetStatementResultChunkN(ctx, sqlexec.GetStatementResultChunkNRequest{
			StatementId: s.statementId,
			ChunkIndex:  chunk,
		})
		if err != nil {
			s.logger.Err(err).Msgf("databricks: result chunk %d request failed", chunk)
			return nil, dbsqlerrint.WrapErrf(err, "databricks: result chunk %d of statement %s", chunk, s.statementId)
		}
	}

	page, next := s.toPage(data)
	if page.HasMore {
		s.mu.Lock()
		s.chunks[page.Watermark()] = next
		s.mu.Unlock()
	}

	s.logger.Debug().Msgf("databricks: result chunk %d, %d links, rows [%d, %d), next chunk %d, hasMore %v", chunk, len(page.Links), watermark, page.Watermark(), next, page.HasMore)
	return page, nil
}

func (s *statementPageSource) toPage(data *sqlexec.ResultData) (*rows.Page, int) {
	if data == nil {
		return &rows.Page{}, 0
	}

	page := &rows.Page{Links: make([]rows.Link, 0, len(data.ExternalLinks))}
	for _, l := range data.ExternalLinks {
		page.Links = append(page.Links, rows.Link{
			URL:        l.ExternalLink,
			RowOffset:  l.RowOffset,
			RowCount:   l.RowCount,
			ByteCount:  l.ByteCount,
			ExpiryTime: s.parseExpiry(l.Expiration),
		})
	}

	next, hasMore := nextChunk(data)
	page.HasMore = hasMore
	return page, next
}

// nextChunk reads the continuation of a chunk. The last external link carries it
// when present, otherwise the result data does.
func nextChunk(data *sqlexec.ResultData) (int, bool) {
	next, internalLink, current := data.NextChunkIndex, data.NextChunkInternalLink, data.ChunkIndex
	if n := len(data.ExternalLinks); n > 0 {
		last := data.ExternalLinks[n-1]
		next, internalLink, current = last.NextChunkIndex, last.NextChunkInternalLink, last.ChunkIndex
	}

	return next, internalLink != "" || next > current
}

func (s *statementPageSource) parseExpiry(expiration string) time.Time {
	if expiration == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, expiration)
	if err != nil {
		s.logger.Debug().Msgf("databricks: ignoring link expiration %q: %v", expiration, err)
		return time.Time{}
	}
	return t
}
