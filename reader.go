package cloudfetch

import (
	"context"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/databricks/databricks-cloudfetch-go/driverctx"
	dbsqlerrint "github.com/databricks/databricks-cloudfetch-go/internal/errors"
	"github.com/databricks/databricks-cloudfetch-go/internal/rows/arrowbased"
	"github.com/databricks/databricks-cloudfetch-go/internal/rows/rowscanner"
	"github.com/databricks/databricks-cloudfetch-go/rows"
)

// StatementAPI is the part of the Databricks SQL statement execution service used by
// NewStatementReader. The service returned by the Databricks SDK satisfies it.
type StatementAPI = rowscanner.StatementAPI

// NewStatementAPI creates a statement execution client for the workspace at host
// authenticated with a personal access token.
func NewStatementAPI(host, token string) (StatementAPI, error) {
	return rowscanner.NewStatementAPI(host, token)
}

// NewReader returns a reader over the result pages of source. Every file must be
// an arrow IPC stream with the given schema. No request is made until the first
// call to NextBatch.
func NewReader(ctx context.Context, source rows.PageSource, schema *arrow.Schema, opts ...Option) (rows.BatchReader, error) {
	return newReader(ctx, source, schema, newOptions(opts))
}

// NewStatementReader waits for a statement submitted with the EXTERNAL_LINKS
// disposition and ARROW_STREAM format to succeed and returns a reader over its
// results. A nil schema is taken from the first result file.
func NewStatementReader(ctx context.Context, api StatementAPI, statementId string, schema *arrow.Schema, opts ...Option) (rows.BatchReader, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = driverctx.NewContextWithStatementId(ctx, statementId)
	o := newOptions(opts)

	resp, err := rowscanner.WaitForStatement(ctx, api, statementId, o.pollInterval, o.waitTimeout)
	if err != nil {
		return nil, err
	}

	source, err := rowscanner.NewStatementPageSource(api, statementId,
		rowscanner.WithManifest(resp.Manifest),
		rowscanner.WithInitialResult(resp.Result),
	)
	if err != nil {
		return nil, dbsqlerrint.NewDriverError(ctx, dbsqlerrint.ErrStatementNotLinked, err)
	}

	var extra []arrowbased.ReaderOption
	if schema == nil {
		extra = append(extra, arrowbased.WithDiscoveredSchema())
	}

	return newReader(ctx, source, schema, o, extra...)
}

func newReader(ctx context.Context, source rows.PageSource, schema *arrow.Schema, o *options, extra ...arrowbased.ReaderOption) (rows.BatchReader, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if o.correlationId != "" {
		ctx = driverctx.NewContextWithCorrelationId(ctx, o.correlationId)
	}

	var ropts []arrowbased.ReaderOption
	if o.mem != nil {
		ropts = append(ropts, arrowbased.WithAllocator(o.mem))
	}
	if o.logger != nil {
		ropts = append(ropts, arrowbased.WithReaderLogger(o.logger))
	}
	if o.httpClient != nil {
		ropts = append(ropts, arrowbased.WithHTTPClient(o.httpClient))
	}
	if o.registerer != nil {
		m, err := arrowbased.NewMetrics(o.registerer)
		if err != nil {
			return nil, dbsqlerrint.NewDriverError(ctx, "failed to register reader metrics", err)
		}
		ropts = append(ropts, arrowbased.WithMetrics(m))
	}
	ropts = append(ropts, extra...)

	r, err := arrowbased.NewCloudFetchReader(ctx, source, schema, o.cfg, ropts...)
	if err != nil {
		return nil, err
	}
	return r, nil
}
