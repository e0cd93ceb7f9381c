package rowscanner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/databricks/databricks-cloudfetch-go/driverctx"
	dbsqlerrint "github.com/databricks/databricks-cloudfetch-go/internal/errors"
	"github.com/databricks/databricks-cloudfetch-go/internal/sentinel"
	dbsqllog "github.com/databricks/databricks-cloudfetch-go/logger"
	dbclient "github.com/databricks/databricks-sdk-go/client"
	sdkcfg "github.com/databricks/databricks-sdk-go/config"
	sqlexec "github.com/databricks/databricks-sdk-go/service/sql"
)

// StatementAPI is the part of the Databricks SQL statement execution API used to
// run a statement and page through its external links.
type StatementAPI interface {
	ExecuteStatement(ctx context.Context, request sqlexec.ExecuteStatementRequest) (*sqlexec.ExecuteStatementResponse, error)
	GetStatement(ctx context.Context, request sqlexec.GetStatementRequest) (*sqlexec.GetStatementResponse, error)
	GetStatementResultChunkN(ctx context.Context, request sqlexec.GetStatementResultChunkNRequest) (*sqlexec.ResultData, error)
	CancelExecution(ctx context.Context, request sqlexec.CancelExecutionRequest) error
}

var _ StatementAPI = (sqlexec.StatementExecutionService)(nil)

// NewStatementAPI creates a statement execution client for the workspace at host.
func NewStatementAPI(host, token string) (StatementAPI, error) {
	c, err := dbclient.New(&sdkcfg.Config{
		Host:  host,
		Token: token,
	})
	if err != nil {
		return nil, dbsqlerrint.WrapErr(err, "databricks: statement execution client")
	}
	return sqlexec.NewStatementExecution(c), nil
}

// StatementRequest describes a statement to run on a SQL warehouse.
type StatementRequest struct {
	Statement string
	// WarehouseId may also be given as the warehouse http path.
	WarehouseId string
	Catalog     string
	Schema      string
	// WaitTimeout is how long the server holds the request before returning a
	// running statement, in the API's "<n>s" form.
	WaitTimeout string
}

// ExecuteStatement submits req asking for arrow stream results as external links.
func ExecuteStatement(ctx context.Context, api StatementAPI, req StatementRequest) (*sqlexec.ExecuteStatementResponse, error) {
	waitTimeout := req.WaitTimeout
	if waitTimeout == "" {
		waitTimeout = "5s"
	}

	resp, err := api.ExecuteStatement(ctx, sqlexec.ExecuteStatementRequest{
		Catalog:       req.Catalog,
		Schema:        req.Schema,
		Disposition:   sqlexec.DispositionExternalLinks,
		Format:        sqlexec.FormatArrowStream,
		OnWaitTimeout: sqlexec.TimeoutActionContinue,
		WaitTimeout:   waitTimeout,
		WarehouseId:   strings.TrimPrefix(req.WarehouseId, "/sql/1.0/warehouses/"),
		Statement:     req.Statement,
	})
	if err != nil {
		return nil, dbsqlerrint.WrapErr(err, "databricks: submit statement")
	}

	dbsqllog.Debug().Msgf("databricks: statement %s submitted, state %s", resp.StatementId, stateOf(resp.Status))
	return resp, nil
}

// WaitForStatement polls the statement until it succeeds. A statement that fails, is
// canceled or closed is an error. If the wait is abandoned the statement is canceled.
func WaitForStatement(ctx context.Context, api StatementAPI, statementId string, interval, timeout time.Duration) (*sqlexec.GetStatementResponse, error) {
	ctx = driverctx.NewContextWithStatementId(ctx, statementId)
	logger := statementLogger(statementId)

	s := sentinel.Sentinel{
		StatusFn: func(ctx context.Context) (bool, any, error) {
			resp, err := api.GetStatement(ctx, sqlexec.GetStatementRequest{StatementId: statementId})
			if err != nil {
				return false, nil, err
			}
			done, err := statementDone(ctx, resp.Status)
			return done, resp, err
		},
		OnCancelFn: func() error {
			logger.Debug().Msg("databricks: canceling statement")
			return api.CancelExecution(driverctx.NewContextFromBackground(ctx), sqlexec.CancelExecutionRequest{StatementId: statementId})
		},
		Logger: logger,
	}

	status, res, err := s.Watch(ctx, interval, timeout)
	if err != nil {
		if status == sentinel.WatchCanceled {
			return nil, dbsqlerrint.NewCancellationError(ctx, dbsqlerrint.ErrCanceled, err)
		}
		return nil, err
	}

	resp, _ := res.(*sqlexec.GetStatementResponse)
	if resp == nil {
		return nil, dbsqlerrint.NewDriverError(ctx, dbsqlerrint.ErrStatementNotReady, nil)
	}
	return resp, nil
}

func statementDone(ctx context.Context, status *sqlexec.StatementStatus) (bool, error) {
	if status == nil {
		return false, nil
	}

	switch status.State {
	case sqlexec.StatementStateSucceeded:
		return true, nil
	case sqlexec.StatementStatePending, sqlexec.StatementStateRunning:
		return false, nil
	}

	msg := fmt.Sprintf("%s: statement %s", dbsqlerrint.ErrStatementNotReady, status.State)
	if status.Error != nil && status.Error.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, status.Error.Message)
	}
	return false, dbsqlerrint.NewDriverError(ctx, msg, nil)
}

func stateOf(status *sqlexec.StatementStatus) string {
	if status == nil {
		return "<UNSET>"
	}
	return string(status.State)
}

func statementLogger(statementId string) *dbsqllog.DBSQLLogger {
	return &dbsqllog.DBSQLLogger{Logger: dbsqllog.Logger.With().Str("statementId", statementId).Logger()}
}
