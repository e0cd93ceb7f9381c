package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	cloudfetch "github.com/databricks/databricks-cloudfetch-go"
	"github.com/databricks/databricks-cloudfetch-go/internal/rows/rowscanner"
	dbsqllog "github.com/databricks/databricks-cloudfetch-go/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type flags struct {
	host        string
	token       string
	warehouse   string
	catalog     string
	schema      string
	lz4         bool
	maxRetries  int
	retryDelay  time.Duration
	timeout     time.Duration
	waitTimeout time.Duration
	showRows    int
	logLevel    string
}

// newStatementAPI is replaced in tests
var newStatementAPI = func(f *flags) (cloudfetch.StatementAPI, error) {
	return cloudfetch.NewStatementAPI(f.host, f.token)
}

func main() {
	// a missing .env file is fine, the environment may be set already
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:           "cloudfetch",
		Short:         "Stream Databricks SQL results downloaded from cloud storage links",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if f.logLevel != "" {
				return dbsqllog.SetLogLevel(f.logLevel)
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.host, "host", os.Getenv("DATABRICKS_HOST"), "workspace hostname [DATABRICKS_HOST]")
	pf.StringVar(&f.token, "token", os.Getenv("DATABRICKS_ACCESSTOKEN"), "personal access token [DATABRICKS_ACCESSTOKEN]")
	pf.BoolVar(&f.lz4, "lz4", false, "result files are lz4 compressed")
	pf.IntVar(&f.maxRetries, "max-retries", 3, "download attempts per link")
	pf.DurationVar(&f.retryDelay, "retry-delay", 500*time.Millisecond, "linear backoff unit between download attempts")
	pf.DurationVar(&f.timeout, "timeout", 5*time.Minute, "timeout of one download attempt")
	pf.DurationVar(&f.waitTimeout, "wait-timeout", 10*time.Minute, "how long to wait for the statement to finish, 0 waits forever")
	pf.IntVar(&f.showRows, "show", 0, "print the first n rows")
	pf.StringVar(&f.logLevel, "log-level", "", "trace, debug, info, warn, error or disabled")

	query := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a statement on a SQL warehouse and read its results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := newStatementAPI(f)
			if err != nil {
				return err
			}
			resp, err := rowscanner.ExecuteStatement(cmd.Context(), api, rowscanner.StatementRequest{
				Statement:   args[0],
				WarehouseId: f.warehouse,
				Catalog:     f.catalog,
				Schema:      f.schema,
			})
			if err != nil {
				return err
			}
			return readStatement(cmd.Context(), cmd.OutOrStdout(), api, resp.StatementId, f)
		},
	}
	query.Flags().StringVar(&f.warehouse, "warehouse", os.Getenv("DATABRICKS_HTTPPATH"), "warehouse id or http path [DATABRICKS_HTTPPATH]")
	query.Flags().StringVar(&f.catalog, "catalog", "", "initial catalog")
	query.Flags().StringVar(&f.schema, "schema", "", "initial schema")

	read := &cobra.Command{
		Use:   "read <statement-id>",
		Short: "Read the results of a statement that was already submitted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := newStatementAPI(f)
			if err != nil {
				return err
			}
			return readStatement(cmd.Context(), cmd.OutOrStdout(), api, args[0], f)
		},
	}

	root.AddCommand(query, read)
	return root
}

func readerOptions(f *flags) []cloudfetch.Option {
	return []cloudfetch.Option{
		cloudfetch.WithMaxRetries(f.maxRetries),
		cloudfetch.WithRetryDelay(f.retryDelay),
		cloudfetch.WithTimeout(f.timeout),
		cloudfetch.WithLz4Compression(f.lz4),
		cloudfetch.WithStatementWait(time.Second, f.waitTimeout),
	}
}

func readStatement(ctx context.Context, out io.Writer, api cloudfetch.StatementAPI, statementId string, f *flags) error {
	r, err := cloudfetch.NewStatementReader(ctx, api, statementId, nil, readerOptions(f)...)
	if err != nil {
		return err
	}
	defer r.Close()

	start := time.Now()
	var batches, total int64
	shown := 0
	for {
		rec, err := r.NextBatch(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		batches++
		total += rec.NumRows()
		shown += printRows(out, rec, f.showRows-shown)
		rec.Release()
	}

	fmt.Fprintf(out, "statement %s: %d rows in %d batches, %s\n", statementId, total, batches, time.Since(start).Round(time.Millisecond))
	return nil
}

// printRows writes up to n rows of rec, tab separated, and returns the number written.
func printRows(out io.Writer, rec arrow.Record, n int) int {
	if n <= 0 {
		return 0
	}
	if int64(n) > rec.NumRows() {
		n = int(rec.NumRows())
	}

	cols := make([]string, rec.NumCols())
	for i := 0; i < n; i++ {
		for j := range cols {
			cols[j] = valueString(rec.Column(j), i)
		}
		fmt.Fprintln(out, strings.Join(cols, "\t"))
	}
	return n
}

func valueString(col arrow.Array, i int) string {
	if col.IsNull(i) {
		return "NULL"
	}

	switch c := col.(type) {
	case *array.String:
		return c.Value(i)
	case *array.Int64:
		return fmt.Sprint(c.Value(i))
	case *array.Int32:
		return fmt.Sprint(c.Value(i))
	case *array.Float64:
		return fmt.Sprint(c.Value(i))
	case *array.Boolean:
		return fmt.Sprint(c.Value(i))
	}

	s := array.NewSlice(col, int64(i), int64(i+1))
	defer s.Release()
	return strings.Trim(fmt.Sprint(s), "[]")
}
