/*
Package cloudfetch reads query results that a Databricks SQL warehouse hands out as
short lived cloud storage links.

Results arrive as pages of links. Each link covers a contiguous range of rows and
points at a file holding an arrow IPC stream, optionally lz4 compressed. A reader
pages through the links in row order, downloads each file with a bounded number of
attempts, decodes it and returns its record batches one at a time.

# Reading a result

A PageSource returns the page of links starting at a given row:

	source := rows.PageSourceFunc(func(ctx context.Context, watermark int64) (*rows.Page, error) {
		return fetchLinksFromServer(ctx, watermark)
	})

	r, err := cloudfetch.NewReader(ctx, source, schema,
		cloudfetch.WithLz4Compression(true),
		cloudfetch.WithMaxRetries(5),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer r.Close()

	for {
		rec, err := r.NextBatch(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatal(err)
		}
		// use rec
		rec.Release()
	}

Records are retained for the caller and must be released.

# Reading a statement

NewStatementReader reads the results of a statement submitted through the Databricks
SQL statement execution API with the EXTERNAL_LINKS disposition and the ARROW_STREAM
format. It waits for the statement to succeed and pages through its result chunks:

	api, err := cloudfetch.NewStatementAPI(os.Getenv("DATABRICKS_HOST"), os.Getenv("DATABRICKS_ACCESSTOKEN"))
	if err != nil {
		log.Fatal(err)
	}

	r, err := cloudfetch.NewStatementReader(ctx, api, statementId, nil,
		cloudfetch.WithStatementWait(time.Second, 10*time.Minute),
	)

A nil schema is taken from the first result file.

# Configuration

Downloads are retried with a linear backoff: the wait before attempt n+1 is n times
the retry delay. The settings can be given as options or read from connection
properties with WithConnectionParams:

  - cloudFetchMaxRetries: total attempts per link. Default is 3
  - cloudFetchRetryDelayMs: backoff unit in milliseconds. Default is 500
  - cloudFetchTimeoutMinutes: timeout of a single attempt. Default is 5
  - cloudFetchMinTimeToExpirySeconds: links expiring sooner are not downloaded
  - useLz4Compression: result files are lz4 frame compressed. Default is false

# Errors

Failures are reported with the kinds defined in the errors package. Use errors.Is
to check the kind and errors.As to get the details:

	var te dbsqlerr.DBTransferError
	if errors.As(err, &te) {
		fmt.Println(te.LinkIndex(), te.StatusCode(), te.Attempts())
	}

  - TransferError: a link could not be downloaded after all attempts
  - CorruptionError: a downloaded file could not be decompressed
  - DecodeError: a file is not an arrow stream of the declared schema
  - ProtocolError: the page source failed
  - CancellationError: the context was canceled, also matches context.Canceled

A link failure ends the stream: every later call to NextBatch returns the same
error. This includes a download interrupted by cancellation, since a link is never
downloaded twice. A call canceled while waiting for a result page can be repeated.

# Logging

The logger package writes json logs with zerolog, or a console format when attached
to a terminal. The level is read from DATABRICKS_LOG_LEVEL and can be changed with
logger.SetLogLevel. Every line carries the reader id and the correlation id set with
WithCorrelationId.

# Metrics

WithMetrics registers prometheus counters for download attempts, retry waits,
downloaded bytes, failed links, pages, batches and rows.
*/
package cloudfetch
