package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/databricks/databricks-cloudfetch-go/internal/config"
	dbsqlerrint "github.com/databricks/databricks-cloudfetch-go/internal/errors"
	dbsqllog "github.com/databricks/databricks-cloudfetch-go/logger"
	"github.com/databricks/databricks-cloudfetch-go/rows"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
)

// Downloader retrieves the bytes of a result link.
type Downloader interface {
	// Fetch downloads the whole file referenced by link.
	Fetch(ctx context.Context, link rows.Link) ([]byte, error)

	// Close releases the transport. The Downloader must not be used afterwards.
	Close()
}

// Observer is notified of download activity. Implementations must be cheap.
type Observer interface {
	ObserveAttempt(attempt int)
	ObserveRetryWait(wait time.Duration)
	ObserveBytes(n int)
}

type DownloaderOption func(*downloader)

// WithHTTPClient sets the base client used for transfers. Its Timeout is
// overwritten with the configured download timeout.
func WithHTTPClient(c *http.Client) DownloaderOption {
	return func(d *downloader) {
		d.baseClient = c
	}
}

// WithObserver registers an observer of attempts, waits and bytes.
func WithObserver(o Observer) DownloaderOption {
	return func(d *downloader) {
		d.observer = o
	}
}

// WithLogger sets the logger used for download diagnostics.
func WithLogger(l *dbsqllog.DBSQLLogger) DownloaderOption {
	return func(d *downloader) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDownloader creates a Downloader. The underlying transport is created on
// the first call to Fetch.
func NewDownloader(cfg *config.CloudFetchConfig, opts ...DownloaderOption) *downloader {
	if cfg == nil {
		cfg = config.WithDefaults()
	}
	c := *cfg
	c.Normalize()

	d := &downloader{
		cfg:    c,
		logger: dbsqllog.Logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type downloader struct {
	cfg        config.CloudFetchConfig
	logger     *dbsqllog.DBSQLLogger
	observer   Observer
	baseClient *http.Client
	now        func() time.Time

	clientOnce sync.Once
	client     *retryablehttp.Client
}

var _ Downloader = (*downloader)(nil)

func (d *downloader) Fetch(ctx context.Context, link rows.Link) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, dbsqlerrint.NewCancellationError(ctx, dbsqlerrint.ErrCanceled, err)
	}

	if isLinkExpired(link.ExpiryTime, d.cfg.MinTimeToExpiry, d.now()) {
		msg := fmt.Sprintf("%s: %s expired at %s", dbsqlerrint.ErrLinkExpired, redactURL(link.URL), link.ExpiryTime.Format(time.RFC3339))
		return nil, dbsqlerrint.NewTransferError(ctx, msg, nil, 0, 0)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, link.URL, nil)
	if err != nil {
		return nil, dbsqlerrint.NewTransferError(ctx, dbsqlerrint.ErrInvalidURL, redactError(err), 0, 0)
	}

	res, err := d.getClient().Do(req)
	if err != nil {
		// cancellation wins over whatever the transport reported
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, dbsqlerrint.NewCancellationError(ctx, dbsqlerrint.ErrCanceled, ctxErr)
		}

		var gu *giveUpError
		if ok := errors.As(err, &gu); ok {
			msg := fmt.Sprintf("%s from %s after %d attempts", dbsqlerrint.ErrDownloadFailed, redactURL(link.URL), gu.attempts)
			if gu.statusCode != 0 {
				msg = fmt.Sprintf("%s, status %d", msg, gu.statusCode)
			}
			return nil, dbsqlerrint.NewTransferError(ctx, msg, gu.err, gu.statusCode, gu.attempts)
		}
		return nil, dbsqlerrint.NewTransferError(ctx, dbsqlerrint.ErrDownloadFailed, redactError(err), 0, 0)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, dbsqlerrint.NewCancellationError(ctx, dbsqlerrint.ErrCanceled, ctxErr)
		}
		return nil, dbsqlerrint.NewTransferError(ctx, dbsqlerrint.ErrDownloadFailed, err, res.StatusCode, 0)
	}

	if link.ByteCount > 0 && int64(len(data)) != link.ByteCount {
		d.logger.Debug().Msgf("cloudfetch: downloaded %d bytes, server reported %d", len(data), link.ByteCount)
	}
	if d.observer != nil {
		d.observer.ObserveBytes(len(data))
	}

	return data, nil
}

func (d *downloader) Close() {
	if d.client != nil {
		d.client.HTTPClient.CloseIdleConnections()
	}
}

func (d *downloader) getClient() *retryablehttp.Client {
	d.clientOnce.Do(func() {
		base := d.baseClient
		if base == nil {
			base = cleanhttp.DefaultPooledClient()
		} else {
			c := *base
			base = &c
		}
		base.Timeout = d.cfg.Timeout

		inner := base.Transport
		if inner == nil {
			inner = http.DefaultTransport
		}
		base.Transport = &bufferingTransport{inner: inner, logger: d.logger}

		c := retryablehttp.NewClient()
		c.HTTPClient = base
		c.Logger = &leveledLogger{logger: d.logger}
		c.RetryMax = d.cfg.MaxRetries - 1
		c.RetryWaitMin = d.cfg.RetryDelay
		c.RetryWaitMax = d.cfg.RetryDelay * time.Duration(d.cfg.MaxRetries)
		c.CheckRetry = retryOnFailure
		c.Backoff = d.backoff
		c.ErrorHandler = giveUp
		c.RequestLogHook = func(_ retryablehttp.Logger, _ *http.Request, attemptNum int) {
			if d.observer != nil {
				d.observer.ObserveAttempt(attemptNum + 1)
			}
		}

		d.client = c
	})

	return d.client
}

func (d *downloader) backoff(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
	wait := LinearBackoff(min, max, attemptNum, resp)
	d.logger.Warn().Msgf("cloudfetch: download attempt %d failed, retrying in %s", attemptNum+1, wait)
	if d.observer != nil {
		d.observer.ObserveRetryWait(wait)
	}
	return wait
}

// LinearBackoff waits min times the number of the attempt that just failed.
// attemptNum is zero based, as passed by retryablehttp.
func LinearBackoff(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
	return min * time.Duration(attemptNum+1)
}

// retryOnFailure retries every transport fault and non 2xx status
// unless the request context is done.
func retryOnFailure(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	if err != nil {
		return true, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return true, nil
	}

	return false, nil
}

// giveUpError records the outcome of the last attempt once retries are exhausted
type giveUpError struct {
	statusCode int
	attempts   int
	err        error
}

func (e *giveUpError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("giving up after %d attempt(s): %s", e.attempts, e.err.Error())
	}
	return fmt.Sprintf("giving up after %d attempt(s): status %d", e.attempts, e.statusCode)
}

func (e *giveUpError) Unwrap() error {
	return e.err
}

func giveUp(resp *http.Response, err error, numTries int) (*http.Response, error) {
	gu := &giveUpError{attempts: numTries, err: redactError(err)}
	if resp != nil {
		gu.statusCode = resp.StatusCode
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}
	return nil, gu
}

func isLinkExpired(expiryTime time.Time, minTimeToExpiry time.Duration, now time.Time) bool {
	if expiryTime.IsZero() {
		return false
	}
	return !expiryTime.Add(-minTimeToExpiry).After(now)
}

// maxPreallocBytes bounds the buffer reserved up front from Content-Length.
const maxPreallocBytes = 64 << 20

// bufferingTransport reads successful response bodies completely inside the
// round trip so that a failure while reading the body is retried like any
// other transport fault.
type bufferingTransport struct {
	inner  http.RoundTripper
	logger *dbsqllog.DBSQLLogger
}

func (t *bufferingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.inner.RoundTrip(req)
	if err != nil || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		t.logger.Debug().Msgf("cloudfetch: downloading file of size %.2f MB", float64(resp.ContentLength)/1024.0/1024.0)
		// the header is not trusted beyond a sizing hint
		if resp.ContentLength <= maxPreallocBytes {
			buf.Grow(int(resp.ContentLength))
		}
	}

	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}

	resp.Body = io.NopCloser(&buf)
	return resp, nil
}

// redactURL drops the query string, which holds the signature of a presigned URL.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.User = nil
	return u.String()
}

// redactError strips the query string from the URL carried by a *url.Error,
// as returned by http.Client and url.Parse.
func redactError(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	return &url.Error{Op: ue.Op, URL: redactURL(ue.URL), Err: ue.Err}
}

// leveledLogger routes retryablehttp logging to zerolog
type leveledLogger struct {
	logger *dbsqllog.DBSQLLogger
}

var _ retryablehttp.LeveledLogger = (*leveledLogger)(nil)

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	withFields(l.logger.Warn(), keysAndValues).Msg(msg)
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	withFields(l.logger.Debug(), keysAndValues).Msg(msg)
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	withFields(l.logger.Trace(), keysAndValues).Msg(msg)
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	withFields(l.logger.Warn(), keysAndValues).Msg(msg)
}
