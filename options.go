package cloudfetch

import (
	"net/http"
	"time"

	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/databricks/databricks-cloudfetch-go/internal/config"
	dbsqllog "github.com/databricks/databricks-cloudfetch-go/logger"
	"github.com/prometheus/client_golang/prometheus"
)

type options struct {
	cfg           *config.CloudFetchConfig
	logger        *dbsqllog.DBSQLLogger
	mem           memory.Allocator
	registerer    prometheus.Registerer
	httpClient    *http.Client
	correlationId string

	// statement readers only
	pollInterval time.Duration
	waitTimeout  time.Duration
}

func newOptions(opts []Option) *options {
	o := &options{cfg: config.WithDefaults()}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Option configures a reader.
type Option func(*options)

// WithMaxRetries sets the total number of download attempts per link.
// Values below 1 are ignored. Default is 3.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.cfg.MaxRetries = n
		}
	}
}

// WithRetryDelay sets the unit of the linear backoff: the wait before attempt
// n+1 is n times the delay. Default is 500ms.
func WithRetryDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.cfg.RetryDelay = d
		}
	}
}

// WithTimeout sets the timeout of a single download attempt. Default is 5 minutes.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.cfg.Timeout = d
		}
	}
}

// WithLz4Compression marks result files as lz4 frame compressed.
func WithLz4Compression(useLz4 bool) Option {
	return func(o *options) {
		o.cfg.UseLz4Compression = useLz4
	}
}

// WithMinTimeToExpiry skips the download of links expiring within d.
func WithMinTimeToExpiry(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.cfg.MinTimeToExpiry = d
		}
	}
}

// WithConnectionParams reads the cloud fetch settings from connection properties:
//
//   - cloudFetchMaxRetries
//   - cloudFetchRetryDelayMs
//   - cloudFetchTimeoutMinutes
//   - cloudFetchMinTimeToExpirySeconds
//   - useLz4Compression
//
// Missing or invalid values leave the current setting unchanged.
func WithConnectionParams(params map[string]string) Option {
	return func(o *options) {
		config.ApplyCloudFetchParams(o.cfg, params)
	}
}

// WithLogger sets the logger. By default the package logger tagged with the
// reader and correlation ids is used.
func WithLogger(l *dbsqllog.DBSQLLogger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithAllocator sets the arrow allocator for decoded records.
func WithAllocator(mem memory.Allocator) Option {
	return func(o *options) {
		o.mem = mem
	}
}

// WithMetrics registers reader metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithHTTPClient sets the base client for downloads. Its transport is used for
// every attempt. The client is copied, not modified.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithCorrelationId attaches a caller supplied id to logs and errors.
func WithCorrelationId(id string) Option {
	return func(o *options) {
		o.correlationId = id
	}
}

// WithStatementWait sets how often a running statement is polled, and for how
// long, before its results are read. A zero timeout waits until the context is done.
func WithStatementWait(interval, timeout time.Duration) Option {
	return func(o *options) {
		o.pollInterval = interval
		o.waitTimeout = timeout
	}
}
