package arrowbased

import (
	"time"

	dbsqlerr "github.com/databricks/databricks-cloudfetch-go/errors"
	"github.com/databricks/databricks-cloudfetch-go/internal/fetcher"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "databricks_cloudfetch"

// Metrics collects prometheus metrics for cloud fetch readers.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	downloadAttempts prometheus.Counter
	retryWaitSeconds prometheus.Counter
	bytesDownloaded  prometheus.Counter
	linkFailures     *prometheus.CounterVec
	pagesFetched     prometheus.Counter
	batchesReturned  prometheus.Counter
	rowsReturned     prometheus.Counter
}

var _ fetcher.Observer = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them with reg. Collectors
// already registered by an earlier call are shared. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		downloadAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "download_attempts_total",
			Help:      "Number of HTTP attempts made to download result links.",
		}),
		retryWaitSeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "retry_wait_seconds_total",
			Help:      "Time spent waiting between download attempts.",
		}),
		bytesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "downloaded_bytes_total",
			Help:      "Bytes downloaded from result links, before decompression.",
		}),
		linkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "link_failures_total",
			Help:      "Result links that failed, by pipeline stage.",
		}, []string{"stage"}),
		pagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "pages_fetched_total",
			Help:      "Result pages requested from the server.",
		}),
		batchesReturned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "batches_returned_total",
			Help:      "Record batches returned to readers.",
		}),
		rowsReturned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rows_returned_total",
			Help:      "Rows returned to readers.",
		}),
	}

	if reg == nil {
		return m, nil
	}

	var err error
	for _, c := range []*prometheus.Counter{
		&m.downloadAttempts,
		&m.retryWaitSeconds,
		&m.bytesDownloaded,
		&m.pagesFetched,
		&m.batchesReturned,
		&m.rowsReturned,
	} {
		if *c, err = register(reg, *c); err != nil {
			return nil, err
		}
	}
	if m.linkFailures, err = register(reg, m.linkFailures); err != nil {
		return nil, err
	}

	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}

	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	return c, err
}

func (m *Metrics) ObserveAttempt(attempt int) {
	if m != nil {
		m.downloadAttempts.Inc()
	}
}

func (m *Metrics) ObserveRetryWait(wait time.Duration) {
	if m != nil {
		m.retryWaitSeconds.Add(wait.Seconds())
	}
}

func (m *Metrics) ObserveBytes(n int) {
	if m != nil {
		m.bytesDownloaded.Add(float64(n))
	}
}

func (m *Metrics) observeLinkFailure(stage dbsqlerr.Stage) {
	if m != nil {
		m.linkFailures.WithLabelValues(string(stage)).Inc()
	}
}

func (m *Metrics) observePage() {
	if m != nil {
		m.pagesFetched.Inc()
	}
}

func (m *Metrics) observeBatch(rows int64) {
	if m != nil {
		m.batchesReturned.Inc()
		m.rowsReturned.Add(float64(rows))
	}
}
