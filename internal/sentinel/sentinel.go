package sentinel

import (
	"context"
	"time"

	dbsqllog "github.com/databricks/databricks-cloudfetch-go/logger"
	"github.com/pkg/errors"
)

const DEFAULT_INTERVAL = 100 * time.Millisecond

var ErrTimeout = errors.New("sentinel timed out")

type WatchStatus int

const (
	WatchSuccess WatchStatus = iota
	WatchErr
	WatchTimeout
	WatchCanceled
)

func (s WatchStatus) String() string {
	switch s {
	case WatchSuccess:
		return "SUCCESS"
	case WatchErr:
		return "ERROR"
	case WatchCanceled:
		return "CANCELED"
	case WatchTimeout:
		return "TIMEOUT"
	}
	return "<UNSET>"
}

// Sentinel polls the status of a long running server side operation.
type Sentinel struct {
	// StatusFn reports whether the operation is done, along with the last status seen.
	StatusFn func(ctx context.Context) (done bool, status any, err error)
	// OnCancelFn is called when the watch is abandoned by timeout or cancellation.
	OnCancelFn func() error
	Logger     *dbsqllog.DBSQLLogger
}

// Watch calls StatusFn immediately and then on every interval until it reports done
// or returns an error. A zero timeout waits until ctx is done. A poll that is still
// in flight when ctx ends or the timeout expires is abandoned through the same
// cancel path.
func (s Sentinel) Watch(ctx context.Context, interval, timeout time.Duration) (WatchStatus, any, error) {
	if s.StatusFn == nil {
		return WatchSuccess, nil, nil
	}
	if s.Logger == nil {
		s.Logger = dbsqllog.Logger
	}
	if interval <= 0 {
		interval = DEFAULT_INTERVAL
	}

	var timeoutTimerCh <-chan time.Time
	pollCtx := ctx
	if timeout > 0 {
		timeoutTimer := time.NewTimer(timeout)
		timeoutTimerCh = timeoutTimer.C
		defer timeoutTimer.Stop()

		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	intervalTimer := time.NewTimer(0)
	defer intervalTimer.Stop()

	var last any
	for {
		select {
		case <-intervalTimer.C:
			done, status, err := s.StatusFn(pollCtx)
			if status != nil {
				last = status
			}
			if err != nil {
				if ctx.Err() != nil {
					return s.canceled(ctx, last)
				}
				if pollCtx.Err() != nil {
					return s.timedOut(timeout, last)
				}
				return WatchErr, status, err
			}
			if done {
				return WatchSuccess, status, nil
			}
			s.Logger.Trace().Msgf("sentinel: not done, polling again in %s", interval)
			_ = intervalTimer.Reset(interval)
		case <-ctx.Done():
			return s.canceled(ctx, last)
		case <-timeoutTimerCh:
			return s.timedOut(timeout, last)
		}
	}
}

func (s Sentinel) canceled(ctx context.Context, last any) (WatchStatus, any, error) {
	err := s.cancel()
	if err == nil {
		err = ctx.Err()
	}
	return WatchCanceled, last, err
}

func (s Sentinel) timedOut(timeout time.Duration, last any) (WatchStatus, any, error) {
	s.Logger.Info().Msgf("sentinel: wait timed out after %s", timeout)
	if err := s.cancel(); err != nil {
		return WatchTimeout, last, err
	}
	return WatchTimeout, last, ErrTimeout
}

func (s Sentinel) cancel() error {
	if s.OnCancelFn == nil {
		return nil
	}
	return s.OnCancelFn()
}
