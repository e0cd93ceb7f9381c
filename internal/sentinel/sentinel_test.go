package sentinel

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestWatch(t *testing.T) {
	t.Parallel()

	t.Run("it should return immediatly", func(t *testing.T) {
		statusFnCalls := 0
		s := Sentinel{
			StatusFn: func(ctx context.Context) (bool, any, error) {
				statusFnCalls++
				return true, "completed", nil
			},
		}
		status, res, err := s.Watch(context.Background(), time.Hour, 0)
		assert.Equal(t, WatchSuccess, status)
		assert.Equal(t, "completed", res)
		assert.Equal(t, 1, statusFnCalls)
		assert.NoError(t, err)
	})

	t.Run("it should poll until done", func(t *testing.T) {
		statusFnCalls := 0
		s := Sentinel{
			StatusFn: func(ctx context.Context) (bool, any, error) {
				statusFnCalls++
				return statusFnCalls == 3, statusFnCalls, nil
			},
		}
		status, res, err := s.Watch(context.Background(), time.Millisecond, 0)
		assert.Equal(t, WatchSuccess, status)
		assert.Equal(t, 3, res)
		assert.NoError(t, err)
	})

	t.Run("it should stop on status error", func(t *testing.T) {
		boom := errors.New("boom")
		s := Sentinel{
			StatusFn: func(ctx context.Context) (bool, any, error) {
				return false, "FAILED", boom
			},
		}
		status, res, err := s.Watch(context.Background(), time.Millisecond, 0)
		assert.Equal(t, WatchErr, status)
		assert.Equal(t, "FAILED", res)
		assert.Equal(t, boom, err)
	})

	t.Run("it should timeout and cancel", func(t *testing.T) {
		statusFnCalls := 0
		cancelFnCalls := 0
		s := Sentinel{
			StatusFn: func(ctx context.Context) (bool, any, error) {
				statusFnCalls++
				return false, "RUNNING", nil
			},
			OnCancelFn: func() error {
				cancelFnCalls++
				return nil
			},
		}
		status, res, err := s.Watch(context.Background(), 10*time.Millisecond, 100*time.Millisecond)
		assert.Equal(t, WatchTimeout, status)
		assert.Equal(t, "RUNNING", res)
		assert.Greater(t, statusFnCalls, 1)
		assert.Equal(t, 1, cancelFnCalls)
		assert.True(t, errors.Is(err, ErrTimeout))
	})

	t.Run("it should cancel with context cancelation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()
		cancelFnCalls := 0
		s := Sentinel{
			StatusFn: func(ctx context.Context) (bool, any, error) {
				return false, nil, nil
			},
			OnCancelFn: func() error {
				cancelFnCalls++
				return nil
			},
		}
		status, _, err := s.Watch(ctx, 10*time.Millisecond, time.Minute)
		assert.Equal(t, WatchCanceled, status)
		assert.Equal(t, 1, cancelFnCalls)
		assert.True(t, errors.Is(err, context.Canceled))
	})

	t.Run("cancel errors are returned", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		cancelErr := errors.New("cancel failed")
		s := Sentinel{
			StatusFn: func(ctx context.Context) (bool, any, error) {
				return false, nil, nil
			},
			OnCancelFn: func() error { return cancelErr },
		}
		// the first status call races with ctx.Done, both outcomes end canceled
		status, _, err := s.Watch(ctx, time.Hour, 0)
		assert.Equal(t, WatchCanceled, status)
		assert.Equal(t, cancelErr, err)
	})

	t.Run("it should cancel when ctx ends during a status call", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		cancelFnCalls := 0
		s := Sentinel{
			StatusFn: func(ctx context.Context) (bool, any, error) {
				<-ctx.Done()
				return false, nil, ctx.Err()
			},
			OnCancelFn: func() error {
				cancelFnCalls++
				return nil
			},
		}
		status, _, err := s.Watch(ctx, time.Millisecond, 0)
		assert.Equal(t, WatchCanceled, status)
		assert.Equal(t, 1, cancelFnCalls)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})

	t.Run("it should timeout during a status call", func(t *testing.T) {
		cancelFnCalls := 0
		s := Sentinel{
			StatusFn: func(ctx context.Context) (bool, any, error) {
				<-ctx.Done()
				return false, nil, ctx.Err()
			},
			OnCancelFn: func() error {
				cancelFnCalls++
				return nil
			},
		}
		status, _, err := s.Watch(context.Background(), time.Millisecond, 20*time.Millisecond)
		assert.Equal(t, WatchTimeout, status)
		assert.Equal(t, 1, cancelFnCalls)
		assert.True(t, errors.Is(err, ErrTimeout))
	})

	t.Run("nil status function is done", func(t *testing.T) {
		status, _, err := Sentinel{}.Watch(context.Background(), 0, 0)
		assert.Equal(t, WatchSuccess, status)
		assert.NoError(t, err)
	})
}

func TestWatchStatusString(t *testing.T) {
	assert.Equal(t, "SUCCESS", WatchSuccess.String())
	assert.Equal(t, "ERROR", WatchErr.String())
	assert.Equal(t, "CANCELED", WatchCanceled.String())
	assert.Equal(t, "TIMEOUT", WatchTimeout.String())
	assert.Equal(t, "<UNSET>", WatchStatus(42).String())
}
