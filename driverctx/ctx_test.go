package driverctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextIds(t *testing.T) {
	t.Run("ids round trip through the context", func(t *testing.T) {
		ctx := NewContextWithCorrelationId(context.Background(), "corr")
		ctx = NewContextWithReaderId(ctx, "reader")
		ctx = NewContextWithStatementId(ctx, "stmt")

		assert.Equal(t, "corr", CorrelationIdFromContext(ctx))
		assert.Equal(t, "reader", ReaderIdFromContext(ctx))
		assert.Equal(t, "stmt", StatementIdFromContext(ctx))
	})

	t.Run("missing ids are empty", func(t *testing.T) {
		assert.Empty(t, CorrelationIdFromContext(context.Background()))
		assert.Empty(t, ReaderIdFromContext(context.Background()))
	})

	t.Run("background copy keeps ids but drops cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(NewContextWithReaderId(context.Background(), "reader"))
		cancel()

		bg := NewContextFromBackground(ctx)
		assert.NoError(t, bg.Err())
		assert.Equal(t, "reader", ReaderIdFromContext(bg))
	})
}
