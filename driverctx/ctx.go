package driverctx

import (
	"context"
)

// Key name to look for Correlation Id in context
// using custom type to prevent key collision
type contextKey int

const (
	CorrelationIdContextKey contextKey = iota
	ReaderIdContextKey
	StatementIdContextKey
)

// NewContextWithCorrelationId creates a new context with correlationId value. Used by Logger to populate field corrId.
func NewContextWithCorrelationId(ctx context.Context, correlationId string) context.Context {
	return context.WithValue(ctx, CorrelationIdContextKey, correlationId)
}

// CorrelationIdFromContext retrieves the correlationId stored in context.
func CorrelationIdFromContext(ctx context.Context) string {
	return stringFromContext(ctx, CorrelationIdContextKey)
}

// NewContextWithReaderId creates a new context with readerId value.
// The reader id identifies one result stream in log messages and errors.
func NewContextWithReaderId(ctx context.Context, readerId string) context.Context {
	return context.WithValue(ctx, ReaderIdContextKey, readerId)
}

// ReaderIdFromContext retrieves the readerId stored in context.
func ReaderIdFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ReaderIdContextKey)
}

// NewContextWithStatementId creates a new context with the id of the statement
// whose results are being read.
func NewContextWithStatementId(ctx context.Context, statementId string) context.Context {
	return context.WithValue(ctx, StatementIdContextKey, statementId)
}

// StatementIdFromContext retrieves the statementId stored in context.
func StatementIdFromContext(ctx context.Context) string {
	return stringFromContext(ctx, StatementIdContextKey)
}

// NewContextFromBackground returns a background context carrying the ids of ctx.
// Useful when work must outlive the cancellation of ctx, e.g. cleanup.
func NewContextFromBackground(ctx context.Context) context.Context {
	newCtx := NewContextWithReaderId(context.Background(), ReaderIdFromContext(ctx))
	newCtx = NewContextWithCorrelationId(newCtx, CorrelationIdFromContext(ctx))
	return NewContextWithStatementId(newCtx, StatementIdFromContext(ctx))
}

func stringFromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}

	v, ok := ctx.Value(key).(string)
	if !ok {
		return ""
	}
	return v
}
