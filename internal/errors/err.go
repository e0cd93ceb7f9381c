package errors

import (
	"context"
	"fmt"

	"github.com/databricks/databricks-cloudfetch-go/driverctx"
	dbsqlerr "github.com/databricks/databricks-cloudfetch-go/errors"
	"github.com/pkg/errors"
)

// Error messages
const (
	ErrDownloadFailed     = "download failed"
	ErrLinkExpired        = "link expired"
	ErrInvalidURL         = "invalid URL"
	ErrDecompressFailed   = "lz4 decompression failed, data may be corrupted"
	ErrDecodeFailed       = "failed to decode arrow stream"
	ErrSchemaMismatch     = "arrow schema does not match the declared schema"
	ErrFetchPageFailed    = "server request for next result page failed"
	ErrEmptyPageWithMore  = "server returned an empty result page but reported more rows"
	ErrCanceled           = "operation canceled"
	ErrNilPageSource      = "nil page source"
	ErrNilSchema          = "nil arrow schema"
	ErrStatementNotReady  = "statement did not reach a terminal state"
	ErrStatementNotLinked = "statement result is not using external links"
)

type databricksError struct {
	err           error
	correlationId string
	readerId      string
	errType       string
}

var _ error = (*databricksError)(nil)

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func newDatabricksError(ctx context.Context, msg string, err error) databricksError {
	// create an error with the new message
	if err == nil {
		err = errors.New(msg)
	} else {
		err = errors.WithMessage(err, msg)
	}

	// if the source error does not have a stack trace in its
	// error chain add a stack trace
	var st stackTracer
	if ok := errors.As(err, &st); !ok {
		err = errors.WithStack(err)
	}

	return databricksError{
		err:           err,
		correlationId: driverctx.CorrelationIdFromContext(ctx),
		readerId:      driverctx.ReaderIdFromContext(ctx),
		errType:       "unknown",
	}
}

func (e databricksError) Error() string {
	return fmt.Sprintf("databricks: %s: %s", e.errType, e.err.Error())
}

func (e databricksError) Cause() error {
	return e.err
}

func (e databricksError) StackTrace() errors.StackTrace {
	var st stackTracer
	if ok := errors.As(e.err, &st); ok {
		return st.StackTrace()
	}

	return nil
}

func (e databricksError) CorrelationId() string {
	return e.correlationId
}

func (e databricksError) ReaderId() string {
	return e.readerId
}

// linkError is the common part of failures tied to one link of a result page.
// A negative linkIndex means the link position is not known yet.
type linkError struct {
	databricksError
	linkIndex int
	stage     dbsqlerr.Stage
}

func (e linkError) Error() string {
	if e.linkIndex < 0 {
		return e.databricksError.Error()
	}
	return fmt.Sprintf("databricks: %s: cloudfetch link %d: %s: %s", e.errType, e.linkIndex, e.stage, e.err.Error())
}

func (e linkError) LinkIndex() int {
	return e.linkIndex
}

func (e linkError) Stage() dbsqlerr.Stage {
	return e.stage
}

func newLinkError(ctx context.Context, errType string, stage dbsqlerr.Stage, linkIndex int, msg string, err error) linkError {
	dbErr := newDatabricksError(ctx, msg, err)
	dbErr.errType = errType
	return linkError{databricksError: dbErr, linkIndex: linkIndex, stage: stage}
}

// transferError is a network or status failure while downloading a link
type transferError struct {
	linkError
	statusCode int
	attempts   int
}

var _ dbsqlerr.DBTransferError = (*transferError)(nil)

func (e transferError) Is(err error) bool {
	return err == dbsqlerr.TransferError
}

func (e transferError) Unwrap() error {
	return e.err
}

func (e transferError) StatusCode() int {
	return e.statusCode
}

func (e transferError) Attempts() int {
	return e.attempts
}

func NewTransferError(ctx context.Context, msg string, err error, statusCode int, attempts int) *transferError {
	return &transferError{
		linkError:  newLinkError(ctx, "transfer error", dbsqlerr.StageDownload, -1, msg, err),
		statusCode: statusCode,
		attempts:   attempts,
	}
}

// corruptionError means transferred bytes could not be decompressed
type corruptionError struct {
	linkError
}

var _ dbsqlerr.DBCorruptionError = (*corruptionError)(nil)

func (e corruptionError) Is(err error) bool {
	return err == dbsqlerr.CorruptionError
}

func (e corruptionError) Unwrap() error {
	return e.err
}

func NewCorruptionError(ctx context.Context, linkIndex int, msg string, err error) *corruptionError {
	return &corruptionError{linkError: newLinkError(ctx, "corruption error", dbsqlerr.StageDecompress, linkIndex, msg, err)}
}

// decodeError is malformed arrow framing or a schema mismatch
type decodeError struct {
	linkError
}

var _ dbsqlerr.DBDecodeError = (*decodeError)(nil)

func (e decodeError) Is(err error) bool {
	return err == dbsqlerr.DecodeError
}

func (e decodeError) Unwrap() error {
	return e.err
}

func NewDecodeError(ctx context.Context, linkIndex int, msg string, err error) *decodeError {
	return &decodeError{linkError: newLinkError(ctx, "decode error", dbsqlerr.StageDecode, linkIndex, msg, err)}
}

// protocolError is a failed control plane page fetch
type protocolError struct {
	databricksError
	watermark int64
}

var _ dbsqlerr.DBProtocolError = (*protocolError)(nil)

func (e protocolError) Is(err error) bool {
	return err == dbsqlerr.ProtocolError
}

func (e protocolError) Unwrap() error {
	return e.err
}

func (e protocolError) Watermark() int64 {
	return e.watermark
}

func (e protocolError) Stage() dbsqlerr.Stage {
	return dbsqlerr.StageFetchPage
}

func NewProtocolError(ctx context.Context, watermark int64, msg string, err error) *protocolError {
	dbErr := newDatabricksError(ctx, msg, err)
	dbErr.errType = "protocol error"
	return &protocolError{databricksError: dbErr, watermark: watermark}
}

// cancellationError reports that the caller's context ended an operation.
// The wrapped context error stays reachable through Unwrap.
type cancellationError struct {
	databricksError
}

var _ dbsqlerr.DatabricksError = (*cancellationError)(nil)

func (e cancellationError) Is(err error) bool {
	return err == dbsqlerr.CancellationError
}

func (e cancellationError) Unwrap() error {
	return e.err
}

func NewCancellationError(ctx context.Context, msg string, err error) *cancellationError {
	if err == nil {
		err = context.Canceled
	}
	dbErr := newDatabricksError(ctx, msg, err)
	dbErr.errType = "canceled"
	return &cancellationError{databricksError: dbErr}
}

// driverError are issues with how the reader is used or configured
type driverError struct {
	databricksError
}

func (e driverError) Unwrap() error {
	return e.err
}

func NewDriverError(ctx context.Context, msg string, err error) *driverError {
	dbErr := newDatabricksError(ctx, msg, err)
	dbErr.errType = "driver error"
	return &driverError{databricksError: dbErr}
}

// WithLinkIndex returns a copy of a link error positioned at linkIndex.
// Errors that are not link errors are returned unchanged.
func WithLinkIndex(err error, linkIndex int) error {
	switch e := err.(type) {
	case *transferError:
		c := *e
		c.linkIndex = linkIndex
		return &c
	case *corruptionError:
		c := *e
		c.linkIndex = linkIndex
		return &c
	case *decodeError:
		c := *e
		c.linkIndex = linkIndex
		return &c
	}
	return err
}

// IsCancellation reports whether err was caused by a canceled or expired context.
func IsCancellation(err error) bool {
	return errors.Is(err, dbsqlerr.CancellationError) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// wraps an error and adds trace if not already present
func WrapErr(err error, msg string) error {
	var st stackTracer
	if ok := errors.As(err, &st); ok {
		// wrap passed in error in a new error with the message
		return errors.WithMessage(err, msg)
	}

	// wrap passed in error in errors with the message and a stack trace
	return errors.Wrap(err, msg)
}

// adds a stack trace if not already present
func WrapErrf(err error, format string, args ...interface{}) error {
	var st stackTracer
	if ok := errors.As(err, &st); ok {
		// wrap passed in error in a new error with the formatted message
		return errors.WithMessagef(err, format, args...)
	}

	// wrap passed in error in errors with the formatted message and a stack trace
	return errors.Wrapf(err, format, args...)
}
