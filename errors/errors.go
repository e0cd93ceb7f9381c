package errors

import "github.com/pkg/errors"

// value to be used with errors.Is() to determine if an error chain contains a transfer error
var TransferError error = errors.New("Transfer Error")

// value to be used with errors.Is() to determine if an error chain contains a corruption error
var CorruptionError error = errors.New("Corruption Error")

// value to be used with errors.Is() to determine if an error chain contains a decode error
var DecodeError error = errors.New("Decode Error")

// value to be used with errors.Is() to determine if an error chain contains a protocol error
var ProtocolError error = errors.New("Protocol Error")

// value to be used with errors.Is() to determine if an error chain contains a cancellation.
// Cancellation errors also match context.Canceled or context.DeadlineExceeded.
var CancellationError error = errors.New("Cancellation Error")

// Stage of the link pipeline where a failure happened.
type Stage string

const (
	StageDownload   Stage = "download"
	StageDecompress Stage = "decompress"
	StageDecode     Stage = "decode"
	StageFetchPage  Stage = "fetch page"
)

// Base interface for reader errors
type DatabricksError interface {
	// Descriptive message describing the error
	Error() string

	// User specified id to track what happens under a request.
	// Appears in log messages as field corrId.  See driverctx.NewContextWithCorrelationId()
	CorrelationId() string

	// Internal id of the result stream that produced the error.
	// Appears in log messages as field readerId.
	ReaderId() string

	// Stack trace associated with the error.  May be nil.
	StackTrace() errors.StackTrace

	// Underlying causative error. May be nil.
	Cause() error
}

// An error raised while processing one link of a result stream.
type DBLinkError interface {
	DatabricksError

	// Position of the link in its result page.
	LinkIndex() int

	// Pipeline stage that failed.
	Stage() Stage
}

// A failure to transfer the bytes of a link, after any retries.
type DBTransferError interface {
	DBLinkError

	// HTTP status code of the last attempt, 0 if no response was received.
	StatusCode() int

	// Number of attempts made.
	Attempts() int
}

// Transferred bytes that could not be decompressed.
type DBCorruptionError interface {
	DBLinkError
}

// Bytes that could not be decoded as arrow record batches of the expected schema.
type DBDecodeError interface {
	DBLinkError
}

// A failure of the control plane to provide the next page of links.
type DBProtocolError interface {
	DatabricksError

	// Row watermark that was sent with the failed request.
	Watermark() int64

	// Always StageFetchPage.
	Stage() Stage
}
