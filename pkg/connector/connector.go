// Package connector defines the external collaborator contracts the core
// engine consumes but does not implement: sources that yield records and
// destinations that accept them. Concrete connectors (CSV, JSON, XML,
// SQL, blob/object stores) are out of scope for the core.
package connector

import (
	"context"

	"github.com/dataforge/etlengine/pkg/record"
)

// ErrorKind classifies a connector failure.
type ErrorKind string

const (
	ErrorKindConnectFailed ErrorKind = "connect_failed"
	ErrorKindAuthFailed    ErrorKind = "auth_failed"
	ErrorKindIOFailed      ErrorKind = "io_failed"
	ErrorKindFormatInvalid ErrorKind = "format_invalid"
)

// Error is the error type connectors return, carrying a classifying kind
// alongside the usual message/cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// ConnectionTestResult is returned by TestConnection.
type ConnectionTestResult struct {
	Success bool
	Message string
}

// Metadata describes a connector implementation and endpoint.
type Metadata struct {
	Version    string
	Properties map[string]string
}

// Source yields records from an external system. Read results are a
// finite, non-restartable sequence delivered in source order.
type Source interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	TestConnection(ctx context.Context) (ConnectionTestResult, error)
	Metadata(ctx context.Context) (Metadata, error)

	// EstimatedRecordCount reports a best-effort count, when known.
	EstimatedRecordCount(ctx context.Context) (count int64, known bool)

	// Read delivers records to the sink function until the source is
	// exhausted, the context is cancelled, or sink returns an error.
	// Implementations must observe ctx.Done() between records.
	Read(ctx context.Context, sink func(*record.Record) error) error
}

// Destination accepts records into an external system.
type Destination interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	TestConnection(ctx context.Context) (ConnectionTestResult, error)
	Metadata(ctx context.Context) (Metadata, error)

	Write(ctx context.Context, r *record.Record) error

	// WriteBatch writes a batch, returning the counts that succeeded and
	// failed rather than aborting on the first error.
	WriteBatch(ctx context.Context, records []*record.Record) (successful, failed int, err error)
}
