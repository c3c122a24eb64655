// Package backend defines the contract between the session engine and
// whatever system actually executes SQL. The session engine never talks
// to a concrete database client directly; it only depends on the Driver
// and Tx interfaces in this file, so a new backend (a different driver,
// a mock for tests, a service that only speaks a REST dialect) can be
// dropped in without touching wire protocol or transaction-state code.
package backend

import (
	"context"
	"io"
)

// Driver opens transactions against a backend database on behalf of a
// single logical session. Implementations are free to pool physical
// connections underneath; Driver itself is the per-session handle.
type Driver interface {
	// Begin starts a new unit of work. readOnly is a hint the backend
	// may use to route to a replica or relax locking; it is not a
	// correctness guarantee enforced by the caller.
	Begin(ctx context.Context, readOnly bool) (Tx, error)

	// SetSessionParameter applies a session-scoped configuration value
	// (for example a SET statement the classifier recognized as backend-
	// relevant). Implementations that have no such notion can no-op.
	SetSessionParameter(ctx context.Context, name, value string) error

	// GetSessionParameter returns the current value of a session
	// parameter, or ok=false if the backend does not track it.
	GetSessionParameter(name string) (value string, ok bool)

	// Close releases all resources held for this session.
	Close(ctx context.Context) error
}

// Tx is a single unit of work: either an explicit transaction opened by
// BEGIN, or the implicit single-statement transaction that wraps a bare
// simple-query statement outside of BEGIN/COMMIT.
type Tx interface {
	// Execute runs one statement with the given positional parameter
	// values and returns its result. maxRows, if nonzero, caps the
	// number of rows materialized before the cursor is left suspended
	// for a later Execute call against the same Statement.
	Execute(ctx context.Context, stmt *Statement, params []Value, maxRows int) (*Result, error)

	// ExecuteBatch runs multiple statements as a single dispatch to the
	// backend, preserving the order of results in the returned slice.
	// If atomic is true, the backend must treat the batch as all-or-
	// nothing; if false, an error on one statement does not prevent
	// the remaining statements in the batch from being attempted, and
	// Results contains an entry (possibly an error Result) for every
	// input statement in order.
	ExecuteBatch(ctx context.Context, batch []BatchItem, atomic bool) ([]*Result, error)

	// Commit finalizes the transaction.
	Commit(ctx context.Context) error

	// Rollback discards the transaction's effects.
	Rollback(ctx context.Context) error

	// CopyWriter begins a COPY ... FROM STDIN destined for table/columns
	// described by stmt. Every row written to the returned CopyWriter is
	// one unit of the mutation accounting the session layer tracks.
	CopyWriter(ctx context.Context, stmt *Statement) (CopyWriter, error)

	// CopyReader begins a COPY ... TO STDOUT sourced from stmt.
	CopyReader(ctx context.Context, stmt *Statement) (CopyReader, error)
}

// BatchItem pairs a statement with the parameter values bound for one
// execution within a batch dispatch.
type BatchItem struct {
	Statement *Statement
	Params    []Value
}

// Statement is the backend-facing description of a single SQL statement,
// already classified and rewritten by the classifier package. The
// session engine constructs one of these per named statement or simple
// query before handing it to a Driver.
type Statement struct {
	// SQL is the (possibly rewritten) statement text the backend should
	// execute, with positional placeholders in the backend's own
	// notation already substituted if the backend needs that; drivers
	// that accept $N placeholders natively can use SQL unmodified.
	SQL string

	// ParamOIDs are the PostgreSQL type OIDs of SQL's placeholders, in
	// order, as determined or inferred during Parse/Describe.
	ParamOIDs []uint32

	// ResultColumns describes the statement's projection, or nil for
	// statements that return no rows.
	ResultColumns []ResultColumn

	// Name is the local-intercept catalogue key for statements handled
	// without ever reaching the backend, or "" otherwise.
	Name string
}

// ResultColumn describes one column of a statement's result set.
type ResultColumn struct {
	Name         string
	OID          uint32
	TypeModifier int32
}

// Value is a single decoded parameter or result value passed across the
// Driver boundary. Concrete Go types map onto PostgreSQL types the way
// the codec package's wire encoders expect: int64, float64, bool,
// string, []byte, time.Time, *apd.Decimal, nil, or a []Value for arrays.
type Value = any

// Result is the outcome of executing one statement.
type Result struct {
	// Columns mirrors Statement.ResultColumns for statements that
	// return rows; nil for statements that do not.
	Columns []ResultColumn

	// Rows holds at most maxRows decoded result rows. Suspended is true
	// when more rows remain beyond what was returned.
	Rows      [][]Value
	Suspended bool

	// Tag is the command tag reported in CommandComplete, e.g.
	// "INSERT 0 3" or "SELECT 5".
	Tag string

	// RowsAffected is the count backing Tag for DML statements.
	RowsAffected int64

	// Err, if non-nil, marks this Result as a per-statement failure
	// within a non-atomic batch rather than a transport-level error.
	Err error
}

// CopyWriter receives rows during a COPY ... FROM STDIN.
type CopyWriter interface {
	// WriteRow writes one decoded row to the backend.
	WriteRow(ctx context.Context, row []Value) error

	// Commit finalizes the copy after all rows have been written.
	Commit(ctx context.Context) error

	// Abort cancels the copy; any rows already written are discarded
	// if the backend supports atomic COPY, or left applied if the
	// backend is operating in partitioned non-atomic mode.
	Abort(ctx context.Context, reason error) error
}

// CopyReader produces rows during a COPY ... TO STDOUT.
type CopyReader interface {
	// ReadRow returns the next row, or io.EOF when exhausted.
	ReadRow(ctx context.Context) ([]Value, error)

	io.Closer
}

// SQLStateError is implemented by backend errors that carry a specific
// PostgreSQL SQLSTATE code. Errors that do not implement this interface
// are reported to the client as a generic internal error.
type SQLStateError interface {
	error
	SQLState() string
}
