// Package copy implements the COPY sub-protocol: streaming bulk row
// data into or out of the backend in TEXT, CSV, or BINARY framing, with
// atomic and partitioned-non-atomic commit policies for COPY IN.
package copy

import (
	"errors"
	"fmt"
)

// Format is the wire framing COPY data is encoded in.
type Format int

const (
	FormatText Format = iota
	FormatCSV
	FormatBinary
)

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatBinary:
		return "binary"
	default:
		return "text"
	}
}

// CSVOptions configures the CSV variant of the framing. Zero value is
// not valid; DefaultCSVOptions fills in PostgreSQL's defaults.
type CSVOptions struct {
	Delimiter byte
	Quote     byte
	Escape    byte
	Null      string
	Header    bool
}

// DefaultCSVOptions matches PostgreSQL's COPY ... CSV defaults.
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{Delimiter: ',', Quote: '"', Escape: '"', Null: ""}
}

// Direction distinguishes COPY ... FROM STDIN from COPY ... TO STDOUT.
type Direction int

const (
	DirectionIn Direction = iota
	DirectionOut
)

// MutationPolicy controls how a COPY IN commits its rows.
type MutationPolicy struct {
	// Atomic, when true, requires the whole COPY to commit as one
	// backend transaction; the engine rejects the copy up front if its
	// total mutation count would exceed Limit before writing any row.
	Atomic bool

	// Limit is the mutation ceiling: row_count * (column_count +
	// IndexedColumns) may not exceed this in atomic mode, and bounds
	// each partitioned commit's batch size otherwise.
	Limit int64

	// IndexedColumns is the number of indexed columns on the target
	// table, supplied by the backend driver; it factors into the
	// mutation count the same way an inserted column does.
	IndexedColumns int
}

// ErrMutationLimitExceeded is returned when an atomic COPY IN's row
// count would exceed the configured mutation ceiling.
var ErrMutationLimitExceeded = errors.New("copy: mutation limit exceeded, switch to partitioned (non-atomic) mode")

// FormatError marks a row that failed to parse under the chosen framing.
type FormatError struct {
	Cause error
}

func (e *FormatError) Error() string { return fmt.Sprintf("malformed COPY data: %s", e.Cause) }
func (e *FormatError) Unwrap() error { return e.Cause }

// State tracks one in-progress COPY sub-protocol exchange for a
// session. Only one State is ever active per session at a time; the
// session engine owns its lifetime and clears it on completion.
type State struct {
	Direction Direction

	In  *InState
	Out *OutState
}

// NewIn wraps an InState as the session's active COPY IN.
func NewIn(in *InState) *State {
	return &State{Direction: DirectionIn, In: in}
}

// NewOut wraps an OutState as the session's active COPY OUT.
func NewOut(out *OutState) *State {
	return &State{Direction: DirectionOut, Out: out}
}
