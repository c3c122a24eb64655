package copy

import (
	"bytes"
	"context"
	"fmt"

	"github.com/sqlgateway/pgadapter/pkg/backend"
	"github.com/sqlgateway/pgadapter/pkg/codec"
)

func errColumnCountMismatch(got, want int) error {
	return fmt.Errorf("expected %d columns, got %d", want, got)
}

// textEndMarker is the line COPY IN text/CSV framing uses to mark
// end-of-data when the client chooses to send one.
var textEndMarker = []byte(`\.`)

// InState drives one COPY ... FROM STDIN: it accumulates CopyData bytes,
// parses complete records under the chosen framing, and forwards them
// to the backend, either buffering everything for one atomic commit or
// streaming and committing in mutation-limited partitions.
type InState struct {
	tx      backend.Tx
	stmt    *backend.Statement
	format  Format
	csv     CSVOptions
	columns []backend.ResultColumn
	policy  MutationPolicy

	mutationsPerRow int64

	lineBuf bytes.Buffer
	csvScan *csvScanner
	binScan *binaryScanner

	writer       backend.CopyWriter
	pendingAtomic [][]backend.Value
	rowCount     int64
	batchRows    int64

	draining bool
	firstErr error
	complete bool
}

// NewInState prepares a COPY IN driven against tx for a table described
// by stmt.ResultColumns, which are interpreted as the destination
// columns in wire order.
func NewInState(tx backend.Tx, stmt *backend.Statement, format Format, csv CSVOptions, policy MutationPolicy) *InState {
	s := &InState{
		tx:              tx,
		stmt:            stmt,
		format:          format,
		csv:             csv,
		columns:         stmt.ResultColumns,
		policy:          policy,
		mutationsPerRow: int64(len(stmt.ResultColumns) + policy.IndexedColumns),
	}
	switch format {
	case FormatCSV:
		s.csvScan = newCSVScanner(csv)
	case FormatBinary:
		s.binScan = newBinaryScanner()
	}
	if s.mutationsPerRow <= 0 {
		s.mutationsPerRow = 1
	}
	return s
}

// Feed processes one CopyData frame's payload. It never returns an
// error for a malformed row; instead it records the first error and
// enters the draining substate, silently discarding further input
// until CopyDone or CopyFail, per the protocol's COPY IN error policy.
func (s *InState) Feed(ctx context.Context, data []byte) error {
	if s.draining || s.complete {
		return nil
	}

	rawRows, terminated, err := s.extractRows(data)
	if err != nil {
		s.enterDraining(err)
		return nil
	}

	for _, raw := range rawRows {
		values, err := s.decodeRow(raw)
		if err != nil {
			s.enterDraining(err)
			return nil
		}
		if err := s.acceptRow(ctx, values); err != nil {
			s.enterDraining(err)
			return nil
		}
	}

	if terminated {
		s.complete = true
	}
	return nil
}

func (s *InState) extractRows(data []byte) (rows [][][]byte, terminated bool, err error) {
	switch s.format {
	case FormatCSV:
		return s.csvScan.feed(data), false, nil
	case FormatBinary:
		rows, err = s.binScan.feed(data)
		return rows, s.binScan.done, err
	default:
		s.lineBuf.Write(data)
		buf := s.lineBuf.Bytes()
		start := 0
		for {
			idx := bytes.IndexByte(buf[start:], '\n')
			if idx < 0 {
				break
			}
			line := buf[start : start+idx]
			if bytes.Equal(bytes.TrimRight(line, "\r"), textEndMarker) {
				terminated = true
				start += idx + 1
				break
			}
			rows = append(rows, [][]byte{line})
			start += idx + 1
		}
		remainder := append([]byte(nil), buf[start:]...)
		s.lineBuf.Reset()
		s.lineBuf.Write(remainder)
		return rows, terminated, nil
	}
}

func (s *InState) decodeRow(raw [][]byte) ([]backend.Value, error) {
	var fields [][]byte
	switch s.format {
	case FormatText:
		fields = splitTextFields(raw[0])
	default:
		fields = raw
	}
	if len(s.columns) > 0 && len(fields) != len(s.columns) {
		return nil, &FormatError{Cause: errColumnCountMismatch(len(fields), len(s.columns))}
	}

	values := make([]backend.Value, len(fields))
	for i, f := range fields {
		var value []byte
		var isNull bool
		var wireFmt codec.Format
		switch s.format {
		case FormatText:
			value, isNull = unescapeTextField(f)
			wireFmt = codec.FormatText
		case FormatCSV:
			value, isNull = resolveCSVField(f, s.csv)
			wireFmt = codec.FormatText
		case FormatBinary:
			value, isNull = f, f == nil
			wireFmt = codec.FormatBinary
		}
		if isNull {
			values[i] = nil
			continue
		}
		oid := uint32(codec.OIDText)
		if i < len(s.columns) {
			oid = s.columns[i].OID
		}
		v, err := codec.Decode(oid, wireFmt, value)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func (s *InState) acceptRow(ctx context.Context, values []backend.Value) error {
	s.rowCount++

	if s.policy.Atomic {
		if s.rowCount*s.mutationsPerRow > s.policy.Limit {
			return ErrMutationLimitExceeded
		}
		s.pendingAtomic = append(s.pendingAtomic, values)
		return nil
	}

	if s.writer == nil {
		w, err := s.tx.CopyWriter(ctx, s.stmt)
		if err != nil {
			return err
		}
		s.writer = w
	}
	if err := s.writer.WriteRow(ctx, values); err != nil {
		return err
	}
	s.batchRows++
	if s.batchRows*s.mutationsPerRow >= s.policy.Limit {
		if err := s.writer.Commit(ctx); err != nil {
			return err
		}
		s.writer = nil
		s.batchRows = 0
	}
	return nil
}

func (s *InState) enterDraining(err error) {
	if s.firstErr == nil {
		s.firstErr = err
	}
	s.draining = true
}

// Done finalizes the COPY after CopyDone. It returns the total row
// count on success, or the first error encountered during Feed.
func (s *InState) Done(ctx context.Context) (rowCount int64, err error) {
	if s.firstErr != nil {
		if s.writer != nil {
			_ = s.writer.Abort(ctx, s.firstErr)
		}
		return 0, s.firstErr
	}

	if s.policy.Atomic {
		w, err := s.tx.CopyWriter(ctx, s.stmt)
		if err != nil {
			return 0, err
		}
		for _, row := range s.pendingAtomic {
			if err := w.WriteRow(ctx, row); err != nil {
				_ = w.Abort(ctx, err)
				return 0, err
			}
		}
		if err := w.Commit(ctx); err != nil {
			return 0, err
		}
		return s.rowCount, nil
	}

	if s.writer != nil {
		if err := s.writer.Commit(ctx); err != nil {
			return 0, err
		}
		s.writer = nil
	}
	return s.rowCount, nil
}

// Fail aborts the COPY after a client-sent CopyFail.
func (s *InState) Fail(ctx context.Context, reason error) error {
	if s.writer != nil {
		return s.writer.Abort(ctx, reason)
	}
	return nil
}
