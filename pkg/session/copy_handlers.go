package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/sqlgateway/pgadapter/pkg/backend"
	"github.com/sqlgateway/pgadapter/pkg/classify"
	"github.com/sqlgateway/pgadapter/pkg/codec"
	"github.com/sqlgateway/pgadapter/pkg/copy"
)

var copyStatementRE = regexp.MustCompile(`(?is)^COPY\s+([A-Za-z_][\w.]*)\s*(?:\(([^)]*)\))?\s+(FROM|TO)\s+(STDIN|STDOUT)\s*(?:WITH)?\s*(?:\(([^)]*)\))?`)

type copyDirective struct {
	table     string
	columns   []string
	direction copy.Direction
	format    copy.Format
	csv       copy.CSVOptions
}

func parseCopyStatement(sql string) (*copyDirective, error) {
	m := copyStatementRE.FindStringSubmatch(sql)
	if m == nil {
		return nil, fmt.Errorf("unsupported COPY syntax")
	}
	d := &copyDirective{table: m[1], format: copy.FormatText, csv: copy.DefaultCSVOptions()}
	if m[2] != "" {
		for _, c := range strings.Split(m[2], ",") {
			d.columns = append(d.columns, strings.TrimSpace(c))
		}
	}
	if strings.EqualFold(m[3], "FROM") {
		d.direction = copy.DirectionIn
	} else {
		d.direction = copy.DirectionOut
	}
	if m[5] != "" {
		applyCopyOptions(d, m[5])
	}
	return d, nil
}

func applyCopyOptions(d *copyDirective, opts string) {
	for _, part := range strings.Split(opts, ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) == 0 {
			continue
		}
		key := strings.ToUpper(fields[0])
		val := strings.Trim(strings.Join(fields[1:], " "), "'\"")
		switch key {
		case "FORMAT":
			switch strings.ToUpper(val) {
			case "CSV":
				d.format = copy.FormatCSV
			case "BINARY":
				d.format = copy.FormatBinary
			default:
				d.format = copy.FormatText
			}
		case "DELIMITER":
			if len(val) > 0 {
				d.csv.Delimiter = val[0]
			}
		case "QUOTE":
			if len(val) > 0 {
				d.csv.Quote = val[0]
			}
		case "ESCAPE":
			if len(val) > 0 {
				d.csv.Escape = val[0]
			}
		case "NULL":
			d.csv.Null = val
		case "HEADER":
			d.csv.Header = val == "" || strings.EqualFold(val, "true")
		}
	}
}

func columnsFromNames(names []string) []backend.ResultColumn {
	if len(names) == 0 {
		return nil
	}
	cols := make([]backend.ResultColumn, len(names))
	for i, n := range names {
		cols[i] = backend.ResultColumn{Name: n, OID: codec.OIDText}
	}
	return cols
}

func columnFormatCodes(n int, binary bool) []uint16 {
	code := uint16(codec.FormatText)
	if binary {
		code = uint16(codec.FormatBinary)
	}
	codes := make([]uint16, n)
	for i := range codes {
		codes[i] = code
	}
	return codes
}

// startCopy dispatches a classified COPY statement to the IN or OUT
// path, deferring this simple-query group's ReadyForQuery until the
// copy completes.
func (s *Session) startCopy(ctx context.Context, tx backend.Tx, implicit bool, stmt *classify.Statement) {
	directive, err := parseCopyStatement(stmt.SQL)
	if err != nil {
		s.sendError(toWireError(err))
		_ = s.sendReadyForQuery()
		return
	}

	backendStmt := &backend.Statement{SQL: stmt.SQL, ResultColumns: columnsFromNames(directive.columns)}

	if directive.direction == copy.DirectionIn {
		s.startCopyIn(ctx, tx, implicit, backendStmt, directive)
		return
	}
	s.startCopyOut(ctx, tx, implicit, backendStmt, directive)
}

func (s *Session) startCopyIn(ctx context.Context, tx backend.Tx, implicit bool, stmt *backend.Statement, d *copyDirective) {
	nCols := len(stmt.ResultColumns)
	if nCols == 0 {
		nCols = 1
	}
	s.send(&pgproto3.CopyInResponse{
		OverallFormat: overallFormat(d.format),
		ColumnFormatCodes: columnFormatCodes(nCols, d.format == copy.FormatBinary),
	})
	if err := s.framer.Flush(); err != nil {
		return
	}

	policy := copy.MutationPolicy{
		Atomic:         s.policy.AtomicCopyDefault,
		Limit:          s.policy.CopyMutationLimit,
		IndexedColumns: 0,
	}
	in := copy.NewInState(tx, stmt, d.format, d.csv, policy)
	s.copyState = copy.NewIn(in)
	s.copyTx = tx
	s.copyTxImplicit = implicit
}

func (s *Session) startCopyOut(ctx context.Context, tx backend.Tx, implicit bool, stmt *backend.Statement, d *copyDirective) {
	nCols := len(stmt.ResultColumns)
	if nCols == 0 {
		nCols = 1
	}
	reader, err := tx.CopyReader(ctx, stmt)
	if err != nil {
		s.sendError(toWireError(err))
		s.finishImplicitTx(ctx, tx, implicit, false)
		_ = s.sendReadyForQuery()
		return
	}

	s.send(&pgproto3.CopyOutResponse{
		OverallFormat: overallFormat(d.format),
		ColumnFormatCodes: columnFormatCodes(nCols, d.format == copy.FormatBinary),
	})

	out := copy.NewOutState(reader, d.format, d.csv, stmt.ResultColumns)
	var rows int64
	for {
		chunk, err := out.NextChunk(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.sendError(toWireError(err))
			_ = reader.Close()
			s.finishImplicitTx(ctx, tx, implicit, false)
			_ = s.sendReadyForQuery()
			return
		}
		if len(chunk) > 0 {
			s.send(&pgproto3.CopyData{Data: chunk})
			rows++
		}
	}
	_ = reader.Close()
	s.send(&pgproto3.CopyDone{})
	s.send(&pgproto3.CommandComplete{CommandTag: []byte(fmt.Sprintf("COPY %d", rows))})
	s.finishImplicitTx(ctx, tx, implicit, true)
	_ = s.sendReadyForQuery()
}

func overallFormat(f copy.Format) byte {
	if f == copy.FormatBinary {
		return 1
	}
	return 0
}

// handleCopyData forwards one CopyData frame's payload into the active
// COPY IN parser.
func (s *Session) handleCopyData(ctx context.Context, m *pgproto3.CopyData) {
	if s.copyState == nil || s.copyState.In == nil {
		return
	}
	_ = s.copyState.In.Feed(ctx, m.Data)
}

// handleCopyDone finalizes a COPY IN on the client's commit signal.
func (s *Session) handleCopyDone(ctx context.Context) {
	if s.copyState == nil || s.copyState.In == nil {
		return
	}
	rowCount, err := s.copyState.In.Done(ctx)
	s.copyState = nil
	if err != nil {
		s.sendError(toWireError(err))
		s.finishCopyTx(ctx, false)
		_ = s.sendReadyForQuery()
		return
	}
	s.send(&pgproto3.CommandComplete{CommandTag: []byte(fmt.Sprintf("COPY %d", rowCount))})
	s.finishCopyTx(ctx, true)
	_ = s.sendReadyForQuery()
}

// handleCopyFail aborts a COPY IN on the client's rollback signal.
func (s *Session) handleCopyFail(ctx context.Context, m *pgproto3.CopyFail) {
	if s.copyState == nil || s.copyState.In == nil {
		return
	}
	reason := errors.New(m.Message)
	_ = s.copyState.In.Fail(ctx, reason)
	s.copyState = nil
	s.sendError(toWireError(reason))
	s.finishCopyTx(ctx, false)
	_ = s.sendReadyForQuery()
}

func (s *Session) finishCopyTx(ctx context.Context, commit bool) {
	if s.copyTx == nil {
		return
	}
	s.finishImplicitTx(ctx, s.copyTx, s.copyTxImplicit, commit)
	s.copyTx = nil
}
