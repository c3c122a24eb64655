package session

import (
	"context"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/sqlgateway/pgadapter/pkg/backend"
	"github.com/sqlgateway/pgadapter/pkg/classify"
	"github.com/sqlgateway/pgadapter/pkg/codec"
	"github.com/sqlgateway/pgadapter/pkg/pgwire"
)

const (
	describeStatement byte = 'S'
	describePortal     byte = 'P'
)

// handleParse implements Parse: classify, reject multi-statement text,
// and store (or replace) the named statement.
func (s *Session) handleParse(ctx context.Context, m *pgproto3.Parse) {
	if s.extendedFailed {
		return
	}

	if len(classify.SplitStatements(m.Query)) > 1 {
		s.failExtended(errMultiStatementParse)
		return
	}

	classified, ok := statementCache.Get(m.Query)
	if !ok {
		classified = classify.Classify(m.Query)
		statementCache.Put(m.Query, classified)
	}

	if classified.Category == classify.CategorySelect || classified.Category == classify.CategoryTransactionControl {
		s.flushBatch(ctx)
	}

	stmt := &NamedStatement{
		Name:       m.Name,
		Classified: classified,
		Backend: &backend.Statement{
			SQL:       classified.SQL,
			ParamOIDs: append([]uint32(nil), m.ParameterOIDs...),
		},
	}
	if classified.Category == classify.CategoryLocalIntercept {
		stmt.Backend.Name = classified.Intercept.Name
		stmt.Backend.ResultColumns = interceptResultColumns(classified.Intercept)
	}

	s.stmts.put(stmt)
	s.send(&pgproto3.ParseComplete{})
}

// handleBind implements Bind: look up the statement, decode parameters,
// and store the resulting portal.
func (s *Session) handleBind(ctx context.Context, m *pgproto3.Bind) {
	if s.extendedFailed {
		return
	}

	stmt, ok := s.stmts.get(m.PreparedStatement)
	if !ok {
		s.failExtended(invalidStatementName(m.PreparedStatement))
		return
	}

	if want := classify.MaxPlaceholder(stmt.Classified.Placeholders); want != len(m.Parameters) {
		s.failExtended(classifyPlaceholderMismatch(stmt.Classified, len(m.Parameters)))
		return
	}

	values, err := decodeBindParams(stmt.Backend.ParamOIDs, m.ParameterFormatCodes, m.Parameters)
	if err != nil {
		s.failExtended(toWireError(err))
		return
	}

	portal := &Portal{
		Name:      m.DestinationPortal,
		Statement: stmt,
		Params:    values,
		ResultFmt: append([]int16(nil), m.ResultFormatCodes...),
	}
	s.portals.put(portal)
	s.send(&pgproto3.BindComplete{})
}

func decodeBindParams(paramOIDs []uint32, formatCodes []int16, raw [][]byte) ([]backend.Value, error) {
	values := make([]backend.Value, len(raw))
	for i, b := range raw {
		oid := uint32(codec.OIDText)
		if i < len(paramOIDs) && paramOIDs[i] != 0 {
			oid = paramOIDs[i]
		}
		format := codec.FormatText
		if len(formatCodes) == 1 {
			format = codec.Format(formatCodes[0])
		} else if i < len(formatCodes) {
			format = codec.Format(formatCodes[i])
		}
		v, err := codec.Decode(oid, format, b)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// handleDescribe implements Describe for both statements and portals.
func (s *Session) handleDescribe(ctx context.Context, m *pgproto3.Describe) {
	if s.extendedFailed {
		return
	}

	switch m.ObjectType {
	case describeStatement:
		stmt, ok := s.stmts.get(m.Name)
		if !ok {
			s.failExtended(invalidStatementName(m.Name))
			return
		}
		s.flushBatch(ctx)
		s.send(&pgproto3.ParameterDescription{ParameterOIDs: stmt.Backend.ParamOIDs})
		s.sendRowDescriptionOrNoData(stmt.Backend.ResultColumns, nil)

	case describePortal:
		portal, ok := s.portals.get(m.Name)
		if !ok {
			s.failExtended(invalidPortalName(m.Name))
			return
		}
		s.flushBatch(ctx)
		s.sendRowDescriptionOrNoData(portal.Statement.Backend.ResultColumns, portal.ResultFmt)

	default:
		s.failExtended(newSyntaxError(fmt.Sprintf("unknown Describe object type %q", m.ObjectType)))
	}
}

func (s *Session) sendRowDescriptionOrNoData(cols []backend.ResultColumn, resultFmt []int16) {
	if len(cols) == 0 {
		s.send(&pgproto3.NoData{})
		return
	}
	s.send(&pgproto3.RowDescription{Fields: rowDescriptionFields(cols, resultFmt)})
}

func rowDescriptionFields(cols []backend.ResultColumn, resultFmt []int16) []pgproto3.FieldDescription {
	fields := make([]pgproto3.FieldDescription, len(cols))
	for i, c := range cols {
		format := int16(codec.FormatText)
		if len(resultFmt) == 1 {
			format = resultFmt[0]
		} else if i < len(resultFmt) {
			format = resultFmt[i]
		}
		fields[i] = pgproto3.FieldDescription{
			Name:         []byte(c.Name),
			DataTypeOID:  c.OID,
			TypeModifier: c.TypeModifier,
			Format:       format,
		}
	}
	return fields
}

// handleExecute implements Execute: statements that return rows are
// run and streamed immediately; statements that do not are queued into
// the pending batch until a batching trigger flushes them.
func (s *Session) handleExecute(ctx context.Context, m *pgproto3.Execute) {
	if s.extendedFailed {
		return
	}

	portal, ok := s.portals.get(m.Portal)
	if !ok {
		s.failExtended(invalidPortalName(m.Portal))
		return
	}

	if portal.Statement.Backend.Name != "" {
		s.executeIntercept(portal)
		return
	}

	if portal.Statement.Classified.Category == classify.CategorySelect {
		s.flushBatch(ctx)
		s.executePortalDirect(ctx, portal, int(m.MaxRows))
		return
	}

	s.pendingBatch = append(s.pendingBatch, pendingExec{portal: portal, maxRows: int(m.MaxRows)})
	if len(s.pendingBatch) >= s.policy.MaxBatchStatements {
		s.flushBatch(ctx)
	}
}

// handleClose implements Close for both statements and portals; closing
// an unknown name is not an error.
func (s *Session) handleClose(ctx context.Context, m *pgproto3.Close) {
	switch m.ObjectType {
	case describeStatement:
		s.stmts.close(m.Name)
	case describePortal:
		s.portals.close(m.Name)
	}
	s.send(&pgproto3.CloseComplete{})
}

// handleSync implements Sync: flush any pending batch, end the current
// extended-query group, and report transaction status.
func (s *Session) handleSync(ctx context.Context) {
	s.flushBatch(ctx)
	s.extendedFailed = false
	_ = s.sendReadyForQuery()
}

func (s *Session) failExtended(err *pgwire.Err) {
	s.sendError(err)
	s.extendedFailed = true
	if s.tx.current() == txStateOpen {
		s.tx.fail()
	}
}

func invalidStatementName(name string) *pgwire.Err {
	return pgwire.NewErr(pgwire.Error, pgerrcode.InvalidSQLStatementName,
		fmt.Sprintf("prepared statement %q does not exist", name), nil)
}

func invalidPortalName(name string) *pgwire.Err {
	return pgwire.NewErr(pgwire.Error, pgerrcode.InvalidCursorName,
		fmt.Sprintf("portal %q does not exist", name), nil)
}

func interceptResultColumns(entry *classify.InterceptEntry) []backend.ResultColumn {
	cols := make([]backend.ResultColumn, len(entry.Columns))
	for i, c := range entry.Columns {
		cols[i] = backend.ResultColumn{Name: c.Name, OID: c.OID}
	}
	return cols
}
