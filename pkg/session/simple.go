package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/sqlgateway/pgadapter/pkg/backend"
	"github.com/sqlgateway/pgadapter/pkg/classify"
)

// handleSimpleQuery implements simple-query mode: the entire message,
// which may hold several semicolon-separated statements, is one BUSY
// group and is wrapped in a single implicit transaction unless the
// session already has an explicit one open. A mid-string failure aborts
// every remaining statement and rolls the implicit transaction back.
func (s *Session) handleSimpleQuery(ctx context.Context, sql string) {
	stmts := classify.SplitStatements(sql)
	if len(stmts) == 0 {
		s.send(&pgproto3.EmptyQueryResponse{})
		_ = s.sendReadyForQuery()
		return
	}

	var tx backend.Tx
	var implicit bool
	var failed bool

	for _, raw := range stmts {
		classified := classify.Classify(raw)

		if s.tx.current() == txStateFailed && !(classified.Category == classify.CategoryTransactionControl &&
			strings.EqualFold(strings.Fields(classified.SQL)[0], "ROLLBACK")) {
			s.sendError(errInFailedTransaction)
			failed = true
			continue
		}

		switch classified.Category {
		case classify.CategoryTransactionControl:
			s.execTransactionControl(ctx, classified)
			tx, implicit = nil, false
			continue
		case classify.CategorySessionControl:
			s.execSessionControl(classified)
			continue
		case classify.CategoryLocalIntercept:
			s.execIntercept(classified)
			continue
		}

		if tx == nil {
			var err error
			tx, implicit, err = s.ensureTx(ctx, false)
			if err != nil {
				s.sendError(toWireError(err))
				failed = true
				break
			}
		}

		if classified.Category == classify.CategoryCopy {
			s.beginSimpleCopy(ctx, tx, implicit, classified)
			return
		}

		stmt := &backend.Statement{SQL: classified.SQL}
		result, err := tx.Execute(ctx, stmt, nil, 0)
		if err != nil {
			s.sendError(toWireError(err))
			failed = true
			if implicit {
				// An implicit transaction is not reported to the client as
				// FAILED_TRANSACTION, so txStateFailed never gates the next
				// iteration; stop processing the rest of the string
				// ourselves instead of letting a fresh implicit transaction
				// pick up where this one left off.
				s.finishImplicitTx(ctx, tx, implicit, false)
				tx, implicit = nil, false
				break
			}
			s.tx.fail()
			continue
		}
		s.streamSimpleResult(result)
	}

	if tx != nil && implicit {
		s.finishImplicitTx(ctx, tx, implicit, !failed)
	}
	_ = s.sendReadyForQuery()
}

// execTransactionControl handles BEGIN/COMMIT/ROLLBACK/SAVEPOINT within
// simple-query text.
func (s *Session) execTransactionControl(ctx context.Context, stmt *classify.Statement) {
	word := strings.ToUpper(strings.Fields(stmt.SQL)[0])
	switch word {
	case "BEGIN", "START":
		if s.currentTx == nil {
			newTx, err := s.driver.Begin(ctx, false)
			if err != nil {
				s.sendError(toWireError(err))
				return
			}
			s.currentTx = newTx
			s.tx.begin()
		}
	case "COMMIT", "END":
		if s.currentTx != nil {
			if err := s.currentTx.Commit(ctx); err != nil {
				s.sendError(toWireError(err))
			}
			s.currentTx = nil
		}
		s.tx.end()
	case "ROLLBACK":
		if s.currentTx != nil {
			_ = s.currentTx.Rollback(ctx)
			s.currentTx = nil
		}
		s.tx.end()
	}
	s.send(&pgproto3.CommandComplete{CommandTag: []byte(word)})
}

func (s *Session) execSessionControl(stmt *classify.Statement) {
	if name, value, ok := s.params.applySet(stmt.SQL); ok {
		if s.driver != nil {
			_ = s.driver.SetSessionParameter(context.Background(), name, value)
		}
		s.send(&pgproto3.CommandComplete{CommandTag: []byte("SET")})
		return
	}
	if name, ok := s.params.applyReset(stmt.SQL); ok {
		s.send(&pgproto3.CommandComplete{CommandTag: []byte("RESET " + name)})
		return
	}
	if name, value, ok := s.params.show(stmt.SQL); ok {
		s.send(&pgproto3.RowDescription{Fields: []pgproto3.FieldDescription{{Name: []byte(name), DataTypeOID: 25}}})
		s.send(&pgproto3.DataRow{Values: [][]byte{[]byte(value)}})
		s.send(&pgproto3.CommandComplete{CommandTag: []byte("SHOW")})
		return
	}
	s.send(&pgproto3.CommandComplete{CommandTag: []byte("SET")})
}

func (s *Session) execIntercept(stmt *classify.Statement) {
	cols := interceptResultColumns(stmt.Intercept)
	if len(cols) > 0 {
		s.send(&pgproto3.RowDescription{Fields: rowDescriptionFields(cols, nil)})
	}
	for _, row := range stmt.Intercept.Rows {
		s.send(&pgproto3.DataRow{Values: encodeRowValues(cols, nil, row)})
	}
	s.send(&pgproto3.CommandComplete{CommandTag: []byte(fmt.Sprintf("SELECT %d", len(stmt.Intercept.Rows)))})
}

func (s *Session) streamSimpleResult(result *backend.Result) {
	if len(result.Columns) > 0 {
		s.send(&pgproto3.RowDescription{Fields: rowDescriptionFields(result.Columns, nil)})
	}
	for _, row := range result.Rows {
		s.send(&pgproto3.DataRow{Values: encodeRowValues(result.Columns, nil, row)})
	}
	tag := result.Tag
	if tag == "" {
		tag = fmt.Sprintf("SELECT %d", len(result.Rows))
	}
	s.send(&pgproto3.CommandComplete{CommandTag: []byte(tag)})
}

// beginSimpleCopy starts a COPY sub-protocol triggered from
// simple-query mode. The rest of the calling string, if any, is not
// processed: the session transitions to COPY_IN/COPY_OUT and resumes
// simple-query processing (ReadyForQuery) only once the copy completes.
func (s *Session) beginSimpleCopy(ctx context.Context, tx backend.Tx, implicit bool, stmt *classify.Statement) {
	s.startCopy(ctx, tx, implicit, stmt)
}
