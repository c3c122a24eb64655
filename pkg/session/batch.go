package session

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/sqlgateway/pgadapter/pkg/backend"
)

// flushBatch dispatches every queued pendingExec as a single backend
// batch, distributing results back onto the client in the exact order
// they were queued. A failure at position k reports positions 0..k-1
// (if the backend returned partial results for them) then an
// ErrorResponse for k; positions after k are silently dropped, per the
// engine's non-atomic batch ordering guarantee.
func (s *Session) flushBatch(ctx context.Context) {
	if len(s.pendingBatch) == 0 {
		return
	}
	batch := s.pendingBatch
	s.pendingBatch = nil

	if s.extendedFailed {
		return
	}

	tx, implicit, err := s.ensureTx(ctx, false)
	if err != nil {
		s.failExtended(toWireError(err))
		return
	}

	items := make([]backend.BatchItem, len(batch))
	for i, pe := range batch {
		items[i] = backend.BatchItem{Statement: pe.portal.Statement.Backend, Params: pe.portal.Params}
	}

	results, err := tx.ExecuteBatch(ctx, items, false)
	if err != nil {
		s.finishImplicitTx(ctx, tx, implicit, false)
		s.failExtended(toWireError(err))
		return
	}

	failedAt := -1
	for i, res := range results {
		if res == nil {
			break
		}
		if res.Err != nil {
			failedAt = i
			s.sendError(toWireError(res.Err))
			break
		}
		s.send(&pgproto3.CommandComplete{CommandTag: []byte(res.Tag)})
	}

	if failedAt >= 0 {
		if !implicit {
			s.tx.fail()
		}
		s.extendedFailed = true
		s.finishImplicitTx(ctx, tx, implicit, false)
		return
	}

	if implicit {
		s.finishImplicitTx(ctx, tx, implicit, true)
	}
}

// finishImplicitTx commits or rolls back a transaction this session
// opened implicitly to run a batch or a bare statement. Explicit
// (BEGIN-opened) transactions are left untouched.
func (s *Session) finishImplicitTx(ctx context.Context, tx backend.Tx, implicit, commit bool) {
	if !implicit {
		return
	}
	if commit {
		if err := tx.Commit(ctx); err != nil {
			s.sendError(toWireError(err))
		}
		return
	}
	_ = tx.Rollback(ctx)
}

// executePortalDirect runs a portal that returns rows (a SELECT),
// streaming DataRow frames and finishing with either CommandComplete or
// PortalSuspended.
func (s *Session) executePortalDirect(ctx context.Context, portal *Portal, maxRows int) {
	var tx backend.Tx
	var implicit bool
	if portal.State == portalSuspended && portal.tx != nil {
		tx, implicit = portal.tx, portal.txImplicit
	} else {
		var err error
		tx, implicit, err = s.ensureTx(ctx, true)
		if err != nil {
			s.failExtended(toWireError(err))
			return
		}
	}

	result, err := tx.Execute(ctx, portal.Statement.Backend, portal.Params, maxRows)
	if err != nil {
		s.finishImplicitTx(ctx, tx, implicit, false)
		if !implicit {
			s.tx.fail()
		}
		s.failExtended(toWireError(err))
		return
	}

	s.streamResult(portal, result)

	if result.Suspended {
		portal.State = portalSuspended
		portal.Result = result
		portal.tx, portal.txImplicit = tx, implicit
		return
	}
	portal.State = portalDrained
	portal.tx = nil
	s.finishImplicitTx(ctx, tx, implicit, true)
}

func (s *Session) streamResult(portal *Portal, result *backend.Result) {
	for _, row := range result.Rows {
		s.send(&pgproto3.DataRow{Values: encodeRowValues(portal.Statement.Backend.ResultColumns, portal.ResultFmt, row)})
	}
	if result.Suspended {
		s.send(&pgproto3.PortalSuspended{})
		return
	}
	tag := result.Tag
	if tag == "" {
		tag = fmt.Sprintf("SELECT %d", len(result.Rows))
	}
	s.send(&pgproto3.CommandComplete{CommandTag: []byte(tag)})
}

// executeIntercept answers a portal bound to a local-intercept
// catalogue entry without ever reaching the backend.
func (s *Session) executeIntercept(portal *Portal) {
	entry := portal.Statement.Classified.Intercept
	cols := portal.Statement.Backend.ResultColumns
	for _, row := range entry.Rows {
		s.send(&pgproto3.DataRow{Values: encodeRowValues(cols, portal.ResultFmt, row)})
	}
	s.send(&pgproto3.CommandComplete{CommandTag: []byte(fmt.Sprintf("SELECT %d", len(entry.Rows)))})
	portal.State = portalDrained
}
