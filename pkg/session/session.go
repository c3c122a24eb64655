// Package session implements the core per-connection protocol and
// transaction state machine: it consumes frontend messages from a
// pgwire.Framer, classifies and dispatches statements, and drives a
// backend.Driver on the client's behalf.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/sqlgateway/pgadapter/pkg/backend"
	"github.com/sqlgateway/pgadapter/pkg/config"
	"github.com/sqlgateway/pgadapter/pkg/copy"
	"github.com/sqlgateway/pgadapter/pkg/observability"
	"github.com/sqlgateway/pgadapter/pkg/pgwire"
)

// Session owns one client connection end to end: authentication has
// already completed by the time a Session is constructed, so its whole
// job is the post-startup query/transaction protocol.
type Session struct {
	ID uuid.UUID

	framer  pgwire.Framer
	driver  backend.Driver
	metrics *observability.Metrics
	policy  config.AdapterPolicy

	database string
	username string

	stmts   *statementRegistry
	portals *portalRegistry
	tx      *transactionTracker
	params  *sessionParams

	currentTx      backend.Tx
	pendingBatch   []pendingExec
	extendedFailed bool

	copyState      *copy.State
	copyTx         backend.Tx
	copyTxImplicit bool

	secretKey int32
}

// pendingExec is one Bind-then-Execute pair accumulated during the
// extended query pipeline, waiting for a batching trigger (Sync, a
// Describe, or the batch ceiling) to flush.
type pendingExec struct {
	portal  *Portal
	maxRows int
}

// New constructs a Session ready to run its message loop. database and
// username identify the frontend session for logging and metrics only;
// they play no role in wire semantics.
func New(framer pgwire.Framer, driver backend.Driver, policy config.AdapterPolicy, metrics *observability.Metrics, database, username string, secretKey int32) *Session {
	return &Session{
		ID:        uuid.New(),
		framer:    framer,
		driver:    driver,
		metrics:   metrics,
		policy:    policy,
		database:  database,
		username:  username,
		stmts:     newStatementRegistry(),
		portals:   newPortalRegistry(),
		tx:        newTransactionTracker(time.Duration(policy.IdleInTransactionTimeoutMillis) * time.Millisecond),
		params:    newSessionParams(),
		secretKey: secretKey,
	}
}

// Run drives the session's message loop until the client disconnects,
// sends Terminate, or ctx is canceled.
func (s *Session) Run(ctx context.Context) error {
	defer func() {
		if s.currentTx != nil {
			_ = s.currentTx.Rollback(context.Background())
		}
		_ = s.driver.Close(context.Background())
	}()

	if s.metrics != nil {
		s.metrics.RecordClientConnection(s.database, s.username)
		defer s.metrics.RecordClientDisconnect(s.database, s.username)
	}

	if err := s.sendReadyForQuery(); err != nil {
		return err
	}

	idleExpired := s.tx.watchIdleInTransaction(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idleExpired:
			s.sendError(pgwire.NewErr(pgwire.ErrorFatal, pgerrcode.IdleInTransactionSessionTimeout, "terminating connection due to idle-in-transaction timeout", nil))
			return nil
		default:
		}

		msg, err := s.framer.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		s.tx.touch()

		if terminate := s.dispatch(ctx, msg); terminate {
			return nil
		}
	}
}

// dispatch handles one frontend message, returning true if the session
// should stop after this message (Terminate, or an unrecoverable
// protocol violation).
func (s *Session) dispatch(ctx context.Context, msg pgproto3.FrontendMessage) (stop bool) {
	switch m := msg.(type) {
	case *pgproto3.Query:
		s.handleSimpleQuery(ctx, m.String)
	case *pgproto3.Parse:
		s.handleParse(ctx, m)
	case *pgproto3.Bind:
		s.handleBind(ctx, m)
	case *pgproto3.Describe:
		s.handleDescribe(ctx, m)
	case *pgproto3.Execute:
		s.handleExecute(ctx, m)
	case *pgproto3.Close:
		s.handleClose(ctx, m)
	case *pgproto3.Sync:
		s.handleSync(ctx)
	case *pgproto3.Flush:
		s.flushBatch(ctx)
		_ = s.framer.Flush()
	case *pgproto3.CopyData:
		s.handleCopyData(ctx, m)
	case *pgproto3.CopyDone:
		s.handleCopyDone(ctx)
	case *pgproto3.CopyFail:
		s.handleCopyFail(ctx, m)
	case *pgproto3.Terminate:
		return true
	default:
		s.sendError(pgwire.NewProtocolViolation(fmt.Errorf("unsupported message"), nil))
	}
	return false
}

func (s *Session) send(msg pgproto3.BackendMessage) {
	s.framer.Send(msg)
}

func (s *Session) sendError(err *pgwire.Err) {
	if s.metrics != nil {
		s.metrics.RecordError(err.Code)
	}
	s.send(&err.ErrorResponse)
}

func (s *Session) sendReadyForQuery() error {
	s.send(&pgproto3.ReadyForQuery{TxStatus: s.tx.status().Byte()})
	return s.framer.Flush()
}

// ensureTx returns the transaction the next statement should execute
// in: the session's already-open explicit transaction, or a fresh
// implicit one that the caller must commit before returning to idle.
func (s *Session) ensureTx(ctx context.Context, readOnly bool) (tx backend.Tx, implicit bool, err error) {
	if s.currentTx != nil {
		return s.currentTx, false, nil
	}
	tx, err = s.driver.Begin(ctx, readOnly)
	if err != nil {
		return nil, false, err
	}
	return tx, true, nil
}
