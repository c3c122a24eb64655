package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sqlgateway/pgadapter/pkg/pgwire"
)

// txState is the session-level transaction state machine: idle outside
// any transaction, inside an explicitly-BEGUN transaction, or inside a
// transaction that has failed and is rejecting statements until the
// client issues ROLLBACK.
type txState int

const (
	txStateIdle txState = iota
	txStateOpen
	txStateFailed
)

// transactionTracker holds the session's transaction state (the
// backend.Tx itself is Session.currentTx) and reports it back to the wire
// layer as the single canonical byte ReadyForQuery needs. state is only ever written by the session's owning goroutine,
// but watchIdleInTransaction reads it from a second goroutine, so it is
// held in an atomic.Int32 rather than a plain txState field.
type transactionTracker struct {
	state          atomic.Int32
	idleTimeout    time.Duration
	lastActivity   time.Time
	idleTimerReset chan struct{}
}

func newTransactionTracker(idleTimeout time.Duration) *transactionTracker {
	return &transactionTracker{
		idleTimeout:    idleTimeout,
		lastActivity:   time.Now(),
		idleTimerReset: make(chan struct{}, 1),
	}
}

// current returns the tracker's state. Safe to call from any goroutine.
func (t *transactionTracker) current() txState {
	return txState(t.state.Load())
}

func (t *transactionTracker) status() pgwire.TxStatus {
	switch t.current() {
	case txStateOpen:
		return pgwire.TxInTransaction
	case txStateFailed:
		return pgwire.TxFailed
	default:
		return pgwire.TxIdle
	}
}

func (t *transactionTracker) begin() {
	t.state.Store(int32(txStateOpen))
	t.touch()
}

func (t *transactionTracker) fail() {
	t.state.Store(int32(txStateFailed))
	t.touch()
}

func (t *transactionTracker) end() {
	t.state.Store(int32(txStateIdle))
	t.touch()
}

func (t *transactionTracker) touch() {
	t.lastActivity = time.Now()
	select {
	case t.idleTimerReset <- struct{}{}:
	default:
	}
}

// watchIdleInTransaction returns a channel that is closed if the session
// stays in txStateOpen or txStateFailed for longer than idleTimeout
// without activity. Zero idleTimeout disables the watch.
func (t *transactionTracker) watchIdleInTransaction(ctx context.Context) <-chan struct{} {
	expired := make(chan struct{})
	if t.idleTimeout <= 0 {
		return expired
	}

	go func() {
		timer := time.NewTimer(t.idleTimeout)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.idleTimerReset:
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(t.idleTimeout)
			case <-timer.C:
				if t.current() != txStateIdle {
					close(expired)
					return
				}
				timer.Reset(t.idleTimeout)
			}
		}
	}()

	return expired
}
