package pgxbackend

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// connManager coordinates connection acquisition across multiple per-user
// pools, enforcing a global connection limit with fair scheduling across
// users.
//
// The manager tracks two things:
//  1. dbConns: actual database connections across all pools (via
//     BeforeConnect/BeforeClose)
//  2. Fair wait queues: ensures users take turns when at capacity
//
// The type parameter T is the user identifier type, which must be
// comparable for use as a map key.
type connManager[T comparable] struct {
	maxConns int32

	dbConns atomic.Int32

	mu sync.Mutex

	waiting map[T]*list.List

	users   []T
	nextIdx int

	stealIdleFunc func(exclude T) bool
}

type connWaiter struct {
	ready    chan struct{}
	canceled atomic.Bool
}

func newConnManager[T comparable](maxConns int32, users []T) *connManager[T] {
	return &connManager[T]{
		maxConns: maxConns,
		waiting:  make(map[T]*list.List),
		users:    users,
	}
}

func (cm *connManager[T]) setStealFunc(f func(exclude T) bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.stealIdleFunc = f
}

func (cm *connManager[T]) tryReserveDBConn() bool {
	for {
		current := cm.dbConns.Load()
		if current >= cm.maxConns {
			return false
		}
		if cm.dbConns.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (cm *connManager[T]) releaseDBConn() {
	newVal := cm.dbConns.Add(-1)
	if newVal < 0 {
		panic("connManager: dbConns went negative")
	}
	cm.signalNextWaiter()
}

func (cm *connManager[T]) currentDBConns() int32 {
	return cm.dbConns.Load()
}

// waitForTurn waits for this user's fair turn to attempt acquisition,
// implementing round-robin fairness when multiple users are contending
// for a backend at its connection ceiling.
func (cm *connManager[T]) waitForTurn(ctx context.Context, user T) error {
	cm.mu.Lock()

	if cm.dbConns.Load() < cm.maxConns && len(cm.waiting) == 0 {
		cm.mu.Unlock()
		return nil
	}

	w := &connWaiter{ready: make(chan struct{})}

	if !cm.isValidUser(user) {
		cm.mu.Unlock()
		return errors.New("connManager: unknown user")
	}

	waitList := cm.waiting[user]
	if waitList == nil {
		waitList = list.New()
		cm.waiting[user] = waitList
	}

	elem := waitList.PushBack(w)
	cm.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		w.canceled.Store(true)
		cm.removeWaiter(user, elem)
		return ctx.Err()
	}
}

func (cm *connManager[T]) removeWaiter(user T, elem *list.Element) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	waitList := cm.waiting[user]
	if waitList == nil {
		return
	}
	waitList.Remove(elem)
	if waitList.Len() == 0 {
		delete(cm.waiting, user)
	}
}

func (cm *connManager[T]) signalNextWaiter() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.wakeNextWaiter()
}

func (cm *connManager[T]) isValidUser(user T) bool {
	for _, u := range cm.users {
		if u == user {
			return true
		}
	}
	return false
}

func (cm *connManager[T]) wakeNextWaiter() {
	if len(cm.users) == 0 {
		return
	}

	for i := 0; i < len(cm.users); i++ {
		idx := (cm.nextIdx + i) % len(cm.users)
		user := cm.users[idx]

		waitList := cm.waiting[user]
		if waitList == nil || waitList.Len() == 0 {
			continue
		}

		for e := waitList.Front(); e != nil; {
			w := e.Value.(*connWaiter)
			next := e.Next()

			if w.canceled.Load() {
				waitList.Remove(e)
				e = next
				continue
			}

			close(w.ready)
			waitList.Remove(e)
			if waitList.Len() == 0 {
				delete(cm.waiting, user)
			}
			cm.nextIdx = (idx + 1) % len(cm.users)
			return
		}

		if waitList.Len() == 0 {
			delete(cm.waiting, user)
		}
	}
}

func (cm *connManager[T]) stats() connManagerStats {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	stats := connManagerStats{
		MaxConns:     cm.maxConns,
		DBConns:      cm.dbConns.Load(),
		WaitingUsers: int32(len(cm.waiting)),
	}
	for _, waitList := range cm.waiting {
		stats.TotalWaiters += int32(waitList.Len())
	}
	return stats
}

type connManagerStats struct {
	MaxConns     int32
	DBConns      int32
	WaitingUsers int32
	TotalWaiters int32
}
