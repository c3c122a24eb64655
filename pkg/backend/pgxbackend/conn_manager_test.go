package pgxbackend

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnManager_BasicAcquireRelease(t *testing.T) {
	cm := newConnManager[string](5, nil)

	for i := 0; i < 5; i++ {
		ok := cm.tryReserveDBConn()
		assert.True(t, ok, "should be able to reserve connection %d", i+1)
	}

	ok := cm.tryReserveDBConn()
	assert.False(t, ok, "should fail when at max")

	cm.releaseDBConn()
	ok = cm.tryReserveDBConn()
	assert.True(t, ok, "should succeed after release")

	assert.Equal(t, int32(5), cm.currentDBConns())
}

func TestConnManager_FairScheduling(t *testing.T) {
	cm := newConnManager[string](2, []string{"userA", "userB"})

	cm.tryReserveDBConn()
	cm.tryReserveDBConn()

	var wg sync.WaitGroup
	order := make([]string, 0, 4)
	var orderMu sync.Mutex

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, cm.waitForTurn(context.Background(), "userA"))
			orderMu.Lock()
			order = append(order, "A")
			orderMu.Unlock()
		}()
	}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, cm.waitForTurn(context.Background(), "userB"))
			orderMu.Lock()
			order = append(order, "B")
			orderMu.Unlock()
		}()
	}

	time.Sleep(10 * time.Millisecond)
	for i := 0; i < 4; i++ {
		cm.signalNextWaiter()
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()

	orderMu.Lock()
	defer orderMu.Unlock()
	consecutive, maxConsecutive := 1, 1
	for i := 1; i < len(order); i++ {
		if order[i] == order[i-1] {
			consecutive++
			if consecutive > maxConsecutive {
				maxConsecutive = consecutive
			}
		} else {
			consecutive = 1
		}
	}
	assert.LessOrEqual(t, maxConsecutive, 2, "should have fair scheduling")
}

func TestConnManager_ContextCancellation(t *testing.T) {
	cm := newConnManager[string](1, []string{"user"})
	cm.tryReserveDBConn()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cm.waitForTurn(ctx, "user")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConnManager_ConcurrentAccess(t *testing.T) {
	const maxConns = 10
	cm := newConnManager[string](maxConns, nil)

	var wg sync.WaitGroup
	var maxObserved atomic.Int32

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if cm.tryReserveDBConn() {
					current := cm.currentDBConns()
					for {
						old := maxObserved.Load()
						if current <= old || maxObserved.CompareAndSwap(old, current) {
							break
						}
					}
					time.Sleep(time.Microsecond)
					cm.releaseDBConn()
				}
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxObserved.Load(), int32(maxConns))
	assert.Equal(t, int32(0), cm.currentDBConns())
}

func TestConnManager_StealCallback(t *testing.T) {
	cm := newConnManager[string](2, []string{"userA", "userB"})

	var stealAttempts atomic.Int32
	cm.setStealFunc(func(exclude string) bool {
		stealAttempts.Add(1)
		return true
	})

	cm.mu.Lock()
	stealFunc := cm.stealIdleFunc
	cm.mu.Unlock()

	require.NotNil(t, stealFunc)
	assert.True(t, stealFunc("userA"))
	assert.Equal(t, int32(1), stealAttempts.Load())
}
