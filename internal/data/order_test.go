package data

import (
	"sync"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lockMapSize(r *OrderRepo) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

func TestLockOrder_ReleasedWhenIdle(t *testing.T) {
	repo := NewOrderRepo(nil, log.DefaultLogger)

	unlock := repo.lockOrder(1)
	assert.Equal(t, 1, lockMapSize(repo))

	unlock()
	assert.Zero(t, lockMapSize(repo))

	// Touching many distinct orders leaves nothing behind.
	for id := int64(1); id <= 50; id++ {
		repo.lockOrder(id)()
	}
	assert.Zero(t, lockMapSize(repo))
}

func TestLockOrder_KeptWhileWaitersQueue(t *testing.T) {
	repo := NewOrderRepo(nil, log.DefaultLogger)

	unlock := repo.lockOrder(1)

	acquired := make(chan func())
	go func() {
		acquired <- repo.lockOrder(1)
	}()

	// The waiter holds a reference, so the first release must not drop the
	// lock out from under it.
	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		l, ok := repo.locks[1]
		return ok && l.refs == 2
	}, 2*time.Second, time.Millisecond)

	unlock()
	second := <-acquired
	assert.Equal(t, 1, lockMapSize(repo))

	second()
	assert.Zero(t, lockMapSize(repo))
}

func TestLockOrder_SerializesSameOrder(t *testing.T) {
	repo := NewOrderRepo(nil, log.DefaultLogger)

	const writers = 20
	var inCritical, maxInCritical int
	var track sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := repo.lockOrder(7)
			defer unlock()

			track.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			track.Unlock()

			track.Lock()
			inCritical--
			track.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInCritical)
	assert.Zero(t, lockMapSize(repo))
}
