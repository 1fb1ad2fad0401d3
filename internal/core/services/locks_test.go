package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectionLocks_TryLock(t *testing.T) {
	locks := NewCollectionLocks()

	assert.True(t, locks.TryLock("confluence"))
	assert.False(t, locks.TryLock("confluence"))

	// Other collections are independent.
	assert.True(t, locks.TryLock("jira"))

	locks.Unlock("confluence")
	assert.True(t, locks.TryLock("confluence"))
}

func TestCollectionLocks_Held(t *testing.T) {
	locks := NewCollectionLocks()

	assert.False(t, locks.Held("confluence"))
	locks.TryLock("confluence")
	assert.True(t, locks.Held("confluence"))
	locks.Unlock("confluence")
	assert.False(t, locks.Held("confluence"))
}

func TestCollectionLocks_UnlockUnheld(t *testing.T) {
	locks := NewCollectionLocks()

	// Must not panic.
	locks.Unlock("never-locked")
	assert.False(t, locks.Held("never-locked"))
}

func TestCollectionLocks_Concurrent(t *testing.T) {
	locks := NewCollectionLocks()

	const goroutines = 50
	var wg sync.WaitGroup
	acquired := make(chan struct{}, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if locks.TryLock("shared") {
				acquired <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(acquired)

	count := 0
	for range acquired {
		count++
	}
	assert.Equal(t, 1, count, "exactly one goroutine may win the lock")
}
