package services

import "sync"

// CollectionLocks serializes ingestion runs per collection. A second
// run against a collection whose lock is held gets
// domain.ErrSyncInProgress instead of queueing.
type CollectionLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewCollectionLocks creates an empty lock registry.
func NewCollectionLocks() *CollectionLocks {
	return &CollectionLocks{held: make(map[string]bool)}
}

// TryLock acquires the collection's lock. Returns false when the lock
// is already held.
func (l *CollectionLocks) TryLock(collection string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[collection] {
		return false
	}
	l.held[collection] = true
	return true
}

// Unlock releases the collection's lock. Unlocking an unheld lock is a
// no-op.
func (l *CollectionLocks) Unlock(collection string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, collection)
}

// Held reports whether the collection's lock is currently held.
func (l *CollectionLocks) Held(collection string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[collection]
}
