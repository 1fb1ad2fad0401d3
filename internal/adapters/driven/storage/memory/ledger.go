package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cairn-works/cairn/internal/core/domain"
	"github.com/cairn-works/cairn/internal/core/ports/driven"
)

// Ensure IngestionLedger implements the interface.
var _ driven.IngestionLedger = (*IngestionLedger)(nil)

// IngestionLedger is an in-memory implementation of driven.IngestionLedger.
// State is lost on restart; use the sqlite store outside tests.
type IngestionLedger struct {
	mu      sync.RWMutex
	records map[string]map[string]domain.IngestionRecord // collection -> path -> record
}

// NewIngestionLedger creates a new in-memory ingestion ledger.
func NewIngestionLedger() *IngestionLedger {
	return &IngestionLedger{
		records: make(map[string]map[string]domain.IngestionRecord),
	}
}

// Get returns the record for (collection, path).
func (l *IngestionLedger) Get(_ context.Context, collection, path string) (*domain.IngestionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.records[collection][path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

// Put creates or replaces the record.
func (l *IngestionLedger) Put(_ context.Context, rec domain.IngestionRecord) error {
	if rec.Collection == "" || rec.Path == "" {
		return domain.ErrInvalidInput
	}

	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.records[rec.Collection] == nil {
		l.records[rec.Collection] = make(map[string]domain.IngestionRecord)
	}
	l.records[rec.Collection][rec.Path] = rec
	return nil
}

// Delete removes the record. Deleting a missing record is not an error.
func (l *IngestionLedger) Delete(_ context.Context, collection, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records[collection], path)
	return nil
}

// ListPaths returns all recorded paths in the collection, sorted.
func (l *IngestionLedger) ListPaths(_ context.Context, collection string) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	paths := make([]string, 0, len(l.records[collection]))
	for p := range l.records[collection] {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// List returns all records in the collection, sorted by path.
func (l *IngestionLedger) List(_ context.Context, collection string) ([]domain.IngestionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	records := make([]domain.IngestionRecord, 0, len(l.records[collection]))
	for _, rec := range l.records[collection] {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	return records, nil
}
