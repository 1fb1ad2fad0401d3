package driven

import (
	"context"

	"github.com/cairn-works/cairn/internal/core/domain"
)

// IngestionLedger persists per-document ingestion records. The ledger
// is what makes ingestion incremental: hash comparison, version
// tracking and the tombstone pass all read it. It must survive process
// restarts.
type IngestionLedger interface {
	// Get returns the record for (collection, path).
	// Returns domain.ErrNotFound if no record exists.
	Get(ctx context.Context, collection, path string) (*domain.IngestionRecord, error)

	// Put creates or replaces the record.
	Put(ctx context.Context, rec domain.IngestionRecord) error

	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, collection, path string) error

	// ListPaths returns all recorded paths in the collection.
	ListPaths(ctx context.Context, collection string) ([]string, error)

	// List returns all records in the collection.
	List(ctx context.Context, collection string) ([]domain.IngestionRecord, error)
}
