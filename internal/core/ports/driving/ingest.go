package driving

import (
	"context"

	"github.com/cairn-works/cairn/internal/core/domain"
)

// IngestService keeps collections synchronized with their sources.
type IngestService interface {
	// Sync runs one ingestion pass over the collection using the given
	// source configuration. Returns domain.ErrSyncInProgress when a run
	// already holds the collection lock, and domain.ErrNoAdapter when
	// the collection has no registered source adapter.
	Sync(ctx context.Context, collection string, cfg domain.SourceConfig) (*domain.IngestionReport, error)

	// TriggerIngest runs Sync with the collection's configured source.
	TriggerIngest(ctx context.Context, collection string) (*domain.IngestionReport, error)

	// Syncing reports whether an ingestion run currently holds the
	// collection's lock.
	Syncing(collection string) bool
}
