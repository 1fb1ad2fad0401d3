package driven

import (
	"context"

	"github.com/cairn-works/cairn/internal/core/domain"
)

// VectorStore persists chunks with their embeddings and answers top-K
// similarity queries. Collections partition the index; one collection
// corresponds to one document source.
//
// Implementations must wrap domain.ErrVectorStore for per-call failures
// and domain.ErrVectorStoreUnavailable when the store itself cannot be
// reached, so callers can tell a bad write from a dead store.
type VectorStore interface {
	// Upsert writes the chunks (with embeddings) into the collection.
	// Chunks carry their document path and version; re-upserting the
	// same chunk ID overwrites it.
	Upsert(ctx context.Context, collection string, chunks []domain.Chunk) error

	// DeleteVersion removes all chunks of one document version.
	DeleteVersion(ctx context.Context, collection, path string, version int) error

	// DeleteDocument removes all chunks of a document across versions.
	DeleteDocument(ctx context.Context, collection, path string) error

	// Query returns up to k chunks most similar to the vector, scores
	// descending, excluding results below minScore. An empty result is
	// not an error.
	Query(ctx context.Context, collection string, vector []float32, k int, minScore float64) ([]domain.ScoredChunk, error)

	// Close releases resources.
	Close() error
}
