// Package memory provides an in-memory vector store for tests and
// ephemeral runs. Similarity is brute-force cosine over all chunks.
package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/cairn-works/cairn/internal/core/domain"
	"github.com/cairn-works/cairn/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.VectorStore = (*Store)(nil)

// Store is an in-memory implementation of the VectorStore port.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]domain.Chunk
}

// NewStore creates a new in-memory vector store.
func NewStore() *Store {
	return &Store{
		collections: make(map[string]map[string]domain.Chunk),
	}
}

// Upsert writes the chunks into the collection.
func (s *Store) Upsert(_ context.Context, collection string, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.collections[collection]
	if col == nil {
		col = make(map[string]domain.Chunk)
		s.collections[collection] = col
	}

	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return errors.Join(domain.ErrVectorStore, domain.ErrInvalidInput,
				fmt.Errorf("chunk %s has no embedding", c.ID))
		}
		c.Embedding = append([]float32(nil), c.Embedding...)
		col[c.ID] = c
	}
	return nil
}

// DeleteVersion removes all chunks of one document version.
func (s *Store) DeleteVersion(_ context.Context, collection, path string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.collections[collection] {
		if c.DocumentPath == path && c.DocumentVersion == version {
			delete(s.collections[collection], id)
		}
	}
	return nil
}

// DeleteDocument removes all chunks of a document across versions.
func (s *Store) DeleteDocument(_ context.Context, collection, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.collections[collection] {
		if c.DocumentPath == path {
			delete(s.collections[collection], id)
		}
	}
	return nil
}

// Query returns up to k chunks most similar to the vector, scores
// descending, excluding results below minScore.
func (s *Store) Query(_ context.Context, collection string, vector []float32, k int, minScore float64) ([]domain.ScoredChunk, error) {
	if k <= 0 || len(vector) == 0 {
		return nil, errors.Join(domain.ErrVectorStore, domain.ErrInvalidInput,
			errors.New("query needs a vector and a positive k"))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var scored []domain.ScoredChunk
	for _, c := range s.collections[collection] {
		score := cosine(vector, c.Embedding)
		if score < minScore {
			continue
		}
		scored = append(scored, domain.ScoredChunk{Chunk: c, Score: score})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.ID < scored[j].Chunk.ID
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// Close releases resources.
func (s *Store) Close() error {
	return nil
}

// Count returns the number of chunks in a collection.
func (s *Store) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

// cosine computes cosine similarity. Mismatched dimensions or zero
// vectors score 0.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
