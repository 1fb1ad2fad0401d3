// Package chromem provides an embedded vector store backed by
// chromem-go, persisting collections to local disk.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/cairn-works/cairn/internal/core/domain"
	"github.com/cairn-works/cairn/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.VectorStore = (*Store)(nil)

// Metadata keys stored on every chunk document.
const (
	metaPath    = "path"
	metaVersion = "version"
	metaIndex   = "index"
	metaTitle   = "title"
	metaTokens  = "tokens"
)

// addConcurrency bounds chromem's internal write parallelism.
const addConcurrency = 4

// Store persists chunk embeddings using chromem-go.
type Store struct {
	db   *chromem.DB
	path string

	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

// NewStore creates a vector store persisted under dir. An empty dir
// defaults to ~/.cairn/data/vectors.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, ".cairn", "data", "vectors")
	}

	db, err := chromem.NewPersistentDB(dir, true)
	if err != nil {
		return nil, errors.Join(domain.ErrVectorStoreUnavailable,
			fmt.Errorf("opening vector store at %s: %w", dir, err))
	}

	return &Store{
		db:          db,
		path:        dir,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// collection returns the named chromem collection, creating it on
// first use.
func (s *Store) collection(name string) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if col, ok := s.collections[name]; ok {
		return col, nil
	}

	// Embeddings are always supplied by the caller; chromem must never
	// compute one itself.
	col, err := s.db.GetOrCreateCollection(name, nil, rejectEmbedding)
	if err != nil {
		return nil, errors.Join(domain.ErrVectorStoreUnavailable,
			fmt.Errorf("opening collection %s: %w", name, err))
	}
	s.collections[name] = col
	return col, nil
}

func rejectEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("embeddings must be precomputed")
}

// Upsert writes the chunks into the collection. Chunks without an
// embedding are rejected.
func (s *Store) Upsert(ctx context.Context, collection string, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	col, err := s.collection(collection)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		if len(c.Embedding) == 0 {
			return errors.Join(domain.ErrVectorStore, domain.ErrInvalidInput,
				fmt.Errorf("chunk %s has no embedding", c.ID))
		}
		docs[i] = chromem.Document{
			ID:        c.ID,
			Content:   c.Text,
			Embedding: c.Embedding,
			Metadata: map[string]string{
				metaPath:    c.DocumentPath,
				metaVersion: strconv.Itoa(c.DocumentVersion),
				metaIndex:   strconv.Itoa(c.Index),
				metaTitle:   c.Title,
				metaTokens:  strconv.Itoa(c.Tokens),
			},
		}
	}

	if err := col.AddDocuments(ctx, docs, addConcurrency); err != nil {
		return errors.Join(domain.ErrVectorStore,
			fmt.Errorf("upserting %d chunks into %s: %w", len(docs), collection, err))
	}
	return nil
}

// DeleteVersion removes all chunks of one document version.
func (s *Store) DeleteVersion(ctx context.Context, collection, path string, version int) error {
	col, err := s.collection(collection)
	if err != nil {
		return err
	}

	where := map[string]string{
		metaPath:    path,
		metaVersion: strconv.Itoa(version),
	}
	if err := col.Delete(ctx, where, nil); err != nil {
		return errors.Join(domain.ErrVectorStore,
			fmt.Errorf("deleting %s version %d from %s: %w", path, version, collection, err))
	}
	return nil
}

// DeleteDocument removes all chunks of a document across versions.
func (s *Store) DeleteDocument(ctx context.Context, collection, path string) error {
	col, err := s.collection(collection)
	if err != nil {
		return err
	}

	if err := col.Delete(ctx, map[string]string{metaPath: path}, nil); err != nil {
		return errors.Join(domain.ErrVectorStore,
			fmt.Errorf("deleting %s from %s: %w", path, collection, err))
	}
	return nil
}

// Query returns up to k chunks most similar to the vector, scores
// descending, excluding results below minScore.
func (s *Store) Query(ctx context.Context, collection string, vector []float32, k int, minScore float64) ([]domain.ScoredChunk, error) {
	if k <= 0 || len(vector) == 0 {
		return nil, errors.Join(domain.ErrVectorStore, domain.ErrInvalidInput,
			errors.New("query needs a vector and a positive k"))
	}

	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the collection.
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := col.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, errors.Join(domain.ErrVectorStore,
			fmt.Errorf("querying %s: %w", collection, err))
	}

	scored := make([]domain.ScoredChunk, 0, len(results))
	for _, r := range results {
		score := float64(r.Similarity)
		if score < minScore {
			continue
		}
		scored = append(scored, domain.ScoredChunk{
			Chunk: resultChunk(collection, r),
			Score: score,
		})
	}
	return scored, nil
}

// Close releases resources. chromem persists on every write, so there
// is nothing to flush.
func (s *Store) Close() error {
	return nil
}

// Path returns the on-disk location of the store.
func (s *Store) Path() string {
	return s.path
}

func resultChunk(collection string, r chromem.Result) domain.Chunk {
	version, _ := strconv.Atoi(r.Metadata[metaVersion])
	index, _ := strconv.Atoi(r.Metadata[metaIndex])
	tokens, _ := strconv.Atoi(r.Metadata[metaTokens])

	return domain.Chunk{
		ID:              r.ID,
		Collection:      collection,
		DocumentPath:    r.Metadata[metaPath],
		DocumentVersion: version,
		Index:           index,
		Title:           r.Metadata[metaTitle],
		Text:            r.Content,
		Tokens:          tokens,
		Embedding:       r.Embedding,
	}
}
