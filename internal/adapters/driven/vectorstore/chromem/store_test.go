package chromem

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairn-works/cairn/internal/core/domain"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(filepath.Join(t.TempDir(), "vectors"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testChunk(id, path string, version, index int, embedding []float32) domain.Chunk {
	return domain.Chunk{
		ID:              id,
		Collection:      "confluence",
		DocumentPath:    path,
		DocumentVersion: version,
		Index:           index,
		Title:           "Test Page",
		Text:            "chunk " + id,
		Tokens:          3,
		Embedding:       embedding,
	}
}

func TestStore_UpsertAndQuery(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	chunks := []domain.Chunk{
		testChunk("c1", "docs/deploy.md", 1, 0, []float32{1, 0, 0}),
		testChunk("c2", "docs/deploy.md", 1, 1, []float32{0, 1, 0}),
		testChunk("c3", "docs/oncall.md", 1, 0, []float32{0.7071, 0.7071, 0}),
	}
	require.NoError(t, store.Upsert(ctx, "confluence", chunks))

	results, err := store.Query(ctx, "confluence", []float32{1, 0, 0}, 3, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Scores descending, exact match first.
	assert.Equal(t, "c1", results[0].Chunk.ID)
	assert.InDelta(t, 1.0, results[0].Score, 0.001)
	assert.Equal(t, "c3", results[1].Chunk.ID)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Greater(t, results[1].Score, results[2].Score)

	// Metadata round-trips.
	assert.Equal(t, "docs/deploy.md", results[0].Chunk.DocumentPath)
	assert.Equal(t, 1, results[0].Chunk.DocumentVersion)
	assert.Equal(t, 0, results[0].Chunk.Index)
	assert.Equal(t, "Test Page", results[0].Chunk.Title)
	assert.Equal(t, 3, results[0].Chunk.Tokens)
	assert.Equal(t, "chunk c1", results[0].Chunk.Text)
	assert.Equal(t, "confluence", results[0].Chunk.Collection)
}

func TestStore_QueryMinScore(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	chunks := []domain.Chunk{
		testChunk("close", "a.md", 1, 0, []float32{1, 0, 0}),
		testChunk("far", "b.md", 1, 0, []float32{0, 1, 0}),
	}
	require.NoError(t, store.Upsert(ctx, "confluence", chunks))

	results, err := store.Query(ctx, "confluence", []float32{1, 0, 0}, 2, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "close", results[0].Chunk.ID)
}

func TestStore_QueryClampsK(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "confluence", []domain.Chunk{
		testChunk("only", "a.md", 1, 0, []float32{1, 0, 0}),
	}))

	// k larger than the collection must not error.
	results, err := store.Query(ctx, "confluence", []float32{1, 0, 0}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestStore_QueryEmptyCollection(t *testing.T) {
	store := setupTestStore(t)

	results, err := store.Query(context.Background(), "confluence", []float32{1, 0, 0}, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStore_QueryInvalidInput(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Query(ctx, "confluence", nil, 5, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = store.Query(ctx, "confluence", []float32{1, 0, 0}, 0, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestStore_UpsertRejectsMissingEmbedding(t *testing.T) {
	store := setupTestStore(t)

	err := store.Upsert(context.Background(), "confluence", []domain.Chunk{
		testChunk("bare", "a.md", 1, 0, nil),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrVectorStore)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestStore_UpsertOverwritesSameID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "confluence", []domain.Chunk{
		testChunk("c1", "a.md", 1, 0, []float32{1, 0, 0}),
	}))
	updated := testChunk("c1", "a.md", 1, 0, []float32{0, 1, 0})
	updated.Text = "rewritten"
	require.NoError(t, store.Upsert(ctx, "confluence", []domain.Chunk{updated}))

	results, err := store.Query(ctx, "confluence", []float32{0, 1, 0}, 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "rewritten", results[0].Chunk.Text)
}

func TestStore_DeleteVersion(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "confluence", []domain.Chunk{
		testChunk("old-0", "a.md", 1, 0, []float32{1, 0, 0}),
		testChunk("old-1", "a.md", 1, 1, []float32{1, 0, 0}),
		testChunk("new-0", "a.md", 2, 0, []float32{1, 0, 0}),
		testChunk("other", "b.md", 1, 0, []float32{1, 0, 0}),
	}))

	require.NoError(t, store.DeleteVersion(ctx, "confluence", "a.md", 1))

	results, err := store.Query(ctx, "confluence", []float32{1, 0, 0}, 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)

	ids := []string{results[0].Chunk.ID, results[1].Chunk.ID}
	assert.ElementsMatch(t, []string{"new-0", "other"}, ids)
}

func TestStore_DeleteDocument(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "confluence", []domain.Chunk{
		testChunk("a-v1", "a.md", 1, 0, []float32{1, 0, 0}),
		testChunk("a-v2", "a.md", 2, 0, []float32{1, 0, 0}),
		testChunk("b-v1", "b.md", 1, 0, []float32{1, 0, 0}),
	}))

	require.NoError(t, store.DeleteDocument(ctx, "confluence", "a.md"))

	results, err := store.Query(ctx, "confluence", []float32{1, 0, 0}, 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b-v1", results[0].Chunk.ID)
}

func TestStore_DeleteMissingIsNoop(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	assert.NoError(t, store.DeleteVersion(ctx, "confluence", "ghost.md", 1))
	assert.NoError(t, store.DeleteDocument(ctx, "confluence", "ghost.md"))
}

func TestStore_CollectionsAreIsolated(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "confluence", []domain.Chunk{
		testChunk("conf", "a.md", 1, 0, []float32{1, 0, 0}),
	}))
	require.NoError(t, store.Upsert(ctx, "sharepoint", []domain.Chunk{
		testChunk("share", "a.md", 1, 0, []float32{1, 0, 0}),
	}))

	results, err := store.Query(ctx, "confluence", []float32{1, 0, 0}, 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "conf", results[0].Chunk.ID)
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vectors")
	ctx := context.Background()

	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, "confluence", []domain.Chunk{
		testChunk("persisted", "a.md", 3, 0, []float32{1, 0, 0}),
	}))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	results, err := reopened.Query(ctx, "confluence", []float32{1, 0, 0}, 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "persisted", results[0].Chunk.ID)
	assert.Equal(t, 3, results[0].Chunk.DocumentVersion)
}
