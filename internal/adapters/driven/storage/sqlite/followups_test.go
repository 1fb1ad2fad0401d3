package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairn-works/cairn/internal/core/domain"
)

func testCandidate(ticket, commentID, mention string) domain.FollowUpCandidate {
	return domain.FollowUpCandidate{
		Ticket:    ticket,
		CommentID: commentID,
		Mention:   mention,
		Author:    "dana",
		Excerpt:   "Could you confirm the rollout plan?",
		FirstSeen: time.Now().UTC().Truncate(time.Second),
		Reminder:  "Hi [~" + mention + "], just a nudge.",
	}
}

func TestFollowUpStore_PutAndGet(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	fus := store.FollowUpStore()
	ctx := context.Background()

	c := testCandidate("OPS-42", "1001", "sam")
	require.NoError(t, fus.Put(ctx, c))

	got, err := fus.Get(ctx, "OPS-42", "1001", "sam")
	require.NoError(t, err)
	assert.Equal(t, c.Ticket, got.Ticket)
	assert.Equal(t, c.CommentID, got.CommentID)
	assert.Equal(t, c.Mention, got.Mention)
	assert.Equal(t, c.Author, got.Author)
	assert.Equal(t, c.Excerpt, got.Excerpt)
	assert.True(t, c.FirstSeen.Equal(got.FirstSeen))
	assert.False(t, got.Notified)
	assert.Equal(t, c.Reminder, got.Reminder)
}

func TestFollowUpStore_Get_NotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	fus := store.FollowUpStore()

	_, err := fus.Get(context.Background(), "OPS-1", "1", "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFollowUpStore_Put_InvalidInput(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	fus := store.FollowUpStore()
	ctx := context.Background()

	assert.ErrorIs(t, fus.Put(ctx, domain.FollowUpCandidate{CommentID: "1", Mention: "m"}), domain.ErrInvalidInput)
	assert.ErrorIs(t, fus.Put(ctx, domain.FollowUpCandidate{Ticket: "T-1", Mention: "m"}), domain.ErrInvalidInput)
	assert.ErrorIs(t, fus.Put(ctx, domain.FollowUpCandidate{Ticket: "T-1", CommentID: "1"}), domain.ErrInvalidInput)
}

func TestFollowUpStore_List_MultipleMentions(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	fus := store.FollowUpStore()
	ctx := context.Background()

	// One comment mentioning two users yields two candidates
	require.NoError(t, fus.Put(ctx, testCandidate("OPS-42", "1001", "sam")))
	require.NoError(t, fus.Put(ctx, testCandidate("OPS-42", "1001", "alex")))
	require.NoError(t, fus.Put(ctx, testCandidate("OPS-43", "2001", "sam")))

	candidates, err := fus.List(ctx, "OPS-42")
	require.NoError(t, err)
	assert.Len(t, candidates, 2)
	for _, c := range candidates {
		assert.Equal(t, "OPS-42", c.Ticket)
	}
}

func TestFollowUpStore_SetNotified(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	fus := store.FollowUpStore()
	ctx := context.Background()

	require.NoError(t, fus.Put(ctx, testCandidate("OPS-42", "1001", "sam")))
	require.NoError(t, fus.SetNotified(ctx, "OPS-42", "1001", "sam"))

	got, err := fus.Get(ctx, "OPS-42", "1001", "sam")
	require.NoError(t, err)
	assert.True(t, got.Notified)

	// Marking twice is harmless
	assert.NoError(t, fus.SetNotified(ctx, "OPS-42", "1001", "sam"))
}

func TestFollowUpStore_SetNotified_Missing(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	fus := store.FollowUpStore()

	err := fus.SetNotified(context.Background(), "OPS-99", "1", "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFollowUpStore_Delete(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	fus := store.FollowUpStore()
	ctx := context.Background()

	require.NoError(t, fus.Put(ctx, testCandidate("OPS-42", "1001", "sam")))
	require.NoError(t, fus.Delete(ctx, "OPS-42", "1001", "sam"))

	_, err := fus.Get(ctx, "OPS-42", "1001", "sam")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Deleting again is not an error
	assert.NoError(t, fus.Delete(ctx, "OPS-42", "1001", "sam"))
}

func TestFollowUpStore_ScanDigest(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	fus := store.FollowUpStore()
	ctx := context.Background()

	// Never-scanned ticket returns empty digest without error
	digest, err := fus.GetScanDigest(ctx, "OPS-42")
	require.NoError(t, err)
	assert.Empty(t, digest)

	require.NoError(t, fus.PutScanDigest(ctx, "OPS-42", "sha256:aaa"))

	digest, err = fus.GetScanDigest(ctx, "OPS-42")
	require.NoError(t, err)
	assert.Equal(t, "sha256:aaa", digest)

	// Digest updates replace the stored value
	require.NoError(t, fus.PutScanDigest(ctx, "OPS-42", "sha256:bbb"))
	digest, err = fus.GetScanDigest(ctx, "OPS-42")
	require.NoError(t, err)
	assert.Equal(t, "sha256:bbb", digest)
}

func TestFollowUpStore_NotifiedSurvivesReopen(t *testing.T) {
	tempDir := t.TempDir()
	ctx := context.Background()

	store1, err := NewStore(tempDir)
	require.NoError(t, err)

	require.NoError(t, store1.FollowUpStore().Put(ctx, testCandidate("OPS-42", "1001", "sam")))
	require.NoError(t, store1.FollowUpStore().SetNotified(ctx, "OPS-42", "1001", "sam"))
	require.NoError(t, store1.Close())

	// The notified flag is what keeps restarts from re-sending reminders
	store2, err := NewStore(tempDir)
	require.NoError(t, err)
	defer store2.Close()

	got, err := store2.FollowUpStore().Get(ctx, "OPS-42", "1001", "sam")
	require.NoError(t, err)
	assert.True(t, got.Notified)
}
