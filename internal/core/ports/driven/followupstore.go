package driven

import (
	"context"

	"github.com/cairn-works/cairn/internal/core/domain"
)

// FollowUpStore persists follow-up candidates and per-ticket scan
// digests. The notified flag is what makes repeated scans idempotent,
// so the store must survive process restarts.
type FollowUpStore interface {
	// Get returns the candidate keyed (ticket, commentID, mention).
	// Returns domain.ErrNotFound if no candidate exists.
	Get(ctx context.Context, ticket, commentID, mention string) (*domain.FollowUpCandidate, error)

	// Put creates or replaces a candidate.
	Put(ctx context.Context, c domain.FollowUpCandidate) error

	// Delete removes a candidate. Deleting a missing candidate is not
	// an error.
	Delete(ctx context.Context, ticket, commentID, mention string) error

	// List returns all candidates for the ticket, notified or not.
	List(ctx context.Context, ticket string) ([]domain.FollowUpCandidate, error)

	// SetNotified marks the candidate as reminded.
	SetNotified(ctx context.Context, ticket, commentID, mention string) error

	// GetScanDigest returns the stored comment digest for the ticket,
	// or empty string if the ticket was never scanned.
	GetScanDigest(ctx context.Context, ticket string) (string, error)

	// PutScanDigest stores the comment digest for the ticket.
	PutScanDigest(ctx context.Context, ticket, digest string) error
}
