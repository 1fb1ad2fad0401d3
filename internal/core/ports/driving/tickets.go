package driving

import (
	"context"
	"time"

	"github.com/cairn-works/cairn/internal/core/domain"
)

// TicketService derives progress metrics and follow-up candidates from
// tracker tickets.
type TicketService interface {
	// GetProgressReport fetches the ticket and analyzes its changelog.
	GetProgressReport(ctx context.Context, key string) (*domain.TicketReport, error)

	// BoardReport aggregates metrics for the given tickets over the
	// window, bucketing throughput by period.
	BoardReport(ctx context.Context, keys []string, windowStart, windowEnd time.Time, period time.Duration) (*domain.BoardReport, error)

	// ScanFollowUps fetches the ticket's comments and returns the
	// stale unanswered questions not yet notified. Repeated scans over
	// unchanged state return the same pending candidates and never
	// re-emit notified ones.
	ScanFollowUps(ctx context.Context, key string, window time.Duration) ([]domain.FollowUpCandidate, error)

	// MarkNotified records that a reminder went out for the candidate.
	MarkNotified(ctx context.Context, c domain.FollowUpCandidate) error

	// ChaseRound scans tracker-selected tickets (bounded per round),
	// posting reminders when auto-post is enabled. Returns how many
	// reminders were sent or recorded.
	ChaseRound(ctx context.Context) (int, error)
}
