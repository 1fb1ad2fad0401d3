package driven

import (
	"context"

	"github.com/cairn-works/cairn/internal/core/domain"
)

// TicketTracker reaches the external issue tracker.
//
// Implementations must wrap domain.ErrTicketNotFound for unknown keys
// and domain.ErrTrackerUnavailable or domain.ErrRateLimited for
// transient failures.
type TicketTracker interface {
	// GetTicket returns the ticket with its changelog and comments,
	// both already fetched.
	GetTicket(ctx context.Context, key string) (*domain.Ticket, error)

	// FetchChangelog returns the ticket's status transitions. Order is
	// tracker-defined; callers sort via Ticket.SortedChangelog.
	FetchChangelog(ctx context.Context, key string) ([]domain.ChangelogEntry, error)

	// FetchComments returns the ticket's comments ascending by time.
	FetchComments(ctx context.Context, key string) ([]domain.Comment, error)

	// PostComment adds a comment to the ticket.
	PostComment(ctx context.Context, key, text string) error

	// SearchTickets returns up to limit ticket keys matching the
	// tracker-native query.
	SearchTickets(ctx context.Context, query string, limit int) ([]string, error)
}
