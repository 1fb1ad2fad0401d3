package services

import "github.com/cairn-works/cairn/internal/core/ports/driving"

// Ensure TicketService implements the driving port.
var _ driving.TicketService = (*TicketService)(nil)

// TicketService bundles changelog analysis and follow-up detection
// behind the single ticket-facing port.
type TicketService struct {
	*ChangelogService
	*FollowUpService
}

// NewTicketService creates the combined ticket service.
func NewTicketService(changelogs *ChangelogService, followUps *FollowUpService) *TicketService {
	return &TicketService{
		ChangelogService: changelogs,
		FollowUpService:  followUps,
	}
}
