package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cairn-works/cairn/internal/core/domain"
	"github.com/cairn-works/cairn/internal/core/ports/driven"
)

// Ensure FollowUpStore implements the interface.
var _ driven.FollowUpStore = (*FollowUpStore)(nil)

// candidateKey identifies a follow-up candidate within a ticket.
type candidateKey struct {
	commentID string
	mention   string
}

// FollowUpStore is an in-memory implementation of driven.FollowUpStore.
// State is lost on restart; use the sqlite store outside tests.
type FollowUpStore struct {
	mu         sync.RWMutex
	candidates map[string]map[candidateKey]domain.FollowUpCandidate // ticket -> key -> candidate
	digests    map[string]string                                    // ticket -> comment digest
}

// NewFollowUpStore creates a new in-memory follow-up store.
func NewFollowUpStore() *FollowUpStore {
	return &FollowUpStore{
		candidates: make(map[string]map[candidateKey]domain.FollowUpCandidate),
		digests:    make(map[string]string),
	}
}

// Get returns the candidate keyed (ticket, commentID, mention).
func (s *FollowUpStore) Get(_ context.Context, ticket, commentID, mention string) (*domain.FollowUpCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.candidates[ticket][candidateKey{commentID, mention}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

// Put creates or replaces a candidate.
func (s *FollowUpStore) Put(_ context.Context, c domain.FollowUpCandidate) error {
	if c.Ticket == "" || c.CommentID == "" || c.Mention == "" {
		return domain.ErrInvalidInput
	}

	if c.FirstSeen.IsZero() {
		c.FirstSeen = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.candidates[c.Ticket] == nil {
		s.candidates[c.Ticket] = make(map[candidateKey]domain.FollowUpCandidate)
	}
	s.candidates[c.Ticket][candidateKey{c.CommentID, c.Mention}] = c
	return nil
}

// Delete removes a candidate. Deleting a missing candidate is not an error.
func (s *FollowUpStore) Delete(_ context.Context, ticket, commentID, mention string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.candidates[ticket], candidateKey{commentID, mention})
	return nil
}

// List returns all candidates for the ticket, notified or not.
func (s *FollowUpStore) List(_ context.Context, ticket string) ([]domain.FollowUpCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.FollowUpCandidate, 0, len(s.candidates[ticket]))
	for _, c := range s.candidates[ticket] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CommentID != out[j].CommentID {
			return out[i].CommentID < out[j].CommentID
		}
		return out[i].Mention < out[j].Mention
	})
	return out, nil
}

// SetNotified marks the candidate as reminded.
func (s *FollowUpStore) SetNotified(_ context.Context, ticket, commentID, mention string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := candidateKey{commentID, mention}
	c, ok := s.candidates[ticket][key]
	if !ok {
		return domain.ErrNotFound
	}
	c.Notified = true
	s.candidates[ticket][key] = c
	return nil
}

// GetScanDigest returns the stored comment digest for the ticket.
func (s *FollowUpStore) GetScanDigest(_ context.Context, ticket string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.digests[ticket], nil
}

// PutScanDigest stores the comment digest for the ticket.
func (s *FollowUpStore) PutScanDigest(_ context.Context, ticket, digest string) error {
	if ticket == "" {
		return domain.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.digests[ticket] = digest
	return nil
}
