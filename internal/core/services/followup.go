package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cairn-works/cairn/internal/core/domain"
	"github.com/cairn-works/cairn/internal/core/ports/driven"
	"github.com/cairn-works/cairn/internal/logger"
	"github.com/cairn-works/cairn/internal/retry"
)

// defaultReminderPrompt drafts the nudge comment for a stale question.
// Placeholders: mentioned user, question author, question excerpt.
const defaultReminderPrompt = `Hi [~%s], just a nudge: %s asked a question here that still looks unanswered.

> %s

Could you take a look when you get a chance?`

// excerptCap bounds the question excerpt quoted in reminders.
const excerptCap = 200

// FollowUpService detects stale unanswered questions in ticket comment
// threads. A question is a comment containing "?" that mentions at
// least one user other than its author; it stays a candidate until one
// of the mentioned users replies, the comment is marked resolved, or a
// reminder has gone out. The follow-up store makes repeated scans
// idempotent across restarts.
type FollowUpService struct {
	tracker  driven.TicketTracker
	store    driven.FollowUpStore
	cfg      domain.FollowUpSettings
	retryCfg retry.Config
	now      func() time.Time

	prompts driven.PromptStore
}

// NewFollowUpService creates a follow-up detector over the given
// tracker and durable candidate store.
func NewFollowUpService(tracker driven.TicketTracker, store driven.FollowUpStore, cfg domain.FollowUpSettings, retryCfg retry.Config) *FollowUpService {
	defaults := domain.DefaultSettings()
	if cfg.Window <= 0 {
		cfg.Window = defaults.FollowUp.Window
	}
	if cfg.RoundCap <= 0 {
		cfg.RoundCap = defaults.FollowUp.RoundCap
	}
	return &FollowUpService{
		tracker:  tracker,
		store:    store,
		cfg:      cfg,
		retryCfg: retryCfg,
		now:      time.Now,
	}
}

// SetPromptStore sets the prompt store used for the reminder template.
func (s *FollowUpService) SetPromptStore(store driven.PromptStore) {
	s.prompts = store
}

// Scan walks the ticket's comment thread and returns every stale
// unanswered question as of now, one candidate per mentioned user. It
// is pure detection: idempotence against earlier scans lives in
// ScanFollowUps.
func (s *FollowUpService) Scan(t *domain.Ticket, window time.Duration, now time.Time) []domain.FollowUpCandidate {
	if t == nil {
		return nil
	}

	var out []domain.FollowUpCandidate
	for i, comment := range t.Comments {
		if !isQuestion(comment) || comment.Resolved {
			continue
		}
		if now.Sub(comment.At) < window {
			continue
		}
		for _, mention := range comment.Mentions {
			if mention == comment.Author {
				continue
			}
			if answeredBy(t.Comments[i+1:], mention) {
				continue
			}
			cand := domain.FollowUpCandidate{
				Ticket:    t.Key,
				CommentID: comment.ID,
				Mention:   mention,
				Author:    comment.Author,
				Excerpt:   clipText(comment.Text, excerptCap),
				FirstSeen: now,
			}
			cand.Reminder = s.reminder(cand)
			out = append(out, cand)
		}
	}
	return out
}

// ScanFollowUps fetches the ticket and reconciles the pure scan result
// with the follow-up store: notified candidates are never re-emitted,
// cleared ones are deleted, and pending ones keep their original
// FirstSeen. A thread whose comment digest is unchanged and which
// yields no candidates skips the store reconciliation entirely.
func (s *FollowUpService) ScanFollowUps(ctx context.Context, key string, window time.Duration) ([]domain.FollowUpCandidate, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("%w: ticket key is empty", domain.ErrInvalidInput)
	}
	if window <= 0 {
		window = s.cfg.Window
	}

	ticket, err := retry.DoWithResult(ctx, s.retryCfg, "fetch ticket "+key, func() (*domain.Ticket, error) {
		return s.tracker.GetTicket(ctx, key)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch ticket %s: %w", key, err)
	}

	now := s.now().UTC()
	digest := commentDigest(ticket.Comments)
	current := s.Scan(ticket, window, now)

	if len(current) == 0 {
		prev, err := s.store.GetScanDigest(ctx, key)
		if err == nil && prev == digest {
			// Nothing stale and nothing changed since the last scan,
			// so the store already reflects this thread.
			return nil, nil
		}
	}

	stored, err := s.store.List(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("list follow-ups for %s: %w", key, err)
	}
	known := make(map[string]domain.FollowUpCandidate, len(stored))
	for _, c := range stored {
		known[candidateID(c.CommentID, c.Mention)] = c
	}

	var out []domain.FollowUpCandidate
	live := make(map[string]bool, len(current))
	for _, cand := range current {
		id := candidateID(cand.CommentID, cand.Mention)
		live[id] = true
		if prior, ok := known[id]; ok {
			if prior.Notified {
				continue
			}
			cand.FirstSeen = prior.FirstSeen
		}
		if err := s.store.Put(ctx, cand); err != nil {
			return nil, fmt.Errorf("record follow-up on %s: %w", key, err)
		}
		out = append(out, cand)
	}

	// Candidates that stopped qualifying were answered or resolved.
	for _, prior := range stored {
		if live[candidateID(prior.CommentID, prior.Mention)] {
			continue
		}
		if err := s.store.Delete(ctx, key, prior.CommentID, prior.Mention); err != nil {
			return nil, fmt.Errorf("clear follow-up on %s: %w", key, err)
		}
	}

	if err := s.store.PutScanDigest(ctx, key, digest); err != nil {
		return nil, fmt.Errorf("record scan digest for %s: %w", key, err)
	}

	logger.Debug("follow-up scan complete",
		zap.String("ticket", key),
		zap.Int("pending", len(out)),
		zap.Int("cleared", countCleared(stored, live)))
	return out, nil
}

// MarkNotified records that a reminder went out for the candidate, so
// later scans stop re-emitting it.
func (s *FollowUpService) MarkNotified(ctx context.Context, c domain.FollowUpCandidate) error {
	if c.Ticket == "" || c.CommentID == "" || c.Mention == "" {
		return fmt.Errorf("%w: candidate identity incomplete", domain.ErrInvalidInput)
	}

	err := s.store.SetNotified(ctx, c.Ticket, c.CommentID, c.Mention)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("mark notified on %s: %w", c.Ticket, err)
	}

	// The candidate came from a pure Scan rather than a persisted one.
	c.Notified = true
	if err := s.store.Put(ctx, c); err != nil {
		return fmt.Errorf("mark notified on %s: %w", c.Ticket, err)
	}
	return nil
}

// ChaseRound searches the tracker for tickets worth scanning, detects
// stale questions on each, and (when auto-post is on) posts reminder
// comments and marks the candidates notified. Returns how many
// reminders were sent, or recorded as pending when auto-post is off.
// Per-ticket failures are logged and skipped so one bad ticket cannot
// stall the round.
func (s *FollowUpService) ChaseRound(ctx context.Context) (int, error) {
	query := strings.TrimSpace(s.cfg.ChaseQuery)
	if query == "" {
		return 0, fmt.Errorf("%w: chase query not configured", domain.ErrInvalidInput)
	}

	keys, err := retry.DoWithResult(ctx, s.retryCfg, "search tickets", func() ([]string, error) {
		return s.tracker.SearchTickets(ctx, query, s.cfg.RoundCap)
	})
	if err != nil {
		return 0, fmt.Errorf("search tickets: %w", err)
	}
	if len(keys) > s.cfg.RoundCap {
		keys = keys[:s.cfg.RoundCap]
	}

	sent := 0
	for _, key := range keys {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}

		candidates, err := s.ScanFollowUps(ctx, key, s.cfg.Window)
		if err != nil {
			logger.Warn("chase round skipping ticket",
				zap.String("ticket", key), zap.Error(err))
			continue
		}

		for _, cand := range candidates {
			if !s.cfg.AutoPost {
				sent++
				continue
			}
			if err := s.tracker.PostComment(ctx, key, cand.Reminder); err != nil {
				// Not marked notified, so the next round retries it.
				logger.Warn("reminder post failed",
					zap.String("ticket", key),
					zap.String("comment", cand.CommentID),
					zap.String("mention", cand.Mention),
					zap.Error(err))
				continue
			}
			if err := s.MarkNotified(ctx, cand); err != nil {
				logger.Warn("reminder sent but not recorded",
					zap.String("ticket", key),
					zap.String("comment", cand.CommentID),
					zap.Error(err))
				continue
			}
			sent++
		}
	}

	logger.Info("chase round complete",
		zap.Int("tickets", len(keys)),
		zap.Int("reminders", sent),
		zap.Bool("auto_post", s.cfg.AutoPost))
	return sent, nil
}

// reminder renders the reminder draft for the candidate.
func (s *FollowUpService) reminder(c domain.FollowUpCandidate) string {
	template := defaultReminderPrompt
	if s.prompts != nil {
		if t, err := s.prompts.Load(driven.PromptReminder); err == nil && strings.TrimSpace(t) != "" {
			template = t
		}
	}
	return fmt.Sprintf(template, c.Mention, c.Author, c.Excerpt)
}

// isQuestion reports whether the comment asks something of somebody
// else: it contains a question mark and mentions at least one user
// other than its author.
func isQuestion(c domain.Comment) bool {
	if !strings.Contains(c.Text, "?") {
		return false
	}
	for _, m := range c.Mentions {
		if m != c.Author {
			return true
		}
	}
	return false
}

// answeredBy reports whether any of the later comments was written by
// the mentioned user. Any reply from them counts as an answer.
func answeredBy(later []domain.Comment, mention string) bool {
	for _, c := range later {
		if c.Author == mention {
			return true
		}
	}
	return false
}

// commentDigest hashes the parts of a thread that influence detection.
// Edits, resolutions and new comments all change it.
func commentDigest(comments []domain.Comment) string {
	h := sha256.New()
	for _, c := range comments {
		fmt.Fprintf(h, "%s|%d|%t|%s\n", c.ID, c.At.UnixNano(), c.Resolved, c.Text)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// candidateID keys a candidate within one ticket.
func candidateID(commentID, mention string) string {
	return commentID + "\x00" + mention
}

func countCleared(stored []domain.FollowUpCandidate, live map[string]bool) int {
	n := 0
	for _, c := range stored {
		if !live[candidateID(c.CommentID, c.Mention)] {
			n++
		}
	}
	return n
}
