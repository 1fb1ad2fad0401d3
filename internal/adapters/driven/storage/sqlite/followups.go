package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cairn-works/cairn/internal/core/domain"
	"github.com/cairn-works/cairn/internal/core/ports/driven"
)

// followUpStore implements driven.FollowUpStore.
type followUpStore struct {
	store *Store
}

var _ driven.FollowUpStore = (*followUpStore)(nil)

// Get retrieves the candidate keyed (ticket, commentID, mention).
func (f *followUpStore) Get(ctx context.Context, ticket, commentID, mention string) (*domain.FollowUpCandidate, error) {
	row := f.store.db.QueryRowContext(ctx, `
		SELECT ticket, comment_id, mention, author, excerpt, first_seen, notified, reminder
		FROM followup_candidates WHERE ticket = ? AND comment_id = ? AND mention = ?
	`, ticket, commentID, mention)

	var c domain.FollowUpCandidate
	var firstSeen sql.NullString
	var notified int

	if err := row.Scan(&c.Ticket, &c.CommentID, &c.Mention, &c.Author, &c.Excerpt,
		&firstSeen, &notified, &c.Reminder); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning follow-up candidate: %w", err)
	}

	c.FirstSeen = parseNullableTime(firstSeen)
	c.Notified = notified == 1

	return &c, nil
}

// Put creates or replaces a candidate.
func (f *followUpStore) Put(ctx context.Context, c domain.FollowUpCandidate) error {
	if c.Ticket == "" || c.CommentID == "" || c.Mention == "" {
		return domain.ErrInvalidInput
	}

	if c.FirstSeen.IsZero() {
		c.FirstSeen = time.Now().UTC()
	}

	_, err := f.store.db.ExecContext(ctx, `
		INSERT INTO followup_candidates
			(ticket, comment_id, mention, author, excerpt, first_seen, notified, reminder)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticket, comment_id, mention) DO UPDATE SET
			author = excluded.author,
			excerpt = excluded.excerpt,
			first_seen = excluded.first_seen,
			notified = excluded.notified,
			reminder = excluded.reminder
	`, c.Ticket, c.CommentID, c.Mention, c.Author, c.Excerpt,
		c.FirstSeen.Format(time.RFC3339Nano), boolToInt(c.Notified), c.Reminder)

	if err != nil {
		return fmt.Errorf("saving follow-up candidate: %w", err)
	}
	return nil
}

// Delete removes a candidate. Deleting a missing candidate is not an error.
func (f *followUpStore) Delete(ctx context.Context, ticket, commentID, mention string) error {
	_, err := f.store.db.ExecContext(ctx,
		"DELETE FROM followup_candidates WHERE ticket = ? AND comment_id = ? AND mention = ?",
		ticket, commentID, mention)
	if err != nil {
		return fmt.Errorf("deleting follow-up candidate: %w", err)
	}
	return nil
}

// List returns all candidates for the ticket, notified or not.
func (f *followUpStore) List(ctx context.Context, ticket string) ([]domain.FollowUpCandidate, error) {
	rows, err := f.store.db.QueryContext(ctx, `
		SELECT ticket, comment_id, mention, author, excerpt, first_seen, notified, reminder
		FROM followup_candidates WHERE ticket = ?
		ORDER BY comment_id, mention
	`, ticket)
	if err != nil {
		return nil, fmt.Errorf("querying follow-up candidates: %w", err)
	}
	defer rows.Close()

	var candidates []domain.FollowUpCandidate //nolint:prealloc // size unknown from query
	for rows.Next() {
		var c domain.FollowUpCandidate
		var firstSeen sql.NullString
		var notified int

		if err := rows.Scan(&c.Ticket, &c.CommentID, &c.Mention, &c.Author, &c.Excerpt,
			&firstSeen, &notified, &c.Reminder); err != nil {
			return nil, fmt.Errorf("scanning follow-up candidate: %w", err)
		}

		c.FirstSeen = parseNullableTime(firstSeen)
		c.Notified = notified == 1
		candidates = append(candidates, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating follow-up candidates: %w", err)
	}

	return candidates, nil
}

// SetNotified marks the candidate as reminded.
func (f *followUpStore) SetNotified(ctx context.Context, ticket, commentID, mention string) error {
	res, err := f.store.db.ExecContext(ctx, `
		UPDATE followup_candidates SET notified = 1
		WHERE ticket = ? AND comment_id = ? AND mention = ?
	`, ticket, commentID, mention)
	if err != nil {
		return fmt.Errorf("marking follow-up notified: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking notified update: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetScanDigest returns the stored comment digest for the ticket.
func (f *followUpStore) GetScanDigest(ctx context.Context, ticket string) (string, error) {
	var digest string
	err := f.store.db.QueryRowContext(ctx,
		"SELECT digest FROM followup_scans WHERE ticket = ?", ticket).Scan(&digest)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil // Never scanned
		}
		return "", fmt.Errorf("querying scan digest: %w", err)
	}
	return digest, nil
}

// PutScanDigest stores the comment digest for the ticket.
func (f *followUpStore) PutScanDigest(ctx context.Context, ticket, digest string) error {
	if ticket == "" {
		return domain.ErrInvalidInput
	}

	_, err := f.store.db.ExecContext(ctx, `
		INSERT INTO followup_scans (ticket, digest, scanned_at)
		VALUES (?, ?, ?)
		ON CONFLICT(ticket) DO UPDATE SET
			digest = excluded.digest,
			scanned_at = excluded.scanned_at
	`, ticket, digest, time.Now().UTC().Format(time.RFC3339Nano))

	if err != nil {
		return fmt.Errorf("saving scan digest: %w", err)
	}
	return nil
}
