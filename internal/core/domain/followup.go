package domain

import "time"

// FollowUpCandidate is a stale unanswered question detected in a
// ticket's comment thread. Identity is the (Ticket, CommentID, Mention)
// triple: one candidate per mentioned user per question comment.
type FollowUpCandidate struct {
	// Ticket is the ticket key the question lives on.
	Ticket string

	// CommentID references the question comment.
	CommentID string

	// Mention is the user the question is waiting on.
	Mention string

	// Author is the question's author, kept for the reminder text.
	Author string

	// Excerpt is a short cut of the question for the reminder text.
	Excerpt string

	// FirstSeen is when a scan first detected the candidate.
	FirstSeen time.Time

	// Notified is true once a reminder has been sent. Notified
	// candidates are never re-emitted by later scans.
	Notified bool

	// Reminder is the drafted reminder text for this candidate.
	Reminder string
}
