package domain

import (
	"sort"
	"time"
)

// Status is a ticket workflow status, lower-cased.
type Status string

// Canonical workflow statuses in progression order.
const (
	StatusOpen       Status = "open"
	StatusToDo       Status = "to do"
	StatusInProgress Status = "in progress"
	StatusInReview   Status = "in review"
	StatusDone       Status = "done"
	StatusClosed     Status = "closed"
)

// WorkflowOrder is the canonical forward progression of statuses.
// A transition into a status ranked below one already visited is a
// regression. Statuses outside this list carry no rank and are never
// flagged.
var WorkflowOrder = []Status{
	StatusOpen,
	StatusToDo,
	StatusInProgress,
	StatusInReview,
	StatusDone,
	StatusClosed,
}

// WorkflowRank returns the status's position in WorkflowOrder.
// The second return is false for unknown statuses.
func WorkflowRank(s Status) (int, bool) {
	for i, st := range WorkflowOrder {
		if st == s {
			return i, true
		}
	}
	return 0, false
}

// ChangelogEntry is one status transition in a ticket's history.
type ChangelogEntry struct {
	// From is the status being left.
	From Status

	// To is the status being entered.
	To Status

	// At is the transition timestamp as reported by the tracker.
	At time.Time

	// Actor is who made the transition.
	Actor string

	// Seq breaks ties when timestamps collide or arrive out of order
	// under clock skew. Trackers that expose history IDs map them here.
	Seq int
}

// Comment is one entry in a ticket's comment thread.
type Comment struct {
	// ID is the tracker-assigned comment identifier.
	ID string

	// Author is the comment's author.
	Author string

	// At is when the comment was posted.
	At time.Time

	// Mentions lists users addressed by the comment.
	Mentions []string

	// Text is the comment body.
	Text string

	// Resolved marks a question comment explicitly answered or withdrawn.
	Resolved bool
}

// Ticket is an issue-tracker ticket with its ordered event streams.
type Ticket struct {
	// Key is the tracker-wide ticket identifier, e.g. "OPS-421".
	Key string

	// Summary is the one-line ticket title.
	Summary string

	// Status is the current workflow status.
	Status Status

	// Assignee is the current assignee, empty when unassigned.
	Assignee string

	// Created is when the ticket was opened.
	Created time.Time

	// Changelog holds the status transitions. Order is not guaranteed
	// by trackers; use SortedChangelog for the deterministic order.
	Changelog []ChangelogEntry

	// Comments holds the comment thread, ascending by At.
	Comments []Comment
}

// SortedChangelog returns the changelog in its deterministic total
// order: timestamp ascending, ties broken by Seq ascending. The
// receiver is not modified.
func (t *Ticket) SortedChangelog() []ChangelogEntry {
	out := make([]ChangelogEntry, len(t.Changelog))
	copy(out, t.Changelog)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.Before(out[j].At)
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}
