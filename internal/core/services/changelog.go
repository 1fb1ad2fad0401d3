package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cairn-works/cairn/internal/core/domain"
	"github.com/cairn-works/cairn/internal/core/ports/driven"
	"github.com/cairn-works/cairn/internal/logger"
	"github.com/cairn-works/cairn/internal/retry"
)

// unassignedKey buckets tickets without an assignee in board reports.
const unassignedKey = "unassigned"

// ChangelogService derives progress metrics from ticket status
// histories: time in status, regressions, cycle time, and board-level
// aggregates.
type ChangelogService struct {
	tracker  driven.TicketTracker
	retryCfg retry.Config
}

// NewChangelogService creates a new changelog analysis service.
func NewChangelogService(tracker driven.TicketTracker, retryCfg retry.Config) *ChangelogService {
	return &ChangelogService{tracker: tracker, retryCfg: retryCfg}
}

// Analyze computes a ticket's progress report from its changelog. The
// walk is deterministic: entries are ordered by timestamp with
// sequence-id tiebreak, and consecutive duplicate transitions are
// collapsed. Inconsistent histories degrade the report's confidence
// instead of failing.
func (s *ChangelogService) Analyze(t *domain.Ticket) *domain.TicketReport {
	report := &domain.TicketReport{
		Key:        t.Key,
		Durations:  make(map[domain.Status]time.Duration),
		Confidence: domain.ConfidenceFull,
	}

	entries := collapseDuplicates(t.SortedChangelog(), report)
	if len(entries) == 0 {
		report.Confidence = domain.ConfidencePartial
		report.Notes = append(report.Notes, "changelog empty")
		return report
	}

	// Highest workflow rank visited so far. The first entry's From
	// counts as visited: the ticket was in that status before its
	// first recorded transition.
	highest := -1
	if rank, ok := domain.WorkflowRank(entries[0].From); ok {
		highest = rank
	}

	var cycleStart, cycleEnd time.Time
	for i, entry := range entries {
		if i > 0 {
			prev := entries[i-1]
			if entry.From != prev.To {
				report.Confidence = domain.ConfidencePartial
				report.Notes = append(report.Notes, fmt.Sprintf(
					"%v: entry at %s leaves %q but previous entered %q",
					domain.ErrChangelogGap, entry.At.Format(time.RFC3339), entry.From, prev.To))
			}
			report.Durations[prev.To] += entry.At.Sub(prev.At)
		}

		if rank, ok := domain.WorkflowRank(entry.From); ok && rank > highest {
			highest = rank
		}
		if rank, ok := domain.WorkflowRank(entry.To); ok {
			if rank < highest {
				report.Regressions = append(report.Regressions, domain.Regression{
					From:  entry.From,
					To:    entry.To,
					At:    entry.At,
					Actor: entry.Actor,
				})
			} else if rank > highest {
				highest = rank
			}
		}

		if entry.To == domain.StatusInProgress && cycleStart.IsZero() {
			cycleStart = entry.At
		}
		if entry.To == domain.StatusDone && cycleEnd.IsZero() {
			cycleEnd = entry.At
		}
	}

	if !cycleStart.IsZero() && !cycleEnd.IsZero() && !cycleEnd.Before(cycleStart) {
		report.CycleTime = cycleEnd.Sub(cycleStart)
		report.CycleTimeKnown = true
	} else {
		report.Confidence = domain.ConfidencePartial
		report.Notes = append(report.Notes, "cycle time incomplete")
	}

	return report
}

// collapseDuplicates drops consecutive entries repeating the same
// transition, keeping the earliest. Trackers deliver these on webhook
// replays; their presence degrades confidence.
func collapseDuplicates(entries []domain.ChangelogEntry, report *domain.TicketReport) []domain.ChangelogEntry {
	if len(entries) == 0 {
		return entries
	}

	kept := entries[:1]
	dropped := 0
	for _, entry := range entries[1:] {
		last := kept[len(kept)-1]
		if entry.From == last.From && entry.To == last.To {
			dropped++
			continue
		}
		kept = append(kept, entry)
	}
	if dropped > 0 {
		report.Confidence = domain.ConfidencePartial
		report.Notes = append(report.Notes, fmt.Sprintf("collapsed %d duplicate transitions", dropped))
	}
	return kept
}

// GetProgressReport fetches the ticket and analyzes its changelog.
func (s *ChangelogService) GetProgressReport(ctx context.Context, key string) (*domain.TicketReport, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("%w: empty ticket key", domain.ErrInvalidInput)
	}

	ticket, err := retry.DoWithResult(ctx, s.retryCfg, "fetch ticket "+key, func() (*domain.Ticket, error) {
		return s.tracker.GetTicket(ctx, key)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch ticket %s: %w", key, err)
	}

	return s.Analyze(ticket), nil
}

// BoardReport aggregates metrics for the given tickets over the
// window. Tickets that cannot be fetched degrade the report's
// confidence; they never fail the whole report.
func (s *ChangelogService) BoardReport(ctx context.Context, keys []string, windowStart, windowEnd time.Time, period time.Duration) (*domain.BoardReport, error) {
	if !windowEnd.After(windowStart) {
		return nil, fmt.Errorf("%w: window end must be after start", domain.ErrInvalidInput)
	}
	if period <= 0 {
		return nil, fmt.Errorf("%w: period must be positive", domain.ErrInvalidInput)
	}

	report := &domain.BoardReport{
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Period:      period,
		PerAssignee: make(map[string]int),
		Throughput:  makeBuckets(windowStart, windowEnd, period),
		Confidence:  domain.ConfidenceFull,
	}

	var cycleTotal time.Duration
	for _, key := range keys {
		ticket, err := retry.DoWithResult(ctx, s.retryCfg, "fetch ticket "+key, func() (*domain.Ticket, error) {
			return s.tracker.GetTicket(ctx, key)
		})
		if err != nil {
			logger.Warn("board report skipping ticket",
				zap.String("key", key),
				zap.Error(err))
			report.Confidence = domain.ConfidencePartial
			continue
		}

		ticketReport := s.Analyze(ticket)
		if ticketReport.Confidence == domain.ConfidencePartial {
			report.Confidence = domain.ConfidencePartial
		}

		if touchedInWindow(ticket, windowStart, windowEnd) {
			assignee := ticket.Assignee
			if assignee == "" {
				assignee = unassignedKey
			}
			report.PerAssignee[assignee]++
		}

		doneAt, completed := firstEntered(ticket, domain.StatusDone)
		if completed && inWindow(doneAt, windowStart, windowEnd) {
			report.Completed++
			bucket := int(doneAt.Sub(windowStart) / period)
			if bucket >= 0 && bucket < len(report.Throughput) {
				report.Throughput[bucket].Count++
			}
			if ticketReport.CycleTimeKnown {
				cycleTotal += ticketReport.CycleTime
				report.CycleTimeSamples++
			}
		}
	}

	if report.CycleTimeSamples > 0 {
		report.AvgCycleTime = cycleTotal / time.Duration(report.CycleTimeSamples)
	}
	return report, nil
}

// makeBuckets lays out empty throughput buckets covering the window.
func makeBuckets(start, end time.Time, period time.Duration) []domain.PeriodCount {
	var buckets []domain.PeriodCount
	for at := start; at.Before(end); at = at.Add(period) {
		buckets = append(buckets, domain.PeriodCount{Start: at})
	}
	return buckets
}

// touchedInWindow reports whether the ticket saw any activity inside
// the window: a status transition, a comment, or its creation.
func touchedInWindow(t *domain.Ticket, start, end time.Time) bool {
	if inWindow(t.Created, start, end) {
		return true
	}
	for _, entry := range t.Changelog {
		if inWindow(entry.At, start, end) {
			return true
		}
	}
	for _, comment := range t.Comments {
		if inWindow(comment.At, start, end) {
			return true
		}
	}
	return false
}

// inWindow checks start <= at < end.
func inWindow(at, start, end time.Time) bool {
	return !at.Before(start) && at.Before(end)
}

// firstEntered returns when the ticket first transitioned into the
// status, in deterministic changelog order.
func firstEntered(t *domain.Ticket, status domain.Status) (time.Time, bool) {
	for _, entry := range t.SortedChangelog() {
		if entry.To == status {
			return entry.At, true
		}
	}
	return time.Time{}, false
}
