package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairn-works/cairn/internal/core/domain"
	"github.com/cairn-works/cairn/internal/retry"
)

// --- Mock tracker shared by the ticket-facing service tests ---

type ticketMockTracker struct {
	tickets  map[string]*domain.Ticket
	getErr   map[string]error
	getFails map[string]int // transient failures before success
	getCalls map[string]int

	searchResults []string
	searchErr     error
	searchQueries []string
	searchLimits  []int

	posted  map[string][]string
	postErr error
}

func newTicketMockTracker(tickets ...*domain.Ticket) *ticketMockTracker {
	m := &ticketMockTracker{
		tickets:  make(map[string]*domain.Ticket),
		getErr:   make(map[string]error),
		getFails: make(map[string]int),
		getCalls: make(map[string]int),
		posted:   make(map[string][]string),
	}
	for _, t := range tickets {
		m.tickets[t.Key] = t
	}
	return m
}

func (m *ticketMockTracker) GetTicket(_ context.Context, key string) (*domain.Ticket, error) {
	m.getCalls[key]++
	if n := m.getFails[key]; n > 0 {
		m.getFails[key] = n - 1
		return nil, domain.ErrTrackerUnavailable
	}
	if err := m.getErr[key]; err != nil {
		return nil, err
	}
	ticket, ok := m.tickets[key]
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	return ticket, nil
}

func (m *ticketMockTracker) FetchChangelog(ctx context.Context, key string) ([]domain.ChangelogEntry, error) {
	ticket, err := m.GetTicket(ctx, key)
	if err != nil {
		return nil, err
	}
	return ticket.Changelog, nil
}

func (m *ticketMockTracker) FetchComments(ctx context.Context, key string) ([]domain.Comment, error) {
	ticket, err := m.GetTicket(ctx, key)
	if err != nil {
		return nil, err
	}
	return ticket.Comments, nil
}

func (m *ticketMockTracker) PostComment(_ context.Context, key, text string) error {
	if m.postErr != nil {
		return m.postErr
	}
	m.posted[key] = append(m.posted[key], text)
	return nil
}

func (m *ticketMockTracker) SearchTickets(_ context.Context, query string, limit int) ([]string, error) {
	m.searchQueries = append(m.searchQueries, query)
	m.searchLimits = append(m.searchLimits, limit)
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	if limit > 0 && len(m.searchResults) > limit {
		return m.searchResults[:limit], nil
	}
	return m.searchResults, nil
}

// --- Helpers ---

var changelogBase = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func entryAt(from, to domain.Status, at time.Time, seq int) domain.ChangelogEntry {
	return domain.ChangelogEntry{From: from, To: to, At: at, Actor: "casey", Seq: seq}
}

func newChangelogService(tracker *ticketMockTracker) *ChangelogService {
	return NewChangelogService(tracker,
		retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
}

// --- Analyze ---

func TestChangelogService_Analyze_DurationsAndCycleTime(t *testing.T) {
	svc := newChangelogService(newTicketMockTracker())
	ticket := &domain.Ticket{
		Key: "OPS-1",
		Changelog: []domain.ChangelogEntry{
			entryAt(domain.StatusOpen, domain.StatusInProgress, changelogBase, 1),
			entryAt(domain.StatusInProgress, domain.StatusInReview, changelogBase.Add(4*time.Hour), 2),
			entryAt(domain.StatusInReview, domain.StatusDone, changelogBase.Add(10*time.Hour), 3),
		},
	}

	report := svc.Analyze(ticket)

	assert.Equal(t, "OPS-1", report.Key)
	assert.Equal(t, 4*time.Hour, report.Durations[domain.StatusInProgress])
	assert.Equal(t, 6*time.Hour, report.Durations[domain.StatusInReview])
	assert.Len(t, report.Durations, 2, "only statuses that were left accrue time")
	assert.True(t, report.CycleTimeKnown)
	assert.Equal(t, 10*time.Hour, report.CycleTime)
	assert.Empty(t, report.Regressions)
	assert.Equal(t, domain.ConfidenceFull, report.Confidence)
}

func TestChangelogService_Analyze_OrderIndependent(t *testing.T) {
	svc := newChangelogService(newTicketMockTracker())
	// Entries arrive in tracker order, which is not chronological.
	ticket := &domain.Ticket{
		Key: "OPS-2",
		Changelog: []domain.ChangelogEntry{
			entryAt(domain.StatusInProgress, domain.StatusInReview, changelogBase.Add(4*time.Hour), 2),
			entryAt(domain.StatusInReview, domain.StatusDone, changelogBase.Add(10*time.Hour), 3),
			entryAt(domain.StatusOpen, domain.StatusInProgress, changelogBase, 1),
		},
	}

	report := svc.Analyze(ticket)

	assert.Equal(t, domain.ConfidenceFull, report.Confidence)
	assert.Equal(t, 4*time.Hour, report.Durations[domain.StatusInProgress])
	assert.Equal(t, 10*time.Hour, report.CycleTime)
}

func TestChangelogService_Analyze_SeqBreaksTimestampTies(t *testing.T) {
	svc := newChangelogService(newTicketMockTracker())
	// The first two transitions share a timestamp; sequence ids decide
	// the order. The wrong order would register a gap.
	ticket := &domain.Ticket{
		Key: "OPS-3",
		Changelog: []domain.ChangelogEntry{
			{From: domain.StatusInProgress, To: domain.StatusInReview, At: changelogBase, Seq: 8},
			{From: domain.StatusOpen, To: domain.StatusInProgress, At: changelogBase, Seq: 7},
			{From: domain.StatusInReview, To: domain.StatusDone, At: changelogBase.Add(time.Hour), Seq: 9},
		},
	}

	report := svc.Analyze(ticket)

	assert.Equal(t, domain.ConfidenceFull, report.Confidence)
	assert.Empty(t, report.Notes)
}

func TestChangelogService_Analyze_CollapsesDuplicateTransitions(t *testing.T) {
	svc := newChangelogService(newTicketMockTracker())
	ticket := &domain.Ticket{
		Key: "OPS-4",
		Changelog: []domain.ChangelogEntry{
			entryAt(domain.StatusOpen, domain.StatusInProgress, changelogBase, 1),
			entryAt(domain.StatusOpen, domain.StatusInProgress, changelogBase.Add(time.Minute), 2),
			entryAt(domain.StatusInProgress, domain.StatusDone, changelogBase.Add(6*time.Hour), 3),
		},
	}

	report := svc.Analyze(ticket)

	assert.Equal(t, domain.ConfidencePartial, report.Confidence)
	require.Len(t, report.Notes, 1)
	assert.Contains(t, report.Notes[0], "duplicate")
	// The duplicate is dropped; time accrues from the first occurrence.
	assert.Equal(t, 6*time.Hour, report.Durations[domain.StatusInProgress])
}

func TestChangelogService_Analyze_GapDegradesConfidence(t *testing.T) {
	svc := newChangelogService(newTicketMockTracker())
	// The second entry leaves a status the ticket never entered.
	ticket := &domain.Ticket{
		Key: "OPS-5",
		Changelog: []domain.ChangelogEntry{
			entryAt(domain.StatusOpen, domain.StatusInProgress, changelogBase, 1),
			entryAt(domain.StatusInReview, domain.StatusDone, changelogBase.Add(8*time.Hour), 2),
		},
	}

	report := svc.Analyze(ticket)

	assert.Equal(t, domain.ConfidencePartial, report.Confidence)
	require.NotEmpty(t, report.Notes)
	assert.Contains(t, report.Notes[0], "changelog gap")
	// Metrics are still produced from what is there.
	assert.Equal(t, 8*time.Hour, report.Durations[domain.StatusInProgress])
	assert.True(t, report.CycleTimeKnown)
}

func TestChangelogService_Analyze_DetectsRegressions(t *testing.T) {
	svc := newChangelogService(newTicketMockTracker())
	ticket := &domain.Ticket{
		Key: "OPS-6",
		Changelog: []domain.ChangelogEntry{
			entryAt(domain.StatusOpen, domain.StatusInProgress, changelogBase, 1),
			entryAt(domain.StatusInProgress, domain.StatusInReview, changelogBase.Add(2*time.Hour), 2),
			entryAt(domain.StatusInReview, domain.StatusInProgress, changelogBase.Add(3*time.Hour), 3),
			entryAt(domain.StatusInProgress, domain.StatusDone, changelogBase.Add(9*time.Hour), 4),
		},
	}

	report := svc.Analyze(ticket)

	require.Len(t, report.Regressions, 1)
	assert.Equal(t, domain.StatusInReview, report.Regressions[0].From)
	assert.Equal(t, domain.StatusInProgress, report.Regressions[0].To)
	assert.Equal(t, "casey", report.Regressions[0].Actor)
	// Regressions are normal workflow events, not data problems.
	assert.Equal(t, domain.ConfidenceFull, report.Confidence)
	// Cycle time runs from the FIRST entry into in progress.
	assert.Equal(t, 9*time.Hour, report.CycleTime)
}

func TestChangelogService_Analyze_ReopenedTicket(t *testing.T) {
	svc := newChangelogService(newTicketMockTracker())
	ticket := &domain.Ticket{
		Key: "OPS-7",
		Changelog: []domain.ChangelogEntry{
			entryAt(domain.StatusOpen, domain.StatusInProgress, changelogBase, 1),
			entryAt(domain.StatusInProgress, domain.StatusDone, changelogBase.Add(5*time.Hour), 2),
			entryAt(domain.StatusDone, domain.StatusOpen, changelogBase.Add(24*time.Hour), 3),
			entryAt(domain.StatusOpen, domain.StatusInProgress, changelogBase.Add(25*time.Hour), 4),
		},
	}

	report := svc.Analyze(ticket)

	require.Len(t, report.Regressions, 2)
	assert.Equal(t, domain.StatusOpen, report.Regressions[0].To)
	assert.Equal(t, domain.StatusInProgress, report.Regressions[1].To)
	// First entries into in progress and done bound the cycle, the
	// reopen does not move them.
	assert.Equal(t, 5*time.Hour, report.CycleTime)
}

func TestChangelogService_Analyze_UnknownStatusesCarryNoRank(t *testing.T) {
	svc := newChangelogService(newTicketMockTracker())
	ticket := &domain.Ticket{
		Key: "OPS-8",
		Changelog: []domain.ChangelogEntry{
			entryAt(domain.StatusOpen, domain.StatusInProgress, changelogBase, 1),
			entryAt(domain.StatusInProgress, "blocked", changelogBase.Add(time.Hour), 2),
			entryAt("blocked", domain.StatusInProgress, changelogBase.Add(3*time.Hour), 3),
		},
	}

	report := svc.Analyze(ticket)

	assert.Empty(t, report.Regressions, "statuses outside the canonical order are never regressions")
	assert.Equal(t, 2*time.Hour, report.Durations["blocked"])
}

func TestChangelogService_Analyze_CycleTimeIncomplete(t *testing.T) {
	svc := newChangelogService(newTicketMockTracker())
	ticket := &domain.Ticket{
		Key: "OPS-9",
		Changelog: []domain.ChangelogEntry{
			entryAt(domain.StatusOpen, domain.StatusInProgress, changelogBase, 1),
		},
	}

	report := svc.Analyze(ticket)

	assert.False(t, report.CycleTimeKnown)
	assert.Zero(t, report.CycleTime)
	assert.Equal(t, domain.ConfidencePartial, report.Confidence)
	assert.Contains(t, report.Notes, "cycle time incomplete")
}

func TestChangelogService_Analyze_EmptyChangelog(t *testing.T) {
	svc := newChangelogService(newTicketMockTracker())

	report := svc.Analyze(&domain.Ticket{Key: "OPS-10"})

	assert.Equal(t, "OPS-10", report.Key)
	assert.Empty(t, report.Durations)
	assert.Empty(t, report.Regressions)
	assert.False(t, report.CycleTimeKnown)
	assert.Equal(t, domain.ConfidencePartial, report.Confidence)
	assert.Contains(t, report.Notes, "changelog empty")
}

func TestChangelogService_Analyze_DurationsSumToElapsed(t *testing.T) {
	svc := newChangelogService(newTicketMockTracker())
	ticket := &domain.Ticket{
		Key: "OPS-11",
		Changelog: []domain.ChangelogEntry{
			entryAt(domain.StatusOpen, domain.StatusToDo, changelogBase, 1),
			entryAt(domain.StatusToDo, domain.StatusInProgress, changelogBase.Add(90*time.Minute), 2),
			entryAt(domain.StatusInProgress, domain.StatusInReview, changelogBase.Add(7*time.Hour), 3),
			entryAt(domain.StatusInReview, domain.StatusInProgress, changelogBase.Add(9*time.Hour), 4),
			entryAt(domain.StatusInProgress, domain.StatusDone, changelogBase.Add(30*time.Hour), 5),
		},
	}

	report := svc.Analyze(ticket)

	var total time.Duration
	for _, d := range report.Durations {
		total += d
	}
	assert.Equal(t, 30*time.Hour, total, "per-status durations must sum to last minus first timestamp")
}

// --- GetProgressReport ---

func TestChangelogService_GetProgressReport(t *testing.T) {
	tracker := newTicketMockTracker(&domain.Ticket{
		Key: "OPS-20",
		Changelog: []domain.ChangelogEntry{
			entryAt(domain.StatusOpen, domain.StatusInProgress, changelogBase, 1),
			entryAt(domain.StatusInProgress, domain.StatusDone, changelogBase.Add(3*time.Hour), 2),
		},
	})
	svc := newChangelogService(tracker)

	report, err := svc.GetProgressReport(context.Background(), "OPS-20")
	require.NoError(t, err)

	assert.Equal(t, "OPS-20", report.Key)
	assert.True(t, report.CycleTimeKnown)
	assert.Equal(t, 3*time.Hour, report.CycleTime)
}

func TestChangelogService_GetProgressReport_EmptyKey(t *testing.T) {
	svc := newChangelogService(newTicketMockTracker())

	_, err := svc.GetProgressReport(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestChangelogService_GetProgressReport_NotFound(t *testing.T) {
	svc := newChangelogService(newTicketMockTracker())

	_, err := svc.GetProgressReport(context.Background(), "GHOST-1")
	assert.ErrorIs(t, err, domain.ErrTicketNotFound)
}

func TestChangelogService_GetProgressReport_RetriesTransientFetch(t *testing.T) {
	tracker := newTicketMockTracker(&domain.Ticket{Key: "OPS-21"})
	tracker.getFails["OPS-21"] = 2
	svc := newChangelogService(tracker)

	report, err := svc.GetProgressReport(context.Background(), "OPS-21")
	require.NoError(t, err)

	assert.Equal(t, "OPS-21", report.Key)
	assert.Equal(t, 3, tracker.getCalls["OPS-21"])
}

// --- BoardReport ---

func boardTicket(key, assignee string, entries ...domain.ChangelogEntry) *domain.Ticket {
	return &domain.Ticket{
		Key:       key,
		Assignee:  assignee,
		Created:   changelogBase.Add(-30 * 24 * time.Hour),
		Changelog: entries,
	}
}

func TestChangelogService_BoardReport(t *testing.T) {
	windowStart := changelogBase
	windowEnd := changelogBase.Add(48 * time.Hour)

	tracker := newTicketMockTracker(
		boardTicket("OPS-30", "asha",
			entryAt(domain.StatusOpen, domain.StatusInProgress, windowStart.Add(-48*time.Hour), 1),
			entryAt(domain.StatusInProgress, domain.StatusDone, windowStart.Add(2*time.Hour), 2),
		),
		boardTicket("OPS-31", "asha",
			entryAt(domain.StatusOpen, domain.StatusInProgress, windowStart.Add(-10*time.Hour), 1),
			entryAt(domain.StatusInProgress, domain.StatusDone, windowStart.Add(30*time.Hour), 2),
		),
		boardTicket("OPS-32", "",
			entryAt(domain.StatusOpen, domain.StatusInProgress, windowStart.Add(time.Hour), 1),
		),
	)
	svc := newChangelogService(tracker)

	report, err := svc.BoardReport(context.Background(),
		[]string{"OPS-30", "OPS-31", "OPS-32"}, windowStart, windowEnd, 24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Completed)
	assert.Equal(t, 2, report.PerAssignee["asha"])
	assert.Equal(t, 1, report.PerAssignee["unassigned"])

	require.Len(t, report.Throughput, 2)
	assert.Equal(t, windowStart, report.Throughput[0].Start)
	assert.Equal(t, 1, report.Throughput[0].Count)
	assert.Equal(t, 1, report.Throughput[1].Count)

	// Cycle times: 50h and 40h.
	assert.Equal(t, 2, report.CycleTimeSamples)
	assert.Equal(t, 45*time.Hour, report.AvgCycleTime)

	// The still-open ticket has no measurable cycle time yet.
	assert.Equal(t, domain.ConfidencePartial, report.Confidence)
}

func TestChangelogService_BoardReport_FullConfidence(t *testing.T) {
	windowStart := changelogBase
	tracker := newTicketMockTracker(
		boardTicket("OPS-33", "dev",
			entryAt(domain.StatusOpen, domain.StatusInProgress, windowStart.Add(time.Hour), 1),
			entryAt(domain.StatusInProgress, domain.StatusDone, windowStart.Add(5*time.Hour), 2),
		),
	)
	svc := newChangelogService(tracker)

	report, err := svc.BoardReport(context.Background(),
		[]string{"OPS-33"}, windowStart, windowStart.Add(24*time.Hour), 24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, domain.ConfidenceFull, report.Confidence)
	assert.Equal(t, 1, report.Completed)
}

func TestChangelogService_BoardReport_FetchFailureDegrades(t *testing.T) {
	windowStart := changelogBase
	tracker := newTicketMockTracker(
		boardTicket("OPS-34", "dev",
			entryAt(domain.StatusOpen, domain.StatusInProgress, windowStart.Add(time.Hour), 1),
			entryAt(domain.StatusInProgress, domain.StatusDone, windowStart.Add(5*time.Hour), 2),
		),
	)
	svc := newChangelogService(tracker)

	report, err := svc.BoardReport(context.Background(),
		[]string{"OPS-34", "GHOST-9"}, windowStart, windowStart.Add(24*time.Hour), 24*time.Hour)
	require.NoError(t, err, "one unfetchable ticket must not fail the report")

	assert.Equal(t, domain.ConfidencePartial, report.Confidence)
	assert.Equal(t, 1, report.Completed)
}

func TestChangelogService_BoardReport_InvalidArguments(t *testing.T) {
	svc := newChangelogService(newTicketMockTracker())

	_, err := svc.BoardReport(context.Background(), nil, changelogBase, changelogBase, time.Hour)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.BoardReport(context.Background(), nil, changelogBase, changelogBase.Add(time.Hour), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
