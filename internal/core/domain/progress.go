package domain

import "time"

// ReportConfidence qualifies how complete a report's inputs were.
type ReportConfidence string

// Report confidence levels. Partial reports are still returned; the
// flag tells the caller which metrics to trust.
const (
	ConfidenceFull    ReportConfidence = "full"
	ConfidencePartial ReportConfidence = "partial"
)

// Regression is a transition that moved a ticket backwards in the
// canonical workflow order.
type Regression struct {
	// From is the status the ticket fell back from.
	From Status

	// To is the earlier status the ticket returned to.
	To Status

	// At is when the regression happened.
	At time.Time

	// Actor is who made the transition.
	Actor string
}

// TicketReport holds the metrics derived from one ticket's changelog.
type TicketReport struct {
	// Key is the analyzed ticket.
	Key string

	// Durations is the cumulative time spent in each status that was
	// left at least once. Time after the final transition is excluded.
	Durations map[Status]time.Duration

	// Regressions lists backward workflow transitions in event order.
	Regressions []Regression

	// CycleTime is first-enter-in-progress to first-enter-done.
	// Only meaningful when CycleTimeKnown is true.
	CycleTime time.Duration

	// CycleTimeKnown is false when either endpoint is absent; the
	// report is then "incomplete" rather than zero.
	CycleTimeKnown bool

	// Confidence degrades to partial when the changelog had gaps,
	// duplicates, or too little data for every metric.
	Confidence ReportConfidence

	// Notes lists human-readable degradation reasons.
	Notes []string
}

// PeriodCount is the number of tickets completed in one period bucket.
type PeriodCount struct {
	// Start is the bucket's inclusive start.
	Start time.Time

	// Count is how many tickets entered done in the bucket.
	Count int
}

// BoardReport aggregates ticket metrics over a reporting window.
type BoardReport struct {
	// WindowStart and WindowEnd bound the report, start inclusive.
	WindowStart time.Time
	WindowEnd   time.Time

	// Period is the throughput bucket width.
	Period time.Duration

	// PerAssignee counts tickets touched per assignee in the window.
	PerAssignee map[string]int

	// Throughput is tickets completed per period bucket, ascending.
	Throughput []PeriodCount

	// Completed counts tickets that entered done within the window.
	Completed int

	// AvgCycleTime averages cycle time over CycleTimeSamples tickets.
	AvgCycleTime time.Duration

	// CycleTimeSamples is how many completed tickets had a measurable
	// cycle time.
	CycleTimeSamples int

	// Confidence degrades to partial when any per-ticket report did.
	Confidence ReportConfidence
}
