package driving

import "context"

// Scheduler runs recurring background work: collection re-ingestion
// and follow-up chase rounds.
type Scheduler interface {
	// Start begins running scheduled jobs.
	// Blocks until context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop gracefully stops the loop and waits for running jobs.
	Stop() error
}
