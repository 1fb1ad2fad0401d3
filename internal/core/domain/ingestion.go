package domain

import "time"

// SourceConfig describes what an ingestion run should pull from a
// source adapter and how.
type SourceConfig struct {
	// Root is the path the adapter lists from.
	Root string

	// Recursive enables descending into sub-paths.
	Recursive bool

	// Include is a regular expression paths must match. Empty matches all.
	Include string

	// Exclude is a regular expression matching paths to skip. Empty skips none.
	Exclude string

	// GenerateSummaries asks the completion service for a short document
	// summary stored on the ingestion record. Summary failures never fail
	// the document.
	GenerateSummaries bool
}

// IngestionRecord is the per-(collection, path) ledger entry that makes
// ingestion incremental. It is created on first successful ingest,
// updated on every attempt, and deleted by the tombstone pass once the
// document is confirmed gone from the source.
type IngestionRecord struct {
	// Collection is the vector-index partition.
	Collection string

	// Path is the document's location within the source.
	Path string

	// ContentHash is the last successfully ingested content hash.
	ContentHash string

	// Version is the last successfully ingested version.
	Version int

	// Title is the document title at last ingest.
	Title string

	// Summary is an optional short LLM summary of the document.
	Summary string

	// LastSuccess is when the document last ingested cleanly.
	LastSuccess time.Time

	// LastError is the most recent failure message, empty after a
	// successful ingest.
	LastError string

	// UpdatedAt is when this record last changed.
	UpdatedAt time.Time
}

// DocumentFailure records one document's failure within an ingestion run.
type DocumentFailure struct {
	// Path is the failing document's path.
	Path string

	// Reason is the failure description.
	Reason string

	// Transient marks failures that exhausted retries but may succeed
	// on a later run.
	Transient bool
}

// IngestionReport summarises one ingestion run over a collection.
type IngestionReport struct {
	// Collection is the collection that was synced.
	Collection string

	// Ingested counts documents written under a new version.
	Ingested int

	// Unchanged counts documents skipped because their hash matched.
	Unchanged int

	// Deleted counts documents removed by the tombstone pass.
	Deleted int

	// Failed counts documents that errored after retries.
	Failed int

	// Failures holds per-document failure details.
	Failures []DocumentFailure

	// Started is when the run began.
	Started time.Time

	// Duration is how long the run took.
	Duration time.Duration
}
