package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input. Services
	// reporting it have rejected the request permanently; retrying the
	// same input cannot succeed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoAdapter indicates no source adapter is registered for the
	// requested collection.
	ErrNoAdapter = errors.New("no source adapter for collection")

	// ErrSyncInProgress indicates an ingestion run already holds the
	// collection lock.
	ErrSyncInProgress = errors.New("sync in progress")

	// Source Errors.

	// ErrSourceNotFound indicates the source reports the document gone.
	// Permanent: skipped and recorded, never retried.
	ErrSourceNotFound = errors.New("source: document not found")

	// ErrSourceAccessDenied indicates the source rejected our credentials
	// for this document. Permanent: skipped and recorded, never retried.
	ErrSourceAccessDenied = errors.New("source: access denied")

	// ErrSourceUnavailable indicates a network-level source failure.
	// Transient: retried with backoff before being recorded as failed.
	ErrSourceUnavailable = errors.New("source: unavailable")

	// ErrRateLimited indicates an external service throttled the call.
	// Transient: retried with backoff.
	ErrRateLimited = errors.New("rate limited")

	// Service Errors.

	// ErrEmbeddingService indicates the embedding service failed.
	// Transient unless wrapped together with ErrInvalidInput.
	ErrEmbeddingService = errors.New("embedding service error")

	// ErrCompletionService indicates the chat completion service failed.
	// Transient unless wrapped together with ErrInvalidInput.
	ErrCompletionService = errors.New("completion service error")

	// ErrVectorStore indicates a vector store write or query failed.
	// Aborts the single document's replace sequence without touching
	// other documents' state.
	ErrVectorStore = errors.New("vector store error")

	// ErrVectorStoreUnavailable indicates the vector store itself is
	// unreachable. Unlike ErrVectorStore this aborts the enclosing
	// operation entirely.
	ErrVectorStoreUnavailable = errors.New("vector store unavailable")

	// Tracker Errors.

	// ErrTicketNotFound indicates the tracker has no such ticket.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrTrackerUnavailable indicates a network-level tracker failure.
	// Transient: retried with backoff.
	ErrTrackerUnavailable = errors.New("ticket tracker unavailable")

	// Analysis Errors.

	// ErrClassificationAmbiguous indicates the router could not pick a
	// specialist with enough confidence. Routed to clarification, never
	// surfaced to the caller as an error.
	ErrClassificationAmbiguous = errors.New("classification ambiguous")

	// ErrChangelogGap indicates a ticket's changelog is inconsistent
	// (missing or contradictory events). Reports carry partial metrics
	// and a confidence flag instead of failing.
	ErrChangelogGap = errors.New("changelog gap")
)

// transientErrors are retried with bounded backoff; everything else is
// recorded immediately.
var transientErrors = []error{
	ErrSourceUnavailable,
	ErrRateLimited,
	ErrEmbeddingService,
	ErrCompletionService,
	ErrTrackerUnavailable,
}

// IsTransient reports whether err is worth retrying. An error that also
// wraps ErrInvalidInput is a permanent service rejection regardless of
// its family.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidInput) {
		return false
	}
	for _, t := range transientErrors {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
