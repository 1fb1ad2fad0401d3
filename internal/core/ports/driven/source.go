package driven

import (
	"context"

	"github.com/cairn-works/cairn/internal/core/domain"
)

// ListRequest describes a source listing.
type ListRequest struct {
	// Path is the location to list from (space key, folder, site path).
	Path string

	// Recursive enables descending into sub-paths.
	Recursive bool

	// Include is a regular expression paths must match. Adapters may
	// push it down to the source; the pipeline re-applies it either way.
	Include string

	// Exclude is a regular expression matching paths to skip.
	Exclude string
}

// SourceAdapter lists and fetches documents from one external source.
// Adapters are external collaborators; the core only sees this contract.
//
// Error discipline: implementations must wrap domain.ErrSourceNotFound
// for missing documents, domain.ErrSourceAccessDenied for permission
// failures, and domain.ErrSourceUnavailable or domain.ErrRateLimited
// for transient conditions, so the pipeline can tell what to retry.
type SourceAdapter interface {
	// List returns descriptors for the documents under req.Path.
	List(ctx context.Context, req ListRequest) ([]domain.DocumentDescriptor, error)

	// Fetch returns the document's content.
	Fetch(ctx context.Context, desc domain.DocumentDescriptor) ([]byte, error)

	// Kind identifies the adapter type (e.g. "confluence").
	Kind() string
}
