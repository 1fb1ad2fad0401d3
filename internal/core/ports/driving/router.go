package driving

import (
	"context"

	"github.com/cairn-works/cairn/internal/core/domain"
)

// RouterService classifies queries and dispatches them to specialists.
type RouterService interface {
	// Route classifies the query, dispatches to one or more specialists
	// and returns the synthesized answer. Ambiguous classification
	// yields an answer with NeedsClarification=true rather than an
	// error; the caller resubmits with Query.Clarification filled in.
	Route(ctx context.Context, q domain.Query) (*domain.Answer, error)

	// RouteStream behaves like Route but streams the answer when the
	// dispatch resolved to a single streaming-capable specialist. It
	// falls back to blocking behaviour in multi-specialist mode.
	RouteStream(ctx context.Context, q domain.Query) (*domain.Answer, error)
}
