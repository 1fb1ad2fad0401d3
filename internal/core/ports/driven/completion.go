package driven

import (
	"context"

	"github.com/cairn-works/cairn/internal/core/domain"
)

// CompletionService produces text from prompts via an external chat
// completion API.
type CompletionService interface {
	// Complete returns the full response for a prompt in one call.
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteStream returns the response as a finite sequence of
	// fragments delivered while the service generates. The channel is
	// closed when the response ends; a terminal failure arrives as the
	// last fragment's Err. Cancelling ctx releases the underlying
	// connection.
	CompleteStream(ctx context.Context, prompt string) (<-chan domain.Fragment, error)

	// ModelName returns the name of the completion model being used.
	ModelName() string

	// Ping validates the service is reachable without running inference.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
