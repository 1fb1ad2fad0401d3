package driving

import (
	"context"

	"github.com/cairn-works/cairn/internal/core/domain"
)

// AnswerService turns queries into grounded answers.
type AnswerService interface {
	// Ask retrieves relevant chunks and synthesizes a blocking answer.
	// When nothing scores above the query's threshold the returned
	// answer has Grounded=false and the completion service is not
	// consulted.
	Ask(ctx context.Context, q domain.Query) (*domain.Answer, error)

	// AskStream behaves like Ask but delivers the answer text through
	// Answer.Fragments. Citations are complete before the first
	// fragment. The consumer may cancel ctx mid-stream; the underlying
	// completion connection is released.
	AskStream(ctx context.Context, q domain.Query) (*domain.Answer, error)
}
