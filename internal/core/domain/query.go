package domain

import "strings"

// Query is a user question plus its retrieval parameters. Zero-valued
// parameters take the configured defaults.
type Query struct {
	// Text is the natural-language question.
	Text string

	// Collections names the vector-index partitions to search.
	Collections []string

	// TopK is the number of candidates requested per collection.
	TopK int

	// MinScore excludes results scoring below it.
	MinScore float64

	// TokenBudget caps the assembled context size.
	TokenBudget int

	// Clarification carries the user's reply after the router asked a
	// clarifying question. Empty on first submission.
	Clarification string
}

// Citation references a source document backing part of an answer.
type Citation struct {
	// Collection is the partition the document came from.
	Collection string

	// Path is the document's location within its source.
	Path string

	// Title is the document title for display.
	Title string

	// Score is the best similarity score among the document's cited chunks.
	Score float64
}

// Fragment is one piece of a streamed answer. The final fragment of a
// failed stream carries Err; the channel closes after it.
type Fragment struct {
	// Text is the fragment's text content.
	Text string

	// Err is non-nil only on the terminal fragment of a failed stream.
	Err error
}

// Answer is a synthesized response to a query.
//
// Blocking answers carry Text; streaming answers carry Fragments, a
// finite single-consumer sequence that is not restartable once consumed.
// Citations are complete in both forms before any text is delivered.
type Answer struct {
	// Text is the synthesized answer, empty while streaming.
	Text string

	// Citations lists the cited documents in descending score order.
	Citations []Citation

	// Grounded is false when retrieval produced nothing above threshold
	// and the completion service was deliberately not invoked.
	Grounded bool

	// Specialist is the tag of the specialist that produced the answer,
	// or SpecialistMerged when several were combined.
	Specialist SpecialistTag

	// Confidence is the routing confidence in [0, 1].
	Confidence float64

	// NeedsClarification marks an answer that is a clarifying question
	// rather than a response; resubmit the query with Clarification set.
	NeedsClarification bool

	// Clarification is the question to put to the user.
	Clarification string

	// Fragments delivers the streamed answer text. Nil for blocking answers.
	Fragments <-chan Fragment

	// Trace records the router's state transitions for this query.
	Trace []Transition
}

// EstimateTokens approximates the token count of text. External token
// budgets only need a stable upper-bound heuristic, not exact tokenizer
// output: four characters per token, minimum one for non-empty text.
func EstimateTokens(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	n := len(trimmed) / 4
	if n == 0 {
		return 1
	}
	return n
}
