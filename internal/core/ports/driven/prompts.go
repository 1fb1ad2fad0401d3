package driven

// PromptStore provides access to LLM prompt templates.
// Implementations may load prompts from files, embed them in the binary,
// or fetch them from a remote configuration service.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	// Returns the prompt content and any error encountered.
	// If the prompt is not found, implementations should return a sensible default
	// or an error, depending on whether the prompt is required.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	// This is useful when prompts may have been edited on disk.
	Reload()
}

// Well-known prompt names used throughout the application.
// These constants define the contract between prompt consumers and providers.
const (
	// PromptGroundedAnswer instructs the completion service to answer
	// only from the supplied context. Expects %s (context) and %s
	// (question) placeholders, in that order.
	PromptGroundedAnswer = "grounded_answer"

	// PromptDocumentSummary creates short document summaries at ingest.
	// The template expects a %s placeholder for the document content.
	PromptDocumentSummary = "document_summary"

	// PromptTicketAnswer answers a question from ticket facts.
	// Expects %s (ticket facts) and %s (question) placeholders.
	PromptTicketAnswer = "ticket_answer"

	// PromptClarification phrases a clarifying question when routing is
	// ambiguous. Expects a %s placeholder for the original query.
	PromptClarification = "clarification"

	// PromptReminder drafts a follow-up reminder comment. Expects %s
	// (mentioned user), %s (question author) and %s (question excerpt).
	PromptReminder = "reminder"
)

// PromptStoreAware is an optional interface for services that can use custom prompts.
// Services implementing this interface can have their prompt templates customised
// by injecting a PromptStore after construction.
type PromptStoreAware interface {
	// SetPromptStore sets the prompt store for loading customisable prompts.
	// If not set, the service should use hardcoded default prompts.
	SetPromptStore(store PromptStore)
}
