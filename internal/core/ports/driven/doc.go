// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - SourceAdapter: Lists and fetches documents from one source
//   - EmbeddingService: Generates vector embeddings
//   - VectorStore: Persists chunks with vectors, answers top-K queries
//   - IngestionLedger: Per-document ingestion records (durable)
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the affected features degrade gracefully:
//
//   - CompletionService: Chat completions. Without it, answers are not
//     synthesised and ingest-time summaries are skipped.
//   - TicketTracker: Issue tracker access. Without it, progress reports
//     and follow-up scans are unavailable.
//   - FollowUpStore: Durable follow-up candidate set. Required only by
//     the follow-up detector.
//   - PromptStore: Custom prompt templates. Without it, compiled-in
//     defaults are used.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
