// Package domain defines the core business entities for cairn.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document / Chunk: an ingested document and its retrievable fragments
//   - IngestionRecord: the per-document ledger entry driving incremental sync
//   - Query / Answer: a question and its grounded, optionally streamed answer
//   - Ticket / ChangelogEntry / Comment: issue-tracker material
//   - FollowUpCandidate: a stale unanswered question awaiting a reminder
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
