package domain

import "time"

// Document represents a source document tracked by the ingestion pipeline.
// Its identity is the (Collection, Path) pair.
type Document struct {
	// Collection is the named vector-index partition this document belongs to.
	Collection string

	// Path is the document's location within its source.
	Path string

	// Title is the human-readable title, usually derived from the path
	// or the first heading.
	Title string

	// ContentHash is the hex SHA-256 of the fetched content.
	ContentHash string

	// Modified is the source-reported last-modified time.
	Modified time.Time

	// Version is the current ingested version number, starting at 1.
	Version int
}

// DocumentDescriptor identifies a document listed by a source adapter
// before its content has been fetched.
type DocumentDescriptor struct {
	// Path is the document's location within the source.
	Path string

	// Modified is the source-reported last-modified time.
	Modified time.Time
}

// Chunk is an ordered fragment of a document's text, the unit of
// retrieval. All chunks of one document version share the same
// content-hash lineage; a superseded version's chunks never appear
// next to current-version chunks in query results.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// Collection is the vector-index partition the chunk lives in.
	Collection string

	// DocumentPath is the owning document's path.
	DocumentPath string

	// DocumentVersion is the document version the chunk was cut from.
	DocumentVersion int

	// Index is the ordinal position within the document, starting at 0.
	Index int

	// Title is the owning document's title, carried for display.
	Title string

	// Text is the chunk's text content.
	Text string

	// Tokens is the estimated token count of Text.
	Tokens int

	// Embedding is the vector representation for similarity search.
	Embedding []float32
}

// ScoredChunk pairs a chunk with its similarity score for one query.
type ScoredChunk struct {
	// Chunk is the matched chunk.
	Chunk Chunk

	// Score is the similarity score, higher is closer.
	Score float64
}
