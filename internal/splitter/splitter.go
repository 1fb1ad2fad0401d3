// Package splitter cuts document text into overlapping chunks sized for
// embedding. Cuts prefer heading and paragraph boundaries over
// mid-sentence positions.
package splitter

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cairn-works/cairn/internal/core/domain"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// Splitter splits document text into chunks.
type Splitter struct {
	chunkSize int
	overlap   int
}

// Option configures the splitter.
type Option func(*Splitter)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

// New creates a splitter with the given options.
func New(opts ...Option) *Splitter {
	s := &Splitter{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(s)
	}

	// Ensure overlap doesn't exceed chunk size
	if s.overlap >= s.chunkSize {
		s.overlap = s.chunkSize / 4
	}

	return s
}

// Document identifies the document a chunk set belongs to.
type Document struct {
	// Collection is the vector-index partition.
	Collection string

	// Path is the document's location within its source.
	Path string

	// Title is the document title; when empty the first markdown
	// heading is used.
	Title string

	// Version is the document version the chunks are cut for.
	Version int
}

// Split cuts text into chunks for the document. Chunk indexes are dense
// from 0; embeddings are left nil for the pipeline to fill in.
func (s *Splitter) Split(doc Document, text string) []domain.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	title := doc.Title
	if title == "" {
		title = FirstHeading([]byte(text))
	}

	bounds := boundaries([]byte(text))

	estimated := (len(text) / (s.chunkSize - s.overlap)) + 1
	chunks := make([]domain.Chunk, 0, estimated)

	start := 0
	for start < len(text) {
		end := s.cutAt(text, bounds, start)

		piece := strings.TrimSpace(text[start:end])
		if piece != "" {
			chunks = append(chunks, domain.Chunk{
				ID:              chunkID(doc, len(chunks)),
				Collection:      doc.Collection,
				DocumentPath:    doc.Path,
				DocumentVersion: doc.Version,
				Index:           len(chunks),
				Title:           title,
				Text:            piece,
				Tokens:          domain.EstimateTokens(piece),
			})
		}

		if end >= len(text) {
			break
		}

		// Step back for overlap, but always make forward progress.
		next := end - s.overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// chunkID derives a stable ID from the chunk's coordinates, so
// re-splitting the same document version overwrites its chunks in the
// vector store instead of duplicating them.
func chunkID(doc Document, index int) string {
	name := fmt.Sprintf("%s/%s#%d/%d", doc.Collection, doc.Path, doc.Version, index)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// cutAt picks the end offset for a chunk starting at start. Preference
// order: last heading boundary in the window, last paragraph boundary,
// last sentence end, hard cut at size.
func (s *Splitter) cutAt(text string, bounds []boundary, start int) int {
	end := start + s.chunkSize
	if end >= len(text) {
		return len(text)
	}

	// Never cut in the first half of the window; tiny chunks defeat
	// the overlap.
	minCut := start + s.chunkSize/2

	bestHeading, bestBlock := -1, -1
	for _, b := range bounds {
		if b.offset <= minCut {
			continue
		}
		if b.offset > end {
			break
		}
		if b.heading {
			bestHeading = b.offset
		} else {
			bestBlock = b.offset
		}
	}
	if bestHeading > 0 {
		return bestHeading
	}
	if bestBlock > 0 {
		return bestBlock
	}

	if cut := lastSentenceEnd(text[minCut:end]); cut > 0 {
		return minCut + cut
	}
	return end
}

// lastSentenceEnd returns the offset just past the last sentence
// terminator in window, or 0 when there is none.
func lastSentenceEnd(window string) int {
	for i := len(window) - 1; i > 0; i-- {
		switch window[i] {
		case '\n':
			return i + 1
		case '.', '!', '?':
			if i+1 < len(window) && (window[i+1] == ' ' || window[i+1] == '\n') {
				return i + 1
			}
		}
	}
	return 0
}
