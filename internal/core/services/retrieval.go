package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/cairn-works/cairn/internal/core/domain"
	"github.com/cairn-works/cairn/internal/core/ports/driven"
	"github.com/cairn-works/cairn/internal/core/ports/driving"
	"github.com/cairn-works/cairn/internal/logger"
	"github.com/cairn-works/cairn/internal/retry"
)

// Ensure RetrievalService implements the interface.
var _ driving.AnswerService = (*RetrievalService)(nil)

// defaultGroundedPrompt is used when no prompt store is injected.
const defaultGroundedPrompt = `Answer the question using only the numbered context below.
Cite the documents you rely on by their titles. If the context does not
contain the answer, say so plainly and do not guess.

Context:
%s

Question: %s

Answer:`

// defaultFallbackText is returned for ungrounded answers when settings
// leave the fallback empty.
const defaultFallbackText = "I could not find anything in the indexed sources that answers this."

// RetrievalService answers questions from indexed documents: embed the
// query, gather the closest chunks per collection, assemble a context
// that fits the token budget, and synthesize a cited answer.
type RetrievalService struct {
	vectors    driven.VectorStore
	embedder   driven.EmbeddingService
	completion driven.CompletionService
	cfg        domain.RetrievalSettings
	retryCfg   retry.Config

	// collections are searched when a query names none.
	collections []string

	prompts driven.PromptStore
}

// NewRetrievalService creates a new retrieval service. The collections
// slice lists the partitions searched when a query leaves Collections
// empty.
func NewRetrievalService(
	vectors driven.VectorStore,
	embedder driven.EmbeddingService,
	completion driven.CompletionService,
	collections []string,
	cfg domain.RetrievalSettings,
	retryCfg retry.Config,
) *RetrievalService {
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = 3000
	}
	if cfg.FallbackText == "" {
		cfg.FallbackText = defaultFallbackText
	}

	return &RetrievalService{
		vectors:     vectors,
		embedder:    embedder,
		completion:  completion,
		cfg:         cfg,
		retryCfg:    retryCfg,
		collections: collections,
	}
}

// SetPromptStore sets the prompt store for the grounded answer template.
func (s *RetrievalService) SetPromptStore(store driven.PromptStore) {
	s.prompts = store
}

// Ask retrieves relevant chunks and synthesizes a blocking answer.
func (s *RetrievalService) Ask(ctx context.Context, q domain.Query) (*domain.Answer, error) {
	selected, err := s.retrieve(ctx, &q)
	if err != nil {
		return nil, err
	}

	if len(selected) == 0 {
		return s.fallbackAnswer(false), nil
	}

	prompt := s.groundedPrompt(q.Text, selected)
	text, err := retry.DoWithResult(ctx, s.retryCfg, "synthesize answer", func() (string, error) {
		return s.completion.Complete(ctx, prompt)
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize answer: %w", err)
	}

	return &domain.Answer{
		Text:      text,
		Citations: citations(selected),
		Grounded:  true,
	}, nil
}

// AskStream behaves like Ask but delivers the answer text through
// Answer.Fragments. Citations are complete before the first fragment.
func (s *RetrievalService) AskStream(ctx context.Context, q domain.Query) (*domain.Answer, error) {
	selected, err := s.retrieve(ctx, &q)
	if err != nil {
		return nil, err
	}

	if len(selected) == 0 {
		answer := s.fallbackAnswer(true)
		return answer, nil
	}

	prompt := s.groundedPrompt(q.Text, selected)
	fragments, err := retry.DoWithResult(ctx, s.retryCfg, "open answer stream", func() (<-chan domain.Fragment, error) {
		return s.completion.CompleteStream(ctx, prompt)
	})
	if err != nil {
		return nil, fmt.Errorf("open answer stream: %w", err)
	}

	return &domain.Answer{
		Citations: citations(selected),
		Grounded:  true,
		Fragments: fragments,
	}, nil
}

// retrieve embeds the query and returns the budgeted context chunks,
// applying configured defaults to q in place.
func (s *RetrievalService) retrieve(ctx context.Context, q *domain.Query) ([]domain.ScoredChunk, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return nil, fmt.Errorf("%w: empty question", domain.ErrInvalidInput)
	}
	s.applyDefaults(q)

	vector, err := retry.DoWithResult(ctx, s.retryCfg, "embed query", func() ([]float32, error) {
		return s.embedder.Embed(ctx, q.Text)
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	merged, err := s.search(ctx, *q, vector)
	if err != nil {
		return nil, err
	}

	selected := fitBudget(merged, q.TokenBudget)
	logger.Debug("retrieval complete",
		zap.Strings("collections", q.Collections),
		zap.Int("candidates", len(merged)),
		zap.Int("selected", len(selected)))
	return selected, nil
}

// applyDefaults fills zero-valued query parameters from settings.
func (s *RetrievalService) applyDefaults(q *domain.Query) {
	if len(q.Collections) == 0 {
		q.Collections = s.collections
	}
	if q.TopK <= 0 {
		q.TopK = s.cfg.TopK
	}
	if q.MinScore <= 0 {
		q.MinScore = s.cfg.MinScore
	}
	if q.TokenBudget <= 0 {
		q.TokenBudget = s.cfg.TokenBudget
	}
}

// search queries every collection and merges the hits: threshold
// re-checked, superseded document versions dropped, sorted score
// descending with a stable tiebreak.
func (s *RetrievalService) search(ctx context.Context, q domain.Query, vector []float32) ([]domain.ScoredChunk, error) {
	var merged []domain.ScoredChunk
	for _, collection := range q.Collections {
		hits, err := retry.DoWithResult(ctx, s.retryCfg, "query "+collection, func() ([]domain.ScoredChunk, error) {
			return s.vectors.Query(ctx, collection, vector, q.TopK, q.MinScore)
		})
		if err != nil {
			return nil, fmt.Errorf("query collection %q: %w", collection, err)
		}
		for _, hit := range hits {
			if hit.Score >= q.MinScore {
				merged = append(merged, hit)
			}
		}
	}

	merged = latestVersions(merged)
	sortHits(merged)
	return merged, nil
}

// latestVersions keeps, per document, only the chunks of the highest
// version present. A replace sequence interrupted between insert and
// delete briefly leaves two versions in the store; the stale one must
// not reach the prompt.
func latestVersions(hits []domain.ScoredChunk) []domain.ScoredChunk {
	latest := make(map[string]int)
	for _, hit := range hits {
		key := hit.Chunk.Collection + "\x00" + hit.Chunk.DocumentPath
		if hit.Chunk.DocumentVersion > latest[key] {
			latest[key] = hit.Chunk.DocumentVersion
		}
	}

	kept := hits[:0]
	for _, hit := range hits {
		key := hit.Chunk.Collection + "\x00" + hit.Chunk.DocumentPath
		if hit.Chunk.DocumentVersion == latest[key] {
			kept = append(kept, hit)
		}
	}
	return kept
}

// sortHits orders by score descending; ties break on (collection,
// path, index) so equal-scored results are deterministic.
func sortHits(hits []domain.ScoredChunk) {
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Chunk.Collection != b.Chunk.Collection {
			return a.Chunk.Collection < b.Chunk.Collection
		}
		if a.Chunk.DocumentPath != b.Chunk.DocumentPath {
			return a.Chunk.DocumentPath < b.Chunk.DocumentPath
		}
		return a.Chunk.Index < b.Chunk.Index
	})
}

// fitBudget walks the sorted hits and keeps chunks while the running
// token sum fits the budget, stopping at the first overflow.
func fitBudget(hits []domain.ScoredChunk, budget int) []domain.ScoredChunk {
	var selected []domain.ScoredChunk
	used := 0
	for _, hit := range hits {
		tokens := hit.Chunk.Tokens
		if tokens <= 0 {
			tokens = domain.EstimateTokens(hit.Chunk.Text)
		}
		if used+tokens > budget {
			break
		}
		selected = append(selected, hit)
		used += tokens
	}
	return selected
}

// groundedPrompt renders the answer template with numbered context
// blocks and the question.
func (s *RetrievalService) groundedPrompt(question string, selected []domain.ScoredChunk) string {
	template := defaultGroundedPrompt
	if s.prompts != nil {
		if loaded, err := s.prompts.Load(driven.PromptGroundedAnswer); err == nil && loaded != "" {
			template = loaded
		}
	}

	var b strings.Builder
	for i, hit := range selected {
		fmt.Fprintf(&b, "[%d] %s/%s", i+1, hit.Chunk.Collection, hit.Chunk.DocumentPath)
		if hit.Chunk.Title != "" {
			fmt.Fprintf(&b, " - %s", hit.Chunk.Title)
		}
		b.WriteString("\n")
		b.WriteString(hit.Chunk.Text)
		b.WriteString("\n\n")
	}

	return fmt.Sprintf(template, strings.TrimRight(b.String(), "\n"), question)
}

// citations lists the unique documents backing the context, in
// first-appearance order. The hits arrive score-descending, so each
// document's first chunk carries its best score.
func citations(selected []domain.ScoredChunk) []domain.Citation {
	var cites []domain.Citation
	seen := make(map[string]bool)
	for _, hit := range selected {
		key := hit.Chunk.Collection + "\x00" + hit.Chunk.DocumentPath
		if seen[key] {
			continue
		}
		seen[key] = true
		cites = append(cites, domain.Citation{
			Collection: hit.Chunk.Collection,
			Path:       hit.Chunk.DocumentPath,
			Title:      hit.Chunk.Title,
			Score:      hit.Score,
		})
	}
	return cites
}

// fallbackAnswer is the ungrounded response when nothing scored above
// threshold. The completion service is deliberately not consulted.
func (s *RetrievalService) fallbackAnswer(streaming bool) *domain.Answer {
	answer := &domain.Answer{Grounded: false}
	if streaming {
		fragments := make(chan domain.Fragment, 1)
		fragments <- domain.Fragment{Text: s.cfg.FallbackText}
		close(fragments)
		answer.Fragments = fragments
		return answer
	}
	answer.Text = s.cfg.FallbackText
	return answer
}
