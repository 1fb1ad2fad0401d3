package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cairn-works/cairn/internal/core/domain"
	"github.com/cairn-works/cairn/internal/core/ports/driven"
	"github.com/cairn-works/cairn/internal/core/ports/driving"
	"github.com/cairn-works/cairn/internal/logger"
)

// Ensure RouterService implements the interface.
var _ driving.RouterService = (*RouterService)(nil)

// defaultClarificationQuestion is asked when no generated question is
// available.
const defaultClarificationQuestion = "Are you asking about documentation, a file share, or an issue ticket? " +
	"Naming the source or a ticket key helps me route this."

// defaultClarificationPrompt is used when no prompt store is injected.
const defaultClarificationPrompt = `The question below could refer to documentation, files, or issue tickets,
and it is not clear which. Write one short clarifying question asking the
user which source they mean. Return only the clarifying question.

Question: %s

Clarifying question:`

// tagRank fixes the specialist order for deterministic tie-breaking
// and merge ordering.
var tagRank = map[domain.SpecialistTag]int{
	domain.SpecialistConfluence: 0,
	domain.SpecialistSharePoint: 1,
	domain.SpecialistJira:       2,
	domain.SpecialistGeneral:    3,
}

// RouterService runs the per-query state machine: score every
// specialist's relevance, dispatch to the winner or fan out, and
// synthesize one answer. Ambiguous classifications come back as a
// clarifying question, never as a guess.
type RouterService struct {
	specialists []Specialist
	completion  driven.CompletionService
	cfg         domain.RouterSettings

	prompts driven.PromptStore
}

// NewRouterService creates a new router over the given specialists.
// The completion service phrases clarifying questions; passing nil
// falls back to a fixed question.
func NewRouterService(specialists []Specialist, completion driven.CompletionService, cfg domain.RouterSettings) *RouterService {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.4
	}
	if cfg.TieEpsilon <= 0 {
		cfg.TieEpsilon = 0.05
	}

	ordered := make([]Specialist, len(specialists))
	copy(ordered, specialists)
	sort.SliceStable(ordered, func(i, j int) bool {
		return tagOrder(ordered[i].Tag()) < tagOrder(ordered[j].Tag())
	})

	return &RouterService{
		specialists: ordered,
		completion:  completion,
		cfg:         cfg,
	}
}

// SetPromptStore sets the prompt store and shares it with every
// specialist that accepts one.
func (s *RouterService) SetPromptStore(store driven.PromptStore) {
	s.prompts = store
	for _, sp := range s.specialists {
		if aware, ok := sp.(driven.PromptStoreAware); ok {
			aware.SetPromptStore(store)
		}
	}
}

// Route classifies the query, dispatches and returns the synthesized
// answer.
func (s *RouterService) Route(ctx context.Context, q domain.Query) (*domain.Answer, error) {
	return s.route(ctx, q, false)
}

// RouteStream behaves like Route but streams when the dispatch
// resolved to a single specialist.
func (s *RouterService) RouteStream(ctx context.Context, q domain.Query) (*domain.Answer, error) {
	return s.route(ctx, q, true)
}

func (s *RouterService) route(ctx context.Context, q domain.Query, stream bool) (*domain.Answer, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, fmt.Errorf("%w: empty question", domain.ErrInvalidInput)
	}
	if len(s.specialists) == 0 {
		return nil, errors.New("no specialists registered")
	}

	tr := newTracer()
	scores := s.classify(ctx, q)
	winner := scores[0]
	tr.to(domain.StateClassified, classifyNote(scores))

	if err := s.ambiguity(scores); err != nil {
		logger.Info("routing needs clarification",
			zap.String("reason", err.Error()))
		return s.clarify(ctx, q, tr, err.Error(), winner.score), nil
	}

	if s.cfg.FanOut {
		winners := aboveThreshold(scores, s.cfg.ConfidenceThreshold)
		if len(winners) > 1 {
			return s.fanOut(ctx, q, winners, tr)
		}
	}
	return s.single(ctx, q, winner, tr, stream)
}

// specialistScore pairs a specialist with its relevance to one query.
type specialistScore struct {
	specialist Specialist
	score      float64
}

// classify scores every specialist and orders them best-first, ties
// broken by the fixed tag order. A specialist whose scorer fails is
// kept at zero rather than dropped.
func (s *RouterService) classify(ctx context.Context, q domain.Query) []specialistScore {
	scores := make([]specialistScore, 0, len(s.specialists))
	for _, sp := range s.specialists {
		score, err := sp.Relevance(ctx, q)
		if err != nil {
			logger.Warn("specialist relevance failed",
				zap.String("specialist", string(sp.Tag())),
				zap.Error(err))
			score = 0
		}
		scores = append(scores, specialistScore{specialist: sp, score: score})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return tagOrder(scores[i].specialist.Tag()) < tagOrder(scores[j].specialist.Tag())
	})
	return scores
}

// ambiguity decides whether the classification is safe to dispatch.
// The returned error wraps ErrClassificationAmbiguous; it is resolved
// by asking the user, never surfaced to the caller.
func (s *RouterService) ambiguity(scores []specialistScore) error {
	top := scores[0]
	if top.score < s.cfg.ConfidenceThreshold {
		return fmt.Errorf("%w: best score %.2f below threshold %.2f",
			domain.ErrClassificationAmbiguous, top.score, s.cfg.ConfidenceThreshold)
	}
	if len(scores) > 1 && top.score-scores[1].score < s.cfg.TieEpsilon {
		if s.cfg.FanOut && scores[1].score >= s.cfg.ConfidenceThreshold {
			// Both dispatch; the merge resolves the tie.
			return nil
		}
		return fmt.Errorf("%w: %s %.2f and %s %.2f too close to call",
			domain.ErrClassificationAmbiguous,
			top.specialist.Tag(), top.score,
			scores[1].specialist.Tag(), scores[1].score)
	}
	return nil
}

// clarify produces the clarification answer and parks the query with
// the user.
func (s *RouterService) clarify(ctx context.Context, q domain.Query, tr *tracer, reason string, confidence float64) *domain.Answer {
	tr.to(domain.StateClarificationRequested, reason)
	question := s.clarifyingQuestion(ctx, q)
	tr.to(domain.StateAwaitingUser, "")
	return &domain.Answer{
		NeedsClarification: true,
		Clarification:      question,
		Confidence:         confidence,
		Trace:              tr.steps,
	}
}

// clarifyingQuestion phrases the question to put to the user. Failures
// degrade to a fixed question; clarification never errors.
func (s *RouterService) clarifyingQuestion(ctx context.Context, q domain.Query) string {
	if s.completion == nil {
		return defaultClarificationQuestion
	}

	template := defaultClarificationPrompt
	if s.prompts != nil {
		if loaded, err := s.prompts.Load(driven.PromptClarification); err == nil && loaded != "" {
			template = loaded
		}
	}

	question, err := s.completion.Complete(ctx, fmt.Sprintf(template, classificationText(q)))
	if err != nil || strings.TrimSpace(question) == "" {
		logger.Warn("clarifying question generation failed", zap.Error(err))
		return defaultClarificationQuestion
	}
	return strings.TrimSpace(question)
}

// single dispatches to the winning specialist, falling back to general
// when configured and the winner kept failing.
func (s *RouterService) single(ctx context.Context, q domain.Query, winner specialistScore, tr *tracer, stream bool) (*domain.Answer, error) {
	answer, err := s.dispatchOne(ctx, q, winner.specialist, tr, stream)
	if err != nil && s.cfg.FallbackToGeneral {
		if general := s.findGeneral(); general != nil && general != winner.specialist {
			logger.Warn("specialist failed, falling back to general",
				zap.String("specialist", string(winner.specialist.Tag())),
				zap.Error(err))
			answer, err = s.dispatchOne(ctx, q, general, tr, stream)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("dispatch %s: %w", winner.specialist.Tag(), err)
	}

	answer.Confidence = winner.score
	tr.to(domain.StateSynthesized, "")
	tr.to(domain.StateResponded, "")
	answer.Trace = tr.steps
	return answer, nil
}

// dispatchOne invokes one specialist, retrying once when the failure
// was transient.
func (s *RouterService) dispatchOne(ctx context.Context, q domain.Query, sp Specialist, tr *tracer, stream bool) (*domain.Answer, error) {
	tag := string(sp.Tag())
	tr.to(domain.StateDispatched, tag)
	answer, err := answerWith(ctx, q, sp, stream)
	if err == nil {
		tr.to(domain.StateSpecialistSucceeded, tag)
		return answer, nil
	}
	tr.to(domain.StateSpecialistFailed, tag+": "+err.Error())
	if !domain.IsTransient(err) {
		return nil, err
	}

	tr.to(domain.StateDispatched, tag+" retry")
	answer, err = answerWith(ctx, q, sp, stream)
	if err != nil {
		tr.to(domain.StateSpecialistFailed, tag+" retry: "+err.Error())
		return nil, err
	}
	tr.to(domain.StateSpecialistSucceeded, tag)
	return answer, nil
}

// fanOut dispatches to every winner concurrently and merges the
// successful answers. Merged responses are always blocking.
func (s *RouterService) fanOut(ctx context.Context, q domain.Query, winners []specialistScore, tr *tracer) (*domain.Answer, error) {
	type result struct {
		score  specialistScore
		answer *domain.Answer
		err    error
	}

	tags := make([]string, len(winners))
	for i, w := range winners {
		tags[i] = string(w.specialist.Tag())
	}
	tr.to(domain.StateDispatched, "fan-out: "+strings.Join(tags, ", "))

	results := make([]result, len(winners))
	var wg sync.WaitGroup
	for i, w := range winners {
		wg.Add(1)
		go func(i int, w specialistScore) {
			defer wg.Done()
			answer, err := answerWith(ctx, q, w.specialist, false)
			if err != nil && domain.IsTransient(err) {
				answer, err = answerWith(ctx, q, w.specialist, false)
			}
			results[i] = result{score: w, answer: answer, err: err}
		}(i, w)
	}
	wg.Wait()

	var answers []*domain.Answer
	var confidences []float64
	var okTags, failNotes []string
	var errs []error
	for _, r := range results {
		if r.err != nil {
			failNotes = append(failNotes, fmt.Sprintf("%s: %v", r.score.specialist.Tag(), r.err))
			errs = append(errs, r.err)
			continue
		}
		answers = append(answers, r.answer)
		confidences = append(confidences, r.score.score)
		okTags = append(okTags, string(r.score.specialist.Tag()))
	}

	if len(answers) == 0 {
		tr.to(domain.StateSpecialistFailed, strings.Join(failNotes, "; "))
		if s.cfg.FallbackToGeneral {
			if general := s.findGeneral(); general != nil && !winnersInclude(winners, general) {
				answer, err := s.dispatchOne(ctx, q, general, tr, false)
				if err == nil {
					answer.Confidence = winners[0].score
					tr.to(domain.StateSynthesized, "")
					tr.to(domain.StateResponded, "")
					answer.Trace = tr.steps
					return answer, nil
				}
				errs = append(errs, err)
			}
		}
		return nil, fmt.Errorf("all specialists failed: %w", errors.Join(errs...))
	}

	note := "ok: " + strings.Join(okTags, ", ")
	if len(failNotes) > 0 {
		note += "; failed: " + strings.Join(failNotes, "; ")
	}
	tr.to(domain.StateSpecialistSucceeded, note)

	if len(answers) == 1 {
		// Nothing to merge; the lone answer stands on its own.
		answer := answers[0]
		answer.Confidence = confidences[0]
		tr.to(domain.StateSynthesized, "")
		tr.to(domain.StateResponded, "")
		answer.Trace = tr.steps
		return answer, nil
	}

	merged := mergeAnswers(answers, confidences)
	tr.to(domain.StateSynthesized, fmt.Sprintf("merged %d answers", len(answers)))
	tr.to(domain.StateResponded, "")
	merged.Trace = tr.steps
	return merged, nil
}

// mergeAnswers combines fan-out answers, which arrive ordered by
// classification confidence with ties already broken on the fixed tag
// order: texts join under attribution headers, citations deduplicate
// per document keeping the best score, confidence is the maximum.
func mergeAnswers(answers []*domain.Answer, confidences []float64) *domain.Answer {
	var sections []string
	var cites []domain.Citation
	merged := &domain.Answer{Specialist: domain.SpecialistMerged}
	for i, answer := range answers {
		if answer.Text != "" {
			sections = append(sections, fmt.Sprintf("[%s]\n%s", answer.Specialist, answer.Text))
		}
		cites = append(cites, answer.Citations...)
		if confidences[i] > merged.Confidence {
			merged.Confidence = confidences[i]
		}
		merged.Grounded = merged.Grounded || answer.Grounded
	}
	merged.Text = strings.Join(sections, "\n\n")
	merged.Citations = dedupCitations(cites)
	return merged
}

// dedupCitations keeps one citation per (collection, path), the one
// with the highest score, and orders the result score-descending.
func dedupCitations(cites []domain.Citation) []domain.Citation {
	best := make(map[string]domain.Citation)
	for _, cite := range cites {
		key := cite.Collection + "\x00" + cite.Path
		if current, ok := best[key]; !ok || cite.Score > current.Score {
			best[key] = cite
		}
	}

	out := make([]domain.Citation, 0, len(best))
	for _, cite := range best {
		out = append(out, cite)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Collection != out[j].Collection {
			return out[i].Collection < out[j].Collection
		}
		return out[i].Path < out[j].Path
	})
	return out
}

func (s *RouterService) findGeneral() Specialist {
	for _, sp := range s.specialists {
		if sp.Tag() == domain.SpecialistGeneral {
			return sp
		}
	}
	return nil
}

func winnersInclude(winners []specialistScore, sp Specialist) bool {
	for _, w := range winners {
		if w.specialist == sp {
			return true
		}
	}
	return false
}

func aboveThreshold(scores []specialistScore, threshold float64) []specialistScore {
	var winners []specialistScore
	for _, score := range scores {
		if score.score >= threshold {
			winners = append(winners, score)
		}
	}
	return winners
}

func answerWith(ctx context.Context, q domain.Query, sp Specialist, stream bool) (*domain.Answer, error) {
	if stream {
		return sp.AnswerStream(ctx, q)
	}
	return sp.Answer(ctx, q)
}

func classifyNote(scores []specialistScore) string {
	parts := make([]string, len(scores))
	for i, score := range scores {
		parts[i] = fmt.Sprintf("%s %.2f", score.specialist.Tag(), score.score)
	}
	return strings.Join(parts, ", ")
}

func tagOrder(tag domain.SpecialistTag) int {
	if rank, ok := tagRank[tag]; ok {
		return rank
	}
	return len(tagRank)
}

// tracer accumulates the state transitions for one routed query.
type tracer struct {
	state domain.QueryState
	steps []domain.Transition
}

func newTracer() *tracer {
	t := &tracer{state: domain.StateReceived}
	t.steps = append(t.steps, domain.Transition{To: domain.StateReceived, At: time.Now()})
	return t
}

func (t *tracer) to(next domain.QueryState, note string) {
	t.steps = append(t.steps, domain.Transition{
		From: t.state,
		To:   next,
		At:   time.Now(),
		Note: note,
	})
	t.state = next
}
