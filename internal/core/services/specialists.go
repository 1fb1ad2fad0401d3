package services

import (
	"context"
	"strings"

	"github.com/cairn-works/cairn/internal/core/domain"
	"github.com/cairn-works/cairn/internal/core/ports/driving"
)

// Relevance scoring. Keyword hits start at the base and step up per
// additional hit; the general specialist holds the floor so every
// query has somewhere to land once the user clarifies.
const (
	keywordBaseRelevance  = 0.55
	keywordStepRelevance  = 0.15
	keywordMaxRelevance   = 0.95
	generalFloorRelevance = 0.3
)

// Specialist answers queries for one source family. The router scores
// every specialist's relevance to a query, dispatches to the winner
// and synthesizes the result.
type Specialist interface {
	// Tag identifies the specialist.
	Tag() domain.SpecialistTag

	// Relevance scores how well the query matches this specialist's
	// territory, in [0, 1].
	Relevance(ctx context.Context, q domain.Query) (float64, error)

	// Answer produces a blocking answer.
	Answer(ctx context.Context, q domain.Query) (*domain.Answer, error)

	// AnswerStream produces a streaming answer through
	// Answer.Fragments.
	AnswerStream(ctx context.Context, q domain.Query) (*domain.Answer, error)
}

// retrievalSpecialist serves document questions from a fixed set of
// collections through the retrieval engine.
type retrievalSpecialist struct {
	tag         domain.SpecialistTag
	answers     driving.AnswerService
	collections []string
	keywords    []string
	floor       float64
}

// NewRetrievalSpecialist builds a specialist answering from the given
// collections. Relevance is keyword driven: queries mentioning none of
// the keywords score zero for this specialist.
func NewRetrievalSpecialist(tag domain.SpecialistTag, answers driving.AnswerService, collections, keywords []string) Specialist {
	lowered := make([]string, len(keywords))
	for i, keyword := range keywords {
		lowered[i] = strings.ToLower(keyword)
	}
	return &retrievalSpecialist{
		tag:         tag,
		answers:     answers,
		collections: collections,
		keywords:    lowered,
	}
}

// NewGeneralSpecialist builds the catch-all: retrieval across all
// configured collections with a floor relevance, so it wins whenever
// no topical specialist recognises the query.
func NewGeneralSpecialist(answers driving.AnswerService) Specialist {
	return &retrievalSpecialist{
		tag:     domain.SpecialistGeneral,
		answers: answers,
		floor:   generalFloorRelevance,
	}
}

func (sp *retrievalSpecialist) Tag() domain.SpecialistTag { return sp.tag }

func (sp *retrievalSpecialist) Relevance(_ context.Context, q domain.Query) (float64, error) {
	score := keywordRelevance(classificationText(q), sp.keywords)
	if score < sp.floor {
		score = sp.floor
	}
	return score, nil
}

func (sp *retrievalSpecialist) Answer(ctx context.Context, q domain.Query) (*domain.Answer, error) {
	q.Collections = sp.collections
	answer, err := sp.answers.Ask(ctx, q)
	if err != nil {
		return nil, err
	}
	answer.Specialist = sp.tag
	return answer, nil
}

func (sp *retrievalSpecialist) AnswerStream(ctx context.Context, q domain.Query) (*domain.Answer, error) {
	q.Collections = sp.collections
	answer, err := sp.answers.AskStream(ctx, q)
	if err != nil {
		return nil, err
	}
	answer.Specialist = sp.tag
	return answer, nil
}

// keywordRelevance scores text against a keyword list. No hit scores
// zero; one hit scores the base; each further hit steps the score up
// to the cap.
func keywordRelevance(text string, keywords []string) float64 {
	lower := strings.ToLower(text)
	hits := 0
	for _, keyword := range keywords {
		if strings.Contains(lower, keyword) {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}
	score := keywordBaseRelevance + keywordStepRelevance*float64(hits-1)
	if score > keywordMaxRelevance {
		score = keywordMaxRelevance
	}
	return score
}

// classificationText joins the question with the user's clarification
// reply, so a resubmitted query is classified on both.
func classificationText(q domain.Query) string {
	if q.Clarification == "" {
		return q.Text
	}
	return q.Text + "\n" + q.Clarification
}
