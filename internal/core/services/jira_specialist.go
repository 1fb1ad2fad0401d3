package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/cairn-works/cairn/internal/core/domain"
	"github.com/cairn-works/cairn/internal/core/ports/driven"
	"github.com/cairn-works/cairn/internal/retry"
)

// Ticket key extraction. The loose pattern accepts the forms people
// type ("OPS-421", "ops 421", "OPS421"); the strict form, an uppercase
// project key with a hyphen, is a much stronger routing signal than a
// word that merely precedes a number.
var (
	ticketKeyPattern       = regexp.MustCompile(`\b([A-Za-z][A-Za-z0-9]*)[-\s]?(\d+)\b`)
	strictTicketKeyPattern = regexp.MustCompile(`\b[A-Z][A-Z0-9]+-\d+\b`)
)

const (
	strictKeyRelevance   = 0.9
	looseKeyRelevance    = 0.5
	trackerHintRelevance = 0.35

	// maxTicketsPerAnswer bounds how many tickets one answer fetches.
	maxTicketsPerAnswer = 5

	// factsCommentTail is how many trailing comments the facts include.
	factsCommentTail = 3

	// factsCommentCap truncates long comment bodies in the facts.
	factsCommentCap = 240
)

// defaultTicketPrompt is used when no prompt store is injected.
const defaultTicketPrompt = `Answer the question using only the ticket facts below.
Quote ticket keys when you reference them. If the facts do not answer
the question, say so plainly.

Ticket facts:
%s

Question: %s

Answer:`

// trackerKeywords hint at tracker questions that name no ticket key.
// They score below the dispatch threshold on purpose: without a key
// the router should ask which ticket is meant, not guess.
var trackerKeywords = []string{"jira", "ticket", "issue", "sprint", "board", "backlog", "assignee"}

// jiraSpecialist answers ticket questions: extract ticket keys from
// the query, fetch each ticket, derive changelog metrics and
// synthesize over those facts.
type jiraSpecialist struct {
	tracker    driven.TicketTracker
	changelogs *ChangelogService
	completion driven.CompletionService
	retryCfg   retry.Config

	prompts driven.PromptStore
}

// NewJiraSpecialist builds the tracker specialist.
func NewJiraSpecialist(
	tracker driven.TicketTracker,
	changelogs *ChangelogService,
	completion driven.CompletionService,
	retryCfg retry.Config,
) Specialist {
	return &jiraSpecialist{
		tracker:    tracker,
		changelogs: changelogs,
		completion: completion,
		retryCfg:   retryCfg,
	}
}

func (sp *jiraSpecialist) Tag() domain.SpecialistTag { return domain.SpecialistJira }

// SetPromptStore sets the prompt store for the ticket answer template.
func (sp *jiraSpecialist) SetPromptStore(store driven.PromptStore) {
	sp.prompts = store
}

func (sp *jiraSpecialist) Relevance(_ context.Context, q domain.Query) (float64, error) {
	text := classificationText(q)
	if strictTicketKeyPattern.MatchString(text) {
		return strictKeyRelevance, nil
	}
	if len(extractTicketKeys(text)) > 0 {
		return looseKeyRelevance, nil
	}
	if keywordRelevance(text, trackerKeywords) > 0 {
		return trackerHintRelevance, nil
	}
	return 0, nil
}

func (sp *jiraSpecialist) Answer(ctx context.Context, q domain.Query) (*domain.Answer, error) {
	facts, citations, err := sp.gatherFacts(ctx, q)
	if err != nil {
		return nil, err
	}

	prompt := sp.ticketPrompt(q.Text, facts)
	text, err := retry.DoWithResult(ctx, sp.retryCfg, "synthesize ticket answer", func() (string, error) {
		return sp.completion.Complete(ctx, prompt)
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize ticket answer: %w", err)
	}

	return &domain.Answer{
		Text:       text,
		Citations:  citations,
		Grounded:   true,
		Specialist: domain.SpecialistJira,
	}, nil
}

func (sp *jiraSpecialist) AnswerStream(ctx context.Context, q domain.Query) (*domain.Answer, error) {
	facts, citations, err := sp.gatherFacts(ctx, q)
	if err != nil {
		return nil, err
	}

	prompt := sp.ticketPrompt(q.Text, facts)
	fragments, err := retry.DoWithResult(ctx, sp.retryCfg, "open ticket answer stream", func() (<-chan domain.Fragment, error) {
		return sp.completion.CompleteStream(ctx, prompt)
	})
	if err != nil {
		return nil, fmt.Errorf("open ticket answer stream: %w", err)
	}

	return &domain.Answer{
		Citations:  citations,
		Grounded:   true,
		Specialist: domain.SpecialistJira,
		Fragments:  fragments,
	}, nil
}

// gatherFacts fetches every ticket the query names and renders their
// facts. Keys the tracker does not know are skipped; they are usually
// pattern false positives.
func (sp *jiraSpecialist) gatherFacts(ctx context.Context, q domain.Query) (string, []domain.Citation, error) {
	keys := extractTicketKeys(classificationText(q))
	if len(keys) == 0 {
		return "", nil, fmt.Errorf("%w: no ticket key in question", domain.ErrInvalidInput)
	}
	if len(keys) > maxTicketsPerAnswer {
		keys = keys[:maxTicketsPerAnswer]
	}

	var sections []string
	var citations []domain.Citation
	var lastErr error
	for _, key := range keys {
		ticket, err := retry.DoWithResult(ctx, sp.retryCfg, "fetch ticket "+key, func() (*domain.Ticket, error) {
			return sp.tracker.GetTicket(ctx, key)
		})
		if err != nil {
			if errors.Is(err, domain.ErrTicketNotFound) {
				lastErr = err
				continue
			}
			return "", nil, fmt.Errorf("fetch ticket %s: %w", key, err)
		}

		report := sp.changelogs.Analyze(ticket)
		sections = append(sections, renderTicketFacts(ticket, report))
		citations = append(citations, domain.Citation{
			Collection: "jira",
			Path:       ticket.Key,
			Title:      ticket.Summary,
			Score:      1,
		})
	}

	if len(sections) == 0 {
		return "", nil, fmt.Errorf("no tracker ticket matches %s: %w", strings.Join(keys, ", "), lastErr)
	}
	return strings.Join(sections, "\n\n"), citations, nil
}

// ticketPrompt renders the ticket answer template.
func (sp *jiraSpecialist) ticketPrompt(question, facts string) string {
	template := defaultTicketPrompt
	if sp.prompts != nil {
		if loaded, err := sp.prompts.Load(driven.PromptTicketAnswer); err == nil && loaded != "" {
			template = loaded
		}
	}
	return fmt.Sprintf(template, facts, question)
}

// extractTicketKeys returns the normalized ticket keys found in text,
// first appearance order, duplicates removed.
func extractTicketKeys(text string) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, match := range ticketKeyPattern.FindAllStringSubmatch(text, -1) {
		key := strings.ToUpper(match[1]) + "-" + match[2]
		if seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}

// renderTicketFacts produces the deterministic fact block for one
// ticket: header, time in status, cycle time, regressions and the
// latest comments.
func renderTicketFacts(t *domain.Ticket, report *domain.TicketReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", t.Key, t.Summary)

	fmt.Fprintf(&b, "status: %s", t.Status)
	if t.Assignee != "" {
		fmt.Fprintf(&b, ", assignee: %s", t.Assignee)
	}
	if !t.Created.IsZero() {
		fmt.Fprintf(&b, ", created: %s", t.Created.Format("2006-01-02"))
	}
	b.WriteString("\n")

	if len(report.Durations) > 0 {
		parts := make([]string, 0, len(report.Durations))
		for _, status := range durationOrder(report.Durations) {
			parts = append(parts, fmt.Sprintf("%s %s", status, report.Durations[status].Round(time.Minute)))
		}
		fmt.Fprintf(&b, "time in status: %s\n", strings.Join(parts, ", "))
	}

	if report.CycleTimeKnown {
		fmt.Fprintf(&b, "cycle time: %s\n", report.CycleTime.Round(time.Minute))
	} else {
		b.WriteString("cycle time: not measurable yet\n")
	}

	if n := len(report.Regressions); n > 0 {
		last := report.Regressions[n-1]
		fmt.Fprintf(&b, "workflow regressions: %d, last moved back to %q on %s\n",
			n, last.To, last.At.Format("2006-01-02"))
	}

	comments := t.Comments
	if len(comments) > factsCommentTail {
		comments = comments[len(comments)-factsCommentTail:]
	}
	for _, comment := range comments {
		fmt.Fprintf(&b, "comment (%s, %s): %s\n",
			comment.Author, comment.At.Format("2006-01-02"), clipText(comment.Text, factsCommentCap))
	}

	return strings.TrimRight(b.String(), "\n")
}

// durationOrder lists the statuses of a durations map with the
// canonical workflow statuses first and everything else alphabetical,
// so rendered facts are stable.
func durationOrder(durations map[domain.Status]time.Duration) []domain.Status {
	var ordered []domain.Status
	for _, status := range domain.WorkflowOrder {
		if _, ok := durations[status]; ok {
			ordered = append(ordered, status)
		}
	}
	var extra []domain.Status
	for status := range durations {
		if _, ranked := domain.WorkflowRank(status); !ranked {
			extra = append(extra, status)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(ordered, extra...)
}

func clipText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
