// Package jira implements the ticket tracker port against the Jira
// REST API (v2). Both Jira Cloud (email + API token) and Jira Server
// (bearer token) authentication are supported.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cairn-works/cairn/internal/core/domain"
	"github.com/cairn-works/cairn/internal/core/ports/driven"
)

// Ensure Tracker implements the interface.
var _ driven.TicketTracker = (*Tracker)(nil)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// commentPageSize is how many comments each page request asks for.
	commentPageSize = 50

	// errBodyLimit caps how much of an error response body is kept.
	errBodyLimit = 2048
)

// Config holds configuration for the Jira tracker.
type Config struct {
	// BaseURL is the Jira instance root, e.g. https://example.atlassian.net.
	BaseURL string

	// Email is the account email for Jira Cloud basic auth. Leave empty
	// to send APIToken as a bearer token instead (Jira Server PATs).
	Email string

	// APIToken is the API token or personal access token (required).
	APIToken string

	// Timeout is the per-request timeout (default: 30s).
	Timeout time.Duration
}

// Tracker talks to one Jira instance.
type Tracker struct {
	baseURL  string
	email    string
	apiToken string
	client   *http.Client
}

// NewTracker creates a new Jira tracker client.
func NewTracker(cfg Config) (*Tracker, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("jira: base URL is required")
	}
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("jira: API token is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Tracker{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		email:    cfg.Email,
		apiToken: cfg.APIToken,
		client:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// GetTicket returns the ticket with its changelog and comments.
func (t *Tracker) GetTicket(ctx context.Context, key string) (*domain.Ticket, error) {
	var issue issuePayload
	query := url.Values{"expand": {"changelog"}}
	if err := t.get(ctx, "/rest/api/2/issue/"+url.PathEscape(key), query, &issue); err != nil {
		return nil, err
	}

	comments, err := t.FetchComments(ctx, key)
	if err != nil {
		return nil, err
	}

	ticket := issue.toTicket()
	ticket.Comments = comments
	return ticket, nil
}

// FetchChangelog returns the ticket's status transitions in the order
// Jira reports them.
func (t *Tracker) FetchChangelog(ctx context.Context, key string) ([]domain.ChangelogEntry, error) {
	var issue issuePayload
	query := url.Values{
		"expand": {"changelog"},
		"fields": {"status"},
	}
	if err := t.get(ctx, "/rest/api/2/issue/"+url.PathEscape(key), query, &issue); err != nil {
		return nil, err
	}
	return issue.Changelog.entries(), nil
}

// FetchComments returns all comments on the ticket, ascending by time.
func (t *Tracker) FetchComments(ctx context.Context, key string) ([]domain.Comment, error) {
	var all []domain.Comment

	for startAt := 0; ; {
		query := url.Values{
			"startAt":    {strconv.Itoa(startAt)},
			"maxResults": {strconv.Itoa(commentPageSize)},
			"orderBy":    {"created"},
		}

		var page commentPage
		if err := t.get(ctx, "/rest/api/2/issue/"+url.PathEscape(key)+"/comment", query, &page); err != nil {
			return nil, err
		}

		for _, c := range page.Comments {
			all = append(all, c.toComment())
		}

		startAt += len(page.Comments)
		if len(page.Comments) == 0 || startAt >= page.Total {
			break
		}
	}

	return all, nil
}

// PostComment adds a comment to the ticket.
func (t *Tracker) PostComment(ctx context.Context, key, text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.Join(domain.ErrInvalidInput, errors.New("jira: empty comment"))
	}

	body := map[string]string{"body": text}
	return t.post(ctx, "/rest/api/2/issue/"+url.PathEscape(key)+"/comment", body, nil)
}

// SearchTickets returns up to limit ticket keys matching the JQL query.
func (t *Tracker) SearchTickets(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}

	params := url.Values{
		"jql":        {query},
		"maxResults": {strconv.Itoa(limit)},
		"fields":     {"key"},
	}

	var result searchPage
	if err := t.get(ctx, "/rest/api/2/search", params, &result); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(result.Issues))
	for _, issue := range result.Issues {
		keys = append(keys, issue.Key)
	}
	return keys, nil
}

// get performs a GET request and decodes the JSON response into out.
func (t *Tracker) get(ctx context.Context, path string, query url.Values, out any) error {
	return t.do(ctx, http.MethodGet, path, query, nil, out)
}

// post performs a POST request with a JSON body.
func (t *Tracker) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("jira: encoding request: %w", err)
	}
	return t.do(ctx, http.MethodPost, path, nil, payload, out)
}

func (t *Tracker) do(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	u := t.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("jira: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.email != "" {
		req.SetBasicAuth(t.email, t.apiToken)
	} else {
		req.Header.Set("Authorization", "Bearer "+t.apiToken)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return errors.Join(domain.ErrTrackerUnavailable,
			fmt.Errorf("jira: %s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(method, path, resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Join(domain.ErrTrackerUnavailable,
			fmt.Errorf("jira: decoding %s response: %w", path, err))
	}
	return nil
}

// statusError maps an error response onto the domain error taxonomy.
func statusError(method, path string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
	cause := fmt.Errorf("jira: %s %s: status %d: %s",
		method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.Join(domain.ErrTicketNotFound, cause)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.Join(domain.ErrSourceAccessDenied, cause)
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.Join(domain.ErrRateLimited, cause)
	case resp.StatusCode == http.StatusBadRequest:
		return errors.Join(domain.ErrInvalidInput, cause)
	default:
		return errors.Join(domain.ErrTrackerUnavailable, cause)
	}
}
