package jira

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cairn-works/cairn/internal/core/domain"
)

// jiraTime is the timestamp layout Jira uses in its REST payloads.
const jiraTime = "2006-01-02T15:04:05.000-0700"

// mentionPattern matches Jira wiki-markup mentions: [~username] on
// Server, [~accountid:...] on Cloud.
var mentionPattern = regexp.MustCompile(`\[~(?:accountid:)?([^\]]+)\]`)

type issuePayload struct {
	Key    string `json:"key"`
	Fields struct {
		Summary string `json:"summary"`
		Created string `json:"created"`
		Status  struct {
			Name string `json:"name"`
		} `json:"status"`
		Assignee *userPayload `json:"assignee"`
	} `json:"fields"`
	Changelog changelogPayload `json:"changelog"`
}

type changelogPayload struct {
	Histories []struct {
		ID      string      `json:"id"`
		Author  userPayload `json:"author"`
		Created string      `json:"created"`
		Items   []struct {
			Field      string `json:"field"`
			FromString string `json:"fromString"`
			ToString   string `json:"toString"`
		} `json:"items"`
	} `json:"histories"`
}

type userPayload struct {
	Name        string `json:"name"`
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
}

// identity returns the token mentions resolve against: the Server
// username when present, the Cloud account ID otherwise.
func (u userPayload) identity() string {
	if u.Name != "" {
		return u.Name
	}
	if u.AccountID != "" {
		return u.AccountID
	}
	return u.DisplayName
}

type commentPage struct {
	StartAt    int              `json:"startAt"`
	MaxResults int              `json:"maxResults"`
	Total      int              `json:"total"`
	Comments   []commentPayload `json:"comments"`
}

type commentPayload struct {
	ID      string      `json:"id"`
	Author  userPayload `json:"author"`
	Created string      `json:"created"`
	Body    string      `json:"body"`
}

type searchPage struct {
	Issues []struct {
		Key string `json:"key"`
	} `json:"issues"`
}

func (p issuePayload) toTicket() *domain.Ticket {
	ticket := &domain.Ticket{
		Key:       p.Key,
		Summary:   p.Fields.Summary,
		Status:    domain.Status(strings.ToLower(p.Fields.Status.Name)),
		Created:   parseTime(p.Fields.Created),
		Changelog: p.Changelog.entries(),
	}
	if p.Fields.Assignee != nil {
		ticket.Assignee = p.Fields.Assignee.identity()
	}
	return ticket
}

// entries flattens the history payload into status transitions.
// Non-status items are dropped; history IDs become sequence numbers so
// same-timestamp transitions keep a stable order.
func (c changelogPayload) entries() []domain.ChangelogEntry {
	var out []domain.ChangelogEntry
	for i, h := range c.Histories {
		seq, err := strconv.Atoi(h.ID)
		if err != nil {
			seq = i
		}
		for _, item := range h.Items {
			if item.Field != "status" {
				continue
			}
			out = append(out, domain.ChangelogEntry{
				From:  domain.Status(strings.ToLower(item.FromString)),
				To:    domain.Status(strings.ToLower(item.ToString)),
				At:    parseTime(h.Created),
				Actor: h.Author.identity(),
				Seq:   seq,
			})
		}
	}
	return out
}

func (c commentPayload) toComment() domain.Comment {
	return domain.Comment{
		ID:       c.ID,
		Author:   c.Author.identity(),
		At:       parseTime(c.Created),
		Mentions: parseMentions(c.Body),
		Text:     c.Body,
	}
}

// parseMentions extracts mentioned users from a comment body,
// deduplicated in first-appearance order.
func parseMentions(body string) []string {
	matches := mentionPattern.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	var mentions []string
	for _, m := range matches {
		user := m[1]
		if seen[user] {
			continue
		}
		seen[user] = true
		mentions = append(mentions, user)
	}
	return mentions
}

func parseTime(s string) time.Time {
	if ts, err := time.Parse(jiraTime, s); err == nil {
		return ts
	}
	ts, _ := time.Parse(time.RFC3339, s)
	return ts
}
