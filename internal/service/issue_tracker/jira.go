package issue_tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"basegraph.app/synapse/common/otel"
	"basegraph.app/synapse/internal/model"
)

const jiraRequestTimeout = 15 * time.Second

type JiraConfig struct {
	BaseURL    string
	UserEmail  string
	APIToken   string
	HTTPClient *http.Client
}

type jiraIssueTrackerService struct {
	baseURL string
	email   string
	token   string
	http    *http.Client
}

// NewJiraIssueTrackerService returns a service that reports ErrNotConfigured
// from every call when any credential is missing.
func NewJiraIssueTrackerService(cfg JiraConfig) IssueTrackerService {
	client := cfg.HTTPClient
	if client == nil {
		client = otel.HTTPClient(jiraRequestTimeout)
	}
	return &jiraIssueTrackerService{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		email:   cfg.UserEmail,
		token:   cfg.APIToken,
		http:    client,
	}
}

type jiraIssue struct {
	Fields struct {
		Summary     string   `json:"summary"`
		Description Document `json:"description"`
		Comment     struct {
			Comments []jiraComment `json:"comments"`
		} `json:"comment"`
	} `json:"fields"`
}

type jiraComment struct {
	Author *struct {
		DisplayName string `json:"displayName"`
	} `json:"author"`
	Created string   `json:"created"`
	Body    Document `json:"body"`
}

func (s *jiraIssueTrackerService) FetchTicket(ctx context.Context, ticketID string) (*model.TicketReference, error) {
	if s.baseURL == "" || s.email == "" || s.token == "" {
		return nil, ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, jiraRequestTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/rest/api/3/issue/%s?fields=summary,description,comment",
		s.baseURL, url.PathEscape(ticketID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building jira request: %w", err)
	}
	req.SetBasicAuth(s.email, s.token)
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s from jira: %w", ticketID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetching %s from jira: status %d", ticketID, resp.StatusCode)
	}

	var issue jiraIssue
	if err := json.NewDecoder(resp.Body).Decode(&issue); err != nil {
		return nil, fmt.Errorf("decoding jira issue %s: %w", ticketID, err)
	}

	return mapTicket(ticketID, issue), nil
}

func mapTicket(ticketID string, issue jiraIssue) *model.TicketReference {
	comments := make([]model.TicketComment, 0, len(issue.Fields.Comment.Comments))
	for _, c := range issue.Fields.Comment.Comments {
		author := "Unknown"
		if c.Author != nil && c.Author.DisplayName != "" {
			author = c.Author.DisplayName
		}
		comments = append(comments, model.TicketComment{
			Author:  author,
			Created: c.Created,
			Body:    Flatten(c.Body.Root),
		})
	}

	return &model.TicketReference{
		ID:          ticketID,
		Summary:     issue.Fields.Summary,
		Description: Flatten(issue.Fields.Description.Root),
		Comments:    comments,
	}
}
