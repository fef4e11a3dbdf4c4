package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"github.com/wesm/open-issue-finder/internal/models"
	"github.com/wesm/open-issue-finder/internal/query"
	"golang.org/x/oauth2"
)

// FetchErrorMessage is the user-facing text for any failed issue search
const FetchErrorMessage = "Failed to fetch issues. Please try again later."

// FetchError is returned for every failed issue search, whatever the cause
type FetchError struct {
	Err error
}

// Error returns the fixed user-facing message
func (e *FetchError) Error() string {
	return FetchErrorMessage
}

// Unwrap returns the underlying cause
func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsRateLimit reports whether the underlying failure was a GitHub rate limit.
// It is a hint for display only.
func (e *FetchError) IsRateLimit() bool {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	return errors.As(e.Err, &rateErr) || errors.As(e.Err, &abuseErr)
}

// Option configures a GitHubClient
type Option func(*clientOptions)

type clientOptions struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// WithBaseURL points the client at a different API root, e.g. GitHub Enterprise or a test server
func WithBaseURL(baseURL string) Option {
	return func(o *clientOptions) { o.baseURL = baseURL }
}

// WithHTTPClient sets the transport used when no token is configured
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// GitHubClient represents a client for the GitHub API
type GitHubClient struct {
	client *github.Client
	logger *slog.Logger
}

// NewGitHubClient creates a new GitHub API client. An empty token gives an
// unauthenticated client with lower rate limits.
func NewGitHubClient(token string, opts ...Option) (*GitHubClient, error) {
	o := clientOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	tc := o.httpClient
	if token != "" {
		ctx := context.Background()
		if tc != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, tc)
		}
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		tc = oauth2.NewClient(ctx, ts)
	}

	client := github.NewClient(tc)
	if o.baseURL != "" {
		u, err := url.Parse(strings.TrimRight(o.baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("failed to parse base url: %w", err)
		}
		client.BaseURL = u
	}

	return &GitHubClient{
		client: client,
		logger: o.logger.With("component", "api.github"),
	}, nil
}

// FetchIssues performs one issue search for the given page. Items are
// returned in the order the API sent them.
func (c *GitHubClient) FetchIssues(ctx context.Context, filters models.SearchFilters, page int) ([]*models.Issue, error) {
	req := query.Build(filters, page)

	opts := &github.SearchOptions{
		Sort:  req.Sort,
		Order: req.Order,
		ListOptions: github.ListOptions{
			Page:    req.Page,
			PerPage: req.PerPage,
		},
	}

	result, _, err := c.client.Search.Issues(ctx, req.Q, opts)
	if err != nil {
		c.logger.ErrorContext(ctx, "issue search failed", "q", req.Q, "page", req.Page, "error", err)
		return nil, &FetchError{Err: fmt.Errorf("failed to search issues: %w", err)}
	}

	issues := make([]*models.Issue, 0, len(result.Issues))
	for _, issue := range result.Issues {
		issues = append(issues, ConvertGitHubIssue(issue))
	}

	c.logger.DebugContext(ctx, "issue search complete", "q", req.Q, "page", req.Page, "count", len(issues))
	return issues, nil
}

// FetchRepoDetails looks up repository metadata from an API repository URL.
// It returns nil on any failure; a missing repository means unknown health,
// not an error.
func (c *GitHubClient) FetchRepoDetails(ctx context.Context, repoURL string) *models.Repository {
	owner, name, ok := ParseRepoURL(repoURL)
	if !ok {
		c.logger.DebugContext(ctx, "unparseable repository url", "url", repoURL)
		return nil
	}

	repo, _, err := c.client.Repositories.Get(ctx, owner, name)
	if err != nil {
		c.logger.DebugContext(ctx, "repository lookup failed", "repo", owner+"/"+name, "error", err)
		return nil
	}

	return ConvertGitHubRepository(repo)
}

// ParseRepoURL extracts owner and name from the last two path segments of a
// repository URL such as https://api.github.com/repos/owner/name
func ParseRepoURL(repoURL string) (string, string, bool) {
	trimmed := strings.TrimSpace(repoURL)
	if u, err := url.Parse(trimmed); err == nil && u.Path != "" {
		trimmed = u.Path
	}
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) < 2 {
		return "", "", false
	}
	owner, name := parts[len(parts)-2], parts[len(parts)-1]
	if owner == "" || name == "" {
		return "", "", false
	}
	return owner, name, true
}

// ConvertGitHubUser converts a GitHub user to our model
func ConvertGitHubUser(user *github.User) *models.User {
	if user == nil {
		return nil
	}

	return &models.User{
		Login:     user.GetLogin(),
		AvatarURL: user.GetAvatarURL(),
	}
}

// ConvertGitHubLabel converts a GitHub label to our model
func ConvertGitHubLabel(label *github.Label) models.Label {
	return models.Label{
		ID:          label.GetID(),
		Name:        label.GetName(),
		Color:       label.GetColor(),
		Description: label.GetDescription(),
	}
}

// ConvertGitHubIssue converts a GitHub issue to our model
func ConvertGitHubIssue(issue *github.Issue) *models.Issue {
	labels := make([]models.Label, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		if l == nil {
			continue
		}
		labels = append(labels, ConvertGitHubLabel(l))
	}

	return &models.Issue{
		ID:            issue.GetID(),
		Number:        issue.GetNumber(),
		Title:         issue.GetTitle(),
		HTMLURL:       issue.GetHTMLURL(),
		State:         issue.GetState(),
		User:          ConvertGitHubUser(issue.User),
		Labels:        labels,
		RepositoryURL: issue.GetRepositoryURL(),
		CreatedAt:     issue.GetCreatedAt().Time,
		UpdatedAt:     issue.GetUpdatedAt().Time,
		Body:          issue.Body,
		Comments:      issue.GetComments(),
		IsPullRequest: issue.IsPullRequest(),
	}
}

// ConvertGitHubRepository converts a GitHub repository to our model
func ConvertGitHubRepository(repo *github.Repository) *models.Repository {
	return &models.Repository{
		FullName:        repo.GetFullName(),
		Archived:        repo.GetArchived(),
		StargazersCount: repo.GetStargazersCount(),
		PushedAt:        repo.GetPushedAt().Time,
		UpdatedAt:       repo.GetUpdatedAt().Time,
		Language:        repo.GetLanguage(),
		Description:     repo.GetDescription(),
		HTMLURL:         repo.GetHTMLURL(),
	}
}
