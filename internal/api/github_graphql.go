package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shurcooL/githubv4"
	"github.com/wesm/open-issue-finder/internal/models"
	"golang.org/x/oauth2"
)

// GraphQLClient looks up repository metadata through the GitHub GraphQL API.
// GraphQL requires authentication, so it is only used when a token is set.
type GraphQLClient struct {
	client *githubv4.Client
	logger *slog.Logger
}

// NewGraphQLClient creates a new GraphQL client. endpoint may be empty for
// the public GitHub API.
func NewGraphQLClient(token, endpoint string, base *http.Client) *GraphQLClient {
	ctx := context.Background()
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	src := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	httpClient := oauth2.NewClient(ctx, src)

	var client *githubv4.Client
	if endpoint != "" {
		client = githubv4.NewEnterpriseClient(endpoint, httpClient)
	} else {
		client = githubv4.NewClient(httpClient)
	}
	return &GraphQLClient{
		client: client,
		logger: slog.Default().With("component", "api.graphql"),
	}
}

// repositoryHealth is the subset of repository fields health scoring needs
type repositoryHealth struct {
	NameWithOwner   githubv4.String
	IsArchived      githubv4.Boolean
	StargazerCount  githubv4.Int
	PushedAt        *githubv4.DateTime
	UpdatedAt       githubv4.DateTime
	Description     githubv4.String
	URL             githubv4.URI
	PrimaryLanguage *struct {
		Name githubv4.String
	}
}

// FetchRepoDetails has the same contract as GitHubClient.FetchRepoDetails
func (c *GraphQLClient) FetchRepoDetails(ctx context.Context, repoURL string) *models.Repository {
	owner, name, ok := ParseRepoURL(repoURL)
	if !ok {
		return nil
	}

	var q struct {
		Repository *repositoryHealth `graphql:"repository(owner: $owner, name: $name)"`
	}
	variables := map[string]interface{}{
		"owner": githubv4.String(owner),
		"name":  githubv4.String(name),
	}

	if err := c.client.Query(ctx, &q, variables); err != nil {
		c.logger.DebugContext(ctx, "repository query failed", "repo", owner+"/"+name, "error", err)
		return nil
	}
	if q.Repository == nil {
		return nil
	}

	r := q.Repository
	repo := &models.Repository{
		FullName:        string(r.NameWithOwner),
		Archived:        bool(r.IsArchived),
		StargazersCount: int(r.StargazerCount),
		UpdatedAt:       r.UpdatedAt.Time,
		Description:     string(r.Description),
	}
	if r.PushedAt != nil {
		repo.PushedAt = r.PushedAt.Time
	}
	if r.URL.URL != nil {
		repo.HTMLURL = r.URL.String()
	}
	if r.PrimaryLanguage != nil {
		repo.Language = string(r.PrimaryLanguage.Name)
	}
	return repo
}
