package models

import (
	"strings"
	"time"
)

// Sort is the ordering requested for a search
type Sort string

const (
	SortCreated  Sort = "created"
	SortComments Sort = "comments"
	SortUpdated  Sort = "updated"
	// SortHealth has no server-side equivalent; it orders by repository health locally
	SortHealth Sort = "health"
)

// Valid reports whether s is a known sort value
func (s Sort) Valid() bool {
	switch s {
	case SortCreated, SortComments, SortUpdated, SortHealth:
		return true
	}
	return false
}

// Order is the sort direction
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Valid reports whether o is a known order value
func (o Order) Valid() bool {
	return o == OrderAsc || o == OrderDesc
}

// State restricts results by issue state
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
	StateAll    State = "all"
)

// Valid reports whether s is a known state value
func (s State) Valid() bool {
	switch s {
	case StateOpen, StateClosed, StateAll:
		return true
	}
	return false
}

// DefaultPerPage is used when SearchFilters.PerPage is unset
const DefaultPerPage = 30

// SearchFilters is the full set of user-facing filters for an issue search.
// Zero values mean "unset"; Normalize applies the defaults.
type SearchFilters struct {
	Query    string `json:"query,omitempty"`
	Language string `json:"language,omitempty"`
	Label    string `json:"label,omitempty"`
	Sort     Sort   `json:"sort,omitempty"`
	Order    Order  `json:"order,omitempty"`
	State    State  `json:"state,omitempty"`
	PerPage  int    `json:"per_page,omitempty"`
}

// Normalize returns a copy of f with defaults applied and invalid enum
// values replaced by their defaults
func (f SearchFilters) Normalize() SearchFilters {
	if !f.State.Valid() {
		f.State = StateOpen
	}
	if !f.Sort.Valid() {
		f.Sort = SortCreated
	}
	if !f.Order.Valid() {
		f.Order = OrderDesc
	}
	if f.PerPage <= 0 {
		f.PerPage = DefaultPerPage
	}
	return f
}

// EffectivePerPage returns the page size a request with these filters uses
func (f SearchFilters) EffectivePerPage() int {
	if f.PerPage <= 0 {
		return DefaultPerPage
	}
	return f.PerPage
}

// AnonymousLogin is shown for issues whose author is unknown
const AnonymousLogin = "anonymous"

// User represents a GitHub user
type User struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

// Label represents a GitHub label
type Label struct {
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description,omitempty"`
}

// Issue represents a GitHub issue returned by the search API.
// User and Body may be absent; use AuthorLogin and BodyText for fallbacks.
type Issue struct {
	ID            int64     `json:"id"`
	Number        int       `json:"number"`
	Title         string    `json:"title"`
	HTMLURL       string    `json:"html_url"`
	State         string    `json:"state"`
	User          *User     `json:"user"`
	Labels        []Label   `json:"labels"`
	RepositoryURL string    `json:"repository_url"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Body          *string   `json:"body"`
	Comments      int       `json:"comments"`
	IsPullRequest bool      `json:"is_pull_request,omitempty"`
}

// AuthorLogin returns the author's login or AnonymousLogin
func (i *Issue) AuthorLogin() string {
	if i.User == nil || i.User.Login == "" {
		return AnonymousLogin
	}
	return i.User.Login
}

// BodyText returns the issue body or an empty string
func (i *Issue) BodyText() string {
	if i.Body == nil {
		return ""
	}
	return *i.Body
}

// RepoFullName derives "owner/name" from the last two segments of RepositoryURL
func (i *Issue) RepoFullName() string {
	parts := strings.Split(strings.TrimRight(i.RepositoryURL, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	owner, name := parts[len(parts)-2], parts[len(parts)-1]
	if owner == "" || name == "" {
		return ""
	}
	return owner + "/" + name
}

// Repository holds the repository metadata used for health scoring
type Repository struct {
	FullName        string    `json:"full_name"`
	Archived        bool      `json:"archived"`
	StargazersCount int       `json:"stargazers_count"`
	PushedAt        time.Time `json:"pushed_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Language        string    `json:"language,omitempty"`
	Description     string    `json:"description,omitempty"`
	HTMLURL         string    `json:"html_url,omitempty"`
}

// RepoHealthEntry is a cached health score for one repository
type RepoHealthEntry struct {
	FullName  string    `json:"full_name"`
	Score     float64   `json:"score"`
	FetchedAt time.Time `json:"fetched_at"`
}

// SavedIssue is a bookmarked issue snapshot
type SavedIssue struct {
	Issue
	SavedAt time.Time `json:"saved_at"`
}

// SavedSearch is a named filter snapshot
type SavedSearch struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Filters   SearchFilters `json:"filters"`
	CreatedAt time.Time     `json:"created_at"`
}
