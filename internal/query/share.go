package query

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/go-querystring/query"
	"github.com/wesm/open-issue-finder/internal/models"
)

// shareParams is the URL form of SearchFilters
type shareParams struct {
	Query    string `url:"q,omitempty"`
	Language string `url:"language,omitempty"`
	Label    string `url:"label,omitempty"`
	Sort     string `url:"sort,omitempty"`
	Order    string `url:"order,omitempty"`
	State    string `url:"state,omitempty"`
	PerPage  int    `url:"per_page,omitempty"`
}

// EncodeFilters converts filters to URL query parameters. Unset fields are omitted.
func EncodeFilters(f models.SearchFilters) (url.Values, error) {
	v, err := query.Values(shareParams{
		Query:    f.Query,
		Language: f.Language,
		Label:    f.Label,
		Sort:     string(f.Sort),
		Order:    string(f.Order),
		State:    string(f.State),
		PerPage:  f.PerPage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode filters: %w", err)
	}
	return v, nil
}

// DecodeFilters reads filters back from URL query parameters
func DecodeFilters(v url.Values) models.SearchFilters {
	f := models.SearchFilters{
		Query:    v.Get("q"),
		Language: v.Get("language"),
		Label:    v.Get("label"),
		Sort:     models.Sort(v.Get("sort")),
		Order:    models.Order(v.Get("order")),
		State:    models.State(v.Get("state")),
	}
	if n, err := strconv.Atoi(v.Get("per_page")); err == nil && n > 0 {
		f.PerPage = n
	}
	return f
}

// ShareURL returns base with the filters set as its query string
func ShareURL(base string, f models.SearchFilters) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("failed to parse base url: %w", err)
	}
	v, err := EncodeFilters(f)
	if err != nil {
		return "", err
	}
	u.RawQuery = v.Encode()
	return u.String(), nil
}

// ParseShareURL recovers the filters from a URL produced by ShareURL
func ParseShareURL(raw string) (models.SearchFilters, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return models.SearchFilters{}, fmt.Errorf("failed to parse share url: %w", err)
	}
	return DecodeFilters(u.Query()), nil
}
