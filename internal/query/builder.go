// Package query turns search filters into GitHub issue search requests.
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wesm/open-issue-finder/internal/models"
)

// Request holds the parameters for one search API call
type Request struct {
	Q       string
	Sort    string
	Order   string
	PerPage int
	Page    int
}

// labelVariants maps a semantic label key to the label strings used for it
// across GitHub projects
var labelVariants = map[string][]string{
	"beginner": {
		"good first issue",
		"good-first-issue",
		"beginner",
		"beginner friendly",
		"easy",
		"starter",
		"first-timers-only",
		"up-for-grabs",
	},
	"help_wanted": {"help wanted", "help-wanted"},
	"docs":        {"documentation", "docs"},
	"enhancement": {"enhancement", "feature", "feature request"},
	"bug":         {"bug", "type: bug"},
}

// KnownLabels returns the semantic label keys, sorted
func KnownLabels() []string {
	keys := make([]string, 0, len(labelVariants))
	for k := range labelVariants {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ExpandLabel returns the provider label strings a label matches. Unknown
// labels expand to themselves; an empty label expands to nothing.
func ExpandLabel(label string) []string {
	normalized := strings.ToLower(strings.TrimSpace(label))
	if normalized == "" {
		return nil
	}
	if variants, ok := labelVariants[normalized]; ok {
		out := make([]string, len(variants))
		copy(out, variants)
		return out
	}
	return []string{label}
}

// quoteLabel wraps a label in double quotes, leaving its text untouched
func quoteLabel(label string) string {
	return "label:\"" + label + "\""
}

func labelClause(label string) string {
	normalized := strings.ToLower(strings.TrimSpace(label))
	if normalized == "" {
		return ""
	}

	variants, ok := labelVariants[normalized]
	if !ok {
		return quoteLabel(label)
	}
	if len(variants) == 1 {
		return quoteLabel(variants[0])
	}

	parts := make([]string, len(variants))
	for i, v := range variants {
		parts[i] = quoteLabel(v)
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// Build translates filters into a search request for the given page
func Build(filters models.SearchFilters, page int) Request {
	f := filters.Normalize()

	var b strings.Builder
	fmt.Fprintf(&b, "is:%s is:issue", f.State)

	if clause := labelClause(f.Label); clause != "" {
		b.WriteString(" " + clause)
	}
	if f.Language != "" {
		b.WriteString(" language:" + f.Language)
	}
	if f.Query != "" {
		b.WriteString(" " + f.Query)
	}
	b.WriteString(" archived:false")

	sortBy := f.Sort
	if sortBy == models.SortHealth {
		sortBy = models.SortUpdated
	}

	if page <= 0 {
		page = 1
	}

	return Request{
		Q:       b.String(),
		Sort:    string(sortBy),
		Order:   string(f.Order),
		PerPage: f.PerPage,
		Page:    page,
	}
}
