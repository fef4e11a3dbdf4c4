package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wesm/open-issue-finder/internal/models"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestTimeAgo(t *testing.T) {
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{30 * time.Second, "30s ago"},
		{60 * time.Second, "60s ago"},
		{90 * time.Second, "1m ago"},
		{2 * time.Hour, "2h ago"},
		{3*time.Hour + time.Second, "3h ago"},
		{50 * time.Hour, "2d ago"},
		{70 * 24 * time.Hour, "2mo ago"},
		{800 * 24 * time.Hour, "2y ago"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TimeAgo(now.Add(-tt.ago), now), tt.ago.String())
	}
	assert.Equal(t, "unknown", TimeAgo(time.Time{}, now))
	assert.Equal(t, "0s ago", TimeAgo(now.Add(time.Minute), now))
}

func TestIssue_Fallbacks(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, func() time.Time { return now }, nil)

	out := r.Issue(&models.Issue{
		Number:        7,
		Title:         "Crash on empty config",
		RepositoryURL: "https://api.github.com/repos/acme/widgets",
		CreatedAt:     now.Add(-50 * time.Hour),
	})

	assert.Contains(t, out, "acme/widgets")
	assert.Contains(t, out, "#7")
	assert.Contains(t, out, "Crash on empty config")
	assert.Contains(t, out, "by anonymous")
	assert.Contains(t, out, "2d ago")
	assert.Contains(t, out, "0 comments")
	assert.NotContains(t, out, "health")
}

func TestLabels_CollapsesExtra(t *testing.T) {
	r := New(&bytes.Buffer{}, nil, nil)
	var labels []models.Label
	for _, name := range []string{"bug", "help wanted", "good first issue", "docs", "ui", "api"} {
		labels = append(labels, models.Label{Name: name, Color: "zzzzzz"})
	}

	out := r.Labels(labels)
	assert.Contains(t, out, "docs")
	assert.NotContains(t, out, "ui")
	assert.Contains(t, out, "+2")
	assert.Equal(t, "", r.Labels(nil))
}

func TestIssues_WithScores(t *testing.T) {
	var buf bytes.Buffer
	scores := map[int64]float64{1: 88.4}
	r := New(&buf, func() time.Time { return now }, func(i *models.Issue) float64 {
		if s, ok := scores[i.ID]; ok {
			return s
		}
		return -1
	})

	r.Issues([]*models.Issue{
		{ID: 1, Title: "First", RepositoryURL: "https://api.github.com/repos/acme/a", User: &models.User{Login: "octocat"}},
		{ID: 2, Title: "Second", RepositoryURL: "https://api.github.com/repos/acme/b"},
	})

	out := buf.String()
	assert.Contains(t, out, "health 88")
	assert.Contains(t, out, "health -")
	assert.Contains(t, out, "by octocat")
	assert.Less(t, strings.Index(out, "First"), strings.Index(out, "Second"))
}

func TestIssues_Empty(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, nil, nil).Issues(nil)
	assert.Equal(t, "No issues found.\n", buf.String())
}

func TestSearches_Table(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, nil, nil).Searches([]models.SavedSearch{
		{ID: "1789", Name: "Go starters", Filters: models.SearchFilters{Language: "go", Label: "beginner"}, CreatedAt: now},
		{ID: "1790", Name: "Docs", Filters: models.SearchFilters{Query: "typo", Sort: models.SortHealth}, CreatedAt: now},
	})

	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "Go starters")
	assert.Contains(t, out, "language=go label=beginner sort=created/desc state=open")
	assert.Contains(t, out, `query="typo" sort=health/desc state=open`)
	assert.Contains(t, out, "2025-06-01")
	assert.Less(t, strings.Index(out, "1789"), strings.Index(out, "1790"))
}

func TestSearches_Empty(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, nil, nil).Searches(nil)
	assert.Equal(t, "No saved searches.\n", buf.String())
}
