// Package render draws issue lists for the terminal.
package render

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/wesm/open-issue-finder/internal/models"
)

// MaxLabels is the number of labels shown per issue before collapsing to "+N"
const MaxLabels = 4

var (
	accentColor = lipgloss.Color("#4ECDC4")
	mutedColor  = lipgloss.Color("#94A3B8")
	goodColor   = lipgloss.Color("#4ADE80")
	warnColor   = lipgloss.Color("#FFA86B")
	badColor    = lipgloss.Color("#F87171")
)

// ScoreFunc returns an issue's repository health score, or a negative value if unknown
type ScoreFunc func(*models.Issue) float64

// Renderer writes styled issue rows to a writer
type Renderer struct {
	w     io.Writer
	r     *lipgloss.Renderer
	now   func() time.Time
	score ScoreFunc

	repo   lipgloss.Style
	title  lipgloss.Style
	muted  lipgloss.Style
	header lipgloss.Style
}

// New creates a renderer for w. score may be nil.
func New(w io.Writer, now func() time.Time, score ScoreFunc) *Renderer {
	r := lipgloss.NewRenderer(w)
	if now == nil {
		now = time.Now
	}
	return &Renderer{
		w:      w,
		r:      r,
		now:    now,
		score:  score,
		repo:   r.NewStyle().Bold(true).Foreground(accentColor),
		title:  r.NewStyle().Bold(true),
		muted:  r.NewStyle().Foreground(mutedColor),
		header: r.NewStyle().Bold(true).Underline(true),
	}
}

// Header prints a section header
func (r *Renderer) Header(text string) {
	fmt.Fprintln(r.w, r.header.Render(text))
}

// Issues prints one block per issue, in the given order
func (r *Renderer) Issues(issues []*models.Issue) {
	if len(issues) == 0 {
		fmt.Fprintln(r.w, r.muted.Render("No issues found."))
		return
	}
	for _, issue := range issues {
		fmt.Fprintln(r.w, r.Issue(issue))
	}
}

// Issue renders a single issue
func (r *Renderer) Issue(issue *models.Issue) string {
	now := r.now()

	head := []string{
		r.repo.Render(issue.RepoFullName()),
		r.muted.Render(fmt.Sprintf("#%d", issue.Number)),
	}
	if r.score != nil {
		head = append(head, r.Score(r.score(issue)))
	}

	meta := fmt.Sprintf("by %s · %s · %d comments",
		issue.AuthorLogin(), TimeAgo(issue.CreatedAt, now), issue.Comments)

	lines := []string{
		strings.Join(head, " "),
		"  " + r.title.Render(issue.Title),
	}
	if labels := r.Labels(issue.Labels); labels != "" {
		lines = append(lines, "  "+labels)
	}
	lines = append(lines, "  "+r.muted.Render(meta))
	if issue.HTMLURL != "" {
		lines = append(lines, "  "+r.muted.Render(issue.HTMLURL))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// Labels renders the first MaxLabels labels in their own colors plus a "+N"
// marker for the rest
func (r *Renderer) Labels(labels []models.Label) string {
	if len(labels) == 0 {
		return ""
	}
	shown := labels
	if len(shown) > MaxLabels {
		shown = shown[:MaxLabels]
	}

	parts := make([]string, 0, len(shown)+1)
	for _, l := range shown {
		style := r.r.NewStyle().Padding(0, 1)
		if validColor(l.Color) {
			style = style.Foreground(lipgloss.Color("#" + l.Color))
		}
		parts = append(parts, style.Render(l.Name))
	}
	if extra := len(labels) - len(shown); extra > 0 {
		parts = append(parts, r.muted.Render(fmt.Sprintf("+%d", extra)))
	}
	return strings.Join(parts, " ")
}

// Score renders a health score, or a dash when unknown
func (r *Renderer) Score(score float64) string {
	if score < 0 || math.IsNaN(score) {
		return r.muted.Render("health -")
	}
	color := badColor
	switch {
	case score >= 70:
		color = goodColor
	case score >= 40:
		color = warnColor
	}
	return r.r.NewStyle().Foreground(color).Render(fmt.Sprintf("health %.0f", score))
}

// Searches prints saved searches as a table
func (r *Renderer) Searches(searches []models.SavedSearch) {
	if len(searches) == 0 {
		fmt.Fprintln(r.w, r.muted.Render("No saved searches."))
		return
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(r.r.NewStyle().Foreground(mutedColor)).
		Headers("ID", "NAME", "FILTERS", "CREATED").
		StyleFunc(func(row, col int) lipgloss.Style {
			style := r.r.NewStyle().Padding(0, 1)
			switch {
			case row == table.HeaderRow:
				return style.Bold(true).Foreground(accentColor)
			case col == 0 || col == 3:
				return style.Foreground(mutedColor)
			}
			return style
		})
	for _, s := range searches {
		t.Row(s.ID, s.Name, DescribeFilters(s.Filters), s.CreatedAt.Format("2006-01-02"))
	}
	fmt.Fprintln(r.w, t.Render())
}

// DescribeFilters summarizes a search's filters with defaults applied
func DescribeFilters(f models.SearchFilters) string {
	n := f.Normalize()
	var parts []string
	if n.Query != "" {
		parts = append(parts, fmt.Sprintf("query=%q", n.Query))
	}
	if n.Language != "" {
		parts = append(parts, "language="+n.Language)
	}
	if n.Label != "" {
		parts = append(parts, "label="+n.Label)
	}
	parts = append(parts, fmt.Sprintf("sort=%s/%s", n.Sort, n.Order), "state="+string(n.State))
	return strings.Join(parts, " ")
}

func validColor(hex string) bool {
	if len(hex) != 6 {
		return false
	}
	for _, c := range hex {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}

// TimeAgo formats the age of t relative to now, e.g. "3d ago"
func TimeAgo(t, now time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	seconds := math.Floor(now.Sub(t).Seconds())
	if seconds < 0 {
		seconds = 0
	}

	units := []struct {
		size   float64
		suffix string
	}{
		{31536000, "y"},
		{2592000, "mo"},
		{86400, "d"},
		{3600, "h"},
		{60, "m"},
	}
	for _, u := range units {
		if interval := seconds / u.size; interval > 1 {
			return fmt.Sprintf("%d%s ago", int(interval), u.suffix)
		}
	}
	return fmt.Sprintf("%ds ago", int(seconds))
}
