// Package feed owns the paginated issue result set for one view: it turns
// filter changes into searches, debounces free-text queries and pages
// through results.
package feed

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/wesm/open-issue-finder/internal/api"
	"github.com/wesm/open-issue-finder/internal/health"
	"github.com/wesm/open-issue-finder/internal/models"
)

// DefaultDebounce is the quiet period before a query change triggers a search
const DefaultDebounce = 300 * time.Millisecond

// unscored sorts issues without a known health score after scored ones
const unscored = -1.0

// Searcher fetches one page of issues
type Searcher interface {
	FetchIssues(ctx context.Context, filters models.SearchFilters, page int) ([]*models.Issue, error)
}

// ScoreCache provides repository health scores and fills them in the background
type ScoreCache interface {
	Get(fullName string) (float64, bool)
	StartBackfill(ctx context.Context, issues []*models.Issue, onDone func(health.BackfillResult))
}

// State is a snapshot of the controller's result set
type State struct {
	Issues      []*models.Issue
	Loading     bool
	LoadingMore bool
	// Error is the user-facing message of the last failed fetch, or empty
	Error   string
	Page    int
	HasMore bool
}

// Option configures a Controller
type Option func(*Controller)

// WithClock sets the clock used for debouncing
func WithClock(c clockwork.Clock) Option {
	return func(ctrl *Controller) { ctrl.clock = c }
}

// WithDebounce sets the query debounce delay
func WithDebounce(d time.Duration) Option {
	return func(ctrl *Controller) {
		if d > 0 {
			ctrl.delay = d
		}
	}
}

// WithHealth enables health backfill and health ordering
func WithHealth(cache ScoreCache) Option {
	return func(ctrl *Controller) { ctrl.health = cache }
}

// WithOnChange registers a listener called with a snapshot after every state change
func WithOnChange(fn func(State)) Option {
	return func(ctrl *Controller) { ctrl.onChange = fn }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(ctrl *Controller) { ctrl.logger = l }
}

// Controller is the only writer of a view's issue list and paging state
type Controller struct {
	searcher Searcher
	health   ScoreCache
	clock    clockwork.Clock
	delay    time.Duration
	onChange func(State)
	logger   *slog.Logger
	debounce *Debouncer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	notifyMu sync.Mutex

	mu           sync.Mutex
	mounted      bool
	closed       bool
	active       models.SearchFilters
	pendingQuery string
	state        State
	generation   uint64
	cancelFetch  context.CancelFunc
}

// New creates a controller. Nothing is fetched until the first SetFilters.
func New(searcher Searcher, opts ...Option) *Controller {
	c := &Controller{
		searcher: searcher,
		clock:    clockwork.NewRealClock(),
		delay:    DefaultDebounce,
		logger:   slog.Default(),
		state:    State{Issues: []*models.Issue{}, Page: 1},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "feed.controller")
	c.debounce = NewDebouncer(c.clock, c.delay)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// SetFilters applies a new filter set. The first call fetches immediately
// with all fields. Afterwards, changes to any field except Query fetch
// immediately, and Query changes fetch once the query has been stable for
// the debounce delay.
func (c *Controller) SetFilters(f models.SearchFilters) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	if !c.mounted {
		c.mounted = true
		c.active = f
		c.pendingQuery = f.Query
		c.startPrimaryLocked()
		c.mu.Unlock()
		c.notify()
		return
	}

	nonQuery := f
	nonQuery.Query = c.active.Query
	changed := nonQuery != c.active
	if changed {
		c.active = nonQuery
		c.startPrimaryLocked()
	}

	if f.Query != c.pendingQuery {
		c.pendingQuery = f.Query
		query := f.Query
		c.debounce.Trigger(func() { c.applyQuery(query) })
	}
	c.mu.Unlock()

	if changed {
		c.notify()
	}
}

func (c *Controller) applyQuery(query string) {
	c.mu.Lock()
	if c.closed || query == c.active.Query {
		c.mu.Unlock()
		return
	}
	c.active.Query = query
	c.startPrimaryLocked()
	c.mu.Unlock()
	c.notify()
}

// Filters returns the filters currently in effect, with the debounced query
func (c *Controller) Filters() models.SearchFilters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Refresh refetches the first page with the current filters
func (c *Controller) Refresh() {
	c.mu.Lock()
	if c.closed || !c.mounted {
		c.mu.Unlock()
		return
	}
	c.startPrimaryLocked()
	c.mu.Unlock()
	c.notify()
}

// startPrimaryLocked supersedes any in-flight fetch and loads page 1. c.mu must be held.
func (c *Controller) startPrimaryLocked() {
	if c.cancelFetch != nil {
		c.cancelFetch()
	}
	c.generation++
	gen := c.generation
	filters := c.active

	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelFetch = cancel

	c.state.Loading = true
	c.state.LoadingMore = false
	c.state.Error = ""
	c.state.Page = 1

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()

		issues, err := c.searcher.FetchIssues(ctx, filters, 1)

		c.mu.Lock()
		if c.closed || gen != c.generation {
			c.mu.Unlock()
			return
		}
		c.state.Loading = false
		c.state.Page = 1
		if err != nil {
			c.logger.Warn("issue fetch failed", "error", err)
			c.state.Error = api.FetchErrorMessage
			c.state.Issues = []*models.Issue{}
			c.state.HasMore = false
			c.mu.Unlock()
			c.notify()
			return
		}
		c.state.Issues = dedupe(nil, issues)
		c.state.HasMore = len(issues) == filters.EffectivePerPage()
		current := c.state.Issues
		c.mu.Unlock()

		c.notify()
		c.backfill(current)
	}()
}

// LoadMore fetches the next page and appends it. It reports whether a fetch
// was started; it does nothing while another fetch is in flight or when the
// last page was short.
func (c *Controller) LoadMore() bool {
	c.mu.Lock()
	if c.closed || !c.mounted || c.state.Loading || c.state.LoadingMore || !c.state.HasMore {
		c.mu.Unlock()
		return false
	}

	gen := c.generation
	filters := c.active
	nextPage := c.state.Page + 1
	c.state.LoadingMore = true
	c.state.Error = ""

	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelFetch = cancel
	c.mu.Unlock()
	c.notify()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()

		issues, err := c.searcher.FetchIssues(ctx, filters, nextPage)

		c.mu.Lock()
		if c.closed || gen != c.generation {
			c.mu.Unlock()
			return
		}
		c.state.LoadingMore = false
		if err != nil {
			// the pages already shown stay visible
			c.logger.Warn("load more failed", "page", nextPage, "error", err)
			c.state.Error = api.FetchErrorMessage
			c.mu.Unlock()
			c.notify()
			return
		}
		c.state.Issues = dedupe(c.state.Issues, issues)
		c.state.Page = nextPage
		c.state.HasMore = len(issues) == filters.EffectivePerPage()
		current := c.state.Issues
		c.mu.Unlock()

		c.notify()
		c.backfill(current)
	}()
	return true
}

// dedupe appends the issues of next not already in list to a copy of list
func dedupe(list, next []*models.Issue) []*models.Issue {
	out := make([]*models.Issue, 0, len(list)+len(next))
	seen := make(map[int64]bool, len(list)+len(next))
	for _, issue := range list {
		seen[issue.ID] = true
		out = append(out, issue)
	}
	for _, issue := range next {
		if issue == nil || seen[issue.ID] {
			continue
		}
		seen[issue.ID] = true
		out = append(out, issue)
	}
	return out
}

func (c *Controller) backfill(issues []*models.Issue) {
	if c.health == nil {
		return
	}
	c.wg.Add(1)
	c.health.StartBackfill(c.ctx, issues, func(r health.BackfillResult) {
		defer c.wg.Done()
		if r.Discarded || r.Resolved == 0 {
			return
		}
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if !closed {
			c.notify()
		}
	})
}

// State returns a snapshot of the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() State {
	s := c.state
	s.Issues = make([]*models.Issue, len(c.state.Issues))
	copy(s.Issues, c.state.Issues)
	return s
}

// DisplayIssues returns the issues in display order. With the health sort
// they are ordered by descending repository health, unknown scores last and
// ties in fetch order; otherwise the server order is kept.
func (c *Controller) DisplayIssues() []*models.Issue {
	c.mu.Lock()
	issues := c.snapshotLocked().Issues
	sortBy := c.active.Sort
	c.mu.Unlock()

	if sortBy != models.SortHealth {
		return issues
	}

	scores := make(map[*models.Issue]float64, len(issues))
	for _, issue := range issues {
		scores[issue] = c.Score(issue)
	}
	sort.SliceStable(issues, func(i, j int) bool {
		return scores[issues[i]] > scores[issues[j]]
	})
	return issues
}

// Score returns the health score of an issue's repository, or -1 if unknown
func (c *Controller) Score(issue *models.Issue) float64 {
	if c.health == nil {
		return unscored
	}
	if score, ok := c.health.Get(issue.RepoFullName()); ok {
		return score
	}
	return unscored
}

func (c *Controller) notify() {
	if c.onChange == nil {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	s := c.snapshotLocked()
	c.mu.Unlock()

	c.onChange(s)
}

// Wait blocks until in-flight fetches and backfills started by the
// controller have finished
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close tears the controller down. Pending debounced queries are dropped and
// results that arrive afterwards are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.debounce.Stop()
	c.cancel()
}
