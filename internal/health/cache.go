package health

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
	"github.com/wesm/open-issue-finder/internal/models"
)

const (
	// DefaultTTL is how long a score stays fresh
	DefaultTTL = 12 * time.Hour
	// DefaultBackfillLimit caps the lookups made by one backfill pass
	DefaultBackfillLimit = 20
	// DefaultWorkers is the number of concurrent lookups in a pass
	DefaultWorkers = 5
	// DefaultCapacity bounds the number of cached repositories
	DefaultCapacity = 5000

	maxWorkers = 10
)

// RepoFetcher looks up repository metadata. Implementations return nil when
// the repository cannot be resolved.
type RepoFetcher interface {
	FetchRepoDetails(ctx context.Context, repoURL string) *models.Repository
}

// Persister stores cache snapshots between runs
type Persister interface {
	LoadHealth() map[string]models.RepoHealthEntry
	SaveHealth(entries map[string]models.RepoHealthEntry) error
}

// Option configures a Cache
type Option func(*Cache)

// WithClock sets the clock used for TTL checks and scoring
func WithClock(c clockwork.Clock) Option {
	return func(cache *Cache) { cache.clock = c }
}

// WithTTL sets how long entries stay fresh
func WithTTL(ttl time.Duration) Option {
	return func(cache *Cache) {
		if ttl > 0 {
			cache.ttl = ttl
		}
	}
}

// WithBackfillLimit sets the maximum lookups per pass
func WithBackfillLimit(n int) Option {
	return func(cache *Cache) {
		if n > 0 {
			cache.limit = n
		}
	}
}

// WithWorkers sets the number of concurrent lookups, capped at 10
func WithWorkers(n int) Option {
	return func(cache *Cache) {
		if n < 1 {
			n = 1
		}
		if n > maxWorkers {
			n = maxWorkers
		}
		cache.workers = n
	}
}

// WithCapacity sets the maximum number of cached repositories
func WithCapacity(n int) Option {
	return func(cache *Cache) {
		if n > 0 {
			cache.capacity = n
		}
	}
}

// WithPersister loads entries from p and saves a snapshot after every pass
func WithPersister(p Persister) Option {
	return func(cache *Cache) { cache.persister = p }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(cache *Cache) { cache.logger = l }
}

// Cache maps repository full names to health scores
type Cache struct {
	entries   *lru.Cache[string, models.RepoHealthEntry]
	fetcher   RepoFetcher
	persister Persister
	clock     clockwork.Clock
	logger    *slog.Logger

	ttl      time.Duration
	limit    int
	workers  int
	capacity int

	closed atomic.Bool
}

// New creates a cache that resolves repositories through fetcher
func New(fetcher RepoFetcher, opts ...Option) (*Cache, error) {
	c := &Cache{
		fetcher:  fetcher,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
		ttl:      DefaultTTL,
		limit:    DefaultBackfillLimit,
		workers:  DefaultWorkers,
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "health.cache")

	entries, err := lru.New[string, models.RepoHealthEntry](c.capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create health cache: %w", err)
	}
	c.entries = entries

	if c.persister != nil {
		c.Load(c.persister.LoadHealth())
	}

	return c, nil
}

// Load adds entries to the cache, oldest first so the newest survive eviction
func (c *Cache) Load(entries map[string]models.RepoHealthEntry) {
	list := make([]models.RepoHealthEntry, 0, len(entries))
	for key, e := range entries {
		if e.FullName == "" {
			e.FullName = key
		}
		list = append(list, e)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].FetchedAt.Before(list[j].FetchedAt)
	})
	for _, e := range list {
		c.entries.Add(e.FullName, e)
	}
}

// Get returns the cached score for a repository, stale or not
func (c *Cache) Get(fullName string) (float64, bool) {
	e, ok := c.entries.Get(fullName)
	if !ok {
		return 0, false
	}
	return e.Score, true
}

// Entry returns the cached entry for a repository
func (c *Cache) Entry(fullName string) (models.RepoHealthEntry, bool) {
	return c.entries.Peek(fullName)
}

// NeedsRefresh reports whether a repository is missing or older than the TTL
func (c *Cache) NeedsRefresh(fullName string) bool {
	e, ok := c.entries.Peek(fullName)
	if !ok {
		return true
	}
	return c.clock.Now().Sub(e.FetchedAt) > c.ttl
}

// Put stores an entry
func (c *Cache) Put(e models.RepoHealthEntry) {
	c.entries.Add(e.FullName, e)
}

// Len returns the number of cached repositories
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Snapshot returns a copy of all entries
func (c *Cache) Snapshot() map[string]models.RepoHealthEntry {
	out := make(map[string]models.RepoHealthEntry, c.entries.Len())
	for _, key := range c.entries.Keys() {
		if e, ok := c.entries.Peek(key); ok {
			out[key] = e
		}
	}
	return out
}

// Close marks the cache as torn down. Passes completing afterwards discard
// their results.
func (c *Cache) Close() {
	c.closed.Store(true)
}

// Closed reports whether Close has been called
func (c *Cache) Closed() bool {
	return c.closed.Load()
}
