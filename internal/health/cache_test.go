package health

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wesm/open-issue-finder/internal/models"
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	repos   map[string]*models.Repository
	block   chan struct{}
	active  atomic.Int32
	maxSeen atomic.Int32
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{calls: map[string]int{}, repos: map[string]*models.Repository{}}
}

func (f *fakeFetcher) FetchRepoDetails(_ context.Context, repoURL string) *models.Repository {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		cur := f.maxSeen.Load()
		if n <= cur || f.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[repoURL]++
	return f.repos[repoURL]
}

func (f *fakeFetcher) callCount(repoURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[repoURL]
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

type memPersister struct {
	mu      sync.Mutex
	entries map[string]models.RepoHealthEntry
	saves   int
}

func (p *memPersister) LoadHealth() map[string]models.RepoHealthEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entries
}

func (p *memPersister) SaveHealth(entries map[string]models.RepoHealthEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = entries
	p.saves++
	return nil
}

func repoURL(name string) string {
	return "https://api.github.com/repos/" + name
}

func issueIn(id int64, name string) *models.Issue {
	return &models.Issue{ID: id, RepositoryURL: repoURL(name)}
}

func TestBackfill_ScoresDistinctRepos(t *testing.T) {
	clock := clockwork.NewFakeClockAt(now)
	fetcher := newFakeFetcher()
	fetcher.repos[repoURL("acme/a")] = &models.Repository{FullName: "acme/a", PushedAt: now, StargazersCount: 9999}
	fetcher.repos[repoURL("acme/b")] = &models.Repository{FullName: "acme/b", Archived: true}

	cache, err := New(fetcher, WithClock(clock))
	require.NoError(t, err)

	result := cache.Backfill(context.Background(), []*models.Issue{
		issueIn(1, "acme/a"), issueIn(2, "acme/a"), issueIn(3, "acme/b"), issueIn(4, "acme/gone"),
	})

	assert.Equal(t, BackfillResult{Requested: 3, Resolved: 2}, result)
	assert.Equal(t, 1, fetcher.callCount(repoURL("acme/a")))

	score, ok := cache.Get("acme/a")
	assert.True(t, ok)
	assert.Equal(t, 100.0, score)

	score, ok = cache.Get("acme/b")
	assert.True(t, ok)
	assert.Equal(t, 0.0, score)

	_, ok = cache.Get("acme/gone")
	assert.False(t, ok, "failed lookups stay unscored")
}

func TestBackfill_TTL(t *testing.T) {
	clock := clockwork.NewFakeClockAt(now)
	fetcher := newFakeFetcher()
	fetcher.repos[repoURL("acme/a")] = &models.Repository{PushedAt: now}

	cache, err := New(fetcher, WithClock(clock))
	require.NoError(t, err)
	issues := []*models.Issue{issueIn(1, "acme/a")}

	cache.Backfill(context.Background(), issues)
	require.Equal(t, 1, fetcher.totalCalls())

	clock.Advance(11 * time.Hour)
	assert.False(t, cache.NeedsRefresh("acme/a"))
	cache.Backfill(context.Background(), issues)
	assert.Equal(t, 1, fetcher.totalCalls(), "entries younger than the TTL are not refetched")

	clock.Advance(time.Hour)
	assert.False(t, cache.NeedsRefresh("acme/a"), "exactly the TTL is still fresh")

	clock.Advance(time.Minute)
	assert.True(t, cache.NeedsRefresh("acme/a"))
	cache.Backfill(context.Background(), issues)
	assert.Equal(t, 2, fetcher.totalCalls())

	entry, ok := cache.Entry("acme/a")
	require.True(t, ok)
	assert.Equal(t, clock.Now(), entry.FetchedAt)
}

func TestBackfill_LimitDefersExcess(t *testing.T) {
	fetcher := newFakeFetcher()
	var issues []*models.Issue
	for i := 0; i < 25; i++ {
		name := fmt.Sprintf("acme/r%02d", i)
		fetcher.repos[repoURL(name)] = &models.Repository{PushedAt: now}
		issues = append(issues, issueIn(int64(i), name))
	}

	cache, err := New(fetcher, WithClock(clockwork.NewFakeClockAt(now)))
	require.NoError(t, err)

	first := cache.Backfill(context.Background(), issues)
	assert.Equal(t, 20, first.Requested)
	assert.Equal(t, 5, first.Deferred)
	assert.Equal(t, 20, cache.Len())

	_, ok := cache.Get("acme/r19")
	assert.True(t, ok)
	_, ok = cache.Get("acme/r20")
	assert.False(t, ok)

	second := cache.Backfill(context.Background(), issues)
	assert.Equal(t, 5, second.Requested)
	assert.Equal(t, 0, second.Deferred)
	assert.Equal(t, 25, cache.Len())
}

func TestBackfill_BoundedConcurrency(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.block = make(chan struct{})
	var issues []*models.Issue
	for i := 0; i < 12; i++ {
		issues = append(issues, issueIn(int64(i), fmt.Sprintf("acme/r%d", i)))
	}

	cache, err := New(fetcher, WithWorkers(3))
	require.NoError(t, err)

	done := make(chan BackfillResult)
	cache.StartBackfill(context.Background(), issues, func(r BackfillResult) { done <- r })

	require.Eventually(t, func() bool { return fetcher.active.Load() == 3 }, time.Second, time.Millisecond)
	close(fetcher.block)

	result := <-done
	assert.Equal(t, 12, result.Requested)
	assert.LessOrEqual(t, fetcher.maxSeen.Load(), int32(3))
}

func TestBackfill_DiscardedAfterClose(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.block = make(chan struct{})
	fetcher.repos[repoURL("acme/a")] = &models.Repository{PushedAt: now}
	persister := &memPersister{}

	cache, err := New(fetcher, WithPersister(persister))
	require.NoError(t, err)

	done := make(chan BackfillResult)
	cache.StartBackfill(context.Background(), []*models.Issue{issueIn(1, "acme/a")}, func(r BackfillResult) { done <- r })

	require.Eventually(t, func() bool { return fetcher.active.Load() == 1 }, time.Second, time.Millisecond)
	cache.Close()
	close(fetcher.block)

	result := <-done
	assert.True(t, result.Discarded)
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, 0, persister.saves)
}

func TestCache_PersistsAndReloads(t *testing.T) {
	clock := clockwork.NewFakeClockAt(now)
	fetcher := newFakeFetcher()
	fetcher.repos[repoURL("acme/a")] = &models.Repository{PushedAt: now}
	persister := &memPersister{}

	cache, err := New(fetcher, WithClock(clock), WithPersister(persister))
	require.NoError(t, err)
	cache.Backfill(context.Background(), []*models.Issue{issueIn(1, "acme/a")})
	require.Equal(t, 1, persister.saves)

	reloaded, err := New(fetcher, WithClock(clock), WithPersister(persister))
	require.NoError(t, err)
	score, ok := reloaded.Get("acme/a")
	assert.True(t, ok)
	assert.Equal(t, 70.0, score)
	assert.False(t, reloaded.NeedsRefresh("acme/a"))
}

func TestCache_CapacityKeepsNewest(t *testing.T) {
	cache, err := New(newFakeFetcher(), WithCapacity(2))
	require.NoError(t, err)

	cache.Load(map[string]models.RepoHealthEntry{
		"acme/old":    {Score: 1, FetchedAt: now.Add(-3 * time.Hour)},
		"acme/middle": {Score: 2, FetchedAt: now.Add(-2 * time.Hour)},
		"acme/new":    {Score: 3, FetchedAt: now.Add(-1 * time.Hour)},
	})

	assert.Equal(t, 2, cache.Len())
	_, ok := cache.Get("acme/old")
	assert.False(t, ok)
	snap := cache.Snapshot()
	assert.Contains(t, snap, "acme/middle")
	assert.Contains(t, snap, "acme/new")
	assert.Equal(t, "acme/new", snap["acme/new"].FullName)
}

func TestWithWorkers_Clamped(t *testing.T) {
	c, err := New(newFakeFetcher(), WithWorkers(50))
	require.NoError(t, err)
	assert.Equal(t, 10, c.workers)

	c, err = New(newFakeFetcher(), WithWorkers(0))
	require.NoError(t, err)
	assert.Equal(t, 1, c.workers)
}

func TestBackfill_DiscardedWhenOwnerCancelled(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.block = make(chan struct{})
	fetcher.repos[repoURL("acme/a")] = &models.Repository{PushedAt: now}

	cache, err := New(fetcher)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan BackfillResult)
	cache.StartBackfill(ctx, []*models.Issue{issueIn(1, "acme/a")}, func(r BackfillResult) { done <- r })

	require.Eventually(t, func() bool { return fetcher.active.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	close(fetcher.block)

	result := <-done
	assert.True(t, result.Discarded)
	_, ok := cache.Get("acme/a")
	assert.False(t, ok)
	assert.False(t, cache.Closed(), "a cancelled owner does not close the shared cache")
}
