package health

import (
	"context"

	"github.com/wesm/open-issue-finder/internal/models"
	"golang.org/x/sync/errgroup"
)

// candidate is a repository selected for lookup
type candidate struct {
	fullName string
	url      string
}

// BackfillResult summarizes one pass
type BackfillResult struct {
	// Requested is the number of lookups made
	Requested int
	// Resolved is the number of repositories that were scored
	Resolved int
	// Deferred is the number of stale repositories left for a later pass
	Deferred int
	// Discarded is true when the cache was closed or the pass context was
	// cancelled before the lookups finished
	Discarded bool
}

// candidates returns the distinct repositories in issues that need a score,
// in order of first appearance, split at the pass limit
func (c *Cache) candidates(issues []*models.Issue) ([]candidate, int) {
	seen := make(map[string]bool)
	var picked []candidate
	deferred := 0

	for _, issue := range issues {
		if issue == nil || issue.RepositoryURL == "" {
			continue
		}
		key := issue.RepoFullName()
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		if !c.NeedsRefresh(key) {
			continue
		}
		if len(picked) >= c.limit {
			deferred++
			continue
		}
		picked = append(picked, candidate{fullName: key, url: issue.RepositoryURL})
	}
	return picked, deferred
}

// Backfill looks up and scores the repositories in issues that are missing
// or stale. At most the backfill limit is fetched; the rest wait for a later
// pass. Failed lookups leave the repository unscored. Results are dropped if
// ctx is cancelled or the cache is closed before the lookups complete.
func (c *Cache) Backfill(ctx context.Context, issues []*models.Issue) BackfillResult {
	picked, deferred := c.candidates(issues)
	result := BackfillResult{Requested: len(picked), Deferred: deferred}
	if len(picked) == 0 {
		return result
	}

	c.logger.DebugContext(ctx, "starting backfill", "repos", len(picked), "deferred", deferred, "workers", c.workers)

	repos := make([]*models.Repository, len(picked))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, cand := range picked {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			repos[i] = c.fetcher.FetchRepoDetails(gctx, cand.url)
			return nil
		})
	}
	_ = g.Wait()

	// the owner may have been torn down while lookups were in flight
	if c.Closed() || ctx.Err() != nil {
		c.logger.DebugContext(ctx, "discarding backfill after teardown", "repos", len(picked))
		result.Discarded = true
		return result
	}

	now := c.clock.Now()
	for i, cand := range picked {
		if repos[i] == nil {
			continue
		}
		c.Put(models.RepoHealthEntry{
			FullName:  cand.fullName,
			Score:     Score(repos[i], now),
			FetchedAt: now,
		})
		result.Resolved++
	}

	if c.persister != nil && result.Resolved > 0 {
		if err := c.persister.SaveHealth(c.Snapshot()); err != nil {
			c.logger.WarnContext(ctx, "failed to persist health cache", "error", err)
		}
	}

	c.logger.DebugContext(ctx, "backfill complete", "requested", result.Requested, "resolved", result.Resolved)
	return result
}

// StartBackfill runs Backfill in the background and calls onDone, if set,
// when it finishes
func (c *Cache) StartBackfill(ctx context.Context, issues []*models.Issue, onDone func(BackfillResult)) {
	snapshot := make([]*models.Issue, len(issues))
	copy(snapshot, issues)

	go func() {
		result := c.Backfill(ctx, snapshot)
		if onDone != nil {
			onDone(result)
		}
	}()
}
