// Package health scores repositories by recent activity and popularity and
// keeps those scores in a TTL cache.
package health

import (
	"math"
	"time"

	"github.com/wesm/open-issue-finder/internal/models"
)

const (
	msPerDay      = 86_400_000
	activityDays  = 365
	activityShare = 70
	starShare     = 30
)

// Score computes a 0-100 health score. Archived or unknown repositories score 0.
func Score(repo *models.Repository, now time.Time) float64 {
	if repo == nil || repo.Archived {
		return 0
	}

	activityAt := max(epochMillis(repo.PushedAt), epochMillis(repo.UpdatedAt))

	daysSinceActivity := math.Inf(1)
	if activityAt != 0 {
		daysSinceActivity = float64(now.UnixMilli()-activityAt) / msPerDay
	}

	activityScore := clamp(1-daysSinceActivity/activityDays, 0, 1)
	stars := max(repo.StargazersCount, 0)
	starScore := clamp(math.Log10(float64(stars)+1)/4, 0, 1)

	return math.Round((activityScore*activityShare+starScore*starShare)*100) / 100
}

func epochMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
