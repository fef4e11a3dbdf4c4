package query

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wesm/open-issue-finder/internal/models"
)

func TestShareURL_RoundTrip(t *testing.T) {
	cases := []models.SearchFilters{
		{},
		{Label: "beginner", State: models.StateOpen, Sort: models.SortCreated, PerPage: 30},
		{Query: "memory leak in:title", Language: "c++", Label: "good first issue", Sort: models.SortHealth, Order: models.OrderAsc, State: models.StateAll, PerPage: 100},
		{Query: "a&b=c #frag", Language: "go"},
	}

	for _, want := range cases {
		raw, err := ShareURL("https://example.com/finder?old=1", want)
		require.NoError(t, err)

		got, err := ParseShareURL(raw)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("round trip mismatch for %s (-want +got):\n%s", raw, diff)
		}
	}
}

func TestEncodeFilters_OmitsUnset(t *testing.T) {
	v, err := EncodeFilters(models.SearchFilters{Language: "go"})
	require.NoError(t, err)

	assert.Equal(t, "language=go", v.Encode())
}

func TestShareURL_ReplacesExistingQuery(t *testing.T) {
	raw, err := ShareURL("https://example.com/?q=stale", models.SearchFilters{Label: "bug"})
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/?label=bug", raw)
}

func TestDecodeFilters_IgnoresBadPerPage(t *testing.T) {
	f, err := ParseShareURL("https://example.com/?per_page=lots&state=closed")
	require.NoError(t, err)

	assert.Equal(t, 0, f.PerPage)
	assert.Equal(t, models.StateClosed, f.State)
}

func TestShareURL_BadBase(t *testing.T) {
	_, err := ShareURL("://nope", models.SearchFilters{})
	assert.Error(t, err)
}
