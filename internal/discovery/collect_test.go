package discovery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestCollect_SeedsAndExpansions(t *testing.T) {
	sugg := &mockSuggestions{bySeed: map[string][]string{
		"furnace repair": {"furnace repair cost", "furnace repair near me"},
		"ac install":     {"ac install price"},
	}}
	c := NewCollector(Providers{Suggestions: sugg}, testDiscoveryConfig())

	out, err := c.Collect(context.Background(), Request{ClientID: "c1", Seeds: []string{"furnace repair", " ", "ac install"}})
	require.NoError(t, err)
	assert.Empty(t, out.Failures)
	assert.Equal(t, []string{
		"furnace repair", "furnace repair cost", "furnace repair near me",
		"ac install", "ac install price",
	}, keywords(out.Candidates))
	for _, cand := range out.Candidates {
		assert.Equal(t, SourceManual, cand.Source)
	}
	assert.Equal(t, 10, sugg.limitArg)
}

func TestCollect_SeedExpansionFailureIsolated(t *testing.T) {
	sugg := &mockSuggestions{
		bySeed: map[string][]string{"ac install": {"ac install price"}},
		errs:   map[string]error{"furnace repair": errors.New("quota exceeded")},
	}
	c := NewCollector(Providers{Suggestions: sugg}, testDiscoveryConfig())

	out, err := c.Collect(context.Background(), Request{Seeds: []string{"furnace repair", "ac install"}})
	require.NoError(t, err)

	// The failing seed is still a candidate; only its expansion is lost.
	assert.Equal(t, []string{"furnace repair", "ac install", "ac install price"}, keywords(out.Candidates))
	require.Len(t, out.Failures, 1)
	assert.Equal(t, PhaseCollect, out.Failures[0].Phase)
	assert.Equal(t, "furnace repair", out.Failures[0].Item)

	var sfe *SourceFetchError
	require.ErrorAs(t, out.Failures[0].Err, &sfe)
	assert.Equal(t, SourceManual, sfe.Source)
	assert.Contains(t, out.Failures[0].Message, "quota exceeded")
}

func TestCollect_SuggestionCap(t *testing.T) {
	var many []string
	for i := range 25 {
		many = append(many, fmt.Sprintf("seed variant %d", i))
	}
	cfg := testDiscoveryConfig()
	cfg.SuggestionLimit = 3
	c := NewCollector(Providers{Suggestions: &mockSuggestions{bySeed: map[string][]string{"seed": many}}}, cfg)

	out, err := c.Collect(context.Background(), Request{Seeds: []string{"seed"}})
	require.NoError(t, err)
	assert.Len(t, out.Candidates, 4)
}

func TestCollect_CompetitorCapAndFailure(t *testing.T) {
	var ranked []string
	for i := range 80 {
		ranked = append(ranked, fmt.Sprintf("competitor keyword %d", i))
	}
	comp := &mockCompetitors{
		byDomain: map[string][]string{"rival.com": ranked},
		errs:     map[string]error{"down.com": errors.New("503")},
	}
	c := NewCollector(Providers{Competitors: comp}, testDiscoveryConfig())

	out, err := c.Collect(context.Background(), Request{Competitors: []string{"https://www.rival.com/services", "down.com"}})
	require.NoError(t, err)

	assert.Len(t, out.Candidates, 50)
	assert.Equal(t, "competitor keyword 0", out.Candidates[0].Keyword)
	assert.Equal(t, SourceCompetitor, out.Candidates[0].Source)
	assert.ElementsMatch(t, []string{"rival.com", "down.com"}, comp.calls)

	require.Len(t, out.Failures, 1)
	assert.Equal(t, "down.com", out.Failures[0].Item)
}

func TestCollect_NarrowPerformanceFetch(t *testing.T) {
	perf := &mockPerformance{
		narrowLimit: 100,
		narrow: []QueryPerformance{
			{Keyword: "Furnace Repair", Clicks: 5, Impressions: 300, CTR: 0.016, Position: 13.4, Intent: IntentCommercial},
			{Keyword: ""},
		},
	}
	c := NewCollector(Providers{Performance: perf}, testDiscoveryConfig())
	c.now = func() time.Time { return time.Date(2026, 3, 15, 17, 30, 0, 0, time.UTC) }

	out, err := c.Collect(context.Background(), Request{Performance: &PerformanceQuery{PropertyID: "sc-domain:example.com"}})
	require.NoError(t, err)
	require.Len(t, out.Candidates, 1)

	cand := out.Candidates[0]
	assert.Equal(t, SourcePerformance, cand.Source)
	assert.True(t, cand.HasClientRanking)
	assert.InDelta(t, 13.4, cand.Position, 0.001)
	assert.Equal(t, IntentCommercial, cand.Intent)

	require.Len(t, perf.queries, 1)
	q := perf.queries[0]
	assert.Equal(t, 100, q.Limit)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), q.EndDate)
	assert.Equal(t, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC), q.StartDate)
}

func TestCollect_NarrowPerformanceFailure(t *testing.T) {
	perf := &mockPerformance{narrowLimit: 100, narrowErr: errors.New("permission denied")}
	c := NewCollector(Providers{Performance: perf}, testDiscoveryConfig())

	out, err := c.Collect(context.Background(), Request{
		Seeds:       []string{"boiler"},
		Performance: &PerformanceQuery{PropertyID: "sc-domain:example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"boiler"}, keywords(out.Candidates))

	// No suggestion provider, then the failed narrow fetch.
	require.Len(t, out.Failures, 2)
	var sfe *SourceFetchError
	require.ErrorAs(t, out.Failures[1].Err, &sfe)
	assert.Equal(t, SourcePerformance, sfe.Source)
}

func TestCollectPerformance_RateLimitWaitFailure(t *testing.T) {
	perf := &mockPerformance{narrowLimit: 100}
	c := NewCollector(Providers{Performance: perf}, testDiscoveryConfig())
	// One token per thousand seconds, already spent: Wait cannot finish
	// inside the deadline and fails without the context being done.
	c.limiter = rate.NewLimiter(rate.Limit(0.001), 1)
	require.True(t, c.limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	s := c.collectPerformance(ctx, PerformanceQuery{PropertyID: "sc-domain:example.com"})
	require.NoError(t, ctx.Err())
	assert.Empty(t, s.candidates)
	require.Len(t, s.failures, 1)
	assert.Equal(t, PhaseCollect, s.failures[0].Phase)

	var sfe *SourceFetchError
	require.ErrorAs(t, s.failures[0].Err, &sfe)
	assert.Equal(t, SourcePerformance, sfe.Source)
	assert.Equal(t, "sc-domain:example.com", sfe.Item)
}

func TestCollect_MissingProvidersAreConfigurationErrors(t *testing.T) {
	c := NewCollector(Providers{}, testDiscoveryConfig())

	out, err := c.Collect(context.Background(), Request{
		Seeds:       []string{"boiler"},
		Competitors: []string{"rival.com"},
		Performance: &PerformanceQuery{PropertyID: "p"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"boiler"}, keywords(out.Candidates))
	require.Len(t, out.Failures, 3)
	for _, f := range out.Failures {
		var ce *ConfigurationError
		assert.ErrorAs(t, f.Err, &ce)
	}
}

func TestCollect_DeterministicOrder(t *testing.T) {
	newCollector := func() *Collector {
		return NewCollector(Providers{
			Suggestions: &mockSuggestions{bySeed: map[string][]string{
				"a": {"a1", "a2"}, "b": {"b1"}, "c": {"c1", "c2", "c3"},
			}},
			Competitors: &mockCompetitors{byDomain: map[string][]string{
				"x.com": {"x1", "x2"}, "y.com": {"y1"},
			}},
			Performance: &mockPerformance{narrowLimit: 100, narrow: []QueryPerformance{{Keyword: "p1", Position: 4}}},
		}, testDiscoveryConfig())
	}
	req := Request{
		Seeds:       []string{"a", "b", "c"},
		Competitors: []string{"x.com", "y.com"},
		Performance: &PerformanceQuery{PropertyID: "p"},
	}

	want := []string{"a", "a1", "a2", "b", "b1", "c", "c1", "c2", "c3", "p1", "x1", "x2", "y1"}
	for range 20 {
		out, err := newCollector().Collect(context.Background(), req)
		require.NoError(t, err)
		require.Equal(t, want, keywords(out.Candidates))
	}
}

func TestCollect_Cancelled(t *testing.T) {
	sugg := &mockSuggestions{block: make(chan struct{}), bySeed: map[string][]string{}}
	c := NewCollector(Providers{Suggestions: sugg}, testDiscoveryConfig())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Collect(ctx, Request{Seeds: []string{"a", "b"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolveWindow(t *testing.T) {
	now := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)

	q := ResolveWindow(PerformanceQuery{PropertyID: "p"}, 0, 250, now)
	assert.Equal(t, time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC), q.EndDate)
	assert.Equal(t, time.Date(2026, 4, 12, 0, 0, 0, 0, time.UTC), q.StartDate)
	assert.Equal(t, 250, q.Limit)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	q = ResolveWindow(PerformanceQuery{StartDate: start, EndDate: end, Limit: 40}, 7, 250, now)
	assert.Equal(t, start, q.StartDate)
	assert.Equal(t, end, q.EndDate)
	assert.Equal(t, 40, q.Limit)
}

func TestNormalizeDomain(t *testing.T) {
	tests := map[string]string{
		"rival.com":                   "rival.com",
		"  WWW.Rival.com ":            "rival.com",
		"https://www.rival.com/a?b=c": "rival.com",
		"http://shop.rival.com":       "shop.rival.com",
		"rival.com/services/hvac#top": "rival.com",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeDomain(in), in)
	}
}
