package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/keyword-discovery/internal/discovery"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2026, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []discovery.RunRecord{
		{
			ID:          "abc12345-6789-0000-0000-000000000000",
			ClientID:    "acme-hvac",
			Stats:       discovery.Stats{Total: 42, QuickWins: 5},
			Saved:       12,
			StartedAt:   now.Add(-90 * time.Second),
			CompletedAt: now,
		},
		{
			ID:          "def12345",
			ClientID:    "a-client-with-an-exceptionally-long-identifier",
			Failures:    2,
			StartedAt:   now,
			CompletedAt: now,
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "CLIENT")
	assert.Contains(t, output, "QUICK_WINS")
	assert.Contains(t, output, "abc12345 ")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "acme-hvac")
	assert.Contains(t, output, "2026-06-15 10:30")
	assert.Contains(t, output, "1m30s")
	assert.Contains(t, output, "a-client-with-an-exceptiona...")
}

func TestFormatRun(t *testing.T) {
	run := &discovery.RunRecord{
		ID:       "run-1",
		ClientID: "acme-hvac",
		Request:  discovery.Request{Seeds: []string{"a", "b"}, Competitors: []string{"rival.com"}},
		Stats:    discovery.Stats{Total: 3, BrandedRemoved: 1},
		Saved:    1,
	}
	kws := []discovery.Candidate{
		{Keyword: "furnace repair", PriorityScore: 2.75, Category: discovery.CategoryQuickWin, OpportunityType: discovery.LabelPageOneBreakthrough, SearchVolume: 500, Position: 14.6, HasClientRanking: true},
	}

	var buf bytes.Buffer
	formatRun(&buf, run, kws)
	out := buf.String()

	assert.Contains(t, out, "Client:    acme-hvac")
	assert.Contains(t, out, "Seeds:     2  Competitors: 1")
	assert.Contains(t, out, "3 found, 1 saved, 1 branded removed")
	assert.Contains(t, out, "Page 1 Breakthrough")
	assert.Contains(t, out, "14.6")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}

func newListCmd() *cobra.Command {
	c := &cobra.Command{}
	c.Flags().String("category", "", "")
	c.Flags().Float64("min-score", 0, "")
	c.Flags().Int("limit", 0, "")
	return c
}

func TestListOptsFromFlags(t *testing.T) {
	c := newListCmd()
	require.NoError(t, c.Flags().Set("category", "quick-win"))
	require.NoError(t, c.Flags().Set("min-score", "2"))
	require.NoError(t, c.Flags().Set("limit", "10"))

	opts, err := listOptsFromFlags(c)
	require.NoError(t, err)
	assert.Equal(t, discovery.CategoryQuickWin, opts.Category)
	require.NotNil(t, opts.MinScore)
	assert.InDelta(t, 2.0, *opts.MinScore, 0.001)
	assert.Equal(t, 10, opts.Limit)
}

func TestListOptsFromFlags_Defaults(t *testing.T) {
	opts, err := listOptsFromFlags(newListCmd())
	require.NoError(t, err)
	assert.Empty(t, opts.Category)
	assert.Nil(t, opts.MinScore)
}

func TestListOptsFromFlags_UnknownCategory(t *testing.T) {
	c := newListCmd()
	require.NoError(t, c.Flags().Set("category", "someday"))

	_, err := listOptsFromFlags(c)
	assert.ErrorContains(t, err, "unknown category")
}
