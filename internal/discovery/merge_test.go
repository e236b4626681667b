package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_CaseAndWhitespace(t *testing.T) {
	in := []Candidate{
		NewCandidate("Furnace Repair", SourceManual),
		NewCandidate("  furnace repair ", SourceManual),
		NewCandidate("FURNACE REPAIR", SourceManual),
		NewCandidate("ac install", SourceManual),
	}

	out := Merge(in)
	require.Len(t, out, 2)
	assert.Equal(t, "furnace repair", out[0].CanonicalKey)
	assert.Equal(t, "Furnace Repair", out[0].Keyword)
	assert.Equal(t, "ac install", out[1].CanonicalKey)
}

func TestMerge_SourcePrecedence(t *testing.T) {
	in := []Candidate{
		NewCandidate("Heat Pump", SourceCompetitor),
		NewCandidate("heat pump", SourcePerformance),
		NewCandidate("HEAT PUMP", SourceManual),
		NewCandidate("Boiler", SourceCompetitor),
		NewCandidate("boiler", SourceCompetitor),
	}

	out := Merge(in)
	require.Len(t, out, 2)

	// Highest-priority source wins, but the key keeps its first position.
	assert.Equal(t, "HEAT PUMP", out[0].Keyword)
	assert.Equal(t, SourceManual, out[0].Source)
	// Equal priority keeps the first seen.
	assert.Equal(t, "Boiler", out[1].Keyword)
}

func TestMerge_CarriesPerformance(t *testing.T) {
	perf := NewCandidate("furnace repair", SourcePerformance).withPerformance(QueryPerformance{
		Clicks: 12, Impressions: 400, CTR: 0.03, Position: 14,
	})
	perf.Intent = IntentCommercial

	out := Merge([]Candidate{NewCandidate("Furnace Repair", SourceManual), perf})
	require.Len(t, out, 1)

	c := out[0]
	assert.Equal(t, SourceManual, c.Source)
	assert.Equal(t, "Furnace Repair", c.Keyword)
	assert.True(t, c.HasClientRanking)
	assert.InDelta(t, 14, c.Position, 0.001)
	assert.InDelta(t, 400, c.Impressions, 0.001)
	assert.Equal(t, IntentCommercial, c.Intent)
}

func TestMerge_DropsEmptyKeys(t *testing.T) {
	out := Merge([]Candidate{{Keyword: "   "}, {Keyword: "Boiler"}})
	require.Len(t, out, 1)
	assert.Equal(t, "boiler", out[0].CanonicalKey)
}

func TestSourcePriority_Order(t *testing.T) {
	assert.True(t, SourceManual.outranks(SourcePerformance))
	assert.True(t, SourcePerformance.outranks(SourceCompetitor))
	assert.False(t, SourceCompetitor.outranks(SourceManual))
	assert.True(t, SourceCompetitor.outranks(Source("other")))
	assert.False(t, SourceManual.outranks(SourceManual))
}
