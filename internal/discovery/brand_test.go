package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBranded(t *testing.T) {
	terms := []BrandTerm{
		{Term: "Acme"},
		{Term: `^cool\s?air\b`, IsRegex: true},
	}

	tests := []struct {
		keyword string
		want    bool
	}{
		{"acme hvac near me", true},
		{"ACME furnace", true},
		{"best acmefurnace", true},
		{"cool air repair", true},
		{"CoolAir reviews", true},
		{"super cool air", false},
		{"furnace repair", false},
	}
	for _, tt := range tests {
		t.Run(tt.keyword, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBranded(tt.keyword, terms))
		})
	}
}

func TestIsBranded_InvalidRegexFallsBackToSubstring(t *testing.T) {
	terms := []BrandTerm{{Term: "acme(", IsRegex: true}}

	assert.True(t, IsBranded("ACME( heating", terms))
	assert.False(t, IsBranded("acme heating", terms))
}

func TestIsBranded_EmptyTermsNeverMatch(t *testing.T) {
	assert.False(t, IsBranded("anything", nil))
	assert.False(t, IsBranded("anything", []BrandTerm{{Term: "  "}}))
}

func TestFilterBranded(t *testing.T) {
	in := []Candidate{
		NewCandidate("acme repair", SourceManual),
		NewCandidate("furnace repair", SourceCompetitor),
		NewCandidate("Acme Reviews", SourcePerformance),
		NewCandidate("ac install", SourceCompetitor),
	}

	kept, removed := FilterBranded(in, []BrandTerm{{Term: "acme"}})
	assert.Equal(t, 2, removed)
	assert.Equal(t, []string{"furnace repair", "ac install"}, keywords(kept))
	assert.Len(t, in, 4)
}

func TestFilterBranded_NoTerms(t *testing.T) {
	in := []Candidate{NewCandidate("furnace repair", SourceManual)}
	kept, removed := FilterBranded(in, nil)
	assert.Zero(t, removed)
	assert.Equal(t, in, kept)
}
