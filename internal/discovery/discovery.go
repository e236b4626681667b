// Package discovery implements keyword discovery and prioritization: it collects
// candidates from manual seeds, competitor rankings and the client's search
// performance data, removes branded queries, merges duplicates, enriches them in
// bulk and scores each one into an opportunity category.
package discovery

import (
	"strings"
	"time"
)

// Source is the provenance of a candidate.
type Source string

const (
	SourceManual      Source = "manual"
	SourcePerformance Source = "performance"
	SourceCompetitor  Source = "competitor"
)

// SourcePriority decides which record wins when the same canonical key arrives
// from different sources. Lower value wins.
var SourcePriority = map[Source]int{
	SourceManual:      0,
	SourcePerformance: 1,
	SourceCompetitor:  2,
}

// outranks reports whether a takes precedence over b.
func (a Source) outranks(b Source) bool {
	pa, ok := SourcePriority[a]
	if !ok {
		pa = len(SourcePriority)
	}
	pb, ok := SourcePriority[b]
	if !ok {
		pb = len(SourcePriority)
	}
	return pa < pb
}

// CompetitionLevel is the paid-search competition bucket reported by the
// metadata provider.
type CompetitionLevel string

const (
	CompetitionLow     CompetitionLevel = "LOW"
	CompetitionMedium  CompetitionLevel = "MEDIUM"
	CompetitionHigh    CompetitionLevel = "HIGH"
	CompetitionUnknown CompetitionLevel = "UNKNOWN"
)

// ParseCompetition normalizes a provider competition label. Anything
// unrecognized maps to CompetitionUnknown.
func ParseCompetition(s string) CompetitionLevel {
	switch CompetitionLevel(strings.ToUpper(strings.TrimSpace(s))) {
	case CompetitionLow:
		return CompetitionLow
	case CompetitionMedium:
		return CompetitionMedium
	case CompetitionHigh:
		return CompetitionHigh
	default:
		return CompetitionUnknown
	}
}

// Intent is the search intent of a keyword.
type Intent string

const (
	IntentInformational Intent = "informational"
	IntentNavigational  Intent = "navigational"
	IntentTransactional Intent = "transactional"
	IntentCommercial    Intent = "commercial"
)

// ParseIntent normalizes a provider intent label. Unknown labels return "".
func ParseIntent(s string) Intent {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentInformational:
		return IntentInformational
	case IntentNavigational:
		return IntentNavigational
	case IntentTransactional:
		return IntentTransactional
	case IntentCommercial:
		return IntentCommercial
	default:
		return ""
	}
}

// Category is the actionable opportunity bucket assigned by the scorer.
type Category string

const (
	CategoryQuickWin       Category = "quick-win"
	CategoryPositionBoost  Category = "position-boost"
	CategoryNewOpportunity Category = "new-opportunity"
	CategoryLongTerm       Category = "long-term"
)

// Categories lists every valid category.
var Categories = []Category{CategoryQuickWin, CategoryPositionBoost, CategoryNewOpportunity, CategoryLongTerm}

// Candidate is one keyword moving through the pipeline. It is passed by value;
// every phase returns updated copies rather than mutating its input.
type Candidate struct {
	CanonicalKey string `json:"canonical_key"`
	Keyword      string `json:"keyword"`
	Source       Source `json:"source"`

	SearchVolume int64            `json:"search_volume"`
	Competition  CompetitionLevel `json:"competition_level"`
	CPC          float64          `json:"cpc"`
	Intent       Intent           `json:"intent,omitempty"`
	Enriched     bool             `json:"enriched"`

	Clicks           float64 `json:"clicks"`
	Impressions      float64 `json:"impressions"`
	CTR              float64 `json:"ctr"`
	Position         float64 `json:"position,omitempty"`
	HasClientRanking bool    `json:"has_client_ranking"`

	PriorityScore   float64  `json:"priority_score"`
	Category        Category `json:"priority_category,omitempty"`
	OpportunityType string   `json:"opportunity_type,omitempty"`
}

// CanonicalKey returns the identity used for deduplication: the keyword text
// lowercased and trimmed.
func CanonicalKey(keyword string) string {
	return strings.ToLower(strings.TrimSpace(keyword))
}

// NewCandidate builds a raw candidate from keyword text.
func NewCandidate(keyword string, source Source) Candidate {
	return Candidate{
		CanonicalKey: CanonicalKey(keyword),
		Keyword:      strings.TrimSpace(keyword),
		Source:       source,
	}
}

// hasPerformance reports whether the candidate carries client ranking data.
func (c Candidate) hasPerformance() bool {
	return c.HasClientRanking
}

// withPerformance returns a copy of c carrying the given performance metrics.
func (c Candidate) withPerformance(p QueryPerformance) Candidate {
	c.Clicks = p.Clicks
	c.Impressions = p.Impressions
	c.CTR = p.CTR
	c.Position = p.Position
	c.HasClientRanking = true
	return c
}

// Request describes one discovery run.
type Request struct {
	ClientID       string            `json:"client_id" yaml:"client_id" validate:"required"`
	Seeds          []string          `json:"seeds" yaml:"seeds" validate:"dive,max=200"`
	Competitors    []string          `json:"competitors" yaml:"competitors" validate:"dive,hostname_rfc1123"`
	BrandTerms     []BrandTerm       `json:"brand_terms" yaml:"brand_terms" validate:"dive"`
	Performance    *PerformanceQuery `json:"performance,omitempty" yaml:"performance,omitempty"`
	SkipStoreTerms bool              `json:"skip_store_terms,omitempty" yaml:"skip_store_terms,omitempty"`
}

// Stats holds the aggregate counters for a finished run.
type Stats struct {
	Total               int              `json:"total"`
	BrandedRemoved      int              `json:"branded_removed"`
	CommercialIntent    int              `json:"commercial_intent"`
	InformationalIntent int              `json:"informational_intent"`
	QuickWins           int              `json:"quick_wins"`
	ByCategory          map[Category]int `json:"by_category"`
	BySource            map[Source]int   `json:"by_source"`
}

// Result is the output of a discovery run: candidates scored and sorted by
// descending priority, the aggregate stats and every non-fatal failure.
type Result struct {
	RunID       string      `json:"run_id"`
	ClientID    string      `json:"client_id"`
	Candidates  []Candidate `json:"candidates"`
	Stats       Stats       `json:"stats"`
	Failures    []Failure   `json:"failures,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt time.Time   `json:"completed_at"`
}

// Outcome is what every phase returns: the candidates it produced and the
// per-item failures it tolerated.
type Outcome struct {
	Candidates []Candidate
	Failures   []Failure
}
