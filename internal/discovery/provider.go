package discovery

import (
	"context"
	"time"
)

// Suggestion is one lexical expansion of a seed keyword.
type Suggestion struct {
	Keyword string `json:"keyword"`
}

// RankedKeyword is one keyword a competitor domain ranks for.
type RankedKeyword struct {
	Keyword  string  `json:"keyword"`
	Position float64 `json:"position,omitempty"`
}

// KeywordMetadata is one row of bulk enrichment data.
type KeywordMetadata struct {
	Keyword      string           `json:"keyword"`
	SearchVolume int64            `json:"search_volume"`
	Competition  CompetitionLevel `json:"competition_level"`
	CPC          float64          `json:"cpc"`
	Intent       Intent           `json:"intent,omitempty"`
}

// QueryPerformance is one query row of the client's search performance data.
type QueryPerformance struct {
	Keyword     string  `json:"keyword"`
	Clicks      float64 `json:"clicks"`
	Impressions float64 `json:"impressions"`
	CTR         float64 `json:"ctr"`
	Position    float64 `json:"position"`
	Intent      Intent  `json:"intent,omitempty"`
}

// PerformanceQuery selects the client's performance data. Zero dates fall back
// to the configured default window; a zero Limit falls back to the phase
// default (narrow or wide).
type PerformanceQuery struct {
	PropertyID string    `json:"property_id" yaml:"property_id"`
	StartDate  time.Time `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate    time.Time `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	Limit      int       `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// BrandTerm is a client-defined brand pattern. IsRegex terms are compiled as
// case-insensitive regular expressions.
type BrandTerm struct {
	Term    string `json:"term" yaml:"term" validate:"required"`
	IsRegex bool   `json:"is_regex" yaml:"is_regex"`
}

// SuggestionProvider expands a seed into related keywords.
type SuggestionProvider interface {
	Suggest(ctx context.Context, seed string, limit int) ([]Suggestion, error)
}

// CompetitorProvider returns the keywords a domain ranks for.
type CompetitorProvider interface {
	Rankings(ctx context.Context, domain string) ([]RankedKeyword, error)
}

// MetadataProvider returns volume, competition, CPC and intent for many
// keywords in one call.
type MetadataProvider interface {
	Metadata(ctx context.Context, keywords []string) ([]KeywordMetadata, error)
}

// PerformanceProvider returns the client's per-query search performance.
type PerformanceProvider interface {
	Queries(ctx context.Context, q PerformanceQuery) ([]QueryPerformance, error)
}

// BrandTermStore returns the brand terms registered for a client.
type BrandTermStore interface {
	Terms(ctx context.Context, clientID string) ([]BrandTerm, error)
}

// Providers bundles the external collaborators a pipeline uses. Any field may
// be nil; the matching source then contributes nothing.
type Providers struct {
	Suggestions SuggestionProvider
	Competitors CompetitorProvider
	Metadata    MetadataProvider
	Performance PerformanceProvider
	BrandTerms  BrandTermStore
}
