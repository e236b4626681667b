package discovery

import (
	"context"
	"time"
)

// Default enrichment values used when the provider fails or has no row for a
// keyword.
const (
	DefaultSearchVolume int64 = 0
	DefaultCompetition        = CompetitionUnknown
	DefaultCPC                = 0.0
	DefaultIntent             = IntentInformational
)

// Enricher bulk-fetches keyword metadata.
type Enricher struct {
	provider MetadataProvider
	timeout  time.Duration
}

// NewEnricher creates an Enricher. A nil provider degrades every candidate to
// the default enrichment values.
func NewEnricher(p MetadataProvider, timeout time.Duration) *Enricher {
	return &Enricher{provider: p, timeout: timeout}
}

// Enrich issues one bulk metadata call for every candidate and writes only the
// volume, competition, CPC and intent fields. Performance fields are never
// touched. A failed call is reported as an EnrichmentError and every
// candidate falls back to the defaults.
func (e *Enricher) Enrich(ctx context.Context, cands []Candidate) Outcome {
	if len(cands) == 0 {
		return Outcome{Candidates: []Candidate{}}
	}

	if e.provider == nil {
		return Outcome{
			Candidates: applyMetadata(cands, nil),
			Failures: []Failure{newFailure(PhaseEnrich, "metadata",
				&ConfigurationError{Source: "metadata", Reason: "no metadata provider"})},
		}
	}

	keywords := make([]string, 0, len(cands))
	seen := make(map[string]bool, len(cands))
	for _, c := range cands {
		if seen[c.CanonicalKey] {
			continue
		}
		seen[c.CanonicalKey] = true
		keywords = append(keywords, c.Keyword)
	}

	fetchCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	rows, err := e.provider.Metadata(fetchCtx, keywords)
	if err != nil {
		return Outcome{
			Candidates: applyMetadata(cands, nil),
			Failures:   []Failure{newFailure(PhaseEnrich, "", &EnrichmentError{Keywords: len(keywords), Err: err})},
		}
	}

	byKey := make(map[string]KeywordMetadata, len(rows))
	for _, r := range rows {
		key := CanonicalKey(r.Keyword)
		if _, dup := byKey[key]; dup || key == "" {
			continue
		}
		byKey[key] = r
	}
	return Outcome{Candidates: applyMetadata(cands, byKey)}
}

// applyMetadata returns copies of cands with enrichment fields set from
// byKey, or defaulted when a key has no row.
func applyMetadata(cands []Candidate, byKey map[string]KeywordMetadata) []Candidate {
	out := make([]Candidate, len(cands))
	for i, c := range cands {
		md, ok := byKey[c.CanonicalKey]
		if !ok {
			c.SearchVolume = DefaultSearchVolume
			c.Competition = DefaultCompetition
			c.CPC = DefaultCPC
			c.Enriched = false
			if c.Intent == "" {
				c.Intent = DefaultIntent
			}
			out[i] = c
			continue
		}

		c.SearchVolume = max(md.SearchVolume, 0)
		c.Competition = ParseCompetition(string(md.Competition))
		c.CPC = max(md.CPC, 0)
		c.Enriched = true
		switch {
		case md.Intent != "":
			c.Intent = md.Intent
		case c.Intent == "":
			c.Intent = DefaultIntent
		}
		out[i] = c
	}
	return out
}
