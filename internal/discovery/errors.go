package discovery

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// Phase names used in failures, logs and metrics.
const (
	PhaseCollect  = "collect"
	PhaseBrand    = "brand_filter"
	PhaseMerge    = "merge"
	PhaseEnrich   = "enrich"
	PhaseCrossRef = "cross_reference"
	PhaseScore    = "score"
)

// ErrNoSources is returned when a request has no seeds, no usable competitor
// lookups and no performance access.
var ErrNoSources = eris.New("discovery: no usable keyword sources")

// SourceFetchError is a single seed expansion or competitor lookup failure.
type SourceFetchError struct {
	Source Source
	Item   string
	Err    error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("discovery: fetch %s %q: %v", e.Source, e.Item, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }

// EnrichmentError is a failure of the bulk metadata call. Candidates fall back
// to default enrichment values.
type EnrichmentError struct {
	Keywords int
	Err      error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("discovery: enrich %d keywords: %v", e.Keywords, e.Err)
}

func (e *EnrichmentError) Unwrap() error { return e.Err }

// CrossReferenceError is a failure of the wide performance fetch. Candidates
// keep whatever performance data they already had.
type CrossReferenceError struct {
	PropertyID string
	Err        error
}

func (e *CrossReferenceError) Error() string {
	return fmt.Sprintf("discovery: cross-reference %s: %v", e.PropertyID, e.Err)
}

func (e *CrossReferenceError) Unwrap() error { return e.Err }

// ConfigurationError means a source cannot run at all, e.g. a missing
// provider or property id. Only that source is skipped.
type ConfigurationError struct {
	Source string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("discovery: %s not configured: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("discovery: %s not configured: %s", e.Source, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Failure records one tolerated error.
type Failure struct {
	Phase string `json:"phase"`
	Item  string `json:"item,omitempty"`
	Err   error  `json:"-"`
	// Message mirrors Err for serialization.
	Message string `json:"message"`
}

func newFailure(phase, item string, err error) Failure {
	return Failure{Phase: phase, Item: item, Err: err, Message: err.Error()}
}

// CountFailures returns how many failures belong to phase.
func CountFailures(failures []Failure, phase string) int {
	n := 0
	for _, f := range failures {
		if f.Phase == phase {
			n++
		}
	}
	return n
}
