package discovery

import (
	"context"
	"time"
)

// CrossReferencer reconciles every candidate against a wide fetch of the
// client's performance data.
type CrossReferencer struct {
	provider   PerformanceProvider
	windowDays int
	rowLimit   int
	timeout    time.Duration
	now        func() time.Time
}

// NewCrossReferencer creates a CrossReferencer.
func NewCrossReferencer(p PerformanceProvider, windowDays, rowLimit int, timeout time.Duration) *CrossReferencer {
	if rowLimit <= 0 {
		rowLimit = 2000
	}
	return &CrossReferencer{
		provider:   p,
		windowDays: windowDays,
		rowLimit:   rowLimit,
		timeout:    timeout,
		now:        time.Now,
	}
}

// Apply fetches up to the wide row limit and, for every candidate whose
// canonical key matches a row, overwrites clicks, impressions, CTR and
// position and sets HasClientRanking. A nil query skips the phase. On a failed
// fetch the candidates are returned unchanged with a CrossReferenceError.
func (x *CrossReferencer) Apply(ctx context.Context, q *PerformanceQuery, cands []Candidate) Outcome {
	out := make([]Candidate, len(cands))
	copy(out, cands)

	if q == nil || len(cands) == 0 {
		return Outcome{Candidates: out}
	}
	if x.provider == nil {
		return Outcome{
			Candidates: out,
			Failures: []Failure{newFailure(PhaseCrossRef, q.PropertyID,
				&ConfigurationError{Source: string(SourcePerformance), Reason: "no performance provider"})},
		}
	}

	wide := *q
	wide.Limit = x.rowLimit
	wide = ResolveWindow(wide, x.windowDays, x.rowLimit, x.now())

	fetchCtx := ctx
	if x.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, x.timeout)
		defer cancel()
	}

	rows, err := x.provider.Queries(fetchCtx, wide)
	if err != nil {
		return Outcome{
			Candidates: out,
			Failures: []Failure{newFailure(PhaseCrossRef, wide.PropertyID,
				&CrossReferenceError{PropertyID: wide.PropertyID, Err: err})},
		}
	}
	if len(rows) > wide.Limit {
		rows = rows[:wide.Limit]
	}

	byKey := make(map[string]QueryPerformance, len(rows))
	for _, r := range rows {
		key := CanonicalKey(r.Keyword)
		if _, dup := byKey[key]; dup || key == "" {
			continue
		}
		byKey[key] = r
	}

	for i, c := range out {
		if row, ok := byKey[c.CanonicalKey]; ok {
			out[i] = c.withPerformance(row)
		}
	}
	return Outcome{Candidates: out}
}
