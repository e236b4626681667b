package discovery

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/keyword-discovery/internal/config"
	"github.com/sells-group/keyword-discovery/internal/metrics"
)

var validate = validator.New()

// Validate checks the request's structural constraints.
func (r *Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return eris.Wrap(err, "discovery: invalid request")
	}
	return nil
}

// normalize trims inputs and canonicalizes competitor domains.
func (r Request) normalize() Request {
	out := r
	out.ClientID = strings.TrimSpace(r.ClientID)
	out.Seeds = nonEmpty(r.Seeds)
	out.Competitors = make([]string, 0, len(r.Competitors))
	for _, d := range nonEmpty(r.Competitors) {
		out.Competitors = append(out.Competitors, NormalizeDomain(d))
	}
	return out
}

// Pipeline runs the discovery phases in order.
type Pipeline struct {
	providers Providers
	cfg       *config.DiscoveryConfig
	collector *Collector
	enricher  *Enricher
	crossref  *CrossReferencer
	metrics   *metrics.Recorder
}

// NewPipeline wires the phases to the given providers. rec may be nil.
func NewPipeline(p Providers, cfg *config.DiscoveryConfig, rec *metrics.Recorder) *Pipeline {
	return &Pipeline{
		providers: p,
		cfg:       cfg,
		collector: NewCollector(p, cfg),
		enricher:  NewEnricher(p.Metadata, cfg.EnrichTimeout()),
		crossref:  NewCrossReferencer(p.Performance, cfg.WindowDays, cfg.WideRowLimit, cfg.WideTimeout()),
		metrics:   rec,
	}
}

// usableSources reports whether at least one source could produce candidates.
func (p *Pipeline) usableSources(req Request) bool {
	if len(req.Seeds) > 0 {
		return true
	}
	if len(req.Competitors) > 0 && p.providers.Competitors != nil {
		return true
	}
	return req.Performance != nil && p.providers.Performance != nil
}

// Run executes collection, brand filtering, merging, enrichment,
// cross-referencing and scoring. Individual provider failures are tolerated
// and returned in Result.Failures. Run returns an error only when the request
// is invalid, no source is usable, or ctx is cancelled; a cancelled run never
// returns a partial result.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	req = req.normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	log := zap.L().With(zap.String("run_id", runID), zap.String("client_id", req.ClientID))

	if !p.usableSources(req) {
		p.metrics.RunFinished("no_sources")
		return nil, &ConfigurationError{Source: "all", Reason: "no seeds, competitors or performance access", Err: ErrNoSources}
	}

	res := &Result{RunID: runID, ClientID: req.ClientID, StartedAt: time.Now().UTC()}

	// Collect.
	start := time.Now()
	collected, err := p.collector.Collect(ctx, req)
	if err != nil {
		return nil, p.cancelled(log, PhaseCollect, err)
	}
	p.finishPhase(log, res, PhaseCollect, start, collected)

	if err := p.checkpoint(ctx, log, PhaseBrand); err != nil {
		return nil, err
	}

	// Brand filter.
	start = time.Now()
	terms := p.brandTerms(ctx, log, req)
	kept, removed := FilterBranded(collected.Candidates, terms)
	p.finishPhase(log, res, PhaseBrand, start, Outcome{Candidates: kept})
	log.Info("branded keywords removed", zap.Int("removed", removed), zap.Int("terms", len(terms)))

	if err := p.checkpoint(ctx, log, PhaseMerge); err != nil {
		return nil, err
	}

	// Merge.
	start = time.Now()
	merged := Merge(kept)
	p.finishPhase(log, res, PhaseMerge, start, Outcome{Candidates: merged})

	if err := p.checkpoint(ctx, log, PhaseEnrich); err != nil {
		return nil, err
	}

	// Enrich.
	start = time.Now()
	enriched := p.enricher.Enrich(ctx, merged)
	p.finishPhase(log, res, PhaseEnrich, start, enriched)

	if err := p.checkpoint(ctx, log, PhaseCrossRef); err != nil {
		return nil, err
	}

	// Cross-reference.
	start = time.Now()
	var wide *PerformanceQuery
	if req.Performance != nil {
		q := *req.Performance
		wide = &q
	}
	referenced := p.crossref.Apply(ctx, wide, enriched.Candidates)
	p.finishPhase(log, res, PhaseCrossRef, start, referenced)

	if err := p.checkpoint(ctx, log, PhaseScore); err != nil {
		return nil, err
	}

	// Score.
	start = time.Now()
	res.Candidates = Rank(referenced.Candidates)
	p.finishPhase(log, res, PhaseScore, start, Outcome{Candidates: res.Candidates})

	res.Stats = Summarize(res.Candidates, removed)
	res.CompletedAt = time.Now().UTC()
	p.metrics.RunFinished("completed")

	log.Info("discovery run complete",
		zap.Int("keywords", res.Stats.Total),
		zap.Int("branded_removed", res.Stats.BrandedRemoved),
		zap.Int("quick_wins", res.Stats.QuickWins),
		zap.Int("failures", len(res.Failures)),
		zap.Duration("elapsed", res.CompletedAt.Sub(res.StartedAt)),
	)
	return res, nil
}

// brandTerms merges request terms with the client's stored terms. A store
// failure is logged and the request terms are used alone.
func (p *Pipeline) brandTerms(ctx context.Context, log *zap.Logger, req Request) []BrandTerm {
	terms := append([]BrandTerm(nil), req.BrandTerms...)
	if p.providers.BrandTerms == nil || req.SkipStoreTerms {
		return terms
	}
	stored, err := p.providers.BrandTerms.Terms(ctx, req.ClientID)
	if err != nil {
		log.Warn("load brand terms failed, using request terms only", zap.Error(err))
		return terms
	}
	return append(terms, stored...)
}

func (p *Pipeline) finishPhase(log *zap.Logger, res *Result, phase string, start time.Time, out Outcome) {
	elapsed := time.Since(start)
	for _, f := range out.Failures {
		log.Warn("phase item failed",
			zap.String("phase", phase),
			zap.String("item", f.Item),
			zap.Error(f.Err),
		)
	}
	res.Failures = append(res.Failures, out.Failures...)
	p.metrics.ObservePhase(phase, elapsed, len(out.Candidates), len(out.Failures))
	log.Debug("phase complete",
		zap.String("phase", phase),
		zap.Int("candidates", len(out.Candidates)),
		zap.Int("failures", len(out.Failures)),
		zap.Duration("elapsed", elapsed),
	)
}

// checkpoint stops the run between phases when ctx is done.
func (p *Pipeline) checkpoint(ctx context.Context, log *zap.Logger, next string) error {
	if err := ctx.Err(); err != nil {
		return p.cancelled(log, next, err)
	}
	return nil
}

func (p *Pipeline) cancelled(log *zap.Logger, phase string, err error) error {
	p.metrics.RunFinished("cancelled")
	log.Info("discovery run cancelled", zap.String("phase", phase), zap.Error(err))
	return eris.Wrapf(err, "discovery: run cancelled before %s", phase)
}
