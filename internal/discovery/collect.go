package discovery

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/keyword-discovery/internal/config"
)

// Collector gathers raw candidates from the three keyword sources.
type Collector struct {
	providers Providers
	cfg       *config.DiscoveryConfig
	limiter   *rate.Limiter
	now       func() time.Time
}

// NewCollector creates a Collector. A non-positive ProviderRateLimit disables
// rate limiting.
func NewCollector(p Providers, cfg *config.DiscoveryConfig) *Collector {
	var limiter *rate.Limiter
	if cfg.ProviderRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.ProviderRateLimit), 1)
	}
	return &Collector{
		providers: p,
		cfg:       cfg,
		limiter:   limiter,
		now:       time.Now,
	}
}

// slot is the private accumulator of one worker.
type slot struct {
	candidates []Candidate
	failures   []Failure
}

// Collect fetches seed expansions, competitor rankings and the narrow
// performance export concurrently. Per-item failures are recorded in the
// outcome; only context cancellation returns an error.
func (c *Collector) Collect(ctx context.Context, req Request) (Outcome, error) {
	seeds := nonEmpty(req.Seeds)
	competitors := make([]string, 0, len(req.Competitors))
	for _, d := range nonEmpty(req.Competitors) {
		competitors = append(competitors, NormalizeDomain(d))
	}

	seedSlots := make([]slot, len(seeds))
	compSlots := make([]slot, len(competitors))
	var perfSlot slot
	var configFailures []Failure

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency())

	for i, seed := range seeds {
		seedSlots[i].candidates = append(seedSlots[i].candidates, NewCandidate(seed, SourceManual))
	}
	if len(seeds) > 0 && c.providers.Suggestions == nil {
		configFailures = append(configFailures, newFailure(PhaseCollect, "suggestions",
			&ConfigurationError{Source: "suggestions", Reason: "no suggestion provider"}))
	}

	if req.Performance != nil {
		if c.providers.Performance == nil {
			configFailures = append(configFailures, newFailure(PhaseCollect, "performance",
				&ConfigurationError{Source: string(SourcePerformance), Reason: "no performance provider"}))
		} else {
			q := ResolveWindow(*req.Performance, c.cfg.WindowDays, c.cfg.NarrowRowLimit, c.now())
			g.Go(func() error {
				perfSlot = c.collectPerformance(gctx, q)
				return gctx.Err()
			})
		}
	}

	if len(competitors) > 0 && c.providers.Competitors == nil {
		configFailures = append(configFailures, newFailure(PhaseCollect, "competitors",
			&ConfigurationError{Source: string(SourceCompetitor), Reason: "no competitor ranking provider"}))
		competitors = nil
	}

	if c.providers.Suggestions != nil {
		for i, seed := range seeds {
			g.Go(func() error {
				expanded, err := c.expandSeed(gctx, seed)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					seedSlots[i].failures = append(seedSlots[i].failures, newFailure(PhaseCollect, seed, err))
					return nil
				}
				seedSlots[i].candidates = append(seedSlots[i].candidates, expanded...)
				return nil
			})
		}
	}

	for i, domain := range competitors {
		g.Go(func() error {
			ranked, err := c.competitorKeywords(gctx, domain)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				compSlots[i].failures = append(compSlots[i].failures, newFailure(PhaseCollect, domain, err))
				return nil
			}
			compSlots[i].candidates = ranked
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Outcome{}, eris.Wrap(err, "collect: wait for workers")
	}

	out := Outcome{Failures: configFailures}
	for _, s := range seedSlots {
		out.Candidates = append(out.Candidates, s.candidates...)
		out.Failures = append(out.Failures, s.failures...)
	}
	out.Candidates = append(out.Candidates, perfSlot.candidates...)
	out.Failures = append(out.Failures, perfSlot.failures...)
	for _, s := range compSlots {
		out.Candidates = append(out.Candidates, s.candidates...)
		out.Failures = append(out.Failures, s.failures...)
	}
	return out, nil
}

func (c *Collector) expandSeed(ctx context.Context, seed string) ([]Candidate, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	limit := c.cfg.SuggestionLimit
	suggestions, err := c.providers.Suggestions.Suggest(ctx, seed, limit)
	if err != nil {
		return nil, &SourceFetchError{Source: SourceManual, Item: seed, Err: err}
	}
	if limit > 0 && len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	out := make([]Candidate, 0, len(suggestions))
	for _, s := range suggestions {
		if strings.TrimSpace(s.Keyword) == "" {
			continue
		}
		out = append(out, NewCandidate(s.Keyword, SourceManual))
	}
	return out, nil
}

func (c *Collector) competitorKeywords(ctx context.Context, domain string) ([]Candidate, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	ranked, err := c.providers.Competitors.Rankings(ctx, domain)
	if err != nil {
		return nil, &SourceFetchError{Source: SourceCompetitor, Item: domain, Err: err}
	}
	if limit := c.cfg.CompetitorLimit; limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]Candidate, 0, len(ranked))
	for _, r := range ranked {
		if strings.TrimSpace(r.Keyword) == "" {
			continue
		}
		out = append(out, NewCandidate(r.Keyword, SourceCompetitor))
	}
	return out, nil
}

// collectPerformance runs the narrow fetch that gives early visibility into
// the client's own ranking keywords.
func (c *Collector) collectPerformance(ctx context.Context, q PerformanceQuery) slot {
	var s slot
	if err := c.wait(ctx); err != nil {
		s.failures = append(s.failures, newFailure(PhaseCollect, q.PropertyID,
			&SourceFetchError{Source: SourcePerformance, Item: q.PropertyID, Err: err}))
		return s
	}

	fetchCtx := ctx
	if timeout := c.cfg.NarrowTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	rows, err := c.providers.Performance.Queries(fetchCtx, q)
	if err != nil {
		s.failures = append(s.failures, newFailure(PhaseCollect, q.PropertyID,
			&SourceFetchError{Source: SourcePerformance, Item: q.PropertyID, Err: err}))
		return s
	}
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	for _, r := range rows {
		if strings.TrimSpace(r.Keyword) == "" {
			continue
		}
		cand := NewCandidate(r.Keyword, SourcePerformance).withPerformance(r)
		cand.Intent = r.Intent
		s.candidates = append(s.candidates, cand)
	}
	return s
}

func (c *Collector) wait(ctx context.Context) error {
	if c.limiter == nil {
		return ctx.Err()
	}
	return c.limiter.Wait(ctx)
}

func (c *Collector) concurrency() int {
	if c.cfg.Concurrency > 0 {
		return c.cfg.Concurrency
	}
	return 5
}

// ResolveWindow fills in the default date window and row cap. The window ends
// on the current UTC day and spans windowDays days.
func ResolveWindow(q PerformanceQuery, windowDays, defaultLimit int, now time.Time) PerformanceQuery {
	if windowDays <= 0 {
		windowDays = 28
	}
	if q.EndDate.IsZero() {
		y, m, d := now.UTC().Date()
		q.EndDate = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	if q.StartDate.IsZero() {
		q.StartDate = q.EndDate.AddDate(0, 0, -windowDays)
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	return q
}

// NormalizeDomain strips scheme, path and a leading "www." from a competitor
// domain.
func NormalizeDomain(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil && u.Host != "" {
			s = u.Host
		}
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimPrefix(s, "www.")
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
