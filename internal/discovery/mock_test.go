package discovery

import (
	"context"
	"strings"
	"sync"

	"github.com/sells-group/keyword-discovery/internal/config"
)

// mockSuggestions implements SuggestionProvider for testing.
type mockSuggestions struct {
	mu       sync.Mutex
	bySeed   map[string][]string
	errs     map[string]error
	calls    []string
	block    chan struct{}
	limitArg int
}

func (m *mockSuggestions) Suggest(ctx context.Context, seed string, limit int) ([]Suggestion, error) {
	m.mu.Lock()
	m.calls = append(m.calls, seed)
	m.limitArg = limit
	m.mu.Unlock()

	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := m.errs[seed]; err != nil {
		return nil, err
	}
	var out []Suggestion
	for _, k := range m.bySeed[seed] {
		out = append(out, Suggestion{Keyword: k})
	}
	return out, nil
}

// mockCompetitors implements CompetitorProvider for testing.
type mockCompetitors struct {
	mu       sync.Mutex
	byDomain map[string][]string
	errs     map[string]error
	calls    []string
}

func (m *mockCompetitors) Rankings(_ context.Context, domain string) ([]RankedKeyword, error) {
	m.mu.Lock()
	m.calls = append(m.calls, domain)
	m.mu.Unlock()

	if err := m.errs[domain]; err != nil {
		return nil, err
	}
	var out []RankedKeyword
	for i, k := range m.byDomain[domain] {
		out = append(out, RankedKeyword{Keyword: k, Position: float64(i + 1)})
	}
	return out, nil
}

// mockMetadata implements MetadataProvider for testing.
type mockMetadata struct {
	rows  map[string]KeywordMetadata
	err   error
	calls [][]string
}

func (m *mockMetadata) Metadata(_ context.Context, keywords []string) ([]KeywordMetadata, error) {
	m.calls = append(m.calls, append([]string(nil), keywords...))
	if m.err != nil {
		return nil, m.err
	}
	var out []KeywordMetadata
	for _, k := range keywords {
		if row, ok := m.rows[strings.ToLower(k)]; ok {
			row.Keyword = k
			out = append(out, row)
		}
	}
	return out, nil
}

// mockPerformance implements PerformanceProvider for testing. Queries with a
// limit at or below narrowLimit are answered from narrow, larger ones from
// wide.
type mockPerformance struct {
	mu          sync.Mutex
	narrow      []QueryPerformance
	wide        []QueryPerformance
	narrowErr   error
	wideErr     error
	narrowLimit int
	queries     []PerformanceQuery
}

func (m *mockPerformance) Queries(_ context.Context, q PerformanceQuery) ([]QueryPerformance, error) {
	m.mu.Lock()
	m.queries = append(m.queries, q)
	m.mu.Unlock()

	if q.Limit <= m.narrowLimit {
		return m.narrow, m.narrowErr
	}
	return m.wide, m.wideErr
}

// mockTerms implements BrandTermStore for testing.
type mockTerms struct {
	terms map[string][]BrandTerm
	err   error
}

func (m *mockTerms) Terms(_ context.Context, clientID string) ([]BrandTerm, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.terms[clientID], nil
}

// mockStore implements Store for Save tests.
type mockStore struct {
	mockTerms
	runs       []RunRecord
	saved      map[string][]Candidate
	saveErr    error
	addedTerms []BrandTerm
}

func (m *mockStore) Migrate(context.Context) error { return nil }
func (m *mockStore) Close() error                  { return nil }

func (m *mockStore) SaveRun(_ context.Context, run RunRecord, cands []Candidate) (int64, error) {
	if m.saveErr != nil {
		return 0, m.saveErr
	}
	m.runs = append(m.runs, run)
	if m.saved == nil {
		m.saved = make(map[string][]Candidate)
	}
	m.saved[run.ID] = append(m.saved[run.ID], cands...)
	return int64(len(cands)), nil
}

func (m *mockStore) GetRun(_ context.Context, runID string) (*RunRecord, error) {
	for _, r := range m.runs {
		if r.ID == runID {
			return &r, nil
		}
	}
	return nil, ErrRunNotFound
}

func (m *mockStore) ListRuns(_ context.Context, _ string, _ int) ([]RunRecord, error) {
	return m.runs, nil
}

func (m *mockStore) ListKeywords(_ context.Context, runID string, _ ListOpts) ([]Candidate, error) {
	return m.saved[runID], nil
}

func (m *mockStore) AddTerm(_ context.Context, _ string, term BrandTerm) error {
	m.addedTerms = append(m.addedTerms, term)
	return nil
}

func (m *mockStore) RemoveTerm(context.Context, string, string) error { return nil }

// testDiscoveryConfig mirrors the loaded defaults with rate limiting off.
func testDiscoveryConfig() *config.DiscoveryConfig {
	return &config.DiscoveryConfig{
		SuggestionLimit:   10,
		CompetitorLimit:   50,
		NarrowRowLimit:    100,
		WideRowLimit:      2000,
		WindowDays:        28,
		Concurrency:       5,
		NarrowTimeoutSecs: 5,
		WideTimeoutSecs:   5,
		EnrichTimeoutSecs: 5,
	}
}

func keywords(cands []Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Keyword
	}
	return out
}

func byKey(cands []Candidate) map[string]Candidate {
	out := make(map[string]Candidate, len(cands))
	for _, c := range cands {
		out[c.CanonicalKey] = c
	}
	return out
}
