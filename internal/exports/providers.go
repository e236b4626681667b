package exports

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/keyword-discovery/internal/discovery"
)

// CompetitorFiles serves competitor rankings from a directory holding one
// export per domain, named <domain>.csv or <domain>.xlsx.
type CompetitorFiles struct {
	Dir string
}

// Rankings implements discovery.CompetitorProvider. Rows keep file order.
func (c *CompetitorFiles) Rankings(ctx context.Context, domain string) ([]discovery.RankedKeyword, error) {
	path, err := c.find(domain)
	if err != nil {
		return nil, err
	}
	t, err := readTable(ctx, path)
	if err != nil {
		return nil, err
	}

	out := make([]discovery.RankedKeyword, 0, len(t.rows))
	for _, row := range t.rows {
		kw := t.get(row, "keyword")
		if kw == "" {
			continue
		}
		out = append(out, discovery.RankedKeyword{Keyword: kw, Position: t.number(row, "position")})
	}
	return out, nil
}

func (c *CompetitorFiles) find(domain string) (string, error) {
	for _, ext := range []string{".csv", ".xlsx"} {
		path := filepath.Join(c.Dir, domain+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", eris.Wrapf(err, "exports: stat %s", path)
		}
	}
	return "", eris.Errorf("exports: no ranking export for %s in %s", domain, c.Dir)
}

// PerformanceFile serves the client's query performance from a single
// export, e.g. a Search Console "Queries" download.
type PerformanceFile struct {
	Path string
}

// Queries implements discovery.PerformanceProvider. Exports carry no date
// dimension, so only the row limit of q applies.
func (p *PerformanceFile) Queries(ctx context.Context, q discovery.PerformanceQuery) ([]discovery.QueryPerformance, error) {
	t, err := readTable(ctx, p.Path)
	if err != nil {
		return nil, err
	}

	out := make([]discovery.QueryPerformance, 0, len(t.rows))
	for _, row := range t.rows {
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
		kw := t.get(row, "keyword")
		if kw == "" {
			continue
		}
		out = append(out, discovery.QueryPerformance{
			Keyword:     kw,
			Clicks:      t.number(row, "clicks"),
			Impressions: t.number(row, "impressions"),
			CTR:         t.number(row, "ctr"),
			Position:    t.number(row, "position"),
			Intent:      discovery.ParseIntent(t.get(row, "intent")),
		})
	}
	return out, nil
}
