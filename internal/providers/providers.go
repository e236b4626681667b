// Package providers adapts the DataForSEO and Search Console clients to the
// discovery provider interfaces. Every call runs under a resilience.Guard so
// throttling and server errors are retried and tracked per provider.
package providers

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/keyword-discovery/internal/discovery"
	"github.com/sells-group/keyword-discovery/internal/resilience"
	"github.com/sells-group/keyword-discovery/pkg/dataforseo"
	"github.com/sells-group/keyword-discovery/pkg/searchconsole"
)

// Provider names used for breakers and logs.
const (
	NameDataForSEO    = "dataforseo"
	NameSearchConsole = "search_console"
)

// DataForSEO serves suggestions, competitor rankings and bulk metadata from
// DataForSEO Labs.
type DataForSEO struct {
	client    dataforseo.Client
	guard     *resilience.Guard
	rankLimit int
}

// NewDataForSEO creates the adapter. rankLimit caps the keywords requested per
// competitor domain; zero leaves it to the API default.
func NewDataForSEO(client dataforseo.Client, guard *resilience.Guard, rankLimit int) *DataForSEO {
	return &DataForSEO{client: client, guard: guard, rankLimit: rankLimit}
}

// Suggest implements discovery.SuggestionProvider.
func (d *DataForSEO) Suggest(ctx context.Context, seed string, limit int) ([]discovery.Suggestion, error) {
	items, err := resilience.Call(ctx, d.guard, NameDataForSEO, "keyword_suggestions", func(ctx context.Context) ([]dataforseo.KeywordItem, error) {
		items, err := d.client.KeywordSuggestions(ctx, dataforseo.SuggestionsRequest{Keyword: seed, Limit: limit})
		return items, classifyDataForSEO(err)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "providers: suggestions for %q", seed)
	}

	out := make([]discovery.Suggestion, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.Keyword) == "" {
			continue
		}
		out = append(out, discovery.Suggestion{Keyword: it.Keyword})
	}
	return out, nil
}

// Rankings implements discovery.CompetitorProvider.
func (d *DataForSEO) Rankings(ctx context.Context, domain string) ([]discovery.RankedKeyword, error) {
	items, err := resilience.Call(ctx, d.guard, NameDataForSEO, "ranked_keywords", func(ctx context.Context) ([]dataforseo.RankedItem, error) {
		items, err := d.client.RankedKeywords(ctx, dataforseo.RankedKeywordsRequest{Target: domain, Limit: d.rankLimit})
		return items, classifyDataForSEO(err)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "providers: rankings for %s", domain)
	}

	out := make([]discovery.RankedKeyword, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.KeywordData.Keyword) == "" {
			continue
		}
		out = append(out, discovery.RankedKeyword{
			Keyword:  it.KeywordData.Keyword,
			Position: float64(it.RankedSerpElement.SerpItem.RankGroup),
		})
	}
	return out, nil
}

// Metadata implements discovery.MetadataProvider. Keywords the API has no
// data for are simply absent from the result.
func (d *DataForSEO) Metadata(ctx context.Context, keywords []string) ([]discovery.KeywordMetadata, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	items, err := resilience.Call(ctx, d.guard, NameDataForSEO, "keyword_overview", func(ctx context.Context) ([]dataforseo.KeywordItem, error) {
		items, err := d.client.KeywordOverview(ctx, keywords)
		return items, classifyDataForSEO(err)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "providers: metadata for %d keywords", len(keywords))
	}

	out := make([]discovery.KeywordMetadata, 0, len(items))
	for _, it := range items {
		m := discovery.KeywordMetadata{
			Keyword:     it.Keyword,
			Competition: discovery.CompetitionUnknown,
		}
		if ki := it.KeywordInfo; ki != nil {
			m.SearchVolume = ki.SearchVolume
			m.Competition = discovery.ParseCompetition(ki.CompetitionLevel)
			m.CPC = ki.CPC
		}
		if si := it.SearchIntentInfo; si != nil {
			m.Intent = discovery.ParseIntent(si.MainIntent)
		}
		out = append(out, m)
	}
	return out, nil
}

func classifyDataForSEO(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *dataforseo.APIError
	if errors.As(err, &apiErr) && apiErr.Retryable() {
		return &resilience.TransientError{Err: err, StatusCode: apiErr.HTTPStatus}
	}
	return err
}

// SearchConsole serves the client's query performance from Search Console.
type SearchConsole struct {
	client     searchconsole.Client
	guard      *resilience.Guard
	property   string
	searchType string
}

// NewSearchConsole creates the adapter. property is used when a query names
// none.
func NewSearchConsole(client searchconsole.Client, guard *resilience.Guard, property, searchType string) *SearchConsole {
	return &SearchConsole{client: client, guard: guard, property: property, searchType: searchType}
}

// Queries implements discovery.PerformanceProvider.
func (s *SearchConsole) Queries(ctx context.Context, q discovery.PerformanceQuery) ([]discovery.QueryPerformance, error) {
	property := q.PropertyID
	if property == "" {
		property = s.property
	}
	if property == "" {
		return nil, &discovery.ConfigurationError{Source: string(discovery.SourcePerformance), Reason: "no property id"}
	}

	rows, err := resilience.Call(ctx, s.guard, NameSearchConsole, "search_analytics", func(ctx context.Context) ([]searchconsole.Row, error) {
		rows, err := s.client.Query(ctx, searchconsole.QueryRequest{
			SiteURL:    property,
			StartDate:  q.StartDate,
			EndDate:    q.EndDate,
			RowLimit:   q.Limit,
			SearchType: s.searchType,
		})
		if err != nil && searchconsole.IsRetryable(err) {
			return nil, &resilience.TransientError{Err: err, StatusCode: searchconsole.StatusCode(err)}
		}
		return rows, err
	})
	if err != nil {
		return nil, eris.Wrapf(err, "providers: search analytics for %s", property)
	}

	out := make([]discovery.QueryPerformance, 0, len(rows))
	for _, r := range rows {
		out = append(out, discovery.QueryPerformance{
			Keyword:     r.Query,
			Clicks:      r.Clicks,
			Impressions: r.Impressions,
			CTR:         r.CTR,
			Position:    r.Position,
		})
	}
	return out, nil
}
