// Package searchconsole reads per-query search analytics for a Search Console
// property.
package searchconsole

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sc "google.golang.org/api/searchconsole/v1"
)

// MaxPageRows is the most rows the API returns per request.
const MaxPageRows = 25000

const dateLayout = "2006-01-02"

// Client performs Search Console analytics queries.
type Client interface {
	Query(ctx context.Context, req QueryRequest) ([]Row, error)
}

// QueryRequest selects query-dimension rows for a property and date range.
// A zero RowLimit returns a single full page.
type QueryRequest struct {
	SiteURL    string
	StartDate  time.Time
	EndDate    time.Time
	RowLimit   int
	SearchType string
}

// Row is one query's performance over the requested range. CTR is a fraction.
type Row struct {
	Query       string
	Clicks      float64
	Impressions float64
	CTR         float64
	Position    float64
}

type apiClient struct {
	svc *sc.Service
}

// NewClient creates a Search Console client. Callers pass credentials through
// opts, e.g. option.WithCredentialsFile.
func NewClient(ctx context.Context, opts ...option.ClientOption) (Client, error) {
	svc, err := sc.NewService(ctx, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "searchconsole: create service")
	}
	return &apiClient{svc: svc}, nil
}

// Query pages through results until RowLimit rows are read or the API runs
// out of rows. Rows come back ordered by clicks, descending.
func (c *apiClient) Query(ctx context.Context, req QueryRequest) ([]Row, error) {
	if req.SiteURL == "" {
		return nil, eris.New("searchconsole: site url is required")
	}
	searchType := req.SearchType
	if searchType == "" {
		searchType = "web"
	}

	var (
		out    []Row
		offset int
	)
	for {
		pageSize := MaxPageRows
		if req.RowLimit > 0 {
			pageSize = min(MaxPageRows, req.RowLimit-offset)
		}

		resp, err := c.svc.Searchanalytics.Query(req.SiteURL, &sc.SearchAnalyticsQueryRequest{
			StartDate:  req.StartDate.Format(dateLayout),
			EndDate:    req.EndDate.Format(dateLayout),
			Dimensions: []string{"query"},
			Type:       searchType,
			RowLimit:   int64(pageSize),
			StartRow:   int64(offset),
		}).Context(ctx).Do()
		if err != nil {
			return nil, eris.Wrapf(err, "searchconsole: query %s", req.SiteURL)
		}

		offset += len(resp.Rows)
		for _, r := range resp.Rows {
			if len(r.Keys) == 0 {
				continue
			}
			out = append(out, Row{
				Query:       r.Keys[0],
				Clicks:      r.Clicks,
				Impressions: r.Impressions,
				CTR:         r.Ctr,
				Position:    r.Position,
			})
		}

		if len(resp.Rows) < pageSize || req.RowLimit <= 0 || offset >= req.RowLimit {
			return out, nil
		}
	}
}

// IsRetryable reports whether err is a Search Console API error worth
// repeating: throttling or a server-side failure.
func IsRetryable(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	return gerr.Code == http.StatusRequestTimeout || gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500
}

// StatusCode returns the HTTP status of a Search Console API error, or 0.
func StatusCode(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}
