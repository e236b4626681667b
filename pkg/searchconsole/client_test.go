package searchconsole

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return c
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestQuery_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/searchAnalytics/query"), r.URL.Path)

		body := decodeBody(t, r)
		assert.Equal(t, "2026-09-01", body["startDate"])
		assert.Equal(t, "2026-09-28", body["endDate"])
		assert.Equal(t, []any{"query"}, body["dimensions"])
		assert.Equal(t, "web", body["type"])
		assert.Equal(t, "100", fmt.Sprint(body["rowLimit"]))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rows":[
			{"keys":["furnace repair"],"clicks":12,"impressions":1020,"ctr":0.0118,"position":14.3},
			{"keys":[],"clicks":1},
			{"keys":["ac install"],"clicks":4,"impressions":300,"ctr":0.0133,"position":8}
		]}`))
	})

	rows, err := c.Query(context.Background(), QueryRequest{
		SiteURL:   "sc-domain:acme.com",
		StartDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 9, 28, 0, 0, 0, 0, time.UTC),
		RowLimit:  100,
	})

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Row{Query: "furnace repair", Clicks: 12, Impressions: 1020, CTR: 0.0118, Position: 14.3}, rows[0])
	assert.Equal(t, "ac install", rows[1].Query)
}

func TestQuery_Pages(t *testing.T) {
	var starts []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		start := fmt.Sprint(body["startRow"])
		if start == "<nil>" {
			start = "0"
		}
		starts = append(starts, start)

		w.Header().Set("Content-Type", "application/json")
		if start == "0" {
			// First page is full.
			rows := make([]string, MaxPageRows)
			for i := range rows {
				rows[i] = fmt.Sprintf(`{"keys":["q%d"],"clicks":1}`, i)
			}
			_, _ = w.Write([]byte(`{"rows":[` + strings.Join(rows, ",") + `]}`))
			return
		}
		_, _ = w.Write([]byte(`{"rows":[{"keys":["last"],"clicks":1}]}`))
	})

	rows, err := c.Query(context.Background(), QueryRequest{SiteURL: "https://acme.com/", RowLimit: MaxPageRows + 10})

	require.NoError(t, err)
	assert.Len(t, rows, MaxPageRows+1)
	assert.Equal(t, "last", rows[len(rows)-1].Query)
	assert.Equal(t, []string{"0", fmt.Sprint(MaxPageRows)}, starts)
}

func TestQuery_MissingSite(t *testing.T) {
	c, err := NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)

	_, err = c.Query(context.Background(), QueryRequest{})
	assert.ErrorContains(t, err, "site url is required")
}

func TestQuery_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"backend unavailable"}}`))
	})

	_, err := c.Query(context.Background(), QueryRequest{SiteURL: "sc-domain:acme.com"})

	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(err))
}

func TestQuery_PermissionDenied(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"User does not have sufficient permission"}}`))
	})

	_, err := c.Query(context.Background(), QueryRequest{SiteURL: "sc-domain:acme.com"})

	require.Error(t, err)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, http.StatusForbidden, StatusCode(err))
}

func TestIsRetryable_PlainError(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(assert.AnError))
	assert.Zero(t, StatusCode(assert.AnError))
}
