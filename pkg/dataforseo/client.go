// Package dataforseo is a client for the DataForSEO Labs keyword endpoints:
// suggestions for a seed, keywords a domain ranks for, and bulk keyword
// overview data.
package dataforseo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.dataforseo.com/v3"

	// statusOK is the DataForSEO task-level success code.
	statusOK = 20000

	// MaxOverviewKeywords is the most keywords one keyword_overview task accepts.
	MaxOverviewKeywords = 700
)

// Client performs DataForSEO Labs operations.
type Client interface {
	KeywordSuggestions(ctx context.Context, req SuggestionsRequest) ([]KeywordItem, error)
	RankedKeywords(ctx context.Context, req RankedKeywordsRequest) ([]RankedItem, error)
	KeywordOverview(ctx context.Context, keywords []string) ([]KeywordItem, error)
}

// SuggestionsRequest asks for keywords containing Keyword.
type SuggestionsRequest struct {
	Keyword string
	Limit   int
}

// RankedKeywordsRequest asks for the keywords Target ranks for, best first.
type RankedKeywordsRequest struct {
	Target string
	Limit  int
}

// KeywordItem is one keyword with its Labs data.
type KeywordItem struct {
	Keyword          string            `json:"keyword"`
	KeywordInfo      *KeywordInfo      `json:"keyword_info,omitempty"`
	SearchIntentInfo *SearchIntentInfo `json:"search_intent_info,omitempty"`
}

// KeywordInfo holds volume, competition and cost data.
type KeywordInfo struct {
	SearchVolume     int64   `json:"search_volume"`
	Competition      float64 `json:"competition"`
	CompetitionLevel string  `json:"competition_level"`
	CPC              float64 `json:"cpc"`
}

// SearchIntentInfo holds the classified search intent.
type SearchIntentInfo struct {
	MainIntent string `json:"main_intent"`
}

// RankedItem is one keyword the target ranks for.
type RankedItem struct {
	KeywordData       KeywordItem       `json:"keyword_data"`
	RankedSerpElement RankedSerpElement `json:"ranked_serp_element"`
}

// RankedSerpElement is the target's organic result for a keyword.
type RankedSerpElement struct {
	SerpItem SerpItem `json:"serp_item"`
}

// SerpItem holds the organic position.
type SerpItem struct {
	RankGroup    int `json:"rank_group"`
	RankAbsolute int `json:"rank_absolute"`
}

// APIError is a failed HTTP call or a failed task.
type APIError struct {
	// HTTPStatus is the HTTP status code; zero for task-level failures.
	HTTPStatus int
	// Code is the DataForSEO status code, when the body carried one.
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("dataforseo: status %d: %s", e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("dataforseo: task status %d: %s", e.Code, e.Message)
}

// Retryable reports whether the call may succeed if repeated: HTTP 408, 429 or 5xx,
// or the API's own rate-limit and internal-error codes.
func (e *APIError) Retryable() bool {
	switch {
	case e.HTTPStatus == http.StatusRequestTimeout, e.HTTPStatus == http.StatusTooManyRequests, e.HTTPStatus >= 500:
		return true
	case e.Code == 40202, e.Code == 50000, e.Code == 50301:
		return true
	}
	return false
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL. Empty keeps the default.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLocation sets the location and language codes sent with every task.
func WithLocation(locationCode int, languageCode string) Option {
	return func(c *httpClient) {
		c.locationCode = locationCode
		c.languageCode = languageCode
	}
}

// WithRateLimit throttles requests to rps. Zero disables throttling.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

type httpClient struct {
	login        string
	password     string
	baseURL      string
	locationCode int
	languageCode string
	http         *http.Client
	limiter      *rate.Limiter
}

// NewClient creates a DataForSEO client authenticating with login/password.
// Requests target US English unless WithLocation says otherwise.
func NewClient(login, password string, opts ...Option) Client {
	c := &httpClient{
		login:        login,
		password:     password,
		baseURL:      defaultBaseURL,
		locationCode: 2840,
		languageCode: "en",
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type task struct {
	Keyword      string   `json:"keyword,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
	Target       string   `json:"target,omitempty"`
	LocationCode int      `json:"location_code"`
	LanguageCode string   `json:"language_code"`
	Limit        int      `json:"limit,omitempty"`
	OrderBy      []string `json:"order_by,omitempty"`
}

type envelope[T any] struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
	Tasks         []struct {
		StatusCode    int    `json:"status_code"`
		StatusMessage string `json:"status_message"`
		Result        []struct {
			Items []T `json:"items"`
		} `json:"result"`
	} `json:"tasks"`
}

func (c *httpClient) KeywordSuggestions(ctx context.Context, req SuggestionsRequest) ([]KeywordItem, error) {
	t := c.task()
	t.Keyword = req.Keyword
	t.Limit = req.Limit
	return post[KeywordItem](ctx, c, "/dataforseo_labs/google/keyword_suggestions/live", t)
}

func (c *httpClient) RankedKeywords(ctx context.Context, req RankedKeywordsRequest) ([]RankedItem, error) {
	t := c.task()
	t.Target = req.Target
	t.Limit = req.Limit
	t.OrderBy = []string{"ranked_serp_element.serp_item.rank_group,asc"}
	return post[RankedItem](ctx, c, "/dataforseo_labs/google/ranked_keywords/live", t)
}

// KeywordOverview sends keywords in chunks of MaxOverviewKeywords and
// concatenates the results in request order.
func (c *httpClient) KeywordOverview(ctx context.Context, keywords []string) ([]KeywordItem, error) {
	var out []KeywordItem
	for start := 0; start < len(keywords); start += MaxOverviewKeywords {
		end := min(start+MaxOverviewKeywords, len(keywords))
		t := c.task()
		t.Keywords = keywords[start:end]
		items, err := post[KeywordItem](ctx, c, "/dataforseo_labs/google/keyword_overview/live", t)
		if err != nil {
			return nil, eris.Wrapf(err, "dataforseo: keyword overview chunk at %d", start)
		}
		out = append(out, items...)
	}
	return out, nil
}

func (c *httpClient) task() task {
	return task{LocationCode: c.locationCode, LanguageCode: c.languageCode}
}

func post[T any](ctx context.Context, c *httpClient, path string, t task) ([]T, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "dataforseo: rate limit wait")
		}
	}

	body, err := json.Marshal([]task{t})
	if err != nil {
		return nil, eris.Wrap(err, "dataforseo: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "dataforseo: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.login, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "dataforseo: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "dataforseo: read response")
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(respBody)
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return nil, &APIError{HTTPStatus: resp.StatusCode, Message: msg}
	}

	var env envelope[T]
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, eris.Wrap(err, "dataforseo: unmarshal response")
	}
	if env.StatusCode != statusOK {
		return nil, &APIError{Code: env.StatusCode, Message: env.StatusMessage}
	}
	if len(env.Tasks) == 0 {
		return nil, eris.New("dataforseo: response has no tasks")
	}

	tk := env.Tasks[0]
	if tk.StatusCode != statusOK {
		return nil, &APIError{Code: tk.StatusCode, Message: tk.StatusMessage}
	}

	var items []T
	for _, r := range tk.Result {
		items = append(items, r.Items...)
	}
	return items, nil
}
