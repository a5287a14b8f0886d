// Package fred fetches US macro series from the FRED API.
package fred

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/newthinker/aporte/internal/core"
)

const baseURL = "https://api.stlouisfed.org/fred/series/observations"

// Series maps indicator names to FRED series IDs
var Series = map[string]string{
	core.IndicatorForeignPolicyRate: "FEDFUNDS",
	core.IndicatorForeignInflation:  "CPIAUCSL",
	core.IndicatorYieldCurveSpread:  "T10Y2Y",
	core.IndicatorVolatilityIndex:   "VIXCLS",
}

// Client implements provider.IndicatorProvider for FRED
type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// New creates a client. An empty endpoint uses the public API.
func New(endpoint, apiKey string) *Client {
	if endpoint == "" {
		endpoint = baseURL
	}
	return &Client{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: endpoint,
		apiKey:  apiKey,
	}
}

func (c *Client) Name() string {
	return "fred"
}

// Indicators returns the served indicator names, sorted
func (c *Client) Indicators() []string {
	out := make([]string, 0, len(Series))
	for name := range Series {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// FetchSeries fetches observations of one series. FRED marks missing
// values with "." and those are skipped.
func (c *Client) FetchSeries(ctx context.Context, indicator string, start, end time.Time) ([]core.Observation, error) {
	id, ok := Series[indicator]
	if !ok {
		return nil, fmt.Errorf("fred: indicator %s not served", indicator)
	}
	if c.apiKey == "" {
		return nil, core.Errorf(core.ErrConfigMissing, "fred: api key is required")
	}

	params := url.Values{}
	params.Set("series_id", id)
	params.Set("api_key", c.apiKey)
	params.Set("file_type", "json")
	params.Set("observation_start", start.Format(time.DateOnly))
	params.Set("observation_end", end.Format(time.DateOnly))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status: %d", id, resp.StatusCode)
	}

	var result struct {
		Observations []struct {
			Date  string `json:"date"`
			Value string `json:"value"`
		} `json:"observations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", id, err)
	}

	out := make([]core.Observation, 0, len(result.Observations))
	for _, o := range result.Observations {
		t, err := time.Parse(time.DateOnly, o.Date)
		if err != nil {
			return nil, fmt.Errorf("%s: bad date %q", id, o.Date)
		}
		v, err := strconv.ParseFloat(o.Value, 64)
		if err != nil {
			continue
		}
		out = append(out, core.Observation{Time: t, Value: v})
	}
	return out, nil
}
