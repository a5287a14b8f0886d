// Package bcb fetches Brazilian macro series from the Central Bank SGS API.
package bcb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/aporte/internal/core"
)

const (
	baseURL    = "https://api.bcb.gov.br/dados/serie/bcdata.sgs.%d/dados"
	dateLayout = "02/01/2006"
)

// Series maps indicator names to SGS series codes
var Series = map[string]int{
	core.IndicatorPolicyRate: 432,   // Selic target
	core.IndicatorInflation:  433,   // IPCA monthly
	core.IndicatorGDPGrowth:  24363, // IBC-Br activity index
	core.IndicatorFXRate:     1,     // USD/BRL
}

// Client implements provider.IndicatorProvider for the SGS API
type Client struct {
	client  *http.Client
	baseURL string
}

// New creates a client. endpoint is a format string with one %d for the
// series code; empty uses the public API.
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = baseURL
	}
	return &Client{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: endpoint,
	}
}

func (c *Client) Name() string {
	return "bcb"
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

// FetchSeries fetches one SGS series between start and end
func (c *Client) FetchSeries(ctx context.Context, indicator string, start, end time.Time) ([]core.Observation, error) {
	code, ok := Series[indicator]
	if !ok {
		return nil, fmt.Errorf("bcb: indicator %s not served", indicator)
	}

	endpoint := fmt.Sprintf(c.baseURL, code) + fmt.Sprintf("?formato=json&dataInicial=%s&dataFinal=%s",
		start.Format(dateLayout), end.Format(dateLayout))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching series %d: %w", code, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("series %d: unexpected status: %d", code, resp.StatusCode)
	}

	var rows []struct {
		Date  string `json:"data"`
		Value string `json:"valor"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decoding series %d: %w", code, err)
	}

	out := make([]core.Observation, 0, len(rows))
	for _, row := range rows {
		t, err := time.Parse(dateLayout, row.Date)
		if err != nil {
			return nil, fmt.Errorf("series %d: bad date %q", code, row.Date)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row.Value), 64)
		if err != nil {
			continue // SGS publishes blanks for pending values
		}
		out = append(out, core.Observation{Time: t, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}
