package app

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/aporte/internal/backtest"
	"github.com/newthinker/aporte/internal/core"
	"github.com/newthinker/aporte/internal/provider"
)

// Dataset is the aligned market history an episode replays
type Dataset struct {
	Prices  backtest.PriceTable
	Feed    backtest.SnapshotFeed
	Missing []string // tickers without usable history
}

// Dataset fetches prices and indicators for [start, end] plus the warm-up
// the classifier needs before start. Prices are aligned on the days every
// priced ticker traded.
func (a *App) Dataset(ctx context.Context, start, end time.Time) (*Dataset, error) {
	if !start.Before(end) {
		return nil, core.Errorf(core.ErrInvalidRange, "start %s not before end %s",
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	from := start.AddDate(0, 0, -a.cfg.Orchestrator.PriceHistoryDays)

	histories, err := a.market.PriceHistory(ctx, a.tickers(), from, end)
	if err != nil {
		return nil, err
	}
	table, missing := alignPrices(histories, a.tickers())
	bench := a.envConfig().Benchmark
	if _, ok := table.Series[bench]; !ok {
		return nil, core.Errorf(core.ErrInsufficientData, "no price history for benchmark %s", bench)
	}
	if len(missing) > 0 {
		a.logger.Warn("tickers without price history", zap.Strings("tickers", missing))
	}

	window := a.cfg.Providers.HistoryDays
	series, missingIndicators, err := a.market.Series(ctx, from.AddDate(0, 0, -window), end)
	if err != nil {
		return nil, err
	}
	feed := make(backtest.SnapshotFeed, len(table.Dates))
	for _, d := range table.Dates {
		feed[d.Format(time.DateOnly)] = provider.BuildSnapshot(d, series, window, missingIndicators)
	}

	return &Dataset{Prices: table, Feed: feed, Missing: missing}, nil
}

// alignPrices keeps the calendar days present in every non-empty series
func alignPrices(histories map[string][]core.PricePoint, tickers []string) (backtest.PriceTable, []string) {
	byDay := make(map[string]map[string]float64)
	var missing []string
	for _, t := range tickers {
		closes := make(map[string]float64)
		for _, p := range histories[t] {
			if p.IsValid() {
				closes[p.Time.UTC().Format(time.DateOnly)] = p.Close
			}
		}
		if len(closes) == 0 {
			missing = append(missing, t)
			continue
		}
		byDay[t] = closes
	}

	table := backtest.PriceTable{Series: make(map[string][]float64, len(byDay))}
	if len(byDay) == 0 {
		return table, missing
	}
	var days []string
	for day := range byDay[firstKey(byDay)] {
		shared := true
		for _, closes := range byDay {
			if _, ok := closes[day]; !ok {
				shared = false
				break
			}
		}
		if shared {
			days = append(days, day)
		}
	}
	sort.Strings(days)

	for _, day := range days {
		d, _ := time.Parse(time.DateOnly, day)
		table.Dates = append(table.Dates, d)
	}
	for t, closes := range byDay {
		s := make([]float64, len(days))
		for i, day := range days {
			s[i] = closes[day]
		}
		table.Series[t] = s
	}
	return table, missing
}

func firstKey(m map[string]map[string]float64) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0]
}
