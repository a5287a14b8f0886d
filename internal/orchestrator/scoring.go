package orchestrator

import (
	"sort"

	"github.com/newthinker/aporte/internal/core"
	"github.com/newthinker/aporte/internal/indicator"
	"github.com/newthinker/aporte/internal/risk"
)

// scores ranks securities by momentum over ScoreLookback, shortened to the
// available history, and sectors by the mean score of their priced
// members. Securities with fewer than two closes are returned as unpriced.
func (o *Orchestrator) scores(closes map[string][]float64) (sectors, securities map[string]float64, unpriced []string) {
	universe := o.deps.Allocator.Universe()
	securities = make(map[string]float64)
	members := make(map[string][]float64)
	for _, sec := range universe.Securities() {
		prices := closes[sec.Ticker]
		if len(prices) < 2 {
			unpriced = append(unpriced, sec.Ticker)
			continue
		}
		score, ok := indicator.Momentum(prices, min(o.cfg.ScoreLookback, len(prices)-1))
		if !ok {
			unpriced = append(unpriced, sec.Ticker)
			continue
		}
		securities[sec.Ticker] = score
		if sec.Class.IsEquity() {
			members[sec.Sector] = append(members[sec.Sector], score)
		}
	}
	sectors = make(map[string]float64, len(members))
	for sector, s := range members {
		sectors[sector] = indicator.Mean(s)
	}
	return sectors, securities, unpriced
}

// estimator builds the mix estimator from one price series per asset class
// the profile holds. A configured proxy ticker wins; otherwise the class is
// an equal-weight index of its priced members.
func (o *Orchestrator) estimator(profile core.RiskProfile, closes map[string][]float64) (*risk.MixEstimator, error) {
	classPrices := make(map[core.AssetClass][]float64)
	for _, class := range core.AssetClasses {
		if profile.BaseWeights[class] <= 0 {
			continue
		}
		if proxy, ok := o.cfg.ClassProxies[string(class)]; ok && len(closes[proxy]) >= 3 {
			classPrices[class] = closes[proxy]
			continue
		}
		index, err := o.classIndex(class, closes)
		if err != nil {
			return nil, err
		}
		classPrices[class] = index
	}
	return risk.NewMixEstimator(classPrices, o.deps.Risk)
}

// classIndex compounds the equal-weight returns of a class's members,
// aligned on their most recent observations.
func (o *Orchestrator) classIndex(class core.AssetClass, closes map[string][]float64) ([]float64, error) {
	var tickers []string
	for _, sec := range o.deps.Allocator.Universe().Securities() {
		if sec.Class == class && len(closes[sec.Ticker]) >= 3 {
			tickers = append(tickers, sec.Ticker)
		}
	}
	if len(tickers) == 0 {
		return nil, core.Errorf(core.ErrInsufficientData, "no price series for class %s", class)
	}
	sort.Strings(tickers)

	weights := make(map[string]float64, len(tickers))
	series := make(map[string][]float64, len(tickers))
	for _, t := range tickers {
		weights[t] = 1 / float64(len(tickers))
		series[t] = indicator.Returns(closes[t])
	}
	returns, err := risk.PortfolioReturns(weights, series)
	if err != nil {
		return nil, err
	}
	index := make([]float64, len(returns)+1)
	index[0] = 1
	for i, r := range returns {
		index[i+1] = index[i] * (1 + r)
	}
	return index, nil
}
