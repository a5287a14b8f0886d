package regime

import (
	"math"

	"github.com/newthinker/aporte/internal/core"
	"github.com/newthinker/aporte/internal/indicator"
)

// Sub-signal names
const (
	SignalTrend        = "trend"
	SignalMonetary     = "monetary"
	SignalRiskAversion = "risk_aversion"
	SignalCrossBorder  = "cross_border"
)

func clip(v float64) float64 {
	return indicator.Clip(v, -1, 1)
}

// trendSignal blends the short/long moving average gap with momentum.
func (c *Classifier) trendSignal(prices []float64) (float64, bool) {
	short, ok := indicator.LastSMA(prices, c.cfg.ShortWindow)
	if !ok {
		return 0, false
	}
	long, ok := indicator.LastSMA(prices, c.cfg.LongWindow)
	if !ok || long == 0 {
		return 0, false
	}
	gap := clip((short - long) / long / c.cfg.TrendScale)

	mom, ok := indicator.Momentum(prices, c.cfg.MomentumWindow)
	if !ok {
		return gap, true
	}
	return (gap + clip(mom/c.cfg.MomentumScale)) / 2, true
}

// zscore measures the latest value against its trailing history
func zscore(snap core.IndicatorSnapshot, name string) (float64, bool) {
	v, ok := snap.Value(name)
	if !ok {
		return 0, false
	}
	hist := snap.History(name)
	if len(hist) < 2 {
		return 0, false
	}
	std := indicator.StdDev(hist)
	if std == 0 {
		return 0, false
	}
	return (v - indicator.Mean(hist)) / std, true
}

// monetarySignal is bearish when the policy rate and inflation sit above
// their trailing bands.
func (c *Classifier) monetarySignal(snap core.IndicatorSnapshot) (float64, bool) {
	var parts []float64
	for _, name := range []string{core.IndicatorPolicyRate, core.IndicatorInflation} {
		if z, ok := zscore(snap, name); ok {
			parts = append(parts, clip(-z/c.cfg.ZScale))
		}
	}
	if len(parts) == 0 {
		return 0, false
	}
	return indicator.Mean(parts), true
}

// riskAversionSignal maps the volatility index percentile to [-1, 1]; a
// high percentile is bearish.
func (c *Classifier) riskAversionSignal(snap core.IndicatorSnapshot) (float64, bool) {
	v, ok := snap.Value(core.IndicatorVolatilityIndex)
	if !ok {
		return 0, false
	}
	hist := snap.History(core.IndicatorVolatilityIndex)
	if len(hist) < 2 {
		return clip((c.cfg.VolNeutral - v) / c.cfg.VolScale), true
	}
	return clip(1 - 2*indicator.PercentileRank(hist, v)), true
}

// crossBorderSignal combines yield curve slope with the foreign policy rate
// trend. An inverted curve or a rising foreign rate is bearish.
func (c *Classifier) crossBorderSignal(snap core.IndicatorSnapshot) (float64, bool) {
	var parts []float64
	if spread, ok := snap.Value(core.IndicatorYieldCurveSpread); ok {
		parts = append(parts, clip(spread/c.cfg.CurveScale))
	}
	if v, ok := snap.Value(core.IndicatorForeignPolicyRate); ok {
		if hist := snap.History(core.IndicatorForeignPolicyRate); len(hist) >= 2 {
			parts = append(parts, clip(-(v-hist[0])/c.cfg.RateTrendScale))
		}
	}
	if len(parts) == 0 {
		return 0, false
	}
	return indicator.Mean(parts), true
}

// composite returns the weighted mean and weighted standard deviation of signals
func composite(signals []core.Signal) (score, dispersion float64) {
	var total float64
	for _, s := range signals {
		total += s.Weight
		score += s.Contribution()
	}
	if total == 0 {
		return 0, 0
	}
	score /= total
	var variance float64
	for _, s := range signals {
		variance += s.Weight * (s.Value - score) * (s.Value - score)
	}
	return score, math.Sqrt(variance / total)
}
