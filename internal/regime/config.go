package regime

import (
	"github.com/newthinker/aporte/internal/core"
)

// Weights sets the composite weight of each sub-signal
type Weights struct {
	Trend        float64 `mapstructure:"trend"`
	Monetary     float64 `mapstructure:"monetary"`
	RiskAversion float64 `mapstructure:"risk_aversion"`
	CrossBorder  float64 `mapstructure:"cross_border"`
}

// Config holds classifier windows, scales and label thresholds
type Config struct {
	ShortWindow    int     `mapstructure:"short_window"`
	LongWindow     int     `mapstructure:"long_window"`
	MomentumWindow int     `mapstructure:"momentum_window"`
	TrendScale     float64 `mapstructure:"trend_scale"`
	MomentumScale  float64 `mapstructure:"momentum_scale"`

	ZScale         float64 `mapstructure:"z_scale"`
	VolNeutral     float64 `mapstructure:"vol_neutral"`
	VolScale       float64 `mapstructure:"vol_scale"`
	CurveScale     float64 `mapstructure:"curve_scale"`
	RateTrendScale float64 `mapstructure:"rate_trend_scale"`

	Weights Weights `mapstructure:"weights"`

	BullThreshold  float64 `mapstructure:"bull_threshold"`
	BearThreshold  float64 `mapstructure:"bear_threshold"`
	FlatThreshold  float64 `mapstructure:"flat_threshold"`
	FlatDispersion float64 `mapstructure:"flat_dispersion"`
	MaxDispersion  float64 `mapstructure:"max_dispersion"`
	MinSignals     int     `mapstructure:"min_signals"`
	CrossLookback  int     `mapstructure:"cross_lookback"`
}

// DefaultConfig returns the default classifier parameters
func DefaultConfig() Config {
	return Config{
		ShortWindow:    20,
		LongWindow:     50,
		MomentumWindow: 10,
		TrendScale:     0.05,
		MomentumScale:  0.10,
		ZScale:         2.0,
		VolNeutral:     20,
		VolScale:       15,
		CurveScale:     1.0,
		RateTrendScale: 0.5,
		Weights: Weights{
			Trend:        0.35,
			Monetary:     0.25,
			RiskAversion: 0.25,
			CrossBorder:  0.15,
		},
		BullThreshold:  0.25,
		BearThreshold:  -0.25,
		FlatThreshold:  0.10,
		FlatDispersion: 0.20,
		MaxDispersion:  0.35,
		MinSignals:     2,
		CrossLookback:  5,
	}
}

// Validate checks that windows, scales and thresholds are consistent
func (c Config) Validate() error {
	switch {
	case c.ShortWindow <= 0 || c.LongWindow <= c.ShortWindow:
		return core.Errorf(core.ErrConfigInvalid, "regime: windows short=%d long=%d", c.ShortWindow, c.LongWindow)
	case c.MomentumWindow <= 0 || c.MomentumWindow >= c.LongWindow:
		return core.Errorf(core.ErrConfigInvalid, "regime: momentum window %d", c.MomentumWindow)
	case c.TrendScale <= 0 || c.MomentumScale <= 0 || c.ZScale <= 0 || c.VolScale <= 0 ||
		c.CurveScale <= 0 || c.RateTrendScale <= 0:
		return core.Errorf(core.ErrConfigInvalid, "regime: scales must be positive")
	case c.Weights.Trend < 0 || c.Weights.Monetary < 0 || c.Weights.RiskAversion < 0 || c.Weights.CrossBorder < 0:
		return core.Errorf(core.ErrConfigInvalid, "regime: weights cannot be negative")
	case c.Weights.Trend == 0:
		return core.Errorf(core.ErrConfigInvalid, "regime: trend weight must be positive")
	case c.BearThreshold >= 0 || c.BullThreshold <= 0:
		return core.Errorf(core.ErrConfigInvalid, "regime: thresholds bull=%.3f bear=%.3f", c.BullThreshold, c.BearThreshold)
	case c.FlatThreshold <= 0 || c.FlatThreshold > c.BullThreshold || c.FlatThreshold > -c.BearThreshold:
		return core.Errorf(core.ErrConfigInvalid, "regime: flat threshold %.3f", c.FlatThreshold)
	case c.MaxDispersion <= 0 || c.FlatDispersion <= 0 || c.FlatDispersion > c.MaxDispersion:
		return core.Errorf(core.ErrConfigInvalid, "regime: dispersion limits flat=%.3f max=%.3f", c.FlatDispersion, c.MaxDispersion)
	case c.MinSignals < 1 || c.MinSignals > 4:
		return core.Errorf(core.ErrConfigInvalid, "regime: min signals %d", c.MinSignals)
	case c.CrossLookback < 0:
		return core.Errorf(core.ErrConfigInvalid, "regime: cross lookback %d", c.CrossLookback)
	}
	return nil
}
