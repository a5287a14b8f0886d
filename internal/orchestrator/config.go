package orchestrator

import (
	"github.com/newthinker/aporte/internal/allocator"
	"github.com/newthinker/aporte/internal/core"
)

// Config controls how a decision gathers and scores market data
type Config struct {
	Benchmark        string            `mapstructure:"benchmark"`
	ScoreLookback    int               `mapstructure:"score_lookback"`     // trading days of momentum
	PriceHistoryDays int               `mapstructure:"price_history_days"` // calendar days fetched per decision
	ClassProxies     map[string]string `mapstructure:"class_proxies"`      // asset class -> proxy ticker
	Strategy         string            `mapstructure:"strategy"`
	TopSignals       int               `mapstructure:"top_signals"`
}

// DefaultConfig returns the default decision settings
func DefaultConfig() Config {
	return Config{
		Benchmark:        "^BVSP",
		ScoreLookback:    63,
		PriceHistoryDays: 400,
		ClassProxies:     map[string]string{},
		Strategy:         string(allocator.StrategyRuleBased),
		TopSignals:       3,
	}
}

// Validate checks the settings
func (c Config) Validate() error {
	switch {
	case c.Benchmark == "":
		return core.Errorf(core.ErrConfigMissing, "orchestrator: benchmark is required")
	case c.ScoreLookback < 1:
		return core.Errorf(core.ErrConfigInvalid, "orchestrator: score lookback must be positive")
	case c.PriceHistoryDays < c.ScoreLookback:
		return core.Errorf(core.ErrConfigInvalid, "orchestrator: price history of %d days is shorter than the score lookback", c.PriceHistoryDays)
	case c.TopSignals < 1:
		return core.Errorf(core.ErrConfigInvalid, "orchestrator: top signals must be positive")
	}
	if _, err := ParseStrategy(c.Strategy); err != nil {
		return err
	}
	known := make(map[string]bool, len(core.AssetClasses))
	for _, class := range core.AssetClasses {
		known[string(class)] = true
	}
	for class, ticker := range c.ClassProxies {
		if !known[class] {
			return core.Errorf(core.ErrConfigInvalid, "orchestrator: proxy for unknown class %q", class)
		}
		if ticker == "" {
			return core.Errorf(core.ErrConfigInvalid, "orchestrator: empty proxy ticker for %s", class)
		}
	}
	return nil
}

// ParseStrategy maps a strategy name to its kind. Empty means rule-based.
func ParseStrategy(name string) (allocator.StrategyKind, error) {
	switch allocator.StrategyKind(name) {
	case "", allocator.StrategyRuleBased:
		return allocator.StrategyRuleBased, nil
	case allocator.StrategyRLAssisted:
		return allocator.StrategyRLAssisted, nil
	}
	return "", core.Errorf(core.ErrConfigInvalid, "unknown strategy %q", name)
}
