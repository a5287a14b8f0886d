package backtest

import (
	"context"

	"github.com/newthinker/aporte/internal/allocator"
	"github.com/newthinker/aporte/internal/core"
)

// HoldPolicy never trades
type HoldPolicy struct{}

// Name implements Policy
func (HoldPolicy) Name() string { return "hold" }

// Decide implements Policy
func (HoldPolicy) Decide(context.Context, Observation) (map[string]float64, error) {
	return nil, nil
}

// FixedWeightsPolicy rebalances to the same weights every step
type FixedWeightsPolicy struct {
	Weights map[string]float64
}

// Name implements Policy
func (FixedWeightsPolicy) Name() string { return "fixed_weights" }

// Decide implements Policy
func (p FixedWeightsPolicy) Decide(context.Context, Observation) (map[string]float64, error) {
	out := make(map[string]float64, len(p.Weights))
	for t, w := range p.Weights {
		out[t] = w
	}
	return out, nil
}

// AllocatorPolicy rebalances to the rule-based allocation for the regime
// the environment currently observes.
type AllocatorPolicy struct {
	Allocator *allocator.Allocator
	Profile   core.RiskProfile
}

// Name implements Policy
func (AllocatorPolicy) Name() string { return "rule_based" }

// Decide implements Policy. Positions without a price series stay in cash.
func (p AllocatorPolicy) Decide(_ context.Context, obs Observation) (map[string]float64, error) {
	alloc, err := p.Allocator.Allocate(p.Profile, obs.Portfolio.Regime, allocator.Inputs{}, allocator.RuleBased())
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(obs.Tickers))
	for _, t := range obs.Tickers {
		known[t] = true
	}
	out := make(map[string]float64)
	for t, w := range alloc.Positions() {
		if known[t] {
			out[t] = w
		}
	}
	return out, nil
}
