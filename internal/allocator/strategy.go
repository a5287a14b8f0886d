package allocator

import (
	"github.com/newthinker/aporte/internal/core"
)

// StrategyKind tags how an allocation was produced
type StrategyKind string

const (
	StrategyRuleBased  StrategyKind = "rule_based"
	StrategyRLAssisted StrategyKind = "rl_assisted"
)

// Advice is a policy's recommended mega and meso split
type Advice struct {
	Action string
	Mega   core.MegaWeights
	Meso   map[string]float64
}

// PolicyAdvisor recommends an allocation for an encoded state
type PolicyAdvisor interface {
	Advise(state []float64) (Advice, error)
}

// Strategy selects between the rule-based tilt and a learned policy.
// Build one with RuleBased or RLAssisted.
type Strategy struct {
	kind    StrategyKind
	advisor PolicyAdvisor
	state   []float64
}

// RuleBased tilts the profile base weights by regime
func RuleBased() Strategy {
	return Strategy{kind: StrategyRuleBased}
}

// RLAssisted consults the advisor for the given state, falling back to the
// rule-based tilt when the advisor fails.
func RLAssisted(advisor PolicyAdvisor, state []float64) Strategy {
	return Strategy{
		kind:    StrategyRLAssisted,
		advisor: advisor,
		state:   append([]float64(nil), state...),
	}
}

// Kind returns the strategy tag
func (s Strategy) Kind() StrategyKind {
	if s.kind == "" {
		return StrategyRuleBased
	}
	return s.kind
}
