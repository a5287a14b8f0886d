// Package allocator splits a contribution across asset classes (mega),
// equity sectors (meso) and securities (micro) conditioned on the regime
// and the risk profile.
package allocator

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/newthinker/aporte/internal/core"
	"github.com/newthinker/aporte/internal/risk"
)

// RiskEstimator validates the projected VaR and drawdown of a mega-layer mix
// against a profile
type RiskEstimator interface {
	Check(profile core.RiskProfile, mix core.MegaWeights) (risk.CheckResult, error)
}

// ProfileSource supplies the most conservative profile for transition blends
type ProfileSource interface {
	MostConservative() (core.RiskProfile, error)
}

// Inputs carries the scores the meso and micro layers rank by
type Inputs struct {
	SectorScores   map[string]float64
	SecurityScores map[string]float64
	Risk           RiskEstimator // optional
}

// Allocation is the three-layer result of one Allocate call
type Allocation struct {
	Mega         core.MegaWeights
	Meso         map[string]float64
	Micro        map[string]map[string]float64
	Tilts        []string
	Degradations []error
	Strategy     StrategyKind
	Action       string
	Check        *risk.CheckResult // nil when no estimate was available

	universe    *core.Universe
	maxPosition float64
}

// Degraded reports whether any fallback was taken
func (a *Allocation) Degraded() bool {
	return len(a.Degradations) > 0
}

// Allocator is stateless after construction and safe for concurrent use
type Allocator struct {
	cfg      Config
	universe *core.Universe
	profiles ProfileSource
	logger   *zap.Logger
}

// New creates an allocator over a universe
func New(cfg Config, universe *core.Universe, profiles ProfileSource, logger *zap.Logger) (*Allocator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if universe == nil {
		return nil, core.Errorf(core.ErrConfigMissing, "allocator: universe is required")
	}
	if profiles == nil {
		return nil, core.Errorf(core.ErrConfigMissing, "allocator: profile source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Allocator{cfg: cfg, universe: universe, profiles: profiles, logger: logger}, nil
}

// Universe returns the universe the allocator ranks
func (a *Allocator) Universe() *core.Universe {
	return a.universe
}

// Allocate produces the three-layer allocation. Fallbacks are reported in
// Allocation.Degradations rather than as an error.
func (a *Allocator) Allocate(profile core.RiskProfile, regime core.RegimeClassification, in Inputs, strategy Strategy) (*Allocation, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	out := &Allocation{
		Strategy:    StrategyRuleBased,
		universe:    a.universe,
		maxPosition: profile.MaxSinglePosition,
	}
	var advice *Advice
	if strategy.Kind() == StrategyRLAssisted {
		adv, err := a.advise(strategy)
		if err != nil {
			a.logger.Warn("policy advice unavailable, using rule-based tilt",
				zap.String("profile", profile.Name),
				zap.Error(err),
			)
			out.Tilts = append(out.Tilts, fmt.Sprintf("policy unavailable (%v); rule-based tilt used", err))
		} else {
			advice = &adv
			out.Strategy = StrategyRLAssisted
			out.Action = adv.Action
			out.Tilts = append(out.Tilts, fmt.Sprintf("policy action %s", adv.Action))
		}
	}

	if advice != nil {
		out.Mega = a.enforceFloor(profile, advice.Mega.Normalize())
	} else {
		mega, note, err := a.tiltMega(profile, regime)
		if err != nil {
			return nil, err
		}
		out.Mega = mega
		if note != "" {
			out.Tilts = append(out.Tilts, note)
		}
	}

	if in.Risk != nil {
		check, err := a.checkProfile(profile, out.Mega, in.Risk)
		if err != nil {
			a.logger.Warn("projected risk exceeds profile, using base weights",
				zap.String("profile", profile.Name),
				zap.Error(err),
			)
			out.Degradations = append(out.Degradations, err)
			out.Mega = profile.BaseWeights.Normalize()
			out.Tilts = append(out.Tilts, "mega: base weights restored after profile check")
			advice = nil
			regime = core.RegimeClassification{Regime: core.RegimeSideways}
			check = nil
			if base, err := in.Risk.Check(profile, out.Mega); err == nil {
				check = &base
			}
		}
		out.Check = check
	}

	var raw map[string]float64
	if advice != nil && len(advice.Meso) > 0 {
		raw = a.adviceMeso(advice.Meso)
	}
	if raw == nil {
		var notes []string
		raw, notes = a.tiltedMeso(in.SectorScores, regime)
		out.Tilts = append(out.Tilts, notes...)
	}
	meso, err := a.capSectors(raw)
	if err != nil {
		a.logger.Warn("sector cap did not converge", zap.Error(err))
		out.Degradations = append(out.Degradations, err)
	}
	out.Meso = meso
	out.Micro = a.micro(in.SecurityScores)

	if math.Abs(out.Mega.Sum()-1) > core.WeightTolerance {
		return nil, core.Errorf(core.ErrInvalidAllocation, "mega weights sum to %.6f", out.Mega.Sum())
	}
	return out, nil
}

func (a *Allocator) advise(strategy Strategy) (Advice, error) {
	if strategy.advisor == nil {
		return Advice{}, core.Errorf(core.ErrPolicyUnavailable, "no advisor configured")
	}
	adv, err := strategy.advisor.Advise(strategy.state)
	if err != nil {
		return Advice{}, err
	}
	if adv.Mega.Sum() <= 0 {
		return Advice{}, core.Errorf(core.ErrInvalidAllocation, "advisor returned empty mega weights")
	}
	for c, w := range adv.Mega {
		if w < 0 {
			return Advice{}, core.Errorf(core.ErrInvalidAllocation, "advisor weight for %s is negative", c)
		}
	}
	return adv, nil
}

// checkProfile returns ErrProfileViolation when the mix breaches the VaR or
// drawdown limit of the profile, or when its risk cannot be estimated.
func (a *Allocator) checkProfile(profile core.RiskProfile, mega core.MegaWeights, est RiskEstimator) (*risk.CheckResult, error) {
	res, err := est.Check(profile, mega)
	if err != nil {
		return nil, core.WrapError(core.ErrProfileViolation, fmt.Errorf("projected risk unavailable: %w", err))
	}
	if !res.Passed {
		return &res, core.Errorf(core.ErrProfileViolation, "%s", res.Reason)
	}
	return &res, nil
}
