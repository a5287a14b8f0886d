package core

import (
	"fmt"
	"math"
)

// WeightTolerance is the allowed deviation of a weight vector sum from 1.
const WeightTolerance = 1e-6

// RewardMetric names the risk-adjusted metric a profile prefers
type RewardMetric string

const (
	RewardSharpe  RewardMetric = "sharpe"
	RewardSortino RewardMetric = "sortino"
	RewardCalmar  RewardMetric = "calmar"
)

// RiskProfile is a named, immutable allocation policy
type RiskProfile struct {
	Name      string
	RiskLevel int // 1 = most conservative

	BaseWeights      MegaWeights
	FixedIncomeFloor float64

	MaxDrawdown        float64 // tolerated peak-to-trough decline, positive fraction
	MaxDailyVaR        float64 // tolerated one-period loss at the risk confidence, positive fraction
	RiskAversion       float64 // scales the volatility penalty of the RL reward
	MaxSinglePosition  float64 // cap per stock as a fraction of the portfolio, 0 disables
	RebalanceThreshold float64
	RewardMetric       RewardMetric // risk term of the backtest reward, sharpe when empty
}

// Validate checks the profile invariants
func (p RiskProfile) Validate() error {
	if p.Name == "" {
		return WrapError(ErrInvalidProfile, fmt.Errorf("name is required"))
	}
	for _, c := range AssetClasses {
		if p.BaseWeights[c] < 0 {
			return Errorf(ErrInvalidProfile, "%s: base weight %s is negative", p.Name, c)
		}
	}
	if sum := p.BaseWeights.Sum(); math.Abs(sum-1) > WeightTolerance {
		return Errorf(ErrInvalidProfile, "%s: base weights sum to %.6f", p.Name, sum)
	}
	if p.FixedIncomeFloor < 0 || p.FixedIncomeFloor > p.BaseWeights[ClassFixedIncome] {
		return Errorf(ErrInvalidProfile, "%s: fixed income floor %.4f outside [0, %.4f]",
			p.Name, p.FixedIncomeFloor, p.BaseWeights[ClassFixedIncome])
	}
	if p.MaxDrawdown <= 0 || p.MaxDrawdown > 1 {
		return Errorf(ErrInvalidProfile, "%s: max drawdown %.4f outside (0, 1]", p.Name, p.MaxDrawdown)
	}
	if p.MaxDailyVaR < 0 {
		return Errorf(ErrInvalidProfile, "%s: max daily VaR cannot be negative", p.Name)
	}
	if p.RiskAversion < 0 {
		return Errorf(ErrInvalidProfile, "%s: risk aversion cannot be negative", p.Name)
	}
	if p.MaxSinglePosition < 0 || p.MaxSinglePosition > 1 {
		return Errorf(ErrInvalidProfile, "%s: max single position %.4f outside [0, 1]", p.Name, p.MaxSinglePosition)
	}
	if p.RebalanceThreshold < 0 {
		return Errorf(ErrInvalidProfile, "%s: rebalance threshold cannot be negative", p.Name)
	}
	switch p.RewardMetric {
	case "", RewardSharpe, RewardSortino, RewardCalmar:
	default:
		return Errorf(ErrInvalidProfile, "%s: unknown reward metric %q", p.Name, p.RewardMetric)
	}
	return nil
}
