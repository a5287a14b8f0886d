package risk

import (
	"fmt"

	"github.com/newthinker/aporte/internal/core"
	"github.com/newthinker/aporte/internal/indicator"
)

// PortfolioReturns combines per-asset return series into weighted portfolio
// returns. Series are aligned on their most recent observations.
func PortfolioReturns(weights map[string]float64, series map[string][]float64) ([]float64, error) {
	n := -1
	for name, w := range weights {
		if w == 0 {
			continue
		}
		s, ok := series[name]
		if !ok {
			return nil, core.Errorf(core.ErrInsufficientData, "no return series for %s", name)
		}
		if n < 0 || len(s) < n {
			n = len(s)
		}
	}
	if n < 0 {
		return nil, core.Errorf(core.ErrInsufficientData, "no weighted assets")
	}
	out := make([]float64, n)
	for name, w := range weights {
		if w == 0 {
			continue
		}
		s := series[name]
		offset := len(s) - n
		for t := 0; t < n; t++ {
			out[t] += w * s[offset+t]
		}
	}
	return out, nil
}

// MixEstimator projects the risk of a mega-layer mix from historical returns
// of one proxy per asset class.
type MixEstimator struct {
	proxies map[string][]float64
	cfg     Config
}

// NewMixEstimator builds an estimator from class proxy price series.
func NewMixEstimator(classPrices map[core.AssetClass][]float64, cfg Config) (*MixEstimator, error) {
	proxies := make(map[string][]float64, len(classPrices))
	for class, prices := range classPrices {
		if len(prices) < 3 {
			return nil, core.Errorf(core.ErrInsufficientSample, "class %s proxy has %d prices", class, len(prices))
		}
		proxies[string(class)] = indicator.Returns(prices)
	}
	return &MixEstimator{proxies: proxies, cfg: cfg}, nil
}

func (e *MixEstimator) returns(mix core.MegaWeights) ([]float64, error) {
	weights := make(map[string]float64, len(mix))
	for class, w := range mix {
		weights[string(class)] = w
	}
	return PortfolioReturns(weights, e.proxies)
}

// EstimateDrawdown returns the historical max drawdown of the mix
func (e *MixEstimator) EstimateDrawdown(mix core.MegaWeights) (float64, error) {
	r, err := e.returns(mix)
	if err != nil {
		return 0, err
	}
	return MaxDrawdownFromReturns(r)
}

// EstimateVaR returns the one-period historical VaR of the mix as a positive loss
func (e *MixEstimator) EstimateVaR(mix core.MegaWeights) (float64, error) {
	r, err := e.returns(mix)
	if err != nil {
		return 0, err
	}
	q, err := VaR(r, e.cfg.Confidence)
	if err != nil {
		return 0, err
	}
	if q > 0 {
		return 0, nil
	}
	return -q, nil
}

// CheckResult is the outcome of validating a mix against a profile
type CheckResult struct {
	Passed   bool
	Reason   string
	VaR      float64 // positive loss
	Drawdown float64
}

// Check validates the mix's historical VaR and drawdown against the profile limits.
func (e *MixEstimator) Check(profile core.RiskProfile, mix core.MegaWeights) (CheckResult, error) {
	dd, err := e.EstimateDrawdown(mix)
	if err != nil {
		return CheckResult{}, err
	}
	v, err := e.EstimateVaR(mix)
	if err != nil {
		return CheckResult{}, err
	}
	res := CheckResult{Passed: true, VaR: v, Drawdown: dd}
	switch {
	case dd > profile.MaxDrawdown:
		res.Passed = false
		res.Reason = fmt.Sprintf("historical drawdown %.2f%% exceeds %s limit %.2f%%", dd*100, profile.Name, profile.MaxDrawdown*100)
	case profile.MaxDailyVaR > 0 && v > profile.MaxDailyVaR:
		res.Passed = false
		res.Reason = fmt.Sprintf("VaR %.2f%% exceeds %s limit %.2f%%", v*100, profile.Name, profile.MaxDailyVaR*100)
	default:
		res.Reason = fmt.Sprintf("drawdown %.2f%% and VaR %.2f%% within %s limits", dd*100, v*100, profile.Name)
	}
	return res, nil
}
