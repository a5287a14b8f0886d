package risk

import (
	"errors"
	"math"

	"github.com/newthinker/aporte/internal/core"
	"github.com/newthinker/aporte/internal/indicator"
)

// Config parameterizes the risk engine
type Config struct {
	Confidence     float64 `mapstructure:"confidence"`
	RiskFreeRate   float64 `mapstructure:"risk_free_rate"` // annual
	PeriodsPerYear float64 `mapstructure:"periods_per_year"`
	StressShock    float64 `mapstructure:"stress_shock"` // subtracted from every return
}

// DefaultConfig returns 95% confidence, zero risk-free rate, daily periods
// and a 10% stress shock
func DefaultConfig() Config {
	return Config{
		Confidence:     0.95,
		RiskFreeRate:   0,
		PeriodsPerYear: TradingDaysPerYear,
		StressShock:    0.1,
	}
}

// Report collects every metric for one return series. Metrics that are
// undefined for the sample are listed in Undefined and hold NaN or +Inf.
type Report struct {
	Observations     int
	CumulativeReturn float64
	AnnualReturn     float64
	Volatility       float64
	VaR              float64
	CVaR             float64
	Sharpe           float64
	Sortino          float64
	Calmar           float64
	MaxDrawdown      float64
	Undefined        []string
}

// IsDefined reports whether a metric was computable
func (r Report) IsDefined(metric string) bool {
	for _, u := range r.Undefined {
		if u == metric {
			return false
		}
	}
	return true
}

// Evaluate computes a full report. It fails only when the sample itself is
// too small; per-ratio failures are recorded in Report.Undefined.
func Evaluate(returns []float64, cfg Config) (Report, error) {
	if err := requireSample("evaluate", len(returns)); err != nil {
		return Report{}, err
	}
	rep := Report{
		Observations:     len(returns),
		CumulativeReturn: CumulativeReturn(returns),
	}

	var err error
	if rep.AnnualReturn, err = AnnualizedReturn(returns, cfg.PeriodsPerYear); err != nil {
		return Report{}, err
	}
	if rep.Volatility, err = Volatility(returns, cfg.PeriodsPerYear); err != nil {
		return Report{}, err
	}
	if rep.VaR, err = VaR(returns, cfg.Confidence); err != nil {
		return Report{}, err
	}
	if rep.CVaR, err = CVaR(returns, cfg.Confidence); err != nil {
		return Report{}, err
	}
	if rep.MaxDrawdown, err = MaxDrawdownFromReturns(returns); err != nil {
		return Report{}, err
	}

	if rep.Sharpe, err = Sharpe(returns, cfg.RiskFreeRate, cfg.PeriodsPerYear); err != nil {
		if !errors.Is(err, core.ErrInsufficientSample) {
			return Report{}, err
		}
		rep.Sharpe = math.NaN()
		rep.Undefined = append(rep.Undefined, "sharpe")
	}
	if rep.Sortino, err = Sortino(returns, cfg.RiskFreeRate, cfg.PeriodsPerYear); err != nil {
		if !errors.Is(err, core.ErrUndefinedRatio) {
			return Report{}, err
		}
		rep.Undefined = append(rep.Undefined, "sortino")
	}
	if rep.Calmar, err = Calmar(returns, cfg.PeriodsPerYear); err != nil {
		if !errors.Is(err, core.ErrUndefinedRatio) {
			return Report{}, err
		}
		rep.Undefined = append(rep.Undefined, "calmar")
	}
	return rep, nil
}

// StressResult compares a return series before and after a uniform shock
type StressResult struct {
	NormalReturn       float64
	NormalVolatility   float64
	StressedReturn     float64
	StressedVolatility float64
	Impact             float64
}

// StressTest subtracts shock from every return and compares mean and
// volatility.
func StressTest(returns []float64, shock float64) (StressResult, error) {
	if err := requireSample("stress test", len(returns)); err != nil {
		return StressResult{}, err
	}
	stressed := make([]float64, len(returns))
	for i, r := range returns {
		stressed[i] = r - shock
	}
	res := StressResult{
		NormalReturn:   indicator.Mean(returns),
		StressedReturn: indicator.Mean(stressed),
	}
	res.NormalVolatility, _ = Volatility(returns, 1)
	res.StressedVolatility, _ = Volatility(stressed, 1)
	res.Impact = res.StressedReturn - res.NormalReturn
	return res, nil
}
