// Package risk implements the pure risk and performance metrics used by the
// allocator, the backtest environment and the decision orchestrator.
package risk

import (
	"math"
	"sort"

	"github.com/newthinker/aporte/internal/core"
	"github.com/newthinker/aporte/internal/indicator"
)

// TradingDaysPerYear is the default annualization factor for daily returns
const TradingDaysPerYear = 252

// zeroDispersion is the standard deviation below which a series is flat
const zeroDispersion = 1e-12

func requireSample(name string, n int) error {
	if n < 2 {
		return core.Errorf(core.ErrInsufficientSample, "%s needs at least 2 observations, got %d", name, n)
	}
	return nil
}

// quantile returns the q-quantile of sorted values using linear interpolation
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// VaR returns the historical Value at Risk: the empirical quantile of returns
// at 1-confidence. A loss shows up as a negative return.
func VaR(returns []float64, confidence float64) (float64, error) {
	if err := requireSample("VaR", len(returns)); err != nil {
		return 0, err
	}
	if confidence <= 0 || confidence >= 1 {
		return 0, core.Errorf(core.ErrConfigInvalid, "confidence %.4f outside (0, 1)", confidence)
	}
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	return quantile(sorted, 1-confidence), nil
}

// CVaR returns the mean of returns at or below the VaR threshold
func CVaR(returns []float64, confidence float64) (float64, error) {
	threshold, err := VaR(returns, confidence)
	if err != nil {
		return 0, err
	}
	var sum float64
	var n int
	for _, r := range returns {
		if r <= threshold {
			sum += r
			n++
		}
	}
	if n == 0 {
		return threshold, nil
	}
	return sum / float64(n), nil
}

// Volatility returns the annualized sample standard deviation
func Volatility(returns []float64, periodsPerYear float64) (float64, error) {
	if err := requireSample("volatility", len(returns)); err != nil {
		return 0, err
	}
	return indicator.StdDev(returns) * math.Sqrt(periodsPerYear), nil
}

// Sharpe returns the annualized Sharpe ratio. riskFreeRate is annual.
func Sharpe(returns []float64, riskFreeRate, periodsPerYear float64) (float64, error) {
	if err := requireSample("sharpe", len(returns)); err != nil {
		return 0, err
	}
	std := indicator.StdDev(returns)
	if std < zeroDispersion {
		return 0, core.Errorf(core.ErrInsufficientSample, "sharpe: returns have zero standard deviation")
	}
	excess := indicator.Mean(returns) - riskFreeRate/periodsPerYear
	return excess / std * math.Sqrt(periodsPerYear), nil
}

// Sortino returns the annualized Sortino ratio. The downside deviation is the
// population standard deviation of the negative excess returns. With no
// downside observations the ratio is +Inf, with a downside deviation of zero
// it is NaN; both return ErrUndefinedRatio.
func Sortino(returns []float64, riskFreeRate, periodsPerYear float64) (float64, error) {
	if err := requireSample("sortino", len(returns)); err != nil {
		return 0, err
	}
	rf := riskFreeRate / periodsPerYear
	var losses []float64
	for _, r := range returns {
		if ex := r - rf; ex < 0 {
			losses = append(losses, ex)
		}
	}
	if len(losses) == 0 {
		return math.Inf(1), core.Errorf(core.ErrUndefinedRatio, "sortino: no downside observations in %d returns", len(returns))
	}
	mean := indicator.Mean(losses)
	var variance float64
	for _, l := range losses {
		variance += (l - mean) * (l - mean)
	}
	dd := math.Sqrt(variance / float64(len(losses)))
	if dd < zeroDispersion {
		return math.NaN(), core.Errorf(core.ErrUndefinedRatio, "sortino: downside deviation is zero over %d negative returns", len(losses))
	}
	excess := indicator.Mean(returns) - rf
	return excess / dd * math.Sqrt(periodsPerYear), nil
}

// MaxDrawdown returns the largest peak-to-trough decline of a price series
// as a positive fraction.
func MaxDrawdown(prices []float64) (float64, error) {
	if err := requireSample("max drawdown", len(prices)); err != nil {
		return 0, err
	}
	var maxDD float64
	peak := prices[0]
	for _, p := range prices {
		if p > peak {
			peak = p
		}
		if peak > 0 {
			if dd := (peak - p) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD, nil
}

// MaxDrawdownFromReturns compounds returns from 1.0 and returns the largest
// decline of the resulting curve.
func MaxDrawdownFromReturns(returns []float64) (float64, error) {
	if err := requireSample("max drawdown", len(returns)); err != nil {
		return 0, err
	}
	curve := make([]float64, 0, len(returns)+1)
	curve = append(curve, 1)
	for _, r := range returns {
		curve = append(curve, curve[len(curve)-1]*(1+r))
	}
	return MaxDrawdown(curve)
}

// CumulativeReturn compounds the returns
func CumulativeReturn(returns []float64) float64 {
	growth := 1.0
	for _, r := range returns {
		growth *= 1 + r
	}
	return growth - 1
}

// AnnualizedReturn returns the geometric annualized return
func AnnualizedReturn(returns []float64, periodsPerYear float64) (float64, error) {
	if err := requireSample("annualized return", len(returns)); err != nil {
		return 0, err
	}
	growth := 1 + CumulativeReturn(returns)
	if growth <= 0 {
		return -1, nil
	}
	return math.Pow(growth, periodsPerYear/float64(len(returns))) - 1, nil
}

// Calmar returns the annualized return over the absolute maximum drawdown.
// A series without drawdown yields +Inf and ErrUndefinedRatio.
func Calmar(returns []float64, periodsPerYear float64) (float64, error) {
	ann, err := AnnualizedReturn(returns, periodsPerYear)
	if err != nil {
		return 0, err
	}
	dd, err := MaxDrawdownFromReturns(returns)
	if err != nil {
		return 0, err
	}
	if dd == 0 {
		return math.Inf(1), core.Errorf(core.ErrUndefinedRatio, "calmar: series has no drawdown")
	}
	return ann / dd, nil
}

// Beta returns cov(returns, benchmark) / var(benchmark). Series must be aligned.
func Beta(returns, benchmark []float64) (float64, error) {
	if len(returns) != len(benchmark) {
		return 0, core.Errorf(core.ErrInsufficientSample, "beta: %d returns against %d benchmark returns", len(returns), len(benchmark))
	}
	if err := requireSample("beta", len(returns)); err != nil {
		return 0, err
	}
	mr, mb := indicator.Mean(returns), indicator.Mean(benchmark)
	var cov, variance float64
	for i := range returns {
		cov += (returns[i] - mr) * (benchmark[i] - mb)
		variance += (benchmark[i] - mb) * (benchmark[i] - mb)
	}
	if math.Sqrt(variance/float64(len(benchmark)-1)) < zeroDispersion {
		return 0, core.Errorf(core.ErrInsufficientSample, "beta: benchmark has zero variance")
	}
	return cov / variance, nil
}
