package backtest

import (
	"math"

	"github.com/newthinker/aporte/internal/risk"
)

// Stats summarizes an episode
type Stats struct {
	risk.Report
	Beta       float64 // NaN when the benchmark series is unusable
	Stress     risk.StressResult
	Trades     int
	Costs      float64
	FinalValue float64
}

// CalculateStats evaluates the episode return series with the risk engine
func CalculateStats(result *Result, cfg risk.Config) (Stats, error) {
	stats := Stats{
		Beta:       math.NaN(),
		Trades:     result.Trades,
		Costs:      result.Costs,
		FinalValue: result.FinalValue,
	}
	rep, err := risk.Evaluate(result.Returns, cfg)
	if err != nil {
		return stats, err
	}
	stats.Report = rep
	if beta, err := risk.Beta(result.Returns, result.Benchmark); err == nil {
		stats.Beta = beta
	} else {
		stats.Undefined = append(stats.Undefined, "beta")
	}
	if stats.Stress, err = risk.StressTest(result.Returns, cfg.StressShock); err != nil {
		return stats, err
	}
	return stats, nil
}
