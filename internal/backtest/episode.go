package backtest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/aporte/internal/core"
)

// Observation is what a policy sees before each step
type Observation struct {
	State     []float64
	Portfolio PortfolioState
	Tickers   []string
}

// Policy chooses target weights for each step. Returning nil weights holds.
type Policy interface {
	Name() string
	Decide(ctx context.Context, obs Observation) (map[string]float64, error)
}

// EpisodeRequest defines the range and data of one episode
type EpisodeRequest struct {
	InitialCapital float64
	Start          time.Time
	End            time.Time
	Prices         PriceTable
	Feed           IndicatorFeed
}

// Result holds the complete episode output
type Result struct {
	Policy       string
	StartDate    time.Time
	EndDate      time.Time
	Dates        []time.Time
	NAV          []float64
	Returns      []float64
	Benchmark    []float64 // benchmark returns aligned with Returns
	Rewards      []float64
	Regimes      []core.Regime
	Trades       int
	Costs        float64
	FinalValue   float64
	StoppedEarly bool
	Stats        Stats
}

// TotalReward sums the step rewards
func (r *Result) TotalReward() float64 {
	var sum float64
	for _, v := range r.Rewards {
		sum += v
	}
	return sum
}

// RunEpisode resets env and steps it with policy until done. When the
// episode is too short for statistics the result is returned together with
// ErrInsufficientSample.
func RunEpisode(ctx context.Context, env *Environment, policy Policy, req EpisodeRequest) (*Result, error) {
	state, err := env.Reset(req.InitialCapital, req.Start, req.End, req.Prices, req.Feed)
	if err != nil {
		return nil, err
	}

	start := env.Portfolio()
	result := &Result{
		Policy:    policy.Name(),
		StartDate: start.Date,
		Dates:     []time.Time{start.Date},
		NAV:       []float64{start.Value},
		Regimes:   []core.Regime{start.Regime.Regime},
	}
	tickers := env.Encoder().Tickers()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		weights, err := policy.Decide(ctx, Observation{State: state, Portfolio: env.Portfolio(), Tickers: tickers})
		if err != nil {
			return nil, err
		}
		step, err := env.Step(weights)
		if err != nil {
			return nil, err
		}

		state = step.State
		result.Dates = append(result.Dates, step.Diagnostics.Date)
		result.NAV = append(result.NAV, step.Diagnostics.Value)
		result.Returns = append(result.Returns, step.Diagnostics.Return)
		result.Benchmark = append(result.Benchmark, step.Diagnostics.Benchmark)
		result.Rewards = append(result.Rewards, step.Reward)
		result.Regimes = append(result.Regimes, step.Diagnostics.Regime)
		if step.Done {
			result.StoppedEarly = step.Diagnostics.HardStop
			break
		}
	}

	result.EndDate = result.Dates[len(result.Dates)-1]
	result.FinalValue = result.NAV[len(result.NAV)-1]
	result.Trades, result.Costs = env.Totals()

	stats, err := CalculateStats(result, env.cfg.Risk)
	result.Stats = stats
	if err != nil {
		return result, err
	}

	env.logger.Info("episode finished",
		zap.String("policy", result.Policy),
		zap.String("profile", env.profile.Name),
		zap.Int("periods", len(result.Returns)),
		zap.Float64("final_value", result.FinalValue),
		zap.Float64("cumulative_return", stats.CumulativeReturn),
		zap.Float64("max_drawdown", stats.MaxDrawdown),
		zap.Bool("stopped_early", result.StoppedEarly),
	)
	return result, nil
}
