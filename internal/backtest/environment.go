// Package backtest simulates contributions over historical prices so that
// allocation policies can be evaluated and trained.
package backtest

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/aporte/internal/core"
	"github.com/newthinker/aporte/internal/indicator"
	"github.com/newthinker/aporte/internal/risk"
)

// Config holds cost, penalty and encoding parameters of the environment
type Config struct {
	CostRate          float64     `mapstructure:"cost_rate"`
	VolatilityPenalty float64     `mapstructure:"volatility_penalty"`
	DrawdownPenalty   float64     `mapstructure:"drawdown_penalty"`
	HardStopDrawdown  float64     `mapstructure:"hard_stop_drawdown"`
	VolatilityWindow  int         `mapstructure:"volatility_window"`
	Window            int         `mapstructure:"window"`
	Benchmark         string      `mapstructure:"benchmark"`
	Indicators        []string    `mapstructure:"indicators"`
	Risk              risk.Config `mapstructure:"-"`
}

// DefaultConfig returns the default environment parameters
func DefaultConfig() Config {
	return Config{
		CostRate:          0.001,
		VolatilityPenalty: 0.5,
		DrawdownPenalty:   1.0,
		HardStopDrawdown:  0.5,
		VolatilityWindow:  20,
		Window:            20,
		Indicators: []string{
			core.IndicatorPolicyRate,
			core.IndicatorInflation,
			core.IndicatorVolatilityIndex,
		},
		Risk: risk.DefaultConfig(),
	}
}

// Validate checks parameter ranges
func (c Config) Validate() error {
	switch {
	case c.CostRate < 0 || c.CostRate >= 0.5:
		return core.Errorf(core.ErrConfigInvalid, "backtest: cost rate %.4f outside [0, 0.5)", c.CostRate)
	case c.VolatilityPenalty < 0 || c.DrawdownPenalty < 0:
		return core.Errorf(core.ErrConfigInvalid, "backtest: penalties cannot be negative")
	case c.HardStopDrawdown <= 0 || c.HardStopDrawdown > 1:
		return core.Errorf(core.ErrConfigInvalid, "backtest: hard stop %.3f outside (0, 1]", c.HardStopDrawdown)
	case c.VolatilityWindow < 2:
		return core.Errorf(core.ErrConfigInvalid, "backtest: volatility window must be at least 2")
	case c.Window < 0:
		return core.Errorf(core.ErrConfigInvalid, "backtest: window cannot be negative")
	}
	return nil
}

// Classifier labels the regime for a snapshot and benchmark window
type Classifier interface {
	Classify(snap core.IndicatorSnapshot, prices []float64) (core.RegimeClassification, error)
}

// Environment is a single-owner simulation of one portfolio. It is not safe
// for concurrent use; parallel runs each create their own.
type Environment struct {
	cfg        Config
	profile    core.RiskProfile
	classifier Classifier
	logger     *zap.Logger

	status    Status
	prices    PriceTable
	feed      IndicatorFeed
	encoder   *StateEncoder
	benchmark string
	idx, end  int

	initial  float64
	cash     float64
	units    map[string]float64
	peak     float64
	returns  []float64
	regime   core.RegimeClassification
	snapshot *core.IndicatorSnapshot
	trades   int
	costs    float64
}

// NewEnvironment creates an environment for one profile. classifier may be
// nil, in which case the regime stays at its initial value.
func NewEnvironment(cfg Config, profile core.RiskProfile, classifier Classifier, logger *zap.Logger) (*Environment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Environment{
		cfg:        cfg,
		profile:    profile,
		classifier: classifier,
		logger:     logger,
	}, nil
}

// Status returns the lifecycle state
func (e *Environment) Status() Status {
	return e.status
}

// Profile returns the profile the environment penalizes against
func (e *Environment) Profile() core.RiskProfile {
	return e.profile
}

// Encoder returns the state encoder of the current episode, nil before Reset
func (e *Environment) Encoder() *StateEncoder {
	return e.encoder
}

// Reset starts a new episode over [start, end] and returns the initial state.
func (e *Environment) Reset(initialCapital float64, start, end time.Time, prices PriceTable, feed IndicatorFeed) ([]float64, error) {
	if initialCapital <= 0 {
		return nil, core.Errorf(core.ErrInvalidRange, "initial capital %.2f must be positive", initialCapital)
	}
	if !start.Before(end) {
		return nil, core.Errorf(core.ErrInvalidRange, "start %s not before end %s",
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	if err := prices.Validate(); err != nil {
		return nil, core.WrapError(core.ErrInvalidRange, err)
	}
	first, last := prices.Dates[0], prices.Dates[len(prices.Dates)-1]
	if start.Before(first) || end.After(last) {
		return nil, core.Errorf(core.ErrInvalidRange, "prices cover %s..%s, requested %s..%s",
			first.Format(time.DateOnly), last.Format(time.DateOnly),
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	startIdx, endIdx := -1, -1
	for i, d := range prices.Dates {
		if startIdx < 0 && !d.Before(start) {
			startIdx = i
		}
		if !d.After(end) {
			endIdx = i
		}
	}
	if startIdx < 0 || endIdx-startIdx < 1 {
		return nil, core.Errorf(core.ErrInvalidRange, "range %s..%s holds fewer than 2 periods",
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	benchmark := e.cfg.Benchmark
	if benchmark == "" {
		benchmark = prices.Tickers()[0]
	}
	if _, ok := prices.Series[benchmark]; !ok {
		return nil, core.Errorf(core.ErrInvalidRange, "benchmark %s not in price table", benchmark)
	}

	e.status = StatusReady
	e.prices = prices
	e.feed = feed
	e.benchmark = benchmark
	e.encoder = NewStateEncoder(prices.Tickers(), e.cfg.Window, e.cfg.Indicators)
	e.idx, e.end = startIdx, endIdx
	e.initial = initialCapital
	e.cash = initialCapital
	e.units = make(map[string]float64)
	e.peak = initialCapital
	e.returns = nil
	e.trades = 0
	e.costs = 0
	e.snapshot = nil
	e.regime = core.RegimeClassification{Regime: core.RegimeSideways}
	e.updateRegime()

	e.status = StatusRunning
	e.logger.Debug("episode reset",
		zap.String("profile", e.profile.Name),
		zap.Time("start", prices.Dates[startIdx]),
		zap.Time("end", prices.Dates[endIdx]),
		zap.Int("periods", endIdx-startIdx),
	)
	return e.state(), nil
}

// Step applies target weights, advances one period and returns the reward.
// nil weights hold the current units. Weights summing above 1 are scaled
// down; the remainder stays in cash.
func (e *Environment) Step(weights map[string]float64) (StepResult, error) {
	switch e.status {
	case StatusUninitialized, StatusReady:
		return StepResult{}, core.Errorf(core.ErrEnvironmentNotReady, "status %s", e.status)
	case StatusDone:
		return StepResult{}, core.Errorf(core.ErrEnvironmentFinished, "episode ended on %s",
			e.prices.Dates[e.idx].Format(time.DateOnly))
	}

	before := e.value(e.idx)
	var diag Diagnostics
	if weights != nil {
		targets, err := e.targets(weights)
		if err != nil {
			return StepResult{}, err
		}
		diag.Turnover, diag.Cost, diag.Trades = e.rebalance(targets, before)
	}

	e.idx++
	after := e.value(e.idx)
	ret := after/before - 1
	e.returns = append(e.returns, ret)
	e.peak = math.Max(e.peak, after)
	dd := (e.peak - after) / e.peak

	diag.RegimeUpdated = e.updateRegime()
	diag.Volatility = e.volatility()
	diag.Date = e.prices.Dates[e.idx]
	diag.Value = after
	diag.Return = ret
	diag.Benchmark = e.prices.Series[e.benchmark][e.idx]/e.prices.Series[e.benchmark][e.idx-1] - 1
	diag.Drawdown = dd
	diag.Regime = e.regime.Regime
	diag.HardStop = dd >= e.cfg.HardStopDrawdown

	reward := ret -
		e.cfg.VolatilityPenalty*e.profile.RiskAversion*e.riskTerm(diag.Volatility, dd) -
		e.cfg.DrawdownPenalty*math.Max(0, dd-e.profile.MaxDrawdown)

	done := e.idx >= e.end || diag.HardStop
	if done {
		e.status = StatusDone
		if diag.HardStop {
			e.logger.Warn("episode hit hard stop drawdown",
				zap.String("profile", e.profile.Name),
				zap.Float64("drawdown", dd),
			)
		}
	}

	return StepResult{
		State:       e.state(),
		Portfolio:   e.Portfolio(),
		Reward:      reward,
		Done:        done,
		Diagnostics: diag,
	}, nil
}

// Portfolio returns a copy of the current portfolio state
func (e *Environment) Portfolio() PortfolioState {
	v := e.value(e.idx)
	units := make(map[string]float64, len(e.units))
	for t, u := range e.units {
		units[t] = u
	}
	return PortfolioState{
		Date:     e.prices.Dates[e.idx],
		Cash:     e.cash,
		Units:    units,
		Value:    v,
		Weights:  e.weights(v),
		Peak:     e.peak,
		Drawdown: (e.peak - v) / e.peak,
		Regime:   e.regime,
	}
}

// Totals returns the trade count and cost paid so far in the episode
func (e *Environment) Totals() (trades int, costs float64) {
	return e.trades, e.costs
}

func (e *Environment) targets(weights map[string]float64) (map[string]float64, error) {
	var sum float64
	for t, w := range weights {
		if w < 0 || math.IsNaN(w) {
			return nil, core.Errorf(core.ErrInvalidAllocation, "weight for %s is %.4f", t, w)
		}
		if _, ok := e.prices.Series[t]; !ok {
			return nil, core.Errorf(core.ErrInvalidAllocation, "unknown ticker %s", t)
		}
		sum += w
	}
	out := make(map[string]float64, len(weights))
	for t, w := range weights {
		if sum > 1+core.WeightTolerance {
			w /= sum
		}
		out[t] = w
	}
	return out, nil
}

// rebalance trades to targets at the current prices. The transaction cost
// is charged on turnover before buying, so cash never goes negative.
func (e *Environment) rebalance(targets map[string]float64, value float64) (turnover, cost float64, trades int) {
	current := e.weights(value)
	seen := make(map[string]bool, len(targets)+len(current))
	for t, w := range targets {
		seen[t] = true
		delta := math.Abs(w - current[t])
		turnover += delta
		if delta > core.WeightTolerance {
			trades++
		}
	}
	for t, w := range current {
		if !seen[t] {
			turnover += w
			if w > core.WeightTolerance {
				trades++
			}
		}
	}

	cost = turnover * e.cfg.CostRate * value
	investable := value - cost
	var invested float64
	units := make(map[string]float64, len(targets))
	for t, w := range targets {
		if w == 0 {
			continue
		}
		units[t] = w * investable / e.prices.Series[t][e.idx]
		invested += w * investable
	}
	e.units = units
	e.cash = investable - invested
	e.trades += trades
	e.costs += cost
	return turnover, cost, trades
}

func (e *Environment) value(idx int) float64 {
	v := e.cash
	for t, u := range e.units {
		v += u * e.prices.Series[t][idx]
	}
	return v
}

func (e *Environment) weights(value float64) map[string]float64 {
	out := make(map[string]float64, len(e.units))
	if value <= 0 {
		return out
	}
	for t, u := range e.units {
		out[t] = u * e.prices.Series[t][e.idx] / value
	}
	return out
}

func (e *Environment) volatility() float64 {
	r := e.returns
	if len(r) > e.cfg.VolatilityWindow {
		r = r[len(r)-e.cfg.VolatilityWindow:]
	}
	return indicator.StdDev(r)
}

// riskTerm is the dispersion the reward penalizes under the profile's
// reward metric: volatility for sharpe, downside deviation for sortino and
// the current drawdown for calmar.
func (e *Environment) riskTerm(vol, dd float64) float64 {
	switch e.profile.RewardMetric {
	case core.RewardSortino:
		r := e.returns
		if len(r) > e.cfg.VolatilityWindow {
			r = r[len(r)-e.cfg.VolatilityWindow:]
		}
		var losses []float64
		for _, v := range r {
			if v < 0 {
				losses = append(losses, v)
			}
		}
		return indicator.StdDev(losses)
	case core.RewardCalmar:
		return dd
	default:
		return vol
	}
}

func (e *Environment) benchmarkWindow() []float64 {
	return e.prices.Series[e.benchmark][:e.idx+1]
}

// updateRegime reclassifies when the feed has a snapshot for the current
// date. The last known regime is kept otherwise.
func (e *Environment) updateRegime() bool {
	if e.feed == nil {
		return false
	}
	snap, ok := e.feed.At(e.prices.Dates[e.idx])
	if !ok {
		return false
	}
	e.snapshot = &snap
	if e.classifier == nil {
		return false
	}
	c, err := e.classifier.Classify(snap, e.benchmarkWindow())
	if err != nil {
		e.logger.Debug("regime kept", zap.Time("date", e.prices.Dates[e.idx]), zap.Error(err))
		return false
	}
	e.regime = c
	return true
}

func (e *Environment) state() []float64 {
	v := e.value(e.idx)
	return e.encoder.Encode(EncoderInput{
		ValueRatio: v / e.initial,
		Weights:    e.weights(v),
		Regime:     e.regime.Regime,
		Benchmark:  e.benchmarkWindow(),
		Snapshot:   e.snapshot,
	})
}
