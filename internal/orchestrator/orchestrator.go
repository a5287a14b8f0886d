// Package orchestrator turns a contribution request into an explained
// allocation decision: it gathers market data, classifies the regime,
// allocates, checks the projected risk and records the decision.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/newthinker/aporte/internal/allocator"
	"github.com/newthinker/aporte/internal/backtest"
	"github.com/newthinker/aporte/internal/core"
	"github.com/newthinker/aporte/internal/ledger"
	"github.com/newthinker/aporte/internal/metrics"
	"github.com/newthinker/aporte/internal/risk"
)

// MarketData supplies indicator snapshots and price histories
type MarketData interface {
	Snapshot(ctx context.Context, date time.Time) (core.IndicatorSnapshot, error)
	PriceHistory(ctx context.Context, tickers []string, start, end time.Time) (map[string][]core.PricePoint, error)
}

// Classifier labels the regime of a snapshot and benchmark closes
type Classifier interface {
	Classify(snap core.IndicatorSnapshot, prices []float64) (core.RegimeClassification, error)
}

// Profiles resolves risk profiles by name
type Profiles interface {
	Get(name string) (core.RiskProfile, error)
}

// Deps are the collaborators of an Orchestrator. Advisors, Encoder,
// Metrics and Logger are optional.
type Deps struct {
	Market     MarketData
	Classifier Classifier
	Allocator  *allocator.Allocator
	Profiles   Profiles
	Ledger     ledger.Ledger
	Encoder    *backtest.StateEncoder
	Advisors   map[string]allocator.PolicyAdvisor // by profile name
	Risk       risk.Config
	Metrics    *metrics.Registry
	Logger     *zap.Logger
}

// DecideRequest asks for the split of one contribution
type DecideRequest struct {
	Profile  string
	Amount   decimal.Decimal
	Date     time.Time // zero means today
	Strategy allocator.StrategyKind
}

// Orchestrator holds no per-decision state; concurrent Decide calls are
// safe as long as the collaborators are.
type Orchestrator struct {
	cfg  Config
	deps Deps
	now  func() time.Time
}

// New validates the config and collaborators
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Market == nil:
		return nil, core.Errorf(core.ErrConfigMissing, "orchestrator: market data is required")
	case deps.Classifier == nil:
		return nil, core.Errorf(core.ErrConfigMissing, "orchestrator: classifier is required")
	case deps.Allocator == nil:
		return nil, core.Errorf(core.ErrConfigMissing, "orchestrator: allocator is required")
	case deps.Profiles == nil:
		return nil, core.Errorf(core.ErrConfigMissing, "orchestrator: profiles are required")
	case deps.Ledger == nil:
		return nil, core.Errorf(core.ErrConfigMissing, "orchestrator: ledger is required")
	}
	if deps.Encoder == nil {
		deps.Encoder = backtest.NewStateEncoder(deps.Allocator.Universe().Tickers(), 0, nil)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Orchestrator{cfg: cfg, deps: deps, now: time.Now}, nil
}

// Decide produces and records the allocation decision for one contribution.
// Missing indicators, unpriced securities and an unavailable risk estimate
// degrade the decision instead of failing it.
func (o *Orchestrator) Decide(ctx context.Context, req DecideRequest) (*core.AllocationDecision, error) {
	profile, err := o.deps.Profiles.Get(req.Profile)
	if err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, core.Errorf(core.ErrInvalidAllocation, "contribution amount %s must be positive", req.Amount)
	}
	kind := req.Strategy
	if kind == "" {
		if kind, err = ParseStrategy(o.cfg.Strategy); err != nil {
			return nil, err
		}
	}
	date := req.Date
	if date.IsZero() {
		date = o.now()
	}
	date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	snap, err := o.deps.Market.Snapshot(ctx, date)
	if err != nil {
		return nil, err
	}
	histories, err := o.deps.Market.PriceHistory(ctx, o.tickers(), date.AddDate(0, 0, -o.cfg.PriceHistoryDays), date)
	if err != nil {
		return nil, err
	}
	closes := closesUntil(histories, date)
	bench := closes[o.cfg.Benchmark]
	if len(bench) == 0 {
		return nil, core.Errorf(core.ErrInsufficientData, "no price history for benchmark %s", o.cfg.Benchmark)
	}

	regime, err := o.deps.Classifier.Classify(snap, bench)
	if err != nil {
		return nil, err
	}

	var notes []string
	for _, name := range snap.Missing() {
		notes = append(notes, fmt.Sprintf("indicator %s unavailable", name))
	}
	sectorScores, securityScores, unpriced := o.scores(closes)
	for _, t := range unpriced {
		notes = append(notes, fmt.Sprintf("no price history for %s", t))
	}

	in := allocator.Inputs{SectorScores: sectorScores, SecurityScores: securityScores}
	est, err := o.estimator(profile, closes)
	if err != nil {
		notes = append(notes, fmt.Sprintf("risk estimate unavailable: %v", err))
	} else {
		in.Risk = est
	}

	strategy := allocator.RuleBased()
	if kind == allocator.StrategyRLAssisted {
		state := o.deps.Encoder.Encode(backtest.EncoderInput{
			ValueRatio: 1,
			Weights:    o.baseWeights(profile, in),
			Regime:     regime.Regime,
			Benchmark:  bench,
			Snapshot:   &snap,
		})
		strategy = allocator.RLAssisted(o.deps.Advisors[profile.Name], state)
	}

	alloc, err := o.deps.Allocator.Allocate(profile, regime, in, strategy)
	if err != nil {
		return nil, err
	}
	for _, d := range alloc.Degradations {
		notes = append(notes, d.Error())
	}

	check := alloc.Check
	passed := check != nil && check.Passed
	if !passed {
		o.deps.Metrics.RecordRiskCheckFailure(profile.Name)
	}

	decision := &core.AllocationDecision{
		Date:               date,
		ProfileName:        profile.Name,
		ContributionAmount: req.Amount,
		Regime:             regime,
		Mega:               alloc.Mega.Clone(),
		Meso:               alloc.Meso,
		Micro:              alloc.Micro,
		ClassAmounts:       splitAmounts(req.Amount, map[core.AssetClass]float64(alloc.Mega), core.AssetClasses),
		PositionAmounts:    splitAmounts(req.Amount, alloc.Positions(), nil),
		Strategy:           string(alloc.Strategy),
		Action:             alloc.Action,
		RiskCheckPassed:    passed,
		Degraded:           len(notes) > 0,
		Degradations:       notes,
		CreatedAt:          o.now().UTC(),
	}
	decision.Justification = justify(decision, profile, alloc.Tilts, check, o.cfg.TopSignals)

	if err := o.deps.Ledger.Append(ctx, decision); err != nil {
		return nil, fmt.Errorf("recording decision: %w", err)
	}
	o.deps.Metrics.RecordDecision(profile.Name, string(regime.Regime), regime.Strength, decision.Degraded)
	o.deps.Logger.Info("contribution decided",
		zap.String("id", decision.ID),
		zap.String("profile", profile.Name),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("regime", string(regime.Regime)),
		zap.Float64("strength", regime.Strength),
		zap.String("strategy", decision.Strategy),
		zap.Bool("risk_check_passed", passed),
		zap.Bool("degraded", decision.Degraded),
	)
	if decision.Degraded {
		o.deps.Logger.Warn("decision degraded",
			zap.String("id", decision.ID),
			zap.Strings("degradations", notes),
		)
	}
	return decision, nil
}

// baseWeights spreads the untilted profile mix over the ranked securities.
// A live decision holds no positions, so the policy observes the base mix
// as the current portfolio.
func (o *Orchestrator) baseWeights(profile core.RiskProfile, in allocator.Inputs) map[string]float64 {
	neutral := core.RegimeClassification{Regime: core.RegimeSideways}
	scores := allocator.Inputs{SectorScores: in.SectorScores, SecurityScores: in.SecurityScores}
	base, err := o.deps.Allocator.Allocate(profile, neutral, scores, allocator.RuleBased())
	if err != nil {
		o.deps.Logger.Debug("base weights unavailable for policy state", zap.Error(err))
		return nil
	}
	return base.Positions()
}

// tickers lists the universe, the benchmark and the class proxies
func (o *Orchestrator) tickers() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range o.deps.Allocator.Universe().Tickers() {
		add(t)
	}
	add(o.cfg.Benchmark)
	for _, t := range o.cfg.ClassProxies {
		add(t)
	}
	sort.Strings(out)
	return out
}

// closesUntil sorts each history and keeps valid closes up to date
func closesUntil(histories map[string][]core.PricePoint, date time.Time) map[string][]float64 {
	out := make(map[string][]float64, len(histories))
	for ticker, points := range histories {
		points = append([]core.PricePoint(nil), points...)
		sort.Slice(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })
		var closes []float64
		for _, p := range points {
			if p.IsValid() && !p.Time.After(date) {
				closes = append(closes, p.Close)
			}
		}
		if len(closes) > 0 {
			out[ticker] = closes
		}
	}
	return out
}
