package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/aporte/internal/backtest"
	"github.com/newthinker/aporte/internal/core"
	"github.com/newthinker/aporte/internal/rl"
)

// Backtest policy names
const (
	PolicyRuleBased   = "rule_based"
	PolicyBaseWeights = "base_weights"
	PolicyHold        = "hold"
	PolicyRL          = "rl"
)

// SimulationRequest selects the profile, range and policy of a run. Zero
// fields fall back to the backtest section of the config.
type SimulationRequest struct {
	Profile        string
	Policy         string
	Start, End     time.Time
	InitialCapital float64
	Episodes       int
	Resume         bool // continue training from the stored checkpoint when present
}

func (a *App) resolve(req SimulationRequest) (SimulationRequest, error) {
	if req.Start.IsZero() || req.End.IsZero() {
		start, end, err := a.cfg.Backtest.Range()
		if err != nil {
			return req, err
		}
		if req.Start.IsZero() {
			req.Start = start
		}
		if req.End.IsZero() {
			req.End = end
		}
	}
	if req.InitialCapital == 0 {
		req.InitialCapital = a.cfg.Backtest.InitialCapital
	}
	if req.Episodes == 0 {
		req.Episodes = a.cfg.RL.Episodes
	}
	if req.Policy == "" {
		req.Policy = PolicyRuleBased
	}
	return req, nil
}

// Backtest replays one profile over historical data with the chosen policy.
// A result too short for statistics is returned with ErrInsufficientSample.
func (a *App) Backtest(ctx context.Context, req SimulationRequest) (*backtest.Result, error) {
	req, err := a.resolve(req)
	if err != nil {
		return nil, err
	}
	p, err := a.profiles.Get(req.Profile)
	if err != nil {
		return nil, err
	}
	data, err := a.Dataset(ctx, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	env, err := backtest.NewEnvironment(a.envConfig(), p, a.classifier, a.logger.Named("backtest"))
	if err != nil {
		return nil, err
	}

	mapper := rl.NewActionMapper(a.universe, data.Prices.Tickers())
	var policy backtest.Policy
	switch strings.ToLower(req.Policy) {
	case PolicyRuleBased:
		policy = backtest.AllocatorPolicy{Allocator: a.allocator, Profile: p}
	case PolicyBaseWeights:
		balanced := rl.DefaultTemplates([]core.RiskProfile{p}, a.universe.Sectors(), rl.TemplateOptions{})[0]
		policy = backtest.FixedWeightsPolicy{Weights: mapper.Map(balanced)}
	case PolicyHold:
		policy = backtest.HoldPolicy{}
	case PolicyRL:
		agent, err := rl.Load(ctx, a.store, a.cfg.RL.Checkpoint(p.Name))
		if err != nil {
			return nil, err
		}
		policy = rl.GreedyPolicy{Agent: agent, Mapper: mapper}
	default:
		return nil, core.Errorf(core.ErrConfigInvalid, "unknown backtest policy %q", req.Policy)
	}

	started := time.Now()
	result, err := backtest.RunEpisode(ctx, env, policy, backtest.EpisodeRequest{
		InitialCapital: req.InitialCapital,
		Start:          req.Start,
		End:            req.End,
		Prices:         data.Prices,
		Feed:           data.Feed,
	})
	status := "completed"
	switch {
	case err != nil && !errors.Is(err, core.ErrInsufficientSample):
		status = "failed"
	case result != nil && result.StoppedEarly:
		status = "stopped"
	}
	a.metrics.RecordBacktest(status, time.Since(started).Seconds())
	return result, err
}

// Train fits an agent for one profile, saves its checkpoint and installs it
// for RL-assisted decisions. With req.Resume a stored checkpoint continues
// its epsilon schedule and replay buffer; without one a fresh agent starts.
func (a *App) Train(ctx context.Context, req SimulationRequest) (rl.TrainingReport, error) {
	req, err := a.resolve(req)
	if err != nil {
		return rl.TrainingReport{}, err
	}
	p, err := a.profiles.Get(req.Profile)
	if err != nil {
		return rl.TrainingReport{}, err
	}
	data, err := a.Dataset(ctx, req.Start, req.End)
	if err != nil {
		return rl.TrainingReport{}, err
	}
	if len(data.Missing) > 0 {
		return rl.TrainingReport{}, core.Errorf(core.ErrInsufficientData,
			"training needs every ticker priced, missing: %s", strings.Join(data.Missing, ", "))
	}
	env, err := backtest.NewEnvironment(a.envConfig(), p, a.classifier, a.logger.Named("training"))
	if err != nil {
		return rl.TrainingReport{}, err
	}

	path := a.cfg.RL.Checkpoint(p.Name)
	agent, err := a.trainingAgent(ctx, p, path, req.Resume)
	if err != nil {
		return rl.TrainingReport{}, err
	}
	trainer := rl.NewTrainer(agent, env, rl.NewActionMapper(a.universe, data.Prices.Tickers()), backtest.EpisodeRequest{
		InitialCapital: req.InitialCapital,
		Start:          req.Start,
		End:            req.End,
		Prices:         data.Prices,
		Feed:           data.Feed,
	}, a.metrics, a.logger.Named("training"))

	report, err := trainer.Train(ctx, req.Episodes)
	if err != nil {
		return report, err
	}

	if err := agent.Save(ctx, a.store, path); err != nil {
		return report, err
	}
	a.policies[p.Name].Set(agent)
	a.logger.Info("checkpoint saved",
		zap.String("profile", p.Name),
		zap.String("path", path),
		zap.Int("episodes", report.Episodes),
		zap.Int("total_episodes", agent.Episodes()),
		zap.Float64("best_reward", report.BestReward),
	)
	return report, nil
}

// trainingAgent loads the checkpoint at path when resume is set and one
// exists, and builds a fresh agent otherwise.
func (a *App) trainingAgent(ctx context.Context, p core.RiskProfile, path string, resume bool) (*rl.Agent, error) {
	size := a.encoder().Size()
	if resume {
		agent, err := rl.Load(ctx, a.store, path)
		switch {
		case err == nil:
			if agent.StateSize() != size {
				return nil, core.Errorf(core.ErrCheckpointInvalid,
					"checkpoint %s encodes %d state values, the universe needs %d", path, agent.StateSize(), size)
			}
			a.logger.Info("resuming training",
				zap.String("profile", p.Name),
				zap.String("path", path),
				zap.Int("episodes", agent.Episodes()),
				zap.Float64("epsilon", agent.Epsilon()),
			)
			return agent, nil
		case errors.Is(err, core.ErrPolicyUnavailable):
			a.logger.Info("no checkpoint to resume, training a fresh agent",
				zap.String("profile", p.Name),
				zap.String("path", path),
			)
		default:
			return nil, err
		}
	}

	conservative, err := a.profiles.MostConservative()
	if err != nil {
		return nil, err
	}
	templates := rl.DefaultTemplates([]core.RiskProfile{p}, a.universe.Sectors(), rl.TemplateOptions{
		Tilt:         a.cfg.Allocator.MaxTilt,
		Conservative: conservative.BaseWeights,
	})
	return rl.NewAgent(a.cfg.RL.Config, size, templates)
}
