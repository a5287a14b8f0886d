package rl

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/aporte/internal/backtest"
	"github.com/newthinker/aporte/internal/core"
	"github.com/newthinker/aporte/internal/metrics"
)

// TrainingReport summarizes a training run
type TrainingReport struct {
	Profile      string
	Episodes     int
	Steps        int
	Rewards      []float64 // total reward per episode
	MeanLoss     float64
	BestEpisode  int
	BestReward   float64
	FinalEpsilon float64
	Duration     time.Duration
}

// Trainer runs training episodes of one agent against one environment
type Trainer struct {
	agent   *Agent
	env     *backtest.Environment
	mapper  *ActionMapper
	req     backtest.EpisodeRequest
	metrics *metrics.Registry
	logger  *zap.Logger
}

// NewTrainer binds an agent to an environment and episode data. metrics
// may be nil.
func NewTrainer(agent *Agent, env *backtest.Environment, mapper *ActionMapper, req backtest.EpisodeRequest, reg *metrics.Registry, logger *zap.Logger) *Trainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trainer{
		agent:   agent,
		env:     env,
		mapper:  mapper,
		req:     req,
		metrics: reg,
		logger:  logger,
	}
}

// Train runs the given number of episodes. Each episode resets the
// environment, explores epsilon-greedily and learns every TrainEvery steps.
func (t *Trainer) Train(ctx context.Context, episodes int) (TrainingReport, error) {
	started := time.Now()
	report := TrainingReport{Profile: t.env.Profile().Name, BestEpisode: -1}
	var lossSum float64
	var lossCount int

	for ep := 0; ep < episodes; ep++ {
		state, err := t.env.Reset(t.req.InitialCapital, t.req.Start, t.req.End, t.req.Prices, t.req.Feed)
		if err != nil {
			return report, err
		}
		if len(state) != t.agent.StateSize() {
			return report, core.Errorf(core.ErrConfigInvalid, "environment state has %d values, agent expects %d",
				len(state), t.agent.StateSize())
		}

		var total, epLoss float64
		var learned int
		for {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			action, err := t.agent.Act(state)
			if err != nil {
				return report, err
			}
			step, err := t.env.Step(t.mapper.Map(t.agent.templates[action]))
			if err != nil {
				return report, err
			}
			t.agent.Observe(Transition{
				State:  state,
				Action: action,
				Reward: step.Reward,
				Next:   step.State,
				Done:   step.Done,
			})
			total += step.Reward
			report.Steps++

			if t.agent.Steps()%t.agent.cfg.TrainEvery == 0 {
				if loss, ok := t.agent.Learn(); ok {
					epLoss += loss
					learned++
				}
			}
			state = step.State
			if step.Done {
				break
			}
		}
		t.agent.endEpisode()

		report.Episodes++
		report.Rewards = append(report.Rewards, total)
		if report.BestEpisode < 0 || total > report.BestReward {
			report.BestEpisode, report.BestReward = ep, total
		}
		meanLoss := 0.0
		if learned > 0 {
			meanLoss = epLoss / float64(learned)
			lossSum += epLoss
			lossCount += learned
		}
		t.metrics.RecordTrainingEpisode(report.Profile, total, meanLoss, t.agent.Epsilon())
		t.metrics.SetReplayBufferSize(report.Profile, t.agent.buffer.Len())
		t.logger.Info("training episode finished",
			zap.String("profile", report.Profile),
			zap.Int("episode", t.agent.Episodes()),
			zap.Float64("reward", total),
			zap.Float64("loss", meanLoss),
			zap.Float64("epsilon", t.agent.Epsilon()),
		)
	}

	if lossCount > 0 {
		report.MeanLoss = lossSum / float64(lossCount)
	}
	report.FinalEpsilon = t.agent.Epsilon()
	report.Duration = time.Since(started)
	return report, nil
}

// GreedyPolicy replays a trained agent inside a backtest without exploring
type GreedyPolicy struct {
	Agent  *Agent
	Mapper *ActionMapper
}

// Name implements backtest.Policy
func (GreedyPolicy) Name() string { return "rl_greedy" }

// Decide implements backtest.Policy
func (p GreedyPolicy) Decide(_ context.Context, obs backtest.Observation) (map[string]float64, error) {
	action, err := p.Agent.Predict(obs.State)
	if err != nil {
		return nil, err
	}
	return p.Mapper.Map(p.Agent.templates[action]), nil
}
