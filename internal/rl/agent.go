// Package rl learns which allocation template to apply for an encoded
// market state, using a small Q-network trained on simulated episodes.
package rl

import (
	"math"
	"math/rand/v2"

	"github.com/newthinker/aporte/internal/core"
)

// Config holds the learning hyperparameters
type Config struct {
	Hidden            int     `mapstructure:"hidden" json:"hidden"`
	LearningRate      float64 `mapstructure:"learning_rate" json:"learning_rate"`
	Gamma             float64 `mapstructure:"gamma" json:"gamma"`
	BatchSize         int     `mapstructure:"batch_size" json:"batch_size"`
	BufferSize        int     `mapstructure:"buffer_size" json:"buffer_size"`
	EpsilonStart      float64 `mapstructure:"epsilon_start" json:"epsilon_start"`
	EpsilonEnd        float64 `mapstructure:"epsilon_end" json:"epsilon_end"`
	EpsilonDecaySteps int     `mapstructure:"epsilon_decay_steps" json:"epsilon_decay_steps"`
	TargetSyncSteps   int     `mapstructure:"target_sync_steps" json:"target_sync_steps"`
	TrainEvery        int     `mapstructure:"train_every" json:"train_every"`
	GradClip          float64 `mapstructure:"grad_clip" json:"grad_clip"`
	Seed              uint64  `mapstructure:"seed" json:"seed"`
}

// DefaultConfig returns the default hyperparameters
func DefaultConfig() Config {
	return Config{
		Hidden:            32,
		LearningRate:      0.01,
		Gamma:             0.95,
		BatchSize:         32,
		BufferSize:        10000,
		EpsilonStart:      1.0,
		EpsilonEnd:        0.05,
		EpsilonDecaySteps: 5000,
		TargetSyncSteps:   200,
		TrainEvery:        1,
		GradClip:          1.0,
		Seed:              42,
	}
}

// Validate checks hyperparameter ranges
func (c Config) Validate() error {
	switch {
	case c.Hidden < 1:
		return core.Errorf(core.ErrConfigInvalid, "rl: hidden units must be positive")
	case c.LearningRate <= 0:
		return core.Errorf(core.ErrConfigInvalid, "rl: learning rate must be positive")
	case c.Gamma < 0 || c.Gamma > 1:
		return core.Errorf(core.ErrConfigInvalid, "rl: gamma %.3f outside [0, 1]", c.Gamma)
	case c.BatchSize < 1 || c.BufferSize < c.BatchSize:
		return core.Errorf(core.ErrConfigInvalid, "rl: buffer size %d smaller than batch size %d", c.BufferSize, c.BatchSize)
	case c.EpsilonStart < c.EpsilonEnd || c.EpsilonEnd < 0 || c.EpsilonStart > 1:
		return core.Errorf(core.ErrConfigInvalid, "rl: epsilon schedule %.3f -> %.3f invalid", c.EpsilonStart, c.EpsilonEnd)
	case c.EpsilonDecaySteps < 0 || c.TargetSyncSteps < 1 || c.TrainEvery < 1:
		return core.Errorf(core.ErrConfigInvalid, "rl: step intervals must be positive")
	case c.GradClip <= 0:
		return core.Errorf(core.ErrConfigInvalid, "rl: gradient clip must be positive")
	}
	return nil
}

// Agent is an epsilon-greedy learner over a fixed template action set. It
// is single-owner; PolicyHandle wraps a trained agent for shared reads.
type Agent struct {
	cfg       Config
	stateSize int
	templates []Template

	online *Network
	target *Network
	buffer *ReplayBuffer
	pcg    *rand.PCG
	rng    *rand.Rand

	steps    int
	updates  int
	episodes int
}

// NewAgent creates an untrained agent for states of stateSize values
func NewAgent(cfg Config, stateSize int, templates []Template) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if stateSize < 1 {
		return nil, core.Errorf(core.ErrConfigInvalid, "rl: state size must be positive")
	}
	if len(templates) == 0 {
		return nil, core.Errorf(core.ErrConfigInvalid, "rl: at least one action template is required")
	}
	pcg := rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)
	rng := rand.New(pcg)
	online := NewNetwork(stateSize, cfg.Hidden, len(templates), rng)
	return &Agent{
		cfg:       cfg,
		stateSize: stateSize,
		templates: append([]Template(nil), templates...),
		online:    online,
		target:    online.Clone(),
		buffer:    NewReplayBuffer(cfg.BufferSize),
		pcg:       pcg,
		rng:       rng,
	}, nil
}

// Config returns the hyperparameters
func (a *Agent) Config() Config { return a.cfg }

// StateSize returns the expected state length
func (a *Agent) StateSize() int { return a.stateSize }

// Templates returns the action set
func (a *Agent) Templates() []Template { return a.templates }

// Steps returns the number of observed transitions
func (a *Agent) Steps() int { return a.steps }

// Episodes returns the number of completed training episodes
func (a *Agent) Episodes() int { return a.episodes }

// Epsilon returns the current exploration rate
func (a *Agent) Epsilon() float64 {
	if a.cfg.EpsilonDecaySteps == 0 || a.steps >= a.cfg.EpsilonDecaySteps {
		return a.cfg.EpsilonEnd
	}
	frac := float64(a.steps) / float64(a.cfg.EpsilonDecaySteps)
	return a.cfg.EpsilonStart + frac*(a.cfg.EpsilonEnd-a.cfg.EpsilonStart)
}

// Act picks an action epsilon-greedily
func (a *Agent) Act(state []float64) (int, error) {
	if err := a.check(state); err != nil {
		return 0, err
	}
	if a.rng.Float64() < a.Epsilon() {
		return a.rng.IntN(len(a.templates)), nil
	}
	return argmax(a.online.Forward(state)), nil
}

// Predict picks the greedy action without exploring
func (a *Agent) Predict(state []float64) (int, error) {
	if err := a.check(state); err != nil {
		return 0, err
	}
	return argmax(a.online.Forward(state)), nil
}

// Observe stores a transition and advances the step counter
func (a *Agent) Observe(t Transition) {
	a.buffer.Add(t)
	a.steps++
}

// Learn trains the online network on one sampled batch and returns the
// mean squared TD error. It reports false until the buffer holds a batch.
func (a *Agent) Learn() (float64, bool) {
	batch, err := a.buffer.Sample(a.rng, a.cfg.BatchSize)
	if err != nil {
		return 0, false
	}
	var loss float64
	for _, t := range batch {
		target := t.Reward
		if !t.Done {
			q := a.target.Forward(t.Next)
			target += a.cfg.Gamma * q[argmax(q)]
		}
		loss += a.online.Update(t.State, t.Action, target, a.cfg.LearningRate, a.cfg.GradClip)
	}
	a.updates++
	if a.updates%a.cfg.TargetSyncSteps == 0 {
		a.target.CopyFrom(a.online)
	}
	return loss / float64(len(batch)), true
}

func (a *Agent) endEpisode() {
	a.episodes++
}

func (a *Agent) check(state []float64) error {
	if len(state) != a.stateSize {
		return core.Errorf(core.ErrInvalidAllocation, "rl: state has %d values, agent expects %d", len(state), a.stateSize)
	}
	for i, v := range state {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return core.Errorf(core.ErrInvalidAllocation, "rl: state value %d is not finite", i)
		}
	}
	return nil
}
