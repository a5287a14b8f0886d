package rl

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/aporte/internal/core"
	"github.com/newthinker/aporte/internal/profile"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Hidden = 8
	cfg.BatchSize = 4
	cfg.BufferSize = 64
	cfg.EpsilonDecaySteps = 10
	cfg.TargetSyncSteps = 5
	return cfg
}

func newAgent(t *testing.T, cfg Config, stateSize int) *Agent {
	t.Helper()
	templates := DefaultTemplates(profile.Builtins(), []string{"energy", "technology"}, TemplateOptions{})
	a, err := NewAgent(cfg, stateSize, templates)
	require.NoError(t, err)
	return a
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"hidden", func(c *Config) { c.Hidden = 0 }},
		{"learning rate", func(c *Config) { c.LearningRate = 0 }},
		{"gamma", func(c *Config) { c.Gamma = 1.5 }},
		{"buffer below batch", func(c *Config) { c.BufferSize = c.BatchSize - 1 }},
		{"epsilon order", func(c *Config) { c.EpsilonStart, c.EpsilonEnd = 0.1, 0.5 }},
		{"target sync", func(c *Config) { c.TargetSyncSteps = 0 }},
		{"clip", func(c *Config) { c.GradClip = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.True(t, errors.Is(cfg.Validate(), core.ErrConfigInvalid))
		})
	}
}

func TestNewAgent_RequiresTemplates(t *testing.T) {
	_, err := NewAgent(DefaultConfig(), 4, nil)
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
}

func TestAgent_EpsilonSchedule(t *testing.T) {
	a := newAgent(t, testConfig(), 3)
	assert.Equal(t, 1.0, a.Epsilon())

	for i := 0; i < 5; i++ {
		a.Observe(Transition{State: []float64{0, 0, 0}, Next: []float64{0, 0, 0}})
	}
	assert.InDelta(t, 0.525, a.Epsilon(), 1e-12)

	for i := 0; i < 10; i++ {
		a.Observe(Transition{State: []float64{0, 0, 0}, Next: []float64{0, 0, 0}})
	}
	assert.Equal(t, 0.05, a.Epsilon())
}

func TestAgent_PredictIsGreedyAndStable(t *testing.T) {
	a := newAgent(t, testConfig(), 3)
	state := []float64{0.2, -0.4, 1}

	first, err := a.Predict(state)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		got, err := a.Predict(state)
		require.NoError(t, err)
		assert.Equal(t, first, got)
	}
	assert.Equal(t, argmax(a.online.Forward(state)), first)
}

func TestAgent_RejectsBadState(t *testing.T) {
	a := newAgent(t, testConfig(), 3)

	_, err := a.Act([]float64{1, 2})
	assert.Error(t, err)
	_, err = a.Predict([]float64{1, math.NaN(), 0})
	assert.Error(t, err)
}

func TestAgent_SameSeedSameActions(t *testing.T) {
	a := newAgent(t, testConfig(), 3)
	b := newAgent(t, testConfig(), 3)
	state := []float64{0.1, 0.2, 0.3}

	for i := 0; i < 20; i++ {
		x, err := a.Act(state)
		require.NoError(t, err)
		y, err := b.Act(state)
		require.NoError(t, err)
		assert.Equal(t, x, y)
	}
}

func TestAgent_LearnNeedsBatch(t *testing.T) {
	a := newAgent(t, testConfig(), 2)
	_, ok := a.Learn()
	assert.False(t, ok)

	for i := 0; i < 4; i++ {
		a.Observe(Transition{State: []float64{1, 0}, Action: 0, Reward: 1, Next: []float64{0, 1}, Done: true})
	}
	loss, ok := a.Learn()
	assert.True(t, ok)
	assert.GreaterOrEqual(t, loss, 0.0)
}

func TestAgent_TargetSync(t *testing.T) {
	a := newAgent(t, testConfig(), 2)
	for i := 0; i < 8; i++ {
		a.Observe(Transition{State: []float64{1, 0}, Action: 1, Reward: 1, Next: []float64{0, 1}, Done: true})
	}
	for i := 0; i < 4; i++ {
		a.Learn()
	}
	assert.NotEqual(t, a.online.B2, a.target.B2)

	a.Learn()
	assert.Equal(t, a.online.B2, a.target.B2)
}
