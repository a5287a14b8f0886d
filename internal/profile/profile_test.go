package profile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/aporte/internal/core"
)

func TestBuiltins_Valid(t *testing.T) {
	for _, p := range Builtins() {
		assert.NoError(t, p.Validate(), p.Name)
		assert.InDelta(t, 1.0, p.BaseWeights.Sum(), core.WeightTolerance, p.Name)
	}
}

func TestRegistry_Get(t *testing.T) {
	r := Default()

	p, err := r.Get("Conservative")
	require.NoError(t, err)
	assert.Equal(t, Conservative, p.Name)
	assert.Equal(t, 0.50, p.FixedIncomeFloor)

	_, err = r.Get("reckless")
	assert.True(t, errors.Is(err, core.ErrProfileNotFound))
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	r := Default()

	p, err := r.Get(Aggressive)
	require.NoError(t, err)
	p.BaseWeights[core.ClassFixedIncome] = 0.99

	again, err := r.Get(Aggressive)
	require.NoError(t, err)
	assert.Equal(t, 0.15, again.BaseWeights[core.ClassFixedIncome])
}

func TestRegistry_Names(t *testing.T) {
	assert.Equal(t, []string{Aggressive, Conservative, Intermediate}, Default().Names())
}

func TestRegistry_MostConservative(t *testing.T) {
	p, err := Default().MostConservative()
	require.NoError(t, err)
	assert.Equal(t, Conservative, p.Name)

	empty, err := NewRegistry()
	require.NoError(t, err)
	_, err = empty.MostConservative()
	assert.True(t, errors.Is(err, core.ErrProfileNotFound))
}

func TestRegistry_RegisterRejectsInvalid(t *testing.T) {
	r := Default()
	bad := Builtins()[0]
	bad.Name = "broken"
	bad.BaseWeights = core.MegaWeights{core.ClassFixedIncome: 0.5}

	err := r.Register(bad)
	assert.True(t, errors.Is(err, core.ErrInvalidProfile))
	_, err = r.Get("broken")
	assert.Error(t, err)
}

func TestRegistry_RegisterRejectsUnknownRewardMetric(t *testing.T) {
	r := Default()
	bad := Builtins()[1]
	bad.Name = "omega"
	bad.RewardMetric = "omega"

	err := r.Register(bad)
	assert.True(t, errors.Is(err, core.ErrInvalidProfile))
	assert.Contains(t, err.Error(), `unknown reward metric "omega"`)
}
