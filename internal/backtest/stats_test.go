package backtest

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/aporte/internal/core"
	"github.com/newthinker/aporte/internal/risk"
)

func TestCalculateStats(t *testing.T) {
	result := &Result{
		Returns:    []float64{0.01, -0.02, 0.03},
		Benchmark:  []float64{0.005, -0.01, 0.015},
		Trades:     4,
		Costs:      12.5,
		FinalValue: 10200,
	}
	stats, err := CalculateStats(result, risk.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Trades)
	assert.Equal(t, 12.5, stats.Costs)
	assert.Equal(t, 3, stats.Observations)
	assert.InDelta(t, 0.02, stats.MaxDrawdown, 1e-12)
	assert.InDelta(t, 2.0, stats.Beta, 1e-9)
	assert.InDelta(t, -0.1, stats.Stress.Impact, 1e-12)
	assert.InDelta(t, stats.Stress.NormalVolatility, stats.Stress.StressedVolatility, 1e-12)
}

func TestCalculateStats_NoBenchmark(t *testing.T) {
	stats, err := CalculateStats(&Result{Returns: []float64{0.01, -0.02, 0.03}}, risk.DefaultConfig())
	require.NoError(t, err)
	assert.True(t, math.IsNaN(stats.Beta))
	assert.False(t, stats.IsDefined("beta"))
}

func TestCalculateStats_TooShort(t *testing.T) {
	stats, err := CalculateStats(&Result{Returns: []float64{0.01}, Trades: 2}, risk.DefaultConfig())
	assert.True(t, errors.Is(err, core.ErrInsufficientSample))
	assert.Equal(t, 2, stats.Trades)
}
