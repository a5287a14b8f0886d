package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/newthinker/aporte/internal/core"
)

func TestStateEncoder_Encode(t *testing.T) {
	enc := NewStateEncoder([]string{"B", "A"}, 3, []string{core.IndicatorPolicyRate})
	assert.Equal(t, 11, enc.Size())
	assert.Equal(t, []string{"A", "B"}, enc.Tickers())

	snap := core.NewIndicatorSnapshot(time.Now(),
		map[string]float64{core.IndicatorPolicyRate: 12},
		map[string][]float64{core.IndicatorPolicyRate: {10, 14}},
	)
	got := enc.Encode(EncoderInput{
		ValueRatio: 1.1,
		Weights:    map[string]float64{"A": 0.3},
		Regime:     core.RegimeBear,
		Benchmark:  []float64{10, 20},
		Snapshot:   &snap,
	})
	assert.Equal(t, []float64{1.1, 0.3, 0, 0, 1, 0, 0, 1, 0.5, 1, 0.5}, got)
}

func TestStateEncoder_FixedLength(t *testing.T) {
	enc := NewStateEncoder([]string{"A"}, 5, []string{core.IndicatorInflation, core.IndicatorPolicyRate})
	long := make([]float64, 30)
	for i := range long {
		long[i] = float64(i + 1)
	}
	for _, in := range []EncoderInput{
		{},
		{Benchmark: long, Regime: core.RegimeTransition},
		{Benchmark: []float64{5}, Weights: map[string]float64{"Z": 1}},
	} {
		got := enc.Encode(in)
		assert.Len(t, got, enc.Size())
	}

	got := enc.Encode(EncoderInput{Benchmark: long})
	assert.Equal(t, 1.0, got[1+1+4+4])
	assert.Equal(t, 0.5, got[len(got)-1])
}
