package backtest

import (
	"sort"

	"github.com/newthinker/aporte/internal/core"
	"github.com/newthinker/aporte/internal/indicator"
)

// StateEncoder turns a portfolio observation into a fixed-length vector:
// value ratio, per-ticker weights, regime one-hot, normalized benchmark
// window and min-max scaled indicators.
type StateEncoder struct {
	tickers    []string
	window     int
	indicators []string
}

// NewStateEncoder creates an encoder. Tickers are sorted.
func NewStateEncoder(tickers []string, window int, indicators []string) *StateEncoder {
	t := append([]string(nil), tickers...)
	sort.Strings(t)
	return &StateEncoder{
		tickers:    t,
		window:     max(window, 0),
		indicators: append([]string(nil), indicators...),
	}
}

// Size returns the vector length
func (e *StateEncoder) Size() int {
	return 1 + len(e.tickers) + len(core.Regimes) + e.window + len(e.indicators)
}

// Tickers returns the encoded tickers in vector order
func (e *StateEncoder) Tickers() []string {
	return append([]string(nil), e.tickers...)
}

// EncoderInput is what the encoder observes
type EncoderInput struct {
	ValueRatio float64
	Weights    map[string]float64
	Regime     core.Regime
	Benchmark  []float64 // oldest first
	Snapshot   *core.IndicatorSnapshot
}

// Encode builds the state vector
func (e *StateEncoder) Encode(in EncoderInput) []float64 {
	out := make([]float64, 0, e.Size())
	out = append(out, in.ValueRatio)
	for _, t := range e.tickers {
		out = append(out, in.Weights[t])
	}

	onehot := make([]float64, len(core.Regimes))
	if i := in.Regime.Index(); i >= 0 {
		onehot[i] = 1
	}
	out = append(out, onehot...)

	window := in.Benchmark
	if len(window) > e.window {
		window = window[len(window)-e.window:]
	}
	for i := 0; i < e.window-len(window); i++ {
		out = append(out, 1)
	}
	if len(window) > 0 {
		last := window[len(window)-1]
		for _, p := range window {
			if last > 0 {
				out = append(out, p/last)
			} else {
				out = append(out, 1)
			}
		}
	}

	for _, name := range e.indicators {
		out = append(out, scaledIndicator(in.Snapshot, name))
	}
	return out
}

// scaledIndicator min-max scales the latest value within its history;
// unknown values map to the midpoint.
func scaledIndicator(snap *core.IndicatorSnapshot, name string) float64 {
	if snap == nil {
		return 0.5
	}
	v, ok := snap.Value(name)
	if !ok {
		return 0.5
	}
	lo, hi := indicator.MinMax(append(snap.History(name), v))
	if hi == lo {
		return 0.5
	}
	return (v - lo) / (hi - lo)
}
