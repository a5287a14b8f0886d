// Package regime labels the macro-market state from price trend and macro
// indicator sub-signals.
package regime

import (
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/newthinker/aporte/internal/core"
	"github.com/newthinker/aporte/internal/indicator"
)

// Classifier maps an indicator snapshot and a benchmark price window to a
// regime classification. It holds no mutable state and is safe for
// concurrent use.
type Classifier struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a classifier
func New(cfg Config, logger *zap.Logger) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{cfg: cfg, logger: logger}, nil
}

// Config returns the classifier configuration
func (c *Classifier) Config() Config {
	return c.cfg
}

// RequiredPrices is the minimum price window length Classify accepts
func (c *Classifier) RequiredPrices() int {
	return c.cfg.LongWindow
}

// Classify labels the regime. The price window is ordered oldest first.
func (c *Classifier) Classify(snap core.IndicatorSnapshot, prices []float64) (core.RegimeClassification, error) {
	if len(prices) < c.cfg.LongWindow {
		return core.RegimeClassification{}, core.Errorf(core.ErrInsufficientData,
			"price window has %d bars, need %d", len(prices), c.cfg.LongWindow)
	}

	signals, missing := c.signals(snap, prices)
	if len(signals) < c.cfg.MinSignals {
		return core.RegimeClassification{}, core.Errorf(core.ErrInsufficientData,
			"%d of %d required signals available, missing: %s",
			len(signals), c.cfg.MinSignals, strings.Join(missing, ", "))
	}

	score, dispersion := composite(signals)
	label := c.label(score, dispersion)

	if label == core.RegimeBull || label == core.RegimeBear {
		if lagged, ok := c.laggedLabel(snap, prices); ok && opposite(label, lagged) {
			c.logger.Debug("threshold crossed within lookback",
				zap.String("current", string(label)),
				zap.String("lagged", string(lagged)),
			)
			label = core.RegimeTransition
		}
	}

	core.SortSignals(signals)
	return core.RegimeClassification{
		Regime:     label,
		Strength:   indicator.Clip(math.Abs(score), 0, 1),
		Confidence: indicator.Clip(1-dispersion, 0, 1),
		Score:      score,
		Dispersion: dispersion,
		Signals:    signals,
	}, nil
}

// signals computes the available sub-signals and names the missing ones
func (c *Classifier) signals(snap core.IndicatorSnapshot, prices []float64) ([]core.Signal, []string) {
	type source struct {
		name   string
		weight float64
		fn     func() (float64, bool)
	}
	sources := []source{
		{SignalTrend, c.cfg.Weights.Trend, func() (float64, bool) { return c.trendSignal(prices) }},
		{SignalMonetary, c.cfg.Weights.Monetary, func() (float64, bool) { return c.monetarySignal(snap) }},
		{SignalRiskAversion, c.cfg.Weights.RiskAversion, func() (float64, bool) { return c.riskAversionSignal(snap) }},
		{SignalCrossBorder, c.cfg.Weights.CrossBorder, func() (float64, bool) { return c.crossBorderSignal(snap) }},
	}

	var signals []core.Signal
	var missing []string
	for _, s := range sources {
		if s.weight == 0 {
			continue
		}
		v, ok := s.fn()
		if !ok {
			missing = append(missing, s.name)
			continue
		}
		signals = append(signals, core.Signal{Name: s.name, Value: v, Weight: s.weight})
	}
	return signals, missing
}

// label applies the thresholds. Exact threshold ties resolve toward the
// more conservative label.
func (c *Classifier) label(score, dispersion float64) core.Regime {
	switch {
	case dispersion > c.cfg.MaxDispersion:
		return core.RegimeTransition
	case score == c.cfg.BullThreshold || score == c.cfg.BearThreshold:
		if dispersion <= c.cfg.FlatDispersion {
			return core.RegimeSideways
		}
		return core.RegimeTransition
	case score > c.cfg.BullThreshold:
		return core.RegimeBull
	case score < c.cfg.BearThreshold:
		return core.RegimeBear
	case math.Abs(score) < c.cfg.FlatThreshold && dispersion <= c.cfg.FlatDispersion:
		return core.RegimeSideways
	default:
		return core.RegimeTransition
	}
}

// laggedLabel recomputes the label with the trend signal taken CrossLookback
// bars earlier.
func (c *Classifier) laggedLabel(snap core.IndicatorSnapshot, prices []float64) (core.Regime, bool) {
	if c.cfg.CrossLookback == 0 || len(prices)-c.cfg.CrossLookback < c.cfg.LongWindow {
		return "", false
	}
	signals, _ := c.signals(snap, prices[:len(prices)-c.cfg.CrossLookback])
	score, dispersion := composite(signals)
	return c.label(score, dispersion), true
}

func opposite(a, b core.Regime) bool {
	return (a == core.RegimeBull && b == core.RegimeBear) || (a == core.RegimeBear && b == core.RegimeBull)
}
