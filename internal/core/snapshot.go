package core

import (
	"sort"
	"time"
)

// Indicator names understood by the classifier and the state encoder.
const (
	IndicatorPolicyRate        = "policy_rate"
	IndicatorInflation         = "inflation"
	IndicatorGDPGrowth         = "gdp_growth"
	IndicatorFXRate            = "fx_rate"
	IndicatorVolatilityIndex   = "volatility_index"
	IndicatorForeignPolicyRate = "foreign_policy_rate"
	IndicatorForeignInflation  = "foreign_inflation"
	IndicatorYieldCurveSpread  = "yield_curve_spread"
)

// IndicatorSnapshot is an immutable, timestamped set of macro indicator
// values with their trailing history. Use NewIndicatorSnapshot to build one.
type IndicatorSnapshot struct {
	at      time.Time
	values  map[string]float64
	history map[string][]float64
	missing []string
}

// NewIndicatorSnapshot copies values and history into a new snapshot.
// History series are ordered oldest first and may include the latest value.
func NewIndicatorSnapshot(at time.Time, values map[string]float64, history map[string][]float64, missing ...string) IndicatorSnapshot {
	s := IndicatorSnapshot{
		at:      at,
		values:  make(map[string]float64, len(values)),
		history: make(map[string][]float64, len(history)),
	}
	for k, v := range values {
		s.values[k] = v
	}
	for k, h := range history {
		s.history[k] = append([]float64(nil), h...)
	}
	if len(missing) > 0 {
		s.missing = append([]string(nil), missing...)
		sort.Strings(s.missing)
	}
	return s
}

// At returns the snapshot timestamp
func (s IndicatorSnapshot) At() time.Time {
	return s.at
}

// Value returns the latest value of an indicator
func (s IndicatorSnapshot) Value(name string) (float64, bool) {
	v, ok := s.values[name]
	return v, ok
}

// History returns a copy of the trailing series of an indicator
func (s IndicatorSnapshot) History(name string) []float64 {
	h, ok := s.history[name]
	if !ok {
		return nil
	}
	return append([]float64(nil), h...)
}

// Names returns the indicators present, sorted
func (s IndicatorSnapshot) Names() []string {
	names := make([]string, 0, len(s.values))
	for k := range s.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Missing returns indicators that were requested but could not be fetched
func (s IndicatorSnapshot) Missing() []string {
	return append([]string(nil), s.missing...)
}

// Len returns the number of indicators present
func (s IndicatorSnapshot) Len() int {
	return len(s.values)
}
