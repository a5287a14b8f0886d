package core

import (
	"math"
	"sort"
	"time"
)

// Regime is a discrete macro-market state
type Regime string

const (
	RegimeBull       Regime = "bull"
	RegimeBear       Regime = "bear"
	RegimeSideways   Regime = "sideways"
	RegimeTransition Regime = "transition"
)

// Regimes lists all regimes in state-vector order
var Regimes = []Regime{RegimeBull, RegimeBear, RegimeSideways, RegimeTransition}

// Index returns the position of r in Regimes, or -1 when unknown
func (r Regime) Index() int {
	for i, x := range Regimes {
		if x == r {
			return i
		}
	}
	return -1
}

// PricePoint is one close of a price series
type PricePoint struct {
	Time  time.Time
	Close float64
}

// IsValid checks if the point has a usable price
func (p PricePoint) IsValid() bool {
	return !p.Time.IsZero() && p.Close > 0
}

// Closes extracts the closing prices of a series
func Closes(points []PricePoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Close
	}
	return out
}

// Observation is one value of an indicator series
type Observation struct {
	Time  time.Time
	Value float64
}

// Signal is one sub-signal contributing to a regime classification
type Signal struct {
	Name   string
	Value  float64 // in [-1, 1], negative is bearish
	Weight float64
}

// Contribution returns the signed weighted contribution
func (s Signal) Contribution() float64 {
	return s.Value * s.Weight
}

// RegimeClassification is the labeled output of the classifier
type RegimeClassification struct {
	Regime     Regime
	Strength   float64 // [0,1]
	Confidence float64 // [0,1]
	Score      float64 // composite score in [-1,1]
	Dispersion float64
	Signals    []Signal // ordered by |contribution| desc
}

// TopSignals returns at most n contributing signals
func (c RegimeClassification) TopSignals(n int) []Signal {
	if n > len(c.Signals) {
		n = len(c.Signals)
	}
	return c.Signals[:n]
}

// SortSignals orders signals by absolute contribution, then name
func SortSignals(signals []Signal) {
	sort.SliceStable(signals, func(i, j int) bool {
		ci := math.Abs(signals[i].Contribution())
		cj := math.Abs(signals[j].Contribution())
		if ci != cj {
			return ci > cj
		}
		return signals[i].Name < signals[j].Name
	})
}

// AssetClass is a mega-layer bucket
type AssetClass string

const (
	ClassFixedIncome     AssetClass = "fixed_income"
	ClassRealEstateFunds AssetClass = "real_estate_funds"
	ClassDomesticStocks  AssetClass = "domestic_stocks"
	ClassForeignStocks   AssetClass = "foreign_stocks"
)

// AssetClasses lists the mega-layer classes in canonical order
var AssetClasses = []AssetClass{ClassFixedIncome, ClassRealEstateFunds, ClassDomesticStocks, ClassForeignStocks}

// IsEquity reports whether the class is split across sectors
func (c AssetClass) IsEquity() bool {
	return c == ClassDomesticStocks || c == ClassForeignStocks
}

// MegaWeights maps asset classes to portfolio weights
type MegaWeights map[AssetClass]float64

// Sum returns the total weight
func (m MegaWeights) Sum() float64 {
	var s float64
	for _, c := range AssetClasses {
		s += m[c]
	}
	return s
}

// Equity returns the combined equity weight
func (m MegaWeights) Equity() float64 {
	return m[ClassDomesticStocks] + m[ClassForeignStocks]
}

// Clone returns a copy of the weights
func (m MegaWeights) Clone() MegaWeights {
	out := make(MegaWeights, len(AssetClasses))
	for _, c := range AssetClasses {
		out[c] = m[c]
	}
	return out
}

// Normalize returns weights scaled to sum to 1, clamping negatives to zero
func (m MegaWeights) Normalize() MegaWeights {
	out := make(MegaWeights, len(AssetClasses))
	var total float64
	for _, c := range AssetClasses {
		v := math.Max(m[c], 0)
		out[c] = v
		total += v
	}
	if total == 0 {
		return out
	}
	for _, c := range AssetClasses {
		out[c] /= total
	}
	return out
}
