package backtest

import (
	"fmt"
	"sort"
	"time"

	"github.com/newthinker/aporte/internal/core"
)

// PriceTable holds aligned close prices per ticker
type PriceTable struct {
	Dates  []time.Time
	Series map[string][]float64
}

// Validate checks that every series is aligned with Dates, dates increase
// and prices are positive.
func (p PriceTable) Validate() error {
	if len(p.Dates) == 0 || len(p.Series) == 0 {
		return fmt.Errorf("price table is empty")
	}
	for i := 1; i < len(p.Dates); i++ {
		if !p.Dates[i].After(p.Dates[i-1]) {
			return fmt.Errorf("dates not increasing at %s", p.Dates[i].Format(time.DateOnly))
		}
	}
	for ticker, s := range p.Series {
		if len(s) != len(p.Dates) {
			return fmt.Errorf("%s has %d prices for %d dates", ticker, len(s), len(p.Dates))
		}
		for i, v := range s {
			if v <= 0 {
				return fmt.Errorf("%s has non-positive price on %s", ticker, p.Dates[i].Format(time.DateOnly))
			}
		}
	}
	return nil
}

// Tickers returns the table tickers, sorted
func (p PriceTable) Tickers() []string {
	out := make([]string, 0, len(p.Series))
	for t := range p.Series {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// IndicatorFeed supplies indicator snapshots by date
type IndicatorFeed interface {
	At(date time.Time) (core.IndicatorSnapshot, bool)
}

// SnapshotFeed is an in-memory feed keyed by calendar day
type SnapshotFeed map[string]core.IndicatorSnapshot

// NewSnapshotFeed indexes snapshots by the day of their timestamp
func NewSnapshotFeed(snaps ...core.IndicatorSnapshot) SnapshotFeed {
	f := make(SnapshotFeed, len(snaps))
	for _, s := range snaps {
		f[s.At().Format(time.DateOnly)] = s
	}
	return f
}

// At returns the snapshot recorded for the day of date
func (f SnapshotFeed) At(date time.Time) (core.IndicatorSnapshot, bool) {
	s, ok := f[date.Format(time.DateOnly)]
	return s, ok
}

// PortfolioState is the simulated portfolio at one date
type PortfolioState struct {
	Date     time.Time
	Cash     float64
	Units    map[string]float64
	Value    float64
	Weights  map[string]float64
	Peak     float64
	Drawdown float64
	Regime   core.RegimeClassification
}

// Diagnostics describes what one step did
type Diagnostics struct {
	Date          time.Time
	Value         float64
	Return        float64
	Benchmark     float64 // benchmark return over the step
	Turnover      float64
	Cost          float64
	Trades        int
	Drawdown      float64
	Volatility    float64
	Regime        core.Regime
	RegimeUpdated bool
	HardStop      bool
}

// StepResult is the outcome of Environment.Step
type StepResult struct {
	State       []float64
	Portfolio   PortfolioState
	Reward      float64
	Done        bool
	Diagnostics Diagnostics
}

// Status is the environment lifecycle state
type Status int

const (
	StatusUninitialized Status = iota
	StatusReady
	StatusRunning
	StatusDone
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "UNINITIALIZED"
	case StatusReady:
		return "READY"
	case StatusRunning:
		return "RUNNING"
	case StatusDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}
