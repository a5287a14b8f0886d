// Package provider fetches macro indicators and security prices from
// external sources.
package provider

import (
	"context"
	"time"

	"github.com/newthinker/aporte/internal/core"
)

// IndicatorProvider serves macro indicator series by indicator name
type IndicatorProvider interface {
	Name() string
	// Indicators lists the indicator names this provider serves
	Indicators() []string
	// FetchSeries returns observations in [start, end], oldest first
	FetchSeries(ctx context.Context, indicator string, start, end time.Time) ([]core.Observation, error)
}

// PriceProvider serves daily close histories by ticker
type PriceProvider interface {
	Name() string
	// FetchHistory returns closes in [start, end], oldest first
	FetchHistory(ctx context.Context, ticker string, start, end time.Time) ([]core.PricePoint, error)
}
