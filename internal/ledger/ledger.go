// Package ledger records every allocation decision that was produced.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/newthinker/aporte/internal/core"
)

// ErrNotFound is returned when no decision has the requested ID
var ErrNotFound = errors.New("ledger: decision not found")

// Ledger is an append-only decision log. Each Append is atomic.
type Ledger interface {
	// Append persists a decision. Decisions without an ID get one.
	Append(ctx context.Context, decision *core.AllocationDecision) error

	// Get retrieves a decision by its ID.
	Get(ctx context.Context, id string) (*core.AllocationDecision, error)

	// List retrieves decisions matching the filter, oldest first.
	List(ctx context.Context, filter ListFilter) ([]core.AllocationDecision, error)
}

// ListFilter defines criteria for listing decisions.
type ListFilter struct {
	Profile string
	Regime  core.Regime
	From    time.Time
	To      time.Time
	Limit   int
	Offset  int
}

func (f ListFilter) matches(d core.AllocationDecision) bool {
	if f.Profile != "" && d.ProfileName != f.Profile {
		return false
	}
	if f.Regime != "" && d.Regime.Regime != f.Regime {
		return false
	}
	if !f.From.IsZero() && d.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && d.Date.After(f.To) {
		return false
	}
	return true
}

func (f ListFilter) page(result []core.AllocationDecision) []core.AllocationDecision {
	if f.Offset > 0 && f.Offset < len(result) {
		result = result[f.Offset:]
	} else if f.Offset >= len(result) && f.Offset > 0 {
		return []core.AllocationDecision{}
	}

	if f.Limit > 0 && f.Limit < len(result) {
		result = result[:f.Limit]
	}
	return result
}
