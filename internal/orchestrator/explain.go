package orchestrator

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/newthinker/aporte/internal/core"
	"github.com/newthinker/aporte/internal/risk"
)

// splitAmounts rounds amount*weight to cents for every positive weight and
// gives the rounding remainder to the largest weight. Keys are visited in
// order, or sorted when order is nil, so ties resolve deterministically.
func splitAmounts[K ~string](amount decimal.Decimal, weights map[K]float64, order []K) map[K]decimal.Decimal {
	if order == nil {
		for k := range weights {
			order = append(order, k)
		}
		slices.Sort(order)
	}
	total := amount.Round(2)
	out := make(map[K]decimal.Decimal, len(weights))
	sum := decimal.Zero
	var largest K
	best := 0.0
	for _, k := range order {
		w := weights[k]
		if w <= 0 {
			continue
		}
		v := amount.Mul(decimal.NewFromFloat(w)).Round(2)
		out[k] = v
		sum = sum.Add(v)
		if w > best {
			best, largest = w, k
		}
	}
	if best > 0 {
		out[largest] = out[largest].Add(total.Sub(sum))
	}
	return out
}

// justify writes the human-readable explanation of a decision
func justify(d *core.AllocationDecision, profile core.RiskProfile, tilts []string, check *risk.CheckResult, topSignals int) string {
	var b strings.Builder
	r := d.Regime
	fmt.Fprintf(&b, "Regime %s (strength %.2f, confidence %.2f, score %+.2f).",
		r.Regime, r.Strength, r.Confidence, r.Score)

	if signals := r.TopSignals(topSignals); len(signals) > 0 {
		parts := make([]string, len(signals))
		for i, s := range signals {
			parts[i] = fmt.Sprintf("%s %+.2f", s.Name, s.Value)
		}
		fmt.Fprintf(&b, " Top signals: %s.", strings.Join(parts, ", "))
	}

	fmt.Fprintf(&b, " Strategy %s", d.Strategy)
	if d.Action != "" {
		fmt.Fprintf(&b, " with action %s", d.Action)
	}
	b.WriteString(".")

	mix := make([]string, 0, len(core.AssetClasses))
	for _, class := range core.AssetClasses {
		if w := d.Mega[class]; w > 0 {
			mix = append(mix, fmt.Sprintf("%s %.1f%%", class, w*100))
		}
	}
	fmt.Fprintf(&b, " Mix: %s.", strings.Join(mix, ", "))

	if len(tilts) > 0 {
		fmt.Fprintf(&b, " Tilts: %s.", strings.Join(tilts, "; "))
	}

	fmt.Fprintf(&b, " Limits: max single position %.0f%%, rebalance threshold %.0f%%.",
		profile.MaxSinglePosition*100, profile.RebalanceThreshold*100)

	switch {
	case check == nil:
		b.WriteString(" Risk check not performed.")
	case check.Passed:
		fmt.Fprintf(&b, " Risk check passed: %s.", check.Reason)
	default:
		fmt.Fprintf(&b, " Risk check failed: %s.", check.Reason)
	}

	if len(d.Degradations) > 0 {
		fmt.Fprintf(&b, " Degradations: %s.", strings.Join(d.Degradations, "; "))
	}
	return b.String()
}
