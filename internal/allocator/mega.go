package allocator

import (
	"fmt"

	"github.com/newthinker/aporte/internal/core"
)

// tiltMega shifts the profile base weights according to the regime
func (a *Allocator) tiltMega(profile core.RiskProfile, regime core.RegimeClassification) (core.MegaWeights, string, error) {
	w := profile.BaseWeights.Normalize()
	shift := a.cfg.MaxTilt * regime.Strength
	var note string

	switch regime.Regime {
	case core.RegimeBull:
		shift = min(shift, w[core.ClassFixedIncome]-profile.FixedIncomeFloor)
		if shift > 0 {
			w[core.ClassFixedIncome] -= shift
			addEquity(w, profile.BaseWeights, shift)
			note = fmt.Sprintf("mega: bull tilt moved %.2f%% from fixed income to equities", shift*100)
		}
	case core.RegimeBear:
		shift = min(shift, w.Equity())
		if shift > 0 {
			removeEquity(w, shift)
			w[core.ClassFixedIncome] += shift
			note = fmt.Sprintf("mega: bear tilt moved %.2f%% from equities to fixed income", shift*100)
		}
	case core.RegimeTransition:
		target, err := a.profiles.MostConservative()
		if err != nil {
			return nil, "", err
		}
		alpha := regime.Strength
		conservative := target.BaseWeights.Normalize()
		for _, c := range core.AssetClasses {
			w[c] = (1-alpha)*w[c] + alpha*conservative[c]
		}
		note = fmt.Sprintf("mega: transition blend %.0f%% toward %s base weights", alpha*100, target.Name)
	}
	return a.enforceFloor(profile, w.Normalize()), note, nil
}

// enforceFloor moves equity weight into fixed income until the floor holds
func (a *Allocator) enforceFloor(profile core.RiskProfile, w core.MegaWeights) core.MegaWeights {
	deficit := profile.FixedIncomeFloor - w[core.ClassFixedIncome]
	if deficit <= 0 {
		return w
	}
	out := w.Clone()
	fromEquity := min(deficit, out.Equity())
	removeEquity(out, fromEquity)
	out[core.ClassFixedIncome] += fromEquity
	if rest := deficit - fromEquity; rest > 0 {
		out[core.ClassFixedIncome] += rest
		out[core.ClassRealEstateFunds] -= rest
	}
	return out.Normalize()
}

// addEquity adds amount to equity classes pro rata to their base weights
func addEquity(w, base core.MegaWeights, amount float64) {
	dom, foreign := base[core.ClassDomesticStocks], base[core.ClassForeignStocks]
	if dom+foreign == 0 {
		dom, foreign = 1, 1
	}
	w[core.ClassDomesticStocks] += amount * dom / (dom + foreign)
	w[core.ClassForeignStocks] += amount * foreign / (dom + foreign)
}

// removeEquity removes amount from equity classes pro rata to current weights
func removeEquity(w core.MegaWeights, amount float64) {
	eq := w.Equity()
	if eq == 0 {
		return
	}
	for _, c := range []core.AssetClass{core.ClassDomesticStocks, core.ClassForeignStocks} {
		w[c] -= amount * w[c] / eq
	}
}
