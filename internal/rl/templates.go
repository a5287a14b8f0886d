package rl

import (
	"math"
	"sort"

	"github.com/newthinker/aporte/internal/core"
)

// Template is one discrete action: a mega split plus a sector split of the
// equity share.
type Template struct {
	Name string             `json:"name"`
	Mega core.MegaWeights   `json:"mega"`
	Meso map[string]float64 `json:"meso"`
}

// TemplateOptions shapes the mega variants of DefaultTemplates
type TemplateOptions struct {
	Tilt         float64          // share moved between fixed income and equities
	Conservative core.MegaWeights // blend target of the cautious variant, none when nil
}

// DefaultTemplates builds the action set from the profile base weights.
// Each profile contributes up to four mega variants: its base weights, a
// growth and a defensive shift of opts.Tilt, and a halfway blend toward
// opts.Conservative. Every variant is paired with a balanced sector split
// and one split per sector where that sector gets twice the share of the
// others. Fixed income never drops below the profile floor.
func DefaultTemplates(profiles []core.RiskProfile, sectors []string, opts TemplateOptions) []Template {
	sectors = append([]string(nil), sectors...)
	sort.Strings(sectors)

	var out []Template
	for _, p := range profiles {
		for _, v := range megaVariants(p, opts) {
			out = append(out, Template{
				Name: p.Name + "/" + v.name + "_balanced",
				Mega: v.mega,
				Meso: sectorShares(sectors, ""),
			})
			if len(sectors) < 2 {
				continue
			}
			for _, s := range sectors {
				out = append(out, Template{
					Name: p.Name + "/" + v.name + "_tilt_" + s,
					Mega: v.mega.Clone(),
					Meso: sectorShares(sectors, s),
				})
			}
		}
	}
	return out
}

type megaVariant struct {
	name string
	mega core.MegaWeights
}

func megaVariants(p core.RiskProfile, opts TemplateOptions) []megaVariant {
	base := p.BaseWeights.Normalize()
	out := []megaVariant{{name: "base", mega: base}}

	if shift := min(opts.Tilt, base[core.ClassFixedIncome]-p.FixedIncomeFloor); shift > core.WeightTolerance {
		w := base.Clone()
		w[core.ClassFixedIncome] -= shift
		dom, foreign := base[core.ClassDomesticStocks], base[core.ClassForeignStocks]
		if dom+foreign == 0 {
			dom, foreign = 1, 1
		}
		w[core.ClassDomesticStocks] += shift * dom / (dom + foreign)
		w[core.ClassForeignStocks] += shift * foreign / (dom + foreign)
		out = append(out, megaVariant{name: "growth", mega: w.Normalize()})
	}

	if shift := min(opts.Tilt, base.Equity()); shift > core.WeightTolerance {
		w := base.Clone()
		shiftFromEquity(w, shift)
		out = append(out, megaVariant{name: "defensive", mega: w.Normalize()})
	}

	if opts.Conservative != nil {
		target := opts.Conservative.Normalize()
		w := make(core.MegaWeights, len(core.AssetClasses))
		var moved float64
		for _, c := range core.AssetClasses {
			w[c] = (base[c] + target[c]) / 2
			moved += math.Abs(w[c] - base[c])
		}
		if moved > core.WeightTolerance {
			if deficit := p.FixedIncomeFloor - w[core.ClassFixedIncome]; deficit > 0 {
				shiftFromEquity(w, min(deficit, w.Equity()))
			}
			out = append(out, megaVariant{name: "cautious", mega: w.Normalize()})
		}
	}
	return out
}

// shiftFromEquity moves amount from the equity classes, pro rata, into fixed income
func shiftFromEquity(w core.MegaWeights, amount float64) {
	eq := w.Equity()
	if eq <= 0 || amount <= 0 {
		return
	}
	for _, c := range []core.AssetClass{core.ClassDomesticStocks, core.ClassForeignStocks} {
		w[c] -= amount * w[c] / eq
	}
	w[core.ClassFixedIncome] += amount
}

func sectorShares(sectors []string, favored string) map[string]float64 {
	out := make(map[string]float64, len(sectors))
	var total float64
	for _, s := range sectors {
		w := 1.0
		if s == favored {
			w = 2
		}
		out[s] = w
		total += w
	}
	for s := range out {
		out[s] /= total
	}
	return out
}

// ActionMapper turns templates into ticker weights. Only tickers with a
// price series receive weight; a class with none stays in cash.
type ActionMapper struct {
	universe *core.Universe
	known    map[string]bool
}

// NewActionMapper restricts the universe to the given tickers
func NewActionMapper(universe *core.Universe, tickers []string) *ActionMapper {
	known := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		known[t] = true
	}
	return &ActionMapper{universe: universe, known: known}
}

// Map returns the ticker weights of t. Equity classes are split over the
// template sectors that hold tradable securities of the class, then equally
// within each sector. Other classes are split equally.
func (m *ActionMapper) Map(t Template) map[string]float64 {
	out := make(map[string]float64)
	for _, class := range core.AssetClasses {
		w := t.Mega[class]
		if w <= 0 {
			continue
		}
		if !class.IsEquity() {
			equal(out, m.tradable(string(class), class), w)
			continue
		}

		groups := make(map[string][]string)
		var total float64
		for _, sector := range m.universe.Sectors() {
			tickers := m.tradable(sector, class)
			if len(tickers) == 0 || t.Meso[sector] <= 0 {
				continue
			}
			groups[sector] = tickers
			total += t.Meso[sector]
		}
		for sector, tickers := range groups {
			equal(out, tickers, w*t.Meso[sector]/total)
		}
	}
	return out
}

func (m *ActionMapper) tradable(bucket string, class core.AssetClass) []string {
	var out []string
	for _, s := range m.universe.InBucket(bucket) {
		if s.Class == class && m.known[s.Ticker] {
			out = append(out, s.Ticker)
		}
	}
	return out
}

func equal(out map[string]float64, tickers []string, w float64) {
	for _, t := range tickers {
		out[t] += w / float64(len(tickers))
	}
}
