package allocator

import (
	"fmt"
	"sort"

	"github.com/newthinker/aporte/internal/core"
)

// spread shifts scores to non-negative by subtracting the minimum when it is
// below zero. When no key keeps a positive score every key gets 1.
func spread(scores map[string]float64, keys []string) map[string]float64 {
	out := make(map[string]float64, len(keys))
	if len(keys) == 0 {
		return out
	}
	lo := 0.0
	for _, k := range keys {
		lo = min(lo, scores[k])
	}
	var total float64
	for _, k := range keys {
		out[k] = scores[k] - lo
		total += out[k]
	}
	if total <= 0 {
		for _, k := range keys {
			out[k] = 1
		}
	}
	return out
}

func normalize(w map[string]float64) map[string]float64 {
	var total float64
	for _, v := range w {
		total += max(v, 0)
	}
	out := make(map[string]float64, len(w))
	for k, v := range w {
		if total == 0 {
			out[k] = 1 / float64(len(w))
			continue
		}
		out[k] = max(v, 0) / total
	}
	return out
}

// tiltedMeso scores sectors and applies the regime sector tilts
func (a *Allocator) tiltedMeso(scores map[string]float64, regime core.RegimeClassification) (map[string]float64, []string) {
	sectors := a.universe.Sectors()
	w := spread(scores, sectors)

	var notes []string
	tilts := a.cfg.SectorTilts[string(regime.Regime)]
	for _, s := range sectors {
		t, ok := tilts[s]
		if !ok || t == 0 || regime.Strength == 0 {
			continue
		}
		w[s] *= max(1+t*regime.Strength, 0)
		notes = append(notes, fmt.Sprintf("meso: %s %+.1f%% for %s regime", s, t*regime.Strength*100, regime.Regime))
	}
	return normalize(w), notes
}

// adviceMeso restricts policy sector weights to the universe sectors
func (a *Allocator) adviceMeso(advice map[string]float64) map[string]float64 {
	sectors := a.universe.Sectors()
	w := make(map[string]float64, len(sectors))
	var total float64
	for _, s := range sectors {
		w[s] = max(advice[s], 0)
		total += w[s]
	}
	if total == 0 {
		return nil
	}
	return normalize(w)
}

// capSectors redistributes weight above the sector cap to uncapped sectors
// pro rata. When redistribution does not converge within MaxIterations the
// unconstrained split is returned with ErrAllocationUnstable.
func (a *Allocator) capSectors(raw map[string]float64) (map[string]float64, error) {
	if len(raw) == 0 {
		return raw, nil
	}
	sectors := make([]string, 0, len(raw))
	for s := range raw {
		sectors = append(sectors, s)
	}
	sort.Strings(sectors)

	w := make(map[string]float64, len(raw))
	for s, v := range raw {
		w[s] = v
	}
	capped := make(map[string]bool)
	limit := a.cfg.SectorCap + core.WeightTolerance

	for iter := 0; iter < a.cfg.MaxIterations; iter++ {
		var excess float64
		for _, s := range sectors {
			if w[s] > limit {
				excess += w[s] - a.cfg.SectorCap
				w[s] = a.cfg.SectorCap
				capped[s] = true
			}
		}
		if excess == 0 {
			return w, nil
		}

		var room float64
		var open []string
		for _, s := range sectors {
			if !capped[s] {
				open = append(open, s)
				room += w[s]
			}
		}
		if len(open) == 0 {
			break
		}
		for _, s := range open {
			if room > 0 {
				w[s] += excess * w[s] / room
			} else {
				w[s] += excess / float64(len(open))
			}
		}
	}

	worst := sectors[0]
	for _, s := range sectors {
		if raw[s] > raw[worst] {
			worst = s
		}
	}
	return raw, core.Errorf(core.ErrAllocationUnstable, "sector %s above cap %.2f after %d iterations",
		worst, a.cfg.SectorCap, a.cfg.MaxIterations)
}
