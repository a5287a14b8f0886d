package allocator

import (
	"sort"

	"github.com/newthinker/aporte/internal/core"
)

// micro picks the top securities of each bucket and weights them by score.
// Candidates below MinPositionWeight are dropped one at a time.
func (a *Allocator) micro(scores map[string]float64) map[string]map[string]float64 {
	out := make(map[string]map[string]float64)
	for _, bucket := range a.universe.Buckets() {
		secs := a.universe.InBucket(bucket)
		sort.SliceStable(secs, func(i, j int) bool {
			si, sj := scores[secs[i].Ticker], scores[secs[j].Ticker]
			if si != sj {
				return si > sj
			}
			return secs[i].Ticker < secs[j].Ticker
		})
		if len(secs) > a.cfg.TopN {
			secs = secs[:a.cfg.TopN]
		}
		tickers := make([]string, len(secs))
		for i, s := range secs {
			tickers[i] = s.Ticker
		}
		out[bucket] = a.pick(scores, tickers)
	}
	return out
}

// pick weights ranked tickers by their shifted scores, dropping the lowest
// ranked one while any weight sits below the position floor.
func (a *Allocator) pick(scores map[string]float64, ranked []string) map[string]float64 {
	shifted := spread(scores, ranked)
	for {
		w := make(map[string]float64, len(ranked))
		for _, t := range ranked {
			w[t] = shifted[t]
		}
		w = normalize(w)
		if len(ranked) <= 1 {
			return w
		}
		below := false
		for _, t := range ranked {
			if w[t] < a.cfg.MinPositionWeight {
				below = true
				break
			}
		}
		if !below {
			return w
		}
		ranked = ranked[:len(ranked)-1]
	}
}

// Positions flattens the allocation into portfolio-level weights per
// ticker. A class without securities keeps its weight under the class name.
// Stocks are capped at the profile's max single position; excess the other
// stocks of the class cannot absorb also stays under the class name.
func (a *Allocation) Positions() map[string]float64 {
	out := make(map[string]float64)
	for _, class := range core.AssetClasses {
		w := a.Mega[class]
		if w <= 0 {
			continue
		}
		if !class.IsEquity() {
			picks := a.Micro[string(class)]
			if len(picks) == 0 {
				out[string(class)] += w
				continue
			}
			for t, m := range picks {
				out[t] += w * m
			}
			continue
		}
		stocks := make(map[string]float64)
		a.spreadEquity(stocks, class, w)
		rest := stocks[string(class)]
		delete(stocks, string(class))
		if a.maxPosition > 0 {
			rest += capPositions(stocks, a.maxPosition)
		}
		for t, v := range stocks {
			out[t] += v
		}
		if rest > core.WeightTolerance {
			out[string(class)] += rest
		}
	}
	return out
}

// capPositions limits every ticker to limit and moves the excess to the
// uncapped tickers pro rata. It returns the excess nothing could absorb.
func capPositions(w map[string]float64, limit float64) float64 {
	tickers := make([]string, 0, len(w))
	for t := range w {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	capped := make(map[string]bool)
	for {
		var excess float64
		for _, t := range tickers {
			if w[t] > limit+core.WeightTolerance {
				excess += w[t] - limit
				w[t] = limit
				capped[t] = true
			}
		}
		if excess == 0 {
			return 0
		}
		var room float64
		for _, t := range tickers {
			if !capped[t] {
				room += w[t]
			}
		}
		if room <= 0 {
			return excess
		}
		for _, t := range tickers {
			if !capped[t] {
				w[t] += excess * w[t] / room
			}
		}
	}
}

// spreadEquity distributes an equity class over the meso sectors that hold
// securities of that class.
func (a *Allocation) spreadEquity(out map[string]float64, class core.AssetClass, w float64) {
	members := make(map[string]map[string]float64)
	var sectorTotal float64
	for sector, picks := range a.Micro {
		for t, m := range picks {
			sec, ok := a.universe.Lookup(t)
			if !ok || sec.Class != class || !sec.Class.IsEquity() {
				continue
			}
			if members[sector] == nil {
				members[sector] = make(map[string]float64)
				sectorTotal += a.Meso[sector]
			}
			members[sector][t] = m
		}
	}
	if sectorTotal == 0 {
		out[string(class)] += w
		return
	}
	for sector, picks := range members {
		var sum float64
		for _, m := range picks {
			sum += m
		}
		if sum == 0 {
			continue
		}
		share := w * a.Meso[sector] / sectorTotal
		for t, m := range picks {
			out[t] += share * m / sum
		}
	}
}
