package indicator

import (
	"math"
	"sort"
)

// Mean returns the arithmetic mean, 0 for an empty slice
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the sample standard deviation (n-1)
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)-1))
}

// Returns converts a price series into simple period returns
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, prices[i]/prices[i-1]-1)
	}
	return out
}

// PercentileRank returns the fraction of history strictly below v,
// counting ties as half. Returns 0.5 for empty history.
func PercentileRank(history []float64, v float64) float64 {
	if len(history) == 0 {
		return 0.5
	}
	sorted := append([]float64(nil), history...)
	sort.Float64s(sorted)
	below := sort.SearchFloat64s(sorted, v)
	equal := 0
	for i := below; i < len(sorted) && sorted[i] == v; i++ {
		equal++
	}
	return (float64(below) + 0.5*float64(equal)) / float64(len(sorted))
}

// MinMax returns the smallest and largest values
func MinMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// Clip bounds v to [lo, hi]
func Clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
