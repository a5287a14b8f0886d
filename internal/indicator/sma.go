package indicator

// SMA calculates Simple Moving Average
// Returns slice of length: len(prices) - period + 1
func SMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return []float64{}
	}

	result := make([]float64, 0, len(prices)-period+1)

	// Calculate first SMA
	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	result = append(result, sum/float64(period))

	// Rolling calculation
	for i := period; i < len(prices); i++ {
		sum = sum - prices[i-period] + prices[i]
		result = append(result, sum/float64(period))
	}

	return result
}

// LastSMA returns the most recent SMA value, false when there is not enough data
func LastSMA(prices []float64, period int) (float64, bool) {
	sma := SMA(prices, period)
	if len(sma) == 0 {
		return 0, false
	}
	return sma[len(sma)-1], true
}

// Momentum returns the rate of change over the last period bars
func Momentum(prices []float64, period int) (float64, bool) {
	if period <= 0 || len(prices) <= period {
		return 0, false
	}
	base := prices[len(prices)-1-period]
	if base == 0 {
		return 0, false
	}
	return (prices[len(prices)-1] - base) / base, true
}
