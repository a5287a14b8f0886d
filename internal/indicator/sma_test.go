package indicator

import (
	"math"
	"testing"
)

func TestSMA_Calculate(t *testing.T) {
	prices := []float64{10, 11, 12, 13, 14, 15}

	sma := SMA(prices, 3)

	// SMA(3) for [10,11,12,13,14,15]:
	// [0] = (10+11+12)/3 = 11
	// [3] = (13+14+15)/3 = 14
	expected := []float64{11, 12, 13, 14}

	if len(sma) != len(expected) {
		t.Fatalf("expected %d values, got %d", len(expected), len(sma))
	}

	for i, v := range expected {
		if sma[i] != v {
			t.Errorf("sma[%d] = %f, want %f", i, sma[i], v)
		}
	}
}

func TestSMA_NotEnoughData(t *testing.T) {
	prices := []float64{10, 11}
	sma := SMA(prices, 5)

	if len(sma) != 0 {
		t.Errorf("expected empty slice, got %d values", len(sma))
	}
}

func TestLastSMA(t *testing.T) {
	v, ok := LastSMA([]float64{1, 2, 3, 4}, 2)
	if !ok || v != 3.5 {
		t.Errorf("LastSMA = %f %v, want 3.5 true", v, ok)
	}
	if _, ok := LastSMA([]float64{1}, 2); ok {
		t.Error("expected false for short series")
	}
}

func TestMomentum(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		period int
		want   float64
		ok     bool
	}{
		{"rising", []float64{100, 105, 110}, 2, 0.10, true},
		{"falling", []float64{100, 90}, 1, -0.10, true},
		{"too short", []float64{100, 90}, 2, 0, false},
		{"zero base", []float64{0, 90}, 1, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Momentum(tt.prices, tt.period)
			if ok != tt.ok || !almostEqual(got, tt.want, 1e-12) {
				t.Errorf("Momentum() = %f %v, want %f %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) < tolerance
}
