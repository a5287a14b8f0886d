package rl

import (
	"math"
	"math/rand/v2"
)

// Network is a one-hidden-layer ReLU perceptron estimating action values
type Network struct {
	W1 [][]float64 `json:"w1"` // hidden x input
	B1 []float64   `json:"b1"`
	W2 [][]float64 `json:"w2"` // output x hidden
	B2 []float64   `json:"b2"`
}

// NewNetwork initializes weights with Xavier uniform draws from rng
func NewNetwork(inputs, hidden, outputs int, rng *rand.Rand) *Network {
	return &Network{
		W1: xavier(hidden, inputs, rng),
		B1: make([]float64, hidden),
		W2: xavier(outputs, hidden, rng),
		B2: make([]float64, outputs),
	}
}

func xavier(rows, cols int, rng *rand.Rand) [][]float64 {
	limit := math.Sqrt(6 / float64(rows+cols))
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
		for j := range m[i] {
			m[i][j] = (2*rng.Float64() - 1) * limit
		}
	}
	return m
}

// Inputs returns the input width
func (n *Network) Inputs() int {
	if len(n.W1) == 0 {
		return 0
	}
	return len(n.W1[0])
}

// Outputs returns the number of action values
func (n *Network) Outputs() int {
	return len(n.W2)
}

func (n *Network) hidden(x []float64) []float64 {
	h := make([]float64, len(n.W1))
	for j, row := range n.W1 {
		s := n.B1[j]
		for i, w := range row {
			s += w * x[i]
		}
		h[j] = math.Max(s, 0)
	}
	return h
}

// Forward returns the action values for x
func (n *Network) Forward(x []float64) []float64 {
	h := n.hidden(x)
	q := make([]float64, len(n.W2))
	for a, row := range n.W2 {
		s := n.B2[a]
		for j, w := range row {
			s += w * h[j]
		}
		q[a] = s
	}
	return q
}

// Update takes one SGD step on the squared error between the value of
// action and target. The error gradient is clipped to [-clip, clip].
// It returns the squared error before the update.
func (n *Network) Update(x []float64, action int, target, lr, clip float64) float64 {
	h := n.hidden(x)
	q := n.B2[action]
	for j, w := range n.W2[action] {
		q += w * h[j]
	}
	diff := q - target
	grad := math.Max(-clip, math.Min(clip, diff))

	for j := range h {
		if h[j] <= 0 {
			continue
		}
		dh := grad * n.W2[action][j]
		for i := range n.W1[j] {
			n.W1[j][i] -= lr * dh * x[i]
		}
		n.B1[j] -= lr * dh
	}
	for j := range h {
		n.W2[action][j] -= lr * grad * h[j]
	}
	n.B2[action] -= lr * grad
	return diff * diff
}

// Clone returns a deep copy
func (n *Network) Clone() *Network {
	c := &Network{}
	c.CopyFrom(n)
	return c
}

// CopyFrom overwrites n with the parameters of src
func (n *Network) CopyFrom(src *Network) {
	n.W1 = copyMatrix(src.W1)
	n.B1 = append([]float64(nil), src.B1...)
	n.W2 = copyMatrix(src.W2)
	n.B2 = append([]float64(nil), src.B2...)
}

func copyMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

func argmax(q []float64) int {
	best := 0
	for i, v := range q {
		if v > q[best] {
			best = i
		}
	}
	return best
}
