package rl

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNetwork_Shape(t *testing.T) {
	n := NewNetwork(5, 8, 3, rand.New(rand.NewPCG(1, 1)))

	assert.Equal(t, 5, n.Inputs())
	assert.Equal(t, 3, n.Outputs())
	assert.Len(t, n.Forward(make([]float64, 5)), 3)
}

func TestNetwork_SeededInit(t *testing.T) {
	a := NewNetwork(4, 6, 2, rand.New(rand.NewPCG(3, 4)))
	b := NewNetwork(4, 6, 2, rand.New(rand.NewPCG(3, 4)))
	assert.Equal(t, a, b)
}

func TestNetwork_UpdateReducesError(t *testing.T) {
	n := NewNetwork(3, 16, 2, rand.New(rand.NewPCG(5, 6)))
	x := []float64{0.5, -0.2, 1.0}

	first := n.Update(x, 1, 2.0, 0.05, 10)
	var last float64
	for i := 0; i < 200; i++ {
		last = n.Update(x, 1, 2.0, 0.05, 10)
	}
	assert.Less(t, last, first)
	assert.InDelta(t, 2.0, n.Forward(x)[1], 0.05)
}

func TestNetwork_CloneIsIndependent(t *testing.T) {
	n := NewNetwork(2, 4, 2, rand.New(rand.NewPCG(9, 9)))
	c := n.Clone()
	x := []float64{1, 1}

	n.Update(x, 0, 5, 0.1, 1)
	assert.NotEqual(t, n.Forward(x), c.Forward(x))

	c.CopyFrom(n)
	assert.Equal(t, n.Forward(x), c.Forward(x))
}

func TestArgmax(t *testing.T) {
	assert.Equal(t, 2, argmax([]float64{0.1, -1, 0.3}))
	assert.Equal(t, 0, argmax([]float64{1, 1}))
}
