package rl

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/aporte/internal/core"
)

func transition(i int) Transition {
	return Transition{State: []float64{float64(i)}, Action: i % 2, Reward: float64(i), Next: []float64{float64(i + 1)}}
}

func TestReplayBuffer_CapacityAndEviction(t *testing.T) {
	b := NewReplayBuffer(3)
	for i := 0; i < 5; i++ {
		b.Add(transition(i))
	}

	assert.Equal(t, 3, b.Len())
	assert.Equal(t, 3, b.Cap())
	items := b.snapshot().Items
	require.Len(t, items, 3)
	for i, want := range []float64{2, 3, 4} {
		assert.Equal(t, want, items[i].Reward)
	}
}

func TestReplayBuffer_AddCopiesSlices(t *testing.T) {
	b := NewReplayBuffer(2)
	state := []float64{1}
	b.Add(Transition{State: state, Next: []float64{2}})
	state[0] = 99

	assert.Equal(t, 1.0, b.at(0).State[0])
}

func TestReplayBuffer_SampleWithoutReplacement(t *testing.T) {
	b := NewReplayBuffer(10)
	for i := 0; i < 10; i++ {
		b.Add(transition(i))
	}
	rng := rand.New(rand.NewPCG(1, 2))

	batch, err := b.Sample(rng, 10)
	require.NoError(t, err)
	seen := make(map[float64]bool)
	for _, tr := range batch {
		assert.False(t, seen[tr.Reward], "duplicate transition %v", tr.Reward)
		seen[tr.Reward] = true
	}
	assert.Len(t, seen, 10)

	_, err = b.Sample(rng, 11)
	assert.True(t, errors.Is(err, core.ErrInsufficientSample))
}

func TestReplayBuffer_SampleDeterministic(t *testing.T) {
	b := NewReplayBuffer(50)
	for i := 0; i < 50; i++ {
		b.Add(transition(i))
	}
	first, err := b.Sample(rand.New(rand.NewPCG(7, 7)), 5)
	require.NoError(t, err)
	second, err := b.Sample(rand.New(rand.NewPCG(7, 7)), 5)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestReplayBuffer_RestoreKeepsOrder(t *testing.T) {
	b := NewReplayBuffer(4)
	for i := 0; i < 6; i++ {
		b.Add(transition(i))
	}
	restored := restoreBuffer(b.snapshot())

	assert.Equal(t, b.snapshot(), restored.snapshot())
	restored.Add(transition(6))
	b.Add(transition(6))
	assert.Equal(t, b.snapshot(), restored.snapshot())
}
