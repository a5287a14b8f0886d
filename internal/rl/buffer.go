package rl

import (
	"math/rand/v2"

	"github.com/newthinker/aporte/internal/core"
)

// Transition is one environment interaction
type Transition struct {
	State  []float64 `json:"state"`
	Action int       `json:"action"`
	Reward float64   `json:"reward"`
	Next   []float64 `json:"next"`
	Done   bool      `json:"done"`
}

// ReplayBuffer is a bounded ring of transitions; the oldest is evicted
// first once full.
type ReplayBuffer struct {
	items    []Transition
	next     int
	capacity int
}

// NewReplayBuffer creates a buffer holding at most capacity transitions
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ReplayBuffer{capacity: capacity}
}

// Add stores a copy of t
func (b *ReplayBuffer) Add(t Transition) {
	t.State = append([]float64(nil), t.State...)
	t.Next = append([]float64(nil), t.Next...)
	if len(b.items) < b.capacity {
		b.items = append(b.items, t)
		return
	}
	b.items[b.next] = t
	b.next = (b.next + 1) % b.capacity
}

// Len returns the number of stored transitions
func (b *ReplayBuffer) Len() int {
	return len(b.items)
}

// Cap returns the capacity
func (b *ReplayBuffer) Cap() int {
	return b.capacity
}

// at returns the i-th transition, oldest first
func (b *ReplayBuffer) at(i int) Transition {
	if len(b.items) < b.capacity {
		return b.items[i]
	}
	return b.items[(b.next+i)%b.capacity]
}

// Sample draws n distinct transitions uniformly at random
func (b *ReplayBuffer) Sample(rng *rand.Rand, n int) ([]Transition, error) {
	if n > len(b.items) {
		return nil, core.Errorf(core.ErrInsufficientSample, "replay buffer holds %d transitions, %d requested", len(b.items), n)
	}
	idx := make([]int, len(b.items))
	for i := range idx {
		idx[i] = i
	}
	out := make([]Transition, n)
	for i := 0; i < n; i++ {
		j := i + rng.IntN(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
		out[i] = b.at(idx[i])
	}
	return out, nil
}

// bufferState is the serialized form of a buffer, oldest first
type bufferState struct {
	Capacity int          `json:"capacity"`
	Items    []Transition `json:"items"`
}

func (b *ReplayBuffer) snapshot() bufferState {
	items := make([]Transition, len(b.items))
	for i := range items {
		items[i] = b.at(i)
	}
	return bufferState{Capacity: b.capacity, Items: items}
}

func restoreBuffer(s bufferState) *ReplayBuffer {
	b := NewReplayBuffer(s.Capacity)
	for _, t := range s.Items {
		b.Add(t)
	}
	return b
}
