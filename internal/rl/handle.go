package rl

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/newthinker/aporte/internal/allocator"
	"github.com/newthinker/aporte/internal/core"
	"github.com/newthinker/aporte/internal/storage/archive"
)

// PolicyHandle holds the trained policy used for live decisions. It is
// safe for concurrent use; the agent it holds is only read.
type PolicyHandle struct {
	mu     sync.RWMutex
	agent  *Agent
	logger *zap.Logger
}

// NewPolicyHandle creates an empty handle
func NewPolicyHandle(logger *zap.Logger) *PolicyHandle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyHandle{logger: logger}
}

// Load replaces the held policy with the checkpoint at path. The previous
// policy is kept when loading fails.
func (h *PolicyHandle) Load(ctx context.Context, store archive.Storage, path string) error {
	agent, err := Load(ctx, store, path)
	if err != nil {
		return err
	}
	h.Set(agent)
	h.logger.Info("policy loaded",
		zap.String("path", path),
		zap.Int("episodes", agent.Episodes()),
		zap.Int("actions", len(agent.Templates())),
	)
	return nil
}

// Set installs an agent directly
func (h *PolicyHandle) Set(agent *Agent) {
	h.mu.Lock()
	h.agent = agent
	h.mu.Unlock()
}

// Loaded reports whether a policy is held
func (h *PolicyHandle) Loaded() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.agent != nil
}

// StateSize returns the state length the policy expects, 0 when empty
func (h *PolicyHandle) StateSize() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.agent == nil {
		return 0
	}
	return h.agent.StateSize()
}

// Advise implements allocator.PolicyAdvisor with the greedy template
func (h *PolicyHandle) Advise(state []float64) (allocator.Advice, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.agent == nil {
		return allocator.Advice{}, core.ErrPolicyUnavailable
	}
	action, err := h.agent.Predict(state)
	if err != nil {
		return allocator.Advice{}, err
	}
	t := h.agent.templates[action]
	meso := make(map[string]float64, len(t.Meso))
	for s, w := range t.Meso {
		meso[s] = w
	}
	return allocator.Advice{Action: t.Name, Mega: t.Mega.Clone(), Meso: meso}, nil
}
