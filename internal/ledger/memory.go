package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/newthinker/aporte/internal/core"
)

// MemoryLedger is an in-memory ledger keeping the most recent decisions.
type MemoryLedger struct {
	decisions []core.AllocationDecision
	maxSize   int
	mu        sync.RWMutex
}

// NewMemoryLedger creates a new in-memory ledger with max capacity.
func NewMemoryLedger(maxSize int) *MemoryLedger {
	if maxSize < 1 {
		maxSize = 1
	}
	return &MemoryLedger{
		decisions: make([]core.AllocationDecision, 0, maxSize),
		maxSize:   maxSize,
	}
}

// Append adds a decision to the ledger.
func (m *MemoryLedger) Append(ctx context.Context, decision *core.AllocationDecision) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if decision.ID == "" {
		decision.ID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.decisions = append(m.decisions, *decision)

	// Trim if over capacity (remove oldest)
	if len(m.decisions) > m.maxSize {
		m.decisions = m.decisions[len(m.decisions)-m.maxSize:]
	}

	return nil
}

// Get retrieves a decision by ID.
func (m *MemoryLedger) Get(ctx context.Context, id string) (*core.AllocationDecision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := range m.decisions {
		if m.decisions[i].ID == id {
			d := m.decisions[i]
			return &d, nil
		}
	}
	return nil, ErrNotFound
}

// List returns decisions matching the filter.
func (m *MemoryLedger) List(ctx context.Context, filter ListFilter) ([]core.AllocationDecision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []core.AllocationDecision
	for _, d := range m.decisions {
		if filter.matches(d) {
			result = append(result, d)
		}
	}
	return filter.page(result), nil
}

// Len returns the number of held decisions.
func (m *MemoryLedger) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.decisions)
}
