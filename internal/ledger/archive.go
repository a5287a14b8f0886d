package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/newthinker/aporte/internal/core"
	"github.com/newthinker/aporte/internal/storage/archive"
)

const decisionPrefix = "decisions/"

// ArchiveLedger stores one JSON object per decision in archive storage,
// keyed decisions/YYYY/MM/DD/<profile>-<id>.json.
type ArchiveLedger struct {
	store archive.Storage
}

// NewArchiveLedger creates a ledger backed by store
func NewArchiveLedger(store archive.Storage) *ArchiveLedger {
	return &ArchiveLedger{store: store}
}

// Key returns the object key of a decision
func Key(d *core.AllocationDecision) string {
	return decisionPrefix + d.Date.UTC().Format("2006/01/02") + "/" + d.ProfileName + "-" + d.ID + ".json"
}

// Append writes the decision as a new object
func (l *ArchiveLedger) Append(ctx context.Context, decision *core.AllocationDecision) error {
	if decision.ID == "" {
		decision.ID = uuid.NewString()
	}
	data, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("encode decision %s: %w", decision.ID, err)
	}
	if err := l.store.Write(ctx, Key(decision), data); err != nil {
		return fmt.Errorf("append decision %s: %w", decision.ID, err)
	}
	return nil
}

// Get retrieves a decision by ID
func (l *ArchiveLedger) Get(ctx context.Context, id string) (*core.AllocationDecision, error) {
	keys, err := l.store.List(ctx, decisionPrefix)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		if strings.HasSuffix(key, "-"+id+".json") {
			return l.read(ctx, key)
		}
	}
	return nil, ErrNotFound
}

// List reads the decisions matching the filter, ordered by date
func (l *ArchiveLedger) List(ctx context.Context, filter ListFilter) ([]core.AllocationDecision, error) {
	keys, err := l.store.List(ctx, decisionPrefix)
	if err != nil {
		return nil, err
	}

	var result []core.AllocationDecision
	for _, key := range keys {
		if filter.Profile != "" && !strings.HasPrefix(path.Base(key), filter.Profile+"-") {
			continue
		}
		d, err := l.read(ctx, key)
		if err != nil {
			return nil, err
		}
		if filter.matches(*d) {
			result = append(result, *d)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return filter.page(result), nil
}

func (l *ArchiveLedger) read(ctx context.Context, key string) (*core.AllocationDecision, error) {
	data, err := l.store.Read(ctx, key)
	if errors.Is(err, archive.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var d core.AllocationDecision
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &d, nil
}
