package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/aporte/internal/core"
	"github.com/newthinker/aporte/internal/storage/archive"
)

func newArchiveLedger(t *testing.T) (*ArchiveLedger, archive.Storage) {
	t.Helper()
	store, err := archive.NewLocalFS(t.TempDir())
	require.NoError(t, err)
	return NewArchiveLedger(store), store
}

func TestArchiveLedger_AppendWritesKey(t *testing.T) {
	l, store := newArchiveLedger(t)
	ctx := context.Background()

	d := decision("conservative", core.RegimeBear, day)
	d.ID = "abc"
	require.NoError(t, l.Append(ctx, d))

	assert.Equal(t, "decisions/2024/03/15/conservative-abc.json", Key(d))
	ok, err := store.Exists(ctx, Key(d))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestArchiveLedger_RoundTrip(t *testing.T) {
	l, _ := newArchiveLedger(t)
	ctx := context.Background()

	d := decision("intermediate", core.RegimeSideways, day)
	require.NoError(t, l.Append(ctx, d))
	require.NotEmpty(t, d.ID)

	got, err := l.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ProfileName, got.ProfileName)
	assert.True(t, d.ContributionAmount.Equal(got.ContributionAmount))
	assert.True(t, d.ClassAmounts[core.ClassFixedIncome].Equal(got.ClassAmounts[core.ClassFixedIncome]))
	assert.Equal(t, d.Regime.Regime, got.Regime.Regime)
	assert.True(t, d.Date.Equal(got.Date))

	_, err = l.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestArchiveLedger_ListFiltersAndOrders(t *testing.T) {
	l, _ := newArchiveLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, decision("aggressive", core.RegimeBull, day.AddDate(0, 0, 2))))
	require.NoError(t, l.Append(ctx, decision("conservative", core.RegimeBear, day)))
	require.NoError(t, l.Append(ctx, decision("aggressive", core.RegimeBull, day)))

	all, err := l.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[2].Date.Equal(day.AddDate(0, 0, 2)))

	aggressive, err := l.List(ctx, ListFilter{Profile: "aggressive"})
	require.NoError(t, err)
	assert.Len(t, aggressive, 2)

	later, err := l.List(ctx, ListFilter{From: day.AddDate(0, 0, 1)})
	require.NoError(t, err)
	assert.Len(t, later, 1)
}
