package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simplici0/invoicecalc/internal/db"
	"github.com/Simplici0/invoicecalc/internal/migrations"
	"github.com/Simplici0/invoicecalc/internal/pricing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	database, err := db.Open(db.SessionDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, migrations.Up(database))

	return New(database)
}

func TestReplaceAndListItemsKeepsOrder(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	items := []pricing.Item{
		pricing.NewItem("z", "Last added first", 10, 10),
		pricing.NewItem("a", "Second", 200, 30),
		pricing.NewItem("m", "Third", 100, 20),
	}
	require.NoError(t, st.ReplaceItems(ctx, items))

	got, err := st.ListItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, items, got)

	require.NoError(t, st.ReplaceItems(ctx, items[1:]))
	got, err = st.ListItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, items[1:], got)

	n, err := st.CountItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestListItemsEmpty(t *testing.T) {
	st := newTestStore(t)

	got, err := st.ListItems(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestReplaceItemsRollsBackOnDuplicateID(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	before := []pricing.Item{pricing.NewItem("a", "Poster", 100, 20)}
	require.NoError(t, st.ReplaceItems(ctx, before))

	dup := []pricing.Item{
		pricing.NewItem("x", "One", 1, 1),
		pricing.NewItem("x", "Two", 2, 2),
	}
	require.Error(t, st.ReplaceItems(ctx, dup))

	got, err := st.ListItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, got)
}

func TestSplitParamsLifecycle(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	_, err := st.GetSplitParams(ctx)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, st.SaveSplitParams(ctx, DefaultSplitParams()), ErrNotFound)

	inserted, err := st.EnsureSplitParams(ctx)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = st.EnsureSplitParams(ctx)
	require.NoError(t, err)
	assert.False(t, inserted)

	p, err := st.GetSplitParams(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultSplitParams(), p)

	want := SplitParams{CreatorMarkup: "150.5", SplitPercentage: 65, SplitTouched: true}
	require.NoError(t, st.SaveSplitParams(ctx, want))

	p, err = st.GetSplitParams(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, p)
}
