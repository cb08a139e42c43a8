package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/factset/internal/ir"
	"github.com/roach88/factset/internal/memstore"
)

func TestSeedAssets_AssignsIDs(t *testing.T) {
	store := memstore.New()
	assets := SeedAssets(t, store, SequentialUUID(1), SequentialUUID(2))

	require.Len(t, assets, 2)
	for _, a := range assets {
		assert.True(t, a.Persisted())
		assert.Equal(t, ir.KindAsset, a.Kind)
	}

	found, err := store.FindByUUID(context.Background(), ir.KindAsset, SequentialUUID(2))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, assets[1].ID, found.ID)
}

func TestSeedFact_ReadBack(t *testing.T) {
	store := memstore.New()
	a := SeedAssets(t, store, SequentialUUID(1))[0]
	b := SeedAssets(t, store, SequentialUUID(2))[0]

	SeedFact(t, store, a, "color", "Red")
	SeedRelation(t, store, a, "contains", b)

	colors, err := store.FactsOf(context.Background(), a.ID, "color")
	require.NoError(t, err)
	require.Len(t, colors, 1)
	assert.Equal(t, "Red", colors[0].Object.Value())

	contains, err := store.FactsOf(context.Background(), a.ID, "contains")
	require.NoError(t, err)
	require.Len(t, contains, 1)
	assert.Equal(t, b.UUID, contains[0].Object.Value())
}

func TestSeedOwner_WithDefaultGroup(t *testing.T) {
	store := memstore.New()
	g := SeedGroup(t, store, SequentialUUID(9), "rack")
	asset := SeedAssets(t, store, SequentialUUID(1))[0]
	SeedMembership(t, store, g, asset)

	owner := SeedOwner(t, store, "step-1", g)
	assert.NotZero(t, owner.ID)
	assert.False(t, owner.Changed())

	stored, err := store.Owner(context.Background(), owner.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.DefaultGroup)
	assert.Equal(t, g.UUID, stored.DefaultGroup.UUID)
	assert.Equal(t, 1, CountRows(t, store, "asset_groups_assets"))
}
