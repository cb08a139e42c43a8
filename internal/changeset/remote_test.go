package changeset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/factset/internal/ir"
	"github.com/roach88/factset/internal/memstore"
	"github.com/roach88/factset/internal/testutil"
)

func TestReplaceRemoteProperty_StagesHandleRemovals(t *testing.T) {
	store := memstore.New()
	a := testutil.SeedAssets(t, store, storedA)[0]
	red := testutil.SeedFact(t, store, a, "color", "Red")
	blue := testutil.SeedFact(t, store, a, "color", "Blue")
	testutil.SeedFact(t, store, a, "shape", "Round")
	ctx := context.Background()

	cs := newTestChangeSet(store)
	require.NoError(t, cs.ReplaceRemoteProperty(ctx, ir.UUIDRef(storedA), "color", "Green"))

	destroyed := cs.FactsToDestroy()
	require.Len(t, destroyed, 2)
	assert.Equal(t, red.ID, destroyed[0].ID)
	assert.Equal(t, blue.ID, destroyed[1].ID)

	updates := cs.RemoteUpdates()
	require.Len(t, updates, 2)

	added := cs.FactsToAdd()
	require.Len(t, added, 1)
	assert.True(t, added[0].Remote)
	assert.Equal(t, "Green", added[0].Object.Literal)
}

func TestReplaceRemoteProperty_ReplacesStagedValue(t *testing.T) {
	store := memstore.New()
	testutil.SeedAssets(t, store, storedA, storedB)
	ctx := context.Background()

	cs := newTestChangeSet(store)
	require.NoError(t, cs.Add(ctx, ir.UUIDRef(storedA), "color", ir.Literal("Grey")))
	require.NoError(t, cs.ReplaceRemoteProperty(ctx, ir.UUIDRef(storedB), "color", "Red"))
	require.NoError(t, cs.ReplaceRemoteProperty(ctx, ir.UUIDRef(storedA), "color", "Green"))
	require.NoError(t, cs.ReplaceRemoteProperty(ctx, ir.UUIDRef(storedA), "color", "Blue"))
	require.NoError(t, cs.ReplaceRemoteProperty(ctx, ir.UUIDRef(storedA), "color", "Green"))

	var got []string
	for _, f := range cs.FactsToAdd() {
		got = append(got, f.Subject.UUID+" "+f.Object.Literal)
	}
	assert.Equal(t, []string{
		storedA + " Grey",
		storedB + " Red",
		storedA + " Green",
	}, got, "only the latest remote value of a subject and predicate stays staged")
}

func TestReplaceRemoteProperty_Commit(t *testing.T) {
	store := memstore.New()
	a := testutil.SeedAssets(t, store, storedA)[0]
	testutil.SeedFact(t, store, a, "color", "Red")
	ctx := context.Background()

	cs := newTestChangeSet(store)
	require.NoError(t, cs.ReplaceRemoteProperty(ctx, ir.UUIDRef(storedA), "color", "Red"))

	ops, err := NewApplier(store, WithLogger(discardLogger())).Commit(ctx, cs, &ir.OwnerRecord{Label: "sync"})
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, ir.ActionRemoveFacts, ops[0].ActionType)
	assert.Equal(t, ir.ActionAddFacts, ops[1].ActionType)

	colors, err := store.FactsOf(ctx, a.ID, "color")
	require.NoError(t, err)
	require.Len(t, colors, 1)
	assert.Equal(t, "Red", colors[0].Object.Value())
	assert.True(t, colors[0].Remote)
}

func TestReplaceRemoteRelation(t *testing.T) {
	store := memstore.New()
	assets := testutil.SeedAssets(t, store, storedA, storedB)
	testutil.SeedRelation(t, store, assets[0], "parent", assets[1])
	ctx := context.Background()

	cs := newTestChangeSet(store)
	err := cs.ReplaceRemoteRelation(ctx, ir.UUIDRef(storedA), "parent", ir.Literal("rack"))
	require.True(t, IsValidationError(err))
	assert.True(t, cs.Empty())

	require.NoError(t, cs.CreateEntities(ctx, []ir.EntityRef{ir.Wildcard("?rack")}))
	require.NoError(t, cs.ReplaceRemoteRelation(ctx, ir.UUIDRef(storedA), "parent", ir.Wildcard("?rack")))

	added := cs.FactsToAdd()
	require.Len(t, added, 1)
	require.True(t, added[0].Object.IsEntity())
	assert.Equal(t, uuid1, added[0].Object.Entity.UUID)
	assert.Len(t, cs.FactsToDestroy(), 1)
}

func TestReplaceRemote_FailureStagesNothing(t *testing.T) {
	store := memstore.New()
	a := testutil.SeedAssets(t, store, storedA)[0]
	testutil.SeedFact(t, store, a, "parent", "x")
	cs := newTestChangeSet(store)

	err := cs.ReplaceRemote(context.Background(), ir.UUIDRef(storedA), "parent", ir.Wildcard("?missing"))
	require.True(t, IsReferenceError(err))
	assert.Empty(t, cs.FactsToDestroy())
	assert.Empty(t, cs.RemoteUpdates())
}

// The remote flag is not part of a fact's identity: a remote and a local
// copy of the same triple cancel.
func TestAddRemote_CancelsLocalRemoval(t *testing.T) {
	store := memstore.New()
	testutil.SeedAssets(t, store, storedA)
	ctx := context.Background()
	cs := newTestChangeSet(store)

	require.NoError(t, cs.AddRemote(ctx, ir.UUIDRef(storedA), "color", ir.Literal("Red")))
	require.NoError(t, cs.RemoveWhere(ctx, ir.UUIDRef(storedA), "color", ir.Literal("Red")))

	assert.Equal(t, "{}", wireOf(t, cs))
}
