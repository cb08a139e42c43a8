package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/factset/internal/changeset"
	"github.com/roach88/factset/internal/ir"
	"github.com/roach88/factset/internal/testutil"
)

func newApplier(s *Store, opts ...changeset.ApplierOption) *changeset.Applier {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return changeset.NewApplier(s, append([]changeset.ApplierOption{changeset.WithLogger(logger)}, opts...)...)
}

func newChangeSet(s *Store) *changeset.ChangeSet {
	return changeset.New(s, changeset.WithUUIDGenerator(testutil.NewSequentialUUIDGenerator()))
}

func tableCounts(t *testing.T, s *Store) map[string]int {
	t.Helper()
	out := map[string]int{}
	for _, table := range []string{"assets", "asset_groups", "facts", "asset_groups_assets", "owners", "operations"} {
		out[table] = countRows(t, s, table)
	}
	return out
}

func TestCommit_OnSQLite(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	cs := newChangeSet(s)
	require.NoError(t, cs.CreateEntities(ctx, []ir.EntityRef{ir.Wildcard("?plate"), ir.Wildcard("?tube")}))
	require.NoError(t, cs.CreateGroups(ctx, []ir.EntityRef{ir.Wildcard("?rack")}))
	require.NoError(t, cs.Add(ctx, ir.Wildcard("?plate"), "a", ir.Literal("Plate")))
	require.NoError(t, cs.Add(ctx, ir.Wildcard("?plate"), "contains", ir.Wildcard("?tube")))
	require.NoError(t, cs.AddToGroup(ctx, ir.Wildcard("?rack"), []ir.EntityRef{ir.Wildcard("?tube")}))
	plate, ok := cs.Resolver().UUIDFor("?plate")
	require.True(t, ok)

	owner := &ir.OwnerRecord{Label: "create"}
	ops, err := newApplier(s).Commit(ctx, cs, owner)
	require.NoError(t, err)
	assert.Len(t, ops, 6)

	assert.Equal(t, map[string]int{
		"assets": 2, "asset_groups": 1, "facts": 2, "asset_groups_assets": 1, "owners": 1, "operations": 6,
	}, tableCounts(t, s))

	logged, err := s.Operations(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, logged, 6)
	for i, op := range logged {
		assert.Equal(t, ops[i].Canonical(), op.Canonical())
	}

	// A second changeset sees the committed state through the store.
	stored, err := s.FindByUUID(ctx, ir.KindAsset, plate)
	require.NoError(t, err)
	require.NotNil(t, stored)

	next := newChangeSet(s)
	require.NoError(t, next.RemoveWhere(ctx, ir.UUIDRef(plate), "a", ir.Literal("Plate")))
	require.NoError(t, next.Add(ctx, ir.UUIDRef(plate), "a", ir.Literal("Rack")))
	_, err = newApplier(s).Commit(ctx, next, &ir.OwnerRecord{Label: "rename"})
	require.NoError(t, err)

	facts, err := s.FactsOf(ctx, stored.ID, "a")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "Rack", facts[0].Object.Literal)
}

func TestCommit_HookFailureRollsBackSQLite(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	testutil.SeedAssets(t, s, uuidA)
	before := tableCounts(t, s)

	boom := errors.New("hook refused")
	hook := func(ctx context.Context, tx ir.Tx, cs *changeset.ChangeSet, owner *ir.OwnerRecord) error {
		return boom
	}

	cs := newChangeSet(s)
	require.NoError(t, cs.CreateEntities(ctx, []ir.EntityRef{ir.Wildcard("?n")}))
	require.NoError(t, cs.Add(ctx, ir.UUIDRef(uuidA), "color", ir.Literal("Red")))

	owner := &ir.OwnerRecord{Label: "doomed"}
	_, err := newApplier(s, changeset.WithHook(hook)).Commit(ctx, cs, owner)
	require.ErrorIs(t, err, boom)

	assert.Equal(t, before, tableCounts(t, s))
	assert.Zero(t, owner.ID, "owner id is restored")
	assert.False(t, cs.Empty(), "a failed commit keeps the staged changes")
}

func TestCommit_AbortedLeavesSQLiteUntouched(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	cs := newChangeSet(s)
	require.NoError(t, cs.CreateEntities(ctx, []ir.EntityRef{ir.Wildcard("?n")}))
	cs.SetErrors("plate is empty")

	_, err := newApplier(s).Commit(ctx, cs, &ir.OwnerRecord{Label: "aborted"})
	require.Error(t, err)
	assert.True(t, changeset.IsApplyAborted(err))
	assert.Equal(t, 0, countRows(t, s, "assets"))
	assert.Equal(t, 0, countRows(t, s, "owners"))
}
