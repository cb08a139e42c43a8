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

func newTestResolver(t *testing.T) (*Resolver, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	testutil.SeedAssets(t, store, storedA)
	testutil.SeedGroup(t, store, storedG, "rack")
	return NewResolver(store, testutil.NewSequentialUUIDGenerator()), store
}

func TestResolver_WildcardIsStable(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	first, err := r.Resolve(ctx, ir.KindAsset, ir.Wildcard("?p"), true)
	require.NoError(t, err)
	second, err := r.Resolve(ctx, ir.KindAsset, ir.Wildcard("?p"), true)
	require.NoError(t, err)
	third, err := r.Resolve(ctx, ir.KindAsset, ir.Wildcard("?p"), false)
	require.NoError(t, err)

	assert.Equal(t, uuid1, first.UUID)
	assert.Same(t, first, second, "one in-memory entity per uuid")
	assert.Same(t, first, third)
	assert.False(t, first.Persisted())

	uuid, ok := r.UUIDFor("?p")
	assert.True(t, ok)
	assert.Equal(t, uuid1, uuid)
	assert.Equal(t, "?p", r.WildcardFor(uuid1))
	assert.Equal(t, "", r.WildcardFor(uuid2))
}

func TestResolver_Errors(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		kind   ir.Kind
		ref    ir.EntityRef
		create bool
		check  func(error) bool
	}{
		{"unbound wildcard without create", ir.KindAsset, ir.Wildcard("?p"), false, IsReferenceError},
		{"unknown uuid without create", ir.KindAsset, ir.UUIDRef(storedB), false, IsReferenceError},
		{"stored uuid of another kind", ir.KindAsset, ir.UUIDRef(storedG), false, IsReferenceError},
		{"literal", ir.KindAsset, ir.Literal("plate"), true, IsValidationError},
		{"zero ref", ir.KindAsset, ir.EntityRef{}, true, IsValidationError},
		{"nil handle", ir.KindAsset, ir.Handle(nil), false, IsValidationError},
		{"handle of another kind", ir.KindAsset, ir.Handle(&ir.Entity{Kind: ir.KindGroup, UUID: storedG}), false, IsValidationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(ctx, tt.kind, tt.ref, tt.create)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}
	assert.Empty(t, r.Tokens(), "failed lookups bind nothing")
}

func TestResolver_UUIDRef(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	stored, err := r.Resolve(ctx, ir.KindAsset, ir.UUIDRef(storedA), false)
	require.NoError(t, err)
	assert.True(t, stored.Persisted())

	group, err := r.Resolve(ctx, ir.KindGroup, ir.UUIDRef(storedG), false)
	require.NoError(t, err)
	assert.Equal(t, "rack", group.Name)

	fresh, err := r.Resolve(ctx, ir.KindAsset, ir.UUIDRef(storedB), true)
	require.NoError(t, err)
	assert.False(t, fresh.Persisted())
	assert.Equal(t, storedB, fresh.UUID)

	again, err := r.Resolve(ctx, ir.KindAsset, ir.UUIDRef(storedB), false)
	require.NoError(t, err)
	assert.Same(t, fresh, again)
}

func TestResolver_HandleIsReturnedUnchanged(t *testing.T) {
	r, _ := newTestResolver(t)
	e := &ir.Entity{ID: 42, UUID: storedA, Kind: ir.KindAsset}

	got, err := r.Resolve(context.Background(), ir.KindAsset, ir.Handle(e), false)
	require.NoError(t, err)
	assert.Same(t, e, got)
	_, cached := r.Instance(storedA)
	assert.False(t, cached, "persisted handles stay out of the cache")
}

func TestResolver_UnsavedHandleIsCached(t *testing.T) {
	r := NewResolver(nil, testutil.NewSequentialUUIDGenerator())
	ctx := context.Background()
	e := ir.NewEntity(ir.KindAsset, uuid1)

	got, err := r.Resolve(ctx, ir.KindAsset, ir.Handle(e), false)
	require.NoError(t, err)
	assert.Same(t, e, got)
	cached, ok := r.Instance(uuid1)
	require.True(t, ok)
	assert.Same(t, e, cached)

	// A second allocation for the same uuid resolves to the cached one.
	twin := ir.NewEntity(ir.KindAsset, uuid1)
	got, err = r.Resolve(ctx, ir.KindAsset, ir.Handle(twin), false)
	require.NoError(t, err)
	assert.Same(t, e, got)

	byRef, err := r.Resolve(ctx, ir.KindAsset, ir.UUIDRef(uuid1), false)
	require.NoError(t, err)
	assert.Same(t, e, byRef)

	_, err = r.Resolve(ctx, ir.KindGroup, ir.Handle(&ir.Entity{UUID: uuid1}), false)
	assert.True(t, IsValidationError(err))
}

func TestResolver_WithoutReader(t *testing.T) {
	r := NewResolver(nil, testutil.NewSequentialUUIDGenerator())

	_, err := r.Resolve(context.Background(), ir.KindAsset, ir.UUIDRef(storedA), false)
	assert.True(t, IsReferenceError(err))
}

func TestResolver_Bind(t *testing.T) {
	r := NewResolver(nil, testutil.NewSequentialUUIDGenerator())

	require.NoError(t, r.Bind("?p", storedA))
	require.NoError(t, r.Bind("?p", storedA), "rebinding to the same uuid is a no-op")

	err := r.Bind("?p", storedB)
	require.Error(t, err)
	assert.True(t, IsWildcardConflict(err))

	assert.Equal(t, []string{"?p"}, r.Tokens())

	// A bound wildcard creates the bound uuid rather than a fresh one.
	e, err := r.Resolve(context.Background(), ir.KindAsset, ir.Wildcard("?p"), true)
	require.NoError(t, err)
	assert.Equal(t, storedA, e.UUID)
}

func TestResolver_RollbackNests(t *testing.T) {
	r := NewResolver(nil, testutil.NewSequentialUUIDGenerator())
	ctx := context.Background()

	outer := r.mark()
	_, err := r.Resolve(ctx, ir.KindAsset, ir.Wildcard("?p"), true)
	require.NoError(t, err)

	inner := r.mark()
	_, err = r.Resolve(ctx, ir.KindAsset, ir.Wildcard("?q"), true)
	require.NoError(t, err)
	r.release(inner)

	inner = r.mark()
	_, err = r.Resolve(ctx, ir.KindAsset, ir.Wildcard("?r"), true)
	require.NoError(t, err)
	r.rollback(inner)

	assert.Equal(t, []string{"?p", "?q"}, r.Tokens())

	r.rollback(outer)
	assert.Empty(t, r.Tokens())
	_, ok := r.Instance(uuid1)
	assert.False(t, ok)
	assert.Empty(t, r.journal)
	assert.Zero(t, r.depth)
}
