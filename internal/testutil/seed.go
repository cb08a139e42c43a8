package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/factset/internal/ir"
)

// SeedAssets stores one asset per uuid and returns the persisted entities.
func SeedAssets(t testing.TB, store ir.Store, uuids ...string) []*ir.Entity {
	t.Helper()
	return seedEntities(t, store, ir.KindAsset, uuids)
}

// SeedGroup stores one named, unowned asset group.
func SeedGroup(t testing.TB, store ir.Store, uuid, name string) *ir.Entity {
	t.Helper()
	g := ir.NewEntity(ir.KindGroup, uuid)
	g.Name = name
	err := store.RunInTransaction(context.Background(), func(tx ir.Tx) error {
		return tx.ImportEntities(context.Background(), ir.KindGroup, []*ir.Entity{g})
	})
	require.NoError(t, err, "seed group %s", uuid)
	return g
}

func seedEntities(t testing.TB, store ir.Store, kind ir.Kind, uuids []string) []*ir.Entity {
	t.Helper()
	entities := make([]*ir.Entity, len(uuids))
	for i, u := range uuids {
		entities[i] = ir.NewEntity(kind, u)
	}
	err := store.RunInTransaction(context.Background(), func(tx ir.Tx) error {
		return tx.ImportEntities(context.Background(), kind, entities)
	})
	require.NoError(t, err, "seed %s", kind)
	return entities
}

// SeedFact stores a fact with a literal object.
func SeedFact(t testing.TB, store ir.Store, subject *ir.Entity, predicate, value string) ir.Fact {
	t.Helper()
	return seedFact(t, store, &ir.Fact{Subject: subject, Predicate: predicate, Object: ir.LiteralObject(value)})
}

// SeedRelation stores a fact whose object is another entity.
func SeedRelation(t testing.TB, store ir.Store, subject *ir.Entity, predicate string, object *ir.Entity) ir.Fact {
	t.Helper()
	return seedFact(t, store, &ir.Fact{Subject: subject, Predicate: predicate, Object: ir.EntityObject(object)})
}

func seedFact(t testing.TB, store ir.Store, f *ir.Fact) ir.Fact {
	t.Helper()
	err := store.RunInTransaction(context.Background(), func(tx ir.Tx) error {
		return tx.ImportFacts(context.Background(), []*ir.Fact{f})
	})
	require.NoError(t, err, "seed fact %s", f.Predicate)
	return *f
}

// SeedMembership links asset to group.
func SeedMembership(t testing.TB, store ir.Store, group, asset *ir.Entity) ir.Membership {
	t.Helper()
	m := &ir.Membership{Group: group, Asset: asset}
	err := store.RunInTransaction(context.Background(), func(tx ir.Tx) error {
		return tx.ImportMemberships(context.Background(), []*ir.Membership{m})
	})
	require.NoError(t, err, "seed membership")
	return *m
}

// SeedOwner stores an owner record, optionally with a default group.
func SeedOwner(t testing.TB, store ir.Store, label string, defaultGroup *ir.Entity) *ir.OwnerRecord {
	t.Helper()
	owner := &ir.OwnerRecord{Label: label, DefaultGroup: defaultGroup}
	err := store.RunInTransaction(context.Background(), func(tx ir.Tx) error {
		return tx.SaveOwner(context.Background(), owner)
	})
	require.NoError(t, err, "seed owner %s", label)
	return owner
}

// Counter reports table sizes. Both stores implement it.
type Counter interface {
	Count(ctx context.Context, table string) (int, error)
}

// CountRows returns the number of rows in table.
func CountRows(t testing.TB, store Counter, table string) int {
	t.Helper()
	n, err := store.Count(context.Background(), table)
	require.NoError(t, err, "count %s", table)
	return n
}
