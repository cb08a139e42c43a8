package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/factset/internal/ir"
)

// Tx is a transaction over a cloned state.
type Tx struct {
	state    memoryState
	failures map[string]error
}

var _ ir.Tx = (*Tx)(nil)

func (tx *Tx) fail(method string) error {
	if err, ok := tx.failures[method]; ok {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

func (tx *Tx) FindByUUID(ctx context.Context, kind ir.Kind, uuid string) (*ir.Entity, error) {
	return tx.state.findByUUID(kind, uuid), nil
}

func (tx *Tx) FactsOf(ctx context.Context, subjectID int64, predicate string) ([]ir.Fact, error) {
	return tx.state.selectFacts(func(f factRow) bool {
		return f.SubjectID == subjectID && f.Predicate == predicate
	}), nil
}

func (tx *Tx) SaveOwner(ctx context.Context, owner *ir.OwnerRecord) error {
	if err := tx.fail("SaveOwner"); err != nil {
		return err
	}
	if owner.ID == 0 {
		owner.ID = tx.state.nextID("owners")
	}
	row := ownerRow{
		ID:     owner.ID,
		Label:  owner.Label,
		Errors: append([]string(nil), owner.Errors...),
	}
	if owner.DefaultGroup != nil {
		row.DefaultGroupID = owner.DefaultGroup.ID
	}
	tx.state.owners[owner.ID] = row
	owner.MarkSaved()
	return nil
}

func (tx *Tx) ImportEntities(ctx context.Context, kind ir.Kind, entities []*ir.Entity) error {
	if err := tx.fail("ImportEntities"); err != nil {
		return err
	}
	for _, e := range entities {
		if _, dup := tx.state.byUUID[kind][e.UUID]; dup {
			return fmt.Errorf("import %s: uuid %s already exists", kind, e.UUID)
		}
	}
	for _, e := range entities {
		e.ID = tx.state.nextID(string(kind))
		e.Kind = kind
		tx.state.entities[kind][e.ID] = cloneEntityRow(entityRow{ID: e.ID, UUID: e.UUID, Name: e.Name, OwnerID: e.OwnerID})
		tx.state.byUUID[kind][e.UUID] = e.ID
	}
	return nil
}

func (tx *Tx) DeleteEntities(ctx context.Context, kind ir.Kind, ids []int64) error {
	if err := tx.fail("DeleteEntities"); err != nil {
		return err
	}
	for _, id := range ids {
		row, ok := tx.state.entities[kind][id]
		if !ok {
			continue
		}
		delete(tx.state.byUUID[kind], row.UUID)
		delete(tx.state.entities[kind], id)
	}
	return nil
}

func (tx *Tx) DetachGroups(ctx context.Context, ids []int64) error {
	if err := tx.fail("DetachGroups"); err != nil {
		return err
	}
	for _, id := range ids {
		if row, ok := tx.state.entities[ir.KindGroup][id]; ok {
			row.OwnerID = nil
			tx.state.entities[ir.KindGroup][id] = row
		}
	}
	return nil
}

func (tx *Tx) ImportFacts(ctx context.Context, facts []*ir.Fact) error {
	if err := tx.fail("ImportFacts"); err != nil {
		return err
	}
	for _, f := range facts {
		if !f.Subject.Persisted() {
			return fmt.Errorf("import facts: subject of %q is not saved", f.Predicate)
		}
		row := factRow{SubjectID: f.Subject.ID, Predicate: f.Predicate, Remote: f.Remote}
		if f.Object.IsEntity() {
			if !f.Object.Entity.Persisted() {
				return fmt.Errorf("import facts: object of %q is not saved", f.Predicate)
			}
			row.ObjectID = f.Object.Entity.ID
		} else {
			row.Object = f.Object.Literal
		}
		row.ID = tx.state.nextID("facts")
		f.ID = row.ID
		tx.state.facts[row.ID] = row
	}
	return nil
}

func (tx *Tx) FindFacts(ctx context.Context, q ir.FactQuery) ([]ir.Fact, error) {
	return tx.state.selectFacts(func(f factRow) bool {
		if f.SubjectID != q.SubjectID || f.Predicate != q.Predicate {
			return false
		}
		if q.ObjectID != 0 {
			return f.ObjectID == q.ObjectID
		}
		return f.ObjectID == 0 && f.Object == q.Object
	}), nil
}

func (tx *Tx) FactsByID(ctx context.Context, ids []int64) ([]ir.Fact, error) {
	want := idSet(ids)
	return tx.state.selectFacts(func(f factRow) bool { return want[f.ID] }), nil
}

// FactsOfEntities returns facts whose subject or object is one of ids.
func (tx *Tx) FactsOfEntities(ctx context.Context, ids []int64) ([]ir.Fact, error) {
	want := idSet(ids)
	return tx.state.selectFacts(func(f factRow) bool {
		return want[f.SubjectID] || (f.ObjectID != 0 && want[f.ObjectID])
	}), nil
}

func (tx *Tx) DeleteFacts(ctx context.Context, ids []int64) error {
	if err := tx.fail("DeleteFacts"); err != nil {
		return err
	}
	for _, id := range ids {
		delete(tx.state.facts, id)
	}
	return nil
}

func (tx *Tx) UpdateFactFlag(ctx context.Context, ids []int64, flag string, value bool) error {
	if err := tx.fail("UpdateFactFlag"); err != nil {
		return err
	}
	if flag != ir.FlagRemote {
		return fmt.Errorf("unknown fact flag %q", flag)
	}
	for _, id := range ids {
		if row, ok := tx.state.facts[id]; ok {
			row.Remote = value
			tx.state.facts[id] = row
		}
	}
	return nil
}

func (tx *Tx) ImportMemberships(ctx context.Context, edges []*ir.Membership) error {
	if err := tx.fail("ImportMemberships"); err != nil {
		return err
	}
	for _, m := range edges {
		if !m.Group.Persisted() || !m.Asset.Persisted() {
			return fmt.Errorf("import memberships: edge references an unsaved entity")
		}
		m.ID = tx.state.nextID("memberships")
		tx.state.memberships[m.ID] = membershipRow{ID: m.ID, GroupID: m.Group.ID, AssetID: m.Asset.ID}
	}
	return nil
}

func (tx *Tx) FindMembership(ctx context.Context, groupID, assetID int64) (*ir.Membership, error) {
	for _, row := range tx.state.memberships {
		if row.GroupID == groupID && row.AssetID == assetID {
			return tx.state.toMembership(row), nil
		}
	}
	return nil, nil
}

// MembershipsOfEntities returns the edges of the given assets.
func (tx *Tx) MembershipsOfEntities(ctx context.Context, ids []int64) ([]ir.Membership, error) {
	want := idSet(ids)
	var rows []membershipRow
	for _, row := range tx.state.memberships {
		if want[row.AssetID] {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	out := make([]ir.Membership, len(rows))
	for i, row := range rows {
		out[i] = *tx.state.toMembership(row)
	}
	return out, nil
}

func (tx *Tx) DeleteMemberships(ctx context.Context, ids []int64) error {
	if err := tx.fail("DeleteMemberships"); err != nil {
		return err
	}
	for _, id := range ids {
		delete(tx.state.memberships, id)
	}
	return nil
}

func (tx *Tx) AppendOperations(ctx context.Context, ops []ir.Operation) error {
	if err := tx.fail("AppendOperations"); err != nil {
		return err
	}
	for i := range ops {
		ops[i].ID = tx.state.nextID("operations")
		tx.state.operations = append(tx.state.operations, ops[i])
	}
	return nil
}

func (s memoryState) toMembership(row membershipRow) *ir.Membership {
	return &ir.Membership{
		ID:    row.ID,
		Group: s.entity(ir.KindGroup, row.GroupID),
		Asset: s.entity(ir.KindAsset, row.AssetID),
	}
}

func idSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
