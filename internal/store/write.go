package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/factset/internal/ir"
)

// Tx is the write side of the store, valid only inside RunInTransaction.
type Tx struct {
	q querier
}

var _ ir.Tx = (*Tx)(nil)

func (tx *Tx) FindByUUID(ctx context.Context, kind ir.Kind, uuid string) (*ir.Entity, error) {
	return findByUUID(ctx, tx.q, kind, uuid)
}

func (tx *Tx) FactsOf(ctx context.Context, subjectID int64, predicate string) ([]ir.Fact, error) {
	return selectFacts(ctx, tx.q, "f.subject_id = ? AND f.predicate = ?", subjectID, predicate)
}

// SaveOwner inserts the owner when its ID is 0 and updates it otherwise.
// The diagnostics are stored as canonical JSON.
func (tx *Tx) SaveOwner(ctx context.Context, owner *ir.OwnerRecord) error {
	errorsJSON, err := marshalErrors(owner.Errors)
	if err != nil {
		return fmt.Errorf("save owner: %w", err)
	}
	var defaultGroup any
	if owner.DefaultGroup.Persisted() {
		defaultGroup = owner.DefaultGroup.ID
	}

	if owner.ID == 0 {
		res, err := tx.q.ExecContext(ctx, `
			INSERT INTO owners (label, default_group_id, errors)
			VALUES (?, ?, ?)
		`, owner.Label, defaultGroup, errorsJSON)
		if err != nil {
			return fmt.Errorf("save owner: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("save owner: last insert id: %w", err)
		}
		owner.ID = id
	} else {
		_, err := tx.q.ExecContext(ctx, `
			UPDATE owners SET label = ?, default_group_id = ?, errors = ?
			WHERE id = ?
		`, owner.Label, defaultGroup, errorsJSON, owner.ID)
		if err != nil {
			return fmt.Errorf("save owner %d: %w", owner.ID, err)
		}
	}

	owner.MarkSaved()
	return nil
}

// ImportEntities inserts unsaved entities and assigns their IDs.
// A uuid that already exists violates the UNIQUE constraint.
func (tx *Tx) ImportEntities(ctx context.Context, kind ir.Kind, entities []*ir.Entity) error {
	for _, e := range entities {
		var (
			res sql.Result
			err error
		)
		switch kind {
		case ir.KindAsset:
			res, err = tx.q.ExecContext(ctx, `INSERT INTO assets (uuid) VALUES (?)`, e.UUID)
		case ir.KindGroup:
			var ownerID any
			if e.OwnerID != nil {
				ownerID = *e.OwnerID
			}
			res, err = tx.q.ExecContext(ctx, `
				INSERT INTO asset_groups (uuid, name, owner_id)
				VALUES (?, ?, ?)
			`, e.UUID, e.Name, ownerID)
		default:
			return fmt.Errorf("import entities: unknown kind %q", kind)
		}
		if err != nil {
			return fmt.Errorf("import %s %s: %w", kind, e.UUID, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("import %s %s: last insert id: %w", kind, e.UUID, err)
		}
		e.ID = id
		e.Kind = kind
	}
	return nil
}

func tableOf(kind ir.Kind) (string, error) {
	switch kind {
	case ir.KindAsset:
		return "assets", nil
	case ir.KindGroup:
		return "asset_groups", nil
	}
	return "", fmt.Errorf("unknown kind %q", kind)
}

// DeleteEntities deletes entity rows. Facts and memberships pointing at
// them must already be gone.
func (tx *Tx) DeleteEntities(ctx context.Context, kind ir.Kind, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	table, err := tableOf(kind)
	if err != nil {
		return fmt.Errorf("delete entities: %w", err)
	}
	in, args := inClause(ids)
	if _, err := tx.q.ExecContext(ctx, "DELETE FROM "+table+" WHERE id IN "+in, args...); err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	return nil
}

// DetachGroups clears the owner of the given groups.
func (tx *Tx) DetachGroups(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	in, args := inClause(ids)
	if _, err := tx.q.ExecContext(ctx, "UPDATE asset_groups SET owner_id = NULL WHERE id IN "+in, args...); err != nil {
		return fmt.Errorf("detach groups: %w", err)
	}
	return nil
}

// ImportFacts inserts facts and assigns their IDs. Subjects and entity
// objects must be persisted.
func (tx *Tx) ImportFacts(ctx context.Context, facts []*ir.Fact) error {
	for _, f := range facts {
		if !f.Subject.Persisted() {
			return fmt.Errorf("import facts: subject of %q is not saved", f.Predicate)
		}
		var object, objectID any
		if f.Object.IsEntity() {
			if !f.Object.Entity.Persisted() {
				return fmt.Errorf("import facts: object of %q is not saved", f.Predicate)
			}
			objectID = f.Object.Entity.ID
		} else {
			object = f.Object.Literal
		}

		res, err := tx.q.ExecContext(ctx, `
			INSERT INTO facts (subject_id, predicate, object, object_id, is_remote)
			VALUES (?, ?, ?, ?, ?)
		`, f.Subject.ID, f.Predicate, object, objectID, boolToInt(f.Remote))
		if err != nil {
			return fmt.Errorf("import facts: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("import facts: last insert id: %w", err)
		}
		f.ID = id
	}
	return nil
}

func (tx *Tx) FindFacts(ctx context.Context, q ir.FactQuery) ([]ir.Fact, error) {
	if q.ObjectID != 0 {
		return selectFacts(ctx, tx.q, "f.subject_id = ? AND f.predicate = ? AND f.object_id = ?",
			q.SubjectID, q.Predicate, q.ObjectID)
	}
	return selectFacts(ctx, tx.q, "f.subject_id = ? AND f.predicate = ? AND f.object_id IS NULL AND f.object = ?",
		q.SubjectID, q.Predicate, q.Object)
}

func (tx *Tx) FactsByID(ctx context.Context, ids []int64) ([]ir.Fact, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	in, args := inClause(ids)
	return selectFacts(ctx, tx.q, "f.id IN "+in, args...)
}

// FactsOfEntities returns facts whose subject or object is one of ids.
func (tx *Tx) FactsOfEntities(ctx context.Context, ids []int64) ([]ir.Fact, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	in, args := inClause(ids)
	return selectFacts(ctx, tx.q, "f.subject_id IN "+in+" OR f.object_id IN "+in, append(args, args...)...)
}

func (tx *Tx) DeleteFacts(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	in, args := inClause(ids)
	if _, err := tx.q.ExecContext(ctx, "DELETE FROM facts WHERE id IN "+in, args...); err != nil {
		return fmt.Errorf("delete facts: %w", err)
	}
	return nil
}

// UpdateFactFlag sets a boolean fact column. Only ir.FlagRemote exists.
func (tx *Tx) UpdateFactFlag(ctx context.Context, ids []int64, flag string, value bool) error {
	if flag != ir.FlagRemote {
		return fmt.Errorf("update fact flag: unknown flag %q", flag)
	}
	if len(ids) == 0 {
		return nil
	}
	in, args := inClause(ids)
	args = append([]any{boolToInt(value)}, args...)
	if _, err := tx.q.ExecContext(ctx, "UPDATE facts SET is_remote = ? WHERE id IN "+in, args...); err != nil {
		return fmt.Errorf("update fact flag: %w", err)
	}
	return nil
}

func (tx *Tx) ImportMemberships(ctx context.Context, edges []*ir.Membership) error {
	for _, m := range edges {
		if !m.Group.Persisted() || !m.Asset.Persisted() {
			return fmt.Errorf("import memberships: edge references an unsaved entity")
		}
		res, err := tx.q.ExecContext(ctx, `
			INSERT INTO asset_groups_assets (asset_group_id, asset_id)
			VALUES (?, ?)
		`, m.Group.ID, m.Asset.ID)
		if err != nil {
			return fmt.Errorf("import memberships: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("import memberships: last insert id: %w", err)
		}
		m.ID = id
	}
	return nil
}

// FindMembership returns the edge between groupID and assetID, or nil.
func (tx *Tx) FindMembership(ctx context.Context, groupID, assetID int64) (*ir.Membership, error) {
	edges, err := selectMemberships(ctx, tx.q, "m.asset_group_id = ? AND m.asset_id = ?", groupID, assetID)
	if err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return nil, nil
	}
	return &edges[0], nil
}

func (tx *Tx) MembershipsOfEntities(ctx context.Context, ids []int64) ([]ir.Membership, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	in, args := inClause(ids)
	return selectMemberships(ctx, tx.q, "m.asset_id IN "+in, args...)
}

func (tx *Tx) DeleteMemberships(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	in, args := inClause(ids)
	if _, err := tx.q.ExecContext(ctx, "DELETE FROM asset_groups_assets WHERE id IN "+in, args...); err != nil {
		return fmt.Errorf("delete memberships: %w", err)
	}
	return nil
}

// AppendOperations writes the audit log rows and assigns their IDs.
func (tx *Tx) AppendOperations(ctx context.Context, ops []ir.Operation) error {
	for i := range ops {
		op := &ops[i]
		res, err := tx.q.ExecContext(ctx, `
			INSERT INTO operations
			(owner_id, seq, action_type, subject_uuid, predicate, object, object_uuid)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			op.OwnerID,
			op.Seq,
			string(op.ActionType),
			op.SubjectUUID,
			op.Predicate,
			op.Object,
			op.ObjectUUID,
		)
		if err != nil {
			return fmt.Errorf("append operation %d: %w", op.Seq, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("append operation %d: last insert id: %w", op.Seq, err)
		}
		op.ID = id
	}
	return nil
}
