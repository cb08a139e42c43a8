package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/factset/internal/ir"
)

// querier is satisfied by both *sql.DB and *sql.Tx, so the same reads serve
// the store outside a transaction and Tx inside one.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// FindByUUID returns the stored entity, or nil when there is none.
func (s *Store) FindByUUID(ctx context.Context, kind ir.Kind, uuid string) (*ir.Entity, error) {
	return findByUUID(ctx, s.db, kind, uuid)
}

// FactsOf returns the facts of subjectID with predicate, oldest first.
func (s *Store) FactsOf(ctx context.Context, subjectID int64, predicate string) ([]ir.Fact, error) {
	return selectFacts(ctx, s.db, "f.subject_id = ? AND f.predicate = ?", subjectID, predicate)
}

func findByUUID(ctx context.Context, q querier, kind ir.Kind, uuid string) (*ir.Entity, error) {
	var row *sql.Row
	switch kind {
	case ir.KindAsset:
		row = q.QueryRowContext(ctx, `SELECT id, uuid, '', NULL FROM assets WHERE uuid = ?`, uuid)
	case ir.KindGroup:
		row = q.QueryRowContext(ctx, `SELECT id, uuid, name, owner_id FROM asset_groups WHERE uuid = ?`, uuid)
	default:
		return nil, fmt.Errorf("find by uuid: unknown kind %q", kind)
	}

	e, err := scanEntity(row, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find %s %s: %w", kind, uuid, err)
	}
	return e, nil
}

func scanEntity(row scanner, kind ir.Kind) (*ir.Entity, error) {
	e := &ir.Entity{Kind: kind}
	var ownerID sql.NullInt64
	if err := row.Scan(&e.ID, &e.UUID, &e.Name, &ownerID); err != nil {
		return nil, err
	}
	if ownerID.Valid {
		id := ownerID.Int64
		e.OwnerID = &id
	}
	return e, nil
}

const factColumns = `
	SELECT f.id, f.predicate, f.object, f.is_remote,
	       s.id, s.uuid, o.id, o.uuid
	FROM facts f
	JOIN assets s ON s.id = f.subject_id
	LEFT JOIN assets o ON o.id = f.object_id
`

// selectFacts returns the facts matching where, ordered by id.
func selectFacts(ctx context.Context, q querier, where string, args ...any) ([]ir.Fact, error) {
	rows, err := q.QueryContext(ctx, factColumns+"WHERE "+where+" ORDER BY f.id ASC", args...)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var facts []ir.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facts: %w", err)
	}
	return facts, nil
}

func scanFact(row scanner) (ir.Fact, error) {
	var (
		f       ir.Fact
		object  sql.NullString
		objID   sql.NullInt64
		objUUID sql.NullString
	)
	subject := &ir.Entity{Kind: ir.KindAsset}
	if err := row.Scan(&f.ID, &f.Predicate, &object, &f.Remote, &subject.ID, &subject.UUID, &objID, &objUUID); err != nil {
		return ir.Fact{}, fmt.Errorf("scan fact: %w", err)
	}
	f.Subject = subject
	if objID.Valid {
		f.Object = ir.EntityObject(&ir.Entity{ID: objID.Int64, UUID: objUUID.String, Kind: ir.KindAsset})
	} else {
		f.Object = ir.LiteralObject(object.String)
	}
	return f, nil
}

const membershipColumns = `
	SELECT m.id, g.id, g.uuid, g.name, g.owner_id, a.id, a.uuid
	FROM asset_groups_assets m
	JOIN asset_groups g ON g.id = m.asset_group_id
	JOIN assets a ON a.id = m.asset_id
`

func selectMemberships(ctx context.Context, q querier, where string, args ...any) ([]ir.Membership, error) {
	rows, err := q.QueryContext(ctx, membershipColumns+"WHERE "+where+" ORDER BY m.id ASC", args...)
	if err != nil {
		return nil, fmt.Errorf("query memberships: %w", err)
	}
	defer rows.Close()

	var out []ir.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships: %w", err)
	}
	return out, nil
}

func scanMembership(row scanner) (ir.Membership, error) {
	var (
		m       ir.Membership
		ownerID sql.NullInt64
	)
	group := &ir.Entity{Kind: ir.KindGroup}
	asset := &ir.Entity{Kind: ir.KindAsset}
	if err := row.Scan(&m.ID, &group.ID, &group.UUID, &group.Name, &ownerID, &asset.ID, &asset.UUID); err != nil {
		return ir.Membership{}, fmt.Errorf("scan membership: %w", err)
	}
	if ownerID.Valid {
		id := ownerID.Int64
		group.OwnerID = &id
	}
	m.Group, m.Asset = group, asset
	return m, nil
}

// Operations returns the audit log, optionally for one owner (0 means all).
// Ordered by owner_id, seq, id.
func (s *Store) Operations(ctx context.Context, ownerID int64) ([]ir.Operation, error) {
	query := `
		SELECT id, owner_id, seq, action_type, subject_uuid, predicate, object, object_uuid
		FROM operations
	`
	var args []any
	if ownerID != 0 {
		query += "WHERE owner_id = ? "
		args = append(args, ownerID)
	}
	query += "ORDER BY owner_id ASC, seq ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	var ops []ir.Operation
	for rows.Next() {
		var (
			op     ir.Operation
			action string
		)
		if err := rows.Scan(&op.ID, &op.OwnerID, &op.Seq, &action, &op.SubjectUUID, &op.Predicate, &op.Object, &op.ObjectUUID); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		op.ActionType = ir.ActionType(action)
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return ops, nil
}

// Owner retrieves an owner record by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) Owner(ctx context.Context, id int64) (*ir.OwnerRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT o.id, o.label, o.errors, g.id, g.uuid, g.name, g.owner_id
		FROM owners o
		LEFT JOIN asset_groups g ON g.id = o.default_group_id
		WHERE o.id = ?
	`, id)

	var (
		owner      ir.OwnerRecord
		errorsJSON string
		groupID    sql.NullInt64
		groupUUID  sql.NullString
		groupName  sql.NullString
		groupOwner sql.NullInt64
	)
	if err := row.Scan(&owner.ID, &owner.Label, &errorsJSON, &groupID, &groupUUID, &groupName, &groupOwner); err != nil {
		return nil, fmt.Errorf("read owner %d: %w", id, err)
	}

	errs, err := unmarshalErrors(errorsJSON)
	if err != nil {
		return nil, fmt.Errorf("read owner %d: %w", id, err)
	}
	owner.Errors = errs

	if groupID.Valid {
		g := &ir.Entity{ID: groupID.Int64, UUID: groupUUID.String, Kind: ir.KindGroup, Name: groupName.String}
		if groupOwner.Valid {
			oid := groupOwner.Int64
			g.OwnerID = &oid
		}
		owner.DefaultGroup = g
	}
	return &owner, nil
}

// Count returns the number of rows in one of the store's tables.
func (s *Store) Count(ctx context.Context, table string) (int, error) {
	switch table {
	case "assets", "asset_groups", "facts", "asset_groups_assets", "owners", "operations":
	default:
		return 0, fmt.Errorf("count: unknown table %q", table)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
