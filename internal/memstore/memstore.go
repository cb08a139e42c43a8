// Package memstore is an in-memory implementation of the changeset store
// collaborator. Each transaction works on a clone of the state, which
// replaces the live state only when the transaction function succeeds.
//
// It backs tests, scenario runs and dry runs of the CLI.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/factset/internal/ir"
)

type entityRow struct {
	ID      int64
	UUID    string
	Name    string
	OwnerID *int64
}

type factRow struct {
	ID        int64
	SubjectID int64
	Predicate string
	Object    string
	ObjectID  int64
	Remote    bool
}

type membershipRow struct {
	ID      int64
	GroupID int64
	AssetID int64
}

type ownerRow struct {
	ID             int64
	Label          string
	DefaultGroupID int64
	Errors         []string
}

type memoryState struct {
	entities    map[ir.Kind]map[int64]entityRow
	byUUID      map[ir.Kind]map[string]int64
	facts       map[int64]factRow
	memberships map[int64]membershipRow
	owners      map[int64]ownerRow
	operations  []ir.Operation
	seq         map[string]int64
}

func newMemoryState() memoryState {
	s := memoryState{
		entities:    make(map[ir.Kind]map[int64]entityRow),
		byUUID:      make(map[ir.Kind]map[string]int64),
		facts:       make(map[int64]factRow),
		memberships: make(map[int64]membershipRow),
		owners:      make(map[int64]ownerRow),
		seq:         make(map[string]int64),
	}
	for kind := range ir.ValidKinds {
		s.entities[kind] = make(map[int64]entityRow)
		s.byUUID[kind] = make(map[string]int64)
	}
	return s
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for kind, rows := range s.entities {
		for id, row := range rows {
			cloned.entities[kind][id] = cloneEntityRow(row)
		}
	}
	for kind, idx := range s.byUUID {
		for uuid, id := range idx {
			cloned.byUUID[kind][uuid] = id
		}
	}
	for id, row := range s.facts {
		cloned.facts[id] = row
	}
	for id, row := range s.memberships {
		cloned.memberships[id] = row
	}
	for id, row := range s.owners {
		row.Errors = append([]string(nil), row.Errors...)
		cloned.owners[id] = row
	}
	cloned.operations = append([]ir.Operation(nil), s.operations...)
	for table, n := range s.seq {
		cloned.seq[table] = n
	}
	return cloned
}

func cloneEntityRow(r entityRow) entityRow {
	if r.OwnerID != nil {
		id := *r.OwnerID
		r.OwnerID = &id
	}
	return r
}

func (s memoryState) nextID(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

var _ ir.Store = (*Store)(nil)

// Store is an in-memory transactional store.
//
// Thread-safety: safe for concurrent use. Transactions are serialized.
type Store struct {
	mu       sync.RWMutex
	state    memoryState
	failures map[string]error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		state:    newMemoryState(),
		failures: make(map[string]error),
	}
}

// FailOn makes the named Tx method (e.g. "ImportFacts") return err.
// A nil err clears the failure.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

// RunInTransaction runs fn against a clone of the state and publishes the
// clone only if fn succeeds.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx ir.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{state: s.state.clone(), failures: s.failures}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// FindByUUID returns the stored entity, or nil when there is none.
func (s *Store) FindByUUID(ctx context.Context, kind ir.Kind, uuid string) (*ir.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.findByUUID(kind, uuid), nil
}

// FactsOf returns the facts of subjectID with predicate, oldest first.
func (s *Store) FactsOf(ctx context.Context, subjectID int64, predicate string) ([]ir.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.selectFacts(func(f factRow) bool {
		return f.SubjectID == subjectID && f.Predicate == predicate
	}), nil
}

// Operations returns the audit log, optionally for one owner.
func (s *Store) Operations(ctx context.Context, ownerID int64) ([]ir.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ir.Operation
	for _, op := range s.state.operations {
		if ownerID == 0 || op.OwnerID == ownerID {
			out = append(out, op)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OwnerID != out[j].OwnerID {
			return out[i].OwnerID < out[j].OwnerID
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

// Owner returns a stored owner record.
func (s *Store) Owner(ctx context.Context, id int64) (*ir.OwnerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.state.owners[id]
	if !ok {
		return nil, fmt.Errorf("owner %d not found", id)
	}
	owner := &ir.OwnerRecord{
		ID:     row.ID,
		Label:  row.Label,
		Errors: append([]string(nil), row.Errors...),
	}
	if row.DefaultGroupID != 0 {
		owner.DefaultGroup = s.state.entity(ir.KindGroup, row.DefaultGroupID)
	}
	return owner, nil
}

// Count returns the number of rows in one of the tables the SQLite store
// defines: assets, asset_groups, facts, asset_groups_assets, owners or
// operations.
func (s *Store) Count(ctx context.Context, table string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch table {
	case "assets":
		return len(s.state.entities[ir.KindAsset]), nil
	case "asset_groups":
		return len(s.state.entities[ir.KindGroup]), nil
	case "facts":
		return len(s.state.facts), nil
	case "asset_groups_assets":
		return len(s.state.memberships), nil
	case "owners":
		return len(s.state.owners), nil
	case "operations":
		return len(s.state.operations), nil
	}
	return 0, fmt.Errorf("count: unknown table %q", table)
}

func (s memoryState) entity(kind ir.Kind, id int64) *ir.Entity {
	row, ok := s.entities[kind][id]
	if !ok {
		return nil
	}
	row = cloneEntityRow(row)
	return &ir.Entity{ID: row.ID, UUID: row.UUID, Kind: kind, Name: row.Name, OwnerID: row.OwnerID}
}

func (s memoryState) findByUUID(kind ir.Kind, uuid string) *ir.Entity {
	id, ok := s.byUUID[kind][uuid]
	if !ok {
		return nil
	}
	return s.entity(kind, id)
}

func (s memoryState) toFact(row factRow) ir.Fact {
	f := ir.Fact{
		ID:        row.ID,
		Subject:   s.entity(ir.KindAsset, row.SubjectID),
		Predicate: row.Predicate,
		Remote:    row.Remote,
	}
	if row.ObjectID != 0 {
		f.Object = ir.EntityObject(s.entity(ir.KindAsset, row.ObjectID))
	} else {
		f.Object = ir.LiteralObject(row.Object)
	}
	return f
}

// selectFacts returns matching facts ordered by ID.
func (s memoryState) selectFacts(match func(factRow) bool) []ir.Fact {
	var rows []factRow
	for _, row := range s.facts {
		if match(row) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	out := make([]ir.Fact, len(rows))
	for i, row := range rows {
		out[i] = s.toFact(row)
	}
	return out
}
