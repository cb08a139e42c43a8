package changeset

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/factset/internal/disjoint"
	"github.com/roach88/factset/internal/ir"
)

// Hook runs inside the commit transaction, after the owner record has a
// store identity and before any staged work is realized. A hook may append
// diagnostics with cs.SetErrors (the commit then rolls back) or mutate the
// owner (it is re-saved before the transaction ends). A returned error
// rolls the commit back.
type Hook func(ctx context.Context, tx ir.Tx, cs *ChangeSet, owner *ir.OwnerRecord) error

// Applier commits changesets to a store.
//
// Thread-safety: an Applier holds no per-commit state and may be shared;
// each ChangeSet must still have a single writer.
type Applier struct {
	store   ir.Store
	logger  *slog.Logger
	metrics *Metrics
	hooks   []Hook
	noOps   bool
}

// ApplierOption configures an Applier.
type ApplierOption func(*Applier)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) ApplierOption {
	return func(a *Applier) { a.logger = l }
}

// WithMetrics records commit results and operation counts.
func WithMetrics(m *Metrics) ApplierOption {
	return func(a *Applier) { a.metrics = m }
}

// WithHook adds a hook. Hooks run in registration order.
func WithHook(h Hook) ApplierOption {
	return func(a *Applier) { a.hooks = append(a.hooks, h) }
}

// WithoutOperations realizes staged work without writing the audit log.
func WithoutOperations() ApplierOption {
	return func(a *Applier) { a.noOps = true }
}

// NewApplier creates an applier over store.
func NewApplier(store ir.Store, opts ...ApplierOption) *Applier {
	a := &Applier{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Commit realizes cs against the store in one transaction and returns the
// operations written to the audit log.
//
// Order of work: owner record, hooks, remote flag updates, then groups to
// create, entities to create, memberships to add, memberships to remove,
// facts to destroy, entities to destroy, groups to destroy, facts to add.
// The operation list is written in one call, numbered from 1.
//
// If cs carries diagnostics the store is not touched. On any failure the
// transaction rolls back, and cs and owner are restored to their state
// before the call. On success cs is reset.
func (a *Applier) Commit(ctx context.Context, cs *ChangeSet, owner *ir.OwnerRecord) ([]ir.Operation, error) {
	if owner == nil {
		return nil, NewValidationError("", "commit requires an owner record")
	}
	if cs.HasErrors() {
		owner.SetErrors(cs.Errors())
		a.logger.Warn("commit aborted",
			"owner", owner.Label,
			"errors", len(cs.errors),
		)
		a.metrics.observe(ResultAborted, nil)
		return nil, NewApplyAbortedError(cs.errors)
	}

	a.logger.Info("commit starting",
		"owner", owner.Label,
		"facts_add", cs.facts.Len(disjoint.Primary),
		"facts_destroy", cs.facts.Len(disjoint.Opposite),
		"cancelled", cs.cancelled(),
	)

	start := time.Now()
	restore := snapshot(cs, owner)

	var ops []ir.Operation
	err := a.store.RunInTransaction(ctx, func(tx ir.Tx) error {
		var err error
		ops, err = a.realize(ctx, tx, cs, owner)
		return err
	})
	if a.metrics != nil {
		a.metrics.Duration.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		restore()
		if IsApplyAborted(err) {
			owner.SetErrors(cs.Errors())
			a.logger.Warn("commit rolled back", "owner", owner.Label, "error", err)
			a.metrics.observe(ResultAborted, nil)
			return nil, err
		}
		a.logger.Error("commit failed", "owner", owner.Label, "error", err)
		a.metrics.observe(ResultFailed, nil)
		return nil, NewStoreError("commit", err)
	}

	a.logger.Info("commit finished",
		"owner", owner.Label,
		"owner_id", owner.ID,
		"operations", len(ops),
		"duration", time.Since(start),
	)
	a.metrics.observe(ResultCommitted, ops)
	cs.Reset()
	return ops, nil
}

// snapshot captures what a commit mutates in memory and returns a function
// that puts it back.
func snapshot(cs *ChangeSet, owner *ir.OwnerRecord) func() {
	savedOwner := *owner
	savedOwner.Errors = append([]string(nil), owner.Errors...)

	entities := cs.resolver.unsaved()
	saved := make([]ir.Entity, len(entities))
	for i, e := range entities {
		saved[i] = *e
	}
	// Diagnostics appended by hooks are kept so the caller can read them.
	return func() {
		*owner = savedOwner
		for i, e := range entities {
			*e = saved[i]
		}
	}
}

type realizeStep struct {
	name string
	run  func(ctx context.Context, tx ir.Tx, cs *ChangeSet, owner *ir.OwnerRecord) ([]ir.Operation, error)
}

// realizeOrder is the fixed realization order.
var realizeOrder = []realizeStep{
	{"create groups", createGroups},
	{"create entities", createEntities},
	{"add memberships", addMemberships},
	{"remove memberships", removeMemberships},
	{"destroy facts", destroyFacts},
	{"destroy entities", destroyEntities},
	{"destroy groups", destroyGroups},
	{"add facts", addFacts},
}

func (a *Applier) realize(ctx context.Context, tx ir.Tx, cs *ChangeSet, owner *ir.OwnerRecord) ([]ir.Operation, error) {
	if owner.ID == 0 {
		if err := tx.SaveOwner(ctx, owner); err != nil {
			return nil, NewStoreError("save owner", err)
		}
	}

	for _, hook := range a.hooks {
		if err := hook(ctx, tx, cs, owner); err != nil {
			return nil, err
		}
	}

	if len(cs.remoteUpdates) > 0 {
		ids := make([]int64, len(cs.remoteUpdates))
		for i, f := range cs.remoteUpdates {
			ids[i] = f.ID
		}
		if err := tx.UpdateFactFlag(ctx, ids, ir.FlagRemote, true); err != nil {
			return nil, NewStoreError("update remote flag", err)
		}
	}

	var ops []ir.Operation
	for _, s := range realizeOrder {
		stageOps, err := s.run(ctx, tx, cs, owner)
		if err != nil {
			return nil, err
		}
		a.logger.Debug("stage realized", "stage", s.name, "operations", len(stageOps))
		ops = append(ops, stageOps...)
	}

	if a.noOps {
		ops = nil
	}
	for i := range ops {
		ops[i].OwnerID = owner.ID
		ops[i].Seq = int64(i + 1)
	}
	if len(ops) > 0 {
		if err := tx.AppendOperations(ctx, ops); err != nil {
			return nil, NewStoreError("append operations", err)
		}
	}

	if owner.Changed() {
		if err := tx.SaveOwner(ctx, owner); err != nil {
			return nil, NewStoreError("save owner", err)
		}
	}

	if cs.HasErrors() {
		return nil, NewApplyAbortedError(cs.errors)
	}
	return ops, nil
}

func createGroups(ctx context.Context, tx ir.Tx, cs *ChangeSet, owner *ir.OwnerRecord) ([]ir.Operation, error) {
	var (
		fresh []*ir.Entity
		ops   []ir.Operation
	)
	for _, g := range cs.GroupsToCreate() {
		if g.Persisted() {
			continue
		}
		g.Name = ir.GroupNameFor(cs.resolver.WildcardFor(g.UUID))
		if g.Name == "" {
			g.Name = g.UUID
		}
		ownerID := owner.ID
		g.OwnerID = &ownerID
		fresh = append(fresh, g)
		ops = append(ops, ir.Operation{ActionType: ir.ActionCreateGroups, ObjectUUID: g.UUID})
	}
	if len(fresh) == 0 {
		return nil, nil
	}
	if err := tx.ImportEntities(ctx, ir.KindGroup, fresh); err != nil {
		return nil, NewStoreError("import groups", err)
	}
	return ops, nil
}

func createEntities(ctx context.Context, tx ir.Tx, cs *ChangeSet, _ *ir.OwnerRecord) ([]ir.Operation, error) {
	var (
		fresh []*ir.Entity
		ops   []ir.Operation
	)
	for _, e := range cs.EntitiesToCreate() {
		if e.Persisted() {
			continue
		}
		fresh = append(fresh, e)
		ops = append(ops, ir.Operation{ActionType: ir.ActionCreateAssets, ObjectUUID: e.UUID})
	}
	if len(fresh) == 0 {
		return nil, nil
	}
	if err := tx.ImportEntities(ctx, ir.KindAsset, fresh); err != nil {
		return nil, NewStoreError("import assets", err)
	}
	return ops, nil
}

// groupOf returns the edge's group, falling back to the owner's default group.
func groupOf(m ir.Membership, owner *ir.OwnerRecord) (*ir.Entity, error) {
	if m.Group != nil {
		return m.Group, nil
	}
	if owner.DefaultGroup == nil {
		return nil, NewValidationError(m.Asset.UUID, "membership without group and owner has no default group")
	}
	return owner.DefaultGroup, nil
}

func addMemberships(ctx context.Context, tx ir.Tx, cs *ChangeSet, owner *ir.OwnerRecord) ([]ir.Operation, error) {
	var (
		fresh []*ir.Membership
		ops   []ir.Operation
	)
	seen := make(map[[2]int64]bool)
	for _, m := range cs.MembershipsToAdd() {
		group, err := groupOf(m, owner)
		if err != nil {
			return nil, err
		}
		if !group.Persisted() || !m.Asset.Persisted() {
			return nil, NewValidationError(m.Asset.UUID, "membership references an entity that is not saved")
		}
		key := [2]int64{group.ID, m.Asset.ID}
		if seen[key] {
			continue
		}
		seen[key] = true

		existing, err := tx.FindMembership(ctx, group.ID, m.Asset.ID)
		if err != nil {
			return nil, NewStoreError("find membership", err)
		}
		if existing != nil {
			continue
		}
		fresh = append(fresh, &ir.Membership{Group: group, Asset: m.Asset})
		ops = append(ops, ir.Operation{
			ActionType:  ir.ActionAddAssets,
			SubjectUUID: m.Asset.UUID,
			ObjectUUID:  group.UUID,
		})
	}
	if len(fresh) == 0 {
		return nil, nil
	}
	if err := tx.ImportMemberships(ctx, fresh); err != nil {
		return nil, NewStoreError("import memberships", err)
	}
	return ops, nil
}

func removeMemberships(ctx context.Context, tx ir.Tx, cs *ChangeSet, owner *ir.OwnerRecord) ([]ir.Operation, error) {
	var (
		ids []int64
		ops []ir.Operation
	)
	seen := make(map[int64]bool)
	for _, m := range cs.MembershipsToRemove() {
		group, err := groupOf(m, owner)
		if err != nil {
			return nil, err
		}
		if !group.Persisted() || !m.Asset.Persisted() {
			continue
		}
		existing, err := tx.FindMembership(ctx, group.ID, m.Asset.ID)
		if err != nil {
			return nil, NewStoreError("find membership", err)
		}
		if existing == nil || seen[existing.ID] {
			continue
		}
		seen[existing.ID] = true
		ids = append(ids, existing.ID)
		ops = append(ops, ir.Operation{
			ActionType:  ir.ActionRemoveAssets,
			SubjectUUID: m.Asset.UUID,
			ObjectUUID:  group.UUID,
		})
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if err := tx.DeleteMemberships(ctx, ids); err != nil {
		return nil, NewStoreError("delete memberships", err)
	}
	return ops, nil
}

func factOperation(action ir.ActionType, f ir.Fact) ir.Operation {
	op := ir.Operation{ActionType: action, Predicate: f.Predicate}
	if f.Subject != nil {
		op.SubjectUUID = f.Subject.UUID
	}
	if f.Object.IsEntity() {
		op.ObjectUUID = f.Object.Entity.UUID
	} else {
		op.Object = f.Object.Literal
	}
	return op
}

// factQuery builds the by-value lookup for f. ok is false when f names an
// entity that is not stored, so no stored fact can match.
func factQuery(f ir.Fact) (q ir.FactQuery, ok bool) {
	if !f.Subject.Persisted() {
		return q, false
	}
	q = ir.FactQuery{SubjectID: f.Subject.ID, Predicate: f.Predicate}
	if f.Object.IsEntity() {
		if !f.Object.Entity.Persisted() {
			return q, false
		}
		q.ObjectID = f.Object.Entity.ID
	} else {
		q.Object = f.Object.Literal
	}
	return q, true
}

func destroyFacts(ctx context.Context, tx ir.Tx, cs *ChangeSet, _ *ir.OwnerRecord) ([]ir.Operation, error) {
	var (
		matched []ir.Fact
		ids     []int64
	)
	seen := make(map[int64]bool)
	collect := func(facts []ir.Fact) {
		for _, f := range facts {
			if !seen[f.ID] {
				seen[f.ID] = true
				matched = append(matched, f)
				ids = append(ids, f.ID)
			}
		}
	}

	for _, f := range cs.FactsToDestroy() {
		if f.ID != 0 {
			found, err := tx.FactsByID(ctx, []int64{f.ID})
			if err != nil {
				return nil, NewStoreError("find facts", err)
			}
			collect(found)
			continue
		}
		q, ok := factQuery(f)
		if !ok {
			continue
		}
		found, err := tx.FindFacts(ctx, q)
		if err != nil {
			return nil, NewStoreError("find facts", err)
		}
		collect(found)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if err := tx.DeleteFacts(ctx, ids); err != nil {
		return nil, NewStoreError("delete facts", err)
	}

	ops := make([]ir.Operation, len(matched))
	for i, f := range matched {
		ops[i] = factOperation(ir.ActionRemoveFacts, f)
	}
	return ops, nil
}

func destroyEntities(ctx context.Context, tx ir.Tx, cs *ChangeSet, _ *ir.OwnerRecord) ([]ir.Operation, error) {
	var (
		ids []int64
		ops []ir.Operation
	)
	for _, e := range cs.EntitiesToDestroy() {
		if !e.Persisted() {
			continue
		}
		ids = append(ids, e.ID)
		ops = append(ops, ir.Operation{ActionType: ir.ActionDeleteAssets, ObjectUUID: e.UUID})
	}
	if len(ids) == 0 {
		return nil, nil
	}

	facts, err := tx.FactsOfEntities(ctx, ids)
	if err != nil {
		return nil, NewStoreError("facts of entities", err)
	}
	if len(facts) > 0 {
		factIDs := make([]int64, len(facts))
		for i, f := range facts {
			factIDs[i] = f.ID
		}
		if err := tx.DeleteFacts(ctx, factIDs); err != nil {
			return nil, NewStoreError("delete facts", err)
		}
	}

	edges, err := tx.MembershipsOfEntities(ctx, ids)
	if err != nil {
		return nil, NewStoreError("memberships of entities", err)
	}
	if len(edges) > 0 {
		edgeIDs := make([]int64, len(edges))
		for i, m := range edges {
			edgeIDs[i] = m.ID
		}
		if err := tx.DeleteMemberships(ctx, edgeIDs); err != nil {
			return nil, NewStoreError("delete memberships", err)
		}
	}

	if err := tx.DeleteEntities(ctx, ir.KindAsset, ids); err != nil {
		return nil, NewStoreError("delete assets", err)
	}
	return ops, nil
}

func destroyGroups(ctx context.Context, tx ir.Tx, cs *ChangeSet, _ *ir.OwnerRecord) ([]ir.Operation, error) {
	var (
		ids []int64
		ops []ir.Operation
	)
	for _, g := range cs.GroupsToDestroy() {
		if !g.Persisted() {
			continue
		}
		ids = append(ids, g.ID)
		ops = append(ops, ir.Operation{ActionType: ir.ActionDeleteGroups, ObjectUUID: g.UUID})
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if err := tx.DetachGroups(ctx, ids); err != nil {
		return nil, NewStoreError("detach groups", err)
	}
	return ops, nil
}

func addFacts(ctx context.Context, tx ir.Tx, cs *ChangeSet, _ *ir.OwnerRecord) ([]ir.Operation, error) {
	var (
		fresh []*ir.Fact
		ops   []ir.Operation
	)
	for _, f := range cs.FactsToAdd() {
		q, ok := factQuery(f)
		if !ok {
			return nil, NewValidationError(uuidOf(f.Subject), "fact %q references an entity that is not saved", f.Predicate)
		}
		existing, err := tx.FindFacts(ctx, q)
		if err != nil {
			return nil, NewStoreError("find facts", err)
		}
		if containsRemote(existing, f.Remote) {
			continue
		}
		nf := f
		nf.ID = 0
		fresh = append(fresh, &nf)
		ops = append(ops, factOperation(ir.ActionAddFacts, f))
	}
	if len(fresh) == 0 {
		return nil, nil
	}
	if err := tx.ImportFacts(ctx, fresh); err != nil {
		return nil, NewStoreError("import facts", err)
	}
	return ops, nil
}

// containsRemote reports whether facts holds one with the given remote flag.
func containsRemote(facts []ir.Fact, remote bool) bool {
	for _, f := range facts {
		if f.Remote == remote {
			return true
		}
	}
	return false
}

func uuidOf(e *ir.Entity) string {
	if e == nil {
		return ""
	}
	return e.UUID
}
