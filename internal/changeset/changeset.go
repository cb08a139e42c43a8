package changeset

import (
	"context"

	"github.com/roach88/factset/internal/disjoint"
	"github.com/roach88/factset/internal/ir"
)

// ChangeSet is an in-memory batch of staged graph mutations.
//
// Each pair of opposite intents lives in one disjoint.Pair, so staging an
// addition and a removal of the same thing leaves nothing behind. A failed
// staging call leaves the changeset as it was before the call.
//
// Thread-safety: none. One logical writer per changeset.
type ChangeSet struct {
	resolver *Resolver

	facts       disjoint.Pair[ir.Fact]        // add / destroy
	entities    disjoint.Pair[*ir.Entity]     // create / destroy
	groups      disjoint.Pair[*ir.Entity]     // create / destroy
	memberships disjoint.Pair[ir.Membership] // add / remove

	errors        []string
	remoteUpdates []ir.Fact
}

// Option configures a ChangeSet.
type Option func(*config)

type config struct {
	gen ir.UUIDGenerator
}

// WithUUIDGenerator sets the generator used for new wildcards.
// Tests pass a deterministic one.
func WithUUIDGenerator(gen ir.UUIDGenerator) Option {
	return func(c *config) {
		c.gen = gen
	}
}

// New returns an empty changeset reading existing entities from reader.
// reader may be nil.
func New(reader ir.Reader, opts ...Option) *ChangeSet {
	c := config{gen: ir.RandomUUIDGenerator{}}
	for _, opt := range opts {
		opt(&c)
	}
	cs := &ChangeSet{resolver: NewResolver(reader, c.gen)}
	cs.Reset()
	return cs
}

// Reset empties every staged list, the wildcard table and the instance cache.
func (cs *ChangeSet) Reset() {
	cs.resolver = NewResolver(cs.resolver.reader, cs.resolver.gen)
	cs.facts = disjoint.New(ir.FactKey)
	cs.entities = disjoint.New(ir.EntityKey)
	cs.groups = disjoint.New(ir.EntityKey)
	cs.memberships = disjoint.New(ir.MembershipKey)
	cs.errors = nil
	cs.remoteUpdates = nil
}

// Resolver exposes the wildcard table and instance cache.
func (cs *ChangeSet) Resolver() *Resolver {
	return cs.resolver
}

// stage runs fn and restores the previous state if it fails.
func (cs *ChangeSet) stage(fn func() error) error {
	mark := cs.resolver.mark()
	facts, entities, groups, memberships := cs.facts, cs.entities, cs.groups, cs.memberships
	nerrs, nremote := len(cs.errors), len(cs.remoteUpdates)

	if err := fn(); err != nil {
		cs.resolver.rollback(mark)
		cs.facts, cs.entities, cs.groups, cs.memberships = facts, entities, groups, memberships
		cs.errors = cs.errors[:nerrs]
		cs.remoteUpdates = cs.remoteUpdates[:nremote]
		return err
	}
	cs.resolver.release(mark)
	return nil
}

// FactOption adjusts how Add, RemoveWhere and the remote helpers read their object.
type FactOption func(*factOptions)

type factOptions struct {
	literal bool
	remote  bool
}

// AsLiteral forces the object to be stored as a literal string, even when
// it is shaped like a uuid or wildcard.
func AsLiteral() FactOption {
	return func(o *factOptions) { o.literal = true }
}

// AsRemote marks the fact as coming from a remote source.
func AsRemote() FactOption {
	return func(o *factOptions) { o.remote = true }
}

func (cs *ChangeSet) buildFact(ctx context.Context, subject ir.EntityRef, predicate string, object ir.EntityRef, opts []FactOption) (ir.Fact, error) {
	var o factOptions
	for _, opt := range opts {
		opt(&o)
	}
	if predicate == "" {
		return ir.Fact{}, NewValidationError(subject.String(), "empty predicate")
	}

	subj, err := cs.resolver.Resolve(ctx, ir.KindAsset, subject, false)
	if err != nil {
		return ir.Fact{}, err
	}

	fact := ir.Fact{Subject: subj, Predicate: predicate, Remote: o.remote}
	if o.literal || object.Kind() == ir.RefLiteral {
		fact.Object = ir.LiteralObject(object.AsLiteral().Text())
		return fact, nil
	}
	obj, err := cs.resolver.Resolve(ctx, ir.KindAsset, object, false)
	if err != nil {
		return ir.Fact{}, err
	}
	fact.Object = ir.EntityObject(obj)
	return fact, nil
}

// Add stages the fact (subject, predicate, object). Subject and object
// references must already resolve; a uuid-shaped object is a reference
// unless AsLiteral is given.
func (cs *ChangeSet) Add(ctx context.Context, subject ir.EntityRef, predicate string, object ir.EntityRef, opts ...FactOption) error {
	return cs.stage(func() error {
		fact, err := cs.buildFact(ctx, subject, predicate, object, opts)
		if err != nil {
			return err
		}
		cs.facts, _ = cs.facts.Insert(disjoint.Primary, fact)
		return nil
	})
}

// RemoveWhere stages removal of every stored fact equal to (subject, predicate, object).
func (cs *ChangeSet) RemoveWhere(ctx context.Context, subject ir.EntityRef, predicate string, object ir.EntityRef, opts ...FactOption) error {
	return cs.stage(func() error {
		fact, err := cs.buildFact(ctx, subject, predicate, object, opts)
		if err != nil {
			return err
		}
		cs.facts, _ = cs.facts.Insert(disjoint.Opposite, fact)
		return nil
	})
}

// Remove stages removal of stored facts by row identity.
func (cs *ChangeSet) Remove(facts ...ir.Fact) error {
	return cs.stage(func() error {
		for _, f := range facts {
			if f.ID == 0 {
				return NewValidationError(f.Predicate, "fact has no store identity")
			}
		}
		cs.facts, _ = cs.facts.InsertAll(disjoint.Opposite, facts)
		return nil
	})
}

func (cs *ChangeSet) stageEntities(ctx context.Context, kind ir.Kind, side disjoint.Side, refs []ir.EntityRef) error {
	create := side == disjoint.Primary
	return cs.stage(func() error {
		pair := cs.pairFor(kind)
		for _, ref := range refs {
			e, err := cs.resolver.Resolve(ctx, kind, ref, create)
			if err != nil {
				return err
			}
			pair, _ = pair.Insert(side, e)
		}
		cs.setPair(kind, pair)
		return nil
	})
}

func (cs *ChangeSet) pairFor(kind ir.Kind) disjoint.Pair[*ir.Entity] {
	if kind == ir.KindGroup {
		return cs.groups
	}
	return cs.entities
}

func (cs *ChangeSet) setPair(kind ir.Kind, p disjoint.Pair[*ir.Entity]) {
	if kind == ir.KindGroup {
		cs.groups = p
	} else {
		cs.entities = p
	}
}

// CreateEntities stages creation of assets. Wildcards and unknown uuids
// allocate new entities; repeated tokens collapse into one creation.
func (cs *ChangeSet) CreateEntities(ctx context.Context, refs []ir.EntityRef) error {
	return cs.stageEntities(ctx, ir.KindAsset, disjoint.Primary, refs)
}

// DeleteEntities stages deletion of existing assets. If any ref does not
// resolve, nothing is staged.
func (cs *ChangeSet) DeleteEntities(ctx context.Context, refs []ir.EntityRef) error {
	return cs.stageEntities(ctx, ir.KindAsset, disjoint.Opposite, refs)
}

// CreateGroups stages creation of asset groups.
func (cs *ChangeSet) CreateGroups(ctx context.Context, refs []ir.EntityRef) error {
	return cs.stageEntities(ctx, ir.KindGroup, disjoint.Primary, refs)
}

// DeleteGroups stages detachment of existing asset groups.
func (cs *ChangeSet) DeleteGroups(ctx context.Context, refs []ir.EntityRef) error {
	return cs.stageEntities(ctx, ir.KindGroup, disjoint.Opposite, refs)
}

// GroupAssets is one membership entry: a group (zero ref for the owner's
// default group) and the assets to link to it.
type GroupAssets struct {
	Group  ir.EntityRef
	Assets []ir.EntityRef
}

func (cs *ChangeSet) stageMemberships(ctx context.Context, side disjoint.Side, entries []GroupAssets) error {
	return cs.stage(func() error {
		for _, entry := range entries {
			var group *ir.Entity
			if !entry.Group.IsZero() {
				g, err := cs.resolver.Resolve(ctx, ir.KindGroup, entry.Group, false)
				if err != nil {
					return err
				}
				group = g
			}
			for _, ref := range entry.Assets {
				asset, err := cs.resolver.Resolve(ctx, ir.KindAsset, ref, false)
				if err != nil {
					return err
				}
				cs.memberships, _ = cs.memberships.Insert(side, ir.Membership{Group: group, Asset: asset})
			}
		}
		return nil
	})
}

// AddMemberships stages one membership edge per listed asset.
func (cs *ChangeSet) AddMemberships(ctx context.Context, entries []GroupAssets) error {
	return cs.stageMemberships(ctx, disjoint.Primary, entries)
}

// RemoveMemberships stages removal of one membership edge per listed asset.
func (cs *ChangeSet) RemoveMemberships(ctx context.Context, entries []GroupAssets) error {
	return cs.stageMemberships(ctx, disjoint.Opposite, entries)
}

// AddToGroup is AddMemberships for a single group.
func (cs *ChangeSet) AddToGroup(ctx context.Context, group ir.EntityRef, assets []ir.EntityRef) error {
	return cs.AddMemberships(ctx, []GroupAssets{{Group: group, Assets: assets}})
}

// RemoveFromGroup is RemoveMemberships for a single group.
func (cs *ChangeSet) RemoveFromGroup(ctx context.Context, group ir.EntityRef, assets []ir.EntityRef) error {
	return cs.RemoveMemberships(ctx, []GroupAssets{{Group: group, Assets: assets}})
}

// SetErrors appends diagnostics. Any diagnostic blocks commit.
func (cs *ChangeSet) SetErrors(errs ...string) {
	cs.errors = append(cs.errors, errs...)
}

// HasErrors reports whether diagnostics were recorded.
func (cs *ChangeSet) HasErrors() bool {
	return len(cs.errors) > 0
}

// Errors returns the recorded diagnostics.
func (cs *ChangeSet) Errors() []string {
	return append([]string(nil), cs.errors...)
}

// ValuesForPredicate returns the values of (subject, predicate) as they will
// be after commit: stored values, then staged additions in staging order,
// minus every value staged for removal. Relation values are object uuids.
func (cs *ChangeSet) ValuesForPredicate(ctx context.Context, subject ir.EntityRef, predicate string) ([]string, error) {
	var (
		subj *ir.Entity
		err  error
	)
	err = cs.stage(func() error {
		subj, err = cs.resolver.Resolve(ctx, ir.KindAsset, subject, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	var values []string
	if subj.Persisted() && cs.resolver.reader != nil {
		stored, err := cs.resolver.reader.FactsOf(ctx, subj.ID, predicate)
		if err != nil {
			return nil, NewStoreError("facts of", err)
		}
		for _, f := range stored {
			values = append(values, f.Object.Value())
		}
	}

	matches := func(f ir.Fact) bool {
		return f.Subject != nil && f.Subject.UUID == subj.UUID && f.Predicate == predicate
	}
	for _, f := range cs.facts.Items(disjoint.Primary) {
		if matches(f) {
			values = append(values, f.Object.Value())
		}
	}

	removed := make(map[string]bool)
	for _, f := range cs.facts.Items(disjoint.Opposite) {
		if matches(f) {
			removed[f.Object.Value()] = true
		}
	}

	out := values[:0]
	for _, v := range values {
		if !removed[v] {
			out = append(out, v)
		}
	}
	return out, nil
}

// Merge replays every staged entry of other into cs through the same
// insertion rule and unions the wildcard tables and instance caches.
// Conflicting wildcard bindings fail and leave cs untouched. Merging the
// same changeset twice is a no-op the second time. other is not modified.
func (cs *ChangeSet) Merge(other *ChangeSet) error {
	if other == nil || other == cs {
		return nil
	}
	for _, token := range other.resolver.tokens {
		theirs := other.resolver.wildcards[token]
		if mine, ok := cs.resolver.wildcards[token]; ok && mine != theirs {
			return NewWildcardConflictError(token, mine, theirs)
		}
	}

	return cs.stage(func() error {
		r := cs.resolver
		for _, token := range other.resolver.tokens {
			if err := r.Bind(token, other.resolver.wildcards[token]); err != nil {
				return err
			}
		}
		for _, e := range other.resolver.instances {
			r.adopt(e)
		}

		cs.groups = cs.groups.Merge(other.groups, r.adopt)
		cs.entities = cs.entities.Merge(other.entities, r.adopt)
		cs.facts = cs.facts.Merge(other.facts, func(f ir.Fact) ir.Fact {
			f.Subject = r.adopt(f.Subject)
			if f.Object.Entity != nil {
				f.Object.Entity = r.adopt(f.Object.Entity)
			}
			return f
		})
		cs.memberships = cs.memberships.Merge(other.memberships, func(m ir.Membership) ir.Membership {
			m.Group = r.adopt(m.Group)
			m.Asset = r.adopt(m.Asset)
			return m
		})

		seen := make(map[string]bool, len(cs.errors))
		for _, e := range cs.errors {
			seen[e] = true
		}
		for _, e := range other.errors {
			if !seen[e] {
				seen[e] = true
				cs.errors = append(cs.errors, e)
			}
		}
		for _, f := range other.remoteUpdates {
			cs.queueRemoteUpdate(f)
		}
		return nil
	})
}

// cancelled counts the keys annihilated across all staged lists.
func (cs *ChangeSet) cancelled() int {
	return cs.facts.DisabledKeys() + cs.entities.DisabledKeys() +
		cs.groups.DisabledKeys() + cs.memberships.DisabledKeys()
}

// Empty reports whether nothing is staged and no diagnostics are recorded.
func (cs *ChangeSet) Empty() bool {
	return cs.facts.Empty() && cs.entities.Empty() && cs.groups.Empty() &&
		cs.memberships.Empty() && len(cs.errors) == 0 && len(cs.remoteUpdates) == 0
}

// FactsToAdd returns the staged fact additions in staging order.
func (cs *ChangeSet) FactsToAdd() []ir.Fact { return cs.facts.Items(disjoint.Primary) }

// FactsToDestroy returns the staged fact removals in staging order.
func (cs *ChangeSet) FactsToDestroy() []ir.Fact { return cs.facts.Items(disjoint.Opposite) }

// EntitiesToCreate returns the staged asset creations.
func (cs *ChangeSet) EntitiesToCreate() []*ir.Entity { return cs.entities.Items(disjoint.Primary) }

// EntitiesToDestroy returns the staged asset deletions.
func (cs *ChangeSet) EntitiesToDestroy() []*ir.Entity { return cs.entities.Items(disjoint.Opposite) }

// GroupsToCreate returns the staged group creations.
func (cs *ChangeSet) GroupsToCreate() []*ir.Entity { return cs.groups.Items(disjoint.Primary) }

// GroupsToDestroy returns the staged group deletions.
func (cs *ChangeSet) GroupsToDestroy() []*ir.Entity { return cs.groups.Items(disjoint.Opposite) }

// MembershipsToAdd returns the staged membership additions.
func (cs *ChangeSet) MembershipsToAdd() []ir.Membership {
	return cs.memberships.Items(disjoint.Primary)
}

// MembershipsToRemove returns the staged membership removals.
func (cs *ChangeSet) MembershipsToRemove() []ir.Membership {
	return cs.memberships.Items(disjoint.Opposite)
}
