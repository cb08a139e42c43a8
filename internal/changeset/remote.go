package changeset

import (
	"context"

	"github.com/roach88/factset/internal/disjoint"
	"github.com/roach88/factset/internal/ir"
)

// AddRemote stages a fact flagged as coming from a remote source.
func (cs *ChangeSet) AddRemote(ctx context.Context, subject ir.EntityRef, predicate string, object ir.EntityRef, opts ...FactOption) error {
	return cs.Add(ctx, subject, predicate, object, append(opts, AsRemote())...)
}

// ReplaceRemote makes (subject, predicate, object) the only remote value of
// the predicate: every stored fact with that predicate is staged for
// removal by handle and queued to be flagged remote, remote values staged
// earlier for the predicate are dropped, then the new value is staged with
// AddRemote.
func (cs *ChangeSet) ReplaceRemote(ctx context.Context, subject ir.EntityRef, predicate string, object ir.EntityRef, opts ...FactOption) error {
	return cs.stage(func() error {
		subj, err := cs.resolver.Resolve(ctx, ir.KindAsset, subject, false)
		if err != nil {
			return err
		}
		if subj.Persisted() && cs.resolver.reader != nil {
			stored, err := cs.resolver.reader.FactsOf(ctx, subj.ID, predicate)
			if err != nil {
				return NewStoreError("facts of", err)
			}
			for _, f := range stored {
				cs.facts, _ = cs.facts.Insert(disjoint.Opposite, f)
				cs.queueRemoteUpdate(f)
			}
		}

		fact, err := cs.buildFact(ctx, ir.Handle(subj), predicate, object, append(opts, AsRemote()))
		if err != nil {
			return err
		}
		cs.facts, _ = cs.facts.Remove(disjoint.Primary, func(f ir.Fact) bool {
			return f.Remote && f.Predicate == predicate && f.Subject != nil && f.Subject.UUID == subj.UUID
		})
		cs.facts, _ = cs.facts.Insert(disjoint.Primary, fact)
		return nil
	})
}

// ReplaceRemoteRelation is ReplaceRemote with an entity object.
func (cs *ChangeSet) ReplaceRemoteRelation(ctx context.Context, subject ir.EntityRef, predicate string, object ir.EntityRef) error {
	if object.Kind() == ir.RefLiteral {
		return NewValidationError(object.Text(), "relation object must be an entity reference")
	}
	return cs.ReplaceRemote(ctx, subject, predicate, object)
}

// ReplaceRemoteProperty is ReplaceRemote with a literal value.
func (cs *ChangeSet) ReplaceRemoteProperty(ctx context.Context, subject ir.EntityRef, predicate, value string) error {
	return cs.ReplaceRemote(ctx, subject, predicate, ir.Literal(value), AsLiteral())
}

// RemoteUpdates returns the stored facts queued to be flagged remote at commit.
func (cs *ChangeSet) RemoteUpdates() []ir.Fact {
	return append([]ir.Fact(nil), cs.remoteUpdates...)
}

func (cs *ChangeSet) queueRemoteUpdate(f ir.Fact) {
	for _, have := range cs.remoteUpdates {
		if have.ID == f.ID {
			return
		}
	}
	cs.remoteUpdates = append(cs.remoteUpdates, f)
}
