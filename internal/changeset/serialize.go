package changeset

import (
	"context"
	"fmt"

	"github.com/roach88/factset/internal/ir"
	"github.com/roach88/factset/internal/wire"
)

// Encode renders the staged content of cs as a wire document.
// Literal objects shaped like uuids are quoted so decoding keeps them literal.
func Encode(cs *ChangeSet) *wire.Document {
	return &wire.Document{
		SetErrors:         cs.Errors(),
		CreateAssets:      uuidsOf(cs.EntitiesToCreate()),
		DeleteAssets:      uuidsOf(cs.EntitiesToDestroy()),
		CreateAssetGroups: uuidsOf(cs.GroupsToCreate()),
		DeleteAssetGroups: uuidsOf(cs.GroupsToDestroy()),
		AddFacts:          triplesOf(cs.FactsToAdd()),
		RemoveFacts:       triplesOf(cs.FactsToDestroy()),
		AddAssets:         groupAssetsOf(cs.MembershipsToAdd()),
		RemoveAssets:      groupAssetsOf(cs.MembershipsToRemove()),
	}
}

// MarshalCanonical is Encode followed by canonical JSON encoding.
func MarshalCanonical(cs *ChangeSet) ([]byte, error) {
	return Encode(cs).MarshalCanonical()
}

func uuidsOf(es []*ir.Entity) []string {
	if len(es) == 0 {
		return nil
	}
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.UUID
	}
	return out
}

func triplesOf(facts []ir.Fact) []wire.Triple {
	if len(facts) == 0 {
		return nil
	}
	out := make([]wire.Triple, len(facts))
	for i, f := range facts {
		t := wire.Triple{Predicate: f.Predicate}
		if f.Subject != nil {
			t.Subject = f.Subject.UUID
		}
		if f.Object.IsEntity() {
			t.Object = f.Object.Entity.UUID
		} else {
			t.Object = ir.QuoteIfRef(f.Object.Literal)
		}
		out[i] = t
	}
	return out
}

// groupAssetsOf groups edges by group, in order of first appearance.
func groupAssetsOf(edges []ir.Membership) []wire.GroupAssets {
	if len(edges) == 0 {
		return nil
	}
	var out []wire.GroupAssets
	index := make(map[string]int)
	for _, m := range edges {
		group := ""
		if m.Group != nil {
			group = m.Group.UUID
		}
		i, ok := index[group]
		if !ok {
			i = len(out)
			index[group] = i
			out = append(out, wire.GroupAssets{Group: group})
		}
		out[i].Assets = append(out[i].Assets, m.Asset.UUID)
	}
	return out
}

// Decode stages every section of doc into cs, in wire.DecodeOrder.
// Strings are classified with ir.ParseRef. If any section fails, cs is left
// as it was before the call.
func Decode(ctx context.Context, cs *ChangeSet, doc *wire.Document) error {
	return cs.stage(func() error {
		for _, s := range decodeSteps(ctx, cs, doc) {
			if err := s.apply(); err != nil {
				return fmt.Errorf("%s: %w", s.name, err)
			}
		}
		return nil
	})
}

type decodeStep struct {
	name  string
	apply func() error
}

// decodeSteps lists one staging function per wire section, in wire.DecodeOrder.
func decodeSteps(ctx context.Context, cs *ChangeSet, doc *wire.Document) []decodeStep {
	return []decodeStep{
		{wire.SectionSetErrors, func() error {
			cs.SetErrors(doc.SetErrors...)
			return nil
		}},
		{wire.SectionCreateAssets, func() error {
			return cs.CreateEntities(ctx, ir.ParseRefs(doc.CreateAssets))
		}},
		{wire.SectionCreateAssetGroups, func() error {
			return cs.CreateGroups(ctx, ir.ParseRefs(doc.CreateAssetGroups))
		}},
		{wire.SectionDeleteAssetGroups, func() error {
			return cs.DeleteGroups(ctx, ir.ParseRefs(doc.DeleteAssetGroups))
		}},
		{wire.SectionRemoveFacts, func() error {
			for _, t := range doc.RemoveFacts {
				if err := cs.RemoveWhere(ctx, parseNullable(t.Subject), t.Predicate, ir.ParseRef(t.Object)); err != nil {
					return err
				}
			}
			return nil
		}},
		{wire.SectionAddFacts, func() error {
			for _, t := range doc.AddFacts {
				if err := cs.Add(ctx, parseNullable(t.Subject), t.Predicate, ir.ParseRef(t.Object)); err != nil {
					return err
				}
			}
			return nil
		}},
		{wire.SectionDeleteAssets, func() error {
			return cs.DeleteEntities(ctx, ir.ParseRefs(doc.DeleteAssets))
		}},
		{wire.SectionAddAssets, func() error {
			return cs.AddMemberships(ctx, membershipEntries(doc.AddAssets))
		}},
		{wire.SectionRemoveAssets, func() error {
			return cs.RemoveMemberships(ctx, membershipEntries(doc.RemoveAssets))
		}},
	}
}

// parseNullable maps the wire null ("") to the zero ref.
func parseNullable(s string) ir.EntityRef {
	if s == "" {
		return ir.EntityRef{}
	}
	return ir.ParseRef(s)
}

func membershipEntries(rows []wire.GroupAssets) []GroupAssets {
	out := make([]GroupAssets, len(rows))
	for i, row := range rows {
		out[i] = GroupAssets{
			Group:  parseNullable(row.Group),
			Assets: ir.ParseRefs(row.Assets),
		}
	}
	return out
}

// FromDocument builds a new changeset from doc.
func FromDocument(ctx context.Context, reader ir.Reader, doc *wire.Document, opts ...Option) (*ChangeSet, error) {
	cs := New(reader, opts...)
	if err := Decode(ctx, cs, doc); err != nil {
		return nil, err
	}
	return cs, nil
}
