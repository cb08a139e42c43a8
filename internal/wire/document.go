// Package wire is the canonical interchange form of a changeset.
//
// A Document has one typed field per wire section. Each section has its own
// encode and decode function; there is no dispatch by section name beyond
// the fixed table in this file. Empty sections are omitted on output.
package wire

import (
	"fmt"

	"github.com/roach88/factset/internal/ir"
)

// Section names, as they appear on the wire.
const (
	SectionSetErrors         = "set_errors"
	SectionCreateAssets      = "create_assets"
	SectionDeleteAssets      = "delete_assets"
	SectionCreateAssetGroups = "create_asset_groups"
	SectionDeleteAssetGroups = "delete_asset_groups"
	SectionAddFacts          = "add_facts"
	SectionRemoveFacts       = "remove_facts"
	SectionAddAssets         = "add_assets"
	SectionRemoveAssets      = "remove_assets"
)

// DecodeOrder is the order in which sections are applied to a changeset.
// Creations come before anything that may reference them.
var DecodeOrder = []string{
	SectionSetErrors,
	SectionCreateAssets,
	SectionCreateAssetGroups,
	SectionDeleteAssetGroups,
	SectionRemoveFacts,
	SectionAddFacts,
	SectionDeleteAssets,
	SectionAddAssets,
	SectionRemoveAssets,
}

// Triple is one fact row. An empty Subject is encoded as null.
// Object is a literal or an entity uuid; literal uuids are quoted.
type Triple struct {
	Subject   string
	Predicate string
	Object    string
}

// GroupAssets is one membership row. An empty Group is encoded as null and
// stands for the committing owner's default group.
type GroupAssets struct {
	Group  string
	Assets []string
}

// Document is the decoded wire form.
type Document struct {
	SetErrors         []string
	CreateAssets      []string
	DeleteAssets      []string
	CreateAssetGroups []string
	DeleteAssetGroups []string
	AddFacts          []Triple
	RemoveFacts       []Triple
	AddAssets         []GroupAssets
	RemoveAssets      []GroupAssets
}

// Empty reports whether every section is empty.
func (d *Document) Empty() bool {
	return len(d.SetErrors) == 0 &&
		len(d.CreateAssets) == 0 && len(d.DeleteAssets) == 0 &&
		len(d.CreateAssetGroups) == 0 && len(d.DeleteAssetGroups) == 0 &&
		len(d.AddFacts) == 0 && len(d.RemoveFacts) == 0 &&
		len(d.AddAssets) == 0 && len(d.RemoveAssets) == 0
}

// section binds a wire key to its encoder and decoder.
type section struct {
	name   string
	encode func(d *Document) ir.Value // nil when the section is empty
	decode func(d *Document, v ir.Value) error
}

var sections = []section{
	{SectionSetErrors, func(d *Document) ir.Value { return encodeStrings(d.SetErrors) },
		func(d *Document, v ir.Value) (err error) { d.SetErrors, err = decodeStrings(v); return }},
	{SectionCreateAssets, func(d *Document) ir.Value { return encodeStrings(d.CreateAssets) },
		func(d *Document, v ir.Value) (err error) { d.CreateAssets, err = decodeStrings(v); return }},
	{SectionDeleteAssets, func(d *Document) ir.Value { return encodeStrings(d.DeleteAssets) },
		func(d *Document, v ir.Value) (err error) { d.DeleteAssets, err = decodeStrings(v); return }},
	{SectionCreateAssetGroups, func(d *Document) ir.Value { return encodeStrings(d.CreateAssetGroups) },
		func(d *Document, v ir.Value) (err error) { d.CreateAssetGroups, err = decodeStrings(v); return }},
	{SectionDeleteAssetGroups, func(d *Document) ir.Value { return encodeStrings(d.DeleteAssetGroups) },
		func(d *Document, v ir.Value) (err error) { d.DeleteAssetGroups, err = decodeStrings(v); return }},
	{SectionAddFacts, func(d *Document) ir.Value { return encodeTriples(d.AddFacts) },
		func(d *Document, v ir.Value) (err error) { d.AddFacts, err = decodeTriples(v); return }},
	{SectionRemoveFacts, func(d *Document) ir.Value { return encodeTriples(d.RemoveFacts) },
		func(d *Document, v ir.Value) (err error) { d.RemoveFacts, err = decodeTriples(v); return }},
	{SectionAddAssets, func(d *Document) ir.Value { return encodeGroupAssets(d.AddAssets) },
		func(d *Document, v ir.Value) (err error) { d.AddAssets, err = decodeGroupAssets(v); return }},
	{SectionRemoveAssets, func(d *Document) ir.Value { return encodeGroupAssets(d.RemoveAssets) },
		func(d *Document, v ir.Value) (err error) { d.RemoveAssets, err = decodeGroupAssets(v); return }},
}

func lookupSection(name string) (section, bool) {
	for _, s := range sections {
		if s.name == name {
			return s, true
		}
	}
	return section{}, false
}

// Value returns the document as a canonical-JSON-ready map holding only
// the non-empty sections.
func (d *Document) Value() ir.Map {
	out := ir.Map{}
	for _, s := range sections {
		if v := s.encode(d); v != nil {
			out[s.name] = v
		}
	}
	return out
}

// MarshalCanonical encodes the document as canonical JSON.
func (d *Document) MarshalCanonical() ([]byte, error) {
	return ir.MarshalCanonical(d.Value())
}

// FromValue decodes a parsed wire map. Unknown sections are rejected.
func FromValue(v ir.Value) (*Document, error) {
	m, ok := v.(ir.Map)
	if !ok {
		return nil, fmt.Errorf("wire document must be an object, got %T", v)
	}
	d := &Document{}
	for _, key := range m.SortedKeys() {
		s, ok := lookupSection(key)
		if !ok {
			return nil, fmt.Errorf("unknown section %q", key)
		}
		if _, isNull := m[key].(ir.Null); isNull {
			continue
		}
		if err := s.decode(d, m[key]); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
	}
	return d, nil
}

func encodeStrings(ss []string) ir.Value {
	if len(ss) == 0 {
		return nil
	}
	arr := make(ir.Array, len(ss))
	for i, s := range ss {
		arr[i] = ir.String(s)
	}
	return arr
}

func nullable(s string) ir.Value {
	if s == "" {
		return ir.Null{}
	}
	return ir.String(s)
}

func encodeTriples(ts []Triple) ir.Value {
	if len(ts) == 0 {
		return nil
	}
	arr := make(ir.Array, len(ts))
	for i, t := range ts {
		arr[i] = ir.Array{nullable(t.Subject), ir.String(t.Predicate), ir.String(t.Object)}
	}
	return arr
}

func encodeGroupAssets(gs []GroupAssets) ir.Value {
	if len(gs) == 0 {
		return nil
	}
	arr := make(ir.Array, len(gs))
	for i, g := range gs {
		assets := encodeStrings(g.Assets)
		if assets == nil {
			assets = ir.Array{}
		}
		arr[i] = ir.Array{nullable(g.Group), assets}
	}
	return arr
}

func asArray(v ir.Value) (ir.Array, error) {
	arr, ok := v.(ir.Array)
	if !ok {
		return nil, fmt.Errorf("expected array, got %T", v)
	}
	return arr, nil
}

func asString(v ir.Value) (string, error) {
	s, ok := v.(ir.String)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", v)
	}
	return string(s), nil
}

func asNullableString(v ir.Value) (string, error) {
	if _, ok := v.(ir.Null); ok || v == nil {
		return "", nil
	}
	s, err := asString(v)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("empty string where uuid or null expected")
	}
	return s, nil
}

func decodeStrings(v ir.Value) ([]string, error) {
	arr, err := asArray(v)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(arr))
	for i, el := range arr {
		if out[i], err = asString(el); err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
	}
	return out, nil
}

func decodeTriples(v ir.Value) ([]Triple, error) {
	arr, err := asArray(v)
	if err != nil {
		return nil, err
	}
	out := make([]Triple, len(arr))
	for i, el := range arr {
		row, err := asArray(el)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		if len(row) != 3 {
			return nil, fmt.Errorf("[%d]: fact must have 3 elements, got %d", i, len(row))
		}
		t := &out[i]
		if t.Subject, err = asNullableString(row[0]); err != nil {
			return nil, fmt.Errorf("[%d] subject: %w", i, err)
		}
		if t.Predicate, err = asString(row[1]); err != nil {
			return nil, fmt.Errorf("[%d] predicate: %w", i, err)
		}
		if t.Object, err = asString(row[2]); err != nil {
			return nil, fmt.Errorf("[%d] object: %w", i, err)
		}
	}
	return out, nil
}

func decodeGroupAssets(v ir.Value) ([]GroupAssets, error) {
	arr, err := asArray(v)
	if err != nil {
		return nil, err
	}
	out := make([]GroupAssets, len(arr))
	for i, el := range arr {
		row, err := asArray(el)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		if len(row) != 2 {
			return nil, fmt.Errorf("[%d]: membership must be [group, [assets]], got %d elements", i, len(row))
		}
		if out[i].Group, err = asNullableString(row[0]); err != nil {
			return nil, fmt.Errorf("[%d] group: %w", i, err)
		}
		if out[i].Assets, err = decodeStrings(row[1]); err != nil {
			return nil, fmt.Errorf("[%d] assets: %w", i, err)
		}
	}
	return out, nil
}
