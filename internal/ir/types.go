package ir

// Kind names the entity tables a changeset can touch.
type Kind string

const (
	// KindAsset is a plain entity (labware, sample, ...).
	KindAsset Kind = "asset"

	// KindGroup is a named collection of assets.
	KindGroup Kind = "asset_group"
)

// ValidKinds defines the allowed entity kinds.
var ValidKinds = map[Kind]bool{
	KindAsset: true,
	KindGroup: true,
}

// Entity is a typed node of the graph.
// ID is the store identity (0 until persisted); UUID is stable for life.
type Entity struct {
	ID      int64  `json:"id"`
	UUID    string `json:"uuid"`
	Kind    Kind   `json:"kind"`
	Name    string `json:"name,omitempty"`    // groups only
	OwnerID *int64 `json:"owner_id,omitempty"` // groups only; nil once detached
}

// Persisted reports whether the entity has a store identity.
func (e *Entity) Persisted() bool {
	return e != nil && e.ID != 0
}

// NewEntity allocates an unsaved entity of the given kind.
func NewEntity(kind Kind, uuid string) *Entity {
	return &Entity{Kind: kind, UUID: uuid}
}

// Object is the object position of a fact: a literal or another entity.
type Object struct {
	Literal string
	Entity  *Entity
}

// LiteralObject builds a literal object.
func LiteralObject(s string) Object {
	return Object{Literal: s}
}

// EntityObject builds a relation object.
func EntityObject(e *Entity) Object {
	return Object{Entity: e}
}

// IsEntity reports whether the object points at an entity.
func (o Object) IsEntity() bool {
	return o.Entity != nil
}

// Value returns the literal, or the entity UUID for relations.
func (o Object) Value() string {
	if o.Entity != nil {
		return o.Entity.UUID
	}
	return o.Literal
}

// Fact is a subject–predicate–object triple.
// A fact with ID != 0 is a handle on a stored row.
type Fact struct {
	ID        int64   `json:"id,omitempty"`
	Subject   *Entity `json:"-"`
	Predicate string  `json:"predicate"`
	Object    Object  `json:"-"`
	Remote    bool    `json:"remote,omitempty"`
}

// Membership links an asset to a group.
// A nil Group means "the owner record's default group".
type Membership struct {
	ID    int64   `json:"id,omitempty"`
	Group *Entity `json:"-"`
	Asset *Entity `json:"-"`
}

// OwnerRecord is the record every emitted Operation points at.
// ID == 0 means the applier must persist it before writing operations.
type OwnerRecord struct {
	ID           int64    `json:"id"`
	Label        string   `json:"label"`
	DefaultGroup *Entity  `json:"-"`
	Errors       []string `json:"errors,omitempty"`

	dirty bool
}

// SetErrors records diagnostics on the owner and marks it changed.
func (o *OwnerRecord) SetErrors(errs []string) {
	o.Errors = append(o.Errors, errs...)
	o.dirty = true
}

// Touch marks the owner changed so the applier re-saves it.
func (o *OwnerRecord) Touch() {
	o.dirty = true
}

// Changed reports whether the owner was mutated since its last save.
func (o *OwnerRecord) Changed() bool {
	return o.dirty
}

// MarkSaved clears the changed flag. Stores call it after a successful write.
func (o *OwnerRecord) MarkSaved() {
	o.dirty = false
}
