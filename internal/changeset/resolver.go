package changeset

import (
	"context"

	"github.com/roach88/factset/internal/ir"
)

// Resolver turns EntityRefs into entities and owns the changeset's
// wildcard table and instance cache.
//
// The cache holds at most one unsaved *ir.Entity per uuid, so every staged
// fact or membership that names the same new entity shares one pointer and
// sees the ID the applier assigns to it.
//
// Thread-safety: none. A Resolver belongs to a single ChangeSet.
type Resolver struct {
	reader    ir.Reader
	gen       ir.UUIDGenerator
	wildcards map[string]string // token -> uuid
	tokens    []string          // binding order
	instances map[string]*ir.Entity

	journal []undo
	depth   int
}

// undo reverts one resolver mutation made by a staging call that later failed.
type undo struct {
	token string
	uuid  string
}

// NewResolver creates a resolver. reader may be nil for a changeset that
// never looks at a store; uuid references then only resolve to cached entities.
func NewResolver(reader ir.Reader, gen ir.UUIDGenerator) *Resolver {
	if gen == nil {
		gen = ir.RandomUUIDGenerator{}
	}
	return &Resolver{
		reader:    reader,
		gen:       gen,
		wildcards: make(map[string]string),
		instances: make(map[string]*ir.Entity),
	}
}

// Resolve returns the entity of the given kind named by ref.
//
//   - Wildcard: bound to a fresh uuid on first sight. With create the cached
//     instance is returned or allocated; without it the uuid must name a
//     cached or stored entity.
//   - UUIDRef: cached instance, then store. Allocated when missing and create is set.
//   - Handle: persisted entities are returned unchanged. Unsaved ones join
//     the instance cache, or resolve to the instance already cached for
//     their uuid.
//   - Literal: not an entity, ValidationError.
func (r *Resolver) Resolve(ctx context.Context, kind ir.Kind, ref ir.EntityRef, create bool) (*ir.Entity, error) {
	if ref.IsZero() {
		return nil, NewValidationError("", "empty %s reference", kind)
	}

	switch ref.Kind() {
	case ir.RefHandle:
		e := ref.Entity()
		if e.Kind != "" && e.Kind != kind {
			return nil, NewValidationError(e.UUID, "expected %s, got %s", kind, e.Kind)
		}
		if e.Persisted() {
			return e, nil
		}
		return r.track(kind, e)

	case ir.RefWildcard:
		token := ref.Text()
		uuid, bound := r.wildcards[token]
		if !bound {
			if !create {
				return nil, NewReferenceError(token)
			}
			uuid = r.gen.Generate()
			r.bind(token, uuid)
		}
		if create {
			return r.instance(kind, uuid)
		}
		e, err := r.lookup(ctx, kind, uuid)
		if err != nil {
			return nil, err
		}
		if e == nil {
			return nil, NewReferenceError(token)
		}
		return e, nil

	case ir.RefUUID:
		uuid := ref.Text()
		e, err := r.lookup(ctx, kind, uuid)
		if err != nil {
			return nil, err
		}
		if e != nil {
			return e, nil
		}
		if !create {
			return nil, NewReferenceError(uuid)
		}
		return r.instance(kind, uuid)

	default:
		return nil, NewValidationError(ref.Text(), "expected %s reference, got literal", kind)
	}
}

// lookup finds uuid among new instances first, then in the store.
// An unsaved instance is never looked up in the store.
func (r *Resolver) lookup(ctx context.Context, kind ir.Kind, uuid string) (*ir.Entity, error) {
	if e, ok := r.instances[uuid]; ok {
		if e.Kind != kind {
			return nil, NewValidationError(uuid, "expected %s, got %s", kind, e.Kind)
		}
		return e, nil
	}
	if r.reader == nil {
		return nil, nil
	}
	e, err := r.reader.FindByUUID(ctx, kind, uuid)
	if err != nil {
		return nil, NewStoreError("find "+string(kind), err)
	}
	return e, nil
}

func (r *Resolver) instance(kind ir.Kind, uuid string) (*ir.Entity, error) {
	if e, ok := r.instances[uuid]; ok {
		if e.Kind != kind {
			return nil, NewValidationError(uuid, "expected %s, got %s", kind, e.Kind)
		}
		return e, nil
	}
	e := ir.NewEntity(kind, uuid)
	r.instances[uuid] = e
	r.journal = append(r.journal, undo{uuid: uuid})
	return e, nil
}

// track caches an unsaved entity the caller built itself.
func (r *Resolver) track(kind ir.Kind, e *ir.Entity) (*ir.Entity, error) {
	if mine, ok := r.instances[e.UUID]; ok {
		if mine.Kind != kind {
			return nil, NewValidationError(e.UUID, "expected %s, got %s", kind, mine.Kind)
		}
		return mine, nil
	}
	if e.Kind == "" {
		e.Kind = kind
	}
	r.instances[e.UUID] = e
	r.journal = append(r.journal, undo{uuid: e.UUID})
	return e, nil
}

func (r *Resolver) bind(token, uuid string) {
	r.wildcards[token] = uuid
	r.tokens = append(r.tokens, token)
	r.journal = append(r.journal, undo{token: token})
}

// Bind records token -> uuid. Rebinding to the same uuid is a no-op; a
// different uuid is a conflict.
func (r *Resolver) Bind(token, uuid string) error {
	if have, ok := r.wildcards[token]; ok {
		if have != uuid {
			return NewWildcardConflictError(token, have, uuid)
		}
		return nil
	}
	r.bind(token, uuid)
	return nil
}

// UUIDFor returns the uuid bound to token.
func (r *Resolver) UUIDFor(token string) (string, bool) {
	uuid, ok := r.wildcards[token]
	return uuid, ok
}

// WildcardFor returns the first token bound to uuid, or "".
func (r *Resolver) WildcardFor(uuid string) string {
	for _, token := range r.tokens {
		if r.wildcards[token] == uuid {
			return token
		}
	}
	return ""
}

// Tokens returns the bound tokens in binding order.
func (r *Resolver) Tokens() []string {
	return append([]string(nil), r.tokens...)
}

// Instance returns the cached unsaved entity for uuid.
func (r *Resolver) Instance(uuid string) (*ir.Entity, bool) {
	e, ok := r.instances[uuid]
	return e, ok
}

// adopt returns the receiver's instance for an entity coming from another
// changeset. Persisted entities are shared; unsaved ones are copied into
// the cache once.
func (r *Resolver) adopt(e *ir.Entity) *ir.Entity {
	if e == nil || e.Persisted() {
		return e
	}
	if mine, ok := r.instances[e.UUID]; ok {
		return mine
	}
	clone := *e
	r.instances[e.UUID] = &clone
	r.journal = append(r.journal, undo{uuid: e.UUID})
	return &clone
}

// unsaved returns every cached entity that has no store identity yet.
func (r *Resolver) unsaved() []*ir.Entity {
	var out []*ir.Entity
	for _, e := range r.instances {
		if !e.Persisted() {
			out = append(out, e)
		}
	}
	return out
}

// mark and rollback bracket a staging call: rollback(mark()) undoes every
// binding and allocation made in between. Brackets nest; the journal is
// dropped once the outermost one is released.
func (r *Resolver) mark() int {
	r.depth++
	return len(r.journal)
}

func (r *Resolver) rollback(mark int) {
	r.depth--
	for i := len(r.journal) - 1; i >= mark; i-- {
		u := r.journal[i]
		if u.token != "" {
			delete(r.wildcards, u.token)
			r.tokens = r.tokens[:len(r.tokens)-1]
		}
		if u.uuid != "" {
			delete(r.instances, u.uuid)
		}
	}
	r.journal = r.journal[:mark]
}

// release keeps every mutation made since mark.
func (r *Resolver) release(int) {
	r.depth--
	if r.depth == 0 {
		r.journal = r.journal[:0]
	}
}
