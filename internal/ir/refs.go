package ir

import "fmt"

// RefKind tags the variant held by an EntityRef.
type RefKind int

const (
	// RefLiteral is a plain string value.
	RefLiteral RefKind = iota
	// RefWildcard is a symbolic placeholder such as "?plate".
	RefWildcard
	// RefUUID names an entity by uuid.
	RefUUID
	// RefHandle carries an already resolved entity.
	RefHandle
)

func (k RefKind) String() string {
	switch k {
	case RefLiteral:
		return "literal"
	case RefWildcard:
		return "wildcard"
	case RefUUID:
		return "uuid"
	case RefHandle:
		return "handle"
	default:
		return fmt.Sprintf("RefKind(%d)", int(k))
	}
}

// EntityRef is how callers name a subject, object, group or asset.
// The variant is decided once, when the ref is built.
// The zero value is an empty literal, which staging rejects where an entity is required.
type EntityRef struct {
	kind   RefKind
	text   string
	entity *Entity
}

// Literal builds a literal ref. The text is never treated as a reference.
func Literal(s string) EntityRef {
	return EntityRef{kind: RefLiteral, text: s}
}

// Wildcard builds a wildcard ref. The token keeps its sigil ("?p").
func Wildcard(token string) EntityRef {
	return EntityRef{kind: RefWildcard, text: token}
}

// UUIDRef builds a reference to an entity by uuid.
func UUIDRef(uuid string) EntityRef {
	return EntityRef{kind: RefUUID, text: uuid}
}

// Handle wraps a resolved entity.
func Handle(e *Entity) EntityRef {
	return EntityRef{kind: RefHandle, entity: e}
}

// Kind returns the variant tag.
func (r EntityRef) Kind() RefKind { return r.kind }

// Text returns the literal, wildcard token or uuid. Empty for handles.
func (r EntityRef) Text() string { return r.text }

// Entity returns the wrapped entity for handles, nil otherwise.
func (r EntityRef) Entity() *Entity { return r.entity }

// IsZero reports whether the ref names nothing usable.
func (r EntityRef) IsZero() bool {
	if r.kind == RefHandle {
		return r.entity == nil
	}
	return r.text == ""
}

// AsLiteral converts any non-handle ref into a literal of the same text.
// Used when the caller explicitly marks an object as a literal value.
func (r EntityRef) AsLiteral() EntityRef {
	if r.kind == RefHandle {
		if r.entity == nil {
			return Literal("")
		}
		return Literal(r.entity.UUID)
	}
	return Literal(r.text)
}

func (r EntityRef) String() string {
	if r.kind == RefHandle {
		if r.entity == nil {
			return "handle(nil)"
		}
		return "handle(" + r.entity.UUID + ")"
	}
	return r.kind.String() + "(" + r.text + ")"
}

// ParseRef classifies an untyped string. This is the only place the token
// grammar is applied; wire decoding and the CLI call it.
//
//	"?name"        -> Wildcard
//	uuid shape     -> UUIDRef
//	"\"<text>\""   -> Literal(<text>), one pair of quotes removed
//	anything else  -> Literal
func ParseRef(s string) EntityRef {
	switch {
	case IsWildcard(s):
		return Wildcard(s)
	case IsUUID(s):
		return UUIDRef(s)
	case IsQuoted(s):
		return Literal(Unquote(s))
	default:
		return Literal(s)
	}
}

// ParseRefs classifies a list of strings.
func ParseRefs(ss []string) []EntityRef {
	refs := make([]EntityRef, len(ss))
	for i, s := range ss {
		refs[i] = ParseRef(s)
	}
	return refs
}

// Handles wraps each entity in a handle ref.
func Handles(es ...*Entity) []EntityRef {
	refs := make([]EntityRef, len(es))
	for i, e := range es {
		refs[i] = Handle(e)
	}
	return refs
}
