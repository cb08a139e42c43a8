package ir

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefixes for content keys. The version suffix allows the key
// layout to change without colliding with older keys.
const (
	DomainFact       = "factset/fact/v1"
	DomainFactHandle = "factset/fact-handle/v1"
	DomainMembership = "factset/membership/v1"
	DomainEntity     = "factset/entity/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator removes domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// FactKey identifies a fact by value: subject, predicate, object.
// The remote flag is not part of the identity, so a remote and a local
// copy of the same triple cancel each other. Stored handles are keyed by
// row ID instead and never match a value key.
func FactKey(f Fact) string {
	if f.ID != 0 {
		return hashWithDomain(DomainFactHandle, []byte(Array{Int(f.ID)}.canonical()))
	}
	obj := Array{entityValue(f.Subject), String(f.Predicate)}
	if f.Object.IsEntity() {
		obj = append(obj, String("entity"), String(f.Object.Entity.UUID))
	} else {
		obj = append(obj, String("literal"), String(f.Object.Literal))
	}
	return hashWithDomain(DomainFact, []byte(obj.canonical()))
}

// MembershipKey identifies a membership edge by (group, asset).
func MembershipKey(m Membership) string {
	obj := Array{entityValue(m.Group), entityValue(m.Asset)}
	return hashWithDomain(DomainMembership, []byte(obj.canonical()))
}

// EntityKey identifies an entity by kind and uuid.
func EntityKey(e *Entity) string {
	obj := Array{String(e.Kind), String(e.UUID)}
	return hashWithDomain(DomainEntity, []byte(obj.canonical()))
}

func entityValue(e *Entity) Value {
	if e == nil {
		return Null{}
	}
	return String(e.UUID)
}

// canonical never fails for the string/int/null arrays built above.
func (a Array) canonical() string {
	data, err := MarshalCanonical(a)
	if err != nil {
		panic(err)
	}
	return string(data)
}
