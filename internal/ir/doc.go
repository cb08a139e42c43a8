// Package ir provides the foundational types shared by every factset package.
//
// This package contains value types, the reference token grammar, canonical
// JSON encoding and the store collaborator contract. All other internal
// packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - An entity reference is classified exactly once, at the API boundary,
//     into an EntityRef variant. Nothing downstream inspects raw strings.
//   - Entity.ID == 0 means "not yet persisted"; the UUID is the stable identity.
//   - Operation values are created by the applier only and never mutated.
//   - All JSON tags use snake_case.
package ir
