package disjoint

import (
	"fmt"
	"hash/fnv"

	"github.com/benbjohnson/immutable"
)

// Side selects one of the two lists of a Pair.
type Side int

const (
	// Primary is the "do" side: add, create.
	Primary Side = iota
	// Opposite is the "undo" side: remove, destroy.
	Opposite
)

// Other returns the complementary side.
func (s Side) Other() Side {
	if s == Primary {
		return Opposite
	}
	return Primary
}

func (s Side) String() string {
	switch s {
	case Primary:
		return "primary"
	case Opposite:
		return "opposite"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// Result reports what Insert did.
type Result int

const (
	// Added means the element was appended.
	Added Result = iota
	// Cancelled means the element annihilated with its counterpart, or its
	// key was already disabled. Nothing is staged for the key.
	Cancelled
	// Duplicate means an equivalent element was already on the same side.
	Duplicate
)

func (r Result) String() string {
	switch r {
	case Added:
		return "added"
	case Cancelled:
		return "cancelled"
	case Duplicate:
		return "duplicate"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// KeyFunc returns the identifying key of an element. Two elements with the
// same key are structurally equivalent.
type KeyFunc[T any] func(T) string

// list is one side: items ordered by insertion sequence plus a key index.
type list[T any] struct {
	items *immutable.SortedMap[int64, T]
	index *immutable.Map[string, int64]
}

func newList[T any]() list[T] {
	return list[T]{
		items: immutable.NewSortedMap[int64, T](seqComparer{}),
		index: immutable.NewMap[string, int64](keyHasher{}),
	}
}

func (l list[T]) add(seq int64, key string, item T) list[T] {
	return list[T]{
		items: l.items.Set(seq, item),
		index: l.index.Set(key, seq),
	}
}

func (l list[T]) delete(key string) list[T] {
	seq, ok := l.index.Get(key)
	if !ok {
		return l
	}
	return list[T]{
		items: l.items.Delete(seq),
		index: l.index.Delete(key),
	}
}

// Pair holds the two sides and the set of disabled keys.
// The zero value is not usable; build one with New.
type Pair[T any] struct {
	key      KeyFunc[T]
	sides    [2]list[T]
	disabled *immutable.Map[string, struct{}]
	next     int64
}

// New returns an empty Pair using key for structural equality.
func New[T any](key KeyFunc[T]) Pair[T] {
	return Pair[T]{
		key:      key,
		sides:    [2]list[T]{newList[T](), newList[T]()},
		disabled: immutable.NewMap[string, struct{}](keyHasher{}),
	}
}

// Insert stages item on side and returns the new Pair.
//
//   - counterpart on the other side: it is removed, item is discarded, the key
//     becomes disabled. Result Cancelled.
//   - key already disabled: item is discarded. Result Cancelled.
//   - equivalent item on the same side: no-op. Result Duplicate.
//   - otherwise item is appended. Result Added.
func (p Pair[T]) Insert(side Side, item T) (Pair[T], Result) {
	k := p.key(item)

	if p.Disabled(k) {
		return p, Cancelled
	}
	other := side.Other()
	if _, ok := p.sides[other].index.Get(k); ok {
		p.sides[other] = p.sides[other].delete(k)
		p.disabled = p.disabled.Set(k, struct{}{})
		return p, Cancelled
	}
	if p.Contains(side, item) {
		return p, Duplicate
	}

	p.next++
	p.sides[side] = p.sides[side].add(p.next, k, item)
	return p, Added
}

// InsertAll stages items in order and returns the new Pair and one Result per item.
func (p Pair[T]) InsertAll(side Side, items []T) (Pair[T], []Result) {
	results := make([]Result, len(items))
	for i, item := range items {
		p, results[i] = p.Insert(side, item)
	}
	return p, results
}

// Remove evicts every item on side for which match returns true.
// Evicted keys are not disabled: this is a plain removal, not a cancellation.
func (p Pair[T]) Remove(side Side, match func(T) bool) (Pair[T], int) {
	removed := 0
	l := p.sides[side]
	itr := p.sides[side].items.Iterator()
	for !itr.Done() {
		_, item, _ := itr.Next()
		if match(item) {
			l = l.delete(p.key(item))
			removed++
		}
	}
	p.sides[side] = l
	return p, removed
}

// Merge replays other into p through the insertion rule and returns the
// result. Keys disabled in other are first removed from p and disabled, so an
// annihilation recorded on either side of a merge holds in the result.
// mapItem, when non-nil, rewrites each replayed item (e.g. to swap in the
// receiver's cached instances).
//
// Merging the same other twice is a no-op the second time.
func (p Pair[T]) Merge(other Pair[T], mapItem func(T) T) Pair[T] {
	ditr := other.disabled.Iterator()
	for !ditr.Done() {
		k, _, _ := ditr.Next()
		p.sides[Primary] = p.sides[Primary].delete(k)
		p.sides[Opposite] = p.sides[Opposite].delete(k)
		p.disabled = p.disabled.Set(k, struct{}{})
	}

	for _, side := range []Side{Primary, Opposite} {
		for _, item := range other.Items(side) {
			if mapItem != nil {
				item = mapItem(item)
			}
			p, _ = p.Insert(side, item)
		}
	}
	return p
}

// Items returns the items on side in insertion order.
func (p Pair[T]) Items(side Side) []T {
	out := make([]T, 0, p.sides[side].items.Len())
	itr := p.sides[side].items.Iterator()
	for !itr.Done() {
		_, item, _ := itr.Next()
		out = append(out, item)
	}
	return out
}

// Len returns the number of items on side.
func (p Pair[T]) Len(side Side) int {
	return p.sides[side].items.Len()
}

// Empty reports whether both sides are empty.
func (p Pair[T]) Empty() bool {
	return p.Len(Primary) == 0 && p.Len(Opposite) == 0
}

// Contains reports whether an item equivalent to item is staged on side.
func (p Pair[T]) Contains(side Side, item T) bool {
	_, ok := p.sides[side].index.Get(p.key(item))
	return ok
}

// Disabled reports whether key has been annihilated in this pair's history.
func (p Pair[T]) Disabled(key string) bool {
	_, ok := p.disabled.Get(key)
	return ok
}

// DisabledKeys returns the number of disabled keys.
func (p Pair[T]) DisabledKeys() int {
	return p.disabled.Len()
}

type keyHasher struct{}

func (keyHasher) Hash(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}

func (keyHasher) Equal(a, b string) bool {
	return a == b
}

type seqComparer struct{}

func (seqComparer) Compare(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
