package disjoint

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type triple struct {
	s, p, o string
	remote  bool
}

func tripleKey(t triple) string {
	return t.s + "\x00" + t.p + "\x00" + t.o
}

func newPair() Pair[triple] {
	return New(tripleKey)
}

var red = triple{s: "a", p: "color", o: "Red"}

func TestInsertResults(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(Pair[triple]) Pair[triple]
		side     Side
		item     triple
		expected Result
		primary  int
		opposite int
	}{
		{
			name:     "added to empty pair",
			setup:    func(p Pair[triple]) Pair[triple] { return p },
			side:     Primary,
			item:     red,
			expected: Added,
			primary:  1,
		},
		{
			name: "duplicate on same side",
			setup: func(p Pair[triple]) Pair[triple] {
				p, _ = p.Insert(Primary, red)
				return p
			},
			side:     Primary,
			item:     red,
			expected: Duplicate,
			primary:  1,
		},
		{
			name: "cancels counterpart",
			setup: func(p Pair[triple]) Pair[triple] {
				p, _ = p.Insert(Primary, red)
				return p
			},
			side:     Opposite,
			item:     red,
			expected: Cancelled,
		},
		{
			name: "cancels in reverse order",
			setup: func(p Pair[triple]) Pair[triple] {
				p, _ = p.Insert(Opposite, red)
				return p
			},
			side:     Primary,
			item:     red,
			expected: Cancelled,
		},
		{
			name: "disabled key stays cancelled",
			setup: func(p Pair[triple]) Pair[triple] {
				p, _ = p.Insert(Primary, red)
				p, _ = p.Insert(Opposite, red)
				return p
			},
			side:     Primary,
			item:     red,
			expected: Cancelled,
		},
		{
			name: "different object is independent",
			setup: func(p Pair[triple]) Pair[triple] {
				p, _ = p.Insert(Opposite, red)
				return p
			},
			side:     Primary,
			item:     triple{s: "a", p: "color", o: "Blue"},
			expected: Added,
			primary:  1,
			opposite: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.setup(newPair())
			p, res := p.Insert(tt.side, tt.item)

			assert.Equal(t, tt.expected, res)
			assert.Equal(t, tt.primary, p.Len(Primary))
			assert.Equal(t, tt.opposite, p.Len(Opposite))
		})
	}
}

func TestInsertIsPure(t *testing.T) {
	before := newPair()
	before, _ = before.Insert(Primary, red)

	after, res := before.Insert(Opposite, red)
	require.Equal(t, Cancelled, res)

	assert.Equal(t, 1, before.Len(Primary), "receiver must not change")
	assert.False(t, before.Disabled(tripleKey(red)))
	assert.Equal(t, 0, after.Len(Primary))
	assert.True(t, after.Disabled(tripleKey(red)))
}

func TestIncidentalFieldsDoNotAffectEquivalence(t *testing.T) {
	p := newPair()
	p, _ = p.Insert(Primary, red)

	remote := red
	remote.remote = true
	p, res := p.Insert(Opposite, remote)

	assert.Equal(t, Cancelled, res, "remote flag is not part of the key")
	assert.True(t, p.Empty())
}

func TestInsertNTimesYieldsOneEntry(t *testing.T) {
	p := newPair()
	for i := 0; i < 5; i++ {
		p, _ = p.Insert(Primary, red)
	}
	assert.Equal(t, []triple{red}, p.Items(Primary))
}

func TestItemsPreserveInsertionOrder(t *testing.T) {
	p := newPair()
	var want []triple
	for i := 0; i < 50; i++ {
		item := triple{s: "a", p: "n", o: fmt.Sprint(i)}
		want = append(want, item)
		p, _ = p.Insert(Primary, item)
	}

	// cancel a few in the middle
	p, _ = p.Insert(Opposite, want[10])
	p, _ = p.Insert(Opposite, want[20])
	want = append(append(append([]triple{}, want[:10]...), want[11:20]...), want[21:]...)

	assert.Equal(t, want, p.Items(Primary))
	assert.Equal(t, 0, p.Len(Opposite))
}

func TestInsertAll(t *testing.T) {
	blue := triple{s: "a", p: "color", o: "Blue"}
	p, results := newPair().InsertAll(Primary, []triple{red, blue, red})

	assert.Equal(t, []Result{Added, Added, Duplicate}, results)
	assert.Equal(t, []triple{red, blue}, p.Items(Primary))
}

func TestRemove(t *testing.T) {
	blue := triple{s: "a", p: "color", o: "Blue"}
	p, _ := newPair().InsertAll(Opposite, []triple{red, blue})

	p, n := p.Remove(Opposite, func(t triple) bool { return t.o == "Red" })
	assert.Equal(t, 1, n)
	assert.Equal(t, []triple{blue}, p.Items(Opposite))

	// Remove is not a cancellation: red can be staged again.
	p, res := p.Insert(Primary, red)
	assert.Equal(t, Added, res)
	assert.False(t, p.Disabled(tripleKey(red)))
}

func TestContains(t *testing.T) {
	p, _ := newPair().Insert(Primary, red)

	assert.True(t, p.Contains(Primary, red))
	assert.False(t, p.Contains(Opposite, red))
}

func TestMergeCancelsAcrossPairs(t *testing.T) {
	a, _ := newPair().Insert(Primary, red)
	b, _ := newPair().Insert(Opposite, red)

	merged := a.Merge(b, nil)

	assert.True(t, merged.Empty())
	assert.True(t, merged.Disabled(tripleKey(red)))
	assert.Equal(t, 1, a.Len(Primary), "receiver must not change")
}

func TestMergeCarriesDisabledKeys(t *testing.T) {
	// b annihilated red internally; merging it into a that still adds red
	// must drop red as well.
	a, _ := newPair().Insert(Primary, red)
	b, _ := newPair().Insert(Primary, red)
	b, _ = b.Insert(Opposite, red)
	require.True(t, b.Empty())

	merged := a.Merge(b, nil)
	assert.True(t, merged.Empty())

	merged, res := merged.Insert(Primary, red)
	assert.Equal(t, Cancelled, res)
	assert.True(t, merged.Empty())
}

func TestMergeIsIdempotent(t *testing.T) {
	blue := triple{s: "a", p: "color", o: "Blue"}
	green := triple{s: "b", p: "color", o: "Green"}

	a, _ := newPair().Insert(Primary, red)
	b, _ := newPair().InsertAll(Primary, []triple{blue, red})
	b, _ = b.Insert(Opposite, green)

	once := a.Merge(b, nil)
	twice := once.Merge(b, nil)

	assert.Equal(t, once.Items(Primary), twice.Items(Primary))
	assert.Equal(t, once.Items(Opposite), twice.Items(Opposite))
	assert.Equal(t, once.DisabledKeys(), twice.DisabledKeys())
	assert.Equal(t, []triple{red, blue}, once.Items(Primary))
	assert.Equal(t, []triple{green}, once.Items(Opposite))
}

func TestMergeMapsItems(t *testing.T) {
	b, _ := newPair().Insert(Primary, red)

	merged := newPair().Merge(b, func(t triple) triple {
		t.remote = true
		return t
	})

	items := merged.Items(Primary)
	require.Len(t, items, 1)
	assert.True(t, items[0].remote)
}

func TestSideAndResultStrings(t *testing.T) {
	assert.Equal(t, "primary", Primary.String())
	assert.Equal(t, "opposite", Opposite.String())
	assert.Equal(t, Opposite, Primary.Other())
	assert.Equal(t, "cancelled", Cancelled.String())
	assert.Equal(t, "Result(9)", Result(9).String())
}
