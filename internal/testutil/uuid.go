package testutil

import (
	"fmt"
	"sync"
)

// SequentialUUIDGenerator returns predictable uuids:
//
//	00000000-0000-4000-8000-000000000001
//	00000000-0000-4000-8000-000000000002
//	...
//
// The same scenario run with a fresh generator binds the same wildcards to
// the same uuids, which keeps golden files byte-identical.
//
// Thread-safety: all methods are safe for concurrent use.
type SequentialUUIDGenerator struct {
	mu   sync.Mutex
	next int64
}

// NewSequentialUUIDGenerator creates a generator whose first uuid ends in 1.
func NewSequentialUUIDGenerator() *SequentialUUIDGenerator {
	return &SequentialUUIDGenerator{}
}

// Generate returns the next uuid.
//
// Implements ir.UUIDGenerator.
func (g *SequentialUUIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return SequentialUUID(g.next)
}

// Reset restarts the sequence.
func (g *SequentialUUIDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next = 0
}

// SequentialUUID returns the n-th uuid of the sequence.
func SequentialUUID(n int64) string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012x", n)
}
