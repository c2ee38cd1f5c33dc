package testutil

import (
	"fmt"
	"sync"
)

// FixedGenerator returns predetermined values in order.
//
// Example:
//
//	gen := NewFixedGenerator("aaaa1111", "bbbb2222")
//	gen.Generate() // "aaaa1111"
//	gen.Generate() // "bbbb2222"
//	gen.Generate() // panic: all values exhausted
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	values []string
	idx    int
}

// NewFixedGenerator creates a generator that returns values in order.
func NewFixedGenerator(values ...string) *FixedGenerator {
	return &FixedGenerator{values: values}
}

// Generate returns the next predetermined value.
//
// Panics if all values have been consumed. This is a fail-fast approach
// to catch test misconfiguration.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.values) {
		panic("FixedGenerator: all values exhausted")
	}
	v := g.values[g.idx]
	g.idx++
	return v
}

// SequenceGenerator returns prefix followed by a zero-padded counter:
// "sfx00001", "sfx00002", ... It never runs out.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a SequenceGenerator. Prefixes longer than
// three characters make suffixes longer than eight.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next value.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s%05d", g.prefix, g.n)
}
