// Package testutil provides the small set of test fixtures shared across
// lsmkv's packages: a deterministic key generator and an in-memory
// filesystem builder.
package testutil

import (
	"math/rand"

	"github.com/aalhour/lsmkv/internal/vfs"
)

// KeyGen produces a deterministic, PRNG-seeded sequence of distinct int64
// keys for bulk-insert and false-positive-rate tests.
type KeyGen struct {
	rnd  *rand.Rand
	seen map[int64]bool
}

// NewKeyGen creates a KeyGen seeded with seed, for reproducible test runs.
func NewKeyGen(seed int64) *KeyGen {
	return &KeyGen{rnd: rand.New(rand.NewSource(seed)), seen: make(map[int64]bool)}
}

// Next returns a key not previously returned by this generator.
func (g *KeyGen) Next() int64 {
	for {
		k := g.rnd.Int63()
		if g.rnd.Intn(2) == 0 {
			k = -k
		}
		if !g.seen[k] {
			g.seen[k] = true
			return k
		}
	}
}

// Distinct returns n keys not previously returned by this generator, in
// generation order.
func (g *KeyGen) Distinct(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = g.Next()
	}
	return out
}

// NewFixtureFS returns a fresh in-memory filesystem rooted at dir, for
// tests that need a vfs.FS without touching disk.
func NewFixtureFS(dir string) (vfs.FS, string) {
	fsys := vfs.NewMem()
	return fsys, dir
}
