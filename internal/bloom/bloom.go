// Package bloom implements the per-run Bloom filter: a fixed-size bitset
// built once at flush/compaction time and consulted before a run's pages
// are probed on a point lookup. It uses the classical multiple-
// independent-hash-functions construction, deriving each of the k probes
// by seeding the shared 64-bit hash primitive differently.
package bloom

import (
	"encoding/binary"
	"math"

	"github.com/aalhour/lsmkv/internal/checksum"
)

// MaxProbes caps the number of hash functions regardless of configured
// bits-per-entry, bounding the cost of a single probe.
const MaxProbes = 30

// expectedBits returns m, the bitset size in bits, for n entries at
// bitsPerEntry density, rounded up to a whole number of bytes.
func expectedBits(n int, bitsPerEntry int) int {
	if n <= 0 || bitsPerEntry <= 0 {
		return 0
	}
	m := n * bitsPerEntry
	return ((m + 7) / 8) * 8
}

// numProbes returns k = ceil(m * ln2 / n), the number of hash functions,
// capped at MaxProbes and floored at 1.
func numProbes(m, n int) int {
	if n <= 0 || m <= 0 {
		return 0
	}
	k := int(math.Ceil(float64(m) * math.Ln2 / float64(n)))
	if k < 1 {
		k = 1
	}
	if k > MaxProbes {
		k = MaxProbes
	}
	return k
}

// Filter is an immutable, built Bloom filter bitset.
type Filter struct {
	bits   []byte // len == ceil(m/8); nil means "no filter, always true"
	m      int    // bit count
	k      int    // probe count
	n      int    // entries inserted (for size-mismatch detection on reopen)
	bitsPE int    // bits-per-entry this filter was built at
}

// Builder accumulates keys and produces a Filter.
type Builder struct {
	bitsPerEntry int
	keys         []int64
}

// NewBuilder creates a filter builder targeting bitsPerEntry bits per
// entry, the knob callers use to trade filter size against false-positive
// rate.
func NewBuilder(bitsPerEntry int) *Builder {
	return &Builder{bitsPerEntry: bitsPerEntry}
}

// Add records a key to be inserted when Finish is called.
func (b *Builder) Add(key int64) {
	b.keys = append(b.keys, key)
}

// Len reports how many keys have been added so far.
func (b *Builder) Len() int {
	return len(b.keys)
}

// Finish builds the filter bitset from every key added so far.
// A zero-entry builder produces a Filter with no backing bits; MayContain
// on it unconditionally returns true, since a run with no filter must
// never produce a false negative by skipping a probe it can't answer.
func (b *Builder) Finish() *Filter {
	n := len(b.keys)
	if n == 0 || b.bitsPerEntry <= 0 {
		return &Filter{n: n, bitsPE: b.bitsPerEntry}
	}

	m := expectedBits(n, b.bitsPerEntry)
	k := numProbes(m, n)
	f := &Filter{
		bits:   make([]byte, m/8),
		m:      m,
		k:      k,
		n:      n,
		bitsPE: b.bitsPerEntry,
	}
	for _, key := range b.keys {
		f.insert(key)
	}
	return f
}

func keyBytes(key int64) [8]byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(key))
	return buf
}

func (f *Filter) insert(key int64) {
	buf := keyBytes(key)
	for seed := range uint64(f.k) {
		bit := int(checksum.SeededHash(buf[:], seed) % uint64(f.m))
		f.bits[bit/8] |= 1 << (bit % 8)
	}
}

// MayContain returns false only if key is definitely absent from the run
// the filter was built for (no false negatives). A true return may be a
// false positive at the classical rate for (n, bitsPerEntry, k).
func (f *Filter) MayContain(key int64) bool {
	if f == nil || f.bits == nil {
		return true
	}
	buf := keyBytes(key)
	for seed := range uint64(f.k) {
		bit := int(checksum.SeededHash(buf[:], seed) % uint64(f.m))
		if f.bits[bit/8]&(1<<(bit%8)) == 0 {
			return false
		}
	}
	return true
}

// EntryCount returns the number of keys the filter was built over.
func (f *Filter) EntryCount() int { return f.n }

// BitsPerEntry returns the density the filter was built at.
func (f *Filter) BitsPerEntry() int { return f.bitsPE }

// Bytes returns the on-disk representation: a little-endian header of
// (entryCount uint64, bitsPerEntry uint32, k uint32) followed by the raw
// bitset. Used by internal/run to persist the filter alongside a run.
func (f *Filter) Bytes() []byte {
	out := make([]byte, 16+len(f.bits))
	binary.LittleEndian.PutUint64(out[0:8], uint64(f.n))
	binary.LittleEndian.PutUint32(out[8:12], uint32(f.bitsPE))
	binary.LittleEndian.PutUint32(out[12:16], uint32(f.k))
	copy(out[16:], f.bits)
	return out
}

// Decode reconstructs a Filter from bytes previously produced by Bytes.
// Returns an error if the recorded entry count / bits-per-entry no longer
// matches the expected bitset length — a guard against silently
// miscomputing a filter built under a different bits-per-entry setting.
func Decode(data []byte) (*Filter, error) {
	if len(data) < 16 {
		return nil, ErrCorruptFilter
	}
	n := int(binary.LittleEndian.Uint64(data[0:8]))
	bitsPE := int(binary.LittleEndian.Uint32(data[8:12]))
	k := int(binary.LittleEndian.Uint32(data[12:16]))
	bits := data[16:]

	if n == 0 {
		return &Filter{}, nil
	}
	wantBits := expectedBits(n, bitsPE)
	if wantBits/8 != len(bits) {
		return nil, ErrFilterSizeMismatch
	}
	return &Filter{bits: bits, m: wantBits, k: k, n: n, bitsPE: bitsPE}, nil
}
