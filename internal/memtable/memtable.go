package memtable

import (
	"github.com/aalhour/lsmkv/internal/dbformat"
)

// MemTable is the sole target of client writes between flushes: a
// capacity-bounded ordered map from dbformat.Key to dbformat.Value,
// including tombstones.
type MemTable struct {
	list     *skipList
	capacity int
}

// New creates an empty MemTable bounded at capacity entries.
func New(capacity int) *MemTable {
	if capacity < 1 {
		capacity = 1
	}
	return &MemTable{list: newSkipList(), capacity: capacity}
}

// CapacityFromMB converts a megabyte budget into an entry count, at
// dbformat.EntrySize bytes per entry.
func CapacityFromMB(mb int) int {
	return (mb * 1024 * 1024) / dbformat.EntrySize
}

// Len returns the number of entries currently held.
func (m *MemTable) Len() int { return m.list.Len() }

// Capacity returns the configured entry-count bound.
func (m *MemTable) Capacity() int { return m.capacity }

// WouldOverflow reports whether one more Put (for a key not already
// present) would exceed capacity. The engine facade must flush before
// such a Put lands, so the new entry is the only one in the next
// memtable.
func (m *MemTable) WouldOverflow(key dbformat.Key) bool {
	if _, exists := m.list.Get(key); exists {
		return false
	}
	return m.list.Len() >= m.capacity
}

// Put inserts or overwrites key's value, including tombstone writes.
// REQUIRES: !m.WouldOverflow(key) — the caller flushes first.
func (m *MemTable) Put(key dbformat.Key, value dbformat.Value) {
	m.list.Put(key, value)
}

// Get returns the value for key and whether it was found at all
// (tombstones are reported as found with value == dbformat.ValueMin; the
// caller normalizes that to "absent").
func (m *MemTable) Get(key dbformat.Key) (dbformat.Value, bool) {
	return m.list.Get(key)
}

// Scan returns every entry with lo <= key <= hi, in ascending key order,
// tombstones included (the caller filters them).
func (m *MemTable) Scan(lo, hi dbformat.Key) []dbformat.Entry {
	var out []dbformat.Entry
	for _, p := range m.list.ascending() {
		if p.key < lo {
			continue
		}
		if p.key > hi {
			break
		}
		out = append(out, dbformat.Entry{Key: p.key, Value: p.value})
	}
	return out
}

// DrainSorted returns every entry in ascending key order for a flush. The
// memtable itself is not modified; the caller (the engine facade) drops
// its reference to this MemTable once the flush's run is durable.
func (m *MemTable) DrainSorted() []dbformat.Entry {
	pairs := m.list.ascending()
	out := make([]dbformat.Entry, len(pairs))
	for i, p := range pairs {
		out[i] = dbformat.Entry{Key: p.key, Value: p.value}
	}
	return out
}
