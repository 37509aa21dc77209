// Package run implements the two immutable on-disk sorted-run shapes: a
// flat sorted array and a bottom-up static B-tree, both addressed at page
// granularity through internal/page and cached through internal/bufferpool.
package run

import (
	"errors"

	"github.com/aalhour/lsmkv/internal/bloom"
	"github.com/aalhour/lsmkv/internal/dbformat"
	"github.com/aalhour/lsmkv/internal/page"
)

// ErrCorruptRun reports a run file whose size is not a page-size multiple,
// or whose recorded metadata is inconsistent with it.
var ErrCorruptRun = errors.New("run: corrupt run file")

// Shape distinguishes the two physical layouts a run can take.
type Shape int

const (
	Array Shape = iota
	BTree
)

func (s Shape) String() string {
	if s == BTree {
		return "btree"
	}
	return "array"
}

// SearchMode selects how a page is probed once loaded.
type SearchMode int

const (
	LinearScan SearchMode = iota
	BinarySearch
)

// Meta describes a run's identity and summary statistics. ID and Level
// are recovered from the run's filename on directory scan; the rest is
// recovered from the run's sidecar metadata file, since a directory scan
// alone yields only level, id and shape.
type Meta struct {
	ID         uint64
	Level      int
	Shape      Shape
	EntryCount int
	MinKey     int64
	MaxKey     int64
	Pages      int // leaf/entry page count

	// InnerPages and InnerLevelPages apply to B-tree runs only.
	InnerPages      int
	InnerLevelPages []int
}

// ByteSize returns the on-disk size of the run's data file(s), without
// opening them: pages are always exactly page.Size bytes, so this is
// exact for both shapes. Used by the level manifest to compute
// level_byte_size without paying for an Open.
func (m Meta) ByteSize() int64 {
	return int64(m.Pages+m.InnerPages) * page.Size
}

// Cursor yields a run's entries in ascending key order. Used by range
// scans and by the compaction engine's k-way merge.
type Cursor interface {
	// Next advances to the next entry and reports whether one was found.
	Next() (dbformat.Entry, bool)
	Close() error
}

// Run is the capability set the compaction engine and the engine facade
// depend on; both run shapes satisfy it so callers never branch on Shape
// except when choosing which builder to invoke.
type Run interface {
	ID() uint64
	Level() int
	Shape() Shape
	EntryCount() int
	MinKey() int64
	MaxKey() int64
	ByteSize() int64

	// Get returns the value for key and whether it was present at all.
	Get(key int64) (dbformat.Value, bool, error)

	// Scan returns every entry with lo <= key <= hi, ascending.
	Scan(lo, hi int64) ([]dbformat.Entry, error)

	// Cursor streams every entry in ascending order, used for compaction.
	Cursor() (Cursor, error)

	// MayContain consults the run's Bloom filter, if any; a run opened
	// with no filter always reports true.
	MayContain(key int64) bool

	// Close releases any open file handles. It does not delete files.
	Close() error
}

// filterOrAlwaysTrue adapts an optional filter to the always-true default
// for a disabled or empty filter.
func filterOrAlwaysTrue(f *bloom.Filter) *bloom.Filter {
	if f == nil {
		return bloom.NewBuilder(0).Finish()
	}
	return f
}
