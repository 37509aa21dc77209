package lsmkv

import (
	"fmt"

	"github.com/aalhour/lsmkv/internal/bufferpool"
	"github.com/aalhour/lsmkv/internal/compaction"
	"github.com/aalhour/lsmkv/internal/compression"
	"github.com/aalhour/lsmkv/internal/memtable"
	"github.com/aalhour/lsmkv/internal/run"
)

// Options holds the store's tunable configuration: one getter and one
// setter per option, each setter validating its argument at call time and
// returning ErrInvalidOption on failure rather than deferring the check
// to Open.
type Options struct {
	memtableCapacity int // entries

	sizeRatio int // T, the per-level growth factor

	runShape   run.Shape
	searchMode run.SearchMode

	bufferPoolEnabled  bool
	bufferPoolCapacity int // frames
	bufferPoolInitial  int // frames, seeds the starting directory depth

	compactionPolicy  compaction.Kind
	hybridLastLevel   int // only consulted when compactionPolicy == compaction.Hybrid

	bloomEnabled      bool
	bloomBitsPerEntry int

	pageCompression compression.Type

	// flushOnClose controls whether Close drains the memtable into a
	// final run before releasing resources. Defaults to true so data
	// written since the last flush survives a clean shutdown.
	flushOnClose bool
}

// DefaultOptions returns a ready-to-use default configuration: array
// runs, linear in-page search, tiered compaction at a 4x size ratio,
// Bloom filters on at 10 bits/entry, and a 64MB buffer pool.
func DefaultOptions() *Options {
	return &Options{
		memtableCapacity:   memtable.CapacityFromMB(4),
		sizeRatio:          4,
		runShape:           run.Array,
		searchMode:         run.LinearScan,
		bufferPoolEnabled:  true,
		bufferPoolCapacity: bufferpool.CapacityFromMB(64),
		bufferPoolInitial:  16,
		compactionPolicy:   compaction.Tiered,
		hybridLastLevel:    3,
		bloomEnabled:       true,
		bloomBitsPerEntry:  10,
		pageCompression:    compression.NoCompression,
		flushOnClose:       true,
	}
}

// MemtableCapacity returns the entry-count bound on the memtable.
func (o *Options) MemtableCapacity() int { return o.memtableCapacity }

// SetMemtableCapacity sets the memtable's entry-count bound directly.
func (o *Options) SetMemtableCapacity(entries int) error {
	if entries < 1 {
		return fmt.Errorf("%w: memtable capacity must be >= 1 entry", ErrInvalidOption)
	}
	o.memtableCapacity = entries
	return nil
}

// SetMemtableCapacityMB sets the memtable's bound from a megabyte budget,
// converting at 16 bytes per entry.
func (o *Options) SetMemtableCapacityMB(mb int) error {
	if mb < 1 {
		return fmt.Errorf("%w: memtable capacity must be >= 1 MB", ErrInvalidOption)
	}
	return o.SetMemtableCapacity(memtable.CapacityFromMB(mb))
}

// SizeRatio returns T, the per-level growth factor.
func (o *Options) SizeRatio() int { return o.sizeRatio }

// SetSizeRatio sets T; it must be at least 2.
func (o *Options) SetSizeRatio(t int) error {
	if t < 2 {
		return fmt.Errorf("%w: size ratio must be >= 2", ErrInvalidOption)
	}
	o.sizeRatio = t
	return nil
}

// RunShape returns the configured on-disk run shape.
func (o *Options) RunShape() run.Shape { return o.runShape }

// SetRunShape selects array or B-tree runs.
func (o *Options) SetRunShape(shape run.Shape) error {
	if shape != run.Array && shape != run.BTree {
		return fmt.Errorf("%w: unknown run shape %d", ErrInvalidOption, shape)
	}
	o.runShape = shape
	return nil
}

// SearchMode returns the configured in-page search algorithm.
func (o *Options) SearchMode() run.SearchMode { return o.searchMode }

// SetSearchMode selects the linear-scan or binary-search in-page probe.
func (o *Options) SetSearchMode(mode run.SearchMode) error {
	if mode != run.LinearScan && mode != run.BinarySearch {
		return fmt.Errorf("%w: unknown search mode %d", ErrInvalidOption, mode)
	}
	o.searchMode = mode
	return nil
}

// BufferPoolEnabled reports whether page caching is active.
func (o *Options) BufferPoolEnabled() bool { return o.bufferPoolEnabled }

// SetBufferPoolEnabled toggles the buffer pool; disabling it makes every
// page read a pass-through disk read.
func (o *Options) SetBufferPoolEnabled(enabled bool) error {
	o.bufferPoolEnabled = enabled
	return nil
}

// BufferPoolCapacity returns the pool's frame budget.
func (o *Options) BufferPoolCapacity() int { return o.bufferPoolCapacity }

// SetBufferPoolCapacity sets the pool's frame budget directly.
func (o *Options) SetBufferPoolCapacity(frames int) error {
	if frames < 1 {
		return fmt.Errorf("%w: buffer pool capacity must be >= 1 frame", ErrInvalidOption)
	}
	o.bufferPoolCapacity = frames
	return nil
}

// SetBufferPoolCapacityMB sets the pool's frame budget from a megabyte
// budget, converted at page.Size bytes per frame.
func (o *Options) SetBufferPoolCapacityMB(mb int) error {
	if mb < 1 {
		return fmt.Errorf("%w: buffer pool capacity must be >= 1 MB", ErrInvalidOption)
	}
	return o.SetBufferPoolCapacity(bufferpool.CapacityFromMB(mb))
}

// BufferPoolInitialSize returns the frame count the pool's starting
// directory is sized to hold without an initial split.
func (o *Options) BufferPoolInitialSize() int { return o.bufferPoolInitial }

// SetBufferPoolInitialSize sets the "initial size" parameter that seeds
// the pool's starting global depth.
func (o *Options) SetBufferPoolInitialSize(frames int) error {
	if frames < 1 {
		return fmt.Errorf("%w: buffer pool initial size must be >= 1 frame", ErrInvalidOption)
	}
	o.bufferPoolInitial = frames
	return nil
}

// SetBufferPoolInitialSizeMB sets the initial-size parameter from a
// megabyte budget.
func (o *Options) SetBufferPoolInitialSizeMB(mb int) error {
	if mb < 1 {
		return fmt.Errorf("%w: buffer pool initial size must be >= 1 MB", ErrInvalidOption)
	}
	return o.SetBufferPoolInitialSize(bufferpool.CapacityFromMB(mb))
}

// CompactionPolicy returns the configured compaction policy.
func (o *Options) CompactionPolicy() compaction.Kind { return o.compactionPolicy }

// SetCompactionPolicy selects none, tiered, leveled, or hybrid (Dostoevsky).
func (o *Options) SetCompactionPolicy(kind compaction.Kind) error {
	switch kind {
	case compaction.None, compaction.Tiered, compaction.Leveled, compaction.Hybrid:
		o.compactionPolicy = kind
		return nil
	default:
		return fmt.Errorf("%w: unknown compaction policy %d", ErrInvalidOption, kind)
	}
}

// HybridLastLevel returns the shallowest level index treated as leveled
// under the Hybrid (Dostoevsky) policy (every deeper level is leveled
// too); ignored by the other policies.
func (o *Options) HybridLastLevel() int { return o.hybridLastLevel }

// SetHybridLastLevel sets the last-level index for the Hybrid policy.
func (o *Options) SetHybridLastLevel(level int) error {
	if level < 0 {
		return fmt.Errorf("%w: hybrid last level must be >= 0", ErrInvalidOption)
	}
	o.hybridLastLevel = level
	return nil
}

// BloomEnabled reports whether Bloom filters are built and consulted.
func (o *Options) BloomEnabled() bool { return o.bloomEnabled }

// SetBloomEnabled gates filter construction and consultation.
func (o *Options) SetBloomEnabled(enabled bool) error {
	if enabled && o.bloomBitsPerEntry < 1 {
		return fmt.Errorf("%w: bloom filters require bits-per-entry >= 1", ErrInvalidOption)
	}
	o.bloomEnabled = enabled
	return nil
}

// BloomBitsPerEntry returns the configured filter density.
func (o *Options) BloomBitsPerEntry() int { return o.bloomBitsPerEntry }

// SetBloomBitsPerEntry sets the filter density; 0 is a usage error while
// filters are enabled, since a zero-bit filter cannot be built.
func (o *Options) SetBloomBitsPerEntry(bits int) error {
	if bits < 1 {
		if o.bloomEnabled {
			return fmt.Errorf("%w: bits-per-entry must be >= 1 while bloom filters are enabled", ErrInvalidOption)
		}
	}
	o.bloomBitsPerEntry = bits
	return nil
}

// PageCompression returns the configured per-page compression codec.
func (o *Options) PageCompression() compression.Type { return o.pageCompression }

// SetPageCompression selects none, snappy, lz4, or zstd page compression.
func (o *Options) SetPageCompression(t compression.Type) error {
	switch t {
	case compression.NoCompression, compression.Snappy, compression.LZ4, compression.Zstd:
		o.pageCompression = t
		return nil
	default:
		return fmt.Errorf("%w: unknown page compression codec %d", ErrInvalidOption, t)
	}
}

// FlushOnClose reports whether Close drains the memtable before
// releasing resources.
func (o *Options) FlushOnClose() bool { return o.flushOnClose }

// SetFlushOnClose toggles whether Close flushes the memtable first.
func (o *Options) SetFlushOnClose(flush bool) error {
	o.flushOnClose = flush
	return nil
}
