package run

import (
	"errors"
	"fmt"
	"io"

	"github.com/aalhour/lsmkv/internal/bufferpool"
	"github.com/aalhour/lsmkv/internal/dbformat"
	"github.com/aalhour/lsmkv/internal/page"
	"github.com/aalhour/lsmkv/internal/vfs"
)

// cacheID distinguishes a B-tree run's leaf and inner files in the shared
// buffer pool, which keys frames by (run id, offset): a run's id is
// shifted left one bit, with the low bit tagging which file an offset
// belongs to. Array runs always use the leaf tag since they have one file.
func cacheID(runID uint64, inner bool) uint64 {
	id := runID << 1
	if inner {
		id |= 1
	}
	return id
}

// CacheIDs returns every buffer-pool cache id a run of the given shape
// occupies (one for an array run, two — leaf and inner — for a B-tree
// run). Used by the compaction engine to invalidate cached pages of an
// input run after it is unlinked, so its page-number keys cannot alias a
// future run that reuses the same offsets.
func CacheIDs(id uint64, shape Shape) []uint64 {
	if shape == BTree {
		return []uint64{cacheID(id, false), cacheID(id, true)}
	}
	return []uint64{cacheID(id, false)}
}

// pageSource reads fixed-size pages through the buffer pool, falling back
// to the underlying random-access file on a miss.
type pageSource struct {
	fs     vfs.FS
	file   vfs.RandomAccessFile
	pool   *bufferpool.Pool
	cache  uint64 // cacheID for this file
}

func openPageSource(fsys vfs.FS, filePath string, pool *bufferpool.Pool, cache uint64) (*pageSource, error) {
	f, err := fsys.OpenRandomAccess(filePath)
	if err != nil {
		return nil, err
	}
	info, err := fsys.Stat(filePath)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.Size()%page.Size != 0 {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s is %d bytes, not a whole number of pages", ErrCorruptRun, filePath, info.Size())
	}
	return &pageSource{fs: fsys, file: f, pool: pool, cache: cache}, nil
}

func (ps *pageSource) fetch(pageIndex int) ([]byte, error) {
	key := bufferpool.Key{RunID: ps.cache, Offset: uint64(pageIndex) * page.Size}
	if ps.pool != nil {
		if buf, ok := ps.pool.Get(key); ok {
			return buf, nil
		}
	}
	var buf []byte
	if ps.pool != nil {
		buf = ps.pool.AcquirePageBuffer()
	} else {
		buf = make([]byte, page.Size)
	}
	n, err := ps.file.ReadAt(buf, int64(pageIndex)*page.Size)
	if err != nil && !(errors.Is(err, io.EOF) && n == page.Size) {
		return nil, err
	}
	if ps.pool != nil {
		ps.pool.Insert(key, buf)
	}
	return buf, nil
}

func (ps *pageSource) close() error { return ps.file.Close() }

// entriesPage decodes the count valid entries (<= page.EntriesPerPage) out
// of page index i; trailing zero-padding in the final page is discarded by
// the caller, which knows the run's total entry count.
func entriesPage(ps *pageSource, i, validCount int) ([]dbformat.Entry, error) {
	buf, err := ps.fetch(i)
	if err != nil {
		return nil, err
	}
	entries, err := page.DecodeEntryPage(buf)
	if err != nil {
		return nil, err
	}
	if validCount < 0 || validCount > len(entries) {
		return nil, ErrCorruptRun
	}
	return entries[:validCount], nil
}

// delimitersPage decodes the count valid delimiters out of inner page i.
func delimitersPage(ps *pageSource, i, validCount int) ([]int64, error) {
	buf, err := ps.fetch(i)
	if err != nil {
		return nil, err
	}
	delims, err := page.DecodeDelimiterPage(buf)
	if err != nil {
		return nil, err
	}
	if validCount < 0 || validCount > len(delims) {
		return nil, ErrCorruptRun
	}
	return delims[:validCount], nil
}

// lowerBound returns the index of the first entry with Key >= target,
// using the configured search mode; returns len(entries) if none match.
func lowerBound(entries []dbformat.Entry, target int64, mode SearchMode) int {
	if mode == BinarySearch {
		lo, hi := 0, len(entries)
		for lo < hi {
			mid := (lo + hi) / 2
			if entries[mid].Key < target {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		return lo
	}
	for i, e := range entries {
		if e.Key >= target {
			return i
		}
	}
	return len(entries)
}
