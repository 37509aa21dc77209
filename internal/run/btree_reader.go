package run

import (
	"path"

	"github.com/aalhour/lsmkv/internal/bloom"
	"github.com/aalhour/lsmkv/internal/bufferpool"
	"github.com/aalhour/lsmkv/internal/dbformat"
	"github.com/aalhour/lsmkv/internal/page"
	"github.com/aalhour/lsmkv/internal/vfs"
)

type btreeRun struct {
	meta   Meta
	filter *bloom.Filter
	mode   SearchMode
	leaf   *pageSource
	inner  *pageSource
	levels treeLevels
}

// OpenBTree opens an existing B-tree-shaped run for reads.
func OpenBTree(fsys vfs.FS, dir string, m Meta, pool *bufferpool.Pool, mode SearchMode) (Run, error) {
	filter, err := ReadFilter(fsys, dir, m.Level, m.ID)
	if err != nil {
		return nil, err
	}
	levels, err := readTreeLevels(fsys, dir, m.Level, m.ID)
	if err != nil {
		return nil, err
	}
	leaf, err := openPageSource(fsys, path.Join(dir, LeafFilename(m.Level, m.ID)), pool, cacheID(m.ID, false))
	if err != nil {
		return nil, err
	}
	inner, err := openPageSource(fsys, path.Join(dir, InnerFilename(m.Level, m.ID)), pool, cacheID(m.ID, true))
	if err != nil {
		_ = leaf.close()
		return nil, err
	}
	return &btreeRun{meta: m, filter: filterOrAlwaysTrue(filter), mode: mode, leaf: leaf, inner: inner, levels: levels}, nil
}

func (r *btreeRun) ID() uint64      { return r.meta.ID }
func (r *btreeRun) Level() int      { return r.meta.Level }
func (r *btreeRun) Shape() Shape    { return BTree }
func (r *btreeRun) EntryCount() int { return r.meta.EntryCount }
func (r *btreeRun) MinKey() int64  { return r.meta.MinKey }
func (r *btreeRun) MaxKey() int64  { return r.meta.MaxKey }
func (r *btreeRun) ByteSize() int64 {
	return int64(r.meta.Pages+r.meta.InnerPages) * page.Size
}
func (r *btreeRun) MayContain(key int64) bool { return r.filter.MayContain(key) }

func (r *btreeRun) Close() error {
	errLeaf := r.leaf.close()
	errInner := r.inner.close()
	if errLeaf != nil {
		return errLeaf
	}
	return errInner
}

func (r *btreeRun) leafValidCount(i int) int {
	if i < r.meta.Pages-1 {
		return page.EntriesPerPage
	}
	return r.meta.EntryCount - i*page.EntriesPerPage
}

// findLeaf descends from the root, binary-searching delimiters at each
// level to pick a child, and returns the leaf page index that may hold
// target.
func (r *btreeRun) findLeaf(target int64) (int, error) {
	numLevels := len(r.levels.Offsets)
	if numLevels == 0 {
		return 0, nil
	}
	pagePos := 0
	for level := numLevels - 1; level >= 0; level-- {
		offsets := r.levels.Offsets[level]
		count := page.DelimitersPerPage
		if pagePos == len(offsets)-1 {
			count = r.levels.TailCounts[level]
		}
		delims, err := delimitersPage(r.inner, offsets[pagePos], count)
		if err != nil {
			return 0, err
		}
		child := countLessEqual(delims, target) - 1
		if child < 0 {
			child = 0
		}
		pagePos = pagePos*page.DelimitersPerPage + child
	}
	return pagePos, nil
}

// countLessEqual returns how many entries of the ascending slice are <= target.
func countLessEqual(delims []int64, target int64) int {
	lo, hi := 0, len(delims)
	for lo < hi {
		mid := (lo + hi) / 2
		if delims[mid] <= target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func (r *btreeRun) Get(key int64) (dbformat.Value, bool, error) {
	if r.meta.Pages == 0 || key < r.meta.MinKey || key > r.meta.MaxKey {
		return 0, false, nil
	}
	leafIdx, err := r.findLeaf(key)
	if err != nil {
		return 0, false, err
	}
	entries, err := entriesPage(r.leaf, leafIdx, r.leafValidCount(leafIdx))
	if err != nil {
		return 0, false, err
	}
	idx := lowerBound(entries, key, r.mode)
	if idx < len(entries) && entries[idx].Key == key {
		return entries[idx].Value, true, nil
	}
	return 0, false, nil
}

func (r *btreeRun) Scan(lo, hi int64) ([]dbformat.Entry, error) {
	if r.meta.Pages == 0 || hi < r.meta.MinKey || lo > r.meta.MaxKey {
		return nil, nil
	}
	startLeaf, err := r.findLeaf(lo)
	if err != nil {
		return nil, err
	}
	var out []dbformat.Entry
	for pi := startLeaf; pi < r.meta.Pages; pi++ {
		entries, err := entriesPage(r.leaf, pi, r.leafValidCount(pi))
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.Key < lo {
				continue
			}
			if e.Key > hi {
				return out, nil
			}
			out = append(out, e)
		}
	}
	return out, nil
}

type btreeCursor struct {
	r       *btreeRun
	page    int
	entries []dbformat.Entry
	idx     int
	err     error
}

func (r *btreeRun) Cursor() (Cursor, error) {
	return &btreeCursor{r: r}, nil
}

func (c *btreeCursor) Next() (dbformat.Entry, bool) {
	for c.idx >= len(c.entries) {
		if c.page >= c.r.meta.Pages {
			return dbformat.Entry{}, false
		}
		entries, err := entriesPage(c.r.leaf, c.page, c.r.leafValidCount(c.page))
		if err != nil {
			c.err = err
			return dbformat.Entry{}, false
		}
		c.entries = entries
		c.idx = 0
		c.page++
	}
	e := c.entries[c.idx]
	c.idx++
	return e, true
}

func (c *btreeCursor) Close() error { return c.err }
