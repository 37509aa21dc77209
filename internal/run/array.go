package run

import (
	"path"

	"github.com/aalhour/lsmkv/internal/bloom"
	"github.com/aalhour/lsmkv/internal/bufferpool"
	"github.com/aalhour/lsmkv/internal/compression"
	"github.com/aalhour/lsmkv/internal/dbformat"
	"github.com/aalhour/lsmkv/internal/page"
	"github.com/aalhour/lsmkv/internal/vfs"
)

// BuildArray writes a fully sorted, deduplicated entry stream as a single
// array-shaped run file, plus its Bloom filter and metadata sidecars.
// Callers (flush and tiered/leveled compaction) must pass entries in
// strictly ascending key order.
func BuildArray(fsys vfs.FS, dir string, level int, id uint64, entries []dbformat.Entry, bitsPerEntry int, codec compression.Type) (Meta, error) {
	m := Meta{ID: id, Level: level, Shape: Array, EntryCount: len(entries)}
	if len(entries) > 0 {
		m.MinKey = entries[0].Key
		m.MaxKey = entries[len(entries)-1].Key
	}
	m.Pages = (len(entries) + page.EntriesPerPage - 1) / page.EntriesPerPage

	f, err := fsys.Create(path.Join(dir, ArrayFilename(level, id)))
	if err != nil {
		return Meta{}, err
	}
	builder := bloom.NewBuilder(bitsPerEntry)
	for i := 0; i < m.Pages; i++ {
		lo := i * page.EntriesPerPage
		hi := min(lo+page.EntriesPerPage, len(entries))
		slice := entries[lo:hi]
		for _, e := range slice {
			builder.Add(e.Key)
		}
		encoded, err := page.EncodeEntryPage(slice, codec)
		if err != nil {
			_ = f.Close()
			return Meta{}, err
		}
		if _, err := f.Write(encoded); err != nil {
			_ = f.Close()
			return Meta{}, err
		}
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return Meta{}, err
	}
	if err := f.Close(); err != nil {
		return Meta{}, err
	}

	filter := builder.Finish()
	if err := WriteFilter(fsys, dir, level, id, filter); err != nil {
		return Meta{}, err
	}
	if err := WriteMeta(fsys, dir, m); err != nil {
		return Meta{}, err
	}
	return m, nil
}

type arrayRun struct {
	fs     vfs.FS
	dir    string
	meta   Meta
	filter *bloom.Filter
	mode   SearchMode
	src    *pageSource
}

// OpenArray opens an existing array-shaped run for reads.
func OpenArray(fsys vfs.FS, dir string, m Meta, pool *bufferpool.Pool, mode SearchMode) (Run, error) {
	filter, err := ReadFilter(fsys, dir, m.Level, m.ID)
	if err != nil {
		return nil, err
	}
	src, err := openPageSource(fsys, path.Join(dir, ArrayFilename(m.Level, m.ID)), pool, cacheID(m.ID, false))
	if err != nil {
		return nil, err
	}
	return &arrayRun{fs: fsys, dir: dir, meta: m, filter: filterOrAlwaysTrue(filter), mode: mode, src: src}, nil
}

func (r *arrayRun) ID() uint64        { return r.meta.ID }
func (r *arrayRun) Level() int        { return r.meta.Level }
func (r *arrayRun) Shape() Shape      { return Array }
func (r *arrayRun) EntryCount() int   { return r.meta.EntryCount }
func (r *arrayRun) MinKey() int64     { return r.meta.MinKey }
func (r *arrayRun) MaxKey() int64     { return r.meta.MaxKey }
func (r *arrayRun) ByteSize() int64   { return int64(r.meta.Pages) * page.Size }
func (r *arrayRun) MayContain(key int64) bool { return r.filter.MayContain(key) }
func (r *arrayRun) Close() error      { return r.src.close() }

func (r *arrayRun) validCount(i int) int {
	if i < r.meta.Pages-1 {
		return page.EntriesPerPage
	}
	return r.meta.EntryCount - i*page.EntriesPerPage
}

// findPage returns the page index whose entries may contain target, via
// binary search on each candidate page's first key.
func (r *arrayRun) findPage(target int64) (int, error) {
	lo, hi := 0, r.meta.Pages-1
	result := -1
	for lo <= hi {
		mid := (lo + hi) / 2
		entries, err := entriesPage(r.src, mid, r.validCount(mid))
		if err != nil {
			return 0, err
		}
		if len(entries) == 0 {
			hi = mid - 1
			continue
		}
		if entries[0].Key <= target {
			result = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	if result == -1 {
		result = 0
	}
	return result, nil
}

func (r *arrayRun) Get(key int64) (dbformat.Value, bool, error) {
	if r.meta.Pages == 0 || key < r.meta.MinKey || key > r.meta.MaxKey {
		return 0, false, nil
	}
	pi, err := r.findPage(key)
	if err != nil {
		return 0, false, err
	}
	entries, err := entriesPage(r.src, pi, r.validCount(pi))
	if err != nil {
		return 0, false, err
	}
	idx := lowerBound(entries, key, r.mode)
	if idx < len(entries) && entries[idx].Key == key {
		return entries[idx].Value, true, nil
	}
	return 0, false, nil
}

func (r *arrayRun) Scan(lo, hi int64) ([]dbformat.Entry, error) {
	if r.meta.Pages == 0 || hi < r.meta.MinKey || lo > r.meta.MaxKey {
		return nil, nil
	}
	startPage, err := r.findPage(lo)
	if err != nil {
		return nil, err
	}
	var out []dbformat.Entry
	for pi := startPage; pi < r.meta.Pages; pi++ {
		entries, err := entriesPage(r.src, pi, r.validCount(pi))
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

type arrayCursor struct {
	r       *arrayRun
	page    int
	entries []dbformat.Entry
	idx     int
	err     error
}

func (r *arrayRun) Cursor() (Cursor, error) {
	return &arrayCursor{r: r}, nil
}

func (c *arrayCursor) Next() (dbformat.Entry, bool) {
	for c.idx >= len(c.entries) {
		if c.page >= c.r.meta.Pages {
			return dbformat.Entry{}, false
		}
		entries, err := entriesPage(c.r.src, c.page, c.r.validCount(c.page))
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

func (c *arrayCursor) Close() error { return c.err }
