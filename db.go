// Package lsmkv implements an embedded, single-process key-value store
// organized as a log-structured merge tree: fixed-width int64 keys and
// values, an in-memory memtable, immutable on-disk sorted runs, and a
// pluggable compaction policy reclaiming space and bounding read
// amplification.
package lsmkv

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aalhour/lsmkv/internal/bufferpool"
	"github.com/aalhour/lsmkv/internal/compaction"
	"github.com/aalhour/lsmkv/internal/dbformat"
	"github.com/aalhour/lsmkv/internal/logging"
	"github.com/aalhour/lsmkv/internal/manifest"
	"github.com/aalhour/lsmkv/internal/memtable"
	"github.com/aalhour/lsmkv/internal/run"
	"github.com/aalhour/lsmkv/internal/vfs"
)

// DB is a single opened store. It is not safe for concurrent use by
// multiple goroutines without external synchronization: the engine is
// single-threaded with respect to client calls, so DB takes no internal
// lock.
type DB struct {
	fs   vfs.FS
	name string
	opts *Options
	log  logging.Logger

	manifest *manifest.Manifest
	pool     *bufferpool.Pool
	mem      *memtable.MemTable
	engine   *compaction.Engine
	lock     io.Closer

	closed bool
}

// Open creates or opens a database directory named name. The returned DB
// owns fsys for its lifetime; pass vfs.Default() for a real on-disk store
// or a fresh vfs.NewMem() for tests.
func Open(fsys vfs.FS, name string, opts *Options) (*DB, error) {
	if strings.ContainsAny(name, " \t\n\r") {
		return nil, ErrInvalidDBName
	}
	if opts == nil {
		opts = DefaultOptions()
	}

	m, err := manifest.Open(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("lsmkv: opening %s: %w", name, wrapErr(err))
	}

	log := logging.OrDefault(nil)
	if m.Torn() {
		log.Warnf("lsmkv: %s: CURRENT generation did not match the reconstructed directory listing; trusting the directory", name)
	}

	lock, err := fsys.Lock(name + "/LOCK")
	if err != nil {
		return nil, fmt.Errorf("lsmkv: locking %s: %w", name, err)
	}

	depth := bufferpool.DepthForFrames(opts.BufferPoolInitialSize())
	pool := bufferpool.New(opts.bufferPoolCapacity, depth, opts.bufferPoolEnabled)

	engine := compaction.New(fsys, name, pool,
		compaction.Policy{Kind: opts.compactionPolicy, SizeRatio: opts.sizeRatio, LastLevel: opts.hybridLastLevel},
		opts.runShape, opts.searchMode, bloomBits(opts), opts.pageCompression)

	db := &DB{
		fs:       fsys,
		name:     name,
		opts:     opts,
		log:      log,
		manifest: m,
		pool:     pool,
		mem:      memtable.New(opts.memtableCapacity),
		engine:   engine,
		lock:     lock,
	}
	log.Infof("lsmkv: opened %s (levels=%d, policy=%s)", name, m.NumLevels(), opts.compactionPolicy)
	return db, nil
}

// bloomBits returns the bits-per-entry to build output runs' filters
// with; 0 disables filter construction.
func bloomBits(opts *Options) int {
	if !opts.bloomEnabled {
		return 0
	}
	return opts.bloomBitsPerEntry
}

// Close releases the database's resources. If the configured Options
// have FlushOnClose set (the default), the memtable is drained to a
// final run first so its contents survive the next Open.
func (db *DB) Close() error {
	if db.closed {
		return nil
	}
	if db.opts.FlushOnClose() && db.mem.Len() > 0 {
		if err := db.flush(); err != nil {
			return err
		}
	}
	db.closed = true
	return db.lock.Close()
}

func (db *DB) checkOpen() error {
	if db.closed {
		return ErrClosed
	}
	return nil
}

// Put stores value under key, overwriting any prior value. value must
// not equal dbformat.ValueMin, the reserved tombstone sentinel.
func (db *DB) Put(key, value int64) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	if value == dbformat.ValueMin {
		return ErrTombstoneValue
	}
	return db.put(key, value)
}

// Delete removes key, recording a tombstone that a later compaction may
// drop once no older data remains beneath it.
func (db *DB) Delete(key int64) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	return db.put(key, dbformat.ValueMin)
}

func (db *DB) put(key, value int64) error {
	if db.mem.WouldOverflow(key) {
		if err := db.flush(); err != nil {
			return err
		}
	}
	db.mem.Put(key, value)
	return nil
}

// flush drains the memtable into a new level-0 run, commits it to the
// manifest, swaps in a fresh memtable, and runs the post-flush compaction
// cascade.
func (db *DB) flush() error {
	entries := db.mem.DrainSorted()
	if len(entries) == 0 {
		return nil
	}
	id := db.manifest.AllocateID()

	var meta run.Meta
	var err error
	if db.opts.runShape == run.BTree {
		b, berr := run.NewBTreeBuilder(db.fs, db.name, 0, id, bloomBits(db.opts), db.opts.pageCompression)
		if berr != nil {
			return fmt.Errorf("lsmkv: flush: %w", berr)
		}
		for _, e := range entries {
			if err = b.Add(e); err != nil {
				break
			}
		}
		if err == nil {
			meta, err = b.Finish()
		}
	} else {
		meta, err = run.BuildArray(db.fs, db.name, 0, id, entries, bloomBits(db.opts), db.opts.pageCompression)
	}
	if err != nil {
		_ = run.RemoveRunFiles(db.fs, db.name, 0, id, db.opts.runShape)
		return fmt.Errorf("lsmkv: flush: %w", wrapErr(err))
	}

	if err := db.manifest.Commit(manifest.Edit{Add: []run.Meta{meta}}); err != nil {
		_ = run.RemoveRunFiles(db.fs, db.name, 0, id, db.opts.runShape)
		return fmt.Errorf("lsmkv: flush commit: %w", err)
	}
	db.log.Infof("lsmkv: %s: flushed %d entries to L0/%d", db.name, len(entries), id)
	db.mem = memtable.New(db.opts.memtableCapacity)

	return db.engine.Cascade(db.manifest, func(r compaction.Result) {
		db.log.Infof("lsmkv: %s: compacted %d runs from L%d into L%d (%d entries, %d bytes)",
			db.name, r.RunsMerged, r.SourceLevel, r.TargetLevel, r.EntriesOut, r.BytesOut)
	})
}

// Get returns the value stored for key and whether it was present.
// A deleted or never-written key reports (0, false, nil).
func (db *DB) Get(key int64) (int64, bool, error) {
	if err := db.checkOpen(); err != nil {
		return 0, false, err
	}
	if v, ok := db.mem.Get(key); ok {
		if v == dbformat.ValueMin {
			return 0, false, nil
		}
		return v, true, nil
	}

	for level := 0; level < db.manifest.NumLevels(); level++ {
		for _, meta := range db.manifest.Runs(level) {
			if key < meta.MinKey || key > meta.MaxKey {
				continue
			}
			r, err := run.Open(db.fs, db.name, meta, db.pool, db.opts.searchMode)
			if err != nil {
				return 0, false, fmt.Errorf("lsmkv: get: %w", wrapErr(err))
			}
			if !r.MayContain(key) {
				_ = r.Close()
				continue
			}
			v, ok, err := r.Get(key)
			closeErr := r.Close()
			if err != nil {
				return 0, false, fmt.Errorf("lsmkv: get: %w", wrapErr(err))
			}
			if closeErr != nil {
				return 0, false, closeErr
			}
			if !ok {
				continue // filter false positive or key absent from this run
			}
			if v == dbformat.ValueMin {
				return 0, false, nil
			}
			return v, true, nil
		}
	}
	return 0, false, nil
}

// Scan returns every live (non-tombstone) entry with lo <= key <= hi, in
// ascending key order, reflecting the newest write for each key across
// the memtable and every on-disk run.
func (db *DB) Scan(lo, hi int64) ([]dbformat.Entry, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	if lo > hi {
		return nil, nil
	}

	// newest-wins merge: memtable first (it is always the newest data),
	// then runs from level 0 upward, keeping only the first value seen
	// per key.
	seen := make(map[int64]struct{})
	var out []dbformat.Entry

	for _, e := range db.mem.Scan(lo, hi) {
		seen[e.Key] = struct{}{}
		if !e.IsTombstone() {
			out = append(out, e)
		}
	}

	for level := 0; level < db.manifest.NumLevels(); level++ {
		for _, meta := range db.manifest.Runs(level) {
			if hi < meta.MinKey || lo > meta.MaxKey {
				continue
			}
			r, err := run.Open(db.fs, db.name, meta, db.pool, db.opts.searchMode)
			if err != nil {
				return nil, fmt.Errorf("lsmkv: scan: %w", wrapErr(err))
			}
			entries, err := r.Scan(lo, hi)
			closeErr := r.Close()
			if err != nil {
				return nil, fmt.Errorf("lsmkv: scan: %w", wrapErr(err))
			}
			if closeErr != nil {
				return nil, closeErr
			}
			for _, e := range entries {
				if _, dup := seen[e.Key]; dup {
					continue
				}
				seen[e.Key] = struct{}{}
				if !e.IsTombstone() {
					out = append(out, e)
				}
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
