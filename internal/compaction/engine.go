package compaction

import (
	"fmt"

	"github.com/aalhour/lsmkv/internal/bufferpool"
	"github.com/aalhour/lsmkv/internal/compression"
	"github.com/aalhour/lsmkv/internal/dbformat"
	"github.com/aalhour/lsmkv/internal/manifest"
	"github.com/aalhour/lsmkv/internal/run"
	"github.com/aalhour/lsmkv/internal/vfs"
)

// Engine drives compactions for a single database directory: picking
// which levels are over budget (policy.go), merging their runs
// (merge.go), and committing the result to the manifest.
type Engine struct {
	fs           vfs.FS
	dir          string
	pool         *bufferpool.Pool
	Policy       Policy
	Shape        run.Shape
	SearchMode   run.SearchMode
	BitsPerEntry int
	Codec        compression.Type
}

// New creates a compaction engine writing output runs of the given shape
// into dir, using pool for page caching and bitsPerEntry/codec for the
// output runs' Bloom filters and page compression.
func New(fsys vfs.FS, dir string, pool *bufferpool.Pool, policy Policy, shape run.Shape, mode run.SearchMode, bitsPerEntry int, codec compression.Type) *Engine {
	return &Engine{fs: fsys, dir: dir, pool: pool, Policy: policy, Shape: shape, SearchMode: mode, BitsPerEntry: bitsPerEntry, Codec: codec}
}

// NeedsCompaction reports whether level currently exceeds its budget
// under the engine's configured policy.
func (e *Engine) NeedsCompaction(m *manifest.Manifest, level int) bool {
	return needsCompaction(e.Policy, m, level)
}

// Result summarizes one completed compaction, for the engine facade to
// log (runs merged, entries and bytes written).
type Result struct {
	SourceLevel, TargetLevel int
	RunsMerged               int
	EntriesOut               int
	BytesOut                 int64
}

// maxCascadeSteps bounds the post-flush compaction cascade so a
// misconfigured policy (e.g. a size ratio that never sheds runs) cannot
// spin forever; a healthy cascade converges in at most one step per level.
const maxCascadeSteps = 64

// Cascade scans levels from 0 upward, compacting any over-budget level
// into the next, and repeats, since a compaction can push the next level
// over its own budget in turn. onResult, if non-nil, is called after every
// compaction that runs.
func (e *Engine) Cascade(m *manifest.Manifest, onResult func(Result)) error {
	for step := 0; step < maxCascadeSteps; step++ {
		compacted := false
		for level := 0; level < m.NumLevels(); level++ {
			if !e.NeedsCompaction(m, level) {
				continue
			}
			result, err := e.Compact(m, level)
			if err != nil {
				return err
			}
			if onResult != nil {
				onResult(result)
			}
			compacted = true
			break // level indices below us may have shifted; rescan from 0
		}
		if !compacted {
			return nil
		}
	}
	return fmt.Errorf("compaction: cascade did not converge after %d steps", maxCascadeSteps)
}

// Compact merges every run currently at level into one new run at
// level+1 and commits the result to m atomically: the new run becomes
// visible and the inputs disappear in one manifest Commit. On any error,
// partially written output files are removed and the manifest is left
// untouched.
func (e *Engine) Compact(m *manifest.Manifest, level int) (Result, error) {
	inputMetas := m.Runs(level)
	if len(inputMetas) == 0 {
		return Result{}, nil
	}
	targetLevel := level + 1

	opened := make([]run.Run, 0, len(inputMetas))
	defer func() {
		for _, r := range opened {
			_ = r.Close()
		}
	}()
	for _, meta := range inputMetas {
		r, err := run.Open(e.fs, e.dir, meta, e.pool, e.SearchMode)
		if err != nil {
			return Result{}, fmt.Errorf("compaction: opening L%d/%d: %w", meta.Level, meta.ID, err)
		}
		opened = append(opened, r)
	}

	dropTombstones := e.isLastLevel(m, targetLevel)

	newID := m.AllocateID()
	outMeta, err := e.writeMerged(opened, targetLevel, newID, dropTombstones)
	if err != nil {
		_ = run.RemoveRunFiles(e.fs, e.dir, targetLevel, newID, e.Shape)
		return Result{}, err
	}

	edit := manifest.Edit{Add: []run.Meta{outMeta}}
	for _, meta := range inputMetas {
		edit.Remove = append(edit.Remove, manifest.RemoveRef{Level: meta.Level, ID: meta.ID})
	}
	if err := m.Commit(edit); err != nil {
		_ = run.RemoveRunFiles(e.fs, e.dir, targetLevel, newID, e.Shape)
		return Result{}, fmt.Errorf("compaction: commit: %w", err)
	}

	// Only after the commit is durable do we unlink inputs and drop their
	// cached pages.
	for _, meta := range inputMetas {
		for _, id := range run.CacheIDs(meta.ID, meta.Shape) {
			e.pool.InvalidateRun(id)
		}
		if err := run.RemoveRunFiles(e.fs, e.dir, meta.Level, meta.ID, meta.Shape); err != nil {
			return Result{}, fmt.Errorf("compaction: unlinking input L%d/%d: %w", meta.Level, meta.ID, err)
		}
	}

	return Result{
		SourceLevel: level, TargetLevel: targetLevel,
		RunsMerged: len(inputMetas), EntriesOut: outMeta.EntryCount, BytesOut: outMeta.ByteSize(),
	}, nil
}

// isLastLevel reports whether targetLevel has no older data beneath it —
// the condition under which a tombstone can be dropped entirely rather
// than carried forward.
func (e *Engine) isLastLevel(m *manifest.Manifest, targetLevel int) bool {
	for lvl := targetLevel + 1; lvl < m.NumLevels(); lvl++ {
		if len(m.Runs(lvl)) > 0 {
			return false
		}
	}
	return true
}

// writeMerged drives the k-way merge over inputs (newest-first) and
// writes the result as one run of the engine's configured shape. Array
// output collects the merged stream into memory (bounded by the inputs'
// combined size); B-tree output streams directly into the bottom-up
// builder of internal/run in one pass over the merged stream, producing
// leaf and inner files together.
func (e *Engine) writeMerged(inputs []run.Run, level int, id uint64, dropTombstones bool) (run.Meta, error) {
	merged, err := NewMergeIter(inputs)
	if err != nil {
		return run.Meta{}, err
	}
	defer merged.Close()

	if e.Shape == run.BTree {
		b, err := run.NewBTreeBuilder(e.fs, e.dir, level, id, e.BitsPerEntry, e.Codec)
		if err != nil {
			return run.Meta{}, err
		}
		for {
			entry, ok := merged.Next()
			if !ok {
				break
			}
			if dropTombstones && entry.IsTombstone() {
				continue
			}
			if err := b.Add(entry); err != nil {
				return run.Meta{}, err
			}
		}
		return b.Finish()
	}

	var entries []dbformat.Entry
	for {
		entry, ok := merged.Next()
		if !ok {
			break
		}
		if dropTombstones && entry.IsTombstone() {
			continue
		}
		entries = append(entries, entry)
	}
	return run.BuildArray(e.fs, e.dir, level, id, entries, e.BitsPerEntry, e.Codec)
}
