package run

import (
	"path"

	"github.com/aalhour/lsmkv/internal/bloom"
	"github.com/aalhour/lsmkv/internal/compression"
	"github.com/aalhour/lsmkv/internal/dbformat"
	"github.com/aalhour/lsmkv/internal/page"
	"github.com/aalhour/lsmkv/internal/vfs"
)

type btreeLevelBuffer struct {
	delims []int64
}

// BTreeBuilder constructs a B-tree-shaped run bottom-up from a single
// ascending pass over the source stream.
type BTreeBuilder struct {
	fs    vfs.FS
	dir   string
	level int
	id    uint64
	codec compression.Type

	leafFile  vfs.WritableFile
	innerFile vfs.WritableFile

	leafBuf       []dbformat.Entry
	leafPageCount int

	levelBufs      []btreeLevelBuffer
	levelOffsets   [][]int // per tree level, page offsets within the inner file, in write order
	levelTailCount []int   // per tree level, delimiter count of that level's most recent page
	innerPageCount int

	filter     *bloom.Builder
	entryCount int
	minKey     int64
	maxKey     int64
	haveMin    bool
}

// NewBTreeBuilder opens a new B-tree run's leaf and inner files for
// writing.
func NewBTreeBuilder(fsys vfs.FS, dir string, level int, id uint64, bitsPerEntry int, codec compression.Type) (*BTreeBuilder, error) {
	leafFile, err := fsys.Create(path.Join(dir, LeafFilename(level, id)))
	if err != nil {
		return nil, err
	}
	innerFile, err := fsys.Create(path.Join(dir, InnerFilename(level, id)))
	if err != nil {
		_ = leafFile.Close()
		return nil, err
	}
	return &BTreeBuilder{
		fs: fsys, dir: dir, level: level, id: id, codec: codec,
		leafFile: leafFile, innerFile: innerFile,
		filter: bloom.NewBuilder(bitsPerEntry),
	}, nil
}

// Add appends the next entry of the sorted source stream.
func (b *BTreeBuilder) Add(e dbformat.Entry) error {
	if !b.haveMin {
		b.minKey = e.Key
		b.haveMin = true
	}
	b.maxKey = e.Key
	b.entryCount++
	b.filter.Add(e.Key)

	b.leafBuf = append(b.leafBuf, e)
	if len(b.leafBuf) == page.EntriesPerPage {
		return b.sealLeaf()
	}
	return nil
}

func (b *BTreeBuilder) sealLeaf() error {
	encoded, err := page.EncodeEntryPage(b.leafBuf, b.codec)
	if err != nil {
		return err
	}
	if _, err := b.leafFile.Write(encoded); err != nil {
		return err
	}
	firstKey := b.leafBuf[0].Key
	b.leafBuf = b.leafBuf[:0]
	b.leafPageCount++
	return b.addDelimiter(0, firstKey)
}

func (b *BTreeBuilder) levelBuf(l int) *btreeLevelBuffer {
	for len(b.levelBufs) <= l {
		b.levelBufs = append(b.levelBufs, btreeLevelBuffer{})
		b.levelOffsets = append(b.levelOffsets, nil)
		b.levelTailCount = append(b.levelTailCount, 0)
	}
	return &b.levelBufs[l]
}

// addDelimiter appends key to level's pending buffer, flushing a full
// inner page (and propagating its first key to level+1) once the buffer
// reaches page.DelimitersPerPage.
func (b *BTreeBuilder) addDelimiter(level int, key int64) error {
	buf := b.levelBuf(level)
	buf.delims = append(buf.delims, key)
	if len(buf.delims) == page.DelimitersPerPage {
		firstKey, err := b.sealInnerLevel(level)
		if err != nil {
			return err
		}
		return b.addDelimiter(level+1, firstKey)
	}
	return nil
}

// sealInnerLevel writes whatever delimiters are currently buffered for
// level (full or partial) as one inner page and returns its first
// delimiter, for the caller to propagate upward.
func (b *BTreeBuilder) sealInnerLevel(level int) (firstKey int64, err error) {
	buf := &b.levelBufs[level]
	encoded, err := page.EncodeDelimiterPage(buf.delims, b.codec)
	if err != nil {
		return 0, err
	}
	if _, err := b.innerFile.Write(encoded); err != nil {
		return 0, err
	}
	b.levelOffsets[level] = append(b.levelOffsets[level], b.innerPageCount)
	b.innerPageCount++
	b.levelTailCount[level] = len(buf.delims)
	firstKey = buf.delims[0]
	buf.delims = buf.delims[:0]
	return firstKey, nil
}

// Finish flushes any partial leaf and delimiter buffers bottom-up, writes
// the filter and metadata sidecars, and returns the run's Meta.
func (b *BTreeBuilder) Finish() (Meta, error) {
	if len(b.leafBuf) > 0 {
		if err := b.sealLeaf(); err != nil {
			return Meta{}, err
		}
	}

	// Flush every level's partial buffer bottom-up. A level's buffer can
	// be empty here because it already sealed a full page during Add and
	// eagerly propagated one delimiter to the level above — that doesn't
	// mean the walk is done, since the level above may still be holding
	// unconsolidated delimiters. Only stop once a level settles on zero
	// or one total page: a lone page never needs a parent.
	l := 0
	for l < len(b.levelBufs) {
		if len(b.levelBufs[l].delims) > 0 {
			firstKey, err := b.sealInnerLevel(l)
			if err != nil {
				return Meta{}, err
			}
			if len(b.levelOffsets[l]) > 1 {
				if err := b.addDelimiter(l+1, firstKey); err != nil {
					return Meta{}, err
				}
			}
		}
		if len(b.levelOffsets[l]) <= 1 {
			break
		}
		l++
	}
	// Anything above the level we stopped at is a delimiter some lower
	// level eagerly propagated before learning it would end up as the
	// sole (and thus parentless) page at its level; discard it.
	if l+1 < len(b.levelOffsets) {
		b.levelOffsets = b.levelOffsets[:l+1]
		b.levelTailCount = b.levelTailCount[:l+1]
	}

	if err := b.leafFile.Sync(); err != nil {
		return Meta{}, err
	}
	if err := b.leafFile.Close(); err != nil {
		return Meta{}, err
	}
	if err := b.innerFile.Sync(); err != nil {
		return Meta{}, err
	}
	if err := b.innerFile.Close(); err != nil {
		return Meta{}, err
	}

	m := Meta{
		ID: b.id, Level: b.level, Shape: BTree,
		EntryCount: b.entryCount, Pages: b.leafPageCount,
		InnerPages: b.innerPageCount,
	}
	if b.haveMin {
		m.MinKey, m.MaxKey = b.minKey, b.maxKey
	}
	for _, offs := range b.levelOffsets {
		m.InnerLevelPages = append(m.InnerLevelPages, len(offs))
	}

	filter := b.filter.Finish()
	if err := WriteFilter(b.fs, b.dir, b.level, b.id, filter); err != nil {
		return Meta{}, err
	}
	if err := writeTreeLevels(b.fs, b.dir, b.level, b.id, b.levelOffsets, b.levelTailCount); err != nil {
		return Meta{}, err
	}
	if err := WriteMeta(b.fs, b.dir, m); err != nil {
		return Meta{}, err
	}
	return m, nil
}

// BuildBTree is a slice-based convenience wrapper that drives a
// BTreeBuilder over entries; flush and the compaction engine call
// NewBTreeBuilder and Add directly instead.
func BuildBTree(fsys vfs.FS, dir string, level int, id uint64, entries []dbformat.Entry, bitsPerEntry int, codec compression.Type) (Meta, error) {
	b, err := NewBTreeBuilder(fsys, dir, level, id, bitsPerEntry, codec)
	if err != nil {
		return Meta{}, err
	}
	for _, e := range entries {
		if err := b.Add(e); err != nil {
			return Meta{}, err
		}
	}
	return b.Finish()
}
