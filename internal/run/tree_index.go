package run

import (
	"encoding/binary"
	"fmt"

	"github.com/aalhour/lsmkv/internal/vfs"
)

// treeLevels holds, for each level of a B-tree run's inner index, the
// page offsets (in the shared inner file, in write order) belonging to
// that level and the delimiter count of the level's final page.
type treeLevels struct {
	Offsets    [][]int
	TailCounts []int
}

func extIndex() string { return ".index" }

func treeIndexFilename(level int, id uint64) string {
	return stem(level, id) + extIndex()
}

func writeTreeLevels(fsys vfs.FS, dir string, level int, id uint64, offsets [][]int, tailCounts []int) error {
	numLevels := len(offsets)
	size := 8
	for _, o := range offsets {
		size += 8 + 8 + len(o)*8
	}
	buf := make([]byte, size)
	off := 0
	binary.LittleEndian.PutUint64(buf[off:off+8], uint64(numLevels))
	off += 8
	for i := range offsets {
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(tailCounts[i]))
		off += 8
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(len(offsets[i])))
		off += 8
		for _, p := range offsets[i] {
			binary.LittleEndian.PutUint64(buf[off:off+8], uint64(p))
			off += 8
		}
	}
	return writeSidecar(fsys, dir, treeIndexFilename(level, id), buf)
}

func readTreeLevels(fsys vfs.FS, dir string, level int, id uint64) (treeLevels, error) {
	data, err := readSidecar(fsys, dir, treeIndexFilename(level, id))
	if err != nil {
		return treeLevels{}, err
	}
	if len(data) < 8 {
		return treeLevels{}, fmt.Errorf("%w: tree index too short", ErrCorruptRun)
	}
	off := 0
	numLevels := int(binary.LittleEndian.Uint64(data[off : off+8]))
	off += 8
	tl := treeLevels{Offsets: make([][]int, numLevels), TailCounts: make([]int, numLevels)}
	for i := range numLevels {
		if off+16 > len(data) {
			return treeLevels{}, fmt.Errorf("%w: tree index truncated", ErrCorruptRun)
		}
		tl.TailCounts[i] = int(binary.LittleEndian.Uint64(data[off : off+8]))
		off += 8
		n := int(binary.LittleEndian.Uint64(data[off : off+8]))
		off += 8
		if off+n*8 > len(data) {
			return treeLevels{}, fmt.Errorf("%w: tree index truncated", ErrCorruptRun)
		}
		offs := make([]int, n)
		for j := range n {
			offs[j] = int(binary.LittleEndian.Uint64(data[off : off+8]))
			off += 8
		}
		tl.Offsets[i] = offs
	}
	return tl, nil
}
