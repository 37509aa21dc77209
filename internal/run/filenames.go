package run

import (
	"fmt"
	"strconv"
	"strings"
)

// Filename suffixes. Level manifest reconstruction parses these back out
// of a directory listing.
const (
	extArray  = ".array"
	extLeaf   = ".leaf"
	extInner  = ".inner"
	extFilter = ".filter"
	extMeta   = ".meta"
)

func stem(level int, id uint64) string {
	return fmt.Sprintf("L%03d-%012d", level, id)
}

// ArrayFilename returns the single data file name for an array-shaped run.
func ArrayFilename(level int, id uint64) string { return stem(level, id) + extArray }

// LeafFilename returns the leaf-page file name for a B-tree-shaped run.
func LeafFilename(level int, id uint64) string { return stem(level, id) + extLeaf }

// InnerFilename returns the inner-node file name for a B-tree-shaped run.
func InnerFilename(level int, id uint64) string { return stem(level, id) + extInner }

// FilterFilename returns the sidecar Bloom filter file name for a run.
func FilterFilename(level int, id uint64) string { return stem(level, id) + extFilter }

// MetaFilename returns the sidecar metadata file name for a run.
func MetaFilename(level int, id uint64) string { return stem(level, id) + extMeta }

// ParseFilename recovers (level, id, shape) from one of the data-file
// names above; it returns ok=false for sidecar files and anything else
// the manifest's directory scan should skip.
func ParseFilename(name string) (level int, id uint64, shape Shape, ok bool) {
	var ext string
	switch {
	case strings.HasSuffix(name, extArray):
		ext, shape = extArray, Array
	case strings.HasSuffix(name, extLeaf):
		ext, shape = extLeaf, BTree
	default:
		return 0, 0, 0, false
	}
	base := strings.TrimSuffix(name, ext)
	parts := strings.SplitN(base, "-", 2)
	if len(parts) != 2 || len(parts[0]) < 2 || parts[0][0] != 'L' {
		return 0, 0, 0, false
	}
	lvl, err := strconv.Atoi(parts[0][1:])
	if err != nil {
		return 0, 0, 0, false
	}
	runID, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, 0, 0, false
	}
	return lvl, runID, shape, true
}
