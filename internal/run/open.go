package run

import (
	"fmt"

	"github.com/aalhour/lsmkv/internal/bufferpool"
	"github.com/aalhour/lsmkv/internal/vfs"
)

// Open opens an existing run of either shape, dispatching on m.Shape.
func Open(fsys vfs.FS, dir string, m Meta, pool *bufferpool.Pool, mode SearchMode) (Run, error) {
	switch m.Shape {
	case Array:
		return OpenArray(fsys, dir, m, pool, mode)
	case BTree:
		return OpenBTree(fsys, dir, m, pool, mode)
	default:
		return nil, fmt.Errorf("run: unknown shape %d", m.Shape)
	}
}
