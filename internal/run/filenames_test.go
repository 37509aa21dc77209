package run

import (
	"testing"

	"github.com/aalhour/lsmkv/internal/vfs"
)

func TestFilenameRoundTripArray(t *testing.T) {
	name := ArrayFilename(3, 42)
	level, id, shape, ok := ParseFilename(name)
	if !ok {
		t.Fatalf("ParseFilename(%q) failed", name)
	}
	if level != 3 || id != 42 || shape != Array {
		t.Fatalf("got (%d, %d, %v), want (3, 42, Array)", level, id, shape)
	}
}

func TestFilenameRoundTripBTreeLeaf(t *testing.T) {
	name := LeafFilename(0, 1000000)
	level, id, shape, ok := ParseFilename(name)
	if !ok {
		t.Fatalf("ParseFilename(%q) failed", name)
	}
	if level != 0 || id != 1000000 || shape != BTree {
		t.Fatalf("got (%d, %d, %v), want (0, 1000000, BTree)", level, id, shape)
	}
}

func TestParseFilenameSkipsSidecars(t *testing.T) {
	for _, name := range []string{FilterFilename(0, 1), MetaFilename(0, 1), InnerFilename(0, 1)} {
		if _, _, _, ok := ParseFilename(name); ok {
			t.Fatalf("ParseFilename(%q) should not match a data-file pattern", name)
		}
	}
}

func TestMetaRoundTrip(t *testing.T) {
	fs := vfs.NewMem()
	m := Meta{ID: 5, Level: 1, Shape: BTree, EntryCount: 100, MinKey: -50, MaxKey: 500, Pages: 3, InnerPages: 2, InnerLevelPages: []int{1, 1}}
	if err := WriteMeta(fs, "db", m); err != nil {
		t.Fatalf("WriteMeta: %v", err)
	}
	got, err := ReadMeta(fs, "db", 1, 5, BTree)
	if err != nil {
		t.Fatalf("ReadMeta: %v", err)
	}
	if got.EntryCount != m.EntryCount || got.MinKey != m.MinKey || got.MaxKey != m.MaxKey || got.Pages != m.Pages || got.InnerPages != m.InnerPages {
		t.Fatalf("got %+v, want %+v", got, m)
	}
	if len(got.InnerLevelPages) != 2 || got.InnerLevelPages[0] != 1 || got.InnerLevelPages[1] != 1 {
		t.Fatalf("InnerLevelPages = %v, want [1 1]", got.InnerLevelPages)
	}
}
