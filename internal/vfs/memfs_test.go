package vfs

import "testing"

func TestMemFSCreateWriteOpen(t *testing.T) {
	fs := NewMem()
	f, err := fs.Create("a/b.txt")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f.Close()

	rf, err := fs.Open("a/b.txt")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rf.Close()
	buf := make([]byte, 5)
	if _, err := rf.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("Read = %q, want hello", buf)
	}
}

func TestMemFSRenameAndExists(t *testing.T) {
	fs := NewMem()
	f, _ := fs.Create("old")
	f.Close()
	if err := fs.Rename("old", "new"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if fs.Exists("old") {
		t.Fatalf("old still exists after rename")
	}
	if !fs.Exists("new") {
		t.Fatalf("new missing after rename")
	}
}

func TestMemFSListDir(t *testing.T) {
	fs := NewMem()
	for _, name := range []string{"dir/a", "dir/b", "dir/sub/c"} {
		f, _ := fs.Create(name)
		f.Close()
	}
	names, err := fs.ListDir("dir")
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	if len(names) != 3 {
		t.Fatalf("ListDir = %v, want 3 entries", names)
	}
}

func TestMemFSLockExclusive(t *testing.T) {
	fs := NewMem()
	l1, err := fs.Lock("LOCK")
	if err != nil {
		t.Fatalf("first Lock: %v", err)
	}
	if _, err := fs.Lock("LOCK"); err == nil {
		t.Fatalf("second Lock should fail while held")
	}
	l1.Close()
	l2, err := fs.Lock("LOCK")
	if err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	l2.Close()
}

func TestMemFSRandomAccessReadAt(t *testing.T) {
	fs := NewMem()
	f, _ := fs.Create("f")
	f.Write([]byte("0123456789"))
	f.Close()

	rf, err := fs.OpenRandomAccess("f")
	if err != nil {
		t.Fatalf("OpenRandomAccess: %v", err)
	}
	defer rf.Close()
	buf := make([]byte, 4)
	if _, err := rf.ReadAt(buf, 3); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(buf) != "3456" {
		t.Fatalf("ReadAt = %q, want 3456", buf)
	}
}
