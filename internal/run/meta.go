package run

import (
	"encoding/binary"
	"fmt"
	"io"
	"path"

	"github.com/aalhour/lsmkv/internal/bloom"
	"github.com/aalhour/lsmkv/internal/vfs"
)

// encodeMeta serializes the fields of Meta not recoverable from the run's
// filename: entry count, key range, and page counts. Written as a small
// sidecar file alongside the run's data file(s), since a directory scan
// recovers only level/id/shape from the filename itself.
func encodeMeta(m Meta) []byte {
	buf := make([]byte, 5*8+8+len(m.InnerLevelPages)*8)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(m.EntryCount))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(m.MinKey))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(m.MaxKey))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(m.Pages))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(m.InnerPages))
	binary.LittleEndian.PutUint64(buf[40:48], uint64(len(m.InnerLevelPages)))
	off := 48
	for _, p := range m.InnerLevelPages {
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(p))
		off += 8
	}
	return buf
}

func decodeMeta(data []byte) (Meta, error) {
	if len(data) < 48 {
		return Meta{}, fmt.Errorf("%w: metadata too short", ErrCorruptRun)
	}
	var m Meta
	m.EntryCount = int(binary.LittleEndian.Uint64(data[0:8]))
	m.MinKey = int64(binary.LittleEndian.Uint64(data[8:16]))
	m.MaxKey = int64(binary.LittleEndian.Uint64(data[16:24]))
	m.Pages = int(binary.LittleEndian.Uint64(data[24:32]))
	m.InnerPages = int(binary.LittleEndian.Uint64(data[32:40]))
	n := int(binary.LittleEndian.Uint64(data[40:48]))
	if len(data) != 48+n*8 {
		return Meta{}, fmt.Errorf("%w: metadata length mismatch", ErrCorruptRun)
	}
	m.InnerLevelPages = make([]int, n)
	off := 48
	for i := range n {
		m.InnerLevelPages[i] = int(binary.LittleEndian.Uint64(data[off : off+8]))
		off += 8
	}
	return m, nil
}

func writeSidecar(fs vfs.FS, dir, name string, data []byte) error {
	f, err := fs.Create(path.Join(dir, name))
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func readSidecar(fs vfs.FS, dir, name string) ([]byte, error) {
	f, err := fs.Open(path.Join(dir, name))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// WriteMeta persists a run's metadata sidecar file.
func WriteMeta(fs vfs.FS, dir string, m Meta) error {
	return writeSidecar(fs, dir, MetaFilename(m.Level, m.ID), encodeMeta(m))
}

// ReadMeta loads a run's metadata sidecar file; level/id/shape are filled
// in from the caller's directory-scan result, not from the file contents.
func ReadMeta(fs vfs.FS, dir string, level int, id uint64, shape Shape) (Meta, error) {
	data, err := readSidecar(fs, dir, MetaFilename(level, id))
	if err != nil {
		return Meta{}, err
	}
	m, err := decodeMeta(data)
	if err != nil {
		return Meta{}, err
	}
	m.Level, m.ID, m.Shape = level, id, shape
	return m, nil
}

// WriteFilter persists a run's Bloom filter sidecar file. A nil filter
// writes nothing; Open treats a missing filter file as "always true".
func WriteFilter(fs vfs.FS, dir string, level int, id uint64, f *bloom.Filter) error {
	if f == nil {
		return nil
	}
	return writeSidecar(fs, dir, FilterFilename(level, id), f.Bytes())
}

// ReadFilter loads a run's Bloom filter sidecar file, if present.
func ReadFilter(fs vfs.FS, dir string, level int, id uint64) (*bloom.Filter, error) {
	if !fs.Exists(path.Join(dir, FilterFilename(level, id))) {
		return nil, nil
	}
	data, err := readSidecar(fs, dir, FilterFilename(level, id))
	if err != nil {
		return nil, err
	}
	return bloom.Decode(data)
}

// RemoveRunFiles deletes every file belonging to a run: data file(s),
// filter, and metadata sidecar. Used by compaction once a merge commits.
func RemoveRunFiles(fs vfs.FS, dir string, level int, id uint64, shape Shape) error {
	names := []string{MetaFilename(level, id), FilterFilename(level, id)}
	if shape == Array {
		names = append(names, ArrayFilename(level, id))
	} else {
		names = append(names, LeafFilename(level, id), InnerFilename(level, id), treeIndexFilename(level, id))
	}
	for _, n := range names {
		p := path.Join(dir, n)
		if fs.Exists(p) {
			if err := fs.Remove(p); err != nil {
				return err
			}
		}
	}
	return nil
}
