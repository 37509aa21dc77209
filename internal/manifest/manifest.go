// Package manifest implements the level manifest: an ordered list of runs
// per level, newest first, reconstructed on open by listing the database
// directory and parsing run filenames, with a small CURRENT-file pointer
// that makes a commit idempotent to observe without a write-ahead log.
// There is no MANIFEST log to replay — the directory listing itself is
// the source of truth, since the engine is single-threaded and never
// needs to reconcile concurrent in-flight versions.
package manifest

import (
	"errors"
	"fmt"
	"path"
	"sort"

	"github.com/aalhour/lsmkv/internal/checksum"
	"github.com/aalhour/lsmkv/internal/run"
	"github.com/aalhour/lsmkv/internal/vfs"
)

// ErrTornCommit names the condition Torn reports: CURRENT disagreeing
// with the directory listing on open. Open does not return it; the
// manifest always trusts the directory reconstruction.
var ErrTornCommit = errors.New("manifest: CURRENT generation disagrees with directory contents")

const currentFilename = "CURRENT"

// Manifest is the single source of truth for which runs exist at which
// level. All mutations are atomic with respect to client calls: the
// engine facade is single-threaded, so Commit need not guard against
// concurrent readers.
type Manifest struct {
	fs         vfs.FS
	dir        string
	levels     [][]run.Meta // per level, newest-first
	nextID     uint64
	generation uint64

	torn bool // set on Open if CURRENT disagreed with the directory; surfaced for logging
}

// Open reconstructs a Manifest by listing dir and parsing every run
// filename found. dir is created if it does not already exist, so
// opening a fresh path behaves the same as opening an existing one.
func Open(fsys vfs.FS, dir string) (*Manifest, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	names, err := fsys.ListDir(dir)
	if err != nil {
		return nil, err
	}

	m := &Manifest{fs: fsys, dir: dir}
	seen := make(map[uint64]bool) // run id already added (array/leaf filename only)
	for _, name := range names {
		level, id, shape, ok := run.ParseFilename(name)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		meta, err := run.ReadMeta(fsys, dir, level, id, shape)
		if err != nil {
			return nil, fmt.Errorf("manifest: reading metadata for %s: %w", name, err)
		}
		m.addLocked(meta)
		if id >= m.nextID {
			m.nextID = id + 1
		}
	}
	for _, runs := range m.levels {
		sort.Slice(runs, func(i, j int) bool { return runs[i].ID > runs[j].ID })
	}

	gotSum, gotGen, haveCurrent, err := readCurrent(fsys, dir)
	if err != nil {
		return nil, err
	}
	if haveCurrent {
		m.generation = gotGen
		if gotSum != m.contentChecksum() {
			m.torn = true
		}
	}
	return m, nil
}

// Torn reports whether CURRENT disagreed with the reconstructed directory
// listing when Open ran — a crash mid-commit left CURRENT referencing a
// generation the directory no longer (or not yet) matches. The directory
// reconstruction above is used regardless; this is purely informational
// for the engine facade to log.
func (m *Manifest) Torn() bool { return m.torn }

// AllocateID returns the next run id and reserves it; ids are
// monotonically increasing for the Manifest's lifetime.
func (m *Manifest) AllocateID() uint64 {
	id := m.nextID
	m.nextID++
	return id
}

func (m *Manifest) ensureLevel(level int) {
	for len(m.levels) <= level {
		m.levels = append(m.levels, nil)
	}
}

func (m *Manifest) addLocked(meta run.Meta) {
	m.ensureLevel(meta.Level)
	m.levels[meta.Level] = append(m.levels[meta.Level], meta)
}

// NumLevels returns one past the highest level currently holding any run
// (0 if the manifest is empty).
func (m *Manifest) NumLevels() int { return len(m.levels) }

// Runs returns the runs at level, newest id first. The returned slice is
// a copy; callers must not mutate it.
func (m *Manifest) Runs(level int) []run.Meta {
	if level < 0 || level >= len(m.levels) {
		return nil
	}
	out := make([]run.Meta, len(m.levels[level]))
	copy(out, m.levels[level])
	return out
}

// LevelByteSize sums the on-disk size of every run at level.
func (m *Manifest) LevelByteSize(level int) int64 {
	var total int64
	for _, r := range m.Runs(level) {
		total += r.ByteSize()
	}
	return total
}

// Edit describes one atomic manifest mutation: a set of runs to add and a
// set of (level, id) pairs to remove, applied together. Flush produces an
// Edit with one Add; compaction produces an Edit with one Add (the merged
// output) and N Removes (the inputs).
type Edit struct {
	Add    []run.Meta
	Remove []RemoveRef
}

// RemoveRef identifies one run to drop from the manifest.
type RemoveRef struct {
	Level int
	ID    uint64
}

// Commit applies edit atomically: every Add and every Remove take effect
// together, then CURRENT is rewritten once. Every Remove is checked
// against the current state before anything is mutated, so a malformed
// Edit leaves the prior state untouched; if rewriting CURRENT fails, the
// in-memory state is restored before the error is returned.
func (m *Manifest) Commit(edit Edit) error {
	for _, ref := range edit.Remove {
		if m.find(ref.Level, ref.ID) < 0 {
			return fmt.Errorf("manifest: remove of unknown run L%d/%d", ref.Level, ref.ID)
		}
	}
	prevLevels := make([][]run.Meta, len(m.levels))
	for i, runs := range m.levels {
		prevLevels[i] = append([]run.Meta(nil), runs...)
	}
	prevNextID := m.nextID
	for _, ref := range edit.Remove {
		m.removeLocked(ref.Level, ref.ID)
	}
	for _, meta := range edit.Add {
		m.addLocked(meta)
		if meta.ID >= m.nextID {
			m.nextID = meta.ID + 1
		}
	}
	for _, runs := range m.levels {
		sort.Slice(runs, func(i, j int) bool { return runs[i].ID > runs[j].ID })
	}
	m.generation++
	if err := m.writeCurrent(); err != nil {
		m.levels, m.nextID = prevLevels, prevNextID
		m.generation--
		return err
	}
	return nil
}

func (m *Manifest) find(level int, id uint64) int {
	if level < 0 || level >= len(m.levels) {
		return -1
	}
	for i, r := range m.levels[level] {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (m *Manifest) removeLocked(level int, id uint64) {
	i := m.find(level, id)
	if i < 0 {
		return
	}
	m.levels[level] = append(m.levels[level][:i], m.levels[level][i+1:]...)
}

// contentChecksum summarizes the current in-memory level contents (not
// the on-disk directory) so writeCurrent/readCurrent can cross-check a
// prior commit's CURRENT against the state reconstructed from files.
func (m *Manifest) contentChecksum() uint32 {
	var buf []byte
	for level, runs := range m.levels {
		for _, r := range runs {
			buf = appendUint(buf, uint64(level))
			buf = appendUint(buf, r.ID)
		}
	}
	return checksum.Value(buf)
}

func appendUint(buf []byte, v uint64) []byte {
	var tmp [8]byte
	for i := range tmp {
		tmp[i] = byte(v)
		v >>= 8
	}
	return append(buf, tmp[:]...)
}

// writeCurrent atomically rewrites the CURRENT file: write to a temp
// name, sync, rename over the old one, sync the directory. A crash
// between these steps leaves either the old or the new CURRENT in place,
// never a torn one — Open falls back to the directory listing either way
// (SPEC_FULL.md §4).
func (m *Manifest) writeCurrent() error {
	tmp := path.Join(m.dir, currentFilename+".tmp")
	f, err := m.fs.Create(tmp)
	if err != nil {
		return err
	}
	data := make([]byte, 16)
	putUint64(data[0:8], m.generation)
	putUint32(data[8:12], m.contentChecksum())
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := m.fs.Rename(tmp, path.Join(m.dir, currentFilename)); err != nil {
		return err
	}
	return m.fs.SyncDir(m.dir)
}

func readCurrent(fsys vfs.FS, dir string) (sum uint32, generation uint64, ok bool, err error) {
	p := path.Join(dir, currentFilename)
	if !fsys.Exists(p) {
		return 0, 0, false, nil
	}
	f, err := fsys.Open(p)
	if err != nil {
		return 0, 0, false, err
	}
	defer f.Close()
	buf := make([]byte, 16)
	n := 0
	for n < len(buf) {
		k, rerr := f.Read(buf[n:])
		n += k
		if rerr != nil {
			break
		}
	}
	if n < 16 {
		return 0, 0, false, nil // truncated CURRENT: treat as absent, reconstruct from directory
	}
	generation = getUint64(buf[0:8])
	sum = getUint32(buf[8:12])
	return sum, generation, true, nil
}

func putUint64(b []byte, v uint64) {
	for i := range 8 {
		b[i] = byte(v >> (8 * i))
	}
}

func getUint64(b []byte) uint64 {
	var v uint64
	for i := range 8 {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func putUint32(b []byte, v uint32) {
	for i := range 4 {
		b[i] = byte(v >> (8 * i))
	}
}

func getUint32(b []byte) uint32 {
	var v uint32
	for i := range 4 {
		v |= uint32(b[i]) << (8 * i)
	}
	return v
}
