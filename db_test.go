package lsmkv

import (
	"errors"
	"testing"

	"github.com/aalhour/lsmkv/internal/compaction"
	"github.com/aalhour/lsmkv/internal/run"
	"github.com/aalhour/lsmkv/internal/vfs"
)

// TestPutOverwriteThenDelete checks overwrite-then-delete resolves to absent.
func TestPutOverwriteThenDelete(t *testing.T) {
	opts := DefaultOptions()
	db, err := Open(vfs.NewMem(), "/db", opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if err := db.Put(5, 50); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := db.Put(5, 51); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if v, ok, err := db.Get(5); err != nil || !ok || v != 51 {
		t.Fatalf("Get(5) = %d, %v, %v; want 51, true, nil", v, ok, err)
	}
	if err := db.Delete(5); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, err := db.Get(5); err != nil || ok {
		t.Fatalf("Get(5) after delete = ok=%v, err=%v; want absent", ok, err)
	}
}

// TestMemtableOverflowTriggersFlush checks that a put exceeding the
// memtable's capacity flushes the existing entries before applying.
func TestMemtableOverflowTriggersFlush(t *testing.T) {
	opts := DefaultOptions()
	if err := opts.SetMemtableCapacity(16); err != nil {
		t.Fatalf("SetMemtableCapacity: %v", err)
	}
	if err := opts.SetCompactionPolicy(compaction.None); err != nil {
		t.Fatalf("SetCompactionPolicy: %v", err)
	}
	db, err := Open(vfs.NewMem(), "/db", opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	const c = 16
	for k := int64(1); k <= c; k++ {
		if err := db.Put(k, k*10); err != nil {
			t.Fatalf("Put(%d): %v", k, err)
		}
	}
	if err := db.Put(c+1, (c+1)*10); err != nil {
		t.Fatalf("Put(%d): %v", c+1, err)
	}

	stats, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats.Levels) == 0 || stats.Levels[0].RunCount != 1 {
		t.Fatalf("expected exactly one level-0 run after overflow, got %+v", stats.Levels)
	}
	if v, ok, err := db.Get(1); err != nil || !ok || v != 10 {
		t.Fatalf("Get(1) = %d, %v, %v; want 10, true, nil", v, ok, err)
	}
}

// TestBloomFalsePositiveRateWithinBound checks that, with filters at 10
// bits/entry, the on-disk runs' filters report unseen keys as possibly
// present no more often than 2x the theoretical false positive rate.
func TestBloomFalsePositiveRateWithinBound(t *testing.T) {
	opts := DefaultOptions()
	if err := opts.SetBloomBitsPerEntry(10); err != nil {
		t.Fatalf("SetBloomBitsPerEntry: %v", err)
	}
	if err := opts.SetMemtableCapacity(256); err != nil {
		t.Fatalf("SetMemtableCapacity: %v", err)
	}
	db, err := Open(vfs.NewMem(), "/db", opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	const n = 10000
	for k := int64(0); k < n; k++ {
		if err := db.Put(k, k); err != nil {
			t.Fatalf("Put(%d): %v", k, err)
		}
	}

	// Probe every on-disk run's filter directly: Get confirms a filter hit
	// against the run's pages, so it never surfaces a false positive.
	var runs []run.Run
	for level := 0; level < db.manifest.NumLevels(); level++ {
		for _, meta := range db.manifest.Runs(level) {
			r, err := run.Open(db.fs, db.name, meta, db.pool, db.opts.searchMode)
			if err != nil {
				t.Fatalf("run.Open(L%d/%d): %v", level, meta.ID, err)
			}
			defer r.Close()
			runs = append(runs, r)
		}
	}
	if len(runs) == 0 {
		t.Fatalf("expected on-disk runs after %d puts", n)
	}

	falsePositives, probes := 0, 0
	for k := int64(n); k < 2*n; k++ {
		if _, ok, err := db.Get(k); err != nil || ok {
			t.Fatalf("Get(%d) = ok=%v, err=%v; want absent", k, ok, err)
		}
		for _, r := range runs {
			probes++
			if r.MayContain(k) {
				falsePositives++
			}
		}
	}

	// Theoretical FPR at 10 bits/entry with an optimal hash count is
	// roughly 0.82%; allow up to 2x that before flagging a regression.
	theoreticalFPR := 0.0082
	gotFPR := float64(falsePositives) / float64(probes)
	if gotFPR > 2*theoreticalFPR {
		t.Fatalf("false positive rate %.4f exceeds 2x theoretical bound %.4f", gotFPR, theoreticalFPR)
	}
}

// TestReopenPreservesFlushedData checks that reopening a database
// preserves every get/scan result for keys whose last write was flushed.
func TestReopenPreservesFlushedData(t *testing.T) {
	fsys := vfs.NewMem()
	opts := DefaultOptions()
	if err := opts.SetMemtableCapacity(8); err != nil {
		t.Fatalf("SetMemtableCapacity: %v", err)
	}

	db, err := Open(fsys, "/db", opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for k := int64(1); k <= 8; k++ {
		if err := db.Put(k, k*10); err != nil {
			t.Fatalf("Put(%d): %v", k, err)
		}
	}
	if err := db.Put(9, 90); err != nil { // forces a flush of keys 1..8
		t.Fatalf("Put(9): %v", err)
	}
	if err := db.Close(); err != nil { // flushes key 9 too (FlushOnClose default)
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(fsys, "/db", opts)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	for k := int64(1); k <= 9; k++ {
		v, ok, err := reopened.Get(k)
		if err != nil {
			t.Fatalf("Get(%d): %v", k, err)
		}
		if !ok || v != k*10 {
			t.Fatalf("Get(%d) = %d, %v; want %d, true", k, v, ok, k*10)
		}
	}
	entries, err := reopened.Scan(1, 9)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(entries) != 9 {
		t.Fatalf("Scan(1,9) returned %d entries, want 9", len(entries))
	}
}

// TestEmptyFlushIsUniform confirms that closing a database with nothing
// written is not an error and produces a reopenable empty store.
func TestEmptyFlushIsUniform(t *testing.T) {
	fsys := vfs.NewMem()
	db, err := Open(fsys, "/db", DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	reopened, err := Open(fsys, "/db", DefaultOptions())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if _, ok, err := reopened.Get(1); err != nil || ok {
		t.Fatalf("Get(1) on empty db = ok=%v, err=%v; want absent", ok, err)
	}
}

func TestPutRejectsTombstoneValue(t *testing.T) {
	db, err := Open(vfs.NewMem(), "/db", DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	err = db.Put(1, -1<<63)
	if !errors.Is(err, ErrTombstoneValue) {
		t.Fatalf("Put(1, VALUE_MIN) error = %v, want ErrTombstoneValue", err)
	}
}

func TestInvalidDBNameRejected(t *testing.T) {
	_, err := Open(vfs.NewMem(), "/db with spaces", DefaultOptions())
	if !errors.Is(err, ErrInvalidDBName) {
		t.Fatalf("Open with whitespace name error = %v, want ErrInvalidDBName", err)
	}
}

func TestOperationsAfterCloseReturnErrClosed(t *testing.T) {
	db, err := Open(vfs.NewMem(), "/db", DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := db.Put(1, 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("Put after Close error = %v, want ErrClosed", err)
	}
	if _, _, err := db.Get(1); !errors.Is(err, ErrClosed) {
		t.Fatalf("Get after Close error = %v, want ErrClosed", err)
	}
}

func TestScanOrdersAscendingAndSkipsTombstones(t *testing.T) {
	db, err := Open(vfs.NewMem(), "/db", DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	for _, k := range []int64{5, 1, 4, 2, 3} {
		if err := db.Put(k, k*100); err != nil {
			t.Fatalf("Put(%d): %v", k, err)
		}
	}
	if err := db.Delete(3); err != nil {
		t.Fatalf("Delete(3): %v", err)
	}

	entries, err := db.Scan(1, 5)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	want := []int64{1, 2, 4, 5}
	if len(entries) != len(want) {
		t.Fatalf("Scan returned %d entries, want %d", len(entries), len(want))
	}
	for i, k := range want {
		if entries[i].Key != k || entries[i].Value != k*100 {
			t.Fatalf("entries[%d] = %+v, want key=%d value=%d", i, entries[i], k, k*100)
		}
	}
}
