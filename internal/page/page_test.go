package page

import (
	"errors"
	"testing"

	"github.com/aalhour/lsmkv/internal/compression"
	"github.com/aalhour/lsmkv/internal/dbformat"
)

func TestEntryPageRoundTrip(t *testing.T) {
	for _, codec := range []compression.Type{compression.NoCompression, compression.Snappy, compression.Zstd, compression.LZ4} {
		entries := make([]dbformat.Entry, EntriesPerPage)
		for i := range entries {
			entries[i] = dbformat.Entry{Key: int64(i), Value: int64(i * 10)}
		}
		slot, err := EncodeEntryPage(entries, codec)
		if err != nil {
			t.Fatalf("[%s] encode: %v", codec, err)
		}
		if len(slot) != Size {
			t.Fatalf("[%s] slot length = %d, want %d", codec, len(slot), Size)
		}
		got, err := DecodeEntryPage(slot)
		if err != nil {
			t.Fatalf("[%s] decode: %v", codec, err)
		}
		for i := range entries {
			if got[i] != entries[i] {
				t.Fatalf("[%s] entry %d = %+v, want %+v", codec, i, got[i], entries[i])
			}
		}
	}
}

func TestEntryPagePartialIsZeroPadded(t *testing.T) {
	entries := []dbformat.Entry{{Key: 5, Value: 50}, {Key: 6, Value: 60}}
	slot, err := EncodeEntryPage(entries, compression.NoCompression)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeEntryPage(slot)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got[0] != entries[0] || got[1] != entries[1] {
		t.Fatalf("first entries mismatch: %+v", got[:2])
	}
	for i := 2; i < len(got); i++ {
		if got[i] != (dbformat.Entry{}) {
			t.Fatalf("tail entry %d not zero-padded: %+v", i, got[i])
		}
	}
}

func TestDelimiterPageRoundTrip(t *testing.T) {
	keys := make([]int64, DelimitersPerPage)
	for i := range keys {
		keys[i] = int64(i * 3)
	}
	slot, err := EncodeDelimiterPage(keys, compression.NoCompression)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeDelimiterPage(slot)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range keys {
		if got[i] != keys[i] {
			t.Fatalf("delimiter %d = %d, want %d", i, got[i], keys[i])
		}
	}
}

func TestDecodeRejectsBadChecksum(t *testing.T) {
	entries := []dbformat.Entry{{Key: 1, Value: 1}}
	slot, err := EncodeEntryPage(entries, compression.NoCompression)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	slot[10] ^= 0xFF
	if _, err := DecodeEntryPage(slot); !errors.Is(err, ErrBadPage) {
		t.Fatalf("decode of corrupted page: err = %v, want ErrBadPage", err)
	}
}

func TestEncodeEntryPageRejectsOverCapacity(t *testing.T) {
	entries := make([]dbformat.Entry, EntriesPerPage+1)
	if _, err := EncodeEntryPage(entries, compression.NoCompression); err == nil {
		t.Fatalf("expected error for over-capacity entry page")
	}
}
