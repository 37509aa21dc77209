// Package page implements the fixed-size page codec: a page is PageSize
// bytes and holds either entries (key, value pairs) or delimiter keys,
// little-endian, with any remainder at the tail zero-padded.
//
// Each physical page slot on disk is always exactly PageSize bytes — array
// and B-tree runs depend on that fixed stride to do page-granular binary
// search by direct offset arithmetic (page i starts at i*PageSize). The
// logical entry/delimiter bytes inside a slot may optionally be
// compressed: the slot carries a small header (compression type, encoded
// length) and is zero-padded to fill the remaining PageSize bytes, with a
// masked CRC32C trailer over the rest of the slot for corruption detection.
package page

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/aalhour/lsmkv/internal/checksum"
	"github.com/aalhour/lsmkv/internal/compression"
	"github.com/aalhour/lsmkv/internal/dbformat"
)

// Size is the single compile-time page size constant shared by every
// on-disk structure and the buffer pool. Implementations must not mix
// page sizes within one database.
const Size = 4096

// EntriesPerPage is E = PageSize/16, the number of (key,value) records an
// entry page holds.
const EntriesPerPage = Size / dbformat.EntrySize

// DelimitersPerPage is D = PageSize/8, the number of keys a delimiter page
// holds.
const DelimitersPerPage = Size / 8

const (
	headerLen  = 1 + 4 // compression type byte + uint32 payload length
	trailerLen = 4      // masked CRC32C over [0:Size-trailerLen]
	payloadCap = Size - headerLen - trailerLen
)

// ErrBadPage is returned when a page slot fails its checksum, has an
// unrecognized compression type, or decodes to the wrong payload length.
// Fatal for the run being read: the caller refuses to use it further.
var ErrBadPage = errors.New("page: corrupt or malformed page")

// rawCapacityBytes is the uncompressed logical payload size for each kind.
func rawCapacityBytes(kind Kind) int {
	if kind == Entries {
		return EntriesPerPage * dbformat.EntrySize
	}
	return DelimitersPerPage * 8
}

// Kind distinguishes an entry page from a delimiter page.
type Kind int

const (
	// Entries marks a page of (key,value) records.
	Entries Kind = iota
	// Delimiters marks a page of inner-node delimiter keys.
	Delimiters
)

// EncodeEntryPage packs up to EntriesPerPage entries into one PageSize-byte
// slot. Fewer than EntriesPerPage entries are zero-padded at the tail.
func EncodeEntryPage(entries []dbformat.Entry, codec compression.Type) ([]byte, error) {
	if len(entries) > EntriesPerPage {
		return nil, fmt.Errorf("page: %d entries exceeds capacity %d", len(entries), EntriesPerPage)
	}
	raw := make([]byte, rawCapacityBytes(Entries))
	for i, e := range entries {
		off := i * dbformat.EntrySize
		binary.LittleEndian.PutUint64(raw[off:], uint64(e.Key))
		binary.LittleEndian.PutUint64(raw[off+8:], uint64(e.Value))
	}
	return encodeSlot(raw, codec)
}

// DecodeEntryPage unpacks a PageSize-byte slot into up to EntriesPerPage
// entries. The caller trims the result to the run's recorded entry count
// for the last, possibly-partial page.
func DecodeEntryPage(slot []byte) ([]dbformat.Entry, error) {
	raw, err := decodeSlot(slot, rawCapacityBytes(Entries))
	if err != nil {
		return nil, err
	}
	out := make([]dbformat.Entry, EntriesPerPage)
	for i := range out {
		off := i * dbformat.EntrySize
		out[i] = dbformat.Entry{
			Key:   int64(binary.LittleEndian.Uint64(raw[off:])),
			Value: int64(binary.LittleEndian.Uint64(raw[off+8:])),
		}
	}
	return out, nil
}

// EncodeDelimiterPage packs up to DelimitersPerPage keys into one slot.
func EncodeDelimiterPage(keys []int64, codec compression.Type) ([]byte, error) {
	if len(keys) > DelimitersPerPage {
		return nil, fmt.Errorf("page: %d delimiters exceeds capacity %d", len(keys), DelimitersPerPage)
	}
	raw := make([]byte, rawCapacityBytes(Delimiters))
	for i, k := range keys {
		binary.LittleEndian.PutUint64(raw[i*8:], uint64(k))
	}
	return encodeSlot(raw, codec)
}

// DecodeDelimiterPage unpacks a slot into up to DelimitersPerPage keys.
func DecodeDelimiterPage(slot []byte) ([]int64, error) {
	raw, err := decodeSlot(slot, rawCapacityBytes(Delimiters))
	if err != nil {
		return nil, err
	}
	out := make([]int64, DelimitersPerPage)
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return out, nil
}

func encodeSlot(raw []byte, codec compression.Type) ([]byte, error) {
	payload := raw
	if codec != compression.NoCompression {
		compressed, err := compression.Compress(codec, raw)
		if err != nil {
			return nil, fmt.Errorf("page: compress: %w", err)
		}
		// Only use the compressed form if it actually fits the envelope;
		// otherwise fall back to storing the page uncompressed.
		if compressed != nil && len(compressed) <= payloadCap {
			payload = compressed
		} else {
			codec = compression.NoCompression
			payload = raw
		}
	}
	if len(payload) > payloadCap {
		return nil, fmt.Errorf("page: payload of %d bytes exceeds slot capacity %d", len(payload), payloadCap)
	}

	slot := make([]byte, Size)
	slot[0] = byte(codec)
	binary.LittleEndian.PutUint32(slot[1:5], uint32(len(payload)))
	copy(slot[headerLen:], payload)

	crc := checksum.MaskedValue(slot[:Size-trailerLen])
	binary.LittleEndian.PutUint32(slot[Size-trailerLen:], crc)
	return slot, nil
}

func decodeSlot(slot []byte, wantRawLen int) ([]byte, error) {
	if len(slot) != Size {
		return nil, fmt.Errorf("%w: slot length %d != page size %d", ErrBadPage, len(slot), Size)
	}

	gotCRC := binary.LittleEndian.Uint32(slot[Size-trailerLen:])
	wantCRC := checksum.MaskedValue(slot[:Size-trailerLen])
	if gotCRC != wantCRC {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrBadPage)
	}

	codec := compression.Type(slot[0])
	payloadLen := binary.LittleEndian.Uint32(slot[1:5])
	if int(payloadLen) > payloadCap {
		return nil, fmt.Errorf("%w: payload length %d exceeds capacity", ErrBadPage, payloadLen)
	}
	payload := slot[headerLen : headerLen+int(payloadLen)]

	if codec == compression.NoCompression {
		if len(payload) != wantRawLen {
			return nil, fmt.Errorf("%w: uncompressed payload length %d != %d", ErrBadPage, len(payload), wantRawLen)
		}
		return payload, nil
	}

	raw, err := compression.DecompressWithSize(codec, payload, wantRawLen)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %v", ErrBadPage, err)
	}
	if len(raw) != wantRawLen {
		return nil, fmt.Errorf("%w: decompressed length %d != %d", ErrBadPage, len(raw), wantRawLen)
	}
	return raw, nil
}
