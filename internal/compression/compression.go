// Package compression provides the page-payload compression codecs wired
// into internal/page. The on-disk wire format is otherwise fixed-width
// and uncompressed; this package only ever compresses the raw bytes of a
// single page slot's payload, never a variable-length key.
package compression

import (
	"fmt"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type identifies a page compression codec.
type Type uint8

const (
	// NoCompression stores the page payload as-is.
	NoCompression Type = 0
	// Snappy compresses with Google Snappy.
	Snappy Type = 1
	// LZ4 compresses with raw-block LZ4.
	LZ4 Type = 2
	// Zstd compresses with Zstandard.
	Zstd Type = 3
)

// String returns the human-readable name of the codec.
func (t Type) String() string {
	switch t {
	case NoCompression:
		return "none"
	case Snappy:
		return "snappy"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ParseType maps a configuration string to a Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "", "none":
		return NoCompression, nil
	case "snappy":
		return Snappy, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	default:
		return 0, fmt.Errorf("compression: unknown codec %q", s)
	}
}

// Compress compresses data with the given codec. A nil result with a nil
// error means the data did not compress usefully and should be stored raw.
func Compress(t Type, data []byte) ([]byte, error) {
	switch t {
	case NoCompression:
		return data, nil
	case Snappy:
		return snappy.Encode(nil, data), nil
	case LZ4:
		return compressLZ4(data)
	case Zstd:
		return compressZstd(data)
	default:
		return nil, fmt.Errorf("compression: unsupported codec %s", t)
	}
}

// DecompressWithSize decompresses data, given the known uncompressed size
// (required for LZ4 raw-block decoding).
func DecompressWithSize(t Type, data []byte, expectedSize int) ([]byte, error) {
	switch t {
	case NoCompression:
		return data, nil
	case Snappy:
		return snappy.Decode(nil, data)
	case LZ4:
		return decompressLZ4(data, expectedSize)
	case Zstd:
		return decompressZstd(data)
	default:
		return nil, fmt.Errorf("compression: unsupported codec %s", t)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	var ht [1 << 16]int
	n, err := lz4.CompressBlock(data, dst, ht[:])
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 {
		// Incompressible: signal "store raw" to the caller.
		return nil, nil
	}
	return dst[:n], nil
}

func decompressLZ4(data []byte, expectedSize int) ([]byte, error) {
	dst := make([]byte, expectedSize)
	n, err := lz4.UncompressBlock(data, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	return dst[:n], nil
}

func compressZstd(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func decompressZstd(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}
