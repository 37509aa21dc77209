package compression

import (
	"bytes"
	"testing"
)

func sample() []byte {
	b := make([]byte, 2048)
	for i := range b {
		b[i] = byte(i % 17)
	}
	return b
}

func TestRoundTripAllCodecs(t *testing.T) {
	for _, codec := range []Type{NoCompression, Snappy, LZ4, Zstd} {
		t.Run(codec.String(), func(t *testing.T) {
			data := sample()
			compressed, err := Compress(codec, data)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			if compressed == nil {
				compressed = data
			}
			got, err := DecompressWithSize(codec, compressed, len(data))
			if err != nil {
				t.Fatalf("DecompressWithSize: %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Fatalf("round trip mismatch for %s", codec)
			}
		})
	}
}

func TestParseType(t *testing.T) {
	cases := map[string]Type{"": NoCompression, "none": NoCompression, "snappy": Snappy, "lz4": LZ4, "zstd": Zstd}
	for s, want := range cases {
		got, err := ParseType(s)
		if err != nil || got != want {
			t.Fatalf("ParseType(%q) = %v, %v; want %v, nil", s, got, err, want)
		}
	}
	if _, err := ParseType("bogus"); err == nil {
		t.Fatalf("expected error for unknown codec")
	}
}
