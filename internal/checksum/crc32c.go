// Package checksum provides the checksum and hashing primitives shared by
// the page codec, the Bloom filter, and the buffer pool directory.
package checksum

import (
	"hash/crc32"
)

// crc32cTable is the Castagnoli polynomial table used for CRC32C.
var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// maskDelta is added during masking so an all-zero buffer does not checksum
// to zero.
const maskDelta = 0xa282ead8

// Value computes the CRC32C checksum of data.
func Value(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}

// Mask returns a masked representation of crc, safe to embed in the data it
// was computed over without self-reference ambiguity.
func Mask(crc uint32) uint32 {
	return ((crc >> 15) | (crc << 17)) + maskDelta
}

// Unmask reverses Mask.
func Unmask(maskedCRC uint32) uint32 {
	rot := maskedCRC - maskDelta
	return (rot >> 17) | (rot << 15)
}

// MaskedValue computes the CRC32C of data and masks it in one call.
func MaskedValue(data []byte) uint32 {
	return Mask(Value(data))
}
