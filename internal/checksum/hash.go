package checksum

import "github.com/zeebo/xxh3"

// SeededHash is the 64-bit non-cryptographic hash parameterized by a 64-bit
// seed referenced throughout the store: the Bloom filter derives its k
// probe functions from it, and the buffer pool's extendible hash directory
// hashes (run id, page offset) keys with it.
//
// Backed by XXH3 for its speed and strong avalanche behavior at this seed
// width.
func SeededHash(data []byte, seed uint64) uint64 {
	return xxh3.HashSeed(data, seed)
}
