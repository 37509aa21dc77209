// Package bufferpool implements the process-wide page cache: a cache of
// fixed-size page buffers keyed by (run id, page offset), backed by an
// extendible hash directory with clock-and-LRU eviction within each
// bucket.
package bufferpool

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/aalhour/lsmkv/internal/checksum"
	"github.com/aalhour/lsmkv/internal/mempool"
	"github.com/aalhour/lsmkv/internal/page"
)

// Key identifies one cached page: the run that owns it and its byte offset
// within that run's file.
type Key struct {
	RunID  uint64
	Offset uint64
}

func (k Key) hash() uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], k.RunID)
	binary.LittleEndian.PutUint64(buf[8:16], k.Offset)
	return checksum.SeededHash(buf[:], 0)
}

// framesPerBucket bounds how many frames a bucket holds before it must
// split.
const framesPerBucket = 4

type frame struct {
	key  Key
	data []byte
}

type bucket struct {
	localDepth int
	refBit     bool
	frames     []*frame // head (index 0) = least recently used, tail = most recently used
}

func (b *bucket) find(key Key) int {
	for i, fr := range b.frames {
		if fr.key == key {
			return i
		}
	}
	return -1
}

func (b *bucket) touch(i int) {
	fr := b.frames[i]
	b.frames = append(b.frames[:i], b.frames[i+1:]...)
	b.frames = append(b.frames, fr)
}

// Pool is the shared page buffer cache. It is not safe for concurrent use;
// the engine is single-threaded with respect to client calls.
type Pool struct {
	enabled      bool
	capacity     int // max live frames
	globalDepth  int
	directory    []*bucket
	buckets      []*bucket // every distinct bucket, for invalidation sweeps
	hand         int       // clock hand, persists across Evict calls
	count        int       // live frame count
	pages        *mempool.PagePool

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates a buffer pool with the given frame capacity and initial
// global depth (the starting directory size is 2^initialDepth).
// enabled=false makes every operation behave as a pass-through miss, for
// callers that want to disable caching entirely.
func New(capacityFrames, initialDepth int, enabled bool) *Pool {
	if initialDepth < 0 {
		initialDepth = 0
	}
	if capacityFrames < 1 {
		capacityFrames = 1
	}
	n := 1 << initialDepth
	p := &Pool{
		enabled:     enabled,
		capacity:    capacityFrames,
		globalDepth: initialDepth,
		directory:   make([]*bucket, n),
		pages:       mempool.NewPagePool(page.Size),
	}
	for i := range p.directory {
		b := &bucket{localDepth: initialDepth}
		p.buckets = append(p.buckets, b)
		p.directory[i] = b
	}
	return p
}

// CapacityFromMB converts a megabyte budget into a frame count.
func CapacityFromMB(mb int) int {
	return (mb * 1024 * 1024) / page.Size
}

// DepthForFrames returns the smallest initial global depth whose starting
// directory (2^depth buckets of framesPerBucket frames each) can hold at
// least wantFrames frames without an initial split, for the "initial
// size" configuration option.
func DepthForFrames(wantFrames int) int {
	depth := 0
	for (1<<depth)*framesPerBucket < wantFrames {
		depth++
	}
	return depth
}

// Enabled reports whether caching is active.
func (p *Pool) Enabled() bool { return p.enabled }

func (p *Pool) slot(key Key) int {
	mask := uint64(len(p.directory) - 1)
	return int(key.hash() & mask)
}

// Get returns the cached page for key, or (nil, false) on a miss. On a
// hit, the frame moves to the tail (most-recently-used) of its bucket and
// the bucket's reference bit is set for the clock sweep.
func (p *Pool) Get(key Key) ([]byte, bool) {
	if !p.enabled {
		return nil, false
	}
	b := p.directory[p.slot(key)]
	if i := b.find(key); i >= 0 {
		b.touch(i)
		b.refBit = true
		p.hits.Add(1)
		return b.frames[len(b.frames)-1].data, true
	}
	p.misses.Add(1)
	return nil, false
}

// Insert adds key->data to the pool, evicting frames if necessary to stay
// within capacity, splitting buckets (and doubling the directory if
// needed) if the target bucket is full.
func (p *Pool) Insert(key Key, data []byte) {
	if !p.enabled {
		return
	}
	if b := p.directory[p.slot(key)]; b.find(key) >= 0 {
		// Already cached (e.g. re-fetched after a racing miss): refresh.
		i := b.find(key)
		b.frames[i].data = data
		b.touch(i)
		b.refBit = true
		return
	}

	for p.count >= p.capacity {
		if !p.evictOne() {
			break // pool holds nothing evictable; insert over capacity as a last resort
		}
	}

	fr := &frame{key: key, data: data}
	for {
		b := p.directory[p.slot(key)]
		if len(b.frames) < framesPerBucket {
			b.frames = append(b.frames, fr)
			p.count++
			return
		}
		p.split(b)
	}
}

// split grows bucket b's local depth by one, creating a sibling and
// redistributing frames by the next-higher hash bit; it doubles the
// directory first if b's local depth already equals the global depth.
func (p *Pool) split(b *bucket) {
	if b.localDepth == p.globalDepth {
		p.growDirectory()
	}
	newDepth := b.localDepth + 1
	bitPos := uint(newDepth - 1)

	sibling := &bucket{localDepth: newDepth}
	b.localDepth = newDepth

	kept := b.frames[:0]
	var moved []*frame
	for _, fr := range b.frames {
		if (fr.key.hash()>>bitPos)&1 == 1 {
			moved = append(moved, fr)
		} else {
			kept = append(kept, fr)
		}
	}
	b.frames = kept
	sibling.frames = moved
	p.buckets = append(p.buckets, sibling)

	for idx := range p.directory {
		if p.directory[idx] == b && (uint(idx)>>bitPos)&1 == 1 {
			p.directory[idx] = sibling
		}
	}
}

// growDirectory doubles the directory, preserving every existing mapping:
// slot i and slot i+oldLen both point at the bucket slot i used to.
func (p *Pool) growDirectory() {
	old := p.directory
	p.directory = make([]*bucket, len(old)*2)
	copy(p.directory, old)
	copy(p.directory[len(old):], old)
	p.globalDepth++
}

// evictOne performs one step of the clock sweep, possibly advancing
// through multiple reference-bit-set buckets before removing a least-
// recently-used frame. Returns false if the pool holds no frames at all.
func (p *Pool) evictOne() bool {
	if p.count == 0 {
		return false
	}
	limit := 2*len(p.directory) + 1
	for range limit {
		b := p.directory[p.hand]
		if b.refBit {
			b.refBit = false
			p.advanceHand()
			continue
		}
		if len(b.frames) > 0 {
			b.frames = b.frames[1:] // remove head: least recently used
			p.count--
			p.advanceHand()
			return true
		}
		p.advanceHand()
	}
	return false
}

func (p *Pool) advanceHand() {
	p.hand = (p.hand + 1) % len(p.directory)
}

// InvalidateRun drops every cached frame belonging to runID. Called after
// a compaction unlinks a run, so its page-number keys cannot alias a
// future run that reuses the same offsets.
func (p *Pool) InvalidateRun(runID uint64) {
	for _, b := range p.buckets {
		kept := b.frames[:0]
		for _, fr := range b.frames {
			if fr.key.RunID != runID {
				kept = append(kept, fr)
			} else {
				p.count--
			}
		}
		b.frames = kept
	}
}

// AcquirePageBuffer returns a zeroed page.Size buffer for the caller to
// fill in before an Insert, recycled from the pool's internal page-buffer
// free list.
func (p *Pool) AcquirePageBuffer() []byte {
	return p.pages.Get()
}

// ReleasePageBuffer returns a page buffer obtained from AcquirePageBuffer
// back to the free list. Only call this for buffers that are not (or no
// longer) held by a cached frame.
func (p *Pool) ReleasePageBuffer(buf []byte) {
	p.pages.Put(buf)
}

// Len returns the number of live frames.
func (p *Pool) Len() int { return p.count }

// Capacity returns the configured frame capacity.
func (p *Pool) Capacity() int { return p.capacity }

// HitRate returns the fraction of Get calls that were hits (0 if none
// have occurred).
func (p *Pool) HitRate() float64 {
	hits, misses := p.hits.Load(), p.misses.Load()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
