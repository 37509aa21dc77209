package compaction

import (
	"container/heap"

	"github.com/aalhour/lsmkv/internal/dbformat"
	"github.com/aalhour/lsmkv/internal/run"
)

// source wraps one input run's cursor with its rank: rank 0 is the
// newest run among the inputs. When two sources carry the same key, the
// lower-rank (newer) one wins: last-writer-wins.
type source struct {
	cur  run.Cursor
	rank int
	key  int64
	val  int64
}

// sourceHeap orders sources by ascending key, breaking ties by ascending
// rank (newest first) so the merge loop sees duplicates newest-first.
type sourceHeap []*source

func (h sourceHeap) Len() int { return len(h) }
func (h sourceHeap) Less(i, j int) bool {
	if h[i].key != h[j].key {
		return h[i].key < h[j].key
	}
	return h[i].rank < h[j].rank
}
func (h sourceHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *sourceHeap) Push(x any)         { *h = append(*h, x.(*source)) }
func (h *sourceHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// MergeIter streams the last-writer-wins merge of several runs in
// ascending key order, at most one entry per key. Runs must be supplied
// newest-first: Inputs[0] is the newest.
type MergeIter struct {
	h   sourceHeap
	all []*source // every source, including exhausted ones, for Close
}

// NewMergeIter opens a cursor on every input run and seeds the heap.
// Inputs must be ordered newest-first (rank = index).
func NewMergeIter(inputs []run.Run) (*MergeIter, error) {
	mi := &MergeIter{}
	for rank, r := range inputs {
		cur, err := r.Cursor()
		if err != nil {
			mi.Close()
			return nil, err
		}
		src := &source{cur: cur, rank: rank}
		mi.all = append(mi.all, src)
		if mi.advance(src) {
			mi.h = append(mi.h, src)
		}
	}
	heap.Init(&mi.h)
	return mi, nil
}

// advance pulls the next entry from src's cursor into src, reporting
// whether one was available.
func (mi *MergeIter) advance(src *source) bool {
	e, ok := src.cur.Next()
	if !ok {
		return false
	}
	src.key, src.val = e.Key, e.Value
	return true
}

// Next returns the next entry in the last-writer-wins merged stream,
// discarding any older duplicate of the same key. Returns ok=false once
// every input is exhausted.
func (mi *MergeIter) Next() (dbformat.Entry, bool) {
	if mi.h.Len() == 0 {
		return dbformat.Entry{}, false
	}
	top := heap.Pop(&mi.h).(*source)
	out := dbformat.Entry{Key: top.key, Value: top.val}

	if mi.advance(top) {
		heap.Push(&mi.h, top)
	}
	// Discard every other source's entry for the same key: they are all
	// older than the one already returned (ties broken by rank above).
	for mi.h.Len() > 0 && mi.h[0].key == out.Key {
		dup := heap.Pop(&mi.h).(*source)
		if mi.advance(dup) {
			heap.Push(&mi.h, dup)
		}
	}
	return out, true
}

// Close releases every input cursor.
func (mi *MergeIter) Close() error {
	var first error
	for _, src := range mi.all {
		if err := src.cur.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
