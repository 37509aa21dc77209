package memtable

import (
	"math/rand"
	"testing"
)

func TestSkipListPutGet(t *testing.T) {
	s := newSkipList()
	s.Put(10, 100)
	s.Put(5, 50)
	s.Put(10, 101) // overwrite

	if v, ok := s.Get(10); !ok || v != 101 {
		t.Fatalf("Get(10) = (%d, %v), want (101, true)", v, ok)
	}
	if v, ok := s.Get(5); !ok || v != 50 {
		t.Fatalf("Get(5) = (%d, %v), want (50, true)", v, ok)
	}
	if _, ok := s.Get(999); ok {
		t.Fatalf("Get(999) found, want absent")
	}
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
}

func TestSkipListAscendingOrder(t *testing.T) {
	s := newSkipList()
	keys := rand.New(rand.NewSource(1)).Perm(500)
	for _, k := range keys {
		s.Put(int64(k), int64(k)*2)
	}
	pairs := s.ascending()
	if len(pairs) != 500 {
		t.Fatalf("ascending() len = %d, want 500", len(pairs))
	}
	for i := 1; i < len(pairs); i++ {
		if pairs[i-1].key >= pairs[i].key {
			t.Fatalf("ascending() not sorted at index %d: %d >= %d", i, pairs[i-1].key, pairs[i].key)
		}
	}
	for _, p := range pairs {
		if p.value != p.key*2 {
			t.Fatalf("pair %+v has value != key*2", p)
		}
	}
}

func TestSkipListEmptyGet(t *testing.T) {
	s := newSkipList()
	if _, ok := s.Get(0); ok {
		t.Fatalf("Get on empty list reported found")
	}
	if s.Len() != 0 {
		t.Fatalf("Len() on empty list = %d, want 0", s.Len())
	}
}

func TestSkipListNegativeKeys(t *testing.T) {
	s := newSkipList()
	s.Put(-100, 1)
	s.Put(0, 2)
	s.Put(100, 3)
	pairs := s.ascending()
	want := []int64{-100, 0, 100}
	for i, p := range pairs {
		if p.key != want[i] {
			t.Fatalf("pairs[%d].key = %d, want %d", i, p.key, want[i])
		}
	}
}
