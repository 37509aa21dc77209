package dbformat

import "testing"

func TestIsTombstone(t *testing.T) {
	if !(Entry{Key: 1, Value: ValueMin}).IsTombstone() {
		t.Fatalf("entry with ValueMin should be a tombstone")
	}
	if (Entry{Key: 1, Value: 0}).IsTombstone() {
		t.Fatalf("entry with value 0 should not be a tombstone")
	}
}

func TestValueMinIsMostNegative(t *testing.T) {
	if ValueMin != -9223372036854775808 {
		t.Fatalf("ValueMin = %d, want the most-negative int64", ValueMin)
	}
	v := ValueMin
	if v-1 != 9223372036854775807 {
		// Sanity: confirms ValueMin really is math.MinInt64 under two's
		// complement wraparound, without importing math in the test.
		t.Fatalf("ValueMin does not behave like math.MinInt64")
	}
}
