// Package compaction implements four compaction policies — none, tiered,
// leveled, and a hybrid (Dostoevsky-style) mix of the two — sharing one
// k-way merge primitive, plus the post-flush cascading trigger that
// re-scans levels bottom-up after every flush.
package compaction

import (
	"fmt"

	"github.com/aalhour/lsmkv/internal/manifest"
)

// Kind names one of the four compaction policies.
type Kind int

const (
	// None never compacts; reads walk every run in the only level.
	None Kind = iota
	// Tiered merges T same-level runs into one next-level run.
	Tiered
	// Leveled keeps at most one run per level, merging an arriving run
	// with its level's existing run and placing the result one level down.
	Leveled
	// Hybrid is tiered above LastLevel and leveled at LastLevel and below —
	// a Dostoevsky-style split that keeps write amplification low in the
	// upper levels while bounding read amplification at the bottom.
	Hybrid
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Tiered:
		return "tiered"
	case Leveled:
		return "leveled"
	case Hybrid:
		return "dostoevsky"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ParseKind maps a configuration string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "none":
		return None, nil
	case "tiered":
		return Tiered, nil
	case "leveled":
		return Leveled, nil
	case "dostoevsky", "hybrid":
		return Hybrid, nil
	default:
		return 0, fmt.Errorf("compaction: unknown policy %q", s)
	}
}

// Policy bundles a Kind with its parameters: the per-level size ratio T
// (must be >= 2) and, for Hybrid, the index of the deepest configured
// level — tiered above it, leveled at and below it, since tombstones and
// cold data collect at the deepest level and a leveled shape minimizes
// space and read amplification there.
type Policy struct {
	Kind      Kind
	SizeRatio int
	LastLevel int
}

// leveledAt reports whether level behaves as a leveled (true) or a tiered
// (false) level under this policy.
func (p Policy) leveledAt(level int) bool {
	switch p.Kind {
	case Leveled:
		return true
	case Hybrid:
		return level >= p.LastLevel
	default:
		return false
	}
}

// needsCompaction reports whether level currently exceeds its budget and
// must be compacted into the next level before the engine facade's
// cascading post-flush scan can stop.
func needsCompaction(p Policy, m *manifest.Manifest, level int) bool {
	if p.Kind == None {
		return false
	}
	runs := m.Runs(level)
	if p.leveledAt(level) {
		return len(runs) > 1
	}
	return len(runs) >= p.SizeRatio
}
