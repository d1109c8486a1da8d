package segmentation

import (
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/errors"
)

// Strategy selects which pairs a word set is segmented into.
type Strategy int

const (
	// AllAll pairs every non-empty subset with every non-empty subset,
	// itself included: (2^n-1)^2 pairs.
	AllAll Strategy = iota
	// WholeSet is the single pair (full set, full set).
	WholeSet
	// OneOne pairs each single word with each other single word.
	OneOne
	// OnePreceding pairs each single word with each single word before it.
	OnePreceding
	// OneSucceeding pairs each single word with each single word after it.
	OneSucceeding
	// OneAll pairs each single word with the set of all other words.
	OneAll
	// OneAny pairs each single word with every non-empty subset of the
	// other words.
	OneAny
	// AnyAny pairs every non-empty subset with every non-empty subset
	// disjoint from it.
	AnyAny
	// OneSet pairs each single word with the full set.
	OneSet
)

// rule describes a strategy as an outer loop over segments and an inner
// loop over the conditions of each segment. width is the number of
// conditions a segment produces, which lets output ranges be assigned before
// any pair is generated.
type rule struct {
	name       string
	segments   func(n int, yield func(Subset) bool)
	conditions func(n int, seg Subset, yield func(Subset) bool)
	width      func(n int, seg Subset) uint64
}

var rules = [...]rule{
	AllAll: {
		name:     "all-all",
		segments: nonEmptySubsets,
		conditions: func(n int, _ Subset, yield func(Subset) bool) {
			nonEmptySubsets(n, yield)
		},
		width: func(n int, _ Subset) uint64 { return 1<<n - 1 },
	},
	WholeSet: {
		name:     "whole-set",
		segments: func(n int, yield func(Subset) bool) { yield(FullSet(n)) },
		conditions: func(n int, _ Subset, yield func(Subset) bool) {
			yield(FullSet(n))
		},
		width: func(int, Subset) uint64 { return 1 },
	},
	OneOne: {
		name:     "one-one",
		segments: singles,
		conditions: func(n int, seg Subset, yield func(Subset) bool) {
			for j := 0; j < n; j++ {
				if !seg.Contains(j) && !yield(Single(j)) {
					return
				}
			}
		},
		width: func(n int, _ Subset) uint64 { return uint64(n - 1) },
	},
	OnePreceding: {
		name:     "one-preceding",
		segments: singles,
		conditions: func(_ int, seg Subset, yield func(Subset) bool) {
			for j := 0; Single(j) < seg; j++ {
				if !yield(Single(j)) {
					return
				}
			}
		},
		width: func(_ int, seg Subset) uint64 { return uint64(seg.Indices()[0]) },
	},
	OneSucceeding: {
		name:     "one-succeeding",
		segments: singles,
		conditions: func(n int, seg Subset, yield func(Subset) bool) {
			for j := seg.Indices()[0] + 1; j < n; j++ {
				if !yield(Single(j)) {
					return
				}
			}
		},
		width: func(n int, seg Subset) uint64 { return uint64(n - 1 - seg.Indices()[0]) },
	},
	OneAll: {
		name:     "one-all",
		segments: singles,
		conditions: func(n int, seg Subset, yield func(Subset) bool) {
			if rest := FullSet(n) &^ seg; rest != 0 {
				yield(rest)
			}
		},
		width: func(n int, _ Subset) uint64 {
			if n > 1 {
				return 1
			}
			return 0
		},
	},
	OneAny: {
		name:     "one-any",
		segments: singles,
		conditions: func(n int, seg Subset, yield func(Subset) bool) {
			submasks(FullSet(n)&^seg, yield)
		},
		width: func(n int, _ Subset) uint64 { return 1<<(n-1) - 1 },
	},
	AnyAny: {
		name:     "any-any",
		segments: nonEmptySubsets,
		conditions: func(n int, seg Subset, yield func(Subset) bool) {
			submasks(FullSet(n)&^seg, yield)
		},
		width: func(n int, seg Subset) uint64 { return 1<<(n-seg.Len()) - 1 },
	},
	OneSet: {
		name:     "one-set",
		segments: singles,
		conditions: func(n int, _ Subset, yield func(Subset) bool) {
			yield(FullSet(n))
		},
		width: func(int, Subset) uint64 { return 1 },
	},
}

func nonEmptySubsets(n int, yield func(Subset) bool) {
	full := FullSet(n)
	for s := Subset(1); s <= full && s != 0; s++ {
		if !yield(s) {
			return
		}
	}
}

func singles(n int, yield func(Subset) bool) {
	for i := 0; i < n; i++ {
		if !yield(Single(i)) {
			return
		}
	}
}

func (s Strategy) valid() bool {
	return s >= 0 && int(s) < len(rules)
}

func (s Strategy) String() string {
	if !s.valid() {
		return "unknown"
	}
	return rules[s].name
}

// Strategies lists every strategy in declaration order.
func Strategies() []Strategy {
	out := make([]Strategy, len(rules))
	for i := range rules {
		out[i] = Strategy(i)
	}
	return out
}

// ParseStrategy accepts the names printed by String, case-insensitively,
// with or without separators ("AllAll", "all-all", "all_all").
func ParseStrategy(name string) (Strategy, error) {
	key := normalizeName(name)
	for i, r := range rules {
		if normalizeName(r.name) == key {
			return Strategy(i), nil
		}
	}
	return 0, apperrors.Newf(apperrors.ErrInvalidInput, "unknown segmentation strategy %q", name)
}

func normalizeName(name string) string {
	return strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(name))
}
