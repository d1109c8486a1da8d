// Package segmentation enumerates the (segment, conditioning set) pairs of a
// topic's word set under a chosen segmentation strategy. Subsets are sets of
// word positions, so repeated words keep distinct identities.
package segmentation

import (
	"math/bits"
	"strconv"
	"strings"
)

// MaxWordSetSize is the largest word set a Subset can address.
const MaxWordSetSize = 20

// Subset is a set of word positions; bit i set means position i is in it.
type Subset uint32

// FullSet returns the subset holding positions 0..n-1.
func FullSet(n int) Subset {
	return Subset(1)<<n - 1
}

// Single returns the subset holding position i only.
func Single(i int) Subset {
	return Subset(1) << i
}

func (s Subset) Contains(i int) bool {
	return s&Single(i) != 0
}

// Len is the number of positions in s.
func (s Subset) Len() int {
	return bits.OnesCount32(uint32(s))
}

// Indices returns the positions in ascending order.
func (s Subset) Indices() []int {
	out := make([]int, 0, s.Len())
	for v := uint32(s); v != 0; v &= v - 1 {
		out = append(out, bits.TrailingZeros32(v))
	}
	return out
}

// Words picks the words at the positions of s.
func (s Subset) Words(words []string) []string {
	out := make([]string, 0, s.Len())
	for _, i := range s.Indices() {
		if i < len(words) {
			out = append(out, words[i])
		}
	}
	return out
}

// String formats s as "{0,2,3}".
func (s Subset) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for k, i := range s.Indices() {
		if k > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(i))
	}
	b.WriteByte('}')
	return b.String()
}

// Pair is one segmentation pair: the statistic of Segment is conditioned
// on Condition.
type Pair struct {
	Segment   Subset
	Condition Subset
}

func (p Pair) String() string {
	return p.Segment.String() + " | " + p.Condition.String()
}

// submasks yields the non-empty submasks of mask in ascending order.
func submasks(mask Subset, yield func(Subset) bool) bool {
	for t := (0 - mask) & mask; t != 0; t = (t - mask) & mask {
		if !yield(t) {
			return false
		}
	}
	return true
}
