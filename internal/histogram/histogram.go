// Package histogram derives the document-length histogram of a completed
// index: for every distinct length value, how many documents have it.
package histogram

import (
	"maps"
	"slices"
)

// Bucket is one histogram entry.
type Bucket struct {
	Length uint32 `json:"length"`
	Count  uint64 `json:"count"`
}

// Histogram maps document lengths to document counts. Only lengths that
// occur are present; every stored count is at least one.
type Histogram struct {
	counts map[uint32]uint64
	total  uint64
}

func New() *Histogram {
	return &Histogram{counts: make(map[uint32]uint64)}
}

// FromBuckets rebuilds a histogram from its buckets. Buckets with a zero
// count are dropped; repeated lengths are summed.
func FromBuckets(buckets []Bucket) *Histogram {
	h := New()
	for _, b := range buckets {
		h.addN(b.Length, b.Count)
	}
	return h
}

// Add records one document of the given length.
func (h *Histogram) Add(length uint32) {
	h.addN(length, 1)
}

func (h *Histogram) addN(length uint32, n uint64) {
	if n == 0 {
		return
	}
	h.counts[length] += n
	h.total += n
}

// Count is the number of documents with exactly length tokens.
func (h *Histogram) Count(length uint32) uint64 {
	return h.counts[length]
}

// CountAtLeast is the number of documents with at least minLength tokens.
func (h *Histogram) CountAtLeast(minLength uint32) uint64 {
	var n uint64
	for length, c := range h.counts {
		if length >= minLength {
			n += c
		}
	}
	return n
}

// Total is the sum of all counts, which equals the number of documents the
// histogram was built from.
func (h *Histogram) Total() uint64 {
	return h.total
}

// Len is the number of distinct lengths.
func (h *Histogram) Len() int {
	return len(h.counts)
}

// Lengths returns the distinct lengths in ascending order.
func (h *Histogram) Lengths() []uint32 {
	return slices.Sorted(maps.Keys(h.counts))
}

// Buckets returns every entry ordered by length.
func (h *Histogram) Buckets() []Bucket {
	lengths := h.Lengths()
	buckets := make([]Bucket, len(lengths))
	for i, l := range lengths {
		buckets[i] = Bucket{Length: l, Count: h.counts[l]}
	}
	return buckets
}

func (h *Histogram) Equal(other *Histogram) bool {
	if h == nil || other == nil {
		return h == other
	}
	return h.total == other.total && maps.Equal(h.counts, other.counts)
}
