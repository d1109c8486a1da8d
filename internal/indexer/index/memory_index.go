package index

import (
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/coherence-index/internal/indexer/tokenizer"
)

// MemoryIndex accumulates the positional postings and document lengths of a
// single build pass. Documents must be added with dense, ascending ids
// starting at zero, which lets postings be appended without searching.
// It is owned by one builder and is not safe for concurrent use.
type MemoryIndex struct {
	index   map[string]PostingList
	lengths []uint32
	tokens  int64
	size    int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index: make(map[string]PostingList),
	}
}

// AddDocument folds one document's tokens into the index under docID.
func (m *MemoryIndex) AddDocument(docID uint32, tokens []tokenizer.Token) error {
	if int64(docID) != int64(len(m.lengths)) {
		return fmt.Errorf("document id %d out of sequence, expected %d", docID, len(m.lengths))
	}
	for i, token := range tokens {
		if token.Position != i {
			return fmt.Errorf("document %d: token %q at position %d, expected %d", docID, token.Term, token.Position, i)
		}
		postings := m.index[token.Term]
		last := len(postings) - 1
		if last >= 0 && postings[last].DocID == docID {
			postings[last].Positions = append(postings[last].Positions, uint32(i))
			m.size += 4
			continue
		}
		m.index[token.Term] = append(postings, Posting{
			DocID:     docID,
			Positions: []uint32{uint32(i)},
		})
		if last < 0 {
			m.size += int64(len(token.Term)) + 48
		}
		m.size += 32
	}
	m.lengths = append(m.lengths, uint32(len(tokens)))
	m.tokens += int64(len(tokens))
	return nil
}

// Search returns the posting list for term, or nil.
func (m *MemoryIndex) Search(term string) PostingList {
	return m.index[term]
}

// Snapshot returns every term with its postings, ordered by term.
func (m *MemoryIndex) Snapshot() []TermEntry {
	entries := make([]TermEntry, 0, len(m.index))
	for term, postings := range m.index {
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: postings,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

// Lengths returns the recorded document lengths indexed by document id.
func (m *MemoryIndex) Lengths() []uint32 {
	return m.lengths
}

// Size is a rough estimate of the bytes held by the postings.
func (m *MemoryIndex) Size() int64 {
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	return len(m.lengths)
}

func (m *MemoryIndex) TermCount() int {
	return len(m.index)
}

func (m *MemoryIndex) TokenCount() int64 {
	return m.tokens
}

func (m *MemoryIndex) Reset() {
	m.index = make(map[string]PostingList)
	m.lengths = nil
	m.tokens = 0
	m.size = 0
}
