package index

// Posting records every position of one term within one document. Positions
// are zero-based token offsets and strictly increasing.
type Posting struct {
	DocID     uint32   `json:"d"`
	Positions []uint32 `json:"p"`
}

// Frequency is the number of occurrences of the term in the document.
func (p Posting) Frequency() int {
	return len(p.Positions)
}

// PostingList is ordered by ascending DocID with no duplicates.
type PostingList []Posting

// DocIDs returns the document ids of the list in order.
func (pl PostingList) DocIDs() []uint32 {
	ids := make([]uint32, len(pl))
	for i, p := range pl {
		ids[i] = p.DocID
	}
	return ids
}

// Find returns the posting for docID, if the term occurs in it.
func (pl PostingList) Find(docID uint32) (Posting, bool) {
	lo, hi := 0, len(pl)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if pl[mid].DocID < docID {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(pl) && pl[lo].DocID == docID {
		return pl[lo], true
	}
	return Posting{}, false
}

type TermEntry struct {
	Term     string
	Postings PostingList
}
