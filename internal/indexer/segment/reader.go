package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/coherence-index/internal/indexer/index"
)

// Reader serves posting lists from one segment file. The dictionary is held
// in memory; postings are read on demand, so a Reader is safe for concurrent
// lookups.
type Reader struct {
	file     *os.File
	filePath string
	header   SegmentHeader
	dict     []DictEntry
	postBase int64
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := readSegment(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func readSegment(f *os.File, path string) (*Reader, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading segment header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(headerBytes[0:4])
	if magic != MagicBytes {
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", magic)
	}
	header := SegmentHeader{
		Magic:      magic,
		Version:    binary.LittleEndian.Uint32(headerBytes[4:8]),
		TermCount:  binary.LittleEndian.Uint32(headerBytes[8:12]),
		DocCount:   binary.LittleEndian.Uint32(headerBytes[12:16]),
		DictOffset: int64(binary.LittleEndian.Uint64(headerBytes[16:24])),
		DictSize:   int64(binary.LittleEndian.Uint64(headerBytes[24:32])),
		PostOffset: int64(binary.LittleEndian.Uint64(headerBytes[32:40])),
		PostSize:   int64(binary.LittleEndian.Uint64(headerBytes[40:48])),
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported segment version %d", header.Version)
	}
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("inspecting segment file: %w", err)
	}
	if header.DictOffset < int64(HeaderSize) || header.DictSize < 0 ||
		header.DictOffset+header.DictSize+int64(FooterSize) != info.Size() {
		return nil, fmt.Errorf("segment %s: dictionary bounds do not match file size %d", path, info.Size())
	}
	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, header.DictOffset+header.DictSize); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	if sum := binary.LittleEndian.Uint32(footer[0:4]); sum != crc32.ChecksumIEEE(dictBytes) {
		return nil, fmt.Errorf("dictionary checksum mismatch in %s", path)
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	if len(dict) != int(header.TermCount) {
		return nil, fmt.Errorf("dictionary holds %d terms, header says %d", len(dict), header.TermCount)
	}
	return &Reader{
		file:     f,
		filePath: path,
		header:   header,
		dict:     dict,
		postBase: header.PostOffset,
	}, nil
}

func (r *Reader) lookup(term string) (DictEntry, bool) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= term
	})
	if idx >= len(r.dict) || r.dict[idx].Term != term {
		return DictEntry{}, false
	}
	return r.dict[idx], true
}

// Search returns the posting list of term, or nil when the term is absent.
func (r *Reader) Search(term string) (index.PostingList, error) {
	entry, ok := r.lookup(term)
	if !ok {
		return nil, nil
	}
	postingsBytes := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(postingsBytes, r.postBase+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}
	var postings index.PostingList
	if err := json.Unmarshal(postingsBytes, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings: %w", err)
	}
	return postings, nil
}

// DocFreq returns the number of documents containing term without reading
// its postings.
func (r *Reader) DocFreq(term string) int {
	entry, ok := r.lookup(term)
	if !ok {
		return 0
	}
	return entry.DocFreq
}

// ForEachTerm calls fn with every term in ascending order until fn returns
// false.
func (r *Reader) ForEachTerm(fn func(term string, docFreq int) bool) {
	for _, e := range r.dict {
		if !fn(e.Term, e.DocFreq) {
			return
		}
	}
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

func (r *Reader) Path() string {
	return r.filePath
}

func (r *Reader) Close() error {
	return r.file.Close()
}
