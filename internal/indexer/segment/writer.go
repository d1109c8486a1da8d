package segment

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/coherence-index/internal/indexer/index"
)

// MagicBytes identifies a valid .spdx segment file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 32
	Extension            = ".spdx"
)

// SegmentHeader is the 64-byte header written at the start of every segment.
type SegmentHeader struct {
	Magic      uint32
	Version    uint32
	TermCount  uint32
	DocCount   uint32
	DictOffset int64
	DictSize   int64
	PostOffset int64
	PostSize   int64
}

// DictEntry maps a term to its postings offset, length, and document frequency
// in the segment file.
type DictEntry struct {
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

// FileName returns the segment file name holding the postings of field.
func FileName(field string) string {
	return field + Extension
}

// Writer serialises the postings of one text field into a segment file.
type Writer struct {
	dir   string
	field string
}

// NewWriter creates a Writer for field inside dir.
func NewWriter(dir, field string) *Writer {
	return &Writer{dir: dir, field: field}
}

// Path is the final location of the segment file.
func (w *Writer) Path() string {
	return filepath.Join(w.dir, FileName(w.field))
}

// Write creates the segment file containing entries, which must be sorted by
// term. docCount is the number of documents of the whole index, including
// those without postings. It writes to a .tmp file first and renames on
// success; the temporary file is removed on failure. An empty entries slice
// produces a valid segment with no terms.
func (w *Writer) Write(ctx context.Context, entries []index.TermEntry, docCount uint32) (size int64, err error) {
	finalPath := w.Path()
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("creating temp segment file: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	headerBytes := make([]byte, HeaderSize)
	if _, err := f.Write(headerBytes); err != nil {
		return 0, fmt.Errorf("writing header placeholder: %w", err)
	}

	bw := bufio.NewWriterSize(f, 1<<16)
	postingsStart := int64(HeaderSize)
	offset := postingsStart
	dict := make([]DictEntry, 0, len(entries))
	for i, entry := range entries {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, fmt.Errorf("writing postings: %w", err)
			}
		}
		if i > 0 && entries[i-1].Term >= entry.Term {
			return 0, fmt.Errorf("terms out of order: %q after %q", entry.Term, entries[i-1].Term)
		}
		postingsData, err := json.Marshal(entry.Postings)
		if err != nil {
			return 0, fmt.Errorf("marshaling postings for term %q: %w", entry.Term, err)
		}
		if _, err := bw.Write(postingsData); err != nil {
			return 0, fmt.Errorf("writing postings for term %q: %w", entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Term:       entry.Term,
			PostOffset: offset - postingsStart,
			PostLen:    len(postingsData),
			DocFreq:    len(entry.Postings),
		})
		offset += int64(len(postingsData))
	}

	postingsSize := offset - postingsStart
	dictStart := offset
	dictData, err := json.Marshal(dict)
	if err != nil {
		return 0, fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := bw.Write(dictData); err != nil {
		return 0, fmt.Errorf("writing dictionary: %w", err)
	}
	dictSize := int64(len(dictData))

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(dictData))
	binary.LittleEndian.PutUint32(footer[4:8], docCount)
	binary.LittleEndian.PutUint64(footer[8:16], uint64(dictStart))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(dictSize))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(postingsSize))
	if _, err := bw.Write(footer); err != nil {
		return 0, fmt.Errorf("writing footer: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("flushing segment file: %w", err)
	}

	binary.LittleEndian.PutUint32(headerBytes[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(headerBytes[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(headerBytes[8:12], uint32(len(entries)))
	binary.LittleEndian.PutUint32(headerBytes[12:16], docCount)
	binary.LittleEndian.PutUint64(headerBytes[16:24], uint64(dictStart))
	binary.LittleEndian.PutUint64(headerBytes[24:32], uint64(dictSize))
	binary.LittleEndian.PutUint64(headerBytes[32:40], uint64(postingsStart))
	binary.LittleEndian.PutUint64(headerBytes[40:48], uint64(postingsSize))
	if _, err := f.WriteAt(headerBytes, 0); err != nil {
		return 0, fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("syncing segment file: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return 0, fmt.Errorf("renaming segment file: %w", err)
	}
	return dictStart + dictSize + int64(FooterSize), nil
}
