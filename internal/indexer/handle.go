package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/coherence-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/coherence-index/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/errors"
)

// Index is a read-only handle on a completed index. Lookups are safe for
// concurrent use; posting lists returned by it are shared and must not be
// modified.
type Index struct {
	dir      string
	manifest Manifest
	reader   *segment.Reader
	lengths  []uint32
	lookups  singleflight.Group
	logger   *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Open opens the completed index in dir.
func Open(dir string) (*Index, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.Newf(apperrors.ErrNotFound, "index location %s", dir)
		}
		return nil, apperrors.IO("inspecting index location", err)
	}
	if !info.IsDir() {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "index location %s is not a directory", dir)
	}
	if isLocked(dir) {
		return nil, apperrors.Newf(apperrors.ErrLocked, "index at %s is being written", dir)
	}
	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}

	reader, err := segment.OpenReader(filepath.Join(dir, segment.FileName(manifest.TextField)))
	if err != nil {
		return nil, classifyRead(fmt.Sprintf("field %q", manifest.TextField), err)
	}
	lengths, err := segment.ReadLengths(dir, manifest.LengthField)
	if err != nil {
		reader.Close()
		return nil, classifyRead(fmt.Sprintf("field %q", manifest.LengthField), err)
	}
	if reader.DocCount() != manifest.DocCount || uint32(len(lengths)) != manifest.DocCount {
		reader.Close()
		return nil, apperrors.Newf(apperrors.ErrInconsistent,
			"manifest records %d documents, postings %d, lengths %d",
			manifest.DocCount, reader.DocCount(), len(lengths))
	}
	if uint32(reader.Terms()) != manifest.TermCount {
		reader.Close()
		return nil, apperrors.Newf(apperrors.ErrInconsistent,
			"manifest records %d terms, postings hold %d", manifest.TermCount, reader.Terms())
	}
	return &Index{
		dir:      dir,
		manifest: manifest,
		reader:   reader,
		lengths:  lengths,
		logger:   slog.Default().With("component", "index", "dir", dir),
	}, nil
}

func classifyRead(what string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return apperrors.Newf(apperrors.ErrNotFound, "%s: %v", what, err)
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return apperrors.IO(what, err)
	}
	return fmt.Errorf("%w: %s: %w", apperrors.ErrFormat, what, err)
}

func (x *Index) Dir() string {
	return x.dir
}

func (x *Index) Manifest() Manifest {
	return x.manifest
}

// Fields returns the text and length field names.
func (x *Index) Fields() (text, length string) {
	return x.manifest.TextField, x.manifest.LengthField
}

func (x *Index) DocCount() int {
	return int(x.manifest.DocCount)
}

func (x *Index) TermCount() int {
	return int(x.manifest.TermCount)
}

func (x *Index) TokenCount() int64 {
	return x.manifest.TokenCount
}

// Postings returns the posting list of term, ordered by document id, or nil
// when no document contains it. Concurrent lookups of the same term share
// one read.
func (x *Index) Postings(term string) (index.PostingList, error) {
	if x.reader.DocFreq(term) == 0 {
		return nil, nil
	}
	v, err, _ := x.lookups.Do(term, func() (any, error) {
		return x.reader.Search(term)
	})
	if err != nil {
		return nil, classifyRead(fmt.Sprintf("postings of %q", term), err)
	}
	return v.(index.PostingList), nil
}

// Positions returns the positions of term inside docID, or nil.
func (x *Index) Positions(term string, docID uint32) ([]uint32, error) {
	postings, err := x.Postings(term)
	if err != nil {
		return nil, err
	}
	if p, ok := postings.Find(docID); ok {
		return p.Positions, nil
	}
	return nil, nil
}

// DocumentFrequency is the number of documents containing term.
func (x *Index) DocumentFrequency(term string) int {
	return x.reader.DocFreq(term)
}

// DocumentSet returns the ids of the documents containing term.
func (x *Index) DocumentSet(term string) (*roaring.Bitmap, error) {
	postings, err := x.Postings(term)
	if err != nil {
		return nil, err
	}
	return roaring.BitmapOf(postings.DocIDs()...), nil
}

// CoDocumentCount counts the documents containing every one of terms.
func (x *Index) CoDocumentCount(terms ...string) (uint64, error) {
	if len(terms) == 0 {
		return 0, apperrors.New(apperrors.ErrInvalidInput, "no terms given")
	}
	sets := make([]*roaring.Bitmap, 0, len(terms))
	for _, term := range terms {
		set, err := x.DocumentSet(term)
		if err != nil {
			return 0, err
		}
		if set.IsEmpty() {
			return 0, nil
		}
		sets = append(sets, set)
	}
	if len(sets) == 1 {
		return sets[0].GetCardinality(), nil
	}
	return roaring.FastAnd(sets...).GetCardinality(), nil
}

// Length returns the token count of docID.
func (x *Index) Length(docID uint32) (uint32, error) {
	if docID >= x.manifest.DocCount {
		return 0, apperrors.Newf(apperrors.ErrNotFound, "document %d (index holds %d)", docID, x.manifest.DocCount)
	}
	return x.lengths[docID], nil
}

// ScanLengths calls fn with the value of the named length field for every
// document, in id order. It fails with ErrNotFound when the field is not
// stored or lacks a value for some document.
func (x *Index) ScanLengths(ctx context.Context, field string, fn func(docID, length uint32) error) error {
	lengths := x.lengths
	if field != x.manifest.LengthField {
		var err error
		lengths, err = segment.ReadLengths(x.dir, field)
		if err != nil {
			return classifyRead(fmt.Sprintf("length field %q", field), err)
		}
		if uint32(len(lengths)) != x.manifest.DocCount {
			return apperrors.Newf(apperrors.ErrNotFound,
				"length field %q holds %d values for %d documents", field, len(lengths), x.manifest.DocCount)
		}
	}
	for i, l := range lengths {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := fn(uint32(i), l); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying files. It is safe to call more than once.
func (x *Index) Close() error {
	x.closeOnce.Do(func() {
		if err := x.reader.Close(); err != nil {
			x.closeErr = apperrors.IO("closing index", err)
			return
		}
		x.logger.Debug("index closed")
	})
	return x.closeErr
}
