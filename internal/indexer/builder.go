// Package indexer builds the persisted positional index of a corpus and opens
// completed indexes for lookups.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/coherence-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/coherence-index/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/metrics"
)

// EmptyPolicy decides what happens to a document without tokens.
type EmptyPolicy int

const (
	// RecordEmpty stores the document with length zero and no postings.
	RecordEmpty EmptyPolicy = iota
	// RejectEmpty fails the build with a format error.
	RejectEmpty
)

func (p EmptyPolicy) String() string {
	if p == RejectEmpty {
		return "reject"
	}
	return "record"
}

// ParseEmptyPolicy maps the configured policy name.
func ParseEmptyPolicy(s string) (EmptyPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "record":
		return RecordEmpty, nil
	case "reject":
		return RejectEmpty, nil
	}
	return 0, apperrors.Newf(apperrors.ErrInvalidInput, "unknown empty document policy %q", s)
}

// Options configures a single build.
type Options struct {
	TextField      string
	LengthField    string
	EmptyDocuments EmptyPolicy
	// BuildID tags logs and the manifest; a random id is used when empty.
	BuildID string
	// Progress is called after each document is indexed.
	Progress func(docID uint32)
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

func (o *Options) setDefaults() {
	if o.TextField == "" {
		o.TextField = config.DefaultTextField
	}
	if o.LengthField == "" {
		o.LengthField = config.DefaultLengthField
	}
	if o.BuildID == "" {
		o.BuildID = uuid.NewString()
	}
	if o.Logger == nil {
		o.Logger = slog.Default().With("component", "indexer")
	}
}

func (o Options) validate() error {
	for _, name := range []string{o.TextField, o.LengthField} {
		if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
			return apperrors.Newf(apperrors.ErrInvalidInput, "field name %q is not usable as a file name", name)
		}
	}
	if o.TextField == o.LengthField {
		return apperrors.Newf(apperrors.ErrInvalidInput, "text and length field share the name %q", o.TextField)
	}
	return nil
}

// BuildIndex consumes every document from docs, assigning ids 0, 1, 2, ... in
// ingestion order, and persists the positional postings and per-document
// lengths under destination. The returned Index is open for lookups.
//
// Any existing index at destination is replaced. On failure no manifest is
// left behind, so the location reads as incomplete until rebuilt.
func BuildIndex(ctx context.Context, docs DocumentSource, destination string, opts Options) (idx *Index, err error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if destination == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "index destination is empty")
	}
	log := opts.Logger.With("build_id", opts.BuildID, "destination", destination)
	start := time.Now()
	defer func() {
		if opts.Metrics == nil {
			return
		}
		status := "success"
		if err != nil {
			status = "error"
		}
		opts.Metrics.IndexBuildsTotal.WithLabelValues(status).Inc()
		opts.Metrics.IndexBuildDuration.Observe(time.Since(start).Seconds())
	}()

	if err := os.MkdirAll(destination, 0o755); err != nil {
		return nil, apperrors.IO("creating index directory", err)
	}
	lock, err := acquireLock(destination)
	if err != nil {
		return nil, err
	}
	manifest, err := build(ctx, docs, destination, opts, log)
	if rerr := lock.release(); rerr != nil && err == nil {
		err = rerr
	}
	if err != nil {
		log.Error("index build failed", "error", err)
		return nil, err
	}
	log.Info("index build complete",
		"docs", manifest.DocCount,
		"terms", manifest.TermCount,
		"tokens", manifest.TokenCount,
		"duration", time.Since(start),
	)
	return Open(destination)
}

func build(ctx context.Context, docs DocumentSource, dir string, opts Options, log *slog.Logger) (Manifest, error) {
	if err := clearIndex(dir, opts); err != nil {
		return Manifest{}, err
	}

	mem := index.NewMemoryIndex()
	var empty int
	for {
		if err := ctx.Err(); err != nil {
			return Manifest{}, fmt.Errorf("indexing documents: %w", err)
		}
		doc, err := docs.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Manifest{}, fmt.Errorf("reading document %d: %w", mem.DocCount(), err)
		}
		if uint64(mem.DocCount()) >= math.MaxUint32 {
			return Manifest{}, apperrors.Newf(apperrors.ErrInvalidInput, "corpus exceeds %d documents", uint64(math.MaxUint32))
		}
		docID := uint32(mem.DocCount())
		if doc.Length() == 0 {
			if opts.EmptyDocuments == RejectEmpty {
				return Manifest{}, apperrors.Newf(apperrors.ErrFormat, "document %d has no tokens", docID)
			}
			empty++
			if opts.Metrics != nil {
				opts.Metrics.EmptyDocsTotal.Inc()
			}
		}
		if err := mem.AddDocument(docID, doc.Tokens); err != nil {
			return Manifest{}, apperrors.Newf(apperrors.ErrFormat, "%v", err)
		}
		if opts.Metrics != nil {
			opts.Metrics.DocsIndexedTotal.Inc()
			opts.Metrics.TokensIndexedTotal.Add(float64(doc.Length()))
		}
		if opts.Progress != nil {
			opts.Progress(docID)
		}
	}
	log.Debug("documents tokenised",
		"docs", mem.DocCount(),
		"empty_docs", empty,
		"terms", mem.TermCount(),
		"postings_size", humanize.Bytes(uint64(mem.Size())),
	)

	segSize, err := segment.NewWriter(dir, opts.TextField).Write(ctx, mem.Snapshot(), uint32(mem.DocCount()))
	if err != nil {
		return Manifest{}, classifyWrite("writing postings", err)
	}
	lenSize, err := segment.WriteLengths(ctx, dir, opts.LengthField, mem.Lengths())
	if err != nil {
		return Manifest{}, classifyWrite("writing document lengths", err)
	}
	log.Info("index files written",
		"segment", segment.FileName(opts.TextField),
		"segment_size", humanize.Bytes(uint64(segSize)),
		"lengths", segment.LengthFileName(opts.LengthField),
		"lengths_size", humanize.Bytes(uint64(lenSize)),
	)

	manifest := Manifest{
		Version:        manifestVersion,
		BuildID:        opts.BuildID,
		TextField:      opts.TextField,
		LengthField:    opts.LengthField,
		DocCount:       uint32(mem.DocCount()),
		TermCount:      uint32(mem.TermCount()),
		TokenCount:     mem.TokenCount(),
		EmptyDocuments: opts.EmptyDocuments.String(),
		CreatedAt:      time.Now().UTC(),
	}
	if err := ctx.Err(); err != nil {
		return Manifest{}, fmt.Errorf("finishing index: %w", err)
	}
	if err := writeManifest(dir, manifest); err != nil {
		return Manifest{}, err
	}
	if opts.Metrics != nil {
		opts.Metrics.IndexTermCount.Set(float64(manifest.TermCount))
	}
	return manifest, nil
}

// clearIndex removes the manifest first so a build interrupted at any later
// point leaves the location marked incomplete.
func clearIndex(dir string, opts Options) error {
	stale := []string{
		ManifestFile,
		segment.FileName(opts.TextField),
		segment.LengthFileName(opts.LengthField),
		HistogramFileName(opts.LengthField),
	}
	if old, err := ReadManifest(dir); err == nil {
		stale = append(stale,
			segment.FileName(old.TextField),
			segment.LengthFileName(old.LengthField),
			HistogramFileName(old.LengthField),
		)
	}
	for _, name := range stale {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return apperrors.IO("removing "+name, err)
		}
	}
	return nil
}

// HistogramFileName is where the length histogram of field is saved inside
// an index directory.
func HistogramFileName(field string) string {
	return field + ".hist.json"
}

func classifyWrite(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return apperrors.IO(op, err)
}
