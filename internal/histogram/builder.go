package histogram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/coherence-index/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/metrics"
)

// Builder derives histograms from completed indexes.
type Builder struct {
	metrics *metrics.Metrics
	group   singleflight.Group
}

// NewBuilder returns a Builder; m may be nil.
func NewBuilder(m *metrics.Metrics) *Builder {
	return &Builder{metrics: m}
}

func (b *Builder) log(ctx context.Context) *slog.Logger {
	return logger.FromContext(ctx).With("component", "histogram")
}

// Build reads the completed index in dir and counts the documents of each
// value of lengthField. It never writes to the index and fails with
// ErrLocked while a build holds the location.
func (b *Builder) Build(ctx context.Context, dir, lengthField string) (h *Histogram, err error) {
	defer func() {
		if b.metrics == nil {
			return
		}
		status := "success"
		if err != nil {
			status = "error"
		}
		b.metrics.HistogramBuildsTotal.WithLabelValues(status).Inc()
		if err == nil {
			b.metrics.HistogramBuckets.Set(float64(h.Len()))
		}
	}()
	if lengthField == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "length field name is empty")
	}
	idx, err := openIndex(dir)
	if err != nil {
		return nil, err
	}
	defer idx.Close()
	return b.fromIndex(ctx, idx, lengthField)
}

// openIndex reports a directory without a completed index as not found,
// keeping ErrIncomplete in the chain.
func openIndex(dir string) (*indexer.Index, error) {
	idx, err := indexer.Open(dir)
	if errors.Is(err, apperrors.ErrIncomplete) {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrNotFound, err)
	}
	return idx, err
}

func (b *Builder) fromIndex(ctx context.Context, idx *indexer.Index, lengthField string) (*Histogram, error) {
	start := time.Now()
	h := New()
	err := idx.ScanLengths(ctx, lengthField, func(_, length uint32) error {
		h.Add(length)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s lengths: %w", lengthField, err)
	}
	if h.Total() != uint64(idx.DocCount()) {
		return nil, apperrors.Newf(apperrors.ErrInconsistent,
			"histogram counts %d documents, index holds %d", h.Total(), idx.DocCount())
	}
	b.log(ctx).Info("histogram built",
		"dir", idx.Dir(),
		"field", lengthField,
		"docs", h.Total(),
		"buckets", h.Len(),
		"duration", time.Since(start),
	)
	return h, nil
}

// saved is the on-disk form of a histogram kept next to the index files.
type saved struct {
	BuildID     string   `json:"build_id"`
	LengthField string   `json:"length_field"`
	DocCount    uint64   `json:"doc_count"`
	Buckets     []Bucket `json:"buckets"`
}

// Save writes h into the index directory, tagged with the index build id.
func Save(dir, buildID, lengthField string, h *Histogram) error {
	data, err := json.Marshal(saved{
		BuildID:     buildID,
		LengthField: lengthField,
		DocCount:    h.Total(),
		Buckets:     h.Buckets(),
	})
	if err != nil {
		return fmt.Errorf("marshaling histogram: %w", err)
	}
	path := filepath.Join(dir, indexer.HistogramFileName(lengthField))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperrors.IO("writing histogram", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return apperrors.IO("renaming histogram", err)
	}
	return nil
}

// Load reads a histogram saved by Save and returns it with its build id.
func Load(dir, lengthField string) (*Histogram, string, error) {
	data, err := os.ReadFile(filepath.Join(dir, indexer.HistogramFileName(lengthField)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", apperrors.Newf(apperrors.ErrNotFound, "no saved %s histogram in %s", lengthField, dir)
		}
		return nil, "", apperrors.IO("reading histogram", err)
	}
	var s saved
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, "", apperrors.Newf(apperrors.ErrFormat, "parsing histogram: %v", err)
	}
	if s.LengthField != lengthField {
		return nil, "", apperrors.Newf(apperrors.ErrFormat, "histogram file holds field %q, want %q", s.LengthField, lengthField)
	}
	h := FromBuckets(s.Buckets)
	if h.Total() != s.DocCount {
		return nil, "", apperrors.Newf(apperrors.ErrInconsistent,
			"saved histogram sums to %d, header says %d", h.Total(), s.DocCount)
	}
	return h, s.BuildID, nil
}

// Get returns the histogram of lengthField for the index in dir, reusing a
// saved copy when it belongs to the current build and otherwise building
// and saving a fresh one. Concurrent calls for the same index and field
// share one computation.
func (b *Builder) Get(ctx context.Context, dir, lengthField string) (*Histogram, error) {
	if lengthField == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "length field name is empty")
	}
	key := dir + "\x00" + lengthField
	v, err, shared := b.group.Do(key, func() (any, error) {
		return b.loadOrBuild(ctx, dir, lengthField)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		b.log(ctx).Debug("histogram request coalesced", "dir", dir, "field", lengthField)
	}
	return v.(*Histogram), nil
}

func (b *Builder) loadOrBuild(ctx context.Context, dir, lengthField string) (*Histogram, error) {
	idx, err := openIndex(dir)
	if err != nil {
		return nil, err
	}
	defer idx.Close()
	buildID := idx.Manifest().BuildID

	h, savedID, err := Load(dir, lengthField)
	switch {
	case err == nil && savedID == buildID && h.Total() == uint64(idx.DocCount()):
		return h, nil
	case err != nil && !errors.Is(err, apperrors.ErrNotFound):
		b.log(ctx).Warn("discarding unreadable saved histogram", "dir", dir, "field", lengthField, "error", err)
	}

	h, err = b.fromIndex(ctx, idx, lengthField)
	if b.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		b.metrics.HistogramBuildsTotal.WithLabelValues(status).Inc()
	}
	if err != nil {
		return nil, err
	}
	if b.metrics != nil {
		b.metrics.HistogramBuckets.Set(float64(h.Len()))
	}
	if err := Save(dir, buildID, lengthField, h); err != nil {
		return nil, err
	}
	return h, nil
}
