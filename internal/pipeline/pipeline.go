// Package pipeline runs a complete corpus indexing job: tokenise and index
// the input files, derive and persist the document-length histogram, publish
// it to the configured sinks and announce the finished index.
package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/coherence-index/internal/histogram"
	"github.com/Adithya-Monish-Kumar-K/coherence-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/coherence-index/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/tracing"
)

// Publisher announces finished indexes; *kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// IndexComplete is published once an index and its histogram are in place.
type IndexComplete struct {
	BuildID        string    `json:"build_id"`
	Path           string    `json:"path"`
	TextField      string    `json:"text_field"`
	LengthField    string    `json:"length_field"`
	DocCount       int       `json:"doc_count"`
	TermCount      int       `json:"term_count"`
	HistogramTotal uint64    `json:"histogram_total"`
	CompletedAt    time.Time `json:"completed_at"`
}

// Result summarises a finished run.
type Result struct {
	Manifest  indexer.Manifest
	Histogram *histogram.Histogram
}

type Pipeline struct {
	cfg        *config.Config
	analyzer   tokenizer.Analyzer
	emptyDocs  indexer.EmptyPolicy
	histograms *histogram.Builder
	sinks      []histogram.Sink
	publisher  Publisher
	metrics    *metrics.Metrics
	progress   io.Writer
	logger     *slog.Logger
}

type Option func(*Pipeline)

// WithSinks adds histogram sinks, written in order after the histogram is
// saved.
func WithSinks(sinks ...histogram.Sink) Option {
	return func(p *Pipeline) { p.sinks = append(p.sinks, sinks...) }
}

// WithPublisher announces completed indexes through pub.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithProgress writes per-file and per-document progress to w.
func WithProgress(w io.Writer) Option {
	return func(p *Pipeline) { p.progress = w }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New resolves the configured normalisers and empty document policy.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	normalize, err := tokenizer.ByNames(cfg.Indexer.Normalizers)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "%v", err)
	}
	policy, err := indexer.ParseEmptyPolicy(cfg.Indexer.EmptyDocuments)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:       cfg,
		analyzer:  tokenizer.NewAnalyzer(normalize),
		emptyDocs: policy,
		logger:    slog.Default().With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.histograms = histogram.NewBuilder(p.metrics)
	return p, nil
}

// Run indexes inputs into destination. Every input file is checked before
// anything is written, so a missing file leaves destination untouched.
func (p *Pipeline) Run(ctx context.Context, destination string, inputs []string) (*Result, error) {
	if destination == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "index output path is empty")
	}
	if len(inputs) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "no input files")
	}
	for _, path := range inputs {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, apperrors.Newf(apperrors.ErrNotFound, "input file %s", path)
			}
			return nil, apperrors.IO("checking input file "+path, err)
		}
		if info.IsDir() {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, "input %s is a directory", path)
		}
	}

	buildID := uuid.NewString()
	ctx = logger.WithBuildID(ctx, buildID)
	ctx, root := tracing.StartSpan(ctx, "index-pipeline", buildID)
	root.SetAttr("destination", destination)
	root.SetAttr("inputs", len(inputs))
	defer func() {
		root.End()
		if p.cfg.Tracing.Enabled {
			root.Log(p.logger)
		}
	}()
	log := p.logger.With("build_id", buildID)

	var manifest indexer.Manifest
	err := tracing.Stage(ctx, "index", func(ctx context.Context) error {
		return resilience.WithTimeout(ctx, p.cfg.Indexer.BuildTimeout, "index build", func(ctx context.Context) error {
			m, err := p.buildIndex(ctx, destination, inputs, buildID)
			manifest = m
			return err
		})
	})
	if err != nil {
		root.Err = err
		return nil, err
	}

	var hist *histogram.Histogram
	err = tracing.Stage(ctx, "histogram", func(ctx context.Context) error {
		return resilience.WithTimeout(ctx, p.cfg.Histogram.Timeout, "histogram build", func(ctx context.Context) error {
			h, err := p.histograms.Get(ctx, destination, manifest.LengthField)
			hist = h
			return err
		})
	})
	if err != nil {
		root.Err = err
		return nil, err
	}
	if hist.Total() != uint64(manifest.DocCount) {
		err := apperrors.Newf(apperrors.ErrInconsistent,
			"histogram counts %d documents, index holds %d", hist.Total(), manifest.DocCount)
		root.Err = err
		return nil, err
	}

	ref := histogram.Ref{IndexPath: destination, BuildID: buildID, LengthField: manifest.LengthField}
	if err := tracing.Stage(ctx, "sinks", func(ctx context.Context) error {
		return p.writeSinks(ctx, ref, hist)
	}); err != nil {
		root.Err = err
		return nil, err
	}

	if p.publisher != nil {
		event := IndexComplete{
			BuildID:        buildID,
			Path:           destination,
			TextField:      manifest.TextField,
			LengthField:    manifest.LengthField,
			DocCount:       int(manifest.DocCount),
			TermCount:      int(manifest.TermCount),
			HistogramTotal: hist.Total(),
			CompletedAt:    time.Now().UTC(),
		}
		if err := p.publisher.Publish(ctx, kafka.Event{Key: destination, Value: event}); err != nil {
			err = fmt.Errorf("%w: announcing index: %w", apperrors.ErrIO, err)
			root.Err = err
			return nil, err
		}
	}

	log.Info("pipeline complete",
		"destination", destination,
		"docs", manifest.DocCount,
		"terms", manifest.TermCount,
		"histogram_buckets", hist.Len(),
	)
	return &Result{Manifest: manifest, Histogram: hist}, nil
}

func (p *Pipeline) buildIndex(ctx context.Context, destination string, inputs []string, buildID string) (indexer.Manifest, error) {
	var out *bufio.Writer
	if p.progress != nil {
		out = bufio.NewWriter(p.progress)
		defer out.Flush()
	}
	src := indexer.NewFileSource(inputs, p.analyzer, indexer.FileHooks{
		Opened: func(path string) {
			if out != nil {
				fmt.Fprintf(out, "Opening file %s\n", path)
			}
		},
		Done: func(path string, docs int) {
			if out != nil {
				fmt.Fprintln(out, " done")
				out.Flush()
			}
			p.logger.Debug("input file indexed", "build_id", buildID, "path", path, "docs", docs)
		},
	})
	defer src.Close()

	opts := indexer.Options{
		TextField:      p.cfg.Indexer.TextField,
		LengthField:    p.cfg.Indexer.LengthField,
		EmptyDocuments: p.emptyDocs,
		BuildID:        buildID,
		Metrics:        p.metrics,
	}
	if out != nil && p.cfg.Indexer.ProgressDots {
		opts.Progress = func(uint32) { out.WriteByte('.') }
	}
	idx, err := indexer.BuildIndex(ctx, src, destination, opts)
	if err != nil {
		return indexer.Manifest{}, err
	}
	manifest := idx.Manifest()
	if err := idx.Close(); err != nil {
		return indexer.Manifest{}, err
	}
	tracing.SpanFromContext(ctx).SetAttr("docs", manifest.DocCount)
	return manifest, nil
}

// writeSinks tries every sink once and reports all failures together.
func (p *Pipeline) writeSinks(ctx context.Context, ref histogram.Ref, h *histogram.Histogram) error {
	var errs []error
	for _, sink := range p.sinks {
		status := "success"
		if err := sink.Write(ctx, ref, h); err != nil {
			status = "error"
			p.logger.Error("histogram sink failed", "sink", sink.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s sink: %w", sink.Name(), err))
		}
		if p.metrics != nil {
			p.metrics.SinkWritesTotal.WithLabelValues(sink.Name(), status).Inc()
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", apperrors.ErrIO, errors.Join(errs...))
	}
	return nil
}
