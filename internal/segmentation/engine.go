package segmentation

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/metrics"
)

const (
	DefaultMaxPairs          = 1 << 24
	DefaultParallelThreshold = 1 << 16
	ctxCheckInterval         = 1 << 12
)

// Engine materialises or streams segmentation pairs. It holds no per-call
// state and is safe for concurrent use.
type Engine struct {
	// MaxPairs caps the size of a list returned by Segment.
	MaxPairs uint64
	// Workers above one fill large lists in parallel.
	Workers int
	// ParallelThreshold is the smallest pair count filled in parallel.
	ParallelThreshold uint64
	Metrics           *metrics.Metrics
	logger            *slog.Logger
}

// NewEngine builds an Engine from configuration; m may be nil.
func NewEngine(cfg config.SegmentationConfig, m *metrics.Metrics) *Engine {
	e := &Engine{
		MaxPairs:          cfg.MaxPairs,
		Workers:           cfg.Workers,
		ParallelThreshold: cfg.ParallelThreshold,
		Metrics:           m,
		logger:            slog.Default().With("component", "segmentation"),
	}
	if e.MaxPairs == 0 {
		e.MaxPairs = DefaultMaxPairs
	}
	if e.ParallelThreshold == 0 {
		e.ParallelThreshold = DefaultParallelThreshold
	}
	return e
}

var defaultEngine = NewEngine(config.SegmentationConfig{Workers: 1}, nil)

// Segment returns the pairs of a word set of size n under strategy, using a
// sequential engine with the default size cap.
func Segment(n int, strategy Strategy) ([]Pair, error) {
	return defaultEngine.Segment(context.Background(), n, strategy)
}

func validate(n int, strategy Strategy) error {
	if !strategy.valid() {
		return apperrors.Newf(apperrors.ErrInvalidInput, "unknown segmentation strategy %d", int(strategy))
	}
	if n < 1 || n > MaxWordSetSize {
		return apperrors.Newf(apperrors.ErrInvalidInput, "word set size %d outside 1..%d", n, MaxWordSetSize)
	}
	return nil
}

// Count returns the number of pairs Segment would produce, without producing
// them.
func Count(n int, strategy Strategy) (uint64, error) {
	if err := validate(n, strategy); err != nil {
		return 0, err
	}
	return count(n, strategy), nil
}

func count(n int, strategy Strategy) uint64 {
	full := uint64(1)<<n - 1
	nn := uint64(n)
	switch strategy {
	case AllAll:
		return full * full
	case WholeSet:
		return 1
	case OneOne:
		return nn * (nn - 1)
	case OnePreceding, OneSucceeding:
		return nn * (nn - 1) / 2
	case OneAll:
		if n > 1 {
			return nn
		}
		return 0
	case OneAny:
		return nn * (uint64(1)<<(n-1) - 1)
	case AnyAny:
		return pow3(n) - uint64(1)<<(n+1) + 1
	case OneSet:
		return nn
	}
	return 0
}

func pow3(n int) uint64 {
	p := uint64(1)
	for i := 0; i < n; i++ {
		p *= 3
	}
	return p
}

// Segment materialises every pair for a word set of size n, in the
// strategy's canonical order: segments ascending, then conditions ascending
// within each segment. The input is rejected before any work when n is out
// of range or the list would exceed MaxPairs; a partial list is never
// returned.
func (e *Engine) Segment(ctx context.Context, n int, strategy Strategy) ([]Pair, error) {
	if err := validate(n, strategy); err != nil {
		return nil, err
	}
	total := count(n, strategy)
	if total > e.maxPairs() {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput,
			"%s over %d words yields %d pairs, limit is %d", strategy, n, total, e.maxPairs())
	}

	var out []Pair
	var err error
	if e.Workers > 1 && total >= e.ParallelThreshold {
		out, err = e.fillParallel(ctx, n, strategy, total)
	} else {
		out, err = fillSequential(ctx, n, strategy, total)
	}
	if err != nil {
		return nil, err
	}
	if uint64(len(out)) != total {
		return nil, apperrors.Newf(apperrors.ErrInconsistent,
			"%s over %d words produced %d pairs, expected %d", strategy, n, len(out), total)
	}
	if e.Metrics != nil {
		e.Metrics.SegmentationPairs.WithLabelValues(strategy.String()).Add(float64(total))
	}
	return out, nil
}

func (e *Engine) maxPairs() uint64 {
	if e.MaxPairs == 0 {
		return DefaultMaxPairs
	}
	return e.MaxPairs
}

func (e *Engine) log() *slog.Logger {
	if e.logger == nil {
		return slog.Default().With("component", "segmentation")
	}
	return e.logger
}

func fillSequential(ctx context.Context, n int, strategy Strategy, total uint64) ([]Pair, error) {
	out := make([]Pair, 0, total)
	err := enumerate(ctx, n, strategy, func(p Pair) bool {
		out = append(out, p)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// fillParallel splits the outer segment loop into contiguous chunks. Each
// chunk's output offset is known up front from the per-segment widths, so
// workers write disjoint ranges and the result matches sequential order.
func (e *Engine) fillParallel(ctx context.Context, n int, strategy Strategy, total uint64) ([]Pair, error) {
	r := rules[strategy]
	var segs []Subset
	var offsets []uint64
	var off uint64
	r.segments(n, func(s Subset) bool {
		segs = append(segs, s)
		offsets = append(offsets, off)
		off += r.width(n, s)
		return true
	})
	if off != total {
		return nil, apperrors.Newf(apperrors.ErrInconsistent,
			"%s over %d words: segment widths sum to %d, expected %d", strategy, n, off, total)
	}

	out := make([]Pair, total)
	if total == 0 {
		return out, nil
	}
	workers := min(e.Workers, len(segs))
	chunk := (len(segs) + workers - 1) / workers
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(segs); start += chunk {
		end := min(start+chunk, len(segs))
		g.Go(func() error {
			for k := start; k < end; k++ {
				if k%64 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				seg := segs[k]
				pos := offsets[k]
				limit := pos + r.width(n, seg)
				var overflow bool
				r.conditions(n, seg, func(c Subset) bool {
					if pos >= limit {
						overflow = true
						return false
					}
					out[pos] = Pair{Segment: seg, Condition: c}
					pos++
					return true
				})
				if overflow || pos != limit {
					return apperrors.Newf(apperrors.ErrInconsistent,
						"%s: segment %s produced a different number of conditions than its width %d",
						strategy, seg, r.width(n, seg))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("filling %s pairs: %w", strategy, err)
	}
	e.log().Debug("pairs filled in parallel",
		"strategy", strategy.String(),
		"n", n,
		"pairs", total,
		"workers", workers,
	)
	return out, nil
}

// Enumerate streams the pairs of a word set of size n to yield in canonical
// order until yield returns false. Unlike Segment it is not bounded by
// MaxPairs.
func (e *Engine) Enumerate(ctx context.Context, n int, strategy Strategy, yield func(Pair) bool) error {
	if err := validate(n, strategy); err != nil {
		return err
	}
	var emitted uint64
	err := enumerate(ctx, n, strategy, func(p Pair) bool {
		emitted++
		return yield(p)
	})
	if e.Metrics != nil && emitted > 0 {
		e.Metrics.SegmentationPairs.WithLabelValues(strategy.String()).Add(float64(emitted))
	}
	return err
}

func enumerate(ctx context.Context, n int, strategy Strategy, yield func(Pair) bool) error {
	r := rules[strategy]
	var emitted uint64
	var err error
	r.segments(n, func(seg Subset) bool {
		cont := true
		r.conditions(n, seg, func(c Subset) bool {
			if emitted%ctxCheckInterval == 0 {
				if err = ctx.Err(); err != nil {
					cont = false
					return false
				}
			}
			emitted++
			if !yield(Pair{Segment: seg, Condition: c}) {
				cont = false
				return false
			}
			return true
		})
		return cont
	})
	return err
}
