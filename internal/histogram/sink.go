package histogram

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/lib/pq"
)

// Ref identifies the index a histogram was derived from.
type Ref struct {
	IndexPath   string
	BuildID     string
	LengthField string
}

// Sink publishes a histogram outside the index directory.
type Sink interface {
	Name() string
	Write(ctx context.Context, ref Ref, h *Histogram) error
}

type hashReplacer interface {
	ReplaceHash(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
}

// RedisSink stores the histogram as a hash of length to document count.
type RedisSink struct {
	client hashReplacer
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisSink(client hashReplacer, ttl time.Duration) *RedisSink {
	return &RedisSink{
		client: client,
		ttl:    ttl,
		logger: slog.Default().With("component", "histogram-redis"),
	}
}

func (s *RedisSink) Name() string { return "redis" }

// Key is the Redis key holding the histogram of ref.
func Key(ref Ref) string {
	return "histogram:" + ref.IndexPath + ":" + ref.LengthField
}

func (s *RedisSink) Write(ctx context.Context, ref Ref, h *Histogram) error {
	fields := make(map[string]string, h.Len())
	for _, b := range h.Buckets() {
		fields[strconv.FormatUint(uint64(b.Length), 10)] = strconv.FormatUint(b.Count, 10)
	}
	key := Key(ref)
	if err := s.client.ReplaceHash(ctx, key, fields, s.ttl); err != nil {
		return fmt.Errorf("writing histogram to redis: %w", err)
	}
	s.logger.Debug("histogram stored", "key", key, "buckets", len(fields))
	return nil
}

type txRunner interface {
	InTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// PostgresSink replaces the stored rows of an index and field with the
// histogram.
//
// It requires a `document_length_histograms` table:
//
//	CREATE TABLE document_length_histograms (
//	    index_path   TEXT   NOT NULL,
//	    build_id     TEXT   NOT NULL,
//	    length_field TEXT   NOT NULL,
//	    doc_length   BIGINT NOT NULL,
//	    doc_count    BIGINT NOT NULL,
//	    PRIMARY KEY (index_path, length_field, doc_length)
//	);
type PostgresSink struct {
	db     txRunner
	logger *slog.Logger
}

func NewPostgresSink(db txRunner) *PostgresSink {
	return &PostgresSink{
		db:     db,
		logger: slog.Default().With("component", "histogram-postgres"),
	}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Write(ctx context.Context, ref Ref, h *Histogram) error {
	buckets := h.Buckets()
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM document_length_histograms WHERE index_path = $1 AND length_field = $2`,
			ref.IndexPath, ref.LengthField,
		); err != nil {
			return fmt.Errorf("clearing previous histogram: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("document_length_histograms",
			"index_path", "build_id", "length_field", "doc_length", "doc_count"))
		if err != nil {
			return fmt.Errorf("preparing histogram copy: %w", err)
		}
		defer stmt.Close()
		for _, b := range buckets {
			if _, err := stmt.ExecContext(ctx, ref.IndexPath, ref.BuildID, ref.LengthField, int64(b.Length), int64(b.Count)); err != nil {
				return fmt.Errorf("copying histogram bucket %d: %w", b.Length, err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			return fmt.Errorf("flushing histogram copy: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("histogram stored",
		"index_path", ref.IndexPath,
		"field", ref.LengthField,
		"rows", len(buckets),
	)
	return nil
}
