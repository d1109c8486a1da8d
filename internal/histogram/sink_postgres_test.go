package histogram

import (
	"context"
	"os"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/postgres"
)

// Runs against a live database when SP_TEST_POSTGRES=1; connection settings
// come from the usual SP_POSTGRES_* variables.
func TestPostgresSink(t *testing.T) {
	if os.Getenv("SP_TEST_POSTGRES") != "1" {
		t.Skip("SP_TEST_POSTGRES not set")
	}
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}
	defer db.Close()
	if _, err := db.DB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS document_length_histograms (
		index_path   TEXT   NOT NULL,
		build_id     TEXT   NOT NULL,
		length_field TEXT   NOT NULL,
		doc_length   BIGINT NOT NULL,
		doc_count    BIGINT NOT NULL,
		PRIMARY KEY (index_path, length_field, doc_length)
	)`); err != nil {
		t.Fatal(err)
	}

	ref := Ref{IndexPath: t.TempDir(), BuildID: "first", LengthField: "length"}
	defer db.DB.ExecContext(ctx, `DELETE FROM document_length_histograms WHERE index_path = $1`, ref.IndexPath)

	sink := NewPostgresSink(db)
	if err := sink.Write(ctx, ref, FromBuckets([]Bucket{{1, 3}, {4, 2}, {9, 1}})); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	ref.BuildID = "second"
	if err := sink.Write(ctx, ref, FromBuckets([]Bucket{{4, 5}})); err != nil {
		t.Fatalf("second Write: %v", err)
	}

	rows, err := db.DB.QueryContext(ctx,
		`SELECT build_id, doc_length, doc_count FROM document_length_histograms WHERE index_path = $1 AND length_field = $2`,
		ref.IndexPath, ref.LengthField)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	var n int
	for rows.Next() {
		var buildID string
		var length, count int64
		if err := rows.Scan(&buildID, &length, &count); err != nil {
			t.Fatal(err)
		}
		if buildID != "second" || length != 4 || count != 5 {
			t.Errorf("row = %s %d %d, want second 4 5", buildID, length, count)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("%d rows stored, want 1", n)
	}
}
