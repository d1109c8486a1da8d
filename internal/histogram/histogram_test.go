package histogram

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/coherence-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/coherence-index/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/metrics"
)

func buildIndex(t *testing.T, docs ...indexer.Document) string {
	t.Helper()
	dir := t.TempDir()
	idx, err := indexer.BuildIndex(context.Background(), indexer.NewSliceSource(docs...), dir, indexer.Options{})
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}
	return dir
}

func sampleDocs() []indexer.Document {
	return []indexer.Document{
		indexer.NewDocument("a", "b", "c"),
		indexer.NewDocument("a"),
		indexer.NewDocument("b", "c", "d"),
		{},
		indexer.NewDocument("e", "f", "g"),
		indexer.NewDocument("a", "b"),
	}
}

func TestHistogramOperations(t *testing.T) {
	h := New()
	for _, l := range []uint32{3, 1, 3, 0, 3, 2} {
		h.Add(l)
	}
	if h.Total() != 6 || h.Len() != 4 {
		t.Errorf("Total()=%d Len()=%d, want 6 and 4", h.Total(), h.Len())
	}
	if h.Count(3) != 3 || h.Count(7) != 0 {
		t.Errorf("Count(3)=%d Count(7)=%d", h.Count(3), h.Count(7))
	}
	if got := h.CountAtLeast(2); got != 4 {
		t.Errorf("CountAtLeast(2) = %d, want 4", got)
	}
	if got := h.CountAtLeast(0); got != h.Total() {
		t.Errorf("CountAtLeast(0) = %d, want total", got)
	}
	want := []Bucket{{0, 1}, {1, 1}, {2, 1}, {3, 3}}
	if diff := cmp.Diff(want, h.Buckets()); diff != "" {
		t.Errorf("Buckets Diff: (-want +got)\n%s", diff)
	}
	if !h.Equal(FromBuckets(want)) {
		t.Error("histogram rebuilt from its buckets differs")
	}
	if h.Equal(FromBuckets(want[:3])) {
		t.Error("histograms with different totals compare equal")
	}
	if !FromBuckets([]Bucket{{Length: 5, Count: 0}}).Equal(New()) {
		t.Error("zero-count bucket should be dropped")
	}
}

func TestBuild(t *testing.T) {
	dir := buildIndex(t, sampleDocs()...)
	m := metrics.New(nil)
	h, err := NewBuilder(m).Build(context.Background(), dir, "length")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := []Bucket{{0, 1}, {1, 1}, {2, 1}, {3, 3}}
	if diff := cmp.Diff(want, h.Buckets()); diff != "" {
		t.Errorf("Diff: (-want +got)\n%s", diff)
	}
	if h.Total() != uint64(len(sampleDocs())) {
		t.Errorf("Total() = %d, want document count %d", h.Total(), len(sampleDocs()))
	}
	if got := testutil.ToFloat64(m.HistogramBuildsTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("histogram_builds_total{success} = %v", got)
	}
	if got := testutil.ToFloat64(m.HistogramBuckets); got != 4 {
		t.Errorf("histogram_buckets = %v", got)
	}

	again, err := NewBuilder(nil).Build(context.Background(), dir, "length")
	if err != nil {
		t.Fatal(err)
	}
	if !h.Equal(again) {
		t.Error("rebuilding over an unchanged index changed the histogram")
	}
}

func TestBuildEmptyCorpus(t *testing.T) {
	dir := buildIndex(t)
	h, err := NewBuilder(nil).Build(context.Background(), dir, "length")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if h.Total() != 0 || h.Len() != 0 {
		t.Errorf("Total()=%d Len()=%d, want 0", h.Total(), h.Len())
	}
}

func TestBuildErrors(t *testing.T) {
	b := NewBuilder(nil)
	ctx := context.Background()
	if _, err := b.Build(ctx, filepath.Join(t.TempDir(), "missing"), "length"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("missing index err = %v, want ErrNotFound", err)
	}
	empty := t.TempDir()
	_, err := b.Build(ctx, empty, "length")
	if !errors.Is(err, apperrors.ErrNotFound) || !errors.Is(err, apperrors.ErrIncomplete) {
		t.Errorf("directory without index err = %v, want ErrNotFound and ErrIncomplete", err)
	}
	if _, err := b.Get(ctx, empty, "length"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Get on directory without index err = %v, want ErrNotFound", err)
	}
	dir := buildIndex(t, sampleDocs()...)
	if _, err := b.Build(ctx, dir, "pages"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("absent field err = %v, want ErrNotFound", err)
	}
	if _, err := b.Build(ctx, dir, ""); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("empty field err = %v, want ErrInvalidInput", err)
	}

	if _, err := segment.WriteLengths(ctx, dir, "pages", []uint32{1, 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Build(ctx, dir, "pages"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("field with missing documents err = %v, want ErrNotFound", err)
	}
	if err := os.WriteFile(filepath.Join(dir, indexer.LockFile), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Build(ctx, dir, "length"); !errors.Is(err, apperrors.ErrLocked) {
		t.Errorf("locked index err = %v, want ErrLocked", err)
	}
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	h := FromBuckets([]Bucket{{2, 5}, {9, 1}})
	if err := Save(dir, "build-1", "length", h); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, buildID, err := Load(dir, "length")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if buildID != "build-1" || !h.Equal(got) {
		t.Errorf("Load = %v, %q", got.Buckets(), buildID)
	}
	if _, _, err := Load(dir, "tokens"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Load(tokens) err = %v, want ErrNotFound", err)
	}

	path := filepath.Join(dir, indexer.HistogramFileName("length"))
	if err := os.WriteFile(path, []byte(`{"length_field":"length","doc_count":7,"buckets":[{"length":1,"count":2}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Load(dir, "length"); !errors.Is(err, apperrors.ErrInconsistent) {
		t.Errorf("inconsistent file err = %v, want ErrInconsistent", err)
	}
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Load(dir, "length"); !errors.Is(err, apperrors.ErrFormat) {
		t.Errorf("corrupt file err = %v, want ErrFormat", err)
	}
}

func TestGetPersistsAndReuses(t *testing.T) {
	dir := buildIndex(t, sampleDocs()...)
	m := metrics.New(nil)
	b := NewBuilder(m)

	var wg sync.WaitGroup
	results := make([]*Histogram, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := b.Get(context.Background(), dir, "length")
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			results[i] = h
		}(i)
	}
	wg.Wait()
	for _, h := range results[1:] {
		if !results[0].Equal(h) {
			t.Fatal("concurrent Get calls disagree")
		}
	}

	idx, err := indexer.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	buildID := idx.Manifest().BuildID
	idx.Close()
	saved, savedID, err := Load(dir, "length")
	if err != nil {
		t.Fatalf("Load after Get: %v", err)
	}
	if savedID != buildID || !saved.Equal(results[0]) {
		t.Errorf("saved histogram %v for build %q, want build %q", saved.Buckets(), savedID, buildID)
	}

	builds := testutil.ToFloat64(m.HistogramBuildsTotal.WithLabelValues("success"))
	if _, err := b.Get(context.Background(), dir, "length"); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(m.HistogramBuildsTotal.WithLabelValues("success")); got != builds {
		t.Errorf("Get rescanned the index although a current histogram was saved")
	}
}

type fakeHashes struct {
	key    string
	fields map[string]string
	ttl    time.Duration
	err    error
}

func (f *fakeHashes) ReplaceHash(_ context.Context, key string, fields map[string]string, ttl time.Duration) error {
	f.key, f.fields, f.ttl = key, fields, ttl
	return f.err
}

func TestRedisSink(t *testing.T) {
	fake := &fakeHashes{}
	sink := NewRedisSink(fake, time.Hour)
	ref := Ref{IndexPath: "/data/wiki", BuildID: "b1", LengthField: "length"}
	if err := sink.Write(context.Background(), ref, FromBuckets([]Bucket{{0, 2}, {12, 40}})); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if fake.key != "histogram:/data/wiki:length" || fake.ttl != time.Hour {
		t.Errorf("key=%q ttl=%v", fake.key, fake.ttl)
	}
	if diff := cmp.Diff(map[string]string{"0": "2", "12": "40"}, fake.fields); diff != "" {
		t.Errorf("fields Diff: (-want +got)\n%s", diff)
	}
	if sink.Name() != "redis" {
		t.Errorf("Name() = %q", sink.Name())
	}

	fake.err = errors.New("connection refused")
	if err := sink.Write(context.Background(), ref, New()); err == nil {
		t.Error("expected redis error to propagate")
	}
}
