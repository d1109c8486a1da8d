package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishEncodesJSON(t *testing.T) {
	w := &recordingWriter{}
	p := newProducer(w, "index.complete")

	err := p.Publish(context.Background(), Event{
		Key:   "build-1",
		Value: map[string]int{"doc_count": 7},
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "build-1" {
		t.Errorf("key = %q, want build-1", w.msgs[0].Key)
	}
	var got map[string]int
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatalf("decoding value: %v", err)
	}
	if got["doc_count"] != 7 {
		t.Errorf("doc_count = %d, want 7", got["doc_count"])
	}
	if err := p.Close(); err != nil || !w.closed {
		t.Errorf("Close: err=%v closed=%v", err, w.closed)
	}
}

func TestPublishPropagatesWriterError(t *testing.T) {
	boom := errors.New("broker down")
	p := newProducer(&recordingWriter{err: boom}, "index.complete")
	if err := p.Publish(context.Background(), Event{Key: "k", Value: 1}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want broker down", err)
	}
}

func TestPublishRejectsUnencodableValue(t *testing.T) {
	w := &recordingWriter{}
	p := newProducer(w, "t")
	if err := p.Publish(context.Background(), Event{Key: "k", Value: make(chan int)}); err == nil {
		t.Fatal("expected marshal error")
	}
	if len(w.msgs) != 0 {
		t.Errorf("nothing should be written, got %d", len(w.msgs))
	}
}

func TestPingWithoutBrokers(t *testing.T) {
	p := newProducer(&recordingWriter{}, "index.complete")
	if err := p.Ping(context.Background()); err == nil {
		t.Error("expected an error with no brokers configured")
	}
}
