package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gobarber/appointments/libs/kafkax"
	otelx "github.com/gobarber/appointments/libs/otel"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type memStore struct {
	pending   []Record
	published []Record
}

func (s *memStore) Drain(ctx context.Context, limit int, publish func(context.Context, []Record) error) (int, error) {
	batch := s.pending
	if len(batch) > limit {
		batch = batch[:limit]
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if err := publish(ctx, batch); err != nil {
		return 0, err
	}
	s.published = append(s.published, batch...)
	s.pending = s.pending[len(batch):]
	return len(batch), nil
}

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishOnceWritesBatchWithHeaders(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	traceparent := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	store := &memStore{pending: []Record{
		{ID: 1, EventID: "e-1", AggregateID: "10", EventType: "booking.appointment.booked.v1", Payload: []byte(`{}`), Trace: otelx.TraceContext{Traceparent: traceparent}, CreatedAt: time.Now()},
		{ID: 2, EventID: "e-2", AggregateID: "11", EventType: "booking.appointment.canceled.v1", Payload: []byte(`{}`)},
		{ID: 3, EventID: "e-3", AggregateID: "12", EventType: "booking.appointment.booked.v1", Payload: []byte(`{}`)},
	}}
	w := &recordingWriter{}
	p := NewPublisher(store, w, testLogger(), PublisherConfig{BatchSize: 2})

	n, err := p.PublishOnce(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("expected 2 published, got %d (%v)", n, err)
	}
	if len(w.msgs) != 2 || len(store.pending) != 1 {
		t.Fatalf("unexpected state: msgs=%d pending=%d", len(w.msgs), len(store.pending))
	}

	first := w.msgs[0]
	if first.Topic != "booking.appointment.booked.v1" || string(first.Key) != "10" {
		t.Fatalf("unexpected routing: topic=%s key=%s", first.Topic, first.Key)
	}
	if got := kafkax.HeaderValue(first.Headers, kafkax.HeaderEventID); got != "e-1" {
		t.Fatalf("expected event id header, got %q", got)
	}
	if got := kafkax.HeaderValue(first.Headers, "traceparent"); got != traceparent {
		t.Fatalf("expected propagated traceparent, got %q", got)
	}
}

func TestPublishOnceKeepsRowsOnWriteFailure(t *testing.T) {
	store := &memStore{pending: []Record{{ID: 1, EventID: "e-1", EventType: "t"}}}
	w := &recordingWriter{err: errors.New("broker down")}
	p := NewPublisher(store, w, testLogger(), PublisherConfig{})

	if _, err := p.PublishOnce(context.Background()); err == nil {
		t.Fatal("expected write error")
	}
	if len(store.pending) != 1 || len(store.published) != 0 {
		t.Fatalf("rows must stay pending after a failed write")
	}
}

func TestJSONEvent(t *testing.T) {
	evt, err := JSONEvent("appointment", "7", "booking.appointment.booked.v1", map[string]int{"id": 7})
	if err != nil {
		t.Fatalf("JSONEvent: %v", err)
	}
	if string(evt.Payload) != `{"id":7}` || evt.AggregateID != "7" {
		t.Fatalf("unexpected event %+v", evt)
	}
}
