package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"bookly/backend/internal/domain"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func sampleChange() (domain.Appointment, domain.AppointmentStatusChange) {
	appt := domain.Appointment{
		ID:         uuid.MustParse("00000000-0000-0000-0000-0000000000a1"),
		ClientID:   "client-1",
		ProviderID: "prov-1",
		ShopID:     "shop-1",
		Date:       time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		StartTime:  domain.MustParseClock("10:00"),
		EndTime:    domain.MustParseClock("10:45"),
		Status:     domain.StatusCancelled,
	}
	change := domain.AppointmentStatusChange{
		ID:            uuid.MustParse("00000000-0000-0000-0000-0000000000c1"),
		AppointmentID: appt.ID,
		FromStatus:    domain.StatusConfirmed,
		ToStatus:      domain.StatusCancelled,
		ActorID:       "client-1",
		ActorRole:     domain.RoleClient,
		Action:        domain.ActionCancel,
		Reason:        "sick",
		ChangedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	return appt, change
}

func TestKafkaPublisher_PublishStatusChange(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, nil)
	appt, change := sampleChange()

	if err := p.PublishStatusChange(context.Background(), appt, change); err != nil {
		t.Fatalf("PublishStatusChange error: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}

	msg := w.msgs[0]
	if string(msg.Key) != appt.ID.String() {
		t.Fatalf("key = %q, want appointment id", msg.Key)
	}
	if got := HeaderValue(msg.Headers, "event_id"); got != change.ID.String() {
		t.Fatalf("event_id = %q, want %q", got, change.ID)
	}
	if got := HeaderValue(msg.Headers, "event_type"); got != EventTypeStatusChanged {
		t.Fatalf("event_type = %q, want %q", got, EventTypeStatusChanged)
	}

	var ev StatusChanged
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if ev.FromStatus != domain.StatusConfirmed || ev.ToStatus != domain.StatusCancelled || ev.Reason != "sick" {
		t.Fatalf("payload = %+v", ev)
	}
	if ev.Date != "2026-03-02" || ev.StartTime != domain.MustParseClock("10:00") {
		t.Fatalf("payload slot = %s %s", ev.Date, ev.StartTime)
	}
}

func TestKafkaPublisher_PropagatesWriterError(t *testing.T) {
	boom := errors.New("broker down")
	p := newKafkaPublisher(&fakeWriter{err: boom}, nil)
	appt, change := sampleChange()

	if err := p.PublishStatusChange(context.Background(), appt, change); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestKafkaPublisher_InjectsTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "transition")
	defer span.End()

	w := &fakeWriter{}
	appt, change := sampleChange()
	if err := newKafkaPublisher(w, nil).PublishStatusChange(ctx, appt, change); err != nil {
		t.Fatalf("PublishStatusChange error: %v", err)
	}
	if HeaderValue(w.msgs[0].Headers, "traceparent") == "" {
		t.Fatalf("traceparent header missing")
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" a:9092, ,b:9092,")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("SplitBrokers = %q", got)
	}
	if got := SplitBrokers(""); len(got) != 0 {
		t.Fatalf("SplitBrokers(\"\") = %q", got)
	}
}
