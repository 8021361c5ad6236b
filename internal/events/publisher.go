// Package events publishes accepted appointment status changes so external
// notifiers can deliver them.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"bookly/backend/internal/domain"
)

const (
	DefaultTopic           = "appointments.status-changed.v1"
	EventTypeStatusChanged = "appointment.status_changed"
)

// StatusChanged is the JSON payload of one event.
type StatusChanged struct {
	EventID       string            `json:"event_id"`
	AppointmentID string            `json:"appointment_id"`
	ProviderID    string            `json:"provider_id"`
	ClientID      string            `json:"client_id"`
	ShopID        string            `json:"shop_id"`
	Date          string            `json:"date"`
	StartTime     domain.Clock      `json:"start_time"`
	EndTime       domain.Clock      `json:"end_time"`
	FromStatus    domain.Status     `json:"from_status"`
	ToStatus      domain.Status     `json:"to_status"`
	Action        domain.Action     `json:"action"`
	ActorID       string            `json:"actor_id"`
	ActorRole     domain.Role       `json:"actor_role"`
	Reason        string            `json:"reason,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	ChangedAt     time.Time         `json:"changed_at"`
}

func NewStatusChanged(appt domain.Appointment, change domain.AppointmentStatusChange) StatusChanged {
	return StatusChanged{
		EventID:       change.ID.String(),
		AppointmentID: appt.ID.String(),
		ProviderID:    appt.ProviderID,
		ClientID:      appt.ClientID,
		ShopID:        appt.ShopID,
		Date:          domain.FormatDate(appt.Date),
		StartTime:     appt.StartTime,
		EndTime:       appt.EndTime,
		FromStatus:    change.FromStatus,
		ToStatus:      change.ToStatus,
		Action:        change.Action,
		ActorID:       change.ActorID,
		ActorRole:     change.ActorRole,
		Reason:        change.Reason,
		Metadata:      change.Metadata,
		ChangedAt:     change.ChangedAt,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher keys messages by appointment id so one appointment's
// changes land on one partition in acceptance order.
type KafkaPublisher struct {
	w   messageWriter
	log *slog.Logger
}

type KafkaConfig struct {
	Brokers string
	Topic   string
}

func NewKafkaPublisher(cfg KafkaConfig, log *slog.Logger) *KafkaPublisher {
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(SplitBrokers(cfg.Brokers)...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return newKafkaPublisher(w, log)
}

func newKafkaPublisher(w messageWriter, log *slog.Logger) *KafkaPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &KafkaPublisher{w: w, log: log.With(slog.String("component", "events"))}
}

func (p *KafkaPublisher) PublishStatusChange(ctx context.Context, appt domain.Appointment, change domain.AppointmentStatusChange) error {
	ev := NewStatusChanged(appt, change)
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(ev.AppointmentID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.EventID)},
			{Key: "event_type", Value: []byte(EventTypeStatusChanged)},
		},
	}
	msg.Headers = injectTraceHeaders(ctx, msg.Headers)

	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return err
	}
	p.log.Debug("status change published",
		slog.String("appointment_id", ev.AppointmentID),
		slog.String("event_id", ev.EventID),
		slog.String("to_status", string(ev.ToStatus)),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// Nop drops every event. It is used when no brokers are configured.
type Nop struct{}

func (Nop) PublishStatusChange(context.Context, domain.Appointment, domain.AppointmentStatusChange) error {
	return nil
}

func (Nop) Close() error { return nil }

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func injectTraceHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := &headerCarrier{headers: headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.headers
}

type headerCarrier struct {
	headers []kafka.Header
}

func (c *headerCarrier) Get(key string) string {
	return HeaderValue(c.headers, key)
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, h := range c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func (c *headerCarrier) Set(key, value string) {
	for i := range c.headers {
		if c.headers[i].Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

var _ propagation.TextMapCarrier = (*headerCarrier)(nil)
