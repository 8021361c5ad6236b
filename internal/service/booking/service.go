package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bookly/backend/internal/availability"
	"bookly/backend/internal/domain"
	"bookly/backend/internal/lifecycle"
	"bookly/backend/internal/reservation"
	"bookly/backend/internal/store"
)

var (
	ErrHoldExpired     = errors.New("reservation hold expired")
	ErrHoldNotOwned    = errors.New("reservation is held by another client")
	ErrSlotUnavailable = errors.New("slot is no longer available")
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// ChangePublisher receives every accepted status change after it is stored.
type ChangePublisher interface {
	PublishStatusChange(ctx context.Context, appt domain.Appointment, change domain.AppointmentStatusChange) error
}

type nopPublisher struct{}

func (nopPublisher) PublishStatusChange(context.Context, domain.Appointment, domain.AppointmentStatusChange) error {
	return nil
}

type Deps struct {
	Appointments store.AppointmentRepository
	Schedules    store.ScheduleRepository
	Holds        *reservation.Manager
	// Machine defaults to lifecycle.Default().
	Machine   *lifecycle.Machine
	Publisher ChangePublisher
	// GranularityMinutes <= 0 selects the generator default.
	GranularityMinutes int
	Logger             *slog.Logger
	Now                func() time.Time
}

type Service struct {
	appts     store.AppointmentRepository
	schedules store.ScheduleRepository
	holds     *reservation.Manager
	machine   *lifecycle.Machine
	publisher ChangePublisher
	gen       availability.Generator
	log       *slog.Logger
	tracer    trace.Tracer
	locks     *keyedMutex
	now       func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		appts:     d.Appointments,
		schedules: d.Schedules,
		holds:     d.Holds,
		machine:   d.Machine,
		publisher: d.Publisher,
		gen:       availability.Generator{GranularityMinutes: d.GranularityMinutes},
		log:       d.Logger,
		tracer:    otel.Tracer("bookly/backend/internal/service/booking"),
		locks:     newKeyedMutex(),
		now:       d.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.machine == nil {
		s.machine = lifecycle.Default()
	}
	if s.publisher == nil {
		s.publisher = nopPublisher{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With(slog.String("component", "booking"))
	return s
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "booking."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// schedule returns an empty schedule for providers that have none, which
// yields no availability rather than an error.
func (s *Service) schedule(ctx context.Context, providerID string) (domain.WeeklySchedule, error) {
	sched, err := s.schedules.GetSchedule(ctx, providerID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.WeeklySchedule{ProviderID: providerID}, nil
	}
	return sched, err
}

func (s *Service) PutSchedule(ctx context.Context, sched domain.WeeklySchedule) (domain.WeeklySchedule, error) {
	sched.ProviderID = strings.TrimSpace(sched.ProviderID)
	if err := sched.Validate(); err != nil {
		return domain.WeeklySchedule{}, validationError(err.Error())
	}
	return s.schedules.PutSchedule(ctx, sched)
}

func (s *Service) GetSchedule(ctx context.Context, providerID string) (domain.WeeklySchedule, error) {
	if strings.TrimSpace(providerID) == "" {
		return domain.WeeklySchedule{}, validationError("provider_id is required")
	}
	return s.schedules.GetSchedule(ctx, providerID)
}

func (s *Service) AvailableSlots(ctx context.Context, providerID string, date time.Time, durationMinutes int) (_ []domain.AvailableTimeSlot, err error) {
	ctx, span := s.startSpan(ctx, "AvailableSlots", attribute.String("provider_id", providerID))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(providerID) == "" {
		return nil, validationError("provider_id is required")
	}
	if durationMinutes <= 0 {
		return nil, validationError("duration_minutes must be positive")
	}

	sched, err := s.schedule(ctx, providerID)
	if err != nil {
		return nil, err
	}
	appts, err := s.appts.ListForProvider(ctx, providerID, date, date)
	if err != nil {
		return nil, err
	}
	return s.gen.Slots(date, sched, appts, durationMinutes)
}

func (s *Service) AvailableSlotsForRange(ctx context.Context, providerID string, from, to time.Time, durationMinutes int) (_ []domain.AvailableTimeSlot, err error) {
	ctx, span := s.startSpan(ctx, "AvailableSlotsForRange", attribute.String("provider_id", providerID))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(providerID) == "" {
		return nil, validationError("provider_id is required")
	}
	if durationMinutes <= 0 {
		return nil, validationError("duration_minutes must be positive")
	}
	first, last := domain.DateOf(from), domain.DateOf(to)
	if last.Before(first) {
		return nil, validationError("end_date must not be before start_date")
	}
	if days := int(last.Sub(first)/(24*time.Hour)) + 1; days > availability.MaxRangeDays {
		return nil, validationError(fmt.Sprintf("date range must not exceed %d days", availability.MaxRangeDays))
	}

	sched, err := s.schedule(ctx, providerID)
	if err != nil {
		return nil, err
	}
	appts, err := s.appts.ListForProvider(ctx, providerID, first, last)
	if err != nil {
		return nil, err
	}
	return s.gen.SlotsForRange(first, last, sched, appts, durationMinutes)
}

func (s *Service) CheckAvailability(ctx context.Context, providerID string, date time.Time, start, end domain.Clock) (bool, error) {
	if strings.TrimSpace(providerID) == "" {
		return false, validationError("provider_id is required")
	}
	if err := (domain.TimeInterval{Start: start, End: end}).Validate(); err != nil {
		return false, validationError(err.Error())
	}
	sched, err := s.schedule(ctx, providerID)
	if err != nil {
		return false, err
	}
	appts, err := s.appts.ListForProvider(ctx, providerID, date, date)
	if err != nil {
		return false, err
	}
	return availability.IsProviderAvailable(date, start, end, sched, appts), nil
}

func (s *Service) Appointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	return s.appts.Get(ctx, id)
}

func (s *Service) History(ctx context.Context, id uuid.UUID) ([]domain.AppointmentStatusChange, error) {
	if id == uuid.Nil {
		return nil, validationError("appointment_id is required")
	}
	return s.appts.History(ctx, id)
}

func (s *Service) AvailableActions(ctx context.Context, id uuid.UUID, role domain.Role) ([]lifecycle.ActionOption, error) {
	if !role.Valid() {
		return nil, validationError("invalid role")
	}
	appt, err := s.Appointment(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.machine.AvailableActions(appt.Status, role), nil
}

// AcknowledgeNotification is called by the external notifier once it has
// delivered a change to one party.
func (s *Service) AcknowledgeNotification(ctx context.Context, changeID uuid.UUID, party domain.NotifiedParty) (domain.AppointmentStatusChange, error) {
	if changeID == uuid.Nil {
		return domain.AppointmentStatusChange{}, validationError("change_id is required")
	}
	if party != domain.NotifiedClient && party != domain.NotifiedProvider {
		return domain.AppointmentStatusChange{}, validationError("party must be client or provider")
	}
	return s.appts.MarkNotified(ctx, changeID, party)
}
