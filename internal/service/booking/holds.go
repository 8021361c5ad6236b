package booking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"bookly/backend/internal/availability"
	"bookly/backend/internal/domain"
	"bookly/backend/internal/reservation"
	"bookly/backend/internal/store"
)

type HoldInput struct {
	ProviderID      string
	ShopID          string
	ClientID        string
	ServiceID       string
	Date            time.Time
	StartTime       domain.Clock
	DurationMinutes int
}

// HoldSlot places a hold on a slot the provider can still take. A slot the
// schedule or existing appointments already rule out is reported as
// Unavailable without touching the reservation store.
func (s *Service) HoldSlot(ctx context.Context, in HoldInput) (_ reservation.ReserveResult, err error) {
	ctx, span := s.startSpan(ctx, "HoldSlot", attribute.String("provider_id", in.ProviderID))
	defer func() { endSpan(span, err) }()

	providerID := strings.TrimSpace(in.ProviderID)
	if providerID == "" {
		return reservation.ReserveResult{}, validationError("provider_id is required")
	}
	if strings.TrimSpace(in.ClientID) == "" {
		return reservation.ReserveResult{}, validationError("client_id is required")
	}
	if in.Date.IsZero() {
		return reservation.ReserveResult{}, validationError("date is required")
	}
	if in.DurationMinutes <= 0 {
		return reservation.ReserveResult{}, validationError("duration_minutes must be positive")
	}
	end := in.StartTime.Add(in.DurationMinutes)
	if err := (domain.TimeInterval{Start: in.StartTime, End: end}).Validate(); err != nil {
		return reservation.ReserveResult{}, validationError(err.Error())
	}

	sched, err := s.schedule(ctx, providerID)
	if err != nil {
		return reservation.ReserveResult{}, err
	}
	appts, err := s.appts.ListForProvider(ctx, providerID, in.Date, in.Date)
	if err != nil {
		return reservation.ReserveResult{}, err
	}
	if !availability.IsProviderAvailable(in.Date, in.StartTime, end, sched, appts) {
		return reservation.ReserveResult{Unavailable: true}, nil
	}

	return s.holds.Reserve(ctx, reservation.ReserveInput{
		ProviderID:      providerID,
		ShopID:          in.ShopID,
		ClientID:        in.ClientID,
		ServiceID:       in.ServiceID,
		Date:            in.Date,
		StartTime:       in.StartTime,
		EndTime:         end,
		DurationMinutes: in.DurationMinutes,
	})
}

func (s *Service) ReleaseHold(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return validationError("reservation_id is required")
	}
	return s.holds.Release(ctx, id)
}

func (s *Service) HoldRemaining(ctx context.Context, id uuid.UUID) int {
	return s.holds.RemainingSeconds(ctx, id)
}

type CheckoutInput struct {
	ReservationID uuid.UUID
	ClientID      string
	PriceCents    int64
	PaymentMethod string
	Notes         string
}

// CheckoutAppointmentID derives the appointment id from the hold it promotes,
// so a retried checkout finds the appointment it already created.
func CheckoutAppointmentID(reservationID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("bookly:checkout:"+reservationID.String()))
}

// Checkout promotes a valid hold to a requested appointment and then
// releases the hold. Availability is checked again because the schedule or
// the provider's appointments may have changed since the hold was taken.
func (s *Service) Checkout(ctx context.Context, in CheckoutInput) (_ domain.Appointment, err error) {
	ctx, span := s.startSpan(ctx, "Checkout", attribute.String("reservation_id", in.ReservationID.String()))
	defer func() { endSpan(span, err) }()

	if in.ReservationID == uuid.Nil {
		return domain.Appointment{}, validationError("reservation_id is required")
	}
	clientID := strings.TrimSpace(in.ClientID)
	if clientID == "" {
		return domain.Appointment{}, validationError("client_id is required")
	}
	if in.PriceCents < 0 {
		return domain.Appointment{}, validationError("price_cents must not be negative")
	}

	apptID := CheckoutAppointmentID(in.ReservationID)

	hold, ok, err := s.holds.Active(ctx, in.ReservationID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !ok {
		existing, err := s.appts.Get(ctx, apptID)
		if err == nil && existing.ClientID == clientID {
			return existing, nil
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return domain.Appointment{}, err
		}
		return domain.Appointment{}, ErrHoldExpired
	}
	if hold.ClientID != clientID {
		return domain.Appointment{}, ErrHoldNotOwned
	}

	sched, err := s.schedule(ctx, hold.ProviderID)
	if err != nil {
		return domain.Appointment{}, err
	}
	appts, err := s.appts.ListForProvider(ctx, hold.ProviderID, hold.Date, hold.Date)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !availability.IsProviderAvailableExcept(hold.Date, hold.StartTime, hold.EndTime, sched, appts, apptID) {
		return domain.Appointment{}, ErrSlotUnavailable
	}

	holdID := hold.ID
	appt := domain.Appointment{
		ID:              apptID,
		ClientID:        clientID,
		ProviderID:      hold.ProviderID,
		ServiceID:       hold.ServiceID,
		ShopID:          hold.ShopID,
		Date:            hold.Date,
		StartTime:       hold.StartTime,
		EndTime:         hold.EndTime,
		DurationMinutes: hold.DurationMinutes,
		Status:          domain.StatusRequested,
		PaymentStatus:   domain.PaymentPending,
		PaymentMethod:   strings.TrimSpace(in.PaymentMethod),
		PriceCents:      in.PriceCents,
		Notes:           in.Notes,
		ReservationID:   &holdID,
	}

	created, err := s.appts.Create(ctx, appt)
	if errors.Is(err, store.ErrConflict) {
		return domain.Appointment{}, ErrSlotUnavailable
	}
	if err != nil {
		return domain.Appointment{}, err
	}

	if err := s.holds.Release(ctx, hold.ID); err != nil {
		s.log.Warn("release promoted hold", slog.String("reservation_id", hold.ID.String()), slog.Any("err", err))
	}

	s.log.Info("appointment requested",
		slog.String("appointment_id", created.ID.String()),
		slog.String("provider_id", created.ProviderID),
		slog.String("date", domain.FormatDate(created.Date)),
		slog.String("start", created.StartTime.String()),
	)
	return created, nil
}
