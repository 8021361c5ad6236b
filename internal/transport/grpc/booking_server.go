package grpc

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"bookly/backend/internal/domain"
	"bookly/backend/internal/lifecycle"
	"bookly/backend/internal/reservation"
	"bookly/backend/internal/service/booking"
)

type BookingServer struct {
	svc  bookingService
	tick time.Duration
	log  *slog.Logger
}

type bookingService interface {
	AvailableSlots(ctx context.Context, providerID string, date time.Time, durationMinutes int) ([]domain.AvailableTimeSlot, error)
	AvailableSlotsForRange(ctx context.Context, providerID string, from, to time.Time, durationMinutes int) ([]domain.AvailableTimeSlot, error)
	CheckAvailability(ctx context.Context, providerID string, date time.Time, start, end domain.Clock) (bool, error)
	HoldSlot(ctx context.Context, in booking.HoldInput) (reservation.ReserveResult, error)
	ReleaseHold(ctx context.Context, id uuid.UUID) error
	HoldRemaining(ctx context.Context, id uuid.UUID) int
	Checkout(ctx context.Context, in booking.CheckoutInput) (domain.Appointment, error)
	Transition(ctx context.Context, in booking.TransitionInput) (domain.Appointment, error)
	AvailableActions(ctx context.Context, id uuid.UUID, role domain.Role) ([]lifecycle.ActionOption, error)
	Appointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	AcknowledgeNotification(ctx context.Context, changeID uuid.UUID, party domain.NotifiedParty) (domain.AppointmentStatusChange, error)
	PutSchedule(ctx context.Context, sched domain.WeeklySchedule) (domain.WeeklySchedule, error)
	GetSchedule(ctx context.Context, providerID string) (domain.WeeklySchedule, error)
}

var _ BookingServiceServer = (*BookingServer)(nil)

// NewBookingServer serves svc. countdownTick paces WatchReservation updates.
func NewBookingServer(svc bookingService, countdownTick time.Duration, log *slog.Logger) *BookingServer {
	if log == nil {
		log = slog.Default()
	}
	if countdownTick <= 0 {
		countdownTick = reservation.DefaultCountdownTick
	}
	return &BookingServer{
		svc:  svc,
		tick: countdownTick,
		log:  log.With(slog.String("component", "grpc.booking")),
	}
}

func (s *BookingServer) ListAvailableSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListAvailableSlots"))
	a := argsOf(req)

	providerID := a.str("provider_id")
	duration, err := a.integer("duration_minutes")
	if err != nil {
		return nil, err
	}

	var slots []domain.AvailableTimeSlot
	if a.has("start_date") || a.has("end_date") {
		from, err := a.date("start_date")
		if err != nil {
			return nil, err
		}
		to, err := a.date("end_date")
		if err != nil {
			return nil, err
		}
		slots, err = s.svc.AvailableSlotsForRange(ctx, providerID, from, to, duration)
		if err != nil {
			return nil, toStatus(log.With(slog.String("provider_id", providerID)), err)
		}
	} else {
		date, err := a.date("date")
		if err != nil {
			return nil, err
		}
		slots, err = s.svc.AvailableSlots(ctx, providerID, date, duration)
		if err != nil {
			return nil, toStatus(log.With(slog.String("provider_id", providerID)), err)
		}
	}

	out := make([]any, 0, len(slots))
	for _, sl := range slots {
		out = append(out, slotValue(sl))
	}
	log.Debug("slots listed", slog.String("provider_id", providerID), slog.Int("count", len(out)))
	return toStruct(map[string]any{"slots": out})
}

func (s *BookingServer) CheckAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CheckAvailability"))
	a := argsOf(req)

	date, err := a.date("date")
	if err != nil {
		return nil, err
	}
	start, err := a.clock("start_time")
	if err != nil {
		return nil, err
	}
	end, err := a.clock("end_time")
	if err != nil {
		return nil, err
	}

	ok, err := s.svc.CheckAvailability(ctx, a.str("provider_id"), date, start, end)
	if err != nil {
		return nil, toStatus(log, err)
	}
	return toStruct(map[string]any{"available": ok})
}

func (s *BookingServer) ReserveSlot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ReserveSlot"))
	a := argsOf(req)

	date, err := a.date("date")
	if err != nil {
		return nil, err
	}
	start, err := a.clock("start_time")
	if err != nil {
		return nil, err
	}
	duration, err := a.integer("duration_minutes")
	if err != nil {
		return nil, err
	}

	res, err := s.svc.HoldSlot(ctx, booking.HoldInput{
		ProviderID:      a.str("provider_id"),
		ShopID:          a.str("shop_id"),
		ClientID:        a.str("client_id"),
		ServiceID:       a.str("service_id"),
		Date:            date,
		StartTime:       start,
		DurationMinutes: duration,
	})
	if err != nil {
		return nil, toStatus(log, err)
	}

	switch {
	case res.OK():
		r := *res.Reservation
		log.Info("slot reserved",
			slog.String("reservation_id", r.ID.String()),
			slog.String("provider_id", r.ProviderID),
			slog.String("date", domain.FormatDate(r.Date)),
			slog.String("start", r.StartTime.String()),
		)
		return toStruct(map[string]any{
			"reserved":    true,
			"reservation": reservationValue(r, s.svc.HoldRemaining(ctx, r.ID)),
		})
	case res.Conflict != nil:
		return toStruct(map[string]any{
			"reserved": false,
			"reason":   "held",
			"message":  "Someone is checking out this slot right now. Pick another time or try again shortly.",
			"conflict": conflictValue(*res.Conflict),
		})
	default:
		return toStruct(map[string]any{
			"reserved": false,
			"reason":   "unavailable",
			"message":  msgSlotTaken,
		})
	}
}

func (s *BookingServer) ReleaseReservation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ReleaseReservation"))
	id, err := argsOf(req).id("reservation_id")
	if err != nil {
		return nil, err
	}
	if err := s.svc.ReleaseHold(ctx, id); err != nil {
		return nil, toStatus(log.With(slog.String("reservation_id", id.String())), err)
	}
	log.Info("reservation released", slog.String("reservation_id", id.String()))
	return toStruct(map[string]any{})
}

func (s *BookingServer) GetReservationRemaining(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := argsOf(req).id("reservation_id")
	if err != nil {
		return nil, err
	}
	remaining := s.svc.HoldRemaining(ctx, id)
	return toStruct(snapshotValue(reservation.Snapshot{
		ReservationID:    id,
		RemainingSeconds: remaining,
		Expired:          remaining == 0,
		Display:          reservation.FormatRemaining(remaining),
	}))
}

// remainingFunc adapts the service to a countdown source.
type remainingFunc func(ctx context.Context, id uuid.UUID) int

func (f remainingFunc) RemainingSeconds(ctx context.Context, id uuid.UUID) int {
	return f(ctx, id)
}

// WatchReservation streams countdown snapshots until the hold expires or
// the client goes away. The final message always has expired set.
func (s *BookingServer) WatchReservation(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	log := s.log.With(slog.String("rpc", "WatchReservation"))
	id, err := argsOf(req).id("reservation_id")
	if err != nil {
		return err
	}
	ctx := stream.Context()

	cd := reservation.NewCountdown(remainingFunc(s.svc.HoldRemaining), s.tick)
	defer cd.Stop()
	cd.Watch(id)

	log.Debug("watch started", slog.String("reservation_id", id.String()))
	for {
		select {
		case <-ctx.Done():
			log.Debug("watch ended by client", slog.String("reservation_id", id.String()))
			return nil
		case snap := <-cd.Updates():
			msg, err := toStruct(snapshotValue(snap))
			if err != nil {
				return err
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
			if snap.Expired {
				log.Debug("watch ended by expiry", slog.String("reservation_id", id.String()))
				return nil
			}
		}
	}
}

func (s *BookingServer) Checkout(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "Checkout"))
	a := argsOf(req)

	id, err := a.id("reservation_id")
	if err != nil {
		return nil, err
	}
	price, err := a.optionalInteger("price_cents")
	if err != nil {
		return nil, err
	}

	appt, err := s.svc.Checkout(ctx, booking.CheckoutInput{
		ReservationID: id,
		ClientID:      a.str("client_id"),
		PriceCents:    int64(price),
		PaymentMethod: a.str("payment_method"),
		Notes:         a.str("notes"),
	})
	if err != nil {
		return nil, toStatus(log.With(slog.String("reservation_id", id.String())), err)
	}
	return toStruct(map[string]any{"appointment": appointmentValue(appt)})
}

func (s *BookingServer) TransitionAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "TransitionAppointment"))
	a := argsOf(req)

	id, err := a.id("appointment_id")
	if err != nil {
		return nil, err
	}
	meta, err := a.stringMap("metadata")
	if err != nil {
		return nil, err
	}

	in := booking.TransitionInput{
		AppointmentID: id,
		Action:        domain.Action(a.str("action")),
		To:            domain.Status(a.str("to_status")),
		ActorID:       a.str("actor_id"),
		Role:          domain.Role(a.str("role")),
		Reason:        a.str("reason"),
		Metadata:      meta,
	}
	if a.has("new_date") {
		d, err := a.date("new_date")
		if err != nil {
			return nil, err
		}
		in.NewDate = &d
	}
	if a.has("new_start_time") {
		c, err := a.clock("new_start_time")
		if err != nil {
			return nil, err
		}
		in.NewStartTime = &c
	}

	appt, err := s.svc.Transition(ctx, in)
	if err != nil {
		return nil, toStatus(log.With(slog.String("appointment_id", id.String()), slog.String("action", string(in.Action))), err)
	}

	out := map[string]any{"appointment": appointmentValue(appt)}
	if change, ok := appt.LastChange(); ok {
		out["change"] = changeValue(change)
	}
	return toStruct(out)
}

func (s *BookingServer) ListAvailableActions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListAvailableActions"))
	a := argsOf(req)

	id, err := a.id("appointment_id")
	if err != nil {
		return nil, err
	}
	actions, err := s.svc.AvailableActions(ctx, id, domain.Role(a.str("role")))
	if err != nil {
		return nil, toStatus(log.With(slog.String("appointment_id", id.String())), err)
	}

	out := make([]any, 0, len(actions))
	for _, o := range actions {
		out = append(out, actionValue(o))
	}
	return toStruct(map[string]any{"actions": out})
}

func (s *BookingServer) GetAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "GetAppointment"))
	id, err := argsOf(req).id("appointment_id")
	if err != nil {
		return nil, err
	}
	appt, err := s.svc.Appointment(ctx, id)
	if err != nil {
		return nil, toStatus(log.With(slog.String("appointment_id", id.String())), err)
	}
	return toStruct(map[string]any{"appointment": appointmentValue(appt)})
}

func (s *BookingServer) AcknowledgeNotification(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "AcknowledgeNotification"))
	a := argsOf(req)

	id, err := a.id("change_id")
	if err != nil {
		return nil, err
	}
	change, err := s.svc.AcknowledgeNotification(ctx, id, domain.NotifiedParty(a.str("party")))
	if err != nil {
		return nil, toStatus(log.With(slog.String("change_id", id.String())), err)
	}
	return toStruct(map[string]any{"change": changeValue(change)})
}

func (s *BookingServer) PutWeeklySchedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "PutWeeklySchedule"))
	sched, err := argsOf(req).schedule()
	if err != nil {
		return nil, err
	}
	stored, err := s.svc.PutSchedule(ctx, sched)
	if err != nil {
		return nil, toStatus(log.With(slog.String("provider_id", sched.ProviderID)), err)
	}
	log.Info("schedule stored", slog.String("provider_id", stored.ProviderID))
	return toStruct(map[string]any{"schedule": scheduleValue(stored)})
}

func (s *BookingServer) GetWeeklySchedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "GetWeeklySchedule"))
	providerID := argsOf(req).str("provider_id")
	sched, err := s.svc.GetSchedule(ctx, providerID)
	if err != nil {
		return nil, toStatus(log.With(slog.String("provider_id", providerID)), err)
	}
	return toStruct(map[string]any{"schedule": scheduleValue(sched)})
}
