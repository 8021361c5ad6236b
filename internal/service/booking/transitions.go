package booking

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"bookly/backend/internal/availability"
	"bookly/backend/internal/domain"
	"bookly/backend/internal/lifecycle"
	"bookly/backend/internal/store"
)

type TransitionInput struct {
	AppointmentID uuid.UUID
	// Action is required; To may be empty to use the action's target.
	Action   domain.Action
	To       domain.Status
	ActorID  string
	Role     domain.Role
	Reason   string
	Metadata map[string]string

	// NewDate and NewStartTime move the appointment. Both are only accepted
	// with the reschedule action and must be set together.
	NewDate      *time.Time
	NewStartTime *domain.Clock
}

// Transition applies one lifecycle action to an appointment, stores the
// updated appointment together with its change record, and publishes the
// change. Transitions on the same appointment are serialised.
func (s *Service) Transition(ctx context.Context, in TransitionInput) (_ domain.Appointment, err error) {
	ctx, span := s.startSpan(ctx, "Transition",
		attribute.String("appointment_id", in.AppointmentID.String()),
		attribute.String("action", string(in.Action)),
	)
	defer func() { endSpan(span, err) }()

	if in.AppointmentID == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	if in.Action == "" {
		return domain.Appointment{}, validationError("action is required")
	}
	if !in.Role.Valid() {
		return domain.Appointment{}, validationError("invalid role")
	}
	moving := in.NewDate != nil || in.NewStartTime != nil
	if moving {
		if in.NewDate == nil || in.NewStartTime == nil {
			return domain.Appointment{}, validationError("new_date and new_start_time must be set together")
		}
		if in.Action != domain.ActionReschedule {
			return domain.Appointment{}, validationError("only reschedule may move an appointment")
		}
	}

	unlock := s.locks.Lock(in.AppointmentID)
	defer unlock()

	appt, err := s.appts.Get(ctx, in.AppointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}

	meta := in.Metadata
	var newDate time.Time
	var newStart, newEnd domain.Clock
	if moving {
		newDate = domain.DateOf(*in.NewDate)
		newStart = *in.NewStartTime
		newEnd = newStart.Add(appt.DurationMinutes)
		if err := (domain.TimeInterval{Start: newStart, End: newEnd}).Validate(); err != nil {
			return domain.Appointment{}, validationError(err.Error())
		}

		// Legality first so an illegal reschedule is reported as such rather
		// than as a busy slot.
		if v := s.machine.ValidateTransition(appt, s.target(in), in.Role, in.Action); !v.Valid {
			return domain.Appointment{}, v.Err
		}

		sched, err := s.schedule(ctx, appt.ProviderID)
		if err != nil {
			return domain.Appointment{}, err
		}
		appts, err := s.appts.ListForProvider(ctx, appt.ProviderID, newDate, newDate)
		if err != nil {
			return domain.Appointment{}, err
		}
		if !availability.IsProviderAvailableExcept(newDate, newStart, newEnd, sched, appts, appt.ID) {
			return domain.Appointment{}, ErrSlotUnavailable
		}

		meta = maps.Clone(in.Metadata)
		if meta == nil {
			meta = make(map[string]string, 4)
		}
		meta["previous_date"] = domain.FormatDate(appt.Date)
		meta["previous_start_time"] = appt.StartTime.String()
		meta["new_date"] = domain.FormatDate(newDate)
		meta["new_start_time"] = newStart.String()
	}

	updated, change, err := s.machine.Apply(appt, lifecycle.Request{
		To:       in.To,
		Action:   in.Action,
		ActorID:  in.ActorID,
		Role:     in.Role,
		Reason:   in.Reason,
		Metadata: meta,
	}, s.now())
	if err != nil {
		return domain.Appointment{}, err
	}
	if moving {
		updated.Date = newDate
		updated.StartTime = newStart
		updated.EndTime = newEnd
	}

	err = s.appts.ApplyTransition(ctx, updated, change)
	if errors.Is(err, store.ErrConflict) {
		return domain.Appointment{}, ErrSlotUnavailable
	}
	if err != nil {
		return domain.Appointment{}, err
	}
	stored := updated

	s.log.Info("appointment transitioned",
		slog.String("appointment_id", stored.ID.String()),
		slog.String("from", string(change.FromStatus)),
		slog.String("to", string(change.ToStatus)),
		slog.String("action", string(change.Action)),
		slog.String("actor_role", string(change.ActorRole)),
	)

	if err := s.publisher.PublishStatusChange(ctx, stored, change); err != nil {
		s.log.Error("publish status change",
			slog.String("appointment_id", stored.ID.String()),
			slog.String("change_id", change.ID.String()),
			slog.Any("err", err),
		)
	}
	return stored, nil
}

func (s *Service) target(in TransitionInput) domain.Status {
	if in.To != "" {
		return in.To
	}
	if spec, ok := s.machine.Action(in.Action); ok {
		return spec.Target
	}
	return ""
}
