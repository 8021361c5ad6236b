package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bookly/backend/internal/domain"
)

// MaxListDays bounds ListForProvider windows.
const MaxListDays = 93

type AppointmentRepository interface {
	// Create returns ErrConflict when a non-cancelled appointment of the same
	// provider overlaps appt. Re-creating an identical appointment under the
	// same id returns the stored row; a different one is ErrIdempotencyConflict.
	Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	// Get loads the appointment with its status history in acceptance order.
	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	// ListForProvider returns the provider's appointments dated within
	// [from, to], both inclusive, ordered by date and start time.
	ListForProvider(ctx context.Context, providerID string, from, to time.Time) ([]domain.Appointment, error)
	// ApplyTransition stores updated and appends change atomically. The stored
	// version must be updated.Version-1, otherwise ErrVersionConflict.
	ApplyTransition(ctx context.Context, updated domain.Appointment, change domain.AppointmentStatusChange) error
	History(ctx context.Context, appointmentID uuid.UUID) ([]domain.AppointmentStatusChange, error)
	MarkNotified(ctx context.Context, changeID uuid.UUID, party domain.NotifiedParty) (domain.AppointmentStatusChange, error)
}

type ScheduleRepository interface {
	// GetSchedule returns ErrNotFound when the provider has none.
	GetSchedule(ctx context.Context, providerID string) (domain.WeeklySchedule, error)
	PutSchedule(ctx context.Context, s domain.WeeklySchedule) (domain.WeeklySchedule, error)
}

// ProviderTx is the view of one provider's calendar inside a transaction that
// holds the provider's lock.
type ProviderTx interface {
	CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	UpdateAppointment(ctx context.Context, updated domain.Appointment) error
	AppendStatusChange(ctx context.Context, change domain.AppointmentStatusChange) error
}
