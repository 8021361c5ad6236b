package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"bookly/backend/internal/domain"
	"bookly/backend/internal/store"
)

// AppointmentRepo is a process-local store.AppointmentRepository. A single
// mutex makes overlap checks and version checks atomic with their writes.
type AppointmentRepo struct {
	mu      sync.RWMutex
	appts   map[uuid.UUID]domain.Appointment
	history map[uuid.UUID][]domain.AppointmentStatusChange
	changes map[uuid.UUID]uuid.UUID
	now     func() time.Time
}

func NewAppointmentRepo() *AppointmentRepo {
	return &AppointmentRepo{
		appts:   make(map[uuid.UUID]domain.Appointment),
		history: make(map[uuid.UUID][]domain.AppointmentStatusChange),
		changes: make(map[uuid.UUID]uuid.UUID),
		now:     time.Now,
	}
}

func (r *AppointmentRepo) Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Appointment{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if appt.ID != uuid.Nil {
		if existing, ok := r.appts[appt.ID]; ok {
			if !sameBooking(existing, appt) {
				return domain.Appointment{}, store.ErrIdempotencyConflict
			}
			return r.withHistoryLocked(existing), nil
		}
	}

	if appt.Status.BlocksSlot() {
		for _, other := range r.appts {
			if other.ProviderID == appt.ProviderID && other.Status.BlocksSlot() &&
				other.Overlaps(appt.Date, appt.StartTime, appt.EndTime) {
				return domain.Appointment{}, store.ErrConflict
			}
		}
	}

	if appt.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Appointment{}, err
		}
		appt.ID = id
	}
	now := r.now().UTC()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	if appt.UpdatedAt.IsZero() {
		appt.UpdatedAt = now
	}
	appt.Date = domain.DateOf(appt.Date)

	stored := appt
	stored.StatusHistory = nil
	r.appts[appt.ID] = stored
	for _, c := range appt.StatusHistory {
		r.history[appt.ID] = append(r.history[appt.ID], c)
		r.changes[c.ID] = appt.ID
	}
	return r.withHistoryLocked(stored), nil
}

func sameBooking(a, b domain.Appointment) bool {
	return a.ClientID == b.ClientID &&
		a.ProviderID == b.ProviderID &&
		a.ServiceID == b.ServiceID &&
		domain.SameDate(a.Date, b.Date) &&
		a.StartTime == b.StartTime &&
		a.EndTime == b.EndTime
}

func (r *AppointmentRepo) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Appointment{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appts[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return r.withHistoryLocked(a), nil
}

func (r *AppointmentRepo) ListForProvider(ctx context.Context, providerID string, from, to time.Time) ([]domain.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	from, to = domain.DateOf(from), domain.DateOf(to)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Appointment
	for _, a := range r.appts {
		if a.ProviderID != providerID || a.Date.Before(from) || a.Date.After(to) {
			continue
		}
		out = append(out, r.withHistoryLocked(a))
	}
	slices.SortFunc(out, func(a, b domain.Appointment) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return int(a.StartTime - b.StartTime)
	})
	return out, nil
}

func (r *AppointmentRepo) ApplyTransition(ctx context.Context, updated domain.Appointment, change domain.AppointmentStatusChange) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.appts[updated.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Version != updated.Version-1 {
		return store.ErrVersionConflict
	}

	if updated.Status.BlocksSlot() {
		for id, other := range r.appts {
			if id == updated.ID || other.ProviderID != updated.ProviderID || !other.Status.BlocksSlot() {
				continue
			}
			if other.Overlaps(updated.Date, updated.StartTime, updated.EndTime) {
				return store.ErrConflict
			}
		}
	}

	stored := updated
	stored.StatusHistory = nil
	stored.Date = domain.DateOf(stored.Date)
	r.appts[updated.ID] = stored
	r.history[updated.ID] = append(r.history[updated.ID], change)
	r.changes[change.ID] = updated.ID
	return nil
}

func (r *AppointmentRepo) History(ctx context.Context, appointmentID uuid.UUID) ([]domain.AppointmentStatusChange, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.appts[appointmentID]; !ok {
		return nil, store.ErrNotFound
	}
	return slices.Clone(r.history[appointmentID]), nil
}

func (r *AppointmentRepo) MarkNotified(ctx context.Context, changeID uuid.UUID, party domain.NotifiedParty) (domain.AppointmentStatusChange, error) {
	if err := ctx.Err(); err != nil {
		return domain.AppointmentStatusChange{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	apptID, ok := r.changes[changeID]
	if !ok {
		return domain.AppointmentStatusChange{}, store.ErrNotFound
	}
	h := r.history[apptID]
	for i := range h {
		if h[i].ID != changeID {
			continue
		}
		switch party {
		case domain.NotifiedClient:
			h[i].ClientNotified = true
		case domain.NotifiedProvider:
			h[i].ProviderNotified = true
		}
		return h[i], nil
	}
	return domain.AppointmentStatusChange{}, store.ErrNotFound
}

func (r *AppointmentRepo) withHistoryLocked(a domain.Appointment) domain.Appointment {
	a.StatusHistory = slices.Clone(r.history[a.ID])
	return a
}
