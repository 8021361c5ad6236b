package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bookly/backend/internal/domain"
)

// Store persists slot holds. Insert is the atomic check-and-insert that keeps
// at most one client holding any instant of a provider's day: it returns the
// blocking hold (and inserts nothing) when a valid hold of another client
// overlaps r, and otherwise replaces the same client's overlapping holds with r.
type Store interface {
	Insert(ctx context.Context, r domain.SlotReservation, now time.Time) (conflict *domain.SlotReservation, err error)
	// Get returns ok=false for unknown ids. Expired holds may still be returned.
	Get(ctx context.Context, id uuid.UUID) (r domain.SlotReservation, ok bool, err error)
	// Delete is a no-op for unknown ids.
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// firstBlocking picks the hold Insert reports as the conflict: the earliest
// starting valid hold of another client that overlaps r.
func firstBlocking(holds []domain.SlotReservation, r domain.SlotReservation, now time.Time) *domain.SlotReservation {
	var found *domain.SlotReservation
	for i := range holds {
		h := holds[i]
		if h.ID == r.ID || h.ClientID == r.ClientID || !h.ValidAt(now) {
			continue
		}
		if !h.Overlaps(r.ProviderID, r.Date, r.StartTime, r.EndTime) {
			continue
		}
		if found == nil || h.StartTime < found.StartTime {
			c := h
			found = &c
		}
	}
	return found
}
