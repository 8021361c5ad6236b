package reservation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"bookly/backend/internal/domain"
)

type dayKey struct {
	providerID string
	date       string
}

// MemoryStore keeps holds in process memory. It preserves single-holder
// semantics within one process only.
type MemoryStore struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]domain.SlotReservation
	byDay map[dayKey]map[uuid.UUID]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[uuid.UUID]domain.SlotReservation),
		byDay: make(map[dayKey]map[uuid.UUID]struct{}),
	}
}

func keyOf(r domain.SlotReservation) dayKey {
	return dayKey{providerID: r.ProviderID, date: domain.FormatDate(r.Date)}
}

func (s *MemoryStore) Insert(ctx context.Context, r domain.SlotReservation, now time.Time) (*domain.SlotReservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := keyOf(r)
	ids := s.byDay[k]
	holds := make([]domain.SlotReservation, 0, len(ids))
	for id := range ids {
		h := s.byID[id]
		if !h.ValidAt(now) {
			s.removeLocked(h)
			continue
		}
		holds = append(holds, h)
	}

	if c := firstBlocking(holds, r, now); c != nil {
		return c, nil
	}

	for _, h := range holds {
		if h.ClientID == r.ClientID && h.Overlaps(r.ProviderID, r.Date, r.StartTime, r.EndTime) {
			s.removeLocked(h)
		}
	}

	s.byID[r.ID] = r
	if s.byDay[k] == nil {
		s.byDay[k] = make(map[uuid.UUID]struct{})
	}
	s.byDay[k][r.ID] = struct{}{}
	return nil, nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (domain.SlotReservation, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.SlotReservation{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	return r, ok, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.byID[id]; ok {
		s.removeLocked(r)
	}
	return nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.byID {
		if !r.ValidAt(now) {
			s.removeLocked(r)
			n++
		}
	}
	return n, nil
}

// Len reports how many holds are stored, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *MemoryStore) removeLocked(r domain.SlotReservation) {
	delete(s.byID, r.ID)
	k := keyOf(r)
	if ids, ok := s.byDay[k]; ok {
		delete(ids, r.ID)
		if len(ids) == 0 {
			delete(s.byDay, k)
		}
	}
}
