package memory

import (
	"context"
	"sync"
	"time"

	"bookly/backend/internal/domain"
	"bookly/backend/internal/store"
)

type ScheduleRepo struct {
	mu        sync.RWMutex
	schedules map[string]domain.WeeklySchedule
}

func NewScheduleRepo() *ScheduleRepo {
	return &ScheduleRepo{schedules: make(map[string]domain.WeeklySchedule)}
}

func (r *ScheduleRepo) GetSchedule(ctx context.Context, providerID string) (domain.WeeklySchedule, error) {
	if err := ctx.Err(); err != nil {
		return domain.WeeklySchedule{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.schedules[providerID]
	if !ok {
		return domain.WeeklySchedule{}, store.ErrNotFound
	}
	return cloneSchedule(s), nil
}

func (r *ScheduleRepo) PutSchedule(ctx context.Context, s domain.WeeklySchedule) (domain.WeeklySchedule, error) {
	if err := ctx.Err(); err != nil {
		return domain.WeeklySchedule{}, err
	}
	if err := s.Validate(); err != nil {
		return domain.WeeklySchedule{}, err
	}
	s = cloneSchedule(s)
	s.UpdatedAt = time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedules[s.ProviderID] = s
	return cloneSchedule(s), nil
}

func cloneSchedule(s domain.WeeklySchedule) domain.WeeklySchedule {
	for i := range s.Days {
		s.Days[i].Intervals = append([]domain.TimeInterval(nil), s.Days[i].Intervals...)
	}
	return s
}
