package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"bookly/backend/internal/domain"
	"bookly/backend/internal/store"
)

type ScheduleRepo struct {
	db *bun.DB
}

func NewScheduleRepo(db *bun.DB) *ScheduleRepo {
	return &ScheduleRepo{db: db}
}

func (r *ScheduleRepo) GetSchedule(ctx context.Context, providerID string) (domain.WeeklySchedule, error) {
	var s domain.WeeklySchedule
	err := r.db.NewSelect().
		Model(&s).
		Where("provider_id = ?", providerID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WeeklySchedule{}, store.ErrNotFound
	}
	if err != nil {
		return domain.WeeklySchedule{}, err
	}
	return s, nil
}

func (r *ScheduleRepo) PutSchedule(ctx context.Context, s domain.WeeklySchedule) (domain.WeeklySchedule, error) {
	if err := s.Validate(); err != nil {
		return domain.WeeklySchedule{}, err
	}
	_, err := r.db.NewInsert().
		Model(&s).
		On("CONFLICT (provider_id) DO UPDATE").
		Set("shop_id = EXCLUDED.shop_id").
		Set("days = EXCLUDED.days").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return domain.WeeklySchedule{}, err
	}
	return s, nil
}
