package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"bookly/backend/internal/domain"
)

// ReservationRepo is a reservation.Store shared by every instance using the
// same database. Check-and-insert runs under a per provider/date advisory lock.
type ReservationRepo struct {
	db *bun.DB
}

func NewReservationRepo(db *bun.DB) *ReservationRepo {
	return &ReservationRepo{db: db}
}

func (r *ReservationRepo) Insert(ctx context.Context, res domain.SlotReservation, now time.Time) (*domain.SlotReservation, error) {
	var conflict *domain.SlotReservation
	date := domain.FormatDate(res.Date)

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", "reservations:"+res.ProviderID+"|"+date).Exec(ctx); err != nil {
			return err
		}

		var holds []domain.SlotReservation
		err := tx.NewSelect().
			Model(&holds).
			Where("provider_id = ?", res.ProviderID).
			Where("date = ?::date", date).
			Where("expires_at > ?", now).
			Where("start_minute < ?", res.EndTime).
			Where("end_minute > ?", res.StartTime).
			OrderExpr("start_minute ASC").
			Scan(ctx)
		if err != nil {
			return err
		}
		for _, h := range holds {
			if h.ClientID != res.ClientID {
				c := h
				conflict = &c
				return nil
			}
		}

		_, err = tx.NewDelete().
			Model((*domain.SlotReservation)(nil)).
			Where("provider_id = ?", res.ProviderID).
			Where("date = ?::date", date).
			WhereGroup(" AND ", func(q *bun.DeleteQuery) *bun.DeleteQuery {
				return q.
					Where("expires_at <= ?", now).
					WhereOr("client_id = ? AND start_minute < ? AND end_minute > ?", res.ClientID, res.EndTime, res.StartTime)
			}).
			Exec(ctx)
		if err != nil {
			return err
		}

		m := res
		m.Date = domain.DateOf(res.Date)
		_, err = tx.NewInsert().Model(&m).Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return conflict, nil
}

func (r *ReservationRepo) Get(ctx context.Context, id uuid.UUID) (domain.SlotReservation, bool, error) {
	var res domain.SlotReservation
	err := r.db.NewSelect().Model(&res).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SlotReservation{}, false, nil
	}
	if err != nil {
		return domain.SlotReservation{}, false, err
	}
	return res, true, nil
}

func (r *ReservationRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.NewDelete().Model((*domain.SlotReservation)(nil)).Where("id = ?", id).Exec(ctx)
	return err
}

func (r *ReservationRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.NewDelete().Model((*domain.SlotReservation)(nil)).Where("expires_at <= ?", now).Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
