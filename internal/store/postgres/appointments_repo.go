package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"bookly/backend/internal/domain"
	"bookly/backend/internal/store"
)

const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"
	noOverlapConstraint  = "appointments_no_overlap"
)

type AppointmentRepo struct {
	db *bun.DB
}

func NewAppointmentRepo(db *bun.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

type providerTx struct {
	tx bun.Tx
}

func (r *AppointmentRepo) Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	var out domain.Appointment
	err := r.InProviderTransaction(ctx, appt.ProviderID, func(ctx context.Context, tx store.ProviderTx) error {
		a, err := tx.CreateAppointment(ctx, appt)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

func (r *AppointmentRepo) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := r.db.NewSelect().
		Model(&a).
		Relation("StatusHistory", orderHistory).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Appointment{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Appointment{}, err
	}
	return a, nil
}

func (r *AppointmentRepo) ListForProvider(ctx context.Context, providerID string, from, to time.Time) ([]domain.Appointment, error) {
	return listAppointments(ctx, r.db, providerID, from, to)
}

func (r *AppointmentRepo) ApplyTransition(ctx context.Context, updated domain.Appointment, change domain.AppointmentStatusChange) error {
	return r.InProviderTransaction(ctx, updated.ProviderID, func(ctx context.Context, tx store.ProviderTx) error {
		if err := tx.UpdateAppointment(ctx, updated); err != nil {
			return err
		}
		return tx.AppendStatusChange(ctx, change)
	})
}

func (r *AppointmentRepo) History(ctx context.Context, appointmentID uuid.UUID) ([]domain.AppointmentStatusChange, error) {
	var rows []domain.AppointmentStatusChange
	err := r.db.NewSelect().
		Model(&rows).
		Where("appointment_id = ?", appointmentID).
		OrderExpr("changed_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		exists, err := r.db.NewSelect().Model((*domain.Appointment)(nil)).Where("id = ?", appointmentID).Exists(ctx)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, store.ErrNotFound
		}
	}
	return rows, nil
}

func (r *AppointmentRepo) MarkNotified(ctx context.Context, changeID uuid.UUID, party domain.NotifiedParty) (domain.AppointmentStatusChange, error) {
	var column string
	switch party {
	case domain.NotifiedClient:
		column = "client_notified"
	case domain.NotifiedProvider:
		column = "provider_notified"
	default:
		return domain.AppointmentStatusChange{}, errors.New("unknown notified party")
	}

	var c domain.AppointmentStatusChange
	err := r.db.NewUpdate().
		Model(&c).
		Set("? = TRUE", bun.Ident(column)).
		Where("id = ?", changeID).
		Returning("*").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AppointmentStatusChange{}, store.ErrNotFound
	}
	if err != nil {
		return domain.AppointmentStatusChange{}, err
	}
	return c, nil
}

// InProviderTransaction runs fn in a transaction holding the provider's
// advisory lock, so overlap checks and writes for one provider never interleave.
func (r *AppointmentRepo) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.ProviderTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockProvider(ctx, tx, providerID); err != nil {
			return err
		}
		return fn(ctx, providerTx{tx: tx})
	})
}

func lockProvider(ctx context.Context, tx bun.Tx, providerID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", "appointments:"+providerID).Exec(ctx)
	return err
}

func orderHistory(q *bun.SelectQuery) *bun.SelectQuery {
	return q.OrderExpr("changed_at ASC, id ASC")
}

func (p providerTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if appt.ID != uuid.Nil {
		var existing domain.Appointment
		err := p.tx.NewSelect().
			Model(&existing).
			Relation("StatusHistory", orderHistory).
			Where("?TableAlias.id = ?", appt.ID).
			Limit(1).
			Scan(ctx)
		switch {
		case err == nil:
			if !sameBooking(existing, appt) {
				return domain.Appointment{}, store.ErrIdempotencyConflict
			}
			return existing, nil
		case !errors.Is(err, sql.ErrNoRows):
			return domain.Appointment{}, err
		}
	}

	m := appt
	m.Date = domain.DateOf(appt.Date)
	m.StatusHistory = nil

	if _, err := p.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Appointment{}, mapWriteError(err)
	}
	for _, c := range appt.StatusHistory {
		c.AppointmentID = m.ID
		if err := p.AppendStatusChange(ctx, c); err != nil {
			return domain.Appointment{}, err
		}
	}

	m.StatusHistory = appt.StatusHistory
	return m, nil
}

func (p providerTx) UpdateAppointment(ctx context.Context, updated domain.Appointment) error {
	m := updated
	m.Date = domain.DateOf(updated.Date)

	res, err := p.tx.NewUpdate().
		Model(&m).
		Column("status", "version", "date", "start_minute", "end_minute", "duration_minutes", "payment_status", "updated_at").
		Where("id = ?", updated.ID).
		Where("version = ?", updated.Version-1).
		Exec(ctx)
	if err != nil {
		return mapWriteError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	exists, err := p.tx.NewSelect().Model((*domain.Appointment)(nil)).Where("id = ?", updated.ID).Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrVersionConflict
}

func (p providerTx) AppendStatusChange(ctx context.Context, change domain.AppointmentStatusChange) error {
	c := change
	if c.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		c.ID = id
	}
	_, err := p.tx.NewInsert().Model(&c).Exec(ctx)
	return mapWriteError(err)
}

func listAppointments(ctx context.Context, db bun.IDB, providerID string, from, to time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := db.NewSelect().
		Model(&rows).
		Relation("StatusHistory", orderHistory).
		Where("?TableAlias.provider_id = ?", providerID).
		Where("?TableAlias.date >= ?::date", domain.FormatDate(from)).
		Where("?TableAlias.date <= ?::date", domain.FormatDate(to)).
		OrderExpr("?TableAlias.date ASC, ?TableAlias.start_minute ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgExclusionViolation && pgErr.ConstraintName == noOverlapConstraint:
			return store.ErrConflict
		case pgErr.Code == pgUniqueViolation:
			return store.ErrIdempotencyConflict
		}
	}
	return err
}

func sameBooking(a, b domain.Appointment) bool {
	return a.ClientID == b.ClientID &&
		a.ProviderID == b.ProviderID &&
		a.ServiceID == b.ServiceID &&
		domain.SameDate(a.Date, b.Date) &&
		a.StartTime == b.StartTime &&
		a.EndTime == b.EndTime
}
