package reservation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"bookly/backend/internal/domain"
)

const DefaultHoldWindow = 5 * time.Minute

// InputError reports a malformed reservation request. It is the only error
// Reserve returns for problems with the request itself.
type InputError struct {
	Field string
	Msg   string
}

func (e *InputError) Error() string {
	return e.Field + ": " + e.Msg
}

type ReserveInput struct {
	ProviderID string
	ShopID     string
	ClientID   string
	ServiceID  string
	Date       time.Time
	StartTime  domain.Clock
	EndTime    domain.Clock
	// DurationMinutes defaults to EndTime-StartTime and must match it when set.
	DurationMinutes int
}

// ReserveResult carries either the new hold or the reason none was taken.
// Conflict is the competing hold; Unavailable is set by callers that reject
// the slot before it reaches the store.
type ReserveResult struct {
	Reservation *domain.SlotReservation
	Conflict    *domain.SlotReservation
	Unavailable bool
}

func (r ReserveResult) OK() bool {
	return r.Reservation != nil
}

type Options struct {
	HoldWindow time.Duration
	Now        func() time.Time
	Logger     *slog.Logger
}

// Manager is the sole arbiter of slot ownership. Expiry is evaluated lazily
// against Now on every read.
type Manager struct {
	store Store
	hold  time.Duration
	now   func() time.Time
	log   *slog.Logger
}

func NewManager(s Store, opts Options) *Manager {
	m := &Manager{
		store: s,
		hold:  opts.HoldWindow,
		now:   opts.Now,
		log:   opts.Logger,
	}
	if m.hold <= 0 {
		m.hold = DefaultHoldWindow
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	m.log = m.log.With(slog.String("component", "reservations"))
	return m
}

func (m *Manager) Reserve(ctx context.Context, in ReserveInput) (ReserveResult, error) {
	r, err := m.newReservation(in)
	if err != nil {
		return ReserveResult{}, err
	}

	conflict, err := m.store.Insert(ctx, r, r.CreatedAt)
	if err != nil {
		m.log.Error("reserve slot", slog.String("provider_id", r.ProviderID), slog.Any("err", err))
		return ReserveResult{}, err
	}
	if conflict != nil {
		m.log.Info("slot already held",
			slog.String("provider_id", r.ProviderID),
			slog.String("date", domain.FormatDate(r.Date)),
			slog.String("start", r.StartTime.String()),
			slog.String("held_by", conflict.ID.String()),
		)
		return ReserveResult{Conflict: conflict}, nil
	}

	m.log.Debug("slot reserved",
		slog.String("reservation_id", r.ID.String()),
		slog.String("provider_id", r.ProviderID),
		slog.Time("expires_at", r.ExpiresAt),
	)
	return ReserveResult{Reservation: &r}, nil
}

func (m *Manager) newReservation(in ReserveInput) (domain.SlotReservation, error) {
	providerID := strings.TrimSpace(in.ProviderID)
	clientID := strings.TrimSpace(in.ClientID)
	switch {
	case providerID == "":
		return domain.SlotReservation{}, &InputError{Field: "provider_id", Msg: "is required"}
	case clientID == "":
		return domain.SlotReservation{}, &InputError{Field: "client_id", Msg: "is required"}
	case in.Date.IsZero():
		return domain.SlotReservation{}, &InputError{Field: "date", Msg: "is required"}
	}
	iv := domain.TimeInterval{Start: in.StartTime, End: in.EndTime}
	if err := iv.Validate(); err != nil {
		return domain.SlotReservation{}, &InputError{Field: "time", Msg: err.Error()}
	}
	duration := in.DurationMinutes
	if duration == 0 {
		duration = iv.Minutes()
	}
	if duration != iv.Minutes() {
		return domain.SlotReservation{}, &InputError{Field: "duration_minutes", Msg: "does not match start and end time"}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return domain.SlotReservation{}, err
	}
	now := m.now().UTC()
	return domain.SlotReservation{
		ID:              id,
		ProviderID:      providerID,
		ShopID:          strings.TrimSpace(in.ShopID),
		Date:            domain.DateOf(in.Date),
		StartTime:       in.StartTime,
		EndTime:         in.EndTime,
		DurationMinutes: duration,
		ClientID:        clientID,
		ServiceID:       strings.TrimSpace(in.ServiceID),
		CreatedAt:       now,
		ExpiresAt:       now.Add(m.hold),
	}, nil
}

// Release is idempotent.
func (m *Manager) Release(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	if err := m.store.Delete(ctx, id); err != nil {
		m.log.Error("release reservation", slog.String("reservation_id", id.String()), slog.Any("err", err))
		return err
	}
	return nil
}

// RemainingSeconds is floor(expiresAt-now) clamped at zero. Unknown ids and
// store failures read as zero.
func (m *Manager) RemainingSeconds(ctx context.Context, id uuid.UUID) int {
	r, ok, err := m.store.Get(ctx, id)
	if err != nil {
		m.log.Warn("read reservation", slog.String("reservation_id", id.String()), slog.Any("err", err))
		return 0
	}
	if !ok {
		return 0
	}
	return int(r.Remaining(m.now()) / time.Second)
}

// Active returns the hold only while it is still valid.
func (m *Manager) Active(ctx context.Context, id uuid.UUID) (domain.SlotReservation, bool, error) {
	r, ok, err := m.store.Get(ctx, id)
	if err != nil || !ok {
		return domain.SlotReservation{}, false, err
	}
	if !r.ValidAt(m.now()) {
		return domain.SlotReservation{}, false, nil
	}
	return r, true, nil
}

// Compact drops expired holds to bound memory. Correctness never depends on it.
func (m *Manager) Compact(ctx context.Context) (int, error) {
	n, err := m.store.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.log.Debug("compacted expired reservations", slog.Int("removed", n))
	}
	return n, nil
}
