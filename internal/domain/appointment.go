package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ErrUnknownStatus = errors.New("unknown appointment status")

type Status string

const (
	StatusRequested   Status = "requested"
	StatusConfirmed   Status = "confirmed"
	StatusInProgress  Status = "in-progress"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusNoShow      Status = "no-show"
	StatusRescheduled Status = "rescheduled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusRequested,
	StatusConfirmed,
	StatusInProgress,
	StatusCompleted,
	StatusCancelled,
	StatusNoShow,
	StatusRescheduled,
}

func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

// BlocksSlot reports whether an appointment in this status occupies its time range.
func (s Status) BlocksSlot() bool {
	return s != StatusCancelled
}

type Role string

const (
	RoleClient   Role = "client"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

var Roles = []Role{RoleClient, RoleProvider, RoleAdmin}

func (r Role) Valid() bool {
	for _, x := range Roles {
		if x == r {
			return true
		}
	}
	return false
}

// Action is the semantic operation a caller performs to move an appointment.
type Action string

const (
	ActionConfirm    Action = "confirm"
	ActionStart      Action = "start"
	ActionComplete   Action = "complete"
	ActionCancel     Action = "cancel"
	ActionMarkNoShow Action = "mark_no_show"
	ActionReschedule Action = "reschedule"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentFailed   PaymentStatus = "failed"
)

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID              uuid.UUID     `bun:"id,pk,type:uuid" json:"id"`
	ClientID        string        `bun:"client_id,notnull" json:"client_id"`
	ProviderID      string        `bun:"provider_id,notnull" json:"provider_id"`
	ServiceID       string        `bun:"service_id,notnull" json:"service_id"`
	ShopID          string        `bun:"shop_id,notnull" json:"shop_id"`
	Date            time.Time     `bun:"date,type:date,notnull" json:"date"`
	StartTime       Clock         `bun:"start_minute,notnull" json:"start_time"`
	EndTime         Clock         `bun:"end_minute,notnull" json:"end_time"`
	DurationMinutes int           `bun:"duration_minutes,notnull" json:"duration_minutes"`
	Status          Status        `bun:"status,notnull" json:"status"`
	PaymentStatus   PaymentStatus `bun:"payment_status,notnull" json:"payment_status"`
	PaymentMethod   string        `bun:"payment_method" json:"payment_method,omitempty"`
	PriceCents      int64         `bun:"price_cents,notnull" json:"price_cents"`
	Notes           string        `bun:"notes" json:"notes,omitempty"`
	ReservationID   *uuid.UUID    `bun:"reservation_id,type:uuid" json:"reservation_id,omitempty"`
	Version         int           `bun:"version,notnull" json:"version"`
	CreatedAt       time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt       time.Time     `bun:"updated_at,notnull" json:"updated_at"`

	StatusHistory []AppointmentStatusChange `bun:"rel:has-many,join:id=appointment_id" json:"status_history"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	}
	return nil
}

// Overlaps reports whether the appointment occupies any part of [start, end) on date.
func (a Appointment) Overlaps(date time.Time, start, end Clock) bool {
	if !SameDate(a.Date, date) {
		return false
	}
	return start < a.EndTime && a.StartTime < end
}

// LastChange returns the most recent status change, if any.
func (a Appointment) LastChange() (AppointmentStatusChange, bool) {
	if len(a.StatusHistory) == 0 {
		return AppointmentStatusChange{}, false
	}
	return a.StatusHistory[len(a.StatusHistory)-1], true
}

// AppointmentStatusChange is the immutable audit record of one accepted transition.
type AppointmentStatusChange struct {
	bun.BaseModel `bun:"table:appointment_status_changes"`

	ID               uuid.UUID         `bun:"id,pk,type:uuid" json:"id"`
	AppointmentID    uuid.UUID         `bun:"appointment_id,notnull,type:uuid" json:"appointment_id"`
	FromStatus       Status            `bun:"from_status,notnull" json:"from_status"`
	ToStatus         Status            `bun:"to_status,notnull" json:"to_status"`
	ActorID          string            `bun:"actor_id,notnull" json:"actor_id"`
	ActorRole        Role              `bun:"actor_role,notnull" json:"actor_role"`
	Action           Action            `bun:"action,notnull" json:"action"`
	Reason           string            `bun:"reason" json:"reason,omitempty"`
	Metadata         map[string]string `bun:"metadata,type:jsonb" json:"metadata,omitempty"`
	ChangedAt        time.Time         `bun:"changed_at,notnull" json:"changed_at"`
	ClientNotified   bool              `bun:"client_notified,notnull" json:"client_notified"`
	ProviderNotified bool              `bun:"provider_notified,notnull" json:"provider_notified"`
}

type NotifiedParty string

const (
	NotifiedClient   NotifiedParty = "client"
	NotifiedProvider NotifiedParty = "provider"
)
