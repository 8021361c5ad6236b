package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SlotReservation is a short-lived exclusive hold on a slot while a client checks out.
type SlotReservation struct {
	bun.BaseModel `bun:"table:slot_reservations"`

	ID              uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	ProviderID      string    `bun:"provider_id,notnull" json:"provider_id"`
	ShopID          string    `bun:"shop_id,notnull" json:"shop_id"`
	Date            time.Time `bun:"date,type:date,notnull" json:"date"`
	StartTime       Clock     `bun:"start_minute,notnull" json:"start_time"`
	EndTime         Clock     `bun:"end_minute,notnull" json:"end_time"`
	DurationMinutes int       `bun:"duration_minutes,notnull" json:"duration_minutes"`
	ClientID        string    `bun:"client_id,notnull" json:"client_id"`
	ServiceID       string    `bun:"service_id,notnull" json:"service_id"`
	CreatedAt       time.Time `bun:"created_at,notnull" json:"created_at"`
	ExpiresAt       time.Time `bun:"expires_at,notnull" json:"expires_at"`
}

func (r *SlotReservation) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok && r.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		r.ID = id
	}
	return nil
}

// ValidAt reports whether the hold still blocks competing holds at now.
func (r SlotReservation) ValidAt(now time.Time) bool {
	return now.Before(r.ExpiresAt)
}

// Remaining is never negative.
func (r SlotReservation) Remaining(now time.Time) time.Duration {
	d := r.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Overlaps reports whether the hold covers any part of [start, end) on the same provider and date.
func (r SlotReservation) Overlaps(providerID string, date time.Time, start, end Clock) bool {
	if r.ProviderID != providerID || !SameDate(r.Date, date) {
		return false
	}
	return start < r.EndTime && r.StartTime < end
}

// AvailableTimeSlot is a computed view and is never persisted.
type AvailableTimeSlot struct {
	Date            time.Time `json:"date"`
	StartTime       Clock     `json:"start_time"`
	EndTime         Clock     `json:"end_time"`
	DurationMinutes int       `json:"duration_minutes"`
	IsAvailable     bool      `json:"is_available"`
}
