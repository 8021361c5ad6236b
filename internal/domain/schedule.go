package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// TimeInterval is a half-open [Start, End) window within a single day.
type TimeInterval struct {
	Start Clock `json:"start"`
	End   Clock `json:"end"`
}

func NewTimeInterval(start, end string) (TimeInterval, error) {
	s, err := ParseClock(start)
	if err != nil {
		return TimeInterval{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return TimeInterval{}, err
	}
	iv := TimeInterval{Start: s, End: e}
	if err := iv.Validate(); err != nil {
		return TimeInterval{}, err
	}
	return iv, nil
}

func (iv TimeInterval) Validate() error {
	if !iv.Start.Valid() || !iv.End.Valid() || iv.Start >= iv.End {
		return fmt.Errorf("%w: %s-%s", ErrInvalidInterval, iv.Start, iv.End)
	}
	return nil
}

func (iv TimeInterval) Minutes() int {
	return int(iv.End - iv.Start)
}

// Contains reports whether [start, end) lies entirely inside the interval.
func (iv TimeInterval) Contains(start, end Clock) bool {
	return start >= iv.Start && end <= iv.End
}

// Overlaps uses half-open semantics: touching endpoints do not overlap.
func (iv TimeInterval) Overlaps(start, end Clock) bool {
	return start < iv.End && iv.Start < end
}

type DaySchedule struct {
	Enabled   bool           `json:"enabled"`
	Intervals []TimeInterval `json:"intervals"`
}

type WeeklySchedule struct {
	bun.BaseModel `bun:"table:weekly_schedules"`

	ProviderID string         `bun:"provider_id,pk" json:"provider_id"`
	ShopID     string         `bun:"shop_id,notnull" json:"shop_id"`
	Days       [7]DaySchedule `bun:"days,type:jsonb,notnull" json:"days"`
	UpdatedAt  time.Time      `bun:"updated_at,notnull" json:"updated_at"`
}

func (s *WeeklySchedule) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery, *bun.UpdateQuery:
		s.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s WeeklySchedule) Day(wd time.Weekday) DaySchedule {
	if wd < time.Sunday || wd > time.Saturday {
		return DaySchedule{}
	}
	return s.Days[wd]
}

// Validate rejects malformed intervals and intervals that are unordered or
// overlap within a day. Schedules are authored externally; callers validate on
// ingest rather than having the generator correct them.
func (s WeeklySchedule) Validate() error {
	if s.ProviderID == "" {
		return fmt.Errorf("%w: provider_id is required", ErrInvalidSchedule)
	}
	for wd, day := range s.Days {
		for i, iv := range day.Intervals {
			if err := iv.Validate(); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInvalidSchedule, time.Weekday(wd), err)
			}
			if i > 0 && day.Intervals[i-1].End > iv.Start {
				return fmt.Errorf("%w: %s: intervals overlap or are out of order", ErrInvalidSchedule, time.Weekday(wd))
			}
		}
	}
	return nil
}
