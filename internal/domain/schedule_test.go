package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewTimeInterval_Validation(t *testing.T) {
	if _, err := NewTimeInterval("10:00", "10:00"); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("err = %v, want %v", err, ErrInvalidInterval)
	}
	if _, err := NewTimeInterval("11:00", "10:00"); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("err = %v, want %v", err, ErrInvalidInterval)
	}
	if _, err := NewTimeInterval("1000", "11:00"); !errors.Is(err, ErrInvalidClock) {
		t.Fatalf("err = %v, want %v", err, ErrInvalidClock)
	}

	iv, err := NewTimeInterval("09:00", "17:00")
	if err != nil {
		t.Fatalf("NewTimeInterval error: %v", err)
	}
	if iv.Minutes() != 480 {
		t.Fatalf("Minutes = %d, want 480", iv.Minutes())
	}
}

func TestTimeInterval_OverlapsIsHalfOpen(t *testing.T) {
	iv := TimeInterval{Start: MustParseClock("10:00"), End: MustParseClock("10:45")}

	if iv.Overlaps(MustParseClock("10:45"), MustParseClock("11:15")) {
		t.Fatalf("touching end should not overlap")
	}
	if iv.Overlaps(MustParseClock("09:30"), MustParseClock("10:00")) {
		t.Fatalf("touching start should not overlap")
	}
	if !iv.Overlaps(MustParseClock("09:45"), MustParseClock("10:15")) {
		t.Fatalf("expected overlap")
	}
}

func TestWeeklySchedule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *WeeklySchedule)
		wantErr bool
	}{
		{name: "valid", mutate: func(s *WeeklySchedule) {}},
		{
			name:    "missing provider",
			mutate:  func(s *WeeklySchedule) { s.ProviderID = "" },
			wantErr: true,
		},
		{
			name: "inverted interval",
			mutate: func(s *WeeklySchedule) {
				s.Days[time.Tuesday] = DaySchedule{Enabled: true, Intervals: []TimeInterval{
					{Start: MustParseClock("12:00"), End: MustParseClock("09:00")},
				}}
			},
			wantErr: true,
		},
		{
			name: "overlapping intervals",
			mutate: func(s *WeeklySchedule) {
				s.Days[time.Monday].Intervals = append(s.Days[time.Monday].Intervals,
					TimeInterval{Start: MustParseClock("16:00"), End: MustParseClock("18:00")})
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := WeeklySchedule{ProviderID: "p1"}
			s.Days[time.Monday] = DaySchedule{Enabled: true, Intervals: []TimeInterval{
				{Start: MustParseClock("09:00"), End: MustParseClock("17:00")},
			}}
			tt.mutate(&s)

			err := s.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidSchedule) {
				t.Fatalf("err = %v, want %v", err, ErrInvalidSchedule)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Validate error: %v", err)
			}
		})
	}
}

func TestSlotReservation_ValidityAndRemaining(t *testing.T) {
	now := time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC)
	r := SlotReservation{ExpiresAt: now.Add(5 * time.Minute)}

	if !r.ValidAt(now) {
		t.Fatalf("expected valid before expiry")
	}
	if r.ValidAt(r.ExpiresAt) {
		t.Fatalf("expected invalid at expires_at")
	}
	if got := r.Remaining(now.Add(10 * time.Minute)); got != 0 {
		t.Fatalf("Remaining = %v, want 0", got)
	}
}

func TestStatus_ParseAndBlocksSlot(t *testing.T) {
	for _, st := range Statuses {
		got, err := ParseStatus(string(st))
		if err != nil || got != st {
			t.Fatalf("ParseStatus(%q) = %q, %v", st, got, err)
		}
		if st.BlocksSlot() == (st == StatusCancelled) {
			t.Fatalf("BlocksSlot(%q) = %v", st, st.BlocksSlot())
		}
	}
	if _, err := ParseStatus("archived"); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("err = %v, want %v", err, ErrUnknownStatus)
	}
}
