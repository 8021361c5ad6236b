package availability

import (
	"testing"
	"time"

	"bookly/backend/internal/domain"
)

func TestIsProviderAvailable(t *testing.T) {
	existing := []domain.Appointment{
		appt("p1", monday, "10:00", "10:45", domain.StatusConfirmed),
		appt("p1", monday, "13:00", "14:00", domain.StatusCancelled),
	}

	tests := []struct {
		name       string
		date       time.Time
		start, end string
		want       bool
	}{
		{name: "free inside hours", date: monday, start: "09:00", end: "09:30", want: true},
		{name: "touches appointment start", date: monday, start: "09:30", end: "10:00", want: true},
		{name: "touches appointment end", date: monday, start: "10:45", end: "11:15", want: true},
		{name: "overlaps appointment", date: monday, start: "09:45", end: "10:15", want: false},
		{name: "inside appointment", date: monday, start: "10:10", end: "10:20", want: false},
		{name: "cancelled does not block", date: monday, start: "13:00", end: "14:00", want: true},
		{name: "crosses closing time", date: monday, start: "16:45", end: "17:15", want: false},
		{name: "before opening", date: monday, start: "08:30", end: "09:15", want: false},
		{name: "disabled weekday", date: monday.AddDate(0, 0, 1), start: "09:00", end: "09:30", want: false},
		{name: "empty range", date: monday, start: "11:00", end: "11:00", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsProviderAvailable(tt.date, clock(tt.start), clock(tt.end), mondaySchedule(), existing)
			if got != tt.want {
				t.Fatalf("IsProviderAvailable(%s-%s) = %v, want %v", tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestIsProviderAvailable_MustFitSingleInterval(t *testing.T) {
	s := mondaySchedule()
	s.Days[time.Monday].Intervals = []domain.TimeInterval{
		{Start: clock("09:00"), End: clock("12:00")},
		{Start: clock("12:00"), End: clock("15:00")},
	}

	if IsProviderAvailable(monday, clock("11:30"), clock("12:30"), s, nil) {
		t.Fatalf("intervals are not merged: a range spanning two intervals is unavailable")
	}
}

func TestIsProviderAvailableExcept_IgnoresExcludedAppointment(t *testing.T) {
	moving := appt("p1", monday, "10:00", "11:00", domain.StatusConfirmed)
	existing := []domain.Appointment{moving}

	if IsProviderAvailable(monday, clock("10:30"), clock("11:30"), mondaySchedule(), existing) {
		t.Fatalf("expected conflict without exclusion")
	}
	if !IsProviderAvailableExcept(monday, clock("10:30"), clock("11:30"), mondaySchedule(), existing, moving.ID) {
		t.Fatalf("expected availability when the moving appointment is excluded")
	}
}
