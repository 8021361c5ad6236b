package availability

import (
	"time"

	"github.com/google/uuid"

	"bookly/backend/internal/domain"
)

// IsProviderAvailable reports whether [start, end) on date lies inside one
// enabled interval of the provider's schedule and overlaps no blocking
// appointment. Touching boundaries are not a conflict.
func IsProviderAvailable(date time.Time, start, end domain.Clock, schedule domain.WeeklySchedule, appts []domain.Appointment) bool {
	return IsProviderAvailableExcept(date, start, end, schedule, appts, uuid.Nil)
}

// IsProviderAvailableExcept ignores the appointment with id exclude, so an
// appointment being moved does not conflict with itself.
func IsProviderAvailableExcept(date time.Time, start, end domain.Clock, schedule domain.WeeklySchedule, appts []domain.Appointment, exclude uuid.UUID) bool {
	if start >= end {
		return false
	}
	if !fitsSchedule(date, start, end, schedule) {
		return false
	}
	var skip map[uuid.UUID]struct{}
	if exclude != uuid.Nil {
		skip = map[uuid.UUID]struct{}{exclude: {}}
	}
	return !overlapsAny(start, end, blockingIntervals(schedule.ProviderID, date, appts, skip))
}

func fitsSchedule(date time.Time, start, end domain.Clock, schedule domain.WeeklySchedule) bool {
	day := schedule.Day(date.Weekday())
	if !day.Enabled {
		return false
	}
	for _, iv := range day.Intervals {
		if iv.Contains(start, end) {
			return true
		}
	}
	return false
}

// blockingIntervals collects the occupied ranges of providerID on date.
func blockingIntervals(providerID string, date time.Time, appts []domain.Appointment, skip map[uuid.UUID]struct{}) []domain.TimeInterval {
	var busy []domain.TimeInterval
	for _, a := range appts {
		if a.ProviderID != providerID || !a.Status.BlocksSlot() || !domain.SameDate(a.Date, date) {
			continue
		}
		if _, ok := skip[a.ID]; ok {
			continue
		}
		busy = append(busy, domain.TimeInterval{Start: a.StartTime, End: a.EndTime})
	}
	return busy
}

func overlapsAny(start, end domain.Clock, busy []domain.TimeInterval) bool {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}
