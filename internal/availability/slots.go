package availability

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"bookly/backend/internal/domain"
)

const (
	DefaultGranularityMinutes = 15
	// MaxRangeDays bounds a single range query.
	MaxRangeDays = 93
)

var ErrInvalidRange = errors.New("invalid date range")

// Generator carries the configured slot granularity.
type Generator struct {
	GranularityMinutes int
}

func NewGenerator(granularity time.Duration) Generator {
	return Generator{GranularityMinutes: int(granularity / time.Minute)}
}

func (g Generator) Slots(date time.Time, schedule domain.WeeklySchedule, appts []domain.Appointment, durationMinutes int) ([]domain.AvailableTimeSlot, error) {
	return GenerateAvailableSlots(date, schedule, appts, durationMinutes, g.GranularityMinutes)
}

func (g Generator) SlotsForRange(startDate, endDate time.Time, schedule domain.WeeklySchedule, appts []domain.Appointment, durationMinutes int) ([]domain.AvailableTimeSlot, error) {
	return generateRange(startDate, endDate, schedule, appts, durationMinutes, g.GranularityMinutes)
}

// GenerateAvailableSlots returns the bookable slots of length durationMinutes
// on date, ordered by start time. A candidate is kept only when it fits inside
// an enabled interval of that weekday and overlaps no blocking appointment of
// the schedule's provider on that date. granularityMinutes <= 0 selects the default.
func GenerateAvailableSlots(date time.Time, schedule domain.WeeklySchedule, appts []domain.Appointment, durationMinutes, granularityMinutes int) ([]domain.AvailableTimeSlot, error) {
	all, err := CandidateSlots(date, schedule, appts, durationMinutes, granularityMinutes)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, s := range all {
		if s.IsAvailable {
			out = append(out, s)
		}
	}
	return out, nil
}

// CandidateSlots is the full grid for date with IsAvailable set per candidate.
func CandidateSlots(date time.Time, schedule domain.WeeklySchedule, appts []domain.Appointment, durationMinutes, granularityMinutes int) ([]domain.AvailableTimeSlot, error) {
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive, got %d", domain.ErrInvalidDuration, durationMinutes)
	}
	if granularityMinutes <= 0 {
		granularityMinutes = DefaultGranularityMinutes
	}

	day := schedule.Day(date.Weekday())
	if !day.Enabled || len(day.Intervals) == 0 {
		return nil, nil
	}

	busy := blockingIntervals(schedule.ProviderID, date, appts, nil)
	dateOnly := domain.DateOf(date)

	var out []domain.AvailableTimeSlot
	for _, iv := range day.Intervals {
		if durationMinutes > iv.Minutes() {
			continue
		}
		for start := iv.Start; start.Add(durationMinutes) <= iv.End; start = start.Add(granularityMinutes) {
			end := start.Add(durationMinutes)
			out = append(out, domain.AvailableTimeSlot{
				Date:            dateOnly,
				StartTime:       start,
				EndTime:         end,
				DurationMinutes: durationMinutes,
				IsAvailable:     !overlapsAny(start, end, busy),
			})
		}
	}
	return out, nil
}

// GenerateAvailableSlotsForDateRange computes each day of the inclusive range
// independently and concatenates the results in date order.
func GenerateAvailableSlotsForDateRange(startDate, endDate time.Time, schedule domain.WeeklySchedule, appts []domain.Appointment, durationMinutes int) ([]domain.AvailableTimeSlot, error) {
	return generateRange(startDate, endDate, schedule, appts, durationMinutes, DefaultGranularityMinutes)
}

func generateRange(startDate, endDate time.Time, schedule domain.WeeklySchedule, appts []domain.Appointment, durationMinutes, granularityMinutes int) ([]domain.AvailableTimeSlot, error) {
	first := domain.DateOf(startDate)
	last := domain.DateOf(endDate)
	if last.Before(first) {
		return nil, fmt.Errorf("%w: end date before start date", ErrInvalidRange)
	}
	days := int(last.Sub(first)/(24*time.Hour)) + 1
	if days > MaxRangeDays {
		return nil, fmt.Errorf("%w: %d days exceeds %d", ErrInvalidRange, days, MaxRangeDays)
	}

	perDay := make([][]domain.AvailableTimeSlot, days)
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < days; i++ {
		date := first.AddDate(0, 0, i)
		g.Go(func() error {
			slots, err := GenerateAvailableSlots(date, schedule, appts, durationMinutes, granularityMinutes)
			if err != nil {
				return err
			}
			perDay[i] = slots
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, s := range perDay {
		total += len(s)
	}
	out := make([]domain.AvailableTimeSlot, 0, total)
	for _, s := range perDay {
		out = append(out, s...)
	}
	return out, nil
}
