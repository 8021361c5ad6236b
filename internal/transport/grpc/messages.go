package grpc

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"bookly/backend/internal/domain"
	"bookly/backend/internal/lifecycle"
	"bookly/backend/internal/reservation"
)

// args reads typed fields out of a request document. Every accessor returns
// an InvalidArgument status naming the field.
type args struct {
	fields map[string]*structpb.Value
}

func argsOf(in *structpb.Struct) args {
	if in == nil {
		return args{}
	}
	return args{fields: in.GetFields()}
}

func invalid(format string, a ...any) error {
	return status.Errorf(codes.InvalidArgument, format, a...)
}

func (a args) has(key string) bool {
	v, ok := a.fields[key]
	if !ok || v == nil {
		return false
	}
	_, isNull := v.GetKind().(*structpb.Value_NullValue)
	return !isNull
}

func (a args) str(key string) string {
	v, ok := a.fields[key]
	if !ok {
		return ""
	}
	return strings.TrimSpace(v.GetStringValue())
}

func (a args) integer(key string) (int, error) {
	v, ok := a.fields[key]
	if !ok {
		return 0, invalid("%s is required", key)
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := k.NumberValue
		if n != math.Trunc(n) || math.Abs(n) > math.MaxInt32 {
			return 0, invalid("%s must be a whole number", key)
		}
		return int(n), nil
	case *structpb.Value_StringValue:
		n, err := strconv.Atoi(strings.TrimSpace(k.StringValue))
		if err != nil {
			return 0, invalid("%s must be a whole number", key)
		}
		return n, nil
	default:
		return 0, invalid("%s must be a whole number", key)
	}
}

func (a args) optionalInteger(key string) (int, error) {
	if !a.has(key) {
		return 0, nil
	}
	return a.integer(key)
}

func (a args) date(key string) (time.Time, error) {
	s := a.str(key)
	if s == "" {
		return time.Time{}, invalid("%s is required", key)
	}
	d, err := domain.ParseDate(s)
	if err != nil {
		return time.Time{}, invalid("%s must be YYYY-MM-DD", key)
	}
	return d, nil
}

func (a args) clock(key string) (domain.Clock, error) {
	s := a.str(key)
	if s == "" {
		return 0, invalid("%s is required", key)
	}
	c, err := domain.ParseClock(s)
	if err != nil {
		return 0, invalid("%s must be HH:MM", key)
	}
	return c, nil
}

func (a args) id(key string) (uuid.UUID, error) {
	s := a.str(key)
	if s == "" {
		return uuid.Nil, invalid("%s is required", key)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, invalid("%s must be a UUID", key)
	}
	return id, nil
}

func (a args) stringMap(key string) (map[string]string, error) {
	if !a.has(key) {
		return nil, nil
	}
	st := a.fields[key].GetStructValue()
	if st == nil {
		return nil, invalid("%s must be an object", key)
	}
	out := make(map[string]string, len(st.GetFields()))
	for k, v := range st.GetFields() {
		s, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, invalid("%s.%s must be a string", key, k)
		}
		out[k] = s.StringValue
	}
	return out, nil
}

var weekdayKeys = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

func (a args) schedule() (domain.WeeklySchedule, error) {
	sched := domain.WeeklySchedule{
		ProviderID: a.str("provider_id"),
		ShopID:     a.str("shop_id"),
	}
	if !a.has("days") {
		return sched, nil
	}
	days := a.fields["days"].GetStructValue()
	if days == nil {
		return domain.WeeklySchedule{}, invalid("days must be an object keyed by weekday")
	}
	for name := range days.GetFields() {
		if weekdayIndex(name) < 0 {
			return domain.WeeklySchedule{}, invalid("days.%s is not a weekday", name)
		}
	}
	for wd, name := range weekdayKeys {
		v, ok := days.GetFields()[name]
		if !ok {
			continue
		}
		day := argsOf(v.GetStructValue())
		if day.fields == nil {
			return domain.WeeklySchedule{}, invalid("days.%s must be an object", name)
		}
		ds := domain.DaySchedule{Enabled: day.fields["enabled"].GetBoolValue()}
		for i, iv := range day.fields["intervals"].GetListValue().GetValues() {
			ia := argsOf(iv.GetStructValue())
			start, err := ia.clock("start")
			if err != nil {
				return domain.WeeklySchedule{}, invalid("days.%s.intervals[%d].start must be HH:MM", name, i)
			}
			end, err := ia.clock("end")
			if err != nil {
				return domain.WeeklySchedule{}, invalid("days.%s.intervals[%d].end must be HH:MM", name, i)
			}
			ds.Intervals = append(ds.Intervals, domain.TimeInterval{Start: start, End: end})
		}
		sched.Days[wd] = ds
	}
	return sched, nil
}

func weekdayIndex(name string) int {
	for i, k := range weekdayKeys {
		if k == name {
			return i
		}
	}
	return -1
}

func timestamp(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func slotValue(s domain.AvailableTimeSlot) map[string]any {
	return map[string]any{
		"date":             domain.FormatDate(s.Date),
		"start_time":       s.StartTime.String(),
		"end_time":         s.EndTime.String(),
		"duration_minutes": s.DurationMinutes,
		"is_available":     s.IsAvailable,
	}
}

func reservationValue(r domain.SlotReservation, remaining int) map[string]any {
	return map[string]any{
		"id":                r.ID.String(),
		"provider_id":       r.ProviderID,
		"shop_id":           r.ShopID,
		"client_id":         r.ClientID,
		"service_id":        r.ServiceID,
		"date":              domain.FormatDate(r.Date),
		"start_time":        r.StartTime.String(),
		"end_time":          r.EndTime.String(),
		"duration_minutes":  r.DurationMinutes,
		"created_at":        timestamp(r.CreatedAt),
		"expires_at":        timestamp(r.ExpiresAt),
		"remaining_seconds": remaining,
	}
}

// conflictValue leaves out who holds the slot.
func conflictValue(r domain.SlotReservation) map[string]any {
	return map[string]any{
		"date":       domain.FormatDate(r.Date),
		"start_time": r.StartTime.String(),
		"end_time":   r.EndTime.String(),
		"expires_at": timestamp(r.ExpiresAt),
	}
}

func changeValue(c domain.AppointmentStatusChange) map[string]any {
	meta := make(map[string]any, len(c.Metadata))
	for k, v := range c.Metadata {
		meta[k] = v
	}
	return map[string]any{
		"id":                c.ID.String(),
		"appointment_id":    c.AppointmentID.String(),
		"from_status":       string(c.FromStatus),
		"to_status":         string(c.ToStatus),
		"action":            string(c.Action),
		"actor_id":          c.ActorID,
		"actor_role":        string(c.ActorRole),
		"reason":            c.Reason,
		"metadata":          meta,
		"changed_at":        timestamp(c.ChangedAt),
		"client_notified":   c.ClientNotified,
		"provider_notified": c.ProviderNotified,
	}
}

func appointmentValue(a domain.Appointment) map[string]any {
	history := make([]any, 0, len(a.StatusHistory))
	for _, c := range a.StatusHistory {
		history = append(history, changeValue(c))
	}
	var reservationID any
	if a.ReservationID != nil {
		reservationID = a.ReservationID.String()
	}
	return map[string]any{
		"id":               a.ID.String(),
		"client_id":        a.ClientID,
		"provider_id":      a.ProviderID,
		"service_id":       a.ServiceID,
		"shop_id":          a.ShopID,
		"date":             domain.FormatDate(a.Date),
		"start_time":       a.StartTime.String(),
		"end_time":         a.EndTime.String(),
		"duration_minutes": a.DurationMinutes,
		"status":           string(a.Status),
		"payment_status":   string(a.PaymentStatus),
		"payment_method":   a.PaymentMethod,
		"price_cents":      a.PriceCents,
		"notes":            a.Notes,
		"reservation_id":   reservationID,
		"version":          a.Version,
		"created_at":       timestamp(a.CreatedAt),
		"updated_at":       timestamp(a.UpdatedAt),
		"status_history":   history,
	}
}

func actionValue(o lifecycle.ActionOption) map[string]any {
	return map[string]any{
		"action":          string(o.Action),
		"target_status":   string(o.TargetStatus),
		"label":           o.Label,
		"requires_reason": o.RequiresReason,
	}
}

func snapshotValue(s reservation.Snapshot) map[string]any {
	return map[string]any{
		"reservation_id":    s.ReservationID.String(),
		"remaining_seconds": s.RemainingSeconds,
		"expired":           s.Expired,
		"display":           s.Display,
	}
}

func scheduleValue(s domain.WeeklySchedule) map[string]any {
	days := make(map[string]any, len(weekdayKeys))
	for wd, name := range weekdayKeys {
		day := s.Days[wd]
		intervals := make([]any, 0, len(day.Intervals))
		for _, iv := range day.Intervals {
			intervals = append(intervals, map[string]any{
				"start": iv.Start.String(),
				"end":   iv.End.String(),
			})
		}
		days[name] = map[string]any{
			"enabled":   day.Enabled,
			"intervals": intervals,
		}
	}
	return map[string]any{
		"provider_id": s.ProviderID,
		"shop_id":     s.ShopID,
		"days":        days,
		"updated_at":  timestamp(s.UpdatedAt),
	}
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}
