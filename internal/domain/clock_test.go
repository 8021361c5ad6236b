package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{in: "00:00", want: 0},
		{in: "09:45", want: 9*60 + 45},
		{in: " 17:00 ", want: 17 * 60},
		{in: "24:00", want: 24 * 60},
		{in: "24:01", wantErr: true},
		{in: "9:00", wantErr: true},
		{in: "09:60", wantErr: true},
		{in: "ab:cd", wantErr: true},
		{in: "", wantErr: true},
		{in: "+9:30", wantErr: true},
		{in: "-0:00", wantErr: true},
		{in: "+1:+5", wantErr: true},
		{in: "09:-5", wantErr: true},
		{in: "0x:10", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidClock) {
					t.Fatalf("err = %v, want %v", err, ErrInvalidClock)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseClock error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseClock(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestClock_StringAndJSONRoundTrip(t *testing.T) {
	c := MustParseClock("07:05")
	if c.String() != "07:05" {
		t.Fatalf("String = %q, want %q", c.String(), "07:05")
	}

	b, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(b) != `"07:05"` {
		t.Fatalf("json = %s, want %q", b, `"07:05"`)
	}

	var back Clock
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if back != c {
		t.Fatalf("round trip = %v, want %v", back, c)
	}
}

func TestClock_Scan(t *testing.T) {
	var c Clock
	for _, src := range []any{int64(615), []byte("615"), "615"} {
		if err := c.Scan(src); err != nil {
			t.Fatalf("Scan(%T) error: %v", src, err)
		}
		if c.String() != "10:15" {
			t.Fatalf("Scan(%T) = %s, want 10:15", src, c)
		}
	}
	if err := c.Scan(1.5); !errors.Is(err, ErrInvalidClock) {
		t.Fatalf("Scan(float) err = %v, want %v", err, ErrInvalidClock)
	}
}

func TestClock_On(t *testing.T) {
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	got := MustParseClock("14:30").On(date)
	want := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("On = %v, want %v", got, want)
	}
}

func TestDateHelpers(t *testing.T) {
	d, err := ParseDate("2026-03-02")
	if err != nil {
		t.Fatalf("ParseDate error: %v", err)
	}
	if d.Weekday() != time.Monday {
		t.Fatalf("weekday = %v, want Monday", d.Weekday())
	}
	if FormatDate(d) != "2026-03-02" {
		t.Fatalf("FormatDate = %q", FormatDate(d))
	}
	if !SameDate(d, time.Date(2026, 3, 2, 23, 59, 0, 0, time.UTC)) {
		t.Fatalf("SameDate should ignore time of day")
	}
	if _, err := ParseDate("03/02/2026"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("err = %v, want %v", err, ErrInvalidDate)
	}
}
