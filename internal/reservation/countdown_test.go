package reservation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeSource struct {
	mu        sync.Mutex
	remaining map[uuid.UUID]int
	calls     map[uuid.UUID]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{remaining: map[uuid.UUID]int{}, calls: map[uuid.UUID]int{}}
}

func (s *fakeSource) set(id uuid.UUID, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remaining[id] = n
}

func (s *fakeSource) callCount(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

// RemainingSeconds counts down by one per read.
func (s *fakeSource) RemainingSeconds(ctx context.Context, id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[id]++
	n := s.remaining[id]
	if n > 0 {
		s.remaining[id] = n - 1
	}
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{in: 0, want: "00:00"},
		{in: 9, want: "00:09"},
		{in: 60, want: "01:00"},
		{in: 299, want: "04:59"},
		{in: 300, want: "05:00"},
		{in: -3, want: "00:00"},
		{in: 6000, want: "100:00"},
	}
	for _, tt := range tests {
		if got := FormatRemaining(tt.in); got != tt.want {
			t.Fatalf("FormatRemaining(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCountdown_RunsToExpiryAndStops(t *testing.T) {
	src := newFakeSource()
	id := uuid.New()
	src.set(id, 3)

	c := NewCountdown(src, 2*time.Millisecond)
	defer c.Stop()

	c.Watch(id)
	if s := c.Snapshot(); s.RemainingSeconds != 3 || s.Expired || s.Display != "00:03" {
		t.Fatalf("initial snapshot = %+v", s)
	}

	waitFor(t, "expiry", func() bool { return c.Snapshot().Expired })
	waitFor(t, "ticker exit", func() bool { return !c.Running() })

	s := c.Snapshot()
	if s.RemainingSeconds != 0 || s.Display != "00:00" || s.ReservationID != id {
		t.Fatalf("final snapshot = %+v", s)
	}

	calls := src.callCount(id)
	time.Sleep(20 * time.Millisecond)
	if got := src.callCount(id); got != calls {
		t.Fatalf("source polled after expiry: %d -> %d", calls, got)
	}
}

func TestCountdown_ExpiredFlagIsOneWay(t *testing.T) {
	src := newFakeSource()
	id := uuid.New()
	src.set(id, 0)

	c := NewCountdown(src, time.Millisecond)
	defer c.Stop()

	c.Watch(id)
	if !c.Snapshot().Expired {
		t.Fatalf("expected expired snapshot for an elapsed hold")
	}
	if c.Running() {
		t.Fatalf("ticker started for an expired hold")
	}

	// A later read of a positive value cannot revive the flag.
	src.set(id, 5)
	if s := c.read(context.Background(), id, true); !s.Expired {
		t.Fatalf("expired flag reset")
	}
}

func TestCountdown_SwitchingIDStopsPreviousWork(t *testing.T) {
	src := newFakeSource()
	first, second := uuid.New(), uuid.New()
	src.set(first, 1_000_000)
	src.set(second, 1_000_000)

	c := NewCountdown(src, time.Millisecond)
	defer c.Stop()

	c.Watch(first)
	waitFor(t, "first polled", func() bool { return src.callCount(first) > 2 })

	c.Watch(second)
	waitFor(t, "second polled", func() bool { return src.callCount(second) > 2 })

	// At most one in-flight tick may land after the switch.
	before := src.callCount(first)
	time.Sleep(20 * time.Millisecond)
	if got := src.callCount(first); got > before+1 {
		t.Fatalf("first id still polled after switch: %d -> %d", before, got)
	}
	if c.Snapshot().ReservationID != second {
		t.Fatalf("snapshot id = %s, want %s", c.Snapshot().ReservationID, second)
	}
}

func TestCountdown_ClearAndStop(t *testing.T) {
	src := newFakeSource()
	id := uuid.New()
	src.set(id, 1_000_000)

	c := NewCountdown(src, time.Millisecond)
	c.Watch(id)
	waitFor(t, "polling", func() bool { return src.callCount(id) > 1 })

	c.Watch(uuid.Nil)
	waitFor(t, "ticker exit", func() bool { return !c.Running() })
	if s := c.Snapshot(); s.ReservationID != uuid.Nil || s.RemainingSeconds != 0 {
		t.Fatalf("cleared snapshot = %+v", s)
	}

	c.Watch(id)
	c.Stop()
	if c.Running() {
		t.Fatalf("running after Stop")
	}
	calls := src.callCount(id)
	time.Sleep(10 * time.Millisecond)
	if got := src.callCount(id); got != calls {
		t.Fatalf("polled after Stop: %d -> %d", calls, got)
	}

	c.Watch(id)
	if c.Running() {
		t.Fatalf("Watch restarted a stopped countdown")
	}
}

func TestCountdown_UpdatesKeepsLatest(t *testing.T) {
	src := newFakeSource()
	id := uuid.New()
	src.set(id, 2)

	c := NewCountdown(src, time.Millisecond)
	defer c.Stop()

	c.Watch(id)
	waitFor(t, "expiry", func() bool { return !c.Running() && c.Snapshot().Expired })

	select {
	case s := <-c.Updates():
		if !s.Expired {
			t.Fatalf("buffered update = %+v, want the expired snapshot", s)
		}
	default:
		t.Fatalf("no update buffered")
	}
}

func TestCountdown_WithManager(t *testing.T) {
	clk := newFakeClock()
	m, _ := newTestManager(clk)
	r := mustReserve(t, m, input("client-a", "14:00", "14:30"))

	c := NewCountdown(m, time.Millisecond)
	defer c.Stop()

	c.Watch(r.ID)
	if s := c.Snapshot(); s.RemainingSeconds != 300 || s.Display != "05:00" {
		t.Fatalf("snapshot = %+v", s)
	}

	clk.Advance(DefaultHoldWindow)
	waitFor(t, "expiry", func() bool { return c.Snapshot().Expired })
}

// blockingSource answers the first read at once and parks later reads until
// release is closed.
type blockingSource struct {
	mu      sync.Mutex
	reads   int
	parked  chan struct{}
	release chan struct{}
}

func (s *blockingSource) RemainingSeconds(ctx context.Context, id uuid.UUID) int {
	s.mu.Lock()
	s.reads++
	n := s.reads
	s.mu.Unlock()
	if n == 1 {
		return 120
	}
	if n == 2 {
		close(s.parked)
	}
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return 119
}

func TestCountdown_SlowSourceDoesNotBlockCallers(t *testing.T) {
	src := &blockingSource{parked: make(chan struct{}), release: make(chan struct{})}
	id := uuid.New()

	c := NewCountdown(src, time.Millisecond)
	c.Watch(id)

	select {
	case <-src.parked:
	case <-time.After(2 * time.Second):
		t.Fatalf("tick never reached the source")
	}

	got := make(chan Snapshot, 1)
	go func() { got <- c.Snapshot() }()
	select {
	case s := <-got:
		if s.RemainingSeconds != 120 || s.ReservationID != id {
			t.Fatalf("snapshot = %+v, want 120s for %s", s, id)
		}
	case <-time.After(time.Second):
		t.Fatalf("Snapshot blocked behind a source read")
	}

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatalf("Stop blocked behind a source read")
	}
	close(src.release)
}
