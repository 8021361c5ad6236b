package reservation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultCountdownTick = time.Second

// RemainingSource is what a Countdown polls. *Manager satisfies it.
type RemainingSource interface {
	RemainingSeconds(ctx context.Context, id uuid.UUID) int
}

type Snapshot struct {
	ReservationID    uuid.UUID `json:"reservation_id"`
	RemainingSeconds int       `json:"remaining_seconds"`
	Expired          bool      `json:"expired"`
	Display          string    `json:"display"`
}

// FormatRemaining renders seconds as MM:SS. Minutes are not capped at 59.
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// Countdown polls a RemainingSource once per tick for the watched hold. It
// never decides expiry itself: every snapshot is re-read from the source.
// Recurring work stops when the watched id changes or clears, on Stop, and
// after the expired snapshot has been published.
type Countdown struct {
	source RemainingSource
	tick   time.Duration

	mu      sync.Mutex
	snap    Snapshot
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool

	updates chan Snapshot
}

func NewCountdown(source RemainingSource, tick time.Duration) *Countdown {
	if tick <= 0 {
		tick = DefaultCountdownTick
	}
	return &Countdown{
		source:  source,
		tick:    tick,
		snap:    Snapshot{Display: FormatRemaining(0)},
		updates: make(chan Snapshot, 1),
	}
}

// Watch starts observing id, cancelling any previous observation.
// uuid.Nil clears the countdown. The source is read without holding the
// countdown's lock; a Watch superseded during that read publishes nothing.
func (c *Countdown) Watch(id uuid.UUID) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopLocked()

	if id == uuid.Nil {
		c.setLocked(Snapshot{Display: FormatRemaining(0)})
		c.mu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	first := c.read(ctx, id, false)

	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		close(done)
		return
	}
	c.setLocked(first)
	if first.Expired {
		cancel()
		close(done)
		return
	}
	go c.run(ctx, id, done)
}

// Stop ends all recurring work and waits for it to exit. The Countdown
// cannot be reused afterwards.
func (c *Countdown) Stop() {
	c.mu.Lock()
	done := c.done
	c.stopLocked()
	c.stopped = true
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *Countdown) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Updates delivers the latest snapshot. Slow readers only ever miss
// intermediate values.
func (c *Countdown) Updates() <-chan Snapshot {
	return c.updates
}

// Running reports whether a ticker goroutine is active.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *Countdown) run(ctx context.Context, id uuid.UUID, done chan struct{}) {
	defer close(done)

	t := time.NewTicker(c.tick)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		s := c.read(ctx, id, false)

		c.mu.Lock()
		if ctx.Err() != nil {
			c.mu.Unlock()
			return
		}
		c.setLocked(s)
		c.mu.Unlock()

		if s.Expired {
			return
		}
	}
}

func (c *Countdown) read(ctx context.Context, id uuid.UUID, wasExpired bool) Snapshot {
	remaining := c.source.RemainingSeconds(ctx, id)
	if remaining < 0 {
		remaining = 0
	}
	return Snapshot{
		ReservationID:    id,
		RemainingSeconds: remaining,
		Expired:          wasExpired || remaining == 0,
		Display:          FormatRemaining(remaining),
	}
}

func (c *Countdown) setLocked(s Snapshot) {
	c.snap = s
	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- s:
	default:
	}
}

func (c *Countdown) stopLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}
