// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const DefaultCompactionSchedule = "@every 1m"

// Compactor drops expired reservation holds. *reservation.Manager satisfies it.
type Compactor interface {
	Compact(ctx context.Context) (int, error)
}

type Scheduler struct {
	c   *cron.Cron
	log *slog.Logger
}

// NewScheduler registers reservation compaction on spec. Runs never overlap:
// a tick that fires while the previous run is still going is skipped.
func NewScheduler(spec string, compactor Compactor, timeout time.Duration, log *slog.Logger) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "jobs"))
	if spec == "" {
		spec = DefaultCompactionSchedule
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := cron.New(cron.WithChain(cron.Recover(cronLogger{log}), cron.SkipIfStillRunning(cronLogger{log})))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		n, err := compactor.Compact(ctx)
		if err != nil {
			log.Error("reservation compaction failed", slog.Any("err", err))
			return
		}
		if n > 0 {
			log.Info("reservation compaction", slog.Int("removed", n))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("compaction schedule %q: %w", spec, err)
	}
	return &Scheduler{c: c, log: log}, nil
}

func (s *Scheduler) Start() {
	s.c.Start()
	s.log.Info("job scheduler started", slog.Int("jobs", len(s.c.Entries())))
}

// Stop waits for a running job to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append([]any{slog.Any("err", err)}, keysAndValues...)...)
}
