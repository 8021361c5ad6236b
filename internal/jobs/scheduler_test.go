package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeCompactor struct {
	calls atomic.Int32
	err   error
}

func (f *fakeCompactor) Compact(ctx context.Context) (int, error) {
	f.calls.Add(1)
	return 1, f.err
}

func TestNewScheduler_RejectsBadSpec(t *testing.T) {
	if _, err := NewScheduler("every minute please", &fakeCompactor{}, 0, nil); err == nil {
		t.Fatalf("expected error for invalid schedule")
	}
}

func TestScheduler_RunsCompaction(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
	}{
		{name: "success"},
		{name: "compaction error keeps running", err: errors.New("store down")},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeCompactor{err: tc.err}
			s, err := NewScheduler("@every 1s", f, time.Second, nil)
			if err != nil {
				t.Fatalf("NewScheduler error: %v", err)
			}
			s.Start()

			deadline := time.Now().Add(5 * time.Second)
			for f.calls.Load() < 2 && time.Now().Before(deadline) {
				time.Sleep(50 * time.Millisecond)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Stop(ctx); err != nil {
				t.Fatalf("Stop error: %v", err)
			}
			if got := f.calls.Load(); got < 2 {
				t.Fatalf("compaction calls = %d, want >= 2", got)
			}
		})
	}
}
