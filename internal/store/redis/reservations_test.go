package redis

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"bookly/backend/internal/domain"
	"bookly/backend/internal/reservation"
)

var _ reservation.Store = (*ReservationStore)(nil)

func testHold(client, start, end string, now time.Time) domain.SlotReservation {
	id, _ := uuid.NewV7()
	return domain.SlotReservation{
		ID:              id,
		ProviderID:      "prov-1",
		ShopID:          "shop-1",
		Date:            time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		StartTime:       domain.MustParseClock(start),
		EndTime:         domain.MustParseClock(end),
		DurationMinutes: 30,
		ClientID:        client,
		ServiceID:       "svc-cut",
		CreatedAt:       now,
		ExpiresAt:       now.Add(5 * time.Minute),
	}
}

func TestHoldRecordRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	h := testHold("client-a", "14:00", "14:30", now)

	b, err := encodeHold(h)
	if err != nil {
		t.Fatalf("encodeHold error: %v", err)
	}
	for _, want := range []string{`"start_min":840`, `"end_min":870`, `"client_id":"client-a"`} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("record %s missing %s", b, want)
		}
	}

	got, err := decodeHold(string(b))
	if err != nil {
		t.Fatalf("decodeHold error: %v", err)
	}
	if got.ID != h.ID || got.StartTime != h.StartTime || !got.ExpiresAt.Equal(h.ExpiresAt) {
		t.Fatalf("decoded = %+v, want %+v", got, h)
	}
}

func TestKeys(t *testing.T) {
	s := NewReservationStore(nil, " ")
	got := s.dayKey("prov-1", time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC))
	if got != "bookly:resv:day:prov-1:2026-03-02" {
		t.Fatalf("dayKey = %q", got)
	}
	id := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	if got := s.idKey(id); got != "bookly:resv:id:"+id.String() {
		t.Fatalf("idKey = %q", got)
	}
}

func TestRedisIntegration_ReservationStore(t *testing.T) {
	addr := strings.TrimSpace(os.Getenv("BOOKLY_TEST_REDIS_ADDR"))
	if addr == "" {
		t.Skip("BOOKLY_TEST_REDIS_ADDR not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rdb, err := Open(ctx, Config{Addr: addr})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })

	s := NewReservationStore(rdb, "bookly_test_"+uuid.NewString())
	now := time.Now().UTC()

	a := testHold("client-a", "14:00", "14:30", now)
	if c, err := s.Insert(ctx, a, now); err != nil || c != nil {
		t.Fatalf("Insert A = %v, %v", c, err)
	}

	c, err := s.Insert(ctx, testHold("client-b", "14:15", "14:45", now), now)
	if err != nil || c == nil || c.ID != a.ID {
		t.Fatalf("Insert B conflict = %v, %v", c, err)
	}

	// Same client replaces its own overlapping hold.
	a2 := testHold("client-a", "14:10", "14:40", now)
	if c, err := s.Insert(ctx, a2, now); err != nil || c != nil {
		t.Fatalf("Insert A2 = %v, %v", c, err)
	}
	if _, ok, _ := s.Get(ctx, a.ID); ok {
		t.Fatalf("replaced hold still readable")
	}

	got, ok, err := s.Get(ctx, a2.ID)
	if err != nil || !ok || got.ClientID != "client-a" {
		t.Fatalf("Get = %+v, %v, %v", got, ok, err)
	}

	if err := s.Delete(ctx, a2.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if err := s.Delete(ctx, a2.ID); err != nil {
		t.Fatalf("second Delete error: %v", err)
	}
	if c, err := s.Insert(ctx, testHold("client-b", "14:15", "14:45", now), now); err != nil || c != nil {
		t.Fatalf("Insert B after release = %v, %v", c, err)
	}

	// Past expiry a competing request wins.
	later := now.Add(6 * time.Minute)
	if c, err := s.Insert(ctx, testHold("client-c", "14:15", "14:45", later), later); err != nil || c != nil {
		t.Fatalf("Insert C after expiry = %v, %v", c, err)
	}
}

func TestRedisIntegration_SingleHolderUnderContention(t *testing.T) {
	addr := strings.TrimSpace(os.Getenv("BOOKLY_TEST_REDIS_ADDR"))
	if addr == "" {
		t.Skip("BOOKLY_TEST_REDIS_ADDR not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rdb, err := Open(ctx, Config{Addr: addr})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })

	m := reservation.NewManager(NewReservationStore(rdb, "bookly_test_"+uuid.NewString()), reservation.Options{})

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := m.Reserve(ctx, reservation.ReserveInput{
				ProviderID: "prov-1",
				ClientID:   uuid.NewString(),
				Date:       time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
				StartTime:  domain.MustParseClock("14:00"),
				EndTime:    domain.MustParseClock("14:30"),
			})
			if err != nil {
				t.Errorf("Reserve error: %v", err)
				return
			}
			if res.OK() {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if won != 1 {
		t.Fatalf("holders = %d, want 1", won)
	}
}
