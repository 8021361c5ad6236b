package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"bookly/backend/internal/domain"
)

// ReservationStore keeps holds in Redis so every instance sees the same
// owner for a slot. Each provider/date is one hash (field = hold id) and
// insertion is a single Lua script, which makes the overlap check and the
// write one atomic step. Expired entries are pruned by the script and by key
// TTLs, so DeleteExpired has nothing to do.
type ReservationStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// insertHoldScript:
// KEYS[1] day hash, KEYS[2] id index key.
// ARGV[1] now ms, ARGV[2] record json, ARGV[3] hold id, ARGV[4] client id,
// ARGV[5] start minute, ARGV[6] end minute, ARGV[7] expires ms.
// Returns the blocking record or false.
var insertHoldScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local client = ARGV[4]
local start_min = tonumber(ARGV[5])
local end_min = tonumber(ARGV[6])
local expires = tonumber(ARGV[7])

local entries = redis.call("HGETALL", KEYS[1])
local replace = {}
local conflict = false
local conflict_start = nil

for i = 1, #entries, 2 do
  local id = entries[i]
  local rec = cjson.decode(entries[i + 1])
  if tonumber(rec.expires_ms) <= now then
    redis.call("HDEL", KEYS[1], id)
  elseif tonumber(rec.start_min) < end_min and start_min < tonumber(rec.end_min) then
    if rec.client_id == client then
      table.insert(replace, id)
    elseif conflict_start == nil or tonumber(rec.start_min) < conflict_start then
      conflict = entries[i + 1]
      conflict_start = tonumber(rec.start_min)
    end
  end
end

if conflict then
  return conflict
end

for _, id in ipairs(replace) do
  redis.call("HDEL", KEYS[1], id)
end

redis.call("HSET", KEYS[1], ARGV[3], ARGV[2])
redis.call("SET", KEYS[2], KEYS[1], "PXAT", expires)

local want = expires - now
if redis.call("PTTL", KEYS[1]) < want then
  redis.call("PEXPIRE", KEYS[1], want)
end
return false
`)

type holdRecord struct {
	ClientID    string                 `json:"client_id"`
	StartMin    int                    `json:"start_min"`
	EndMin      int                    `json:"end_min"`
	ExpiresMs   int64                  `json:"expires_ms"`
	Reservation domain.SlotReservation `json:"reservation"`
}

func NewReservationStore(rdb redis.UniversalClient, prefix string) *ReservationStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "bookly"
	}
	return &ReservationStore{rdb: rdb, prefix: prefix}
}

func (s *ReservationStore) dayKey(providerID string, date time.Time) string {
	return s.prefix + ":resv:day:" + providerID + ":" + domain.FormatDate(date)
}

func (s *ReservationStore) idKey(id uuid.UUID) string {
	return s.prefix + ":resv:id:" + id.String()
}

func encodeHold(r domain.SlotReservation) ([]byte, error) {
	return json.Marshal(holdRecord{
		ClientID:    r.ClientID,
		StartMin:    r.StartTime.Minutes(),
		EndMin:      r.EndTime.Minutes(),
		ExpiresMs:   r.ExpiresAt.UnixMilli(),
		Reservation: r,
	})
}

func decodeHold(raw string) (domain.SlotReservation, error) {
	var rec holdRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return domain.SlotReservation{}, fmt.Errorf("decode hold: %w", err)
	}
	return rec.Reservation, nil
}

func (s *ReservationStore) Insert(ctx context.Context, r domain.SlotReservation, now time.Time) (*domain.SlotReservation, error) {
	body, err := encodeHold(r)
	if err != nil {
		return nil, err
	}

	keys := []string{s.dayKey(r.ProviderID, r.Date), s.idKey(r.ID)}
	res, err := insertHoldScript.Run(ctx, s.rdb, keys,
		now.UnixMilli(),
		string(body),
		r.ID.String(),
		r.ClientID,
		r.StartTime.Minutes(),
		r.EndTime.Minutes(),
		r.ExpiresAt.UnixMilli(),
	).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	raw, ok := res.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected redis script result type %T", res)
	}
	conflict, err := decodeHold(raw)
	if err != nil {
		return nil, err
	}
	return &conflict, nil
}

func (s *ReservationStore) Get(ctx context.Context, id uuid.UUID) (domain.SlotReservation, bool, error) {
	day, err := s.rdb.Get(ctx, s.idKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.SlotReservation{}, false, nil
	}
	if err != nil {
		return domain.SlotReservation{}, false, err
	}

	raw, err := s.rdb.HGet(ctx, day, id.String()).Result()
	if errors.Is(err, redis.Nil) {
		return domain.SlotReservation{}, false, nil
	}
	if err != nil {
		return domain.SlotReservation{}, false, err
	}

	r, err := decodeHold(raw)
	if err != nil {
		return domain.SlotReservation{}, false, err
	}
	return r, true, nil
}

func (s *ReservationStore) Delete(ctx context.Context, id uuid.UUID) error {
	idKey := s.idKey(id)
	day, err := s.rdb.Get(ctx, idKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HDel(ctx, day, id.String())
		p.Del(ctx, idKey)
		return nil
	})
	return err
}

func (s *ReservationStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}
