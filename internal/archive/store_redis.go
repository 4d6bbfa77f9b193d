package archive

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/netchess/internal/record"
	"github.com/park285/netchess/pkg/protocol"
)

const defaultSaveTTL = 30 * 24 * time.Hour

// RedisStore keeps each record as a JSON string with a TTL plus a sorted-set
// index scored by save time.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultSaveTTL
	}
	return &RedisStore{rdb: rdb, prefix: "netchess:", ttl: ttl}
}

// NewRedisStoreFromURL dials REDIS_URL and verifies the connection.
func NewRedisStoreFromURL(ctx context.Context, raw string, ttl time.Duration) (*RedisStore, error) {
	opts, err := ParseRedisURL(raw)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return NewRedisStore(rdb, ttl), nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }

func (s *RedisStore) keySave(name string) string { return s.prefix + "save:" + name }
func (s *RedisStore) keyIndex() string { return s.prefix + "saves" }

func (s *RedisStore) Save(ctx context.Context, rec protocol.GameRecord) (bool, error) {
	name := record.SanitizeName(rec.Name)
	if name == "" {
		return false, ErrBadName
	}
	rec.Name = name
	if rec.SavedAt.IsZero() {
		rec.SavedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.keySave(name), raw, s.ttl)
	pipe.ZAdd(ctx, s.keyIndex(), redis.Z{Score: float64(rec.SavedAt.UnixMilli()), Member: name})
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisStore) Load(ctx context.Context, name string) (protocol.GameRecord, error) {
	key := record.SanitizeName(name)
	if key == "" {
		return protocol.GameRecord{}, ErrBadName
	}
	raw, err := s.rdb.Get(ctx, s.keySave(key)).Bytes()
	if err == redis.Nil {
		return protocol.GameRecord{}, ErrNotFound
	}
	if err != nil {
		return protocol.GameRecord{}, err
	}
	var rec protocol.GameRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return protocol.GameRecord{}, err
	}
	return rec, nil
}

// List returns newest first. Index entries whose record expired are pruned.
func (s *RedisStore) List(ctx context.Context) ([]protocol.SaveSummary, error) {
	names, err := s.rdb.ZRevRange(ctx, s.keyIndex(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return []protocol.SaveSummary{}, nil
	}
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = s.keySave(n)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]protocol.SaveSummary, 0, len(vals))
	var stale []any
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, names[i])
			continue
		}
		var rec protocol.GameRecord
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			continue
		}
		out = append(out, record.Summary(rec))
	}
	if len(stale) > 0 {
		_ = s.rdb.ZRem(ctx, s.keyIndex(), stale...).Err()
	}
	return out, nil
}
