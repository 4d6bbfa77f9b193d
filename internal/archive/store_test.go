package archive

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/netchess/pkg/protocol"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, ttl), mr
}

func sampleRecord(name string, at time.Time) protocol.GameRecord {
	return protocol.GameRecord{Name: name, White: "alice", Black: "bob", Moves: []string{"e2e4", "e7e5"}, SavedAt: at}
}

func exerciseStore(t *testing.T, s SaveStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ok, err := s.Save(ctx, sampleRecord("First Game", base))
	if err != nil || !ok {
		t.Fatalf("save: %v %v", ok, err)
	}
	if _, err := s.Save(ctx, sampleRecord("second", base.Add(time.Minute))); err != nil {
		t.Fatalf("save: %v", err)
	}

	rec, err := s.Load(ctx, "first game")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec.Name != "first_game" || len(rec.Moves) != 2 || rec.White != "alice" {
		t.Fatalf("loaded %+v", rec)
	}
	if _, err := s.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing err = %v", err)
	}
	if ok, err := s.Save(ctx, sampleRecord("***", base)); ok || !errors.Is(err, ErrBadName) {
		t.Fatalf("bad name save = %v %v", ok, err)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Name != "second" || list[1].Plies != 2 {
		t.Fatalf("list = %+v", list)
	}
}

func TestMemoryStore(t *testing.T) { exerciseStore(t, NewMemoryStore()) }

func TestRedisStore(t *testing.T) {
	s, _ := newTestRedisStore(t, time.Hour)
	exerciseStore(t, s)
}

func TestRedisStorePrunesExpired(t *testing.T) {
	s, mr := newTestRedisStore(t, time.Minute)
	ctx := context.Background()
	if _, err := s.Save(ctx, sampleRecord("old", time.Now())); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := s.Load(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired load err = %v", err)
	}
	list, err := s.List(ctx)
	if err != nil || len(list) != 0 {
		t.Fatalf("list = %+v %v", list, err)
	}
	if n, _ := s.rdb.ZCard(ctx, s.keyIndex()).Result(); n != 0 {
		t.Fatalf("index not pruned: %d", n)
	}
}

func TestParseRedisURL(t *testing.T) {
	opts, err := ParseRedisURL("redis://:secret@localhost:6380/2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("opts = %+v", opts)
	}
	if _, err := ParseRedisURL("http://localhost"); err == nil {
		t.Fatalf("http scheme accepted")
	}
}

func TestResultRow(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	row, err := resultRow(GameResult{
		GameID:      "g-1",
		WhiteName:   "alice",
		BlackName:   "bob",
		Termination: "checkmate",
		Moves:       []string{"f2f3", "e7e5", "g2g4", "d8h4"},
		StartedAt:   start,
		EndedAt:     start.Add(90 * time.Second),
	})
	if err != nil {
		t.Fatalf("row: %v", err)
	}
	if row.g.Result != "black" || row.duration != 90000 {
		t.Fatalf("result=%q duration=%d", row.g.Result, row.duration)
	}
	if !strings.Contains(row.pgn, "[Termination \"checkmate\"]") || !strings.HasSuffix(row.pgn, "0-1") {
		t.Fatalf("pgn = %s", row.pgn)
	}

	// 서버는 수를 검증하지 않으므로 잘못된 기보도 저장은 된다.
	row, err = resultRow(GameResult{GameID: "g-2", Moves: []string{"zz"}, Result: "draw"})
	if err != nil {
		t.Fatalf("row: %v", err)
	}
	if row.sanJSON != "[]" || !strings.HasSuffix(row.pgn, "1/2-1/2") {
		t.Fatalf("fallback row = %+v", row)
	}
	if _, err := resultRow(GameResult{}); err == nil {
		t.Fatalf("missing id accepted")
	}
}
