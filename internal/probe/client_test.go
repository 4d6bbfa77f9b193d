package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/netchess/internal/archive"
	"github.com/park285/netchess/internal/record"
	"github.com/park285/netchess/internal/relay"
)

func TestBaseURL(t *testing.T) {
	cases := map[string]string{
		"ws://localhost:8080/ws":    "http://localhost:8080",
		"wss://chess.example/ws/x": "https://chess.example",
		"http://h:1/":               "http://h:1",
		" http://h:1 ":              "http://h:1",
	}
	for in, want := range cases {
		if got := BaseURL(in); got != want {
			t.Fatalf("BaseURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAgainstRelay(t *testing.T) {
	store := archive.NewMemoryStore()
	rec, err := record.Build("opening", "a", "b", []string{"e2e4", "e7e5"}, "", time.Now())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := store.Save(context.Background(), rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	srv := relay.NewServer(relay.Options{Saves: store})
	hs := httptest.NewServer(srv.Handler("/ws"))
	defer hs.Close()

	c := NewClient(hs.URL + "/ws")
	ctx := context.Background()
	h, err := c.Health(ctx)
	if err != nil || h.Status != "ok" {
		t.Fatalf("health = %+v err=%v", h, err)
	}
	players, err := c.Players(ctx)
	if err != nil || len(players) != 0 {
		t.Fatalf("players = %+v err=%v", players, err)
	}
	saves, err := c.Saves(ctx)
	if err != nil || len(saves) != 1 || saves[0].Name != "opening" || saves[0].Plies != 2 {
		t.Fatalf("saves = %+v err=%v", saves, err)
	}
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok","sessions":2}`))
	}))
	defer hs.Close()

	h, err := NewClient(hs.URL, WithRetry(3)).Health(context.Background())
	if err != nil || h.Sessions != 2 {
		t.Fatalf("health = %+v err=%v", h, err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer hs.Close()

	if _, err := NewClient(hs.URL).Health(context.Background()); err == nil {
		t.Fatalf("404 treated as success")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d", calls.Load())
	}
}
