package record

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/park285/netchess/internal/rules"
)

func TestBuildAndReplayFoolsMate(t *testing.T) {
	moves := []string{"f2f3", "e7e5", "g2g4", "d8h4"}
	rec, err := Build("Fools Mate!", "w", "b", moves, "", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if rec.Name != "fools_mate" {
		t.Fatalf("name = %q", rec.Name)
	}
	if len(rec.SAN) != 4 || rec.SAN[0] != "f3" || !strings.HasPrefix(rec.SAN[3], "Qh4") {
		t.Fatalf("san = %v", rec.SAN)
	}
	if rec.Result != ResultBlack {
		t.Fatalf("result = %q", rec.Result)
	}

	b, err := Replay(rec)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !rules.IsCheckmate(b, rules.White) {
		t.Fatalf("replayed board should be mate")
	}
	if got := strings.Fields(b.FEN())[0]; got != strings.Fields(rec.FEN)[0] {
		t.Fatalf("placement %s vs %s", got, rec.FEN)
	}

	pgn := PGN(rec, "checkmate")
	if !strings.Contains(pgn, "1. f3 e5 2. g4 Qh4") || !strings.HasSuffix(pgn, "0-1") {
		t.Fatalf("pgn = %s", pgn)
	}
	if !strings.Contains(pgn, "[Date \"2026.01.02\"]") {
		t.Fatalf("pgn date missing: %s", pgn)
	}
}

func TestBuildRejectsIllegal(t *testing.T) {
	if _, err := Build("x", "w", "b", []string{"e2e5"}, "", time.Now()); !errors.Is(err, ErrBadMove) {
		t.Fatalf("err = %v", err)
	}
	if _, err := Build("!!!", "w", "b", nil, "", time.Now()); !errors.Is(err, ErrNoName) {
		t.Fatalf("err = %v", err)
	}
}

func TestReplayCastlingAndPromotionMoves(t *testing.T) {
	moves := []string{"e2e4", "e7e5", "g1f3", "b8c6", "f1c4", "g8f6", "e1g1"}
	rec, err := Build("italian", "w", "b", moves, "", time.Now())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if rec.SAN[6] != "O-O" {
		t.Fatalf("castling san = %q", rec.SAN[6])
	}
	b, err := Replay(rec)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if k, _ := b.At(rules.Sq(6, 0)); k.Kind != rules.King {
		t.Fatalf("king not on g1")
	}

	if _, _, _, err := ParseUCI("e7e8k"); err == nil {
		t.Fatalf("king promotion accepted")
	}
	_, _, promo, err := ParseUCI("a7a8N")
	if err != nil || promo != rules.Knight {
		t.Fatalf("promo = %v %v", promo, err)
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"  My Game ": "my_game",
		"../etc":     "etc",
		"A-b_c9":     "a-b_c9",
	}
	for in, want := range cases {
		if got := SanitizeName(in); got != want {
			t.Fatalf("SanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
	if got := SanitizeName(strings.Repeat("x", 100)); len(got) != 64 {
		t.Fatalf("len = %d", len(got))
	}
}

func TestBuildNamesOpening(t *testing.T) {
	rec, err := Build("kk", "w", "b", []string{"e2e4", "e7e5", "g1f3"}, "", time.Now())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.HasPrefix(rec.ECO, "C") || rec.Opening == "" {
		t.Fatalf("opening = %q %q", rec.ECO, rec.Opening)
	}
	if pgn := PGN(rec, ""); !strings.Contains(pgn, "[ECO \""+rec.ECO+"\"]") {
		t.Fatalf("pgn lacks ECO: %s", pgn)
	}
}
