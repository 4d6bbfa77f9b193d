package match

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/netchess/internal/rules"
	"github.com/park285/netchess/pkg/protocol"
)

// pair returns two matches as a relay would start them.
func pair(t *testing.T, opts ...Option) (*Match, *Match) {
	t.Helper()
	w, err := New(protocol.Start{GameID: "g", Team: protocol.TeamWhite, PlayerName: "alice", OpponentName: "bob"}, opts...)
	if err != nil {
		t.Fatalf("new white: %v", err)
	}
	b, err := New(protocol.Start{GameID: "g", Team: protocol.TeamBlack, PlayerName: "bob", OpponentName: "alice"}, opts...)
	if err != nil {
		t.Fatalf("new black: %v", err)
	}
	return w, b
}

func sq(t *testing.T, s string) rules.Coordinate {
	t.Helper()
	c, err := rules.ParseCoordinate(s)
	if err != nil {
		t.Fatalf("coord %q: %v", s, err)
	}
	return c
}

// play submits on the mover and applies the echo to both sides.
func play(t *testing.T, mover, other *Match, from, to string) Outcome {
	t.Helper()
	p, err := mover.Submit(sq(t, from), sq(t, to), rules.None)
	if err != nil {
		t.Fatalf("submit %s%s: %v", from, to, err)
	}
	own, err := mover.ApplyRelayed(p)
	if err != nil {
		t.Fatalf("echo %s%s: %v", from, to, err)
	}
	theirs, err := other.ApplyRelayed(p)
	if err != nil {
		t.Fatalf("forward %s%s: %v", from, to, err)
	}
	if !own.Own || theirs.Own || own.Status != theirs.Status {
		t.Fatalf("outcomes differ: %+v / %+v", own, theirs)
	}
	return own
}

func TestBothSidesReachSameVerdict(t *testing.T) {
	w, b := pair(t)
	play(t, w, b, "f2", "f3")
	play(t, b, w, "e7", "e5")
	play(t, w, b, "g2", "g4")
	out := play(t, b, w, "d8", "h4")

	if out.Status != rules.StatusCheckmate {
		t.Fatalf("status = %s", out.Status)
	}
	typ, n, ok := out.Notice()
	if !ok || typ != protocol.TypeCheckmate || n.Winner != protocol.TeamBlack || n.Team != protocol.TeamWhite {
		t.Fatalf("notice = %s %+v", typ, n)
	}
	if !w.Over() || !b.Over() {
		t.Fatalf("both sides should be over")
	}
	if w.Board().FEN() != b.Board().FEN() {
		t.Fatalf("boards diverged")
	}
	if _, err := w.Submit(sq(t, "a2"), sq(t, "a3"), rules.None); !errors.Is(err, ErrGameOver) {
		t.Fatalf("submit after mate err = %v", err)
	}
}

func TestSubmitChecks(t *testing.T) {
	w, b := pair(t)
	if _, err := b.Submit(sq(t, "e7"), sq(t, "e5"), rules.None); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("black first err = %v", err)
	}
	if _, err := w.Submit(sq(t, "e2"), sq(t, "e5"), rules.None); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("illegal err = %v", err)
	}
	if _, err := w.Submit(sq(t, "e2"), sq(t, "e4"), rules.None); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !w.Pending() || w.MyTurn() {
		t.Fatalf("pending flag not set")
	}
	if _, err := w.Submit(sq(t, "d2"), sq(t, "d4"), rules.None); !errors.Is(err, ErrMovePending) {
		t.Fatalf("second submit err = %v", err)
	}
	// 에코 전에는 로컬 보드가 바뀌지 않는다.
	if _, ok := w.Board().At(sq(t, "e4")); ok {
		t.Fatalf("board changed before echo")
	}
}

func TestSpecialMovesRoundTripOverWire(t *testing.T) {
	w, b := pair(t)
	for i, mv := range []string{"e2e4", "a7a6", "e4e5", "d7d5"} {
		if i%2 == 0 {
			play(t, w, b, mv[:2], mv[2:])
		} else {
			play(t, b, w, mv[:2], mv[2:])
		}
	}
	p, err := w.Submit(sq(t, "e5"), sq(t, "d6"), rules.None)
	if err != nil {
		t.Fatalf("en passant submit: %v", err)
	}
	if !p.IsEnPassant || p.CapturedPawn != "d5" {
		t.Fatalf("payload = %+v", p)
	}
	if _, err := w.ApplyRelayed(p); err != nil {
		t.Fatalf("echo: %v", err)
	}
	if _, err := b.ApplyRelayed(p); err != nil {
		t.Fatalf("forward: %v", err)
	}
	if _, ok := b.Board().At(sq(t, "d5")); ok {
		t.Fatalf("captured pawn still on d5")
	}

	f, err := DecodeMove(EncodeMove(rules.Move{
		From: sq(t, "e1"), To: sq(t, "g1"), Shape: rules.ShapeCastling,
		RookFrom: sq(t, "h1"), RookTo: sq(t, "f1"),
	}))
	if err != nil || !f.Castling || f.RookFrom != sq(t, "h1") || f.RookTo != sq(t, "f1") {
		t.Fatalf("castling fields = %+v %v", f, err)
	}
	f, err = DecodeMove(protocol.Move{From: "a7", To: "a8", IsPromotion: true, PromotionType: "KNIGHT"})
	if err != nil || f.Promotion != rules.Knight {
		t.Fatalf("promotion fields = %+v %v", f, err)
	}
}

func TestDesyncStopsMatch(t *testing.T) {
	w, b := pair(t)
	play(t, w, b, "e2", "e4")
	// 흑 차례에 존재하지 않는 기물을 움직이는 수를 적용.
	_, err := b.ApplyRelayed(protocol.Move{From: "e4", To: "e6"})
	if !errors.Is(err, ErrStateDesync) {
		t.Fatalf("err = %v", err)
	}
	if !b.Over() {
		t.Fatalf("desynced match should stop")
	}
	if _, err := b.ApplyRelayed(protocol.Move{From: "e7", To: "e5"}); !errors.Is(err, ErrStateDesync) {
		t.Fatalf("follow-up err = %v", err)
	}
	if _, ok := b.Board().Chosen(); ok {
		t.Fatalf("selection not reset")
	}

	_, b2 := pair(t)
	if _, err := b2.ApplyRelayed(protocol.Move{From: "e2", To: "e5"}); !errors.Is(err, ErrStateDesync) {
		t.Fatalf("illegal relayed err = %v", err)
	}
}

func TestPendingTimeoutResetsFlag(t *testing.T) {
	var fired atomic.Int32
	w, _ := pair(t, WithPendingTimeout(20*time.Millisecond), WithPendingExpired(func() { fired.Add(1) }))
	if _, err := w.Submit(sq(t, "e2"), sq(t, "e4"), rules.None); err != nil {
		t.Fatalf("submit: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for w.Pending() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if w.Pending() {
		t.Fatalf("pending flag never cleared")
	}
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if fired.Load() != 1 {
		t.Fatalf("hook fired %d times", fired.Load())
	}
	// 늦게 도착한 에코도 그대로 적용된다.
	if !w.MyTurn() {
		t.Fatalf("turn indicator should be back")
	}
}

func TestSelect(t *testing.T) {
	w, _ := pair(t)
	if moves := w.Select(sq(t, "g1")); len(moves) != 2 {
		t.Fatalf("knight moves = %d", len(moves))
	}
	if c, ok := w.Board().Chosen(); !ok || c != sq(t, "g1") {
		t.Fatalf("selection = %v %v", c, ok)
	}
	if moves := w.Select(sq(t, "e7")); moves != nil {
		t.Fatalf("selected enemy piece")
	}
}

func TestClockAndRecord(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w, b := pair(t, WithClockSource(func() time.Time { return now }))
	w.SyncClock(protocol.Clock{Turn: protocol.TeamWhite, WhiteMs: 1000, BlackMs: 500})
	now = now.Add(2 * time.Second)
	if got := w.Elapsed(rules.White); got != 3*time.Second {
		t.Fatalf("white elapsed = %s", got)
	}
	if got := w.Elapsed(rules.Black); got != 500*time.Millisecond {
		t.Fatalf("black elapsed = %s", got)
	}

	play(t, w, b, "e2", "e4")
	rec, err := b.Record("opening")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.White != "alice" || rec.Black != "bob" || len(rec.Moves) != 1 || rec.SAN[0] != "e4" {
		t.Fatalf("record = %+v", rec)
	}

	_, fresh := pair(t)
	if err := fresh.Load(rec); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !fresh.MyTurn() {
		t.Fatalf("black to move after loading")
	}
}
