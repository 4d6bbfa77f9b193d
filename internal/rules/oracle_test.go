package rules

import (
	"sort"
	"testing"

	"github.com/dylhunn/dragontoothmg"
)

func oraclePerft(b *dragontoothmg.Board, depth int) uint64 {
	moves := b.GenerateLegalMoves()
	if depth == 1 {
		return uint64(len(moves))
	}
	var n uint64
	for _, m := range moves {
		undo := b.Apply(m)
		n += oraclePerft(b, depth-1)
		undo()
	}
	return n
}

// 독립 구현(dragontoothmg)과 노드 수와 수 목록을 대조한다.
func TestAgainstDragontooth(t *testing.T) {
	fens := []string{
		StartFEN,
		"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
		"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
		"r3k2r/8/8/8/8/8/8/R3K2R b KQkq - 0 1",
	}
	for _, fen := range fens {
		ours := mustFEN(t, fen)
		theirs := dragontoothmg.ParseFen(fen)

		var a, b []string
		for _, m := range LegalMoves(ours, ours.Turn) {
			a = append(a, m.UCI())
		}
		for _, m := range theirs.GenerateLegalMoves() {
			b = append(b, m.String())
		}
		sort.Strings(a)
		sort.Strings(b)
		if len(a) != len(b) {
			t.Fatalf("%s: %d moves vs oracle %d\nours=%v\noracle=%v", fen, len(a), len(b), a, b)
		}
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("%s: move %d = %s, oracle %s", fen, i, a[i], b[i])
			}
		}

		if got, want := Perft(ours, 2), oraclePerft(&theirs, 2); got != want {
			t.Fatalf("%s: perft(2) = %d, oracle %d", fen, got, want)
		}
	}
}
