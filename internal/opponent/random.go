package opponent

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/park285/netchess/internal/rules"
)

var pieceValue = map[rules.Kind]int{
	rules.Pawn: 1, rules.Knight: 3, rules.Bishop: 3, rules.Rook: 5, rules.Queen: 9,
}

// Greedy plays a mate when it sees one, otherwise the most valuable capture,
// otherwise a random legal move.
type Greedy struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewGreedy(seed int64) *Greedy {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Greedy{rng: rand.New(rand.NewSource(seed))}
}

func (g *Greedy) NextMove(ctx context.Context, b *rules.Board, side rules.Team) (rules.Move, error) {
	if err := ctx.Err(); err != nil {
		return rules.Move{}, err
	}
	if side != b.Turn {
		return rules.Move{}, ErrNotToMove
	}
	moves := rules.LegalMoves(b, side)
	if len(moves) == 0 {
		return rules.Move{}, ErrNoMove
	}

	best := -1
	var picks []rules.Move
	for _, m := range moves {
		score := g.score(b, m)
		switch {
		case score > best:
			best = score
			picks = append(picks[:0], m)
		case score == best:
			picks = append(picks, m)
		}
	}
	g.mu.Lock()
	i := g.rng.Intn(len(picks))
	g.mu.Unlock()
	return picks[i], nil
}

func (g *Greedy) score(b *rules.Board, m rules.Move) int {
	next := b.Clone()
	if err := next.Apply(m); err != nil {
		return -1
	}
	switch rules.Evaluate(next, next.Turn) {
	case rules.StatusCheckmate:
		return 1000
	case rules.StatusStalemate:
		return 0
	}
	score := 1
	if m.IsCapture() {
		score += 10 * pieceValue[m.Captured.Kind]
	}
	if m.IsPromotion() {
		score += 10 * pieceValue[m.Promotion]
	}
	return score
}

func (g *Greedy) Close() error { return nil }
