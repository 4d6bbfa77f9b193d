package relay

import (
	"sync"
	"time"

	"github.com/park285/netchess/pkg/protocol"
)

// game is the server's view of one pairing: an unvalidated move log and the
// two elapsed-time counters.
type game struct {
	mu sync.Mutex

	id        string
	whiteID   string
	blackID   string
	whiteName string
	blackName string
	startedAt time.Time

	moves       []string
	turn        string
	whiteMs     int64
	blackMs     int64
	turnStarted time.Time
	finished    bool
}

func newGame(id, whiteID, whiteName, blackID, blackName string, now time.Time) *game {
	return &game{
		id:          id,
		whiteID:     whiteID,
		blackID:     blackID,
		whiteName:   whiteName,
		blackName:   blackName,
		startedAt:   now,
		turn:        protocol.TeamWhite,
		turnStarted: now,
	}
}

func (g *game) clockLocked(now time.Time) protocol.Clock {
	return protocol.Clock{ServerTime: now.UnixMilli(), Turn: g.turn, WhiteMs: g.whiteMs, BlackMs: g.blackMs}
}

func (g *game) clock(now time.Time) protocol.Clock {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.clockLocked(now)
}

// recordMove charges the side to move and hands the turn over.
func (g *game) recordMove(uci string, now time.Time) protocol.Clock {
	g.mu.Lock()
	defer g.mu.Unlock()
	spent := now.Sub(g.turnStarted).Milliseconds()
	if spent < 0 {
		spent = 0
	}
	if g.turn == protocol.TeamWhite {
		g.whiteMs += spent
		g.turn = protocol.TeamBlack
	} else {
		g.blackMs += spent
		g.turn = protocol.TeamWhite
	}
	g.turnStarted = now
	g.moves = append(g.moves, uci)
	return g.clockLocked(now)
}

// replace swaps in a loaded move list.
func (g *game) replace(moves []string, now time.Time) protocol.Clock {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.moves = append([]string{}, moves...)
	g.turn = protocol.TeamWhite
	if len(moves)%2 == 1 {
		g.turn = protocol.TeamBlack
	}
	g.turnStarted = now
	g.finished = false
	return g.clockLocked(now)
}

func (g *game) snapshot() (moves []string, white, black string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string{}, g.moves...), g.whiteName, g.blackName
}

// finish marks the game over once. It reports false if already finished.
func (g *game) finish() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.finished {
		return false
	}
	g.finished = true
	return true
}

func (g *game) teamOf(id string) string {
	switch id {
	case g.whiteID:
		return protocol.TeamWhite
	case g.blackID:
		return protocol.TeamBlack
	}
	return ""
}
