// Package match keeps one peer's view of a networked game.
package match

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/park285/netchess/internal/record"
	"github.com/park285/netchess/internal/rules"
	"github.com/park285/netchess/pkg/protocol"
)

var (
	ErrIllegalMove = errors.New("illegal move")
	ErrNotYourTurn = errors.New("not your turn")
	ErrMovePending = errors.New("previous move not yet echoed")
	ErrGameOver    = errors.New("game is over")
	ErrStateDesync = errors.New("relayed move does not fit local board")
)

const DefaultPendingTimeout = 5 * time.Second

type Option func(*Match)

func WithPendingTimeout(d time.Duration) Option {
	return func(m *Match) {
		if d > 0 {
			m.pendingTimeout = d
		}
	}
}

// WithPendingExpired registers a hook run when an echo did not arrive in time.
func WithPendingExpired(fn func()) Option { return func(m *Match) { m.onExpired = fn } }

func WithClockSource(now func() time.Time) Option { return func(m *Match) { m.now = now } }

// Match is safe for concurrent use. The board it holds is never handed out;
// Board returns a clone.
type Match struct {
	mu sync.Mutex

	GameID   string
	Team     rules.Team
	Self     string
	Opponent string

	board   *rules.Board
	over    bool
	broken  bool
	verdict rules.Status
	clock   Clock

	pending        bool
	pendingSeq     uint64
	pendingTimer   *time.Timer
	pendingTimeout time.Duration
	onExpired      func()
	now            func() time.Time
}

// New starts a match from START.
func New(start protocol.Start, opts ...Option) (*Match, error) {
	team, err := TeamFromWire(start.Team)
	if err != nil {
		return nil, err
	}
	m := &Match{
		GameID:         start.GameID,
		Team:           team,
		Self:           start.PlayerName,
		Opponent:       start.OpponentName,
		board:          rules.NewBoard(),
		pendingTimeout: DefaultPendingTimeout,
		now:            time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

func (m *Match) Board() *rules.Board {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.board.Clone()
}

func (m *Match) MyTurn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.over && !m.broken && !m.pending && m.board.Turn == m.Team
}

func (m *Match) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

func (m *Match) Over() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.over || m.broken
}

func (m *Match) Verdict() rules.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verdict
}

// Select records a UI selection and returns the legal moves from it.
func (m *Match) Select(c rules.Coordinate) []rules.Move {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.board.At(c)
	if !ok || p.Team != m.Team {
		m.board.ClearChosen()
		return nil
	}
	m.board.Choose(c)
	return rules.LegalMovesFrom(m.board, c)
}

// Submit validates a candidate against the legal set and returns the payload
// to send. The local board is not changed until the echo comes back.
func (m *Match) Submit(from, to rules.Coordinate, promo rules.Kind) (protocol.Move, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.over || m.broken:
		return protocol.Move{}, ErrGameOver
	case m.board.Turn != m.Team:
		return protocol.Move{}, ErrNotYourTurn
	case m.pending:
		return protocol.Move{}, ErrMovePending
	}
	if promo == rules.None {
		// 비대화형 입력은 퀸으로 승격
		if p, ok := m.board.At(from); ok && p.Kind == rules.Pawn && (to.Rank == 0 || to.Rank == 7) {
			promo = rules.Queen
		}
	}
	mv, ok := rules.FindLegal(m.board, from, to, promo)
	if !ok {
		return protocol.Move{}, fmt.Errorf("%w: %s%s%s", ErrIllegalMove, from, to, promo.Letter())
	}
	m.board.ClearChosen()
	m.armPending()
	return EncodeMove(mv), nil
}

func (m *Match) armPending() {
	m.pending = true
	m.pendingSeq++
	seq := m.pendingSeq
	if m.pendingTimer != nil {
		m.pendingTimer.Stop()
	}
	m.pendingTimer = time.AfterFunc(m.pendingTimeout, func() {
		m.mu.Lock()
		expired := m.pending && m.pendingSeq == seq
		if expired {
			m.pending = false
		}
		hook := m.onExpired
		m.mu.Unlock()
		if expired && hook != nil {
			hook()
		}
	})
}

func (m *Match) clearPending() {
	m.pending = false
	if m.pendingTimer != nil {
		m.pendingTimer.Stop()
		m.pendingTimer = nil
	}
}

// Outcome is the result of applying one relayed move.
type Outcome struct {
	Move   rules.Move
	Mover  rules.Team
	Status rules.Status // for the side now to move
	Own    bool         // the echo of our own move
}

// Notice returns the verdict message the mover reports, if any.
func (o Outcome) Notice() (protocol.Type, protocol.Notice, bool) {
	loser := o.Mover.Opponent().String()
	switch o.Status {
	case rules.StatusCheck:
		return protocol.TypeCheck, protocol.Notice{Team: loser}, true
	case rules.StatusCheckmate:
		return protocol.TypeCheckmate, protocol.Notice{Team: loser, Winner: o.Mover.String()}, true
	case rules.StatusStalemate:
		return protocol.TypeStalemate, protocol.Notice{Team: loser}, true
	}
	return "", protocol.Notice{}, false
}

// ApplyRelayed rebuilds a relayed move against the local board, applies it
// and evaluates the position for the side to move. Any failure leaves the
// match broken: no further relayed moves are applied.
func (m *Match) ApplyRelayed(p protocol.Move) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.broken {
		return Outcome{}, ErrStateDesync
	}
	if m.over {
		return Outcome{}, ErrGameOver
	}
	mover := m.board.Turn
	mv, err := m.rebuild(p)
	if err == nil {
		err = m.board.Apply(mv)
	}
	if err != nil {
		m.board.ClearChosen()
		m.clearPending()
		m.broken = true
		return Outcome{}, fmt.Errorf("%w: %s: %v", ErrStateDesync, p.UCI(), err)
	}

	out := Outcome{Move: mv, Mover: mover, Own: mover == m.Team}
	if out.Own {
		m.clearPending()
	}
	out.Status = rules.Evaluate(m.board, m.board.Turn)
	m.verdict = out.Status
	if out.Status == rules.StatusCheckmate || out.Status == rules.StatusStalemate {
		m.over = true
	}
	return out, nil
}

func (m *Match) rebuild(p protocol.Move) (rules.Move, error) {
	f, err := DecodeMove(p)
	if err != nil {
		return rules.Move{}, err
	}
	mv, err := rules.Rebuild(m.board, f)
	if err != nil {
		return rules.Move{}, err
	}
	if mv.Piece.Team != m.board.Turn {
		return rules.Move{}, fmt.Errorf("%s moved out of turn", mv.Piece.Team)
	}
	for _, lm := range rules.LegalMovesFrom(m.board, f.From) {
		if lm.Same(mv) {
			return lm, nil
		}
	}
	return rules.Move{}, fmt.Errorf("%s is not legal here", p.UCI())
}

// SyncClock adopts server clock values.
func (m *Match) SyncClock(c protocol.Clock) {
	m.mu.Lock()
	m.clock.adopt(c, m.now())
	m.mu.Unlock()
}

func (m *Match) Elapsed(team rules.Team) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clock.Elapsed(team, m.now())
}

// End marks the game finished for reasons outside the board (END, LEAVE).
func (m *Match) End() {
	m.mu.Lock()
	m.over = true
	m.clearPending()
	m.mu.Unlock()
}

// Load replaces the position with a replayed record.
func (m *Match) Load(rec protocol.GameRecord) error {
	b, err := record.Replay(rec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.board = b
	m.clearPending()
	m.broken = false
	m.verdict = rules.Evaluate(b, b.Turn)
	m.over = m.verdict == rules.StatusCheckmate || m.verdict == rules.StatusStalemate
	return nil
}

// Moves returns the applied moves in UCI form.
func (m *Match) Moves() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	hist := m.board.History()
	out := make([]string, len(hist))
	for i, mv := range hist {
		out[i] = mv.UCI()
	}
	return out
}

// Record builds a saved-game record of the current position.
func (m *Match) Record(name string) (protocol.GameRecord, error) {
	white, black := m.Self, m.Opponent
	if m.Team == rules.Black {
		white, black = black, white
	}
	return record.Build(name, white, black, m.Moves(), "", m.now())
}
