// Package record turns a relayed move list into a saved-game record and back.
package record

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"

	"github.com/park285/netchess/internal/rules"
	"github.com/park285/netchess/pkg/protocol"
)

const (
	ResultWhite = "white"
	ResultBlack = "black"
	ResultDraw  = "draw"
)

var (
	ErrBadMove = errors.New("record move rejected")
	ErrNoName  = errors.New("record name is empty")
)

var (
	ecoOnce  sync.Once
	ecoTable *opening.BookECO
)

// 오프닝 테이블은 처음 쓸 때 한 번만 읽는다.
func ecoBook() *opening.BookECO {
	ecoOnce.Do(func() { ecoTable = opening.NewBookECO() })
	return ecoTable
}

// Build annotates UCI moves with SAN, the final FEN and the ECO opening.
// Moves are replayed on a fresh game, so an illegal entry fails the whole
// record.
func Build(name, white, black string, moves []string, result string, now time.Time) (protocol.GameRecord, error) {
	rec := protocol.GameRecord{
		Name:    SanitizeName(name),
		White:   strings.TrimSpace(white),
		Black:   strings.TrimSpace(black),
		Moves:   append([]string{}, moves...),
		Result:  strings.ToLower(strings.TrimSpace(result)),
		SavedAt: now.UTC(),
	}
	if rec.Name == "" {
		return protocol.GameRecord{}, ErrNoName
	}
	game := nchess.NewGame()
	notationUCI := nchess.UCINotation{}
	for i, uci := range moves {
		pos := game.Position()
		s := strings.ToLower(strings.TrimSpace(uci))
		mv, err := notationUCI.Decode(pos, s)
		if err != nil {
			return protocol.GameRecord{}, fmt.Errorf("%w: ply %d %q: %v", ErrBadMove, i+1, uci, err)
		}
		san := nchess.AlgebraicNotation{}.Encode(pos, mv)
		if err := game.PushNotationMove(s, notationUCI, nil); err != nil {
			return protocol.GameRecord{}, fmt.Errorf("%w: ply %d %q: %v", ErrBadMove, i+1, uci, err)
		}
		rec.SAN = append(rec.SAN, san)
	}
	rec.FEN = game.FEN()
	if eco := ecoBook().Find(game.Moves()); eco != nil {
		rec.ECO = eco.Code()
		rec.Opening = eco.Title()
	}
	if rec.Result == "" {
		switch game.Outcome() {
		case nchess.WhiteWon:
			rec.Result = ResultWhite
		case nchess.BlackWon:
			rec.Result = ResultBlack
		case nchess.Draw:
			rec.Result = ResultDraw
		}
	}
	return rec, nil
}

// Replay rebuilds the position of rec on a rules board.
func Replay(rec protocol.GameRecord) (*rules.Board, error) {
	b := rules.NewBoard()
	for i, s := range rec.Moves {
		from, to, promo, err := ParseUCI(s)
		if err != nil {
			return nil, fmt.Errorf("%w: ply %d: %v", ErrBadMove, i+1, err)
		}
		m, ok := rules.FindLegal(b, from, to, promo)
		if !ok {
			return nil, fmt.Errorf("%w: ply %d %q is illegal", ErrBadMove, i+1, s)
		}
		if err := b.Apply(m); err != nil {
			return nil, fmt.Errorf("%w: ply %d: %v", ErrBadMove, i+1, err)
		}
	}
	return b, nil
}

// ParseUCI splits e2e4 / e7e8q into squares and promotion piece.
func ParseUCI(s string) (rules.Coordinate, rules.Coordinate, rules.Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 4 && len(s) != 5 {
		return rules.Coordinate{}, rules.Coordinate{}, rules.None, fmt.Errorf("bad uci %q", s)
	}
	from, err := rules.ParseCoordinate(s[0:2])
	if err != nil {
		return rules.Coordinate{}, rules.Coordinate{}, rules.None, err
	}
	to, err := rules.ParseCoordinate(s[2:4])
	if err != nil {
		return rules.Coordinate{}, rules.Coordinate{}, rules.None, err
	}
	promo := rules.None
	if len(s) == 5 {
		k, ok := rules.ParseKind(s[4:])
		if !ok || k == rules.Pawn || k == rules.King {
			return rules.Coordinate{}, rules.Coordinate{}, rules.None, fmt.Errorf("bad promotion in %q", s)
		}
		promo = k
	}
	return from, to, promo, nil
}

var unsafeName = regexp.MustCompile(`[^a-z0-9_-]+`)

// SanitizeName lowercases and strips a save name down to [a-z0-9_-], at most
// 64 characters.
func SanitizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "_")
	s = unsafeName.ReplaceAllString(s, "")
	if len(s) > 64 {
		s = s[:64]
	}
	return s
}

// Summary is the list view of a record.
func Summary(rec protocol.GameRecord) protocol.SaveSummary {
	return protocol.SaveSummary{
		Name:    rec.Name,
		White:   rec.White,
		Black:   rec.Black,
		Plies:   len(rec.Moves),
		Result:  rec.Result,
		SavedAt: rec.SavedAt,
	}
}
