package rules

import (
	"fmt"
	"strconv"
	"strings"
)

const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// ParseFEN builds a board from Forsyth-Edwards notation. Castling rights
// become HasMoved flags on kings and rooks; an en passant square becomes a
// synthetic last move so the capture is generated on the next ply.
func ParseFEN(s string) (*Board, error) {
	fields := strings.Fields(s)
	if len(fields) < 4 {
		return nil, fmt.Errorf("%w: need at least 4 fields", ErrBadFEN)
	}
	b := EmptyBoard()

	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 8 {
		return nil, fmt.Errorf("%w: %d ranks", ErrBadFEN, len(ranks))
	}
	for i, row := range ranks {
		r := 7 - i
		f := 0
		for j := 0; j < len(row); j++ {
			ch := row[j]
			if ch >= '1' && ch <= '8' {
				f += int(ch - '0')
				continue
			}
			k, ok := ParseKind(string(ch))
			if !ok || f > 7 {
				return nil, fmt.Errorf("%w: rank %d", ErrBadFEN, r+1)
			}
			t := White
			if ch >= 'a' && ch <= 'z' {
				t = Black
			}
			p := Piece{Kind: k, Team: t, HasMoved: true}
			if k == Pawn {
				p.HasMoved = !((t == White && r == 1) || (t == Black && r == 6))
			}
			b.Put(Sq(f, r), p)
			f++
		}
		if f != 8 {
			return nil, fmt.Errorf("%w: rank %d has %d files", ErrBadFEN, r+1, f)
		}
	}

	switch fields[1] {
	case "w":
		b.Turn = White
	case "b":
		b.Turn = Black
	default:
		return nil, fmt.Errorf("%w: side %q", ErrBadFEN, fields[1])
	}

	if fields[2] != "-" {
		for _, ch := range fields[2] {
			var king, rook Coordinate
			switch ch {
			case 'K':
				king, rook = Sq(4, 0), Sq(7, 0)
			case 'Q':
				king, rook = Sq(4, 0), Sq(0, 0)
			case 'k':
				king, rook = Sq(4, 7), Sq(7, 7)
			case 'q':
				king, rook = Sq(4, 7), Sq(0, 7)
			default:
				return nil, fmt.Errorf("%w: castling %q", ErrBadFEN, fields[2])
			}
			kp, rp := b.occupant(king), b.occupant(rook)
			if kp == nil || kp.Kind != King || rp == nil || rp.Kind != Rook {
				return nil, fmt.Errorf("%w: castling right %c without pieces", ErrBadFEN, ch)
			}
			kp.HasMoved = false
			rp.HasMoved = false
		}
	}

	if fields[3] != "-" {
		ep, err := ParseCoordinate(fields[3])
		if err != nil {
			return nil, fmt.Errorf("%w: en passant %q", ErrBadFEN, fields[3])
		}
		mover := b.Turn.Opponent()
		to := ep.Plus(Coordinate{0, mover.forward()})
		from := ep.Plus(Coordinate{0, -mover.forward()})
		p := b.occupant(to)
		if p == nil || p.Kind != Pawn || p.Team != mover {
			return nil, fmt.Errorf("%w: en passant %q without pawn", ErrBadFEN, fields[3])
		}
		b.plies = append(b.plies, ply{move: Move{From: from, To: to, CapturedAt: to, Piece: Piece{Kind: Pawn, Team: mover}}})
	}

	if len(fields) >= 6 {
		if n, err := strconv.Atoi(fields[4]); err == nil && n >= 0 {
			b.halfmove = n
		}
		if n, err := strconv.Atoi(fields[5]); err == nil && n > 0 {
			b.fullmove = n
		}
	}
	return b, nil
}

// FEN exports the position.
func (b *Board) FEN() string {
	var sb strings.Builder
	for r := 7; r >= 0; r-- {
		empty := 0
		for f := 0; f < 8; f++ {
			p := b.tiles[f][r].Occupant
			if p == nil {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteByte(byte('0' + empty))
				empty = 0
			}
			sb.WriteByte(p.rune())
		}
		if empty > 0 {
			sb.WriteByte(byte('0' + empty))
		}
		if r > 0 {
			sb.WriteByte('/')
		}
	}

	sb.WriteByte(' ')
	if b.Turn == White {
		sb.WriteByte('w')
	} else {
		sb.WriteByte('b')
	}

	sb.WriteByte(' ')
	rights := ""
	if b.canCastle(White, 7) {
		rights += "K"
	}
	if b.canCastle(White, 0) {
		rights += "Q"
	}
	if b.canCastle(Black, 7) {
		rights += "k"
	}
	if b.canCastle(Black, 0) {
		rights += "q"
	}
	if rights == "" {
		rights = "-"
	}
	sb.WriteString(rights)

	sb.WriteByte(' ')
	ep := "-"
	if last, ok := b.LastMove(); ok && last.Piece.Kind == Pawn {
		if d := last.To.Rank - last.From.Rank; d == 2 || d == -2 {
			ep = Sq(last.From.File, (last.From.Rank+last.To.Rank)/2).String()
		}
	}
	sb.WriteString(ep)
	fmt.Fprintf(&sb, " %d %d", b.halfmove, b.fullmove)
	return sb.String()
}

func (b *Board) canCastle(t Team, rookFile int) bool {
	home := 0
	if t == Black {
		home = 7
	}
	k := b.occupant(Sq(4, home))
	r := b.occupant(Sq(rookFile, home))
	return k != nil && k.Kind == King && k.Team == t && !k.HasMoved &&
		r != nil && r.Kind == Rook && r.Team == t && !r.HasMoved
}
