package rules

import (
	"fmt"
	"strings"
)

// Tile is one square and its optional occupant. Tiles belong to a Board.
type Tile struct {
	Coord    Coordinate
	Occupant *Piece
}

type ply struct {
	move     Move
	halfmove int
}

// Board holds occupancy, the side to move, the UI selection and the ply
// history. The zero value is not usable; use NewBoard, EmptyBoard or ParseFEN.
type Board struct {
	tiles    [8][8]Tile // [file][rank]
	Turn     Team
	chosen   *Coordinate
	plies    []ply
	halfmove int
	fullmove int
}

// EmptyBoard returns a board with no pieces and white to move.
func EmptyBoard() *Board {
	b := &Board{Turn: White, fullmove: 1}
	for f := 0; f < 8; f++ {
		for r := 0; r < 8; r++ {
			b.tiles[f][r].Coord = Sq(f, r)
		}
	}
	return b
}

var backRank = [8]Kind{Rook, Knight, Bishop, Queen, King, Bishop, Knight, Rook}

// NewBoard returns the standard starting position.
func NewBoard() *Board {
	b := EmptyBoard()
	for f := 0; f < 8; f++ {
		b.Put(Sq(f, 0), Piece{Kind: backRank[f], Team: White})
		b.Put(Sq(f, 1), Piece{Kind: Pawn, Team: White})
		b.Put(Sq(f, 6), Piece{Kind: Pawn, Team: Black})
		b.Put(Sq(f, 7), Piece{Kind: backRank[f], Team: Black})
	}
	return b
}

func (b *Board) occupant(c Coordinate) *Piece {
	if !c.Valid() {
		return nil
	}
	return b.tiles[c.File][c.Rank].Occupant
}

// At returns a copy of the piece on c.
func (b *Board) At(c Coordinate) (Piece, bool) {
	p := b.occupant(c)
	if p == nil {
		return Piece{}, false
	}
	return *p, true
}

// Tile returns the tile at c with its own copy of the occupant.
func (b *Board) Tile(c Coordinate) Tile {
	t := Tile{Coord: c}
	if p := b.occupant(c); p != nil {
		cp := *p
		t.Occupant = &cp
	}
	return t
}

func (b *Board) Put(c Coordinate, p Piece) {
	if !c.Valid() {
		return
	}
	if p.IsZero() {
		b.tiles[c.File][c.Rank].Occupant = nil
		return
	}
	cp := p
	b.tiles[c.File][c.Rank].Occupant = &cp
}

func (b *Board) Clear(c Coordinate) {
	if c.Valid() {
		b.tiles[c.File][c.Rank].Occupant = nil
	}
}

// Clone returns an independent copy. No Piece is shared with b.
func (b *Board) Clone() *Board {
	nb := &Board{Turn: b.Turn, halfmove: b.halfmove, fullmove: b.fullmove}
	for f := 0; f < 8; f++ {
		for r := 0; r < 8; r++ {
			nb.tiles[f][r].Coord = b.tiles[f][r].Coord
			if p := b.tiles[f][r].Occupant; p != nil {
				cp := *p
				nb.tiles[f][r].Occupant = &cp
			}
		}
	}
	if b.chosen != nil {
		c := *b.chosen
		nb.chosen = &c
	}
	nb.plies = append([]ply(nil), b.plies...)
	return nb
}

// Choose records the UI-selected tile. It has no effect on legality.
func (b *Board) Choose(c Coordinate) { b.chosen = &c }

func (b *Board) ClearChosen() { b.chosen = nil }

func (b *Board) Chosen() (Coordinate, bool) {
	if b.chosen == nil {
		return Coordinate{}, false
	}
	return *b.chosen, true
}

func (b *Board) LastMove() (Move, bool) {
	if len(b.plies) == 0 {
		return Move{}, false
	}
	return b.plies[len(b.plies)-1].move, true
}

// History returns the applied moves, oldest first.
func (b *Board) History() []Move {
	out := make([]Move, len(b.plies))
	for i, p := range b.plies {
		out[i] = p.move
	}
	return out
}

func (b *Board) King(t Team) (Coordinate, bool) {
	for f := 0; f < 8; f++ {
		for r := 0; r < 8; r++ {
			if p := b.tiles[f][r].Occupant; p != nil && p.Kind == King && p.Team == t {
				return Sq(f, r), true
			}
		}
	}
	return Coordinate{}, false
}

// Apply performs m on the board and hands the turn to the other side. It
// verifies that m's shape matches the pieces present but not that m is legal.
func (b *Board) Apply(m Move) error {
	p := b.occupant(m.From)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrEmptySquare, m.From)
	}
	if p.Kind != m.Piece.Kind || p.Team != m.Piece.Team {
		return fmt.Errorf("%w: %s on %s", ErrPieceMismatch, m.Piece.Kind, m.From)
	}
	if !m.To.Valid() {
		return fmt.Errorf("%w: %s", ErrBadCoordinate, m.To)
	}

	switch m.Shape {
	case ShapeCastling:
		r := b.occupant(m.RookFrom)
		if r == nil || r.Kind != Rook || r.Team != p.Team {
			return fmt.Errorf("%w: no rook on %s", ErrBadShape, m.RookFrom)
		}
	case ShapeEnPassant:
		v := b.occupant(m.CapturedAt)
		if v == nil || v.Kind != Pawn || v.Team == p.Team {
			return fmt.Errorf("%w: no pawn to take on %s", ErrBadShape, m.CapturedAt)
		}
	default:
		if t := b.occupant(m.To); t != nil && t.Team == p.Team {
			return fmt.Errorf("%w: %s occupied by own piece", ErrBadShape, m.To)
		}
		m.CapturedAt = m.To
	}

	// 실제 보드 기준으로 잡힌 기물을 기록해야 Undo가 정확하다.
	m.Piece = *p
	m.Captured = Piece{}
	if c := b.occupant(m.CapturedAt); c != nil && m.Shape != ShapeCastling {
		m.Captured = *c
	}

	b.plies = append(b.plies, ply{move: m, halfmove: b.halfmove})

	if m.Shape == ShapeEnPassant {
		b.Clear(m.CapturedAt)
	}
	moved := *p
	moved.HasMoved = true
	if m.Promotion != None {
		moved.Kind = m.Promotion
	}
	b.Clear(m.From)
	b.Put(m.To, moved)

	if m.Shape == ShapeCastling {
		rook := *b.occupant(m.RookFrom)
		rook.HasMoved = true
		b.Clear(m.RookFrom)
		b.Put(m.RookTo, rook)
	}

	if m.Piece.Kind == Pawn || m.IsCapture() {
		b.halfmove = 0
	} else {
		b.halfmove++
	}
	if m.Piece.Team == Black {
		b.fullmove++
	}
	b.Turn = m.Piece.Team.Opponent()
	b.chosen = nil
	return nil
}

// Undo reverts the last applied move.
func (b *Board) Undo() (Move, error) {
	if len(b.plies) == 0 {
		return Move{}, ErrNoHistory
	}
	last := b.plies[len(b.plies)-1]
	b.plies = b.plies[:len(b.plies)-1]
	m := last.move

	b.Clear(m.To)
	if m.Shape == ShapeCastling {
		b.Clear(m.RookTo)
		b.Put(m.RookFrom, Piece{Kind: Rook, Team: m.Piece.Team})
	}
	b.Put(m.From, m.Piece)
	if m.IsCapture() {
		b.Put(m.CapturedAt, m.Captured)
	}

	b.halfmove = last.halfmove
	if m.Piece.Team == Black {
		b.fullmove--
	}
	b.Turn = m.Piece.Team
	b.chosen = nil
	return m, nil
}

// String draws the board from white's side, rank 8 first.
func (b *Board) String() string {
	var sb strings.Builder
	for r := 7; r >= 0; r-- {
		sb.WriteByte(byte('1' + r))
		sb.WriteByte(' ')
		for f := 0; f < 8; f++ {
			ch := byte('.')
			if p := b.tiles[f][r].Occupant; p != nil {
				ch = p.rune()
			}
			sb.WriteByte(ch)
			if f < 7 {
				sb.WriteByte(' ')
			}
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("  a b c d e f g h\n")
	return sb.String()
}
