package rules

import "fmt"

// Shape는 이동의 형태. 한 Move에는 정확히 하나만 활성화된다.
type Shape uint8

const (
	ShapePlain Shape = iota
	ShapeCastling
	ShapeEnPassant
)

func (s Shape) String() string {
	switch s {
	case ShapeCastling:
		return "castling"
	case ShapeEnPassant:
		return "en_passant"
	}
	return "plain"
}

// Move is a self-contained description of one ply. It refers to squares by
// coordinate only, so the same value can be applied to any clone of the board
// it was generated on.
type Move struct {
	From  Coordinate
	To    Coordinate
	Piece Piece // snapshot before the move

	// Captured is zero when nothing is taken. CapturedAt equals To except
	// for en passant.
	Captured   Piece
	CapturedAt Coordinate

	Shape    Shape
	RookFrom Coordinate
	RookTo   Coordinate

	// Promotion is None unless a pawn reaches the last rank.
	Promotion Kind
}

func (m Move) IsCapture() bool   { return !m.Captured.IsZero() }
func (m Move) IsCastling() bool  { return m.Shape == ShapeCastling }
func (m Move) IsEnPassant() bool { return m.Shape == ShapeEnPassant }
func (m Move) IsPromotion() bool { return m.Promotion != None }

// UCI renders long algebraic notation, e.g. e2e4, e7e8q, e1g1.
func (m Move) UCI() string {
	return m.From.String() + m.To.String() + m.Promotion.Letter()
}

func (m Move) String() string { return m.UCI() }

// Same reports whether two moves describe the same action, ignoring snapshots.
func (m Move) Same(o Move) bool {
	return m.From == o.From && m.To == o.To && m.Shape == o.Shape && m.Promotion == o.Promotion
}

func newPlainMove(b *Board, from, to Coordinate) Move {
	m := Move{From: from, To: to, CapturedAt: to, Shape: ShapePlain}
	if p := b.occupant(from); p != nil {
		m.Piece = *p
	}
	if c := b.occupant(to); c != nil {
		m.Captured = *c
	}
	return m
}

func newCastlingMove(b *Board, from, to, rookFrom, rookTo Coordinate) Move {
	m := Move{From: from, To: to, CapturedAt: to, Shape: ShapeCastling, RookFrom: rookFrom, RookTo: rookTo}
	if p := b.occupant(from); p != nil {
		m.Piece = *p
	}
	return m
}

func newEnPassantMove(b *Board, from, to, victim Coordinate) Move {
	m := Move{From: from, To: to, CapturedAt: victim, Shape: ShapeEnPassant}
	if p := b.occupant(from); p != nil {
		m.Piece = *p
	}
	if c := b.occupant(victim); c != nil {
		m.Captured = *c
	}
	return m
}

// Fields is the primitive, board-independent form of a move as it travels
// between peers.
type Fields struct {
	From       Coordinate
	To         Coordinate
	Castling   bool
	RookFrom   Coordinate
	RookTo     Coordinate
	EnPassant  bool
	CapturedAt Coordinate
	Promotion  Kind
}

func (m Move) Fields() Fields {
	f := Fields{From: m.From, To: m.To, Promotion: m.Promotion}
	switch m.Shape {
	case ShapeCastling:
		f.Castling = true
		f.RookFrom, f.RookTo = m.RookFrom, m.RookTo
	case ShapeEnPassant:
		f.EnPassant = true
		f.CapturedAt = m.CapturedAt
	}
	return f
}

// Rebuild reconstructs a move from its primitive fields against b. It checks
// that the shape fits the pieces on b but not whether the move is legal.
func Rebuild(b *Board, f Fields) (Move, error) {
	if !f.From.Valid() || !f.To.Valid() {
		return Move{}, fmt.Errorf("%w: %s-%s", ErrBadCoordinate, f.From, f.To)
	}
	p := b.occupant(f.From)
	if p == nil {
		return Move{}, fmt.Errorf("%w: %s", ErrEmptySquare, f.From)
	}
	if f.Castling && f.EnPassant {
		return Move{}, fmt.Errorf("%w: castling and en passant both set", ErrBadShape)
	}

	var m Move
	switch {
	case f.Castling:
		if p.Kind != King {
			return Move{}, fmt.Errorf("%w: castling without king on %s", ErrBadShape, f.From)
		}
		r := b.occupant(f.RookFrom)
		if !f.RookFrom.Valid() || !f.RookTo.Valid() || r == nil || r.Kind != Rook || r.Team != p.Team {
			return Move{}, fmt.Errorf("%w: no rook on %s", ErrBadShape, f.RookFrom)
		}
		m = newCastlingMove(b, f.From, f.To, f.RookFrom, f.RookTo)
	case f.EnPassant:
		v := b.occupant(f.CapturedAt)
		if p.Kind != Pawn || !f.CapturedAt.Valid() || v == nil || v.Kind != Pawn || v.Team == p.Team || b.occupant(f.To) != nil {
			return Move{}, fmt.Errorf("%w: en passant %s-%s", ErrBadShape, f.From, f.To)
		}
		m = newEnPassantMove(b, f.From, f.To, f.CapturedAt)
	default:
		if t := b.occupant(f.To); t != nil && t.Team == p.Team {
			return Move{}, fmt.Errorf("%w: %s occupied by own piece", ErrBadShape, f.To)
		}
		m = newPlainMove(b, f.From, f.To)
	}

	lastRank := p.Kind == Pawn && f.To.Rank == promotionRank(p.Team)
	switch {
	case lastRank && !isPromotionKind(f.Promotion):
		return Move{}, fmt.Errorf("%w: promotion piece required on %s", ErrBadShape, f.To)
	case !lastRank && f.Promotion != None:
		return Move{}, fmt.Errorf("%w: promotion not allowed on %s", ErrBadShape, f.To)
	}
	m.Promotion = f.Promotion
	return m, nil
}

func promotionRank(t Team) int {
	if t == White {
		return 7
	}
	return 0
}
