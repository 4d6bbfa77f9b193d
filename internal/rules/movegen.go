package rules

var (
	rookDirs   = []Coordinate{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	bishopDirs = []Coordinate{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
	queenDirs  = append(append([]Coordinate{}, rookDirs...), bishopDirs...)

	knightOffsets = []Coordinate{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	kingOffsets   = queenDirs
)

// PseudoMoves generates every move for the piece on from that follows its
// movement pattern, without regard to the mover's king safety. Castling is
// the exception: its transit squares are checked for attacks here.
func PseudoMoves(b *Board, from Coordinate) []Move {
	p := b.occupant(from)
	if p == nil {
		return nil
	}
	switch p.Kind {
	case Pawn:
		return pawnMoves(b, from, *p)
	case Knight:
		return stepMoves(b, from, *p, knightOffsets)
	case Bishop:
		return slideMoves(b, from, *p, bishopDirs)
	case Rook:
		return slideMoves(b, from, *p, rookDirs)
	case Queen:
		return slideMoves(b, from, *p, queenDirs)
	case King:
		return append(stepMoves(b, from, *p, kingOffsets), castlingMoves(b, from, *p)...)
	}
	return nil
}

func slideMoves(b *Board, from Coordinate, p Piece, dirs []Coordinate) []Move {
	var out []Move
	for _, d := range dirs {
		for to := from.Plus(d); to.Valid(); to = to.Plus(d) {
			o := b.occupant(to)
			if o == nil {
				out = append(out, newPlainMove(b, from, to))
				continue
			}
			if o.Team != p.Team {
				out = append(out, newPlainMove(b, from, to))
			}
			break
		}
	}
	return out
}

func stepMoves(b *Board, from Coordinate, p Piece, offsets []Coordinate) []Move {
	var out []Move
	for _, d := range offsets {
		to := from.Plus(d)
		if !to.Valid() {
			continue
		}
		if o := b.occupant(to); o != nil && o.Team == p.Team {
			continue
		}
		out = append(out, newPlainMove(b, from, to))
	}
	return out
}

func pawnMoves(b *Board, from Coordinate, p Piece) []Move {
	var out []Move
	fwd := p.Team.forward()

	one := from.Plus(Coordinate{0, fwd})
	if one.Valid() && b.occupant(one) == nil {
		out = appendPawnMove(out, newPlainMove(b, from, one))
		two := one.Plus(Coordinate{0, fwd})
		if !p.HasMoved && two.Valid() && b.occupant(two) == nil {
			out = append(out, newPlainMove(b, from, two))
		}
	}

	for _, df := range [2]int{-1, 1} {
		to := from.Plus(Coordinate{df, fwd})
		if !to.Valid() {
			continue
		}
		if o := b.occupant(to); o != nil {
			if o.Team != p.Team {
				out = appendPawnMove(out, newPlainMove(b, from, to))
			}
			continue
		}
		victim := Sq(to.File, from.Rank)
		if enPassantTarget(b, victim, p.Team) {
			out = append(out, newEnPassantMove(b, from, to, victim))
		}
	}
	return out
}

// enPassantTarget reports whether the pawn on victim just double-stepped
// and can be taken by team.
func enPassantTarget(b *Board, victim Coordinate, team Team) bool {
	v := b.occupant(victim)
	if v == nil || v.Kind != Pawn || v.Team == team {
		return false
	}
	last, ok := b.LastMove()
	if !ok || last.Piece.Kind != Pawn || last.To != victim {
		return false
	}
	d := last.To.Rank - last.From.Rank
	return d == 2 || d == -2
}

// appendPawnMove expands a move onto the last rank into one move per
// promotion piece.
func appendPawnMove(out []Move, m Move) []Move {
	if m.To.Rank != promotionRank(m.Piece.Team) {
		return append(out, m)
	}
	for _, k := range PromotionKinds {
		pm := m
		pm.Promotion = k
		out = append(out, pm)
	}
	return out
}

func castlingMoves(b *Board, from Coordinate, k Piece) []Move {
	home := 0
	if k.Team == Black {
		home = 7
	}
	if k.HasMoved || from != Sq(4, home) {
		return nil
	}
	enemy := k.Team.Opponent()
	if IsSquareAttacked(b, from, enemy) {
		return nil
	}

	var out []Move
	sides := []struct {
		rookFile int
		between  []int
		transit  []int // 킹이 지나가는 칸 (도착 칸 포함)
		kingTo   int
		rookTo   int
	}{
		{rookFile: 7, between: []int{5, 6}, transit: []int{5, 6}, kingTo: 6, rookTo: 5},
		{rookFile: 0, between: []int{1, 2, 3}, transit: []int{3, 2}, kingTo: 2, rookTo: 3},
	}
	for _, s := range sides {
		rookSq := Sq(s.rookFile, home)
		r := b.occupant(rookSq)
		if r == nil || r.Kind != Rook || r.Team != k.Team || r.HasMoved {
			continue
		}
		clear := true
		for _, f := range s.between {
			if b.occupant(Sq(f, home)) != nil {
				clear = false
				break
			}
		}
		if !clear {
			continue
		}
		safe := true
		for _, f := range s.transit {
			if IsSquareAttacked(b, Sq(f, home), enemy) {
				safe = false
				break
			}
		}
		if !safe {
			continue
		}
		out = append(out, newCastlingMove(b, from, Sq(s.kingTo, home), rookSq, Sq(s.rookTo, home)))
	}
	return out
}
