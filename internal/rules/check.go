package rules

// IsSquareAttacked reports whether any piece of team by attacks sq.
func IsSquareAttacked(b *Board, sq Coordinate, by Team) bool {
	for _, d := range knightOffsets {
		if p := b.occupant(sq.Plus(d)); p != nil && p.Team == by && p.Kind == Knight {
			return true
		}
	}
	if rayHits(b, sq, by, rookDirs, Rook) || rayHits(b, sq, by, bishopDirs, Bishop) {
		return true
	}
	// 폰은 by 진영 기준 한 칸 뒤 대각선에 있어야 sq를 공격한다.
	back := -by.forward()
	for _, df := range [2]int{-1, 1} {
		if p := b.occupant(sq.Plus(Coordinate{df, back})); p != nil && p.Team == by && p.Kind == Pawn {
			return true
		}
	}
	for _, d := range kingOffsets {
		if p := b.occupant(sq.Plus(d)); p != nil && p.Team == by && p.Kind == King {
			return true
		}
	}
	return false
}

// rayHits walks each direction and checks the first occupant only.
func rayHits(b *Board, sq Coordinate, by Team, dirs []Coordinate, slider Kind) bool {
	for _, d := range dirs {
		for c := sq.Plus(d); c.Valid(); c = c.Plus(d) {
			p := b.occupant(c)
			if p == nil {
				continue
			}
			if p.Team == by && (p.Kind == slider || p.Kind == Queen) {
				return true
			}
			break
		}
	}
	return false
}

// IsInCheck reports whether team's king is attacked. A board without that
// king reports false.
func IsInCheck(b *Board, team Team) bool {
	k, ok := b.King(team)
	if !ok {
		return false
	}
	return IsSquareAttacked(b, k, team.Opponent())
}

// LegalMoves returns every move of team that does not leave its own king in
// check. Each candidate is applied to a clone of b and tested there.
func LegalMoves(b *Board, team Team) []Move {
	var out []Move
	for f := 0; f < 8; f++ {
		for r := 0; r < 8; r++ {
			p := b.tiles[f][r].Occupant
			if p == nil || p.Team != team {
				continue
			}
			out = append(out, legalFrom(b, Sq(f, r), team)...)
		}
	}
	return out
}

// LegalMovesFrom returns the legal moves of the piece on from.
func LegalMovesFrom(b *Board, from Coordinate) []Move {
	p := b.occupant(from)
	if p == nil {
		return nil
	}
	return legalFrom(b, from, p.Team)
}

func legalFrom(b *Board, from Coordinate, team Team) []Move {
	var out []Move
	for _, m := range PseudoMoves(b, from) {
		sim := b.Clone()
		if err := sim.Apply(m); err != nil {
			continue
		}
		if !IsInCheck(sim, team) {
			out = append(out, m)
		}
	}
	return out
}

func HasLegalMove(b *Board, team Team) bool {
	for f := 0; f < 8; f++ {
		for r := 0; r < 8; r++ {
			p := b.tiles[f][r].Occupant
			if p != nil && p.Team == team && len(legalFrom(b, Sq(f, r), team)) > 0 {
				return true
			}
		}
	}
	return false
}

func IsCheckmate(b *Board, team Team) bool {
	return IsInCheck(b, team) && !HasLegalMove(b, team)
}

func IsStalemate(b *Board, team Team) bool {
	return !IsInCheck(b, team) && !HasLegalMove(b, team)
}

type Status uint8

const (
	StatusOngoing Status = iota
	StatusCheck
	StatusCheckmate
	StatusStalemate
)

func (s Status) String() string {
	switch s {
	case StatusCheck:
		return "CHECK"
	case StatusCheckmate:
		return "CHECKMATE"
	case StatusStalemate:
		return "STALEMATE"
	}
	return "ONGOING"
}

// Evaluate classifies the position for team.
func Evaluate(b *Board, team Team) Status {
	check := IsInCheck(b, team)
	canMove := HasLegalMove(b, team)
	switch {
	case check && !canMove:
		return StatusCheckmate
	case !canMove:
		return StatusStalemate
	case check:
		return StatusCheck
	}
	return StatusOngoing
}

// FindLegal returns the legal move of b.Turn matching from, to and promo.
func FindLegal(b *Board, from, to Coordinate, promo Kind) (Move, bool) {
	p := b.occupant(from)
	if p == nil || p.Team != b.Turn {
		return Move{}, false
	}
	for _, m := range legalFrom(b, from, p.Team) {
		if m.To == to && m.Promotion == promo {
			return m, true
		}
	}
	return Move{}, false
}
