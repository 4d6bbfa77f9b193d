package rules

import "strings"

type Team uint8

const (
	White Team = iota
	Black
)

func (t Team) Opponent() Team {
	if t == White {
		return Black
	}
	return White
}

func (t Team) String() string {
	if t == Black {
		return "BLACK"
	}
	return "WHITE"
}

// forward는 폰 진행 방향(rank 증감).
func (t Team) forward() int {
	if t == White {
		return 1
	}
	return -1
}

// ParseTeam accepts WHITE/BLACK in any case, and the single letters w/b.
func ParseTeam(s string) (Team, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, true
	case "black", "b":
		return Black, true
	}
	return White, false
}

type Kind uint8

const (
	None Kind = iota
	Pawn
	Knight
	Bishop
	Rook
	Queen
	King
)

var kindNames = [...]string{"", "PAWN", "KNIGHT", "BISHOP", "ROOK", "QUEEN", "KING"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return ""
}

// Letter는 소문자 FEN/UCI 문자. None이면 빈 문자열.
func (k Kind) Letter() string {
	switch k {
	case Pawn:
		return "p"
	case Knight:
		return "n"
	case Bishop:
		return "b"
	case Rook:
		return "r"
	case Queen:
		return "q"
	case King:
		return "k"
	}
	return ""
}

// ParseKind accepts full names (QUEEN) and letters (q/Q).
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "p", "pawn":
		return Pawn, true
	case "n", "knight":
		return Knight, true
	case "b", "bishop":
		return Bishop, true
	case "r", "rook":
		return Rook, true
	case "q", "queen":
		return Queen, true
	case "k", "king":
		return King, true
	}
	return None, false
}

// PromotionKinds lists promotion targets in preference order.
var PromotionKinds = [...]Kind{Queen, Rook, Bishop, Knight}

func isPromotionKind(k Kind) bool {
	for _, p := range PromotionKinds {
		if p == k {
			return true
		}
	}
	return false
}

// Piece is a value; boards hold their own copies.
type Piece struct {
	Kind     Kind
	Team     Team
	HasMoved bool
}

func (p Piece) IsZero() bool { return p.Kind == None }

// rune은 FEN 표기 문자. 백은 대문자.
func (p Piece) rune() byte {
	l := p.Kind.Letter()
	if l == "" {
		return '.'
	}
	if p.Team == White {
		return strings.ToUpper(l)[0]
	}
	return l[0]
}
