package match

import (
	"fmt"

	"github.com/park285/netchess/internal/rules"
	"github.com/park285/netchess/pkg/protocol"
)

// EncodeMove converts a move to its wire payload.
func EncodeMove(m rules.Move) protocol.Move {
	p := protocol.Move{
		From:        m.From.String(),
		To:          m.To.String(),
		IsCastling:  m.IsCastling(),
		IsEnPassant: m.IsEnPassant(),
		IsPromotion: m.IsPromotion(),
	}
	if m.IsCastling() {
		p.RookFrom = m.RookFrom.String()
		p.RookTo = m.RookTo.String()
	}
	if m.IsEnPassant() {
		p.CapturedPawn = m.CapturedAt.String()
	}
	if m.IsPromotion() {
		p.PromotionType = m.Promotion.String()
	}
	return p
}

// DecodeMove parses the primitive fields of a wire move.
func DecodeMove(p protocol.Move) (rules.Fields, error) {
	var f rules.Fields
	var err error
	if f.From, err = rules.ParseCoordinate(p.From); err != nil {
		return rules.Fields{}, err
	}
	if f.To, err = rules.ParseCoordinate(p.To); err != nil {
		return rules.Fields{}, err
	}
	if p.IsCastling {
		f.Castling = true
		if f.RookFrom, err = rules.ParseCoordinate(p.RookFrom); err != nil {
			return rules.Fields{}, fmt.Errorf("rook from: %w", err)
		}
		if f.RookTo, err = rules.ParseCoordinate(p.RookTo); err != nil {
			return rules.Fields{}, fmt.Errorf("rook to: %w", err)
		}
	}
	if p.IsEnPassant {
		f.EnPassant = true
		if f.CapturedAt, err = rules.ParseCoordinate(p.CapturedPawn); err != nil {
			return rules.Fields{}, fmt.Errorf("captured pawn: %w", err)
		}
	}
	if p.IsPromotion {
		k, ok := rules.ParseKind(p.PromotionType)
		if !ok {
			return rules.Fields{}, fmt.Errorf("promotion type %q", p.PromotionType)
		}
		f.Promotion = k
	}
	return f, nil
}

func TeamFromWire(s string) (rules.Team, error) {
	t, ok := rules.ParseTeam(s)
	if !ok {
		return rules.White, fmt.Errorf("unknown team %q", s)
	}
	return t, nil
}
