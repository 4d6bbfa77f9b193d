package rules

import "errors"

var (
	ErrBadCoordinate = errors.New("invalid coordinate")
	ErrBadFEN        = errors.New("invalid fen")
	ErrEmptySquare   = errors.New("no piece on source square")
	ErrPieceMismatch = errors.New("piece does not match move")
	ErrBadShape      = errors.New("move shape does not fit board")
	ErrNoHistory     = errors.New("no move to undo")
)
