package lobby

import (
	"context"
	"strings"
	"time"

	"github.com/park285/netchess/pkg/protocol"
)

// Transport is the write side of one connection.
type Transport interface {
	Send(ctx context.Context, env protocol.Envelope) error
	Close(reason string) error
}

type ColorChoice string

const (
	ColorWhite  ColorChoice = protocol.ColorWhite
	ColorBlack  ColorChoice = protocol.ColorBlack
	ColorRandom ColorChoice = protocol.ColorRandom
)

func ParseColorChoice(s string) ColorChoice {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return ColorWhite
	case "black", "b":
		return ColorBlack
	default:
		return ColorRandom
	}
}

// Request is a pending play request, keyed by its target.
type Request struct {
	FromID    string
	FromName  string
	ToID      string
	ToName    string
	Color     ColorChoice
	CreatedAt time.Time
}

// Snapshot is a copy of one session's registry state.
type Snapshot struct {
	ID      string
	Name    string
	Paired  bool
	Partner string
	InLobby bool
	Team    string
	GameID  string
}

// Pairing is the result of an accepted request.
type Pairing struct {
	GameID    string
	White     *Session
	Black     *Session
	WhiteName string
	BlackName string
	Requester string
	StartedAt time.Time
	Dropped   []Request // other pending requests from or to either side
}

// Departure describes what Remove cleaned up.
type Departure struct {
	Session *Session
	Name    string
	Partner *Session  // nil when the session was not paired
	Dropped []Request // pending requests from or to the session
	GameID  string
}
