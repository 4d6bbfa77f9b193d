// Package protocol defines the messages exchanged between peers and the
// relay server. Every websocket text frame carries exactly one Envelope.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Type string

const (
	TypeLobbyAnnounce Type = "LOBBY_ANNOUNCE"
	TypePlayerList    Type = "PLAYER_LIST"
	TypePlayRequest   Type = "PLAY_REQUEST"
	TypePlayResponse  Type = "PLAY_RESPONSE"
	TypeRequestDenied Type = "REQUEST_DENIED"
	TypeStart         Type = "START"
	TypeMove          Type = "MOVE"
	TypeCheck         Type = "CHECK"
	TypeCheckmate     Type = "CHECKMATE"
	TypeStalemate     Type = "STALEMATE"
	TypeEnd           Type = "END"
	TypeChat          Type = "CHAT"
	TypeLeave         Type = "LEAVE"
	TypeTimerStart    Type = "TIMER_START"
	TypeTimerSync     Type = "TIMER_SYNC"
	TypeSaveGame      Type = "SAVE_GAME"
	TypeLoadGame      Type = "LOAD_GAME"
	TypeError         Type = "ERROR"
)

var known = map[Type]struct{}{
	TypeLobbyAnnounce: {}, TypePlayerList: {}, TypePlayRequest: {}, TypePlayResponse: {},
	TypeRequestDenied: {}, TypeStart: {}, TypeMove: {}, TypeCheck: {}, TypeCheckmate: {},
	TypeStalemate: {}, TypeEnd: {}, TypeChat: {}, TypeLeave: {}, TypeTimerStart: {},
	TypeTimerSync: {}, TypeSaveGame: {}, TypeLoadGame: {}, TypeError: {},
}

func (t Type) Known() bool {
	_, ok := known[t]
	return ok
}

// IsVerdict reports whether t is an end-of-turn notice broadcast to both sides.
func (t Type) IsVerdict() bool {
	switch t {
	case TypeCheck, TypeCheckmate, TypeStalemate, TypeEnd:
		return true
	}
	return false
}

// IsTerminal reports whether t ends the game.
func (t Type) IsTerminal() bool {
	return t == TypeCheckmate || t == TypeStalemate || t == TypeEnd
}

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrMalformed   = errors.New("malformed message")
)

type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// New wraps payload in an envelope. A nil payload produces no payload field.
func New(t Type, payload any) (Envelope, error) {
	env := Envelope{Type: t}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	env.Payload = raw
	return env, nil
}

// MustNew is New for payload types that always encode.
func MustNew(t Type, payload any) Envelope {
	env, err := New(t, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// Check validates the envelope type.
func (e Envelope) Check() error {
	if e.Type == "" {
		return fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if !e.Type.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}
	return nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: %s without payload", ErrMalformed, e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, e.Type, err)
	}
	return nil
}

// Parse decodes a raw frame.
func Parse(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := env.Check(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
