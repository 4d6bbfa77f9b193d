package protocol

import (
	"strings"
	"time"
)

type LobbyAnnounce struct {
	Name string `json:"name"`
}

type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type PlayerList struct {
	Players []Player `json:"players"`
}

// Color preferences for PlayRequest.PreferredColor.
const (
	ColorWhite  = "white"
	ColorBlack  = "black"
	ColorRandom = "random"
)

type PlayRequest struct {
	FromID         string `json:"fromId"`
	FromName       string `json:"fromName"`
	ToID           string `json:"toId"`
	ToName         string `json:"toName"`
	PreferredColor string `json:"preferredColor,omitempty"`
}

// PlayResponse is sent by the target of a request. RequesterID names the
// session whose request is being answered.
//
// The server also sends one to a target with Withdrawn set when the request
// it holds is gone: the requester left or started another game. FromName is
// then the requester's name.
type PlayResponse struct {
	Accepted                 bool   `json:"accepted"`
	RequesterID              string `json:"requesterId"`
	FromName                 string `json:"fromName"`
	OpponentNameForRequester string `json:"opponentNameForRequester,omitempty"`
	Withdrawn                bool   `json:"withdrawn,omitempty"`
	Reason                   string `json:"reason,omitempty"`
}

type RequestDenied struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// Team values on the wire.
const (
	TeamWhite = "WHITE"
	TeamBlack = "BLACK"
)

type Start struct {
	GameID       string `json:"gameId"`
	Team         string `json:"team"`
	PlayerName   string `json:"playerName"`
	OpponentName string `json:"opponentName"`
}

// Move carries squares as algebraic strings ("e2"). PromotionType is a piece
// name such as QUEEN.
type Move struct {
	From          string `json:"from"`
	To            string `json:"to"`
	IsCastling    bool   `json:"isCastling"`
	RookFrom      string `json:"rookFrom,omitempty"`
	RookTo        string `json:"rookTo,omitempty"`
	IsEnPassant   bool   `json:"isEnPassant"`
	CapturedPawn  string `json:"capturedPawn,omitempty"`
	IsPromotion   bool   `json:"isPromotion"`
	PromotionType string `json:"promotionType,omitempty"`
}

// UCI renders the move in long algebraic form without consulting a board.
func (m Move) UCI() string {
	s := strings.ToLower(m.From + m.To)
	if !m.IsPromotion {
		return s
	}
	switch strings.ToUpper(m.PromotionType) {
	case "KNIGHT", "N":
		return s + "n"
	case "BISHOP", "B":
		return s + "b"
	case "ROOK", "R":
		return s + "r"
	}
	return s + "q"
}

// Notice is the payload of CHECK, CHECKMATE, STALEMATE and END.
type Notice struct {
	Team   string `json:"team,omitempty"`
	Winner string `json:"winner,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type Chat struct {
	SenderName string `json:"senderName"`
	Text       string `json:"text"`
}

// Clock is the payload of TIMER_START and TIMER_SYNC. Times are milliseconds.
type Clock struct {
	ServerTime int64  `json:"serverTime"`
	Turn       string `json:"turn"`
	WhiteMs    int64  `json:"whiteMs"`
	BlackMs    int64  `json:"blackMs"`
}

type GameRecord struct {
	Name    string    `json:"name"`
	White   string    `json:"white"`
	Black   string    `json:"black"`
	Moves   []string  `json:"moves"`
	SAN     []string  `json:"san,omitempty"`
	FEN     string    `json:"fen,omitempty"`
	ECO     string    `json:"eco,omitempty"`
	Opening string    `json:"opening,omitempty"`
	Result  string    `json:"result,omitempty"`
	SavedAt time.Time `json:"savedAt"`
}

// SaveGame is sent by a peer with a record; the server answers the sender
// with Saved set.
type SaveGame struct {
	Name   string      `json:"name"`
	Record *GameRecord `json:"record,omitempty"`
	Saved  *bool       `json:"saved,omitempty"`
}

// LoadGame may omit Record, in which case the server resolves it by name.
type LoadGame struct {
	Name   string      `json:"name"`
	Record *GameRecord `json:"record,omitempty"`
	Found  *bool       `json:"found,omitempty"`
}

type SaveSummary struct {
	Name    string    `json:"name"`
	White   string    `json:"white"`
	Black   string    `json:"black"`
	Plies   int       `json:"plies"`
	Result  string    `json:"result,omitempty"`
	SavedAt time.Time `json:"savedAt"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "protocol error"
}
