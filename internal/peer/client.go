package peer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/netchess/internal/match"
	"github.com/park285/netchess/internal/rules"
	"github.com/park285/netchess/pkg/protocol"
)

var (
	ErrNoGame     = errors.New("no game in progress")
	ErrNoIncoming = errors.New("no incoming request")
)

// Event is delivered to the UI for every message that changes what the user
// should see.
type Event struct {
	Type    protocol.Type
	Env     protocol.Envelope
	Outcome *match.Outcome
	Err     error
}

// Sender is the write side used by Client.
type Sender interface {
	SendTyped(ctx context.Context, t protocol.Type, payload any) error
}

// Client tracks lobby and game state of one participant and answers the
// relay's messages. Handle must be called in arrival order.
type Client struct {
	out            Sender
	log            *zap.Logger
	pendingTimeout time.Duration

	mu       sync.Mutex
	name     string
	roster   []protocol.Player
	incoming *protocol.PlayRequest
	game     *match.Match
	handlers []func(Event)
}

type ClientOption func(*Client)

func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func WithMovePendingTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.pendingTimeout = d }
}

func NewClient(out Sender, name string, opts ...ClientOption) *Client {
	c := &Client{out: out, name: name, log: zap.NewNop(), pendingTimeout: match.DefaultPendingTimeout}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Attach subscribes the client to conn.
func (c *Client) Attach(conn *Conn) int { return conn.OnMessage(c.Handle) }

func (c *Client) OnEvent(fn func(Event)) {
	c.mu.Lock()
	c.handlers = append(c.handlers, fn)
	c.mu.Unlock()
}

func (c *Client) emit(ev Event) {
	c.mu.Lock()
	hs := append([]func(Event){}, c.handlers...)
	c.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

func (c *Client) Roster() []protocol.Player {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Player{}, c.roster...)
}

func (c *Client) Incoming() (protocol.PlayRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.incoming == nil {
		return protocol.PlayRequest{}, false
	}
	return *c.incoming, true
}

// Match returns the current game, or nil.
func (c *Client) Match() *match.Match {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.game
}

func (c *Client) Announce(ctx context.Context, name string) error {
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
	return c.out.SendTyped(ctx, protocol.TypeLobbyAnnounce, protocol.LobbyAnnounce{Name: name})
}

func (c *Client) Request(ctx context.Context, target protocol.Player, color string) error {
	return c.out.SendTyped(ctx, protocol.TypePlayRequest, protocol.PlayRequest{
		FromName:       c.Name(),
		ToID:           target.ID,
		ToName:         target.Name,
		PreferredColor: color,
	})
}

// Respond answers the last incoming request.
func (c *Client) Respond(ctx context.Context, accept bool) error {
	c.mu.Lock()
	req := c.incoming
	c.incoming = nil
	name := c.name
	c.mu.Unlock()
	if req == nil {
		return ErrNoIncoming
	}
	resp := protocol.PlayResponse{Accepted: accept, RequesterID: req.FromID, FromName: name}
	if accept {
		resp.OpponentNameForRequester = name
	}
	return c.out.SendTyped(ctx, protocol.TypePlayResponse, resp)
}

// Move validates locally and sends the move. The board changes when the
// relay echoes it back.
func (c *Client) Move(ctx context.Context, from, to rules.Coordinate, promo rules.Kind) error {
	g := c.Match()
	if g == nil {
		return ErrNoGame
	}
	p, err := g.Submit(from, to, promo)
	if err != nil {
		return err
	}
	return c.out.SendTyped(ctx, protocol.TypeMove, p)
}

func (c *Client) Chat(ctx context.Context, text string) error {
	return c.out.SendTyped(ctx, protocol.TypeChat, protocol.Chat{SenderName: c.Name(), Text: text})
}

func (c *Client) Leave(ctx context.Context) error {
	if g := c.Match(); g != nil {
		g.End()
	}
	return c.out.SendTyped(ctx, protocol.TypeLeave, nil)
}

// Resign ends the game in the opponent's favour.
func (c *Client) Resign(ctx context.Context) error {
	g := c.Match()
	if g == nil {
		return ErrNoGame
	}
	return c.out.SendTyped(ctx, protocol.TypeEnd, protocol.Notice{
		Team:   g.Team.String(),
		Winner: g.Team.Opponent().String(),
		Reason: "resign",
	})
}

func (c *Client) Save(ctx context.Context, name string) error {
	g := c.Match()
	if g == nil {
		return ErrNoGame
	}
	rec, err := g.Record(name)
	if err != nil {
		return err
	}
	return c.out.SendTyped(ctx, protocol.TypeSaveGame, protocol.SaveGame{Name: rec.Name, Record: &rec})
}

func (c *Client) Load(ctx context.Context, name string) error {
	return c.out.SendTyped(ctx, protocol.TypeLoadGame, protocol.LoadGame{Name: name})
}

// Handle processes one message from the relay.
func (c *Client) Handle(env protocol.Envelope) {
	ev := Event{Type: env.Type, Env: env}
	switch env.Type {
	case protocol.TypePlayerList:
		var pl protocol.PlayerList
		if ev.Err = env.Decode(&pl); ev.Err == nil {
			c.mu.Lock()
			c.roster = pl.Players
			c.mu.Unlock()
		}
	case protocol.TypePlayRequest:
		var req protocol.PlayRequest
		if ev.Err = env.Decode(&req); ev.Err == nil {
			c.mu.Lock()
			c.incoming = &req
			c.mu.Unlock()
		}
	case protocol.TypePlayResponse:
		var pr protocol.PlayResponse
		if ev.Err = env.Decode(&pr); ev.Err == nil && pr.Withdrawn {
			c.mu.Lock()
			if c.incoming != nil && c.incoming.FromID == pr.RequesterID {
				c.incoming = nil
			}
			c.mu.Unlock()
		}
	case protocol.TypeStart:
		var st protocol.Start
		if ev.Err = env.Decode(&st); ev.Err == nil {
			g, err := match.New(st,
				match.WithPendingTimeout(c.pendingTimeout),
				match.WithPendingExpired(func() { c.emit(Event{Type: protocol.TypeMove, Err: match.ErrMovePending}) }),
			)
			if err != nil {
				ev.Err = err
				break
			}
			c.mu.Lock()
			c.game = g
			c.incoming = nil
			c.mu.Unlock()
		}
	case protocol.TypeMove:
		ev.Outcome, ev.Err = c.applyMove(env)
	case protocol.TypeTimerStart, protocol.TypeTimerSync:
		var clk protocol.Clock
		if ev.Err = env.Decode(&clk); ev.Err == nil {
			if g := c.Match(); g != nil {
				g.SyncClock(clk)
			}
		}
	case protocol.TypeEnd, protocol.TypeLeave:
		if g := c.Match(); g != nil {
			g.End()
		}
	case protocol.TypeLoadGame:
		var lg protocol.LoadGame
		if ev.Err = env.Decode(&lg); ev.Err == nil && lg.Record != nil {
			if g := c.Match(); g != nil {
				ev.Err = g.Load(*lg.Record)
			}
		}
	}
	if ev.Err != nil {
		c.log.Warn("peer_handle_failed", zap.String("type", string(env.Type)), zap.Error(ev.Err))
	}
	c.emit(ev)
}

func (c *Client) applyMove(env protocol.Envelope) (*match.Outcome, error) {
	g := c.Match()
	if g == nil {
		return nil, ErrNoGame
	}
	var p protocol.Move
	if err := env.Decode(&p); err != nil {
		return nil, err
	}
	out, err := g.ApplyRelayed(p)
	if err != nil {
		return nil, err
	}
	// 판정 알림은 수를 둔 쪽이 보낸다.
	if out.Own {
		if t, n, ok := out.Notice(); ok {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := c.out.SendTyped(ctx, t, n); err != nil {
				c.log.Warn("peer_notice_failed", zap.String("type", string(t)), zap.Error(err))
			}
			cancel()
		}
	}
	return &out, nil
}
