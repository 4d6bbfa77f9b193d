package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/netchess/internal/match"
	"github.com/park285/netchess/internal/msgcat"
	"github.com/park285/netchess/internal/opponent"
	"github.com/park285/netchess/internal/peer"
	"github.com/park285/netchess/internal/record"
	"github.com/park285/netchess/internal/rules"
	"github.com/park285/netchess/pkg/protocol"
)

// console turns stdin commands into client actions and prints events.
type console struct {
	client *peer.Client
	msgs   *msgcat.Catalog
	engine opponent.Engine
	log    *zap.Logger
	out    io.Writer

	mu   sync.Mutex
	auto bool
}

type command struct {
	name string
	args []string
}

func parseCommand(line string) (command, bool) {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return command{}, false
	}
	cmd := command{name: strings.ToLower(parts[0]), args: parts[1:]}
	// "e2e4" 처럼 수만 입력해도 move
	if len(parts) == 1 {
		if _, _, _, err := record.ParseUCI(parts[0]); err == nil {
			return command{name: "move", args: parts}, true
		}
	}
	return cmd, true
}

func (c *console) printf(format string, a ...any) {
	fmt.Fprintf(c.out, format+"\n", a...)
}

func (c *console) text(key string, data map[string]any) string { return c.msgs.Text(key, data) }

func helpText() string {
	return strings.Join([]string{
		"commands:",
		"  list                         players in the lobby",
		"  play <n|name> [white|black|random]",
		"  accept | decline             answer the last request",
		"  e2e4 | move e7e8q            play a move",
		"  select e2                    show moves from a square",
		"  board | clock",
		"  chat <text>",
		"  auto on|off                  let the computer play for you",
		"  resign | leave",
		"  save <name> | load <name>",
		"  quit",
	}, "\n")
}

// run handles one command. It returns false when the user quits.
func (c *console) run(ctx context.Context, cmd command) bool {
	var err error
	switch cmd.name {
	case "help", "?":
		c.printf("%s", helpText())
	case "list":
		c.printRoster()
	case "play":
		err = c.play(ctx, cmd.args)
	case "accept":
		err = c.client.Respond(ctx, true)
	case "decline":
		err = c.client.Respond(ctx, false)
	case "move":
		err = c.move(ctx, cmd.args)
	case "select":
		err = c.selectSquare(cmd.args)
	case "board":
		c.printBoard()
	case "clock":
		c.printClock()
	case "chat":
		err = c.client.Chat(ctx, strings.Join(cmd.args, " "))
	case "auto":
		c.mu.Lock()
		c.auto = len(cmd.args) == 0 || strings.EqualFold(cmd.args[0], "on")
		on := c.auto
		c.mu.Unlock()
		c.printf("computer play: %v", on)
		if on {
			go c.maybeAutoMove(ctx)
		}
	case "resign":
		err = c.client.Resign(ctx)
	case "leave":
		err = c.client.Leave(ctx)
	case "save":
		if len(cmd.args) == 0 {
			err = errors.New("usage: save <name>")
			break
		}
		err = c.client.Save(ctx, strings.Join(cmd.args, " "))
	case "load":
		if len(cmd.args) == 0 {
			err = errors.New("usage: load <name>")
			break
		}
		err = c.client.Load(ctx, strings.Join(cmd.args, " "))
	case "quit", "exit":
		return false
	default:
		c.printf("unknown command %q. Try 'help'.", cmd.name)
	}
	if err != nil {
		c.printf("! %v", err)
	}
	return true
}

func (c *console) printRoster() {
	players := c.client.Roster()
	if len(players) == 0 {
		c.printf("lobby is empty")
		return
	}
	for i, p := range players {
		c.printf("  %d. %s", i+1, p.Name)
	}
}

func (c *console) play(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: play <n|name> [white|black|random]")
	}
	players := c.client.Roster()
	var target *protocol.Player
	if n, err := strconv.Atoi(args[0]); err == nil && n >= 1 && n <= len(players) {
		target = &players[n-1]
	} else {
		for i := range players {
			if strings.EqualFold(players[i].Name, args[0]) {
				target = &players[i]
				break
			}
		}
	}
	if target == nil {
		return fmt.Errorf("no player %q in the lobby", args[0])
	}
	color := protocol.ColorRandom
	if len(args) > 1 {
		color = strings.ToLower(args[1])
	}
	return c.client.Request(ctx, *target, color)
}

func (c *console) move(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: move e2e4")
	}
	from, to, promo, err := record.ParseUCI(args[0])
	if err != nil {
		return err
	}
	return c.client.Move(ctx, from, to, promo)
}

func (c *console) selectSquare(args []string) error {
	g := c.client.Match()
	if g == nil {
		return peer.ErrNoGame
	}
	if len(args) == 0 {
		return errors.New("usage: select e2")
	}
	sq, err := rules.ParseCoordinate(args[0])
	if err != nil {
		return err
	}
	moves := g.Select(sq)
	if len(moves) == 0 {
		c.printf("no moves from %s", sq)
		return nil
	}
	names := make([]string, 0, len(moves))
	for _, m := range moves {
		names = append(names, m.UCI())
	}
	c.printf("%s: %s", sq, strings.Join(names, " "))
	return nil
}

func (c *console) printBoard() {
	g := c.client.Match()
	if g == nil {
		c.printf("%s", c.text("game.not_paired", nil))
		return
	}
	c.printf("%s", g.Board().String())
	c.printf("%s to move", g.Board().Turn)
}

func (c *console) printClock() {
	g := c.client.Match()
	if g == nil {
		return
	}
	c.printf("white %s  black %s",
		g.Elapsed(rules.White).Truncate(time.Second), g.Elapsed(rules.Black).Truncate(time.Second))
}

// onEvent prints what the relay told us and triggers computer play.
func (c *console) onEvent(ctx context.Context, ev peer.Event) {
	if ev.Err != nil {
		if errors.Is(ev.Err, match.ErrStateDesync) {
			c.printf("! %s", c.text("game.desync", nil))
		} else {
			c.printf("! %s: %v", ev.Type, ev.Err)
		}
		return
	}
	env := ev.Env
	switch ev.Type {
	case protocol.TypePlayerList:
		c.printf("lobby: %d other player(s). 'list' to show.", len(c.client.Roster()))
	case protocol.TypePlayRequest:
		if req, ok := c.client.Incoming(); ok {
			c.printf("%s wants to play (%s). accept or decline?", req.FromName, req.PreferredColor)
		}
	case protocol.TypePlayResponse:
		var pr protocol.PlayResponse
		if env.Decode(&pr) != nil {
			break
		}
		switch {
		case pr.Withdrawn:
			c.printf("%s", pr.Reason)
		case !pr.Accepted:
			c.printf("%s", c.text("response.declined", map[string]any{"Name": pr.FromName}))
		default:
			c.printf("%s", c.text("response.accepted", map[string]any{"Name": pr.OpponentNameForRequester}))
		}
	case protocol.TypeRequestDenied:
		var d protocol.RequestDenied
		if env.Decode(&d) == nil {
			c.printf("! %s", d.Reason)
		}
	case protocol.TypeStart:
		if g := c.client.Match(); g != nil {
			c.printf("%s", c.text("game.started", map[string]any{"Team": g.Team, "Opponent": g.Opponent}))
			c.printBoard()
		}
		go c.maybeAutoMove(ctx)
	case protocol.TypeMove:
		if ev.Outcome != nil {
			c.printf("%s played %s", ev.Outcome.Mover, ev.Outcome.Move)
			c.printBoard()
		}
		go c.maybeAutoMove(ctx)
	case protocol.TypeCheck:
		var n protocol.Notice
		_ = env.Decode(&n)
		c.printf("%s", c.text("game.check", map[string]any{"Team": n.Team}))
	case protocol.TypeCheckmate:
		var n protocol.Notice
		_ = env.Decode(&n)
		c.printf("%s", c.text("game.checkmate", map[string]any{"Winner": n.Winner}))
	case protocol.TypeStalemate:
		c.printf("%s", c.text("game.stalemate", nil))
	case protocol.TypeEnd:
		c.printf("%s", c.text("game.ended", nil))
	case protocol.TypeLeave:
		var n protocol.Notice
		if env.Decode(&n) == nil && n.Reason != "" {
			c.printf("%s", n.Reason)
		}
	case protocol.TypeChat:
		var m protocol.Chat
		if env.Decode(&m) == nil {
			c.printf("[%s] %s", m.SenderName, m.Text)
		}
	case protocol.TypeSaveGame:
		var s protocol.SaveGame
		if env.Decode(&s) == nil && s.Saved != nil {
			key := "game.saved"
			if !*s.Saved {
				key = "game.save_failed"
			}
			c.printf("%s", c.text(key, map[string]any{"Name": s.Name}))
		}
	case protocol.TypeLoadGame:
		var l protocol.LoadGame
		if env.Decode(&l) == nil {
			if l.Record == nil {
				c.printf("%s", c.text("game.load_missing", map[string]any{"Name": l.Name}))
				return
			}
			c.printf("%s", c.text("game.loaded", map[string]any{"Name": l.Name}))
			c.printBoard()
			go c.maybeAutoMove(ctx)
		}
	case protocol.TypeError:
		var e protocol.Error
		if env.Decode(&e) == nil {
			c.printf("! %s", e.Message)
		}
	}
}

func (c *console) maybeAutoMove(ctx context.Context) {
	c.mu.Lock()
	auto := c.auto
	c.mu.Unlock()
	g := c.client.Match()
	if !auto || c.engine == nil || g == nil || g.Over() || !g.MyTurn() || g.Pending() {
		return
	}
	mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	mv, err := c.engine.NextMove(mctx, g.Board(), g.Team)
	if err != nil {
		c.log.Warn("engine_move_failed", zap.Error(err))
		return
	}
	if err := c.client.Move(ctx, mv.From, mv.To, mv.Promotion); err != nil {
		c.log.Warn("engine_move_rejected", zap.String("move", mv.UCI()), zap.Error(err))
	}
}
