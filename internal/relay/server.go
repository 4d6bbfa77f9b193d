// Package relay is the server side: it keeps the lobby, pairs sessions and
// relays game messages between the two sides of each pairing. It never
// checks chess legality.
package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/netchess/internal/archive"
	"github.com/park285/netchess/internal/lobby"
	"github.com/park285/netchess/internal/msgcat"
	"github.com/park285/netchess/internal/record"
	"github.com/park285/netchess/pkg/protocol"
)

type Options struct {
	Logger       *zap.Logger
	Catalog      *msgcat.Catalog
	Saves        archive.SaveStore  // optional
	Results      archive.ResultSink // optional
	WriteTimeout time.Duration
	ReadLimit    int64
	Now          func() time.Time

	// OriginPatterns lists extra browser origins allowed besides the
	// request's own host. AllowAnyOrigin disables the check.
	OriginPatterns []string
	AllowAnyOrigin bool
}

type Server struct {
	reg     *lobby.Registry
	log     *zap.Logger
	msgs    *msgcat.Catalog
	saves   archive.SaveStore
	results archive.ResultSink
	now     func() time.Time

	writeTimeout time.Duration
	readLimit    int64
	accept       websocket.AcceptOptions

	gamesMu sync.Mutex
	games   map[string]*game

	bg sync.WaitGroup
}

func NewServer(opts Options) *Server {
	s := &Server{
		reg:          lobby.NewRegistry(),
		log:          opts.Logger,
		msgs:         opts.Catalog,
		saves:        opts.Saves,
		results:      opts.Results,
		now:          opts.Now,
		writeTimeout: opts.WriteTimeout,
		readLimit:    opts.ReadLimit,
		accept: websocket.AcceptOptions{
			OriginPatterns:     append([]string(nil), opts.OriginPatterns...),
			InsecureSkipVerify: opts.AllowAnyOrigin,
		},
		games: make(map[string]*game),
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.msgs == nil {
		s.msgs = msgcat.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = 5 * time.Second
	}
	if s.readLimit <= 0 {
		s.readLimit = 1 << 20
	}
	return s
}

func (s *Server) Registry() *lobby.Registry { return s.reg }

// Wait blocks until background persistence has finished.
func (s *Server) Wait() { s.bg.Wait() }

// Connect registers a new connection.
func (s *Server) Connect(t lobby.Transport) *lobby.Session {
	sess := s.reg.Register(t)
	s.log.Info("relay_connect", zap.String("session", sess.ID))
	return sess
}

// Disconnect runs cleanup for a connection that ended. It is safe to call
// more than once.
func (s *Server) Disconnect(ctx context.Context, sess *lobby.Session) {
	d, ok := s.reg.Remove(sess.ID)
	if !ok {
		return
	}
	s.log.Info("relay_disconnect", zap.String("session", sess.ID), zap.String("name", d.Name))
	if d.Partner != nil {
		s.send(ctx, d.Partner, protocol.MustNew(protocol.TypeLeave, protocol.Notice{
			Reason: s.msgs.Text("peer.disconnected", map[string]any{"Name": d.Name}),
		}))
		s.endGame(d.GameID, d.Partner.ID, "leave")
	}
	for _, req := range d.Dropped {
		if req.ToID == sess.ID {
			// 응답을 기다리던 요청자에게 알린다.
			if from, ok := s.reg.Session(req.FromID); ok {
				s.deny(ctx, from, "target_left", s.msgs.Text("request.target_left", map[string]any{"Name": d.Name}))
			}
			continue
		}
		s.withdraw(ctx, req, "request.requester_left")
	}
	s.broadcastRoster(ctx)
}

// Handle processes one message read from sess. Errors returned here are
// protocol errors; the connection stays open.
func (s *Server) Handle(ctx context.Context, sess *lobby.Session, env protocol.Envelope) error {
	switch env.Type {
	case protocol.TypeLobbyAnnounce:
		return s.onAnnounce(ctx, sess, env)
	case protocol.TypePlayRequest:
		return s.onPlayRequest(ctx, sess, env)
	case protocol.TypePlayResponse:
		return s.onPlayResponse(ctx, sess, env)
	case protocol.TypeMove:
		return s.onMove(ctx, sess, env)
	case protocol.TypeCheck, protocol.TypeCheckmate, protocol.TypeStalemate, protocol.TypeEnd:
		return s.onVerdict(ctx, sess, env)
	case protocol.TypeChat:
		return s.onChat(ctx, sess, env)
	case protocol.TypeLeave:
		s.onLeave(ctx, sess)
		return nil
	case protocol.TypeSaveGame:
		return s.onSave(ctx, sess, env)
	case protocol.TypeLoadGame:
		return s.onLoad(ctx, sess, env)
	}
	return s.reject(ctx, sess, "unexpected", s.msgs.Text("error.unexpected", map[string]any{"Type": string(env.Type)}))
}

func (s *Server) onAnnounce(ctx context.Context, sess *lobby.Session, env protocol.Envelope) error {
	var p protocol.LobbyAnnounce
	if err := env.Decode(&p); err != nil {
		return s.malformed(ctx, sess, err)
	}
	snap, err := s.reg.Announce(sess.ID, p.Name)
	if err != nil {
		return s.malformed(ctx, sess, err)
	}
	s.log.Info("relay_announce", zap.String("session", sess.ID), zap.String("name", snap.Name))
	s.broadcastRoster(ctx)
	return nil
}

func (s *Server) onPlayRequest(ctx context.Context, sess *lobby.Session, env protocol.Envelope) error {
	var p protocol.PlayRequest
	if err := env.Decode(&p); err != nil {
		return s.malformed(ctx, sess, err)
	}
	req, target, err := s.reg.Request(sess.ID, strings.TrimSpace(p.ToID), lobby.ParseColorChoice(p.PreferredColor))
	if err != nil {
		code, key := denyReason(err)
		name := p.ToName
		if snap, ok := s.reg.Find(p.ToID); ok {
			name = snap.Name
		}
		s.deny(ctx, sess, code, s.msgs.Text(key, map[string]any{"Name": name}))
		return nil
	}
	s.log.Info("relay_request", zap.String("from", req.FromID), zap.String("to", req.ToID))
	s.send(ctx, target, protocol.MustNew(protocol.TypePlayRequest, protocol.PlayRequest{
		FromID:         req.FromID,
		FromName:       req.FromName,
		ToID:           req.ToID,
		ToName:         req.ToName,
		PreferredColor: string(req.Color),
	}))
	return nil
}

func denyReason(err error) (code, key string) {
	switch {
	case errors.Is(err, lobby.ErrSelfRequest):
		return "self", "request.self"
	case errors.Is(err, lobby.ErrAlreadyPaired):
		return "target_paired", "request.target_paired"
	case errors.Is(err, lobby.ErrAlreadyPending):
		return "pending", "request.pending"
	case errors.Is(err, lobby.ErrNotAnnounced):
		return "unannounced", "request.unannounced"
	case errors.Is(err, lobby.ErrNoPendingRequest):
		return "stale", "request.stale"
	}
	return "target_missing", "request.target_missing"
}

func (s *Server) onPlayResponse(ctx context.Context, sess *lobby.Session, env protocol.Envelope) error {
	var p protocol.PlayResponse
	if err := env.Decode(&p); err != nil {
		return s.malformed(ctx, sess, err)
	}
	me, _ := s.reg.Find(sess.ID)

	if !p.Accepted {
		req, from, err := s.reg.Decline(sess.ID, p.RequesterID)
		if err != nil {
			s.deny(ctx, sess, "stale", s.msgs.Text("request.stale", map[string]any{"Name": p.FromName}))
			return nil
		}
		s.log.Info("relay_declined", zap.String("from", req.FromID), zap.String("to", req.ToID))
		if from != nil {
			s.send(ctx, from, protocol.MustNew(protocol.TypePlayResponse, protocol.PlayResponse{
				Accepted:    false,
				RequesterID: req.FromID,
				FromName:    me.Name,
			}))
		}
		return nil
	}

	pr, err := s.reg.Accept(sess.ID, p.RequesterID)
	if err != nil {
		code, key := denyReason(err)
		s.deny(ctx, sess, code, s.msgs.Text(key, map[string]any{"Name": p.FromName}))
		return nil
	}
	now := s.now()
	g := newGame(pr.GameID, pr.White.ID, pr.WhiteName, pr.Black.ID, pr.BlackName, now)
	s.gamesMu.Lock()
	s.games[g.id] = g
	s.gamesMu.Unlock()
	s.log.Info("relay_pair", zap.String("game", g.id), zap.String("white", pr.WhiteName), zap.String("black", pr.BlackName))

	requester := pr.White
	if pr.Requester != pr.White.ID {
		requester = pr.Black
	}
	s.send(ctx, requester, protocol.MustNew(protocol.TypePlayResponse, protocol.PlayResponse{
		Accepted:                 true,
		RequesterID:              requester.ID,
		FromName:                 me.Name,
		OpponentNameForRequester: me.Name,
	}))

	s.send(ctx, pr.White, protocol.MustNew(protocol.TypeStart, protocol.Start{
		GameID: g.id, Team: protocol.TeamWhite, PlayerName: pr.WhiteName, OpponentName: pr.BlackName,
	}))
	s.send(ctx, pr.Black, protocol.MustNew(protocol.TypeStart, protocol.Start{
		GameID: g.id, Team: protocol.TeamBlack, PlayerName: pr.BlackName, OpponentName: pr.WhiteName,
	}))
	clk := protocol.MustNew(protocol.TypeTimerStart, g.clock(now))
	s.send(ctx, pr.White, clk)
	s.send(ctx, pr.Black, clk)
	s.settleDropped(ctx, pr)
	s.broadcastRoster(ctx)
	return nil
}

// settleDropped tells third parties about requests voided by a pairing.
// A requester waiting on either side is denied; a target holding a request
// from either side gets a withdrawal.
func (s *Server) settleDropped(ctx context.Context, pr lobby.Pairing) {
	paired := func(id string) bool { return id == pr.White.ID || id == pr.Black.ID }
	for _, req := range pr.Dropped {
		switch {
		case paired(req.FromID) && paired(req.ToID):
			continue
		case paired(req.ToID):
			if from, ok := s.reg.Session(req.FromID); ok {
				s.deny(ctx, from, "target_paired", s.msgs.Text("request.target_paired", map[string]any{"Name": req.ToName}))
			}
		default:
			s.withdraw(ctx, req, "request.withdrawn")
		}
	}
}

// withdraw notifies the target of req that the request no longer stands.
func (s *Server) withdraw(ctx context.Context, req lobby.Request, key string) {
	to, ok := s.reg.Session(req.ToID)
	if !ok {
		return
	}
	s.send(ctx, to, protocol.MustNew(protocol.TypePlayResponse, protocol.PlayResponse{
		Accepted:    false,
		Withdrawn:   true,
		RequesterID: req.FromID,
		FromName:    req.FromName,
		Reason:      s.msgs.Text(key, map[string]any{"Name": req.FromName}),
	}))
}

// pairOf returns the partner and game of a paired session, or denies.
func (s *Server) pairOf(ctx context.Context, sess *lobby.Session) (*lobby.Session, *game, bool) {
	snap, ok := s.reg.Find(sess.ID)
	partner, pok := s.reg.Partner(sess.ID)
	if !ok || !pok {
		s.deny(ctx, sess, "not_paired", s.msgs.Text("game.not_paired", nil))
		return nil, nil, false
	}
	g := s.game(snap.GameID)
	if g == nil {
		s.deny(ctx, sess, "not_paired", s.msgs.Text("game.not_paired", nil))
		return nil, nil, false
	}
	return partner, g, true
}

func (s *Server) game(id string) *game {
	s.gamesMu.Lock()
	defer s.gamesMu.Unlock()
	return s.games[id]
}

func (s *Server) dropGame(id string) {
	s.gamesMu.Lock()
	delete(s.games, id)
	s.gamesMu.Unlock()
}

// relayBoth sends env unchanged to the origin first, then to its partner.
func (s *Server) relayBoth(ctx context.Context, origin, partner *lobby.Session, env protocol.Envelope) {
	s.send(ctx, origin, env)
	s.send(ctx, partner, env)
}

func (s *Server) onMove(ctx context.Context, sess *lobby.Session, env protocol.Envelope) error {
	var p protocol.Move
	if err := env.Decode(&p); err != nil {
		return s.malformed(ctx, sess, err)
	}
	partner, g, ok := s.pairOf(ctx, sess)
	if !ok {
		return nil
	}
	now := s.now()
	clk := g.recordMove(p.UCI(), now)
	s.log.Debug("relay_move", zap.String("game", g.id), zap.String("move", p.UCI()))
	s.relayBoth(ctx, sess, partner, protocol.Envelope{Type: protocol.TypeMove, Payload: env.Payload})
	tick := protocol.MustNew(protocol.TypeTimerSync, clk)
	s.send(ctx, sess, tick)
	s.send(ctx, partner, tick)
	return nil
}

func (s *Server) onVerdict(ctx context.Context, sess *lobby.Session, env protocol.Envelope) error {
	var n protocol.Notice
	if len(env.Payload) > 0 {
		if err := env.Decode(&n); err != nil {
			return s.malformed(ctx, sess, err)
		}
	}
	partner, g, ok := s.pairOf(ctx, sess)
	if !ok {
		return nil
	}
	if env.Type.IsTerminal() && !g.finish() {
		// 양쪽이 같은 판정을 보낸 경우 한 번만 처리
		return nil
	}
	s.relayBoth(ctx, sess, partner, protocol.Envelope{Type: env.Type, Payload: env.Payload})
	if env.Type.IsTerminal() {
		s.persist(g, resultOf(env.Type, n), strings.ToLower(string(env.Type)))
	}
	return nil
}

func resultOf(t protocol.Type, n protocol.Notice) string {
	if t == protocol.TypeStalemate {
		return record.ResultDraw
	}
	switch strings.ToUpper(n.Winner) {
	case protocol.TeamWhite:
		return record.ResultWhite
	case protocol.TeamBlack:
		return record.ResultBlack
	case "DRAW":
		return record.ResultDraw
	}
	return ""
}

func (s *Server) onChat(ctx context.Context, sess *lobby.Session, env protocol.Envelope) error {
	var c protocol.Chat
	if err := env.Decode(&c); err != nil {
		return s.malformed(ctx, sess, err)
	}
	partner, ok := s.reg.Partner(sess.ID)
	if !ok {
		s.deny(ctx, sess, "not_paired", s.msgs.Text("game.not_paired", nil))
		return nil
	}
	s.relayBoth(ctx, sess, partner, protocol.Envelope{Type: protocol.TypeChat, Payload: env.Payload})
	return nil
}

// onLeave unpairs, tells the partner, and drops the leaving session.
func (s *Server) onLeave(ctx context.Context, sess *lobby.Session) {
	snap, _ := s.reg.Find(sess.ID)
	partner, gameID, err := s.reg.Unpair(sess.ID)
	if err == nil && partner != nil {
		s.send(ctx, partner, protocol.MustNew(protocol.TypeLeave, protocol.Notice{
			Reason: s.msgs.Text("peer.left", map[string]any{"Name": snap.Name}),
		}))
		s.endGame(gameID, partner.ID, "leave")
	}
	s.log.Info("relay_leave", zap.String("session", sess.ID), zap.String("name", snap.Name))
	s.Disconnect(ctx, sess)
	_ = sess.Close("leave")
}

// endGame finishes a game abandoned by one side and forgets it. winnerID is
// the side that stayed.
func (s *Server) endGame(gameID, winnerID, termination string) {
	g := s.game(gameID)
	s.dropGame(gameID)
	if g == nil || !g.finish() {
		return
	}
	result := ""
	switch g.teamOf(winnerID) {
	case protocol.TeamWhite:
		result = record.ResultWhite
	case protocol.TeamBlack:
		result = record.ResultBlack
	}
	s.persist(g, result, termination)
}

// persist hands the finished game to the result sink off the read loop.
func (s *Server) persist(g *game, result, termination string) {
	if s.results == nil {
		return
	}
	moves, white, black := g.snapshot()
	res := archive.GameResult{
		GameID:      g.id,
		WhiteName:   white,
		BlackName:   black,
		Result:      result,
		Termination: termination,
		Moves:       moves,
		StartedAt:   g.startedAt,
		EndedAt:     s.now(),
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.results.SaveResult(ctx, res); err != nil {
			s.log.Error("archive_result_failed", zap.String("game", res.GameID), zap.Error(err))
			return
		}
		s.log.Info("archive_result", zap.String("game", res.GameID), zap.String("result", res.Result))
	}()
}

func (s *Server) onSave(ctx context.Context, sess *lobby.Session, env protocol.Envelope) error {
	var p protocol.SaveGame
	if err := env.Decode(&p); err != nil {
		return s.malformed(ctx, sess, err)
	}
	partner, g, ok := s.pairOf(ctx, sess)
	if !ok {
		return nil
	}
	name := record.SanitizeName(p.Name)
	rec := p.Record
	if rec == nil {
		moves, white, black := g.snapshot()
		built, err := record.Build(name, white, black, moves, "", s.now())
		if err != nil {
			s.ackSave(ctx, sess, name, false)
			return nil
		}
		rec = &built
	}
	rec.Name = name

	saved := false
	if s.saves != nil && name != "" {
		ok, err := s.saves.Save(ctx, *rec)
		if err != nil {
			s.log.Warn("archive_save_failed", zap.String("name", name), zap.Error(err))
		}
		saved = ok && err == nil
	}
	s.log.Info("archive_save", zap.String("name", name), zap.Bool("saved", saved))
	s.ackSave(ctx, sess, name, saved)
	s.send(ctx, partner, protocol.MustNew(protocol.TypeSaveGame, protocol.SaveGame{Name: name, Record: rec}))
	return nil
}

func (s *Server) ackSave(ctx context.Context, sess *lobby.Session, name string, saved bool) {
	s.send(ctx, sess, protocol.MustNew(protocol.TypeSaveGame, protocol.SaveGame{Name: name, Saved: &saved}))
}

func (s *Server) onLoad(ctx context.Context, sess *lobby.Session, env protocol.Envelope) error {
	var p protocol.LoadGame
	if err := env.Decode(&p); err != nil {
		return s.malformed(ctx, sess, err)
	}
	partner, g, ok := s.pairOf(ctx, sess)
	if !ok {
		return nil
	}
	rec := p.Record
	if rec == nil && s.saves != nil {
		loaded, err := s.saves.Load(ctx, p.Name)
		if err == nil {
			rec = &loaded
		} else if !errors.Is(err, archive.ErrNotFound) {
			s.log.Warn("archive_load_failed", zap.String("name", p.Name), zap.Error(err))
		}
	}
	if rec == nil {
		found := false
		s.send(ctx, sess, protocol.MustNew(protocol.TypeLoadGame, protocol.LoadGame{Name: p.Name, Found: &found}))
		return nil
	}
	found := true
	clk := g.replace(rec.Moves, s.now())
	s.relayBoth(ctx, sess, partner, protocol.MustNew(protocol.TypeLoadGame, protocol.LoadGame{Name: rec.Name, Record: rec, Found: &found}))
	tick := protocol.MustNew(protocol.TypeTimerSync, clk)
	s.send(ctx, sess, tick)
	s.send(ctx, partner, tick)
	return nil
}

func (s *Server) broadcastRoster(ctx context.Context) {
	for _, m := range s.reg.LobbyMembers() {
		s.send(ctx, m, protocol.MustNew(protocol.TypePlayerList, protocol.PlayerList{Players: s.reg.Roster(m.ID)}))
	}
}

func (s *Server) deny(ctx context.Context, sess *lobby.Session, code, reason string) {
	s.send(ctx, sess, protocol.MustNew(protocol.TypeRequestDenied, protocol.RequestDenied{Code: code, Reason: reason}))
}

func (s *Server) reject(ctx context.Context, sess *lobby.Session, code, msg string) error {
	s.send(ctx, sess, protocol.MustNew(protocol.TypeError, protocol.Error{Code: code, Message: msg}))
	return protocol.Error{Code: code, Message: msg}
}

func (s *Server) malformed(ctx context.Context, sess *lobby.Session, err error) error {
	s.send(ctx, sess, protocol.MustNew(protocol.TypeError, protocol.Error{Code: "malformed", Message: s.msgs.Text("error.malformed", nil)}))
	return err
}

// send writes to one session with the configured timeout. A failed write is
// logged; the reader of that session notices the broken connection.
func (s *Server) send(ctx context.Context, to *lobby.Session, env protocol.Envelope) {
	if to == nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	if err := to.Send(wctx, env); err != nil {
		s.log.Warn("relay_send_failed", zap.String("to", to.ID), zap.String("type", string(env.Type)), zap.Error(err))
	}
}
