package relay

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/park285/netchess/internal/archive"
	"github.com/park285/netchess/internal/lobby"
	"github.com/park285/netchess/pkg/protocol"
)

type fakeTransport struct {
	mu     sync.Mutex
	got    []protocol.Envelope
	closed bool
}

func (f *fakeTransport) Send(_ context.Context, env protocol.Envelope) error {
	f.mu.Lock()
	f.got = append(f.got, env)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Close(string) error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) all(t protocol.Type) []protocol.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.Envelope
	for _, e := range f.got {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	f.got = nil
	f.mu.Unlock()
}

type fakeResults struct {
	mu  sync.Mutex
	got []archive.GameResult
}

func (f *fakeResults) SaveResult(_ context.Context, g archive.GameResult) error {
	f.mu.Lock()
	f.got = append(f.got, g)
	f.mu.Unlock()
	return nil
}

type member struct {
	t    *fakeTransport
	sess *lobby.Session
}

func join(t *testing.T, s *Server, name string) member {
	t.Helper()
	ft := &fakeTransport{}
	sess := s.Connect(ft)
	if err := s.Handle(context.Background(), sess, protocol.MustNew(protocol.TypeLobbyAnnounce, protocol.LobbyAnnounce{Name: name})); err != nil {
		t.Fatalf("announce %s: %v", name, err)
	}
	return member{t: ft, sess: sess}
}

func send(t *testing.T, s *Server, p member, typ protocol.Type, payload any) {
	t.Helper()
	_ = s.Handle(context.Background(), p.sess, protocol.MustNew(typ, payload))
}

func pair(t *testing.T, s *Server, a, b member, color string) {
	t.Helper()
	send(t, s, a, protocol.TypePlayRequest, protocol.PlayRequest{ToID: b.sess.ID, PreferredColor: color})
	if len(b.t.all(protocol.TypePlayRequest)) == 0 {
		t.Fatalf("request not forwarded")
	}
	send(t, s, b, protocol.TypePlayResponse, protocol.PlayResponse{Accepted: true, RequesterID: a.sess.ID})
}

func decodeStart(t *testing.T, p member) protocol.Start {
	t.Helper()
	starts := p.t.all(protocol.TypeStart)
	if len(starts) != 1 {
		t.Fatalf("want exactly one START, got %d", len(starts))
	}
	var st protocol.Start
	if err := starts[0].Decode(&st); err != nil {
		t.Fatalf("decode start: %v", err)
	}
	return st
}

func TestRosterBroadcastOnAnnounce(t *testing.T) {
	s := NewServer(Options{})
	a := join(t, s, "alice")
	_ = join(t, s, "bob")

	lists := a.t.all(protocol.TypePlayerList)
	if len(lists) == 0 {
		t.Fatalf("alice got no roster")
	}
	var pl protocol.PlayerList
	if err := lists[len(lists)-1].Decode(&pl); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(pl.Players) != 1 || pl.Players[0].Name != "bob" {
		t.Fatalf("roster = %+v", pl.Players)
	}
}

func TestAcceptStartsComplementaryTeams(t *testing.T) {
	s := NewServer(Options{})
	a := join(t, s, "alice")
	b := join(t, s, "bob")
	pair(t, s, a, b, protocol.ColorWhite)

	resp := a.t.all(protocol.TypePlayResponse)
	if len(resp) != 1 {
		t.Fatalf("requester responses = %d", len(resp))
	}
	var pr protocol.PlayResponse
	if err := resp[0].Decode(&pr); err != nil || !pr.Accepted || pr.OpponentNameForRequester != "bob" {
		t.Fatalf("response = %+v err=%v", pr, err)
	}

	sa, sb := decodeStart(t, a), decodeStart(t, b)
	if sa.Team != protocol.TeamWhite || sb.Team != protocol.TeamBlack {
		t.Fatalf("teams = %s/%s", sa.Team, sb.Team)
	}
	if sa.GameID == "" || sa.GameID != sb.GameID {
		t.Fatalf("game ids %q %q", sa.GameID, sb.GameID)
	}
	if sa.OpponentName != "bob" || sb.OpponentName != "alice" {
		t.Fatalf("names %+v %+v", sa, sb)
	}
	if len(a.t.all(protocol.TypeTimerStart)) != 1 || len(b.t.all(protocol.TypeTimerStart)) != 1 {
		t.Fatalf("timer start missing")
	}
}

func TestRequestToPairedTargetDenied(t *testing.T) {
	s := NewServer(Options{})
	a := join(t, s, "alice")
	b := join(t, s, "bob")
	c := join(t, s, "carol")
	pair(t, s, a, b, protocol.ColorRandom)

	send(t, s, c, protocol.TypePlayRequest, protocol.PlayRequest{ToID: a.sess.ID})
	denied := c.t.all(protocol.TypeRequestDenied)
	if len(denied) != 1 {
		t.Fatalf("denials = %d", len(denied))
	}
	var d protocol.RequestDenied
	_ = denied[0].Decode(&d)
	if d.Code != "target_paired" || d.Reason == "" {
		t.Fatalf("denial = %+v", d)
	}
	if n := len(a.t.all(protocol.TypePlayRequest)); n != 0 {
		t.Fatalf("paired target received %d requests", n)
	}
}

func TestSenderIdentityIsNotTrusted(t *testing.T) {
	s := NewServer(Options{})
	a := join(t, s, "alice")
	b := join(t, s, "bob")
	send(t, s, a, protocol.TypePlayRequest, protocol.PlayRequest{FromID: "forged", FromName: "mallory", ToID: b.sess.ID})

	var req protocol.PlayRequest
	_ = b.t.all(protocol.TypePlayRequest)[0].Decode(&req)
	if req.FromID != a.sess.ID || req.FromName != "alice" {
		t.Fatalf("forwarded request = %+v", req)
	}
}

func TestDeclineNotifiesRequester(t *testing.T) {
	s := NewServer(Options{})
	a := join(t, s, "alice")
	b := join(t, s, "bob")
	send(t, s, a, protocol.TypePlayRequest, protocol.PlayRequest{ToID: b.sess.ID})
	send(t, s, b, protocol.TypePlayResponse, protocol.PlayResponse{Accepted: false, RequesterID: a.sess.ID})

	resp := a.t.all(protocol.TypePlayResponse)
	if len(resp) != 1 {
		t.Fatalf("responses = %d", len(resp))
	}
	var pr protocol.PlayResponse
	_ = resp[0].Decode(&pr)
	if pr.Accepted {
		t.Fatalf("decline delivered as accept")
	}
	if len(a.t.all(protocol.TypeStart)) != 0 {
		t.Fatalf("decline started a game")
	}
}

func TestMoveEchoedUnchangedToBoth(t *testing.T) {
	s := NewServer(Options{})
	a := join(t, s, "alice")
	b := join(t, s, "bob")
	pair(t, s, a, b, protocol.ColorWhite)

	env := protocol.MustNew(protocol.TypeMove, protocol.Move{From: "e2", To: "e4"})
	if err := s.Handle(context.Background(), a.sess, env); err != nil {
		t.Fatalf("move: %v", err)
	}
	ma, mb := a.t.all(protocol.TypeMove), b.t.all(protocol.TypeMove)
	if len(ma) != 1 || len(mb) != 1 {
		t.Fatalf("moves %d/%d", len(ma), len(mb))
	}
	if !bytes.Equal(ma[0].Payload, env.Payload) || !bytes.Equal(mb[0].Payload, env.Payload) {
		t.Fatalf("payload changed in relay")
	}

	var clk protocol.Clock
	syncs := b.t.all(protocol.TypeTimerSync)
	if len(syncs) != 1 {
		t.Fatalf("syncs = %d", len(syncs))
	}
	_ = syncs[0].Decode(&clk)
	if clk.Turn != protocol.TeamBlack {
		t.Fatalf("clock turn = %s", clk.Turn)
	}
}

func TestMoveWithoutPartnerDenied(t *testing.T) {
	s := NewServer(Options{})
	a := join(t, s, "alice")
	send(t, s, a, protocol.TypeMove, protocol.Move{From: "e2", To: "e4"})
	if len(a.t.all(protocol.TypeRequestDenied)) != 1 {
		t.Fatalf("unpaired move not denied")
	}
	if len(a.t.all(protocol.TypeMove)) != 0 {
		t.Fatalf("unpaired move echoed")
	}
}

func TestCheckmateBroadcastAndPersistedOnce(t *testing.T) {
	results := &fakeResults{}
	s := NewServer(Options{Results: results})
	a := join(t, s, "alice")
	b := join(t, s, "bob")
	pair(t, s, a, b, protocol.ColorWhite)

	for i, mv := range []protocol.Move{{From: "f2", To: "f3"}, {From: "e7", To: "e5"}, {From: "g2", To: "g4"}, {From: "d8", To: "h4"}} {
		who := a
		if i%2 == 1 {
			who = b
		}
		send(t, s, who, protocol.TypeMove, mv)
	}
	n := protocol.Notice{Team: protocol.TeamWhite, Winner: protocol.TeamBlack}
	send(t, s, b, protocol.TypeCheckmate, n)
	send(t, s, a, protocol.TypeCheckmate, n)
	s.Wait()

	if len(a.t.all(protocol.TypeCheckmate)) != 1 || len(b.t.all(protocol.TypeCheckmate)) != 1 {
		t.Fatalf("checkmate not broadcast exactly once")
	}
	results.mu.Lock()
	defer results.mu.Unlock()
	if len(results.got) != 1 {
		t.Fatalf("results persisted = %d", len(results.got))
	}
	if got := results.got[0]; got.Result != "black" || len(got.Moves) != 4 || got.WhiteName != "alice" {
		t.Fatalf("result = %+v", got)
	}
}

func TestChatRelayedToBoth(t *testing.T) {
	s := NewServer(Options{})
	a := join(t, s, "alice")
	b := join(t, s, "bob")
	pair(t, s, a, b, protocol.ColorWhite)
	send(t, s, b, protocol.TypeChat, protocol.Chat{SenderName: "bob", Text: "gl"})
	if len(a.t.all(protocol.TypeChat)) != 1 || len(b.t.all(protocol.TypeChat)) != 1 {
		t.Fatalf("chat not relayed to both")
	}
}

func TestLeaveReturnsPartnerToLobby(t *testing.T) {
	results := &fakeResults{}
	s := NewServer(Options{Results: results})
	a := join(t, s, "alice")
	b := join(t, s, "bob")
	c := join(t, s, "carol")
	pair(t, s, a, b, protocol.ColorWhite)
	c.t.reset()

	send(t, s, a, protocol.TypeLeave, nil)
	s.Wait()

	if _, ok := s.Registry().Find(a.sess.ID); ok {
		t.Fatalf("leaver still registered")
	}
	if !a.t.closed {
		t.Fatalf("leaver connection not closed")
	}
	if len(b.t.all(protocol.TypeLeave)) != 1 {
		t.Fatalf("partner not told")
	}
	snap, ok := s.Registry().Find(b.sess.ID)
	if !ok || snap.Paired || !snap.InLobby {
		t.Fatalf("partner state = %+v", snap)
	}
	if _, ok := s.Registry().Partner(b.sess.ID); ok {
		t.Fatalf("partner still paired")
	}

	lists := c.t.all(protocol.TypePlayerList)
	if len(lists) == 0 {
		t.Fatalf("roster not rebroadcast")
	}
	var pl protocol.PlayerList
	_ = lists[len(lists)-1].Decode(&pl)
	if len(pl.Players) != 1 || pl.Players[0].Name != "bob" {
		t.Fatalf("roster after leave = %+v", pl.Players)
	}

	results.mu.Lock()
	defer results.mu.Unlock()
	if len(results.got) != 1 || results.got[0].Result != "black" || results.got[0].Termination != "leave" {
		t.Fatalf("leave result = %+v", results.got)
	}
}

func TestDisconnectDeniesWaitingRequester(t *testing.T) {
	s := NewServer(Options{})
	a := join(t, s, "alice")
	b := join(t, s, "bob")
	send(t, s, a, protocol.TypePlayRequest, protocol.PlayRequest{ToID: b.sess.ID})
	s.Disconnect(context.Background(), b.sess)
	s.Disconnect(context.Background(), b.sess)

	denied := a.t.all(protocol.TypeRequestDenied)
	if len(denied) != 1 {
		t.Fatalf("denials = %d", len(denied))
	}
	var d protocol.RequestDenied
	_ = denied[0].Decode(&d)
	if d.Code != "target_left" {
		t.Fatalf("code = %s", d.Code)
	}
}

func TestPairingDeniesRequesterWaitingOnEitherSide(t *testing.T) {
	s := NewServer(Options{})
	a := join(t, s, "alice")
	b := join(t, s, "bob")
	c := join(t, s, "carol")
	send(t, s, c, protocol.TypePlayRequest, protocol.PlayRequest{ToID: a.sess.ID})
	pair(t, s, a, b, protocol.ColorWhite)

	if len(a.t.all(protocol.TypeStart)) != 1 {
		t.Fatalf("alice not started")
	}
	denied := c.t.all(protocol.TypeRequestDenied)
	if len(denied) != 1 {
		t.Fatalf("carol denials = %d", len(denied))
	}
	var d protocol.RequestDenied
	if err := denied[0].Decode(&d); err != nil || d.Code != "target_paired" || d.Reason == "" {
		t.Fatalf("denied = %+v err=%v", d, err)
	}
	if _, ok := s.Registry().PendingFor(a.sess.ID); ok {
		t.Fatalf("carol's request still pending on alice")
	}
}

func TestPairingWithdrawsRequestFromPairedSide(t *testing.T) {
	s := NewServer(Options{})
	a := join(t, s, "alice")
	b := join(t, s, "bob")
	c := join(t, s, "carol")
	d := join(t, s, "dave")
	send(t, s, a, protocol.TypePlayRequest, protocol.PlayRequest{ToID: b.sess.ID})
	pair(t, s, c, a, protocol.ColorWhite)

	resp := b.t.all(protocol.TypePlayResponse)
	if len(resp) != 1 {
		t.Fatalf("bob responses = %d", len(resp))
	}
	var pr protocol.PlayResponse
	if err := resp[0].Decode(&pr); err != nil || !pr.Withdrawn || pr.Accepted || pr.RequesterID != a.sess.ID || pr.Reason == "" {
		t.Fatalf("withdrawal = %+v err=%v", pr, err)
	}

	send(t, s, d, protocol.TypePlayRequest, protocol.PlayRequest{ToID: b.sess.ID})
	if len(d.t.all(protocol.TypeRequestDenied)) != 0 {
		t.Fatalf("bob still blocked by alice's request")
	}
	if req, ok := s.Registry().PendingFor(b.sess.ID); !ok || req.FromID != d.sess.ID {
		t.Fatalf("pending for bob = %+v %v", req, ok)
	}
}

func TestDisconnectWithdrawsRequest(t *testing.T) {
	s := NewServer(Options{})
	a := join(t, s, "alice")
	b := join(t, s, "bob")
	send(t, s, a, protocol.TypePlayRequest, protocol.PlayRequest{ToID: b.sess.ID})
	s.Disconnect(context.Background(), a.sess)

	resp := b.t.all(protocol.TypePlayResponse)
	if len(resp) != 1 {
		t.Fatalf("bob responses = %d", len(resp))
	}
	var pr protocol.PlayResponse
	if err := resp[0].Decode(&pr); err != nil || !pr.Withdrawn || pr.FromName != "alice" || pr.Reason == "" {
		t.Fatalf("withdrawal = %+v err=%v", pr, err)
	}
	if len(b.t.all(protocol.TypeRequestDenied)) != 0 {
		t.Fatalf("target was denied instead of notified")
	}
}

func TestSaveAndLoadThroughStore(t *testing.T) {
	store := archive.NewMemoryStore()
	s := NewServer(Options{Saves: store, Now: func() time.Time { return time.Unix(1700000000, 0) }})
	a := join(t, s, "alice")
	b := join(t, s, "bob")
	pair(t, s, a, b, protocol.ColorWhite)
	send(t, s, a, protocol.TypeMove, protocol.Move{From: "e2", To: "e4"})

	send(t, s, a, protocol.TypeSaveGame, protocol.SaveGame{Name: "My Game"})
	acks := a.t.all(protocol.TypeSaveGame)
	if len(acks) != 1 {
		t.Fatalf("save acks = %d", len(acks))
	}
	var ack protocol.SaveGame
	_ = acks[0].Decode(&ack)
	if ack.Saved == nil || !*ack.Saved || ack.Name != "my_game" {
		t.Fatalf("ack = %+v", ack)
	}
	if len(b.t.all(protocol.TypeSaveGame)) != 1 {
		t.Fatalf("partner not told of save")
	}

	send(t, s, b, protocol.TypeLoadGame, protocol.LoadGame{Name: "my_game"})
	for _, p := range []member{a, b} {
		loads := p.t.all(protocol.TypeLoadGame)
		if len(loads) != 1 {
			t.Fatalf("loads = %d", len(loads))
		}
		var lg protocol.LoadGame
		_ = loads[0].Decode(&lg)
		if lg.Record == nil || len(lg.Record.Moves) != 1 || lg.Record.Moves[0] != "e2e4" {
			t.Fatalf("loaded = %+v", lg.Record)
		}
	}

	b.t.reset()
	send(t, s, b, protocol.TypeLoadGame, protocol.LoadGame{Name: "nope"})
	loads := b.t.all(protocol.TypeLoadGame)
	var lg protocol.LoadGame
	if len(loads) != 1 || loads[0].Decode(&lg) != nil || lg.Found == nil || *lg.Found {
		t.Fatalf("missing load reply = %+v", loads)
	}
}

func TestUnexpectedTypeGetsError(t *testing.T) {
	s := NewServer(Options{})
	a := join(t, s, "alice")
	if err := s.Handle(context.Background(), a.sess, protocol.MustNew(protocol.TypeStart, protocol.Start{})); err == nil {
		t.Fatalf("client START accepted")
	}
	if len(a.t.all(protocol.TypeError)) != 1 {
		t.Fatalf("no ERROR reply")
	}
}
