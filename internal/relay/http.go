package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/netchess/internal/lobby"
	"github.com/park285/netchess/pkg/protocol"
)

// wsTransport adapts one accepted websocket to lobby.Transport.
type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Send(ctx context.Context, env protocol.Envelope) error {
	return wsjson.Write(ctx, t.conn, env)
}

func (t *wsTransport) Close(reason string) error {
	return t.conn.Close(websocket.StatusNormalClosure, reason)
}

// Handler serves the websocket endpoint at wsPath plus the small JSON API.
func (s *Server) Handler(wsPath string) http.Handler {
	if wsPath == "" {
		wsPath = "/ws"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(wsPath, s.ServeWS)
	mux.HandleFunc("/healthz", s.serveHealth)
	mux.HandleFunc("/api/players", s.servePlayers)
	mux.HandleFunc("/api/saves", s.serveSaves)
	return mux
}

// ServeWS accepts one peer connection and runs its read loop until the
// connection ends.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	opts := s.accept
	conn, err := websocket.Accept(w, r, &opts)
	if err != nil {
		s.log.Warn("relay_accept_failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(s.readLimit)

	ctx := r.Context()
	sess := s.Connect(&wsTransport{conn: conn})
	defer s.Disconnect(context.Background(), sess)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				s.log.Debug("relay_read_end", zap.String("session", sess.ID), zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			_ = s.malformed(ctx, sess, protocol.ErrMalformed)
			continue
		}
		env, err := protocol.Parse(data)
		if err != nil {
			s.log.Debug("relay_bad_frame", zap.String("session", sess.ID), zap.Error(err))
			_ = s.malformed(ctx, sess, err)
			continue
		}
		if err := s.Handle(ctx, sess, env); err != nil {
			s.log.Debug("relay_handle", zap.String("session", sess.ID), zap.String("type", string(env.Type)), zap.Error(err))
		}
		if env.Type == protocol.TypeLeave {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) serveHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.reg.Len()})
}

func (s *Server) servePlayers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, protocol.PlayerList{Players: s.reg.Roster("")})
}

func (s *Server) serveSaves(w http.ResponseWriter, r *http.Request) {
	if s.saves == nil {
		writeJSON(w, http.StatusOK, []protocol.SaveSummary{})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	list, err := s.saves.List(ctx)
	if err != nil {
		s.log.Warn("archive_list_failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, protocol.Error{Code: "store", Message: err.Error()})
		return
	}
	if list == nil {
		list = []protocol.SaveSummary{}
	}
	writeJSON(w, http.StatusOK, list)
}

var _ lobby.Transport = (*wsTransport)(nil)
