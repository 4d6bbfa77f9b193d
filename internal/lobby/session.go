package lobby

import (
	"context"
	"sync"

	"github.com/park285/netchess/pkg/protocol"
)

// Session is one connected participant. ID and the transport never change;
// the pairing state below is guarded by the owning Registry's lock.
type Session struct {
	ID string

	conn    Transport
	writeMu sync.Mutex

	name    string
	paired  bool
	partner string
	inLobby bool
	team    string
	gameID  string
}

// Send writes one envelope. Writes to the same session never interleave,
// whichever connection loop they come from.
func (s *Session) Send(ctx context.Context, env protocol.Envelope) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.Send(ctx, env)
}

func (s *Session) Close(reason string) error {
	return s.conn.Close(reason)
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		ID:      s.ID,
		Name:    s.name,
		Paired:  s.paired,
		Partner: s.partner,
		InLobby: s.inLobby,
		Team:    s.team,
		GameID:  s.gameID,
	}
}
