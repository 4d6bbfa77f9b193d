package lobby

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/park285/netchess/pkg/protocol"
)

var (
	ErrInvalidArgs      = errors.New("invalid arguments")
	ErrNotFound         = errors.New("session not found")
	ErrNotAnnounced     = errors.New("session has not announced a name")
	ErrSelfRequest      = errors.New("cannot request a game with yourself")
	ErrAlreadyPaired    = errors.New("session already paired")
	ErrAlreadyPending   = errors.New("target already has a pending request")
	ErrNoPendingRequest = errors.New("no pending request for target")
	ErrNotPaired        = errors.New("session not paired")
)

// Registry owns every connected session. All state changes happen under one
// mutex that is never held while sending.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	order    []string
	pending  map[string]*Request // targetID -> request
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		pending:  make(map[string]*Request),
		now:      time.Now,
	}
}

// Register creates a session for a new connection.
func (r *Registry) Register(conn Transport) *Session {
	s := &Session{ID: uuid.NewString(), conn: conn}
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.order = append(r.order, s.ID)
	r.mu.Unlock()
	return s
}

// Announce sets the display name and enters the lobby unless already paired.
func (r *Registry) Announce(id, name string) (Snapshot, error) {
	name = strings.TrimSpace(name)
	if id == "" || name == "" {
		return Snapshot{}, ErrInvalidArgs
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	s.name = name
	if !s.paired {
		s.inLobby = true
	}
	return s.snapshot(), nil
}

func (r *Registry) Find(id string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Snapshot{}, false
	}
	return s.snapshot(), true
}

// Session returns the live session for sending.
func (r *Registry) Session(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Partner returns the session paired with id.
func (r *Registry) Partner(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || !s.paired {
		return nil, false
	}
	p, ok := r.sessions[s.partner]
	return p, ok
}

// Roster lists visible lobby members in arrival order, excluding exclude.
func (r *Registry) Roster(exclude string) []protocol.Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.Player, 0, len(r.order))
	for _, id := range r.order {
		s := r.sessions[id]
		if s == nil || id == exclude || !s.inLobby || s.paired {
			continue
		}
		out = append(out, protocol.Player{ID: s.ID, Name: s.name})
	}
	return out
}

// LobbyMembers returns sessions currently shown in the lobby.
func (r *Registry) LobbyMembers() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Session
	for _, id := range r.order {
		if s := r.sessions[id]; s != nil && s.inLobby && !s.paired {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Request records a play request from fromID to toID. A target holds at
// most one pending request.
func (r *Registry) Request(fromID, toID string, color ColorChoice) (Request, *Session, error) {
	if fromID == "" || toID == "" {
		return Request{}, nil, ErrInvalidArgs
	}
	if fromID == toID {
		return Request{}, nil, ErrSelfRequest
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	from, ok := r.sessions[fromID]
	if !ok {
		return Request{}, nil, ErrNotFound
	}
	if from.name == "" {
		return Request{}, nil, ErrNotAnnounced
	}
	to, ok := r.sessions[toID]
	if !ok || to.name == "" {
		return Request{}, nil, ErrNotFound
	}
	if from.paired || to.paired {
		return Request{}, nil, ErrAlreadyPaired
	}
	if _, busy := r.pending[toID]; busy {
		return Request{}, nil, ErrAlreadyPending
	}
	req := &Request{
		FromID:    fromID,
		FromName:  from.name,
		ToID:      toID,
		ToName:    to.name,
		Color:     color,
		CreatedAt: r.now(),
	}
	r.pending[toID] = req
	return *req, to, nil
}

// Decline drops the pending request addressed to targetID and returns it
// along with the requester's session.
func (r *Registry) Decline(targetID, requesterID string) (Request, *Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, err := r.takePending(targetID, requesterID)
	if err != nil {
		return Request{}, nil, err
	}
	return *req, r.sessions[req.FromID], nil
}

// Accept resolves the pending request addressed to targetID into a pairing.
// Both sessions change in one critical section.
func (r *Registry) Accept(targetID, requesterID string) (Pairing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, err := r.takePending(targetID, requesterID)
	if err != nil {
		return Pairing{}, err
	}
	from, ok1 := r.sessions[req.FromID]
	to, ok2 := r.sessions[req.ToID]
	if !ok1 || !ok2 {
		return Pairing{}, ErrNotFound
	}
	if from.paired || to.paired {
		return Pairing{}, ErrAlreadyPaired
	}

	white, black := from, to
	switch req.Color {
	case ColorBlack:
		white, black = to, from
	case ColorRandom:
		if n, _ := rand.Int(rand.Reader, big.NewInt(2)); n != nil && n.Int64() == 0 {
			white, black = to, from
		}
	}

	gameID := uuid.NewString()
	r.bind(white, black, protocol.TeamWhite, gameID)
	r.bind(black, white, protocol.TeamBlack, gameID)

	return Pairing{
		GameID:    gameID,
		White:     white,
		Black:     black,
		WhiteName: white.name,
		BlackName: black.name,
		Requester: from.ID,
		StartedAt: r.now(),
		Dropped:   r.dropPending(white.ID, black.ID),
	}, nil
}

func (r *Registry) bind(s, partner *Session, team, gameID string) {
	s.paired = true
	s.partner = partner.ID
	s.inLobby = false
	s.team = team
	s.gameID = gameID
}

// dropPending removes every pending request sent by or addressed to one of
// ids and returns them in arrival order of their targets.
func (r *Registry) dropPending(ids ...string) []Request {
	involved := func(id string) bool {
		for _, v := range ids {
			if v == id {
				return true
			}
		}
		return false
	}
	var out []Request
	for _, target := range r.order {
		req, ok := r.pending[target]
		if !ok || !(involved(target) || involved(req.FromID)) {
			continue
		}
		out = append(out, *req)
		delete(r.pending, target)
	}
	return out
}

func (r *Registry) takePending(targetID, requesterID string) (*Request, error) {
	req, ok := r.pending[targetID]
	if !ok || (requesterID != "" && req.FromID != requesterID) {
		return nil, ErrNoPendingRequest
	}
	delete(r.pending, targetID)
	return req, nil
}

// Unpair clears the pairing of id and its partner symmetrically and puts
// both back in the lobby. It returns the former partner.
func (r *Registry) Unpair(id string) (*Session, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, "", ErrNotFound
	}
	if !s.paired {
		return nil, "", ErrNotPaired
	}
	gameID := s.gameID
	p := r.sessions[s.partner]
	r.release(s)
	if p != nil {
		r.release(p)
	}
	return p, gameID, nil
}

func (r *Registry) release(s *Session) {
	s.paired = false
	s.partner = ""
	s.team = ""
	s.gameID = ""
	s.inLobby = s.name != ""
}

// Remove deletes the session, unpairing its partner and dropping any
// pending request it is part of.
func (r *Registry) Remove(id string) (Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Departure{}, false
	}
	d := Departure{Session: s, Name: s.name, GameID: s.gameID}
	if s.paired {
		if p := r.sessions[s.partner]; p != nil {
			r.release(p)
			d.Partner = p
		}
	}
	d.Dropped = r.dropPending(id)
	delete(r.sessions, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return d, true
}

// PendingFor returns the request addressed to targetID, if any.
func (r *Registry) PendingFor(targetID string) (Request, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.pending[targetID]
	if !ok {
		return Request{}, false
	}
	return *req, true
}
