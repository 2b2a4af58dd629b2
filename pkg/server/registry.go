package server

import (
	"slices"
	"sync"
	"time"

	"github.com/cyvasse-online/server/pkg/domain"
	"github.com/cyvasse-online/server/pkg/rules"
	"github.com/cyvasse-online/server/pkg/transport/protocol"
	"github.com/rs/xid"
	"github.com/samber/lo"
)

// MaxPlayers is the number of sessions a match admits.
const MaxPlayers = 2

// SessionID keys the session arena.
type SessionID string

// Session is one admitted, connected player. Values handed out by the
// registry are copies.
type Session struct {
	ID       SessionID
	Conn     domain.ConnID
	MatchID  string
	PlayerID string
	Color    domain.Color
	Username string
}

// IDGenerator yields candidate match and player identifiers.
type IDGenerator interface {
	MatchID() string
	PlayerID() string
}

// seat remembers who played a color, so the seat can be resumed.
type seat struct {
	playerID string
	username string
}

// match is the registry's record of one game instance. Guarded by matchMu.
type match struct {
	id        string
	ruleSet   domain.RuleSet
	game      rules.Game
	random    bool
	public    bool
	sessions  []SessionID
	seats     map[domain.Color]seat
	filled    bool
	createdAt time.Time
}

// MatchView is a read-only snapshot of a match.
type MatchView struct {
	ID        string
	RuleSet   domain.RuleSet
	Game      rules.Game
	Random    bool
	Public    bool
	Sessions  []Session
	// Filled is true once MaxPlayers sessions have been attached at the
	// same time, even if one of them left since.
	Filled    bool
	CreatedAt time.Time
}

// Full reports whether the match had MaxPlayers sessions when snapshotted.
func (m MatchView) Full() bool { return len(m.Sessions) >= MaxPlayers }

// Peer is another session of the caller's match with its send handle.
type Peer struct {
	Session Session
	Conn    domain.Conn
}

// Admission is the outcome of a successful create, join or resume.
type Admission struct {
	Session Session
	Match   MatchView
	// Peers are the sessions that were attached before this admission.
	Peers []Peer
}

// Detached is the outcome of RemoveSession.
type Detached struct {
	Session Session
	Match   MatchView
	Peers   []Peer
	// Empty is true when no session is left in the match.
	Empty bool
}

// HostOptions describes a match to create.
type HostOptions struct {
	RuleSet domain.RuleSet
	Game    rules.Game
	Color   domain.Color
	Random  bool
	Public  bool
}

// Registry holds the connection registry, the session arena and the
// match registry. Every method manages its own locking.
//
// Lock order: matchMu before connMu. No method sends on a connection.
type Registry struct {
	ids IDGenerator

	matchMu sync.RWMutex
	matches map[string]*match
	players map[string]string // playerID -> matchID

	connMu   sync.RWMutex
	conns    map[domain.ConnID]domain.Conn
	attached map[domain.ConnID]SessionID
	sessions map[SessionID]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry(ids IDGenerator) *Registry {
	return &Registry{
		ids:      ids,
		matches:  make(map[string]*match),
		players:  make(map[string]string),
		conns:    make(map[domain.ConnID]domain.Conn),
		attached: make(map[domain.ConnID]SessionID),
		sessions: make(map[SessionID]*Session),
	}
}

// Connect records a live connection.
func (r *Registry) Connect(conn domain.Conn) {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	r.conns[conn.ID()] = conn
}

// Disconnect forgets a live connection. Its session, if any, stays until
// RemoveSession; no new session can be admitted for it afterwards.
func (r *Registry) Disconnect(id domain.ConnID) bool {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	if _, ok := r.conns[id]; !ok {
		return false
	}
	delete(r.conns, id)
	return true
}

// Conn returns the send handle of a live connection.
func (r *Registry) Conn(id domain.ConnID) (domain.Conn, bool) {
	r.connMu.RLock()
	defer r.connMu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// IsLive reports whether id is a connected connection.
func (r *Registry) IsLive(id domain.ConnID) bool {
	_, ok := r.Conn(id)
	return ok
}

// LookupSession returns the session of a connection.
func (r *Registry) LookupSession(id domain.ConnID) (Session, bool) {
	r.connMu.RLock()
	defer r.connMu.RUnlock()

	sid, ok := r.attached[id]
	if !ok {
		return Session{}, false
	}
	return *r.sessions[sid], true
}

// CreateMatch registers an empty match under a fresh identifier and returns
// it. Host is what request handling uses; an empty match is only reachable
// through this method and is destroyed by the next DestroyMatch.
func (r *Registry) CreateMatch(opts HostOptions) string {
	r.matchMu.Lock()
	defer r.matchMu.Unlock()
	return r.createMatchLocked(opts).id
}

// Host creates a match and seats conn in it as opts.Color in one step, so
// no other connection can observe the match before its creator is in it.
func (r *Registry) Host(conn domain.ConnID, opts HostOptions) (Admission, error) {
	r.matchMu.Lock()
	defer r.matchMu.Unlock()

	r.connMu.Lock()
	defer r.connMu.Unlock()

	if err := r.checkAttachableLocked(conn); err != nil {
		return Admission{}, err
	}

	m := r.createMatchLocked(opts)
	return r.admitLocked(conn, m, opts.Color, "", false), nil
}

// Join seats conn in matchID with the color left free by the single player
// already there. Errors are checked in this order: connInUse,
// gameNotFound, gameEmpty, gameFull.
func (r *Registry) Join(conn domain.ConnID, matchID string) (Admission, error) {
	r.matchMu.Lock()
	defer r.matchMu.Unlock()

	r.connMu.Lock()
	defer r.connMu.Unlock()

	if err := r.checkAttachableLocked(conn); err != nil {
		return Admission{}, err
	}

	m, ok := r.matches[matchID]
	if !ok {
		return Admission{}, protocol.ErrGameNotFound.WithDetails(matchID)
	}

	// A session whose connection already closed is on its way out and
	// does not count as somebody to play against.
	live := r.liveSessionsLocked(m)
	switch {
	case len(live) == 0:
		return Admission{}, protocol.ErrGameEmpty.WithDetails(matchID)
	case len(m.sessions) >= MaxPlayers:
		return Admission{}, protocol.ErrGameFull.WithDetails(matchID)
	}

	color := live[0].Color.Opposite()
	return r.admitLocked(conn, m, color, "", false), nil
}

// Resume reseats conn in the seat last held by playerID.
func (r *Registry) Resume(conn domain.ConnID, playerID string) (Admission, error) {
	r.matchMu.Lock()
	defer r.matchMu.Unlock()

	r.connMu.Lock()
	defer r.connMu.Unlock()

	if err := r.checkAttachableLocked(conn); err != nil {
		return Admission{}, err
	}

	matchID, ok := r.players[playerID]
	if !ok {
		return Admission{}, protocol.ErrGameNotFound.WithDetails(playerID)
	}
	m := r.matches[matchID]

	var color domain.Color
	for c, s := range m.seats {
		if s.playerID == playerID {
			color = c
		}
	}
	for _, sid := range m.sessions {
		if r.sessions[sid].Color == color {
			return Admission{}, protocol.ErrGameFull.WithDetails(matchID)
		}
	}

	return r.admitLocked(conn, m, color, playerID, true), nil
}

// SetUsername renames the session of conn.
func (r *Registry) SetUsername(conn domain.ConnID, name string) (Session, error) {
	r.matchMu.Lock()
	defer r.matchMu.Unlock()

	r.connMu.Lock()
	defer r.connMu.Unlock()

	sid, ok := r.attached[conn]
	if !ok {
		return Session{}, protocol.ErrNotInMatch
	}
	s := r.sessions[sid]
	s.Username = name

	m := r.matches[s.MatchID]
	st := m.seats[s.Color]
	st.username = name
	m.seats[s.Color] = st

	return *s, nil
}

// Peers returns the caller's session, its match and every other session
// in that match.
func (r *Registry) Peers(conn domain.ConnID) (Session, MatchView, []Peer, error) {
	r.matchMu.RLock()
	defer r.matchMu.RUnlock()

	r.connMu.RLock()
	defer r.connMu.RUnlock()

	sid, ok := r.attached[conn]
	if !ok {
		return Session{}, MatchView{}, nil, protocol.ErrNotInMatch
	}
	s := r.sessions[sid]
	m := r.matches[s.MatchID]
	return *s, r.viewLocked(m), r.peersLocked(m, sid), nil
}

// RemoveSession detaches the session of conn from its match and deletes it
// from the arena. It is the only way a session is deleted. Calling it for
// a connection without a session is a no-op returning false. The match is
// left registered even when empty; see DestroyMatch.
func (r *Registry) RemoveSession(conn domain.ConnID) (Detached, bool) {
	r.matchMu.Lock()
	defer r.matchMu.Unlock()

	r.connMu.Lock()
	defer r.connMu.Unlock()

	sid, ok := r.attached[conn]
	if !ok {
		return Detached{}, false
	}
	s := r.sessions[sid]
	delete(r.attached, conn)
	delete(r.sessions, sid)

	m := r.matches[s.MatchID]
	m.sessions = slices.DeleteFunc(m.sessions, func(id SessionID) bool { return id == sid })

	return Detached{
		Session: *s,
		Match:   r.viewLocked(m),
		Peers:   r.peersLocked(m, ""),
		Empty:   len(m.sessions) == 0,
	}, true
}

// DestroyMatch removes matchID if it has no sessions left. It returns
// false when the match is unknown or somebody is still attached.
func (r *Registry) DestroyMatch(matchID string) bool {
	r.matchMu.Lock()
	defer r.matchMu.Unlock()

	m, ok := r.matches[matchID]
	if !ok || len(m.sessions) > 0 {
		return false
	}

	for _, s := range m.seats {
		if r.players[s.playerID] == matchID {
			delete(r.players, s.playerID)
		}
	}
	delete(r.matches, matchID)
	return true
}

// Match returns a snapshot of matchID.
func (r *Registry) Match(matchID string) (MatchView, bool) {
	r.matchMu.RLock()
	defer r.matchMu.RUnlock()

	m, ok := r.matches[matchID]
	if !ok {
		return MatchView{}, false
	}

	r.connMu.RLock()
	defer r.connMu.RUnlock()
	return r.viewLocked(m), true
}

// Counts returns the number of live connections, matches and sessions.
func (r *Registry) Counts() (conns, matches, sessions int) {
	r.matchMu.RLock()
	matches = len(r.matches)
	r.matchMu.RUnlock()

	r.connMu.RLock()
	defer r.connMu.RUnlock()
	return len(r.conns), matches, len(r.sessions)
}

// createMatchLocked requires matchMu. Identifiers are probabilistic, so
// both the match and the creator's player id are retried until unused.
func (r *Registry) createMatchLocked(opts HostOptions) *match {
	id := r.ids.MatchID()
	for r.matches[id] != nil {
		id = r.ids.MatchID()
	}

	m := &match{
		id:        id,
		ruleSet:   opts.RuleSet,
		game:      opts.Game,
		random:    opts.Random,
		public:    opts.Public,
		seats:     make(map[domain.Color]seat, MaxPlayers),
		createdAt: time.Now(),
	}
	r.matches[id] = m
	return m
}

// checkAttachableLocked requires connMu.
func (r *Registry) checkAttachableLocked(conn domain.ConnID) error {
	if _, ok := r.conns[conn]; !ok {
		return domain.ErrConnectionClosed
	}
	if _, ok := r.attached[conn]; ok {
		return protocol.ErrConnInUse
	}
	return nil
}

// admitLocked requires matchMu and connMu and a prior checkAttachableLocked.
// A fresh player id is drawn unless an existing seat is being resumed.
func (r *Registry) admitLocked(conn domain.ConnID, m *match, color domain.Color, playerID string, resumed bool) Admission {
	peers := r.peersLocked(m, "")

	username := color.PrettyName()
	if resumed {
		username = m.seats[color].username
	} else {
		if old, ok := m.seats[color]; ok {
			delete(r.players, old.playerID)
		}
		playerID = r.ids.PlayerID()
		for r.players[playerID] != "" {
			playerID = r.ids.PlayerID()
		}
		m.seats[color] = seat{playerID: playerID, username: username}
		r.players[playerID] = m.id
	}

	s := &Session{
		ID:       SessionID(xid.New().String()),
		Conn:     conn,
		MatchID:  m.id,
		PlayerID: playerID,
		Color:    color,
		Username: username,
	}
	r.sessions[s.ID] = s
	r.attached[conn] = s.ID
	m.sessions = append(m.sessions, s.ID)
	if len(m.sessions) >= MaxPlayers {
		m.filled = true
	}

	return Admission{
		Session: *s,
		Match:   r.viewLocked(m),
		Peers:   peers,
	}
}

// viewLocked requires at least read locks on both registries.
func (r *Registry) viewLocked(m *match) MatchView {
	return MatchView{
		ID:      m.id,
		RuleSet: m.ruleSet,
		Game:    m.game,
		Random:  m.random,
		Public:  m.public,
		Sessions: lo.Map(m.sessions, func(id SessionID, _ int) Session {
			return *r.sessions[id]
		}),
		Filled:    m.filled,
		CreatedAt: m.createdAt,
	}
}

// liveSessionsLocked requires at least read locks on both registries.
func (r *Registry) liveSessionsLocked(m *match) []*Session {
	live := make([]*Session, 0, len(m.sessions))
	for _, id := range m.sessions {
		s := r.sessions[id]
		if _, ok := r.conns[s.Conn]; ok {
			live = append(live, s)
		}
	}
	return live
}

// peersLocked requires at least read locks on both registries. Peers whose
// connection already closed are skipped; there is nobody to send to.
func (r *Registry) peersLocked(m *match, except SessionID) []Peer {
	peers := make([]Peer, 0, len(m.sessions))
	for _, id := range m.sessions {
		if id == except {
			continue
		}
		s := r.sessions[id]
		c, ok := r.conns[s.Conn]
		if !ok {
			continue
		}
		peers = append(peers, Peer{Session: *s, Conn: c})
	}
	return peers
}
