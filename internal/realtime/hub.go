package realtime

import (
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"pulsequiz/internal/domain"
)

// Sender delivers one JSON-serializable payload to a live connection. A
// returned error marks the connection dead; it must never block broadcast.
type Sender interface {
	Send(v any) error
}

// Connection is one live push connection, tagged with a role and an
// identity (player ID, observer ID, or "host").
type Connection struct {
	ID       string
	Role     domain.Role
	Identity string
	sender   Sender
}

func NewConnection(id string, role domain.Role, identity string, sender Sender) *Connection {
	return &Connection{ID: id, Role: role, Identity: identity, sender: sender}
}

// Hub owns the per-session Connection Registry and Event Log. It is the
// broadcast router: every event is appended to the log first so pull
// clients never miss something push clients received, then fanned out to
// live connections with role filtering and per-recipient personalization.
type Hub struct {
	mu       sync.RWMutex
	eventCap int
	clock    clockwork.Clock
	sessions map[string]*sessionChannels
}

type sessionChannels struct {
	log *EventLog

	mu    sync.RWMutex
	conns map[string]*Connection
}

func NewHub(eventCap int, clock clockwork.Clock) *Hub {
	return &Hub{
		eventCap: eventCap,
		clock:    clock,
		sessions: make(map[string]*sessionChannels),
	}
}

func (h *Hub) channels(code string) *sessionChannels {
	h.mu.Lock()
	defer h.mu.Unlock()
	sc, ok := h.sessions[code]
	if !ok {
		sc = &sessionChannels{
			log:   NewEventLog(h.eventCap, h.clock),
			conns: make(map[string]*Connection),
		}
		h.sessions[code] = sc
	}
	return sc
}

// Events returns the session's event log, creating the channel pair on
// first use.
func (h *Hub) Events(code string) *EventLog {
	return h.channels(code).log
}

// Connect registers a live connection for a session.
func (h *Hub) Connect(code string, conn *Connection) {
	sc := h.channels(code)
	sc.mu.Lock()
	sc.conns[conn.ID] = conn
	total := len(sc.conns)
	sc.mu.Unlock()

	log.Debug().
		Str("session", code).
		Str("connection_id", conn.ID).
		Str("role", string(conn.Role)).
		Int("total_connections", total).
		Msg("connection registered")
}

// Disconnect removes a connection and reports whether it was present,
// along with its tags so callers can announce the departure.
func (h *Hub) Disconnect(code, connID string) (*Connection, bool) {
	h.mu.RLock()
	sc, ok := h.sessions[code]
	h.mu.RUnlock()
	if !ok {
		return nil, false
	}

	sc.mu.Lock()
	conn, ok := sc.conns[connID]
	if ok {
		delete(sc.conns, connID)
	}
	sc.mu.Unlock()
	return conn, ok
}

// Drop discards a session's registry and log once the session is gone.
func (h *Hub) Drop(code string) {
	h.mu.Lock()
	delete(h.sessions, code)
	h.mu.Unlock()
}

// BroadcastOptions tunes one fan-out. Visibility flags ride on the event
// itself so the pull path applies the same filtering.
type BroadcastOptions struct {
	// ExcludeConnectionID skips one connection, typically the originator.
	ExcludeConnectionID string
}

// Broadcast appends evt to the session's event log, then fans it out to
// live connections. A send failure marks that connection dead; dead
// connections are purged after the iteration so one failure never aborts
// delivery to the rest.
func (h *Hub) Broadcast(code string, evt domain.Event, opts BroadcastOptions) {
	sc := h.channels(code)
	evt = sc.log.Append(evt)

	sc.mu.RLock()
	targets := make([]*Connection, 0, len(sc.conns))
	for _, conn := range sc.conns {
		if conn.ID == opts.ExcludeConnectionID {
			continue
		}
		if !visibleTo(evt, conn.Role) {
			continue
		}
		targets = append(targets, conn)
	}
	sc.mu.RUnlock()

	var dead []string
	for _, conn := range targets {
		if err := conn.sender.Send(evt.Personalized(conn.Role, conn.Identity)); err != nil {
			log.Warn().
				Err(err).
				Str("session", code).
				Str("connection_id", conn.ID).
				Msg("dropping dead connection")
			dead = append(dead, conn.ID)
		}
	}

	if len(dead) > 0 {
		sc.mu.Lock()
		for _, id := range dead {
			delete(sc.conns, id)
		}
		sc.mu.Unlock()
	}

	log.Debug().
		Str("session", code).
		Str("event_type", evt.Type).
		Int64("event_id", evt.ID).
		Int("connections", len(targets)-len(dead)).
		Msg("event broadcast")
}

// ConnectionCount reports live connections for a session.
func (h *Hub) ConnectionCount(code string) int {
	h.mu.RLock()
	sc, ok := h.sessions[code]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return len(sc.conns)
}
