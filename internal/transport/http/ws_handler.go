package http

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"pulsequiz/internal/app"
	"pulsequiz/internal/domain"
	"pulsequiz/internal/realtime"
)

const (
	identifyTimeout = 10 * time.Second
	writeTimeout    = 10 * time.Second
	sendBuffer      = 64
)

var (
	errSenderClosed = errors.New("ws sender closed")
	errSendFull     = errors.New("ws send buffer full")
)

// wsSender bridges a gorilla connection into the hub. Writes go through a
// buffered channel and a single writer goroutine, so Send never blocks the
// broadcast path. A full buffer counts as a dead connection.
type wsSender struct {
	conn *websocket.Conn
	send chan any
	done chan struct{}
	once sync.Once
}

func newWSSender(conn *websocket.Conn) *wsSender {
	return &wsSender{
		conn: conn,
		send: make(chan any, sendBuffer),
		done: make(chan struct{}),
	}
}

func (s *wsSender) Send(v any) error {
	select {
	case <-s.done:
		return errSenderClosed
	default:
	}
	select {
	case s.send <- v:
		return nil
	default:
		return errSendFull
	}
}

func (s *wsSender) writePump() {
	defer s.conn.Close()
	for {
		select {
		case v := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(v); err != nil {
				s.close()
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *wsSender) close() {
	s.once.Do(func() { close(s.done) })
}

// WSHandler upgrades /ws/session/{code} requests and keeps the connection
// registered with the hub until the peer goes away.
type WSHandler struct {
	service  *app.Service
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.Service, allowedOrigins []string) *WSHandler {
	allowAll := false
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
	}
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowAll {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, allowed := range allowedOrigins {
					if origin == allowed {
						return true
					}
				}
				return false
			},
		},
	}
}

type identifyMessage struct {
	Type       string `json:"type"`
	HostToken  string `json:"hostToken"`
	PlayerID   string `json:"playerId"`
	ObserverID string `json:"observerId"`
}

type wsError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if _, err := h.service.State(code); err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("session", code).Msg("ws upgrade failed")
		return
	}

	role, identity, err := h.identify(conn, code)
	if err != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = conn.WriteJSON(wsError{Type: "error", Error: err.Error()})
		conn.Close()
		return
	}

	sender := newWSSender(conn)
	go sender.writePump()

	connID := uuid.NewString()
	h.service.Hub().Connect(code, realtime.NewConnection(connID, role, identity, sender))
	log.Info().Str("session", code).Str("role", string(role)).Str("conn", connID).Msg("ws connected")

	h.pushState(sender, code, role, identity)
	h.readLoop(conn)

	sender.close()
	if _, ok := h.service.Hub().Disconnect(code, connID); ok && role == domain.RolePlayer {
		h.service.AnnouncePlayerLeft(code, identity, connID)
	}
	log.Info().Str("session", code).Str("conn", connID).Msg("ws disconnected")
}

// identify runs the handshake: the first frame declares who the peer is,
// and it has to arrive within the deadline.
func (h *WSHandler) identify(conn *websocket.Conn, code string) (domain.Role, string, error) {
	_ = conn.SetReadDeadline(time.Now().Add(identifyTimeout))
	defer conn.SetReadDeadline(time.Time{})

	var msg identifyMessage
	if err := conn.ReadJSON(&msg); err != nil {
		return "", "", errors.New("expected identify message")
	}

	switch msg.Type {
	case "identify_host":
		identity, err := h.service.Identify(code, domain.RoleHost, msg.HostToken)
		return domain.RoleHost, identity, err
	case "identify_player":
		identity, err := h.service.Identify(code, domain.RolePlayer, msg.PlayerID)
		return domain.RolePlayer, identity, err
	case "identify_observer":
		identity, err := h.service.Identify(code, domain.RoleObserver, msg.ObserverID)
		return domain.RoleObserver, identity, err
	default:
		return "", "", errors.New("unknown identify type")
	}
}

// pushState sends the initial snapshot directly to the new connection so it
// does not have to wait for the next broadcast. The snapshot rides the same
// envelope as broadcast events; its ID is the newest logged event, which is
// also the cursor a client would poll from.
func (h *WSHandler) pushState(sender *wsSender, code string, role domain.Role, identity string) {
	state, err := h.service.State(code)
	if err != nil {
		return
	}
	payload := map[string]any{"state": state}
	if state.Status == domain.StatusRevealed && role != domain.RoleObserver {
		playerID := ""
		if role == domain.RolePlayer {
			playerID = identity
		}
		if results, err := h.service.RevealResults(code, playerID); err == nil {
			payload["revealResults"] = results
		}
	}
	evt := domain.Event{
		ID:        h.service.Hub().Events(code).LastID(),
		Type:      domain.EventSessionState,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	if err := sender.Send(evt); err != nil {
		log.Warn().Str("session", code).Err(err).Msg("initial state push failed")
	}
}

// readLoop drains inbound frames until the peer closes. Clients act through
// the REST surface; inbound ws traffic is only pings and the occasional
// client-side debug frame, which we ignore.
func (h *WSHandler) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
