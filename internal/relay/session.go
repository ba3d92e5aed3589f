package relay

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"whooshpad/internal/action"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
	writeWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins as this is a local network tool
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Session represents one connected controlling device.
type Session struct {
	hub  *hub
	id   string
	conn *websocket.Conn
	send chan []byte
	addr string

	// Guards send against the hub closing it while the read pump is
	// still queueing acks.
	sendMu sync.Mutex
	closed bool
}

// closeSend closes the send channel exactly once. Safe to call from
// both the unregister path and the slow-client eviction path.
func (s *Session) closeSend() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

// hub tracks concurrent sessions and fans server frames out to them.
type hub struct {
	log        zerolog.Logger
	server     *Server
	sessions   map[*Session]bool
	sessionsMu sync.RWMutex
	broadcast  chan ServerMessage
	register   chan *Session
	unregister chan *Session
	shutdown   chan struct{}
}

func newHub(log zerolog.Logger) *hub {
	return &hub{
		log:        log,
		sessions:   make(map[*Session]bool),
		broadcast:  make(chan ServerMessage, 16),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		shutdown:   make(chan struct{}),
	}
}

func (h *hub) run() {
	for {
		select {
		case s := <-h.register:
			h.sessionsMu.Lock()
			h.sessions[s] = true
			n := len(h.sessions)
			h.sessionsMu.Unlock()
			h.log.Info().
				Str("session", s.id).
				Str("remote", s.addr).
				Int("total", n).
				Msg("session connected")

		case s := <-h.unregister:
			h.sessionsMu.Lock()
			delete(h.sessions, s)
			s.closeSend()
			n := len(h.sessions)
			h.sessionsMu.Unlock()

			// Guaranteed cleanup: a dropped phone releases every hold
			// it owned, cancelling any repeat timer with it.
			h.server.engine.ReleaseSession(s.id)
			h.log.Info().
				Str("session", s.id).
				Str("remote", s.addr).
				Int("total", n).
				Msg("session disconnected")

		case msg := <-h.broadcast:
			h.broadcastMessage(msg)

		case <-h.shutdown:
			return
		}
	}
}

func (h *hub) stop() {
	close(h.shutdown)
}

func (h *hub) broadcastMessage(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal broadcast frame")
		return
	}

	h.sessionsMu.Lock()
	defer h.sessionsMu.Unlock()
	for s := range h.sessions {
		select {
		case s.send <- data:
		default:
			delete(h.sessions, s)
			s.closeSend()
		}
	}
}

// broadcastGroup publishes a group ownership transition to every
// session. Registered as the arbiter's group-change hook.
func (h *hub) broadcastGroup(group action.Group, owner string) {
	select {
	case h.broadcast <- ServerMessage{Type: TypeGroup, Group: string(group), Owner: owner}:
	default:
		h.log.Warn().Str("group", string(group)).Msg("broadcast queue full, group event dropped")
	}
}

func (h *hub) count() int {
	h.sessionsMu.RLock()
	defer h.sessionsMu.RUnlock()
	return len(h.sessions)
}

func (h *hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	s := &Session{
		hub:  h,
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 256),
		addr: r.RemoteAddr,
	}

	h.register <- s

	// The session id rides the first frame so the UI can tell its own
	// holds apart from other devices' in group events.
	s.queue(ServerMessage{Type: TypeHello, Session: s.id})

	go s.writePump()
	go s.readPump()
}

// readPump pumps control messages from the websocket into the arbiter.
func (s *Session) readPump() {
	defer func() {
		s.hub.unregister <- s
		s.conn.Close()
	}()

	s.conn.SetReadLimit(4096)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.hub.log.Debug().Err(err).Str("session", s.id).Msg("websocket read error")
			}
			break
		}
		s.handleMessage(data)
	}
}

// writePump pumps queued frames to the websocket connection.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses one control message and acks the outcome.
// Malformed payloads and unknown actions never reach the synthesizer;
// the connection stays open either way.
func (s *Session) handleMessage(data []byte) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.queue(ServerMessage{Type: TypeAck, Status: statusError, Reason: "malformed message"})
		return
	}

	phase, err := action.ParsePhase(msg.Phase)
	if err != nil {
		s.queue(ServerMessage{Type: TypeAck, Action: msg.Action, Status: statusError, Reason: err.Error()})
		return
	}

	status, err := s.hub.server.engine.Dispatch(s.id, action.ID(msg.Action), phase)
	if err != nil {
		reason := "input synthesis failed"
		if errors.Is(err, action.ErrUnknownAction) {
			reason = err.Error()
		} else {
			s.hub.log.Warn().
				Err(err).
				Str("session", s.id).
				Str("action", msg.Action).
				Msg("action failed")
		}
		s.queue(ServerMessage{Type: TypeAck, Action: msg.Action, Status: statusError, Reason: reason})
		return
	}

	s.queue(ServerMessage{Type: TypeAck, Action: msg.Action, Status: string(status)})
}

// queue serializes a frame onto the session's send channel, dropping
// it if the client cannot keep up.
func (s *Session) queue(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.hub.log.Error().Err(err).Msg("failed to marshal frame")
		return
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.send <- data:
	default:
	}
}
