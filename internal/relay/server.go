// Package relay binds the network listener, tracks client sessions,
// and wires inbound control actions into the arbitration engine.
package relay

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"whooshpad/internal/action"
	"whooshpad/internal/arbiter"
	"whooshpad/internal/synth"
	"whooshpad/internal/web"
)

// Config carries server options.
type Config struct {
	Logger         zerolog.Logger
	Clock          clockwork.Clock // test hook, defaults to real clock
	DebounceWindow time.Duration
}

// Server is the relay's HTTP/WebSocket front end.
type Server struct {
	log    zerolog.Logger
	table  *action.Table
	engine *arbiter.Engine
	hub    *hub
	http   *http.Server
}

// NewServer wires the hub and arbitration engine over the given binding
// table and synthesizer backend.
func NewServer(table *action.Table, syn synth.Synthesizer, cfg Config) *Server {
	s := &Server{
		log:   cfg.Logger,
		table: table,
	}
	s.hub = newHub(cfg.Logger)
	s.hub.server = s
	s.engine = arbiter.New(table, syn, arbiter.Config{
		Clock:          cfg.Clock,
		DebounceWindow: cfg.DebounceWindow,
		Logger:         cfg.Logger,
		OnGroupChange:  s.hub.broadcastGroup,
	})
	go s.hub.run()
	return s
}

// Engine exposes the arbitration engine (used by the tray and tests).
func (s *Server) Engine() *arbiter.Engine {
	return s.engine
}

// Handler returns the full route tree.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", web.Handler())
	mux.HandleFunc("/ws", s.hub.handleWebSocket)
	mux.HandleFunc("/key/", s.handleKey)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/health", s.handleHealth)
	return s.logMiddleware(s.recoverMiddleware(mux))
}

// Start serves on the given port. Blocking.
// Binds 0.0.0.0 with explicit tcp4 to avoid IPv6-only binding issues
// on Windows.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		return fmt.Errorf("relay failed to listen on %s: %w", addr, err)
	}

	s.log.Info().Str("addr", addr).Msg("relay listening")
	s.http = &http.Server{Handler: s.Handler()}
	if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server and hub down.
func (s *Server) Stop() {
	if s.http != nil {
		s.http.Close()
	}
	s.hub.stop()
}

// recoverMiddleware prevents a handler panic from crashing the relay.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.Error().Interface("panic", err).Str("path", r.URL.Path).Msg("handler panic recovered")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Msg("request")
		next.ServeHTTP(w, r)
	})
}

// legacyKeyIDs maps the underscore-style ids older clients POST to the
// current binding ids where a plain separator swap is not enough.
var legacyKeyIDs = map[string]action.ID{
	"ui_toggle": action.ToggleUI,
	"hide_ui":   action.HideControls,
}

func normalizeKeyID(raw string) action.ID {
	if id, ok := legacyKeyIDs[raw]; ok {
		return id
	}
	return action.ID(strings.ReplaceAll(raw, "_", "-"))
}

// handleKey handles POST /key/<action>: the plain-HTTP tap path kept
// for clients without a websocket. Each request is its own short-lived
// session, so the tap debounce keys off the remote address instead.
func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := normalizeKeyID(strings.TrimPrefix(r.URL.Path, "/key/"))
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	status, err := s.engine.Dispatch("http:"+host, id, action.PhaseTap)
	if err != nil {
		s.log.Warn().Err(err).Str("action", string(id)).Msg("http tap failed")
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"action": string(id),
		"status": string(status),
	})
}

// handleStatus handles GET /api/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	owners := s.engine.GroupOwners()
	groups := make(map[string]string, len(owners))
	for g, owner := range owners {
		groups[string(g)] = owner
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"sessions": s.hub.count(),
		"groups":   groups,
		"actions":  s.table.IDs(),
	})
}

// handleHealth handles GET /health (for monitoring).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
