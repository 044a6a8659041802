package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"netwatch/internal/netstate"
)

// Server wraps HTTP serving of the connectivity API and the websocket
// state stream.
type Server struct {
	httpServer *http.Server
	engine     *netstate.Engine
	logger     *zap.Logger
}

// New creates a configured HTTP server over the engine.
func New(addr string, engine *netstate.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{Addr: addr, Handler: mux},
		engine:     engine,
		logger:     logger.Named("server"),
	}
	s.registerRoutes(mux)
	return s
}

// Run blocks and serves HTTP traffic.
func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the route table, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/online", s.handleOnline)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/ws/state", s.handleStateWS)
}

func (s *Server) handleOnline(w http.ResponseWriter, r *http.Request) {
	polling := parsePollingParam(r)
	writeJSON(w, http.StatusOK, map[string]bool{"online": s.engine.IsOnline(polling)})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// parsePollingParam reads the optional ?polling= override; polling
// defaults to enabled.
func parsePollingParam(r *http.Request) bool {
	raw := strings.TrimSpace(r.URL.Query().Get("polling"))
	if raw == "" {
		return true
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
