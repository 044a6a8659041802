package server

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"netwatch/internal/models"
	"netwatch/internal/netstate"
)

const (
	streamWriteTimeout = 5 * time.Second
	snapshotEventName  = "snapshot"
)

var streamUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

func (s *Server) handleStateWS(w http.ResponseWriter, r *http.Request) {
	polling := parsePollingParam(r)
	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.serveStateConnection(conn, polling)
}

// serveStateConnection pushes one initial snapshot and then one message
// per engine event until the client goes away. Each connection holds its
// own engine subscription, so its poller registration lives exactly as
// long as the socket.
func (s *Server) serveStateConnection(conn *websocket.Conn, polling bool) {
	defer conn.Close()

	events := make(chan models.StateEvent, 16)
	sub := s.engine.Subscribe(polling, func(ev netstate.Event, online bool) {
		msg := models.StateEvent{Event: string(ev), Online: online, At: time.Now().UTC()}
		select {
		case events <- msg:
		default:
			// A stalled client drops events; it still sees the correct
			// final state on the next delivered message.
		}
	})
	defer sub.Close()

	initial := models.StateEvent{
		Event:  snapshotEventName,
		Online: s.engine.IsOnline(polling),
		At:     time.Now().UTC(),
	}
	if err := writeStateMessage(conn, initial); err != nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg := <-events:
			if err := writeStateMessage(conn, msg); err != nil {
				s.logger.Debug("stream write failed", zap.Error(err))
				return
			}
		case <-done:
			return
		}
	}
}

func writeStateMessage(conn *websocket.Conn, msg models.StateEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(msg)
}
