package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ziadkadry99/distill/internal/logger"
	"github.com/ziadkadry99/distill/internal/pipeline"
)

const (
	defaultStatusInterval = 2 * time.Second
	streamWriteWait       = 10 * time.Second
)

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return s.cfg.AllowAll || localOrigin(r.Header.Get("Origin"))
		},
	}
}

// localOrigin accepts same-machine browsers and non-browser clients,
// which send no Origin header.
func localOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// handleStatusStream serves GET /api/status/stream. It upgrades to a
// websocket, sends the current status, then sends it again whenever it
// changes, so a client can watch a `distill run` in another process.
func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("status stream upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Clients only send close frames; reading processes them.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug("status stream read", "error", err)
				}
				return
			}
		}
	}()

	interval := s.cfg.StatusInterval
	if interval <= 0 {
		interval = defaultStatusInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last []byte
	for {
		st, err := pipeline.ReadStatus(r.Context(), s.store, s.tracker)
		if err != nil {
			logger.Warn("status stream read status failed", "error", err)
			return
		}
		msg, err := json.Marshal(st)
		if err != nil {
			return
		}
		if !bytes.Equal(msg, last) {
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("status stream write", "error", err)
				return
			}
			last = msg
		}

		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
