package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/inland-taipen/teamchat/internal/gateway"
	"github.com/inland-taipen/teamchat/internal/store"
)

// WebSocketHandler authenticates the handshake, upgrades the connection and
// hands it to the gateway. The session's user becomes the connection's
// identity for its whole lifetime.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	user, _, err := s.authenticate(r)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		s.log.Error("websocket_auth_failed", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket_upgrade_failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := gateway.NewConn(ws, s.hub, user.ID, r.RemoteAddr)
	if err := s.hub.Register(c); err != nil {
		s.log.Warn("websocket_register_failed", "user", user.ID, "error", err)
		_ = ws.Close()
	}
}

// HealthHandler reports that the process is serving.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "teamchat server is running")
}
