package server

import (
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/inland-taipen/teamchat/internal/chat"
	"github.com/inland-taipen/teamchat/internal/config"
	"github.com/inland-taipen/teamchat/internal/gateway"
	"github.com/inland-taipen/teamchat/internal/metrics"
	"github.com/inland-taipen/teamchat/internal/store"
)

// Server holds the dependencies of the HTTP surface.
type Server struct {
	cfg      *config.Config
	store    *store.DB
	hub      *gateway.Hub
	chat     *chat.Service
	metrics  *metrics.Metrics
	log      *slog.Logger
	origins  *originPolicy
	limiters *limiterPool
	upgrader websocket.Upgrader
}

// New builds the HTTP surface over an open store, a hub and the chat
// service driving it.
func New(cfg *config.Config, st *store.DB, hub *gateway.Hub, svc *chat.Service, m *metrics.Metrics, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		store:    st,
		hub:      hub,
		chat:     svc,
		metrics:  m,
		log:      log,
		origins:  newOriginPolicy(cfg.Server.AllowedOrigins, log),
		limiters: &limiterPool{cfg: cfg.HTTP.RateLimit},
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}
	return s
}
