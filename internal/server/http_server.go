package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/inland-taipen/teamchat/internal/config"
)

// CreateServer creates an HTTP server for handler using the configured
// listener address and timeouts.
func CreateServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Port,
		Handler:      handler,
		ReadTimeout:  orDefault(cfg.ReadTimeout, 15*time.Second),
		WriteTimeout: orDefault(cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:  orDefault(cfg.IdleTimeout, 60*time.Second),
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// StartServer listens and serves until the server is shut down.
// http.ErrServerClosed is returned after a graceful shutdown.
func StartServer(srv *http.Server, log *slog.Logger) error {
	log.Info("server_listening", "addr", srv.Addr)
	return srv.ListenAndServe()
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting
// active requests, waiting at most timeout. Hijacked websocket connections
// are not tracked here; the gateway closes those.
func ShutdownServer(srv *http.Server, timeout time.Duration, log *slog.Logger) error {
	log.Info("http_shutdown_started")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("http_shutdown_failed", "error", err)
		return err
	}

	log.Info("http_shutdown_completed")
	return nil
}
