package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/inland-taipen/teamchat/internal/chat"
	"github.com/inland-taipen/teamchat/internal/config"
	"github.com/inland-taipen/teamchat/internal/gateway"
	"github.com/inland-taipen/teamchat/internal/logging"
	"github.com/inland-taipen/teamchat/internal/metrics"
	"github.com/inland-taipen/teamchat/internal/server"
	"github.com/inland-taipen/teamchat/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Sink)
	log.Info("starting_teamchat", "addr", cfg.Server.Port, "database", cfg.Storage.Database)

	if err := os.MkdirAll(cfg.Storage.UploadsDir, 0o755); err != nil {
		log.Error("create_uploads_dir_failed", "error", err)
		os.Exit(1)
	}

	db, err := store.Open(cfg.Storage.Database, log)
	if err != nil {
		log.Error("open_store_failed", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	hub := gateway.NewHub(gateway.Options{
		MaxMessageSize: cfg.Realtime.MaxMessageSize,
		SendBuffer:     cfg.Realtime.SendBuffer,
		RateLimit:      cfg.Realtime.RateLimit,
		Logger:         log,
		Metrics:        m,
	})
	svc := chat.NewService(hub, db, chat.Options{
		InlineAttachmentLimit: cfg.Realtime.InlineAttachmentLimit,
		AuthorizeJoins:        cfg.Realtime.AuthorizeJoins,
		TypingTTL:             cfg.Realtime.TypingTTL,
		Logger:                log,
		Metrics:               m,
	})
	hub.SetHandler(svc)
	go hub.Run()

	srv := server.New(cfg, db, hub, svc, m, log)
	httpServer := server.CreateServer(cfg.Server, srv.SetupRoutes())

	errs := make(chan error, 1)
	go func() {
		errs <- server.StartServer(httpServer, log)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	exit := 0
	select {
	case s := <-sig:
		log.Info("shutdown_signal", "signal", s.String())
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server_failed", "error", err)
			exit = 1
		}
	}

	if err := server.ShutdownServer(httpServer, cfg.Server.ShutdownTimeout, log); err != nil {
		exit = 1
	}
	if err := hub.Shutdown(cfg.Server.ShutdownTimeout); err != nil {
		log.Error("gateway_shutdown_failed", "error", err)
		exit = 1
	}
	if err := db.Close(); err != nil {
		log.Error("close_store_failed", "error", err)
		exit = 1
	}
	log.Info("teamchat_stopped")
	os.Exit(exit)
}
