package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"facultychat/internal/app"
	"facultychat/internal/auth"
	"facultychat/internal/config"
	"facultychat/internal/logging"
	"facultychat/internal/metrics"
	"facultychat/internal/realtime"
	"facultychat/internal/retention"
	"facultychat/internal/rooms"
	"facultychat/internal/session"
	"facultychat/internal/store"
)

func main() {
	cfg := config.Load()
	logger := logging.Init(cfg.LogLevel)
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal(logger, "database_connection_failed", err)
	}
	defer db.Close()

	migrations, err := store.Migrations(cfg.MigrationsDir)
	if err != nil {
		fatal(logger, "migrations_open_failed", err)
	}
	if err := store.ApplyMigrations(ctx, db, migrations); err != nil {
		fatal(logger, "migrations_failed", err)
	}

	sessions, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		fatal(logger, "redis_connection_failed", err)
	}
	defer sessions.Close()

	location, err := time.LoadLocation(cfg.DisplayTZ)
	if err != nil {
		logger.Warn("display_tz_invalid", "tz", cfg.DisplayTZ, "error", err)
		location = time.UTC
	}

	dataStore := store.NewPostgresStore(db)
	m := metrics.New()
	catalog := rooms.NewCatalog(cfg.RoomCatalog)
	registry := rooms.NewRegistry()
	resolver := auth.NewResolver([]byte(cfg.SessionSecret), cfg.SessionCookie, sessions, dataStore)
	service := app.New(cfg, dataStore, registry, catalog, m)

	gateway := realtime.NewGateway(resolver, service, registry, catalog, realtime.Options{
		AllowedOrigin: cfg.CORSOrigin,
		UnauthGrace:   cfg.UnauthGrace,
		SendRate:      cfg.SendRate,
		SendBurst:     cfg.SendBurst,
		Location:      location,
	})
	m.TrackLive(gateway.Connections, registry.ActiveRooms)

	sweeper, err := retention.New(dataStore, m, retention.Options{
		Interval: cfg.SweepInterval,
		Cron:     cfg.SweepCron,
	})
	if err != nil {
		fatal(logger, "retention_config_invalid", err)
	}
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go sweeper.Run(sweepCtx)

	httpServer := app.NewHTTPServer(service, resolver, cfg.CORSOrigin)
	httpServer.AddReadinessCheck("redis", sessions.Ping)
	httpServer.SetSweeper(sweeper)

	mux := http.NewServeMux()
	mux.Handle("/ws", gateway)
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/", httpServer.Handler())

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server_listening", "addr", cfg.Addr, "rooms", len(catalog.Names()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal(logger, "server_failed", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stopSweeper()
	if err := gateway.Shutdown(shutdownCtx); err != nil {
		logger.Warn("realtime_shutdown_incomplete", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown_error", "error", err)
	}
}

func fatal(logger *slog.Logger, event string, err error) {
	logger.Error(event, "error", err)
	os.Exit(1)
}
