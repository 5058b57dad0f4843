package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"hearth/api/internal/app"
	"hearth/api/internal/config"
	"hearth/api/internal/export"
	"hearth/api/internal/logging"
	"hearth/api/internal/realtime"
	"hearth/api/internal/search"
	"hearth/api/internal/session"
	"hearth/api/internal/store"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger, logCloser := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal(logger, "database connection failed", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		fatal(logger, "migrations failed", err)
	}

	dataStore := store.NewPostgresStore(db)

	var meiliClient *search.Meili
	if cfg.MeiliURL != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
	}
	searchService := search.NewService(meiliClient, search.NewPgLike(db), logger)
	defer searchService.Close()
	if meiliClient != nil {
		go searchService.ReindexAllFromPG(ctx)
	}

	exporter := export.NewService(cfg.ChromePath)
	if !exporter.Available() {
		logger.Warn("headless chrome not found; pdf export disabled", "chrome_path", cfg.ChromePath)
	}

	opts := []app.Option{app.WithSearch(searchService), app.WithExporter(exporter)}
	if cfg.RedisURL != "" {
		client, err := session.Dial(ctx, cfg.RedisURL)
		if err != nil {
			fatal(logger, "redis connection failed", err)
		}
		defer client.Close()
		logger.Info("using redis for sessions and live events")
		opts = append(opts,
			app.WithSessions(session.NewRedisStoreWithClient(client)),
			app.WithEvents(realtime.NewPublisher(client)),
		)
	} else {
		logger.Info("using postgres for sessions; live events disabled")
	}

	service := app.New(cfg, dataStore, logger, opts...)
	if err := service.Bootstrap(ctx); err != nil {
		logger.Warn("bootstrap failed, will retry on next restart", "error", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("hearth api listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "server failed", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
