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

	"serenity/gateway/internal/booking"
	"serenity/gateway/internal/config"
	"serenity/gateway/internal/http-server/handlers"
	"serenity/gateway/internal/http-server/router"
	"serenity/gateway/internal/lib/logger/sl"
	"serenity/gateway/internal/token"
	"serenity/gateway/internal/upstream"
)

const (
	envLocal = "local"
	envDev   = "dev"

	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.FromFlags()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("invalid configuration", sl.Err(err))
		os.Exit(1)
	}

	log := setupLogger(cfg.Env)
	log.Info("starting gateway", slog.String("env", cfg.Env), slog.String("address", cfg.HTTPServer.Address))
	log.Debug("debug messages are enabled")

	store, closeStore, err := setupTokenStore(cfg.Token)
	if err != nil {
		log.Error("failed to init token store", sl.Err(err))
		os.Exit(1)
	}
	defer closeStore()

	client := upstream.New(log, upstream.Options{
		BaseURL: cfg.Upstream.BaseURL,
		APIKey:  cfg.Upstream.APIKey,
		SiteID:  cfg.Upstream.SiteID,
		Timeout: cfg.Upstream.Timeout,
	})
	cache := token.NewCache(log, client,
		token.Credentials{Username: cfg.Upstream.Username, Password: cfg.Upstream.Password},
		token.WithTTL(cfg.Token.TTL),
		token.WithRefreshBuffer(cfg.Token.RefreshBuffer),
		token.WithStore(store),
	)
	client.SetTokenSource(cache)

	svc := booking.New(log, client,
		booking.WithClientLoginMode(cfg.Clients.LoginMode),
		booking.WithWalkBudget(cfg.WalkBudget()),
	)
	if svc.LoginMode() == config.ClientLoginEmailMatch {
		log.Warn("client login accepts any password for a known email",
			slog.String("login_mode", config.ClientLoginEmailMatch))
	}

	hopts := handlers.Options{PassthroughStatus: cfg.Upstream.PassthroughStatus}
	if cfg.Debug {
		hopts.Debug = client
	}

	srv := &http.Server{
		Addr: cfg.HTTPServer.Address,
		Handler: router.New(log, handlers.New(log, svc, hopts), router.Options{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			TrustProxy:     cfg.HTTPServer.TrustProxy,
			RPS:            cfg.RateLimit.RPS,
			Burst:          cfg.RateLimit.Burst,
		}),
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", sl.Err(err))
			os.Exit(1)
		}
	}()

	log.Info("server started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("stopping server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("failed to stop server", sl.Err(err))
		return
	}

	log.Info("server stopped")
}

// setupTokenStore keeps the site token in Redis when a URL is configured so
// that several gateway instances share one token.
func setupTokenStore(cfg config.Token) (token.Store, func(), error) {
	if cfg.RedisURL == "" {
		return token.NewMemoryStore(), func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rs, err := token.NewRedisStoreFromURL(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return rs, func() { _ = rs.Close() }, nil
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	default: // prod
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
