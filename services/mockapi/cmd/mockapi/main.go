package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ecomarket/internal/marketapi"
	"ecomarket/internal/ratelimit"
	"ecomarket/internal/util"
	"ecomarket/services/mockapi/internal/config"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	tokenTTL, err := config.ParseTokenTTL(cfg.TokenTTL)
	if err != nil {
		log.Fatalf("failed to parse token TTL: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel, os.Stderr)

	store := marketapi.NewStore()
	if cfg.Seed {
		if err := marketapi.Seed(store); err != nil {
			log.Fatalf("failed to seed store: %v", err)
		}
	}
	tokens, err := marketapi.NewTokens(cfg.JWTSecret, tokenTTL)
	if err != nil {
		log.Fatalf("failed to init tokens: %v", err)
	}

	serverCfg := marketapi.Config{
		Store:          store,
		Tokens:         tokens,
		AllowedOrigins: cfg.AllowedOrigins,
		LoginLimit:     cfg.LoginRateLimitPerMinute,
		LoginWindow:    time.Minute,
	}
	if cfg.RedisAddr != "" && cfg.LoginRateLimitPerMinute > 0 {
		limiter, err := ratelimit.NewFixedWindowLimiter(ratelimit.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Prefix:   "ecomarket:ratelimit:login",
			Limit:    cfg.LoginRateLimitPerMinute,
			Window:   time.Minute,
		})
		if err != nil {
			log.Fatalf("failed to init login limiter: %v", err)
		}
		defer limiter.Close()
		serverCfg.LoginLimiter = limiter
	}

	httpServer, err := marketapi.New(serverCfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("mock api listening", "addr", addr, "seeded", cfg.Seed)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
