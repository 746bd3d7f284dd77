package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopping-planner/internal/app"
	"shopping-planner/internal/config"
	"shopping-planner/internal/logger"
	"shopping-planner/internal/metrics"
	"shopping-planner/internal/session"
	"shopping-planner/internal/shopping"
	"shopping-planner/internal/telegram"

	"go.uber.org/zap"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	// 2. Backend client and per-chat sessions
	client := shopping.NewClient(cfg, zl)
	metricsStore := metrics.NewStore(0)
	sessions := telegram.NewSessionRepository(func() *session.Session {
		return session.New(client, app.SessionOptions(cfg, zl, metricsStore))
	}, telegram.DefaultSessionTTL)
	defer sessions.CloseAll()

	// 3. Initialize Telegram Bot
	bot, err := telegram.NewBot(cfg, sessions, metricsStore, zl)
	if err != nil {
		zl.Fatal("failed to initialize telegram bot", zap.Error(err))
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	bot.StartCleanup(ctx, 10*time.Minute)

	// 4. Start Server with Graceful Shutdown
	mux := http.NewServeMux()
	bot.RegisterHandlers(mux)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	go func() {
		zl.Info("telegram bot server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zl.Info("shutting down server")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		zl.Error("server forced to shutdown", zap.Error(err))
	}

	zl.Info("server exiting")
}
