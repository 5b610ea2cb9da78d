// File: cmd/devserver/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"graphql-chat-client/internal/config"
	"graphql-chat-client/internal/devserver"
	"graphql-chat-client/internal/domain/ports/adapter"
	"graphql-chat-client/internal/infra/logging"
	"graphql-chat-client/internal/infra/metrics"
	"graphql-chat-client/internal/infra/responder"
	"graphql-chat-client/internal/infra/worker"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	// ---- Store ----
	var store devserver.Store
	if cfg.DevServer.DatabaseURL != "" {
		pgStore, err := devserver.NewPostgresStore(ctx, cfg.DevServer.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres store")
		}
		defer pgStore.Close()
		store = pgStore
		logger.Info().Msg("store: postgres")
	} else {
		store = devserver.NewMemoryStore()
		logger.Info().Msg("store: memory")
	}

	// ---- Auth ----
	secret := cfg.DevServer.JWTSecret
	if secret == "" {
		secret = "dev-secret-change-me"
		logger.Warn().Msg("devserver.jwt_secret not set; using insecure dev secret")
	}
	auth := devserver.NewAuthManager(secret, cfg.DevServer.TokenTTL)

	// ---- Bot responder ----
	var bot adapter.Responder
	switch cfg.Responder.Mode {
	case "openai":
		bot, err = responder.NewOpenAI(cfg.Responder.OpenAIKey, cfg.Responder.OpenAIModel, cfg.Responder.MaxPromptTokens)
		if err != nil {
			logger.Fatal().Err(err).Msg("openai responder")
		}
		logger.Info().Str("model", cfg.Responder.OpenAIModel).Msg("responder: openai")
	case "gemini":
		bot, err = responder.NewGemini(ctx, cfg.Responder.GeminiKey, cfg.Responder.GeminiURL, "")
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini responder")
		}
		logger.Info().Msg("responder: gemini")
	default:
		bot = responder.NewHeuristic(time.Now().UnixNano())
		logger.Info().Msg("responder: heuristic")
	}

	// ---- Workers ----
	pool := worker.NewPool(cfg.DevServer.BotWorkers, logger)
	pool.Start(ctx)
	defer pool.Stop()

	// ---- HTTP ----
	srv := devserver.NewServer(store, auth, bot, pool, cfg.Responder.MinDelay, cfg.Responder.MaxDelay, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.DevServer.Port),
		Handler: srv.Router(),
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("devserver listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	cancel()
}
