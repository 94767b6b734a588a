package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/klumsiland/chat-server/internal/ai"
	"github.com/klumsiland/chat-server/internal/config"
	"github.com/klumsiland/chat-server/internal/database"
	"github.com/klumsiland/chat-server/internal/handler"
	"github.com/klumsiland/chat-server/internal/jobs"
	"github.com/klumsiland/chat-server/internal/middleware"
	"github.com/klumsiland/chat-server/internal/redis"
	"github.com/klumsiland/chat-server/internal/repository"
	"github.com/klumsiland/chat-server/internal/service"
	"github.com/klumsiland/chat-server/internal/sse"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	isProduction := cfg.IsProduction()
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setLogLevel(cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	codeRepo := repository.NewAccessCodeRepository(db.DB)
	sessionRepo := repository.NewChatSessionRepository(db.DB)
	adminSessionRepo := repository.NewAdminSessionRepository(db.DB)
	messageRepo := repository.NewMessageRepository(db.DB)
	presenceRepo := repository.NewPresenceRepository(redisClient.Client)

	broker := sse.NewBroker(redisClient.Client)
	defer broker.Close()

	presenceService := service.NewPresenceService(presenceRepo, broker, cfg.PresenceTTL())
	accessService := service.NewAccessService(
		db, codeRepo, sessionRepo, adminSessionRepo, messageRepo, broker, presenceService,
		service.AccessPolicy{
			SingleUse:    cfg.AccessCodeSingleUse,
			AdminKeyHash: cfg.AdminAPIKeyHash,
		},
	)
	chatService := service.NewChatService(sessionRepo, messageRepo, broker)

	var generator service.Generator
	if cfg.AIEnabled() {
		generator = ai.NewClient(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AITimeout())
		log.Info().Str("model", cfg.AIModel).Msg("story generation enabled")
	}
	storyService := service.NewStoryService(generator, chatService, service.StoryConfig{
		Model:     cfg.AIModel,
		ImageSize: cfg.AIImageSize,
		Window:    cfg.StoryWindow,
	})

	ctx, cancel = context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := accessService.EnsureAdminCode(ctx, cfg.AdminBootstrapCode); err != nil {
		log.Fatal().Err(err).Msg("failed to provision admin code")
	}
	cancel()

	loginLimiter := middleware.NewRateLimitMiddleware(
		service.NewRateLimiter(redisClient.Client, false),
		service.Limit{Requests: cfg.LoginRateLimitPerMin, Window: config.LoginRateLimitWindow},
		"login", middleware.ByIP,
	)
	messageLimiter := middleware.NewRateLimitMiddleware(
		service.NewRateLimiter(redisClient.Client, true),
		service.Limit{Requests: cfg.MessageRateLimitPerMin, Window: config.MessageRateLimitWindow},
		"message", middleware.BySession,
	)
	adminGateway := middleware.NewAdminGateway(accessService)
	sessionMiddleware := middleware.NewSessionMiddleware(accessService)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	eventsHandler := handler.NewEventsHandler(broker)
	authHandler := handler.NewAuthHandler(accessService, loginLimiter.Handler)
	adminHandler := handler.NewAdminHandler(
		accessService, chatService, presenceService, eventsHandler,
		adminGateway.Handler, loginLimiter.Handler,
	)
	chatHandler := handler.NewChatHandler(
		chatService, presenceService, storyService, eventsHandler,
		sessionMiddleware.Handler, messageLimiter.Handler,
	)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeadersMiddleware.Handler)
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Mount("/api/auth", authHandler.Routes())
	r.Mount("/api/admin", adminHandler.Routes())
	r.Mount("/api/chat", chatHandler.Routes())

	presenceJob := jobs.NewPresenceJob(presenceService, config.PresenceSweepInterval, config.PresenceRetention)
	presenceJob.Start()
	defer presenceJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
