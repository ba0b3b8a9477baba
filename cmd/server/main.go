package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/nhasan/chathub/internal/ai"
	"github.com/nhasan/chathub/internal/auth"
	"github.com/nhasan/chathub/internal/cache"
	"github.com/nhasan/chathub/internal/knowledge"
	"github.com/nhasan/chathub/internal/pipeline"
	"github.com/nhasan/chathub/internal/ratelimit"
	"github.com/nhasan/chathub/internal/server"
	"github.com/nhasan/chathub/internal/storage"
	"github.com/nhasan/chathub/pkg/config"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		dbConfig := storage.DatabaseConfig{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			DBName:      cfg.Database.DBName,
			SSLMode:     cfg.Database.SSLMode,
			UseInMemory: cfg.Database.UseInMemory,
		}
		store, err = storage.NewPostgresStorage(dbConfig, logger)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Response cache; degrades to a no-op when Redis is unreachable
	responseCache := cache.New(ctx, cfg.Redis.URL, logger)
	defer responseCache.Close()

	// AI provider is selected once at startup; an unknown name is fatal
	client, err := ai.NewClient(ctx, cfg.AI)
	if err != nil {
		logger.Fatal("Failed to initialize AI provider",
			zap.Error(err),
			zap.String("provider", cfg.AI.Provider))
	}
	logger.Info("AI provider initialized",
		zap.String("provider", cfg.AI.Provider),
		zap.String("model", cfg.AI.Model))

	gateway := ai.NewGateway(client, responseCache, cfg.AI.Model, cfg.AI.MaxHistory,
		cfg.Cache.TTL, cfg.AI.Timeout, logger)

	knowledgeService := knowledge.NewService(store, gateway, logger)

	pipe := pipeline.New(store, knowledgeService, gateway, cfg.AI.MaxHistory,
		cfg.Server.RequestTimeout, logger)

	limiter := ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.Window)

	authService := auth.NewService(cfg.Auth.SecretKey, cfg.Auth.TokenExpiry)

	// Telegram is optional; without a token the webhook routes are not mounted
	var telegramHandler *server.TelegramHandler
	if cfg.Telegram.Token != "" {
		api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			logger.Fatal("Failed to create telegram bot", zap.Error(err))
		}
		telegramHandler = server.NewTelegramHandler(api, pipe, cfg.Telegram.WebhookURL, logger)
		logger.Info("Telegram integration enabled")
	} else {
		logger.Warn("Telegram token not set, telegram integration disabled")
	}

	// Outbound WhatsApp messaging is optional; inbound webhooks work without it
	var twilioClient *server.TwilioClient
	if cfg.Twilio.AccountSID != "" {
		twilioClient = server.NewTwilioClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.WhatsAppNumber)
		logger.Info("WhatsApp outbound messaging enabled")
	}

	info := server.Info{
		Provider:          cfg.AI.Provider,
		Model:             cfg.AI.Model,
		MaxHistory:        cfg.AI.MaxHistory,
		Temperature:       cfg.AI.Temperature,
		MaxTokens:         cfg.AI.MaxTokens,
		RateLimitRequests: cfg.RateLimit.Requests,
		RedisConfigured:   cfg.Redis.URL != "",
	}

	srv := server.New(pipe, store, knowledgeService, limiter, authService, telegramHandler, twilioClient, info, logger)

	if err := srv.Run(ctx, cfg.Server.Addr); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}
