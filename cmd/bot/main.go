package main

import (
	"context"
	"flag"
	"os/signal"
	"sync"
	"syscall"

	"github.com/xaenox/micronote/internal/bot"
	"github.com/xaenox/micronote/internal/classifier"
	"github.com/xaenox/micronote/internal/llm"
	"github.com/xaenox/micronote/internal/metrics"
	"github.com/xaenox/micronote/internal/models"
	"github.com/xaenox/micronote/internal/pipeline"
	"github.com/xaenox/micronote/internal/prompts"
	"github.com/xaenox/micronote/internal/ratelimit"
	"github.com/xaenox/micronote/internal/reminders"
	"github.com/xaenox/micronote/internal/server"
	"github.com/xaenox/micronote/internal/storage"
	"github.com/xaenox/micronote/internal/whatsapp"
	"github.com/xaenox/micronote/pkg/config"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", *configPath))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Initialize storage and the shared rate limiter
	var (
		store   storage.Storage
		limiter ratelimit.Limiter
	)
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
		limiter = ratelimit.NewMemoryLimiter()
	} else {
		logger.Info("Using PostgreSQL storage")
		pg, err := storage.NewPostgresStorage(ctx, storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
		store = pg
		limiter = ratelimit.NewPostgresLimiter(pg.DB())
	}
	defer store.Close()

	loc, err := cfg.Pipeline.Location()
	if err != nil {
		logger.Fatal("Invalid pipeline config", zap.Error(err))
	}

	// Initialize LLM gateway
	var provider llm.Provider
	switch cfg.LLM.Provider {
	case "openai":
		provider = llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:      cfg.OpenAI.APIKey,
			Model:       cfg.OpenAI.Model,
			BaseURL:     cfg.LLM.BaseURL,
			MaxTokens:   cfg.OpenAI.MaxTokens,
			Temperature: cfg.OpenAI.Temperature,
		})
	default:
		provider = llm.NewGeminiClient(llm.GeminiConfig{
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			BaseURL: cfg.LLM.BaseURL,
			Timeout: cfg.LLM.Timeout,
		})
	}
	gateway := llm.NewGateway(
		provider,
		limiter,
		llm.Limits{PerMinute: cfg.LLM.RequestsPerMinute, PerDay: cfg.LLM.RequestsPerDay},
		prompts.NewBuilder(loc, nil),
		logger,
		m,
	)
	if !gateway.Available() {
		logger.Warn("No LLM credential configured, classification will be regex only",
			zap.String("provider", provider.Name()))
	}

	// Initialize classifier and pipeline
	regex := classifier.NewRegexClassifier(cfg.Classifier.Patterns, logger)
	hybrid := classifier.NewHybrid(regex, gateway, cfg.Classifier.TrustAISimple, logger, m)
	processor := pipeline.NewProcessor(
		store,
		hybrid,
		gateway,
		pipeline.Options{MultiActionEnabled: cfg.Pipeline.MultiActionEnabled},
		logger,
		m,
	)

	senders := map[models.Channel]reminders.Sender{}

	waClient := whatsapp.NewClient(whatsapp.Config{
		Token:         cfg.WhatsApp.Token,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		BaseURL:       cfg.WhatsApp.BaseURL,
	}, logger)
	var replier server.Replier
	if waClient.Configured() {
		senders[models.ChannelWhatsApp] = waClient
		replier = waClient
	}

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				logger.Error("Component stopped with error", zap.String("component", name), zap.Error(err))
				stop()
			}
		}()
	}

	// Initialize bot
	if cfg.Telegram.Token != "" {
		b, err := bot.New(cfg.Telegram.Token, store, processor, logger)
		if err != nil {
			logger.Fatal("Failed to create bot", zap.Error(err))
		}
		senders[models.ChannelTelegram] = b
		run("telegram", b.Start)
	} else {
		logger.Warn("TELEGRAM_TOKEN not set, Telegram channel disabled")
	}

	srv := server.New(server.Config{
		Port:        cfg.Server.Port,
		VerifyToken: cfg.WhatsApp.VerifyToken,
	}, processor, hybrid, replier, logger)
	run("http", srv.Run)

	dispatcher := reminders.NewDispatcher(store, senders, reminders.Config{
		PollInterval: cfg.Reminders.PollInterval,
		BatchSize:    cfg.Reminders.BatchSize,
	}, logger, m)
	run("reminders", dispatcher.Run)

	<-ctx.Done()
	logger.Info("Shutting down")
	wg.Wait()
}
