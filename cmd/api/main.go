package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/haloweavedev/laine/internal/api/router"
	"github.com/haloweavedev/laine/internal/audit"
	"github.com/haloweavedev/laine/internal/callstate"
	appconfig "github.com/haloweavedev/laine/internal/config"
	"github.com/haloweavedev/laine/internal/intent"
	"github.com/haloweavedev/laine/internal/nexhealth"
	"github.com/haloweavedev/laine/internal/notify"
	"github.com/haloweavedev/laine/internal/observability/metrics"
	"github.com/haloweavedev/laine/internal/practice"
	"github.com/haloweavedev/laine/internal/voice"
	"github.com/haloweavedev/laine/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting laine API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	// Durable call state in Redis.
	rdb := redis.NewClient(redisOptions(cfg))
	stateStore := callstate.NewStoreWithTTL(rdb, cfg.CallStateTTL)

	// Practice configuration and audit trail in Postgres.
	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("open database", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()
	practiceStore := practice.NewStore(db)
	auditService := audit.NewService(db)

	// Scheduling adapter.
	adapter, err := nexhealth.NewClient(cfg.NexHealthBaseURL, cfg.NexHealthAPIKey, logger,
		nexhealth.WithTimeout(cfg.NexHealthTimeout))
	if err != nil {
		logger.Error("nexhealth client", "error", err.Error())
		os.Exit(1)
	}

	// Intent classifier: Bedrock primary, Gemini fallback when configured.
	llm, err := buildLLMClient(ctx, cfg, logger)
	if err != nil {
		logger.Error("llm client", "error", err.Error())
		os.Exit(1)
	}
	matcher := intent.NewMatcher(llm, cfg.BedrockModelID, logger)

	// Booking notification email.
	var emailSender notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		emailSender = sg
	} else {
		logger.Warn("SENDGRID_API_KEY not set, booking emails are stubbed")
		emailSender = notify.NewStubEmailSender(logger)
	}

	toolMetrics := metrics.NewToolCallMetrics(prometheus.DefaultRegisterer)

	orchestrator := voice.NewOrchestrator(voice.OrchestratorConfig{
		Adapter:         adapter,
		Matcher:         matcher,
		Practices:       practiceStore,
		Email:           emailSender,
		Metrics:         toolMetrics,
		Logger:          logger,
		MaxSlotsPerTurn: cfg.MaxSlotsPerTurn,
		SlotSearchDays:  cfg.SlotSearchDays,
	})
	dispatcher := voice.NewDispatcher(voice.DispatcherConfig{
		Orchestrator:  orchestrator,
		Store:         stateStore,
		Audit:         auditService,
		Metrics:       toolMetrics,
		Logger:        logger,
		WebhookSecret: cfg.VoiceWebhookSecret,
	})

	syncer := practice.NewSyncer(adapter, practiceStore, logger)
	practiceHandler := practice.NewHandler(practiceStore, syncer, logger)

	r := router.New(&router.Config{
		Logger:          logger,
		VoiceWebhook:    dispatcher,
		PracticeAdmin:   practiceHandler,
		AdminAuthSecret: cfg.AdminAuthSecret,
		MetricsHandler:  promhttp.Handler(),
		WebhookRate:     10,
		WebhookBurst:    30,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func redisOptions(cfg *appconfig.Config) *redis.Options {
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// buildLLMClient wires the Bedrock Converse client, with Gemini as a
// fallback when a Gemini key is configured.
func buildLLMClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (intent.LLMClient, error) {
	loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, err
	}
	bedrock := intent.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))

	if cfg.GeminiAPIKey == "" {
		return bedrock, nil
	}
	gemini, err := intent.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
	if err != nil {
		logger.Warn("gemini client unavailable, using bedrock only", "error", err.Error())
		return bedrock, nil
	}
	return intent.NewFallbackLLMClient(bedrock, gemini, logger), nil
}
