package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/aistrategyllc/checkout-api/internal/config"
	"github.com/aistrategyllc/checkout-api/internal/notify"
	"github.com/aistrategyllc/checkout-api/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()
	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "checkout"), nil)

	if cfg.RedisURL == "" {
		logger.Fatal().Str("setting", "REDIS_URL").Msg("configuration_error")
	}
	if cfg.BrevoAPIKey == "" {
		logger.Fatal().Str("setting", "BREVO_API_KEY").Msg("configuration_error")
	}
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.QueueConcurrency,
		Queues:      map[string]int{notify.QueueEmail: 1},
		Logger:      obs.LeveledLogger{Logger: logger, Component: "asynq"},
	})

	mux := asynq.NewServeMux()
	notify.WelcomeEmailWorker{
		Sender: notify.NewBrevoSender(notify.BrevoConfig{
			APIKey:   cfg.BrevoAPIKey,
			BaseURL:  cfg.BrevoAPIURL,
			From:     cfg.EmailFrom,
			FromName: cfg.EmailFromName,
			ReplyTo:  cfg.EmailReplyTo,
			Support:  cfg.SupportEmail,
		}),
		Logger: &logger,
	}.Register(mux)

	logger.Info().Int("concurrency", cfg.QueueConcurrency).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
