package main

import (
	"errors"
	"fmt"

	validator "github.com/go-playground/validator/v10"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/aistrategyllc/checkout-api/internal/catalog"
	"github.com/aistrategyllc/checkout-api/internal/config"
	"github.com/aistrategyllc/checkout-api/internal/notify"
	"github.com/aistrategyllc/checkout-api/internal/payment"
	"github.com/aistrategyllc/checkout-api/internal/ratelimit"
	"github.com/aistrategyllc/checkout-api/internal/tracking"
)

// services groups the request handlers built from configuration.
type services struct {
	Checkout        *payment.Handler
	Webhook         payment.Webhook
	Ledger          *notify.LedgerHandler
	Tracker         *tracking.Fanout
	CheckoutLimiter *limiter.Limiter
}

func newServices(cfg *config.Config, logger *zerolog.Logger, rdb *redis.Client, queue notify.Enqueuer) (*services, error) {
	products, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info().Strs("products", products.Keys()).Str("default_product", products.Default().Key).Msg("catalog_loaded")

	provider := payment.NewStripe(payment.StripeConfig{
		SecretKey:        cfg.StripeSecretKey,
		WebhookSecret:    cfg.StripeWebhookSecret,
		APIURL:           cfg.StripeAPIURL,
		Timeout:          cfg.StripeTimeout,
		WebhookTolerance: cfg.StripeWebhookTolerance,
		Logger:           logger,
	})
	if missing := provider.MissingCredentials(); len(missing) > 0 {
		logger.Warn().Strs("missing", missing).Msg("configuration_error")
	}
	if cfg.StripeWebhookSecret == "" {
		logger.Warn().Str("setting", "STRIPE_WEBHOOK_SECRET").Msg("configuration_error")
	}

	initiator := &payment.Initiator{
		Provider:     provider,
		Catalog:      products,
		BaseURL:      cfg.PublicBaseURL,
		SupportEmail: cfg.SupportEmail,
		Logger:       logger,
	}

	ledger := &notify.LedgerSender{Logger: logger, Redis: rdb, Key: cfg.FulfillmentLedger}
	notifier := &notify.Notifier{
		Sender:   fulfillmentSender(cfg, logger, queue, ledger),
		Fallback: ledger,
		Timeout:  cfg.FulfillmentTimeout,
		Logger:   logger,
	}
	if cfg.FulfillmentDedupTTL > 0 {
		if rdb == nil {
			logger.Warn().Msg("FULFILLMENT_DEDUP_TTL ignored: REDIS_URL is not set")
		} else {
			notifier.Dedup = notify.RedisDedup{Client: rdb, TTL: cfg.FulfillmentDedupTTL}
		}
	}

	fanout := &tracking.Fanout{
		Trackers: tracking.Trackers(tracking.Settings{
			FacebookPixelID:     cfg.FacebookPixelID,
			FacebookAccessToken: cfg.FacebookAccessToken,
			TikTokPixelID:       cfg.TikTokPixelID,
			TikTokAccessToken:   cfg.TikTokAccessToken,
			GAMeasurementID:     cfg.GAMeasurementID,
			GAAPISecret:         cfg.GAAPISecret,
			Timeout:             cfg.TrackingTimeout,
			Logger:              logger,
		}),
		Catalog: products,
		Timeout: cfg.TrackingTimeout,
		Logger:  logger,
	}

	store, err := ratelimit.NewStore(rdb, "ratelimit:checkout")
	if err != nil {
		return nil, err
	}
	checkoutLimiter, err := ratelimit.New(store, cfg.CheckoutRateLimit)
	if err != nil {
		return nil, err
	}

	return &services{
		Checkout: &payment.Handler{Initiator: initiator, Validator: validator.New(), Logger: logger},
		Webhook: payment.Webhook{
			Provider:     provider,
			Fulfiller:    notifier,
			Tracker:      fanout,
			MaxBodyBytes: cfg.WebhookMaxBodySize,
			Logger:       logger,
		},
		Ledger:          &notify.LedgerHandler{Ledger: ledger},
		Tracker:         fanout,
		CheckoutLimiter: checkoutLimiter,
	}, nil
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	products := catalog.Builtin(cfg.PriceIDs)
	if cfg.CatalogFile != "" {
		extra, err := catalog.LoadFile(cfg.CatalogFile)
		if err != nil {
			return nil, err
		}
		for _, p := range extra {
			if p.PriceID == "" {
				p.PriceID = cfg.PriceIDs[p.Key]
			}
			products = append(products, p)
		}
	}
	c, err := catalog.New(cfg.DefaultProduct, products...)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return c, nil
}

func fulfillmentSender(cfg *config.Config, logger *zerolog.Logger, queue notify.Enqueuer, ledger *notify.LedgerSender) notify.Sender {
	mode := cfg.ResolvedFulfillmentMode()
	switch mode {
	case config.FulfillmentModeEmail:
		if cfg.BrevoAPIKey == "" {
			logger.Warn().Str("setting", "BREVO_API_KEY").Msg("configuration_error")
			break
		}
		logger.Info().Str("mode", mode).Msg("fulfillment channel selected")
		return notify.NewBrevoSender(brevoConfig(cfg))
	case config.FulfillmentModeQueue:
		if queue == nil {
			logger.Warn().Err(errors.New("REDIS_URL is not set")).Msg("queue fulfillment unavailable; recording to ledger")
			break
		}
		logger.Info().Str("mode", mode).Msg("fulfillment channel selected")
		return &notify.QueueSender{Client: queue, Queue: notify.QueueEmail, MaxRetry: notify.WelcomeMaxRetry}
	}
	logger.Info().Str("mode", config.FulfillmentModeLog).Msg("fulfillment channel selected")
	return ledger
}

func brevoConfig(cfg *config.Config) notify.BrevoConfig {
	return notify.BrevoConfig{
		APIKey:   cfg.BrevoAPIKey,
		BaseURL:  cfg.BrevoAPIURL,
		From:     cfg.EmailFrom,
		FromName: cfg.EmailFromName,
		ReplyTo:  cfg.EmailReplyTo,
		Support:  cfg.SupportEmail,
	}
}
