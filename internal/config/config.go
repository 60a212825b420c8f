package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Fulfillment delivery modes.
const (
	FulfillmentModeAuto  = "auto"
	FulfillmentModeEmail = "email"
	FulfillmentModeQueue = "queue"
	FulfillmentModeLog   = "log"
)

// Config holds application configuration loaded from the environment.
// It is read once at start and treated as immutable afterwards.
type Config struct {
	AppEnv             string
	Port               string
	PublicBaseURL      string
	RedisURL           string
	CORSAllowedOrigins []string

	StripeSecretKey        string
	StripeWebhookSecret    string
	StripeAPIURL           string
	StripeTimeout          time.Duration
	StripeWebhookTolerance time.Duration
	PriceIDs               map[string]string

	CatalogFile        string
	DefaultProduct     string
	CheckoutRateLimit  string
	WebhookMaxBodySize int64

	FulfillmentMode     string
	FulfillmentTimeout  time.Duration
	FulfillmentDedupTTL time.Duration
	FulfillmentLedger   string
	QueueConcurrency    int

	BrevoAPIKey   string
	BrevoAPIURL   string
	EmailFrom     string
	EmailFromName string
	EmailReplyTo  string
	SupportEmail  string

	FacebookPixelID     string
	FacebookAccessToken string
	TikTokPixelID       string
	TikTokAccessToken   string
	GAMeasurementID     string
	GAAPISecret         string
	TrackingTimeout     time.Duration
}

// Load reads configuration from environment variables and optional .env files.
// Payment and email credentials are optional here; their absence is reported
// by the component that needs them.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		PublicBaseURL:      strings.TrimRight(strings.TrimSpace(k.String("PUBLIC_BASE_URL")), "/"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		StripeSecretKey:        strings.TrimSpace(k.String("STRIPE_SECRET_KEY")),
		StripeWebhookSecret:    strings.TrimSpace(k.String("STRIPE_WEBHOOK_SECRET")),
		StripeAPIURL:           strings.TrimSpace(k.String("STRIPE_API_URL")),
		StripeTimeout:          parseDuration(k.String("STRIPE_TIMEOUT"), "80s"),
		StripeWebhookTolerance: parseDuration(k.String("STRIPE_WEBHOOK_TOLERANCE"), "5m"),
		PriceIDs: map[string]string{
			"sprint": strings.TrimSpace(k.String("STRIPE_PRICE_ID")),
			"solo":   strings.TrimSpace(k.String("STRIPE_PRICE_SOLO")),
			"plus":   strings.TrimSpace(k.String("STRIPE_PRICE_PLUS")),
			"family": strings.TrimSpace(k.String("STRIPE_PRICE_FAMILY")),
		},

		CatalogFile:        strings.TrimSpace(k.String("CATALOG_FILE")),
		DefaultProduct:     strings.ToLower(valueOrDefault(k.String("DEFAULT_PRODUCT"), "sprint")),
		CheckoutRateLimit:  valueOrDefault(k.String("CHECKOUT_RATE_LIMIT"), "10-M"),
		WebhookMaxBodySize: parseInt64(k.String("WEBHOOK_MAX_BODY_BYTES"), 1<<20),

		FulfillmentMode:     parseMode(k.String("FULFILLMENT_MODE")),
		FulfillmentTimeout:  parseDuration(k.String("FULFILLMENT_TIMEOUT"), "5s"),
		FulfillmentDedupTTL: parseDuration(k.String("FULFILLMENT_DEDUP_TTL"), "0s"),
		FulfillmentLedger:   strings.TrimSpace(k.String("FULFILLMENT_LEDGER_KEY")),
		QueueConcurrency:    int(parseInt64(k.String("QUEUE_CONCURRENCY"), 5)),

		BrevoAPIKey:   strings.TrimSpace(k.String("BREVO_API_KEY")),
		BrevoAPIURL:   strings.TrimSpace(k.String("BREVO_API_URL")),
		EmailFrom:     valueOrDefault(k.String("EMAIL_FROM"), "michele@aistrategyllc.com"),
		EmailFromName: valueOrDefault(k.String("EMAIL_FROM_NAME"), "AI Strategy"),
		EmailReplyTo:  valueOrDefault(k.String("EMAIL_REPLY_TO"), "michele@aistrategyllc.com"),
		SupportEmail:  valueOrDefault(k.String("SUPPORT_EMAIL"), "michele@aistrategyllc.com"),

		FacebookPixelID:     strings.TrimSpace(k.String("FACEBOOK_PIXEL_ID")),
		FacebookAccessToken: strings.TrimSpace(k.String("FACEBOOK_ACCESS_TOKEN")),
		TikTokPixelID:       strings.TrimSpace(k.String("TIKTOK_PIXEL_ID")),
		TikTokAccessToken:   strings.TrimSpace(k.String("TIKTOK_ACCESS_TOKEN")),
		GAMeasurementID:     strings.TrimSpace(k.String("GA_MEASUREMENT_ID")),
		GAAPISecret:         strings.TrimSpace(k.String("GA_API_SECRET")),
		TrackingTimeout:     parseDuration(k.String("TRACKING_TIMEOUT"), "3s"),
	}

	if cfg.WebhookMaxBodySize <= 0 {
		cfg.WebhookMaxBodySize = 1 << 20
	}
	if cfg.QueueConcurrency <= 0 {
		cfg.QueueConcurrency = 5
	}
	if cfg.FulfillmentLedger == "" && cfg.RedisURL != "" {
		cfg.FulfillmentLedger = "fulfillment:manual"
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// ResolvedFulfillmentMode turns "auto" into a concrete delivery mode.
func (c *Config) ResolvedFulfillmentMode() string {
	if c.FulfillmentMode != FulfillmentModeAuto {
		return c.FulfillmentMode
	}
	if c.BrevoAPIKey != "" {
		return FulfillmentModeEmail
	}
	return FulfillmentModeLog
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt64(value string, fallback int64) int64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseMode(value string) string {
	switch mode := strings.ToLower(strings.TrimSpace(value)); mode {
	case FulfillmentModeEmail, FulfillmentModeQueue, FulfillmentModeLog:
		return mode
	default:
		return FulfillmentModeAuto
	}
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
