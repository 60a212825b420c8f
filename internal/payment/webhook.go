package payment

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aistrategyllc/checkout-api/internal/common"
	"github.com/aistrategyllc/checkout-api/internal/obs"
	"github.com/aistrategyllc/checkout-api/internal/security"
)

const defaultWebhookBodyLimit = 1 << 20

// Webhook verifies payment provider callbacks and dispatches completed checkouts.
type Webhook struct {
	Provider     Provider
	Fulfiller    Fulfiller
	Tracker      ConversionTracker
	MaxBodyBytes int64
	Logger       *zerolog.Logger
}

// Handle verifies the raw body against the signature header. Verified events
// are always acknowledged with 200, whether or not fulfillment succeeds.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	logger := obs.LoggerOrNop(h.Logger)
	ctx, span := otel.Tracer("payment.Webhook").Start(r.Context(), "Webhook.Handle")
	defer span.End()

	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = defaultWebhookBodyLimit
	}
	body, ok := security.ReadBody(w, r, limit)
	if !ok {
		return
	}

	if h.Provider == nil {
		logger.Error().Str("setting", "STRIPE_WEBHOOK_SECRET").Msg("configuration_error")
		obs.Count(obs.WebhookEventTotal, "unknown", "configuration_error")
		common.JSONError(w, http.StatusBadRequest, "Invalid signature", "")
		return
	}
	event, err := h.Provider.ParseWebhook(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, ErrConfiguration) {
			logger.Error().Err(err).Msg("configuration_error")
			obs.Count(obs.WebhookEventTotal, "unknown", "configuration_error")
		} else {
			logger.Warn().Err(err).Str("remote_ip", common.ClientIP(r)).Int("bytes", len(body)).Msg("webhook_signature_invalid")
			obs.Count(obs.WebhookEventTotal, "unknown", "invalid_signature")
		}
		span.SetAttributes(attribute.Bool("webhook.verified", false))
		common.JSONError(w, http.StatusBadRequest, "Invalid signature", "")
		return
	}
	span.SetAttributes(
		attribute.Bool("webhook.verified", true),
		attribute.String("webhook.event_id", event.ID),
		attribute.String("webhook.event_type", event.Type),
	)

	switch event.Type {
	case EventCheckoutSessionCompleted:
		h.dispatchCompleted(ctx, logger, event)
	default:
		logger.Info().Str("event_id", event.ID).Str("type", event.Type).Msg("webhook_event_ignored")
		obs.Count(obs.WebhookEventTotal, event.Type, "ignored")
	}

	common.Acknowledge(w)
}

func (h Webhook) dispatchCompleted(ctx context.Context, logger zerolog.Logger, event Event) {
	if event.Session == nil {
		logger.Error().Str("event_id", event.ID).Str("reason", "undecodable session payload").Msg("fulfillment_data_error")
		obs.Count(obs.WebhookEventTotal, event.Type, "malformed")
		return
	}
	// Fulfillment outlives a dropped provider connection.
	ctx = context.WithoutCancel(ctx)
	session := *event.Session

	result := "fulfilled"
	if h.Fulfiller != nil {
		if err := h.Fulfiller.Fulfill(ctx, session); err != nil {
			result = "fulfillment_failed"
			logger.Debug().Err(err).Str("session_id", session.ID).Msg("webhook_fulfillment_failed")
		}
	} else {
		result = "no_fulfiller"
	}
	obs.Count(obs.WebhookEventTotal, event.Type, result)

	if h.Tracker != nil {
		h.Tracker.Track(ctx, session)
	}
}
