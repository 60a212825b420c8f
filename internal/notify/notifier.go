package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aistrategyllc/checkout-api/internal/obs"
	"github.com/aistrategyllc/checkout-api/internal/payment"
)

// DefaultName greets buyers who did not leave a name.
const DefaultName = "there"

var (
	// ErrMissingRecipient reports a completed session without a usable email address.
	ErrMissingRecipient = errors.New("notify: completed session has no recipient email")
	// ErrDelivery reports a failed notification side effect.
	ErrDelivery = errors.New("notify: delivery failed")
)

// Notice is the welcome notification derived from a completed checkout.
type Notice struct {
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	SessionID  string    `json:"session_id"`
	ProductKey string    `json:"product_key,omitempty"`
	Product    string    `json:"product,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Sender delivers a notice through one channel.
type Sender interface {
	Send(ctx context.Context, n Notice) error
	Channel() string
}

// Deduper claims a session id so that redelivered events are not notified twice.
type Deduper interface {
	Claim(ctx context.Context, sessionID string) (bool, error)
	Release(ctx context.Context, sessionID string) error
}

// NoticeFromSession extracts the recipient from a completed session. The
// session's own customer_email wins over the address collected on the
// hosted page.
func NoticeFromSession(s payment.CompletedSession, now time.Time) (Notice, error) {
	email := strings.TrimSpace(s.CustomerEmail)
	name := ""
	if s.CustomerDetails != nil {
		if email == "" {
			email = strings.TrimSpace(s.CustomerDetails.Email)
		}
		name = strings.TrimSpace(s.CustomerDetails.Name)
	}
	if name == "" {
		name = DefaultName
	}
	n := Notice{
		Email:      email,
		Name:       name,
		SessionID:  s.ID,
		ProductKey: s.ProductKey(),
		Timestamp:  now.UTC(),
	}
	if s.Metadata != nil {
		n.Product = s.Metadata["product"]
	}
	if email == "" {
		return n, ErrMissingRecipient
	}
	return n, nil
}

// Notifier turns completed checkouts into welcome notifications. Without a
// Dedup it notifies once per call, so redelivered events notify again.
type Notifier struct {
	Sender   Sender
	Fallback Sender
	Dedup    Deduper
	Timeout  time.Duration
	Logger   *zerolog.Logger
	Now      func() time.Time
}

// Fulfill implements payment.Fulfiller.
func (n *Notifier) Fulfill(ctx context.Context, session payment.CompletedSession) error {
	if n == nil {
		return fmt.Errorf("%w: notifier not configured", ErrDelivery)
	}
	ctx, span := otel.Tracer("notify.Notifier").Start(ctx, "Notifier.Fulfill")
	defer span.End()
	span.SetAttributes(attribute.String("checkout.session_id", session.ID))

	logger := obs.LoggerOrNop(n.Logger)
	notice, err := NoticeFromSession(session, n.now())
	if err != nil {
		logger.Error().Str("session_id", session.ID).Str("product_key", notice.ProductKey).Msg("fulfillment_data_error")
		obs.Count(obs.FulfillmentTotal, "none", "missing_recipient")
		span.SetStatus(codes.Error, "missing recipient")
		return err
	}

	if n.Dedup != nil {
		claimed, err := n.Dedup.Claim(ctx, notice.SessionID)
		switch {
		case err != nil:
			logger.Warn().Err(err).Str("session_id", notice.SessionID).Msg("fulfillment_dedup_unavailable")
		case !claimed:
			logger.Info().Str("session_id", notice.SessionID).Msg("fulfillment_duplicate_skipped")
			obs.Count(obs.FulfillmentTotal, "none", "duplicate")
			return nil
		}
	}

	fallback := n.fallback()
	sender := n.Sender
	if sender == nil {
		sender = fallback
	}
	channel := sender.Channel()
	span.SetAttributes(attribute.String("fulfillment.channel", channel))

	sendCtx := ctx
	if n.Timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, n.Timeout)
		defer cancel()
	}
	if err := sender.Send(sendCtx, notice); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
		obs.Count(obs.FulfillmentTotal, channel, "failed")
		logger.Error().Err(err).
			Str("channel", channel).
			Str("email", notice.Email).
			Str("name", notice.Name).
			Str("session_id", notice.SessionID).
			Time("timestamp", notice.Timestamp).
			Msg("fulfillment_delivery_error")
		n.recordFallback(context.WithoutCancel(ctx), logger, fallback, sender, notice)
		if n.Dedup != nil {
			if relErr := n.Dedup.Release(context.WithoutCancel(ctx), notice.SessionID); relErr != nil {
				logger.Warn().Err(relErr).Str("session_id", notice.SessionID).Msg("fulfillment_dedup_release_failed")
			}
		}
		return fmt.Errorf("%w: %s: %w", ErrDelivery, channel, err)
	}

	obs.Count(obs.FulfillmentTotal, channel, "sent")
	logger.Info().Str("channel", channel).Str("session_id", notice.SessionID).Msg("fulfillment_sent")
	return nil
}

func (n *Notifier) recordFallback(ctx context.Context, logger zerolog.Logger, fallback, failed Sender, notice Notice) {
	if fallback == failed {
		return
	}
	if err := fallback.Send(ctx, notice); err != nil {
		logger.Error().Err(err).Str("session_id", notice.SessionID).Msg("fulfillment_fallback_failed")
		return
	}
	obs.Count(obs.FulfillmentTotal, fallback.Channel(), "fallback")
}

func (n *Notifier) fallback() Sender {
	if n.Fallback != nil {
		return n.Fallback
	}
	return &LedgerSender{Logger: n.Logger}
}

func (n *Notifier) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}
