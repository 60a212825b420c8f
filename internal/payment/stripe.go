package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aistrategyllc/checkout-api/internal/obs"
)

// StripeConfig groups Stripe client settings.
type StripeConfig struct {
	SecretKey        string
	WebhookSecret    string
	APIURL           string
	Timeout          time.Duration
	WebhookTolerance time.Duration
	HTTPClient       *http.Client
	Logger           *zerolog.Logger
}

// UpstreamError describes a failed provider call in terms safe to return to callers.
type UpstreamError struct {
	StatusCode int
	Code       string
	RequestID  string
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUpstream.Error(), e.Message)
}

// Unwrap exposes both the taxonomy sentinel and the provider error.
func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstream, e.Err}
}

// Stripe implements Provider on top of the official Stripe client. Network
// retries are disabled so a failed session request surfaces immediately.
type Stripe struct {
	sessions      session.Client
	hasSecretKey  bool
	webhookSecret string
	tolerance     time.Duration
}

// NewStripe builds a Stripe provider. Missing credentials are reported when used.
func NewStripe(cfg StripeConfig) *Stripe {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 80 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		LeveledLogger:     obs.LeveledLogger{Logger: obs.LoggerOrNop(cfg.Logger), Component: "stripe"},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if u := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"); u != "" {
		backendCfg.URL = stripe.String(u)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	secretKey := strings.TrimSpace(cfg.SecretKey)
	return &Stripe{
		sessions:      session.Client{B: backend, Key: secretKey},
		hasSecretKey:  secretKey != "",
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		tolerance:     cfg.WebhookTolerance,
	}
}

// MissingCredentials names the API credentials that are not configured.
func (s *Stripe) MissingCredentials() []string {
	if s.hasSecretKey {
		return nil
	}
	return []string{"STRIPE_SECRET_KEY"}
}

// CreateSession opens a hosted checkout session for a single item in payment mode.
func (s *Stripe) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	if !s.hasSecretKey {
		return Session{}, fmt.Errorf("%w: STRIPE_SECRET_KEY is not set", ErrConfiguration)
	}
	params := &stripe.CheckoutSessionParams{
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	cs, err := s.sessions.New(params)
	if err != nil {
		return Session{}, toUpstreamError(err)
	}
	return Session{ID: cs.ID, URL: cs.URL}, nil
}

// ParseWebhook verifies the signature header against the exact payload bytes
// and decodes completed checkout sessions.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (Event, error) {
	if s.webhookSecret == "" {
		return Event{}, fmt.Errorf("%w: STRIPE_WEBHOOK_SECRET is not set", ErrConfiguration)
	}
	if strings.TrimSpace(signature) == "" {
		return Event{}, fmt.Errorf("%w: missing Stripe-Signature header", ErrInvalidSignature)
	}
	evt, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                s.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	out := Event{ID: evt.ID, Type: string(evt.Type)}
	if evt.Data != nil {
		out.Object = evt.Data.Raw
	}
	if out.Type == EventCheckoutSessionCompleted && len(out.Object) > 0 {
		if cs, err := decodeCheckoutSession(out.Object); err == nil {
			out.Session = &cs
		}
	}
	return out, nil
}

func decodeCheckoutSession(raw json.RawMessage) (CompletedSession, error) {
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(raw, &cs); err != nil {
		return CompletedSession{}, err
	}
	out := CompletedSession{
		ID:            cs.ID,
		CustomerEmail: cs.CustomerEmail,
		Metadata:      cs.Metadata,
		AmountTotal:   cs.AmountTotal,
		Currency:      strings.ToUpper(string(cs.Currency)),
	}
	if cs.CustomerDetails != nil {
		out.CustomerDetails = &CustomerDetails{
			Email: cs.CustomerDetails.Email,
			Name:  cs.CustomerDetails.Name,
		}
	}
	if cs.Created > 0 {
		out.Created = time.Unix(cs.Created, 0).UTC()
	}
	return out, nil
}

func toUpstreamError(err error) *UpstreamError {
	out := &UpstreamError{Message: err.Error(), Err: err}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		out.StatusCode = stripeErr.HTTPStatusCode
		out.Code = string(stripeErr.Code)
		out.RequestID = stripeErr.RequestID
		if stripeErr.Msg != "" {
			out.Message = stripeErr.Msg
		}
	}
	return out
}
