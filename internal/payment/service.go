package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aistrategyllc/checkout-api/internal/catalog"
	"github.com/aistrategyllc/checkout-api/internal/obs"
)

// ErrUnknownProduct is returned when the intent names a product outside the catalog.
var ErrUnknownProduct = catalog.ErrUnknownProduct

// CheckoutError classifies a failed initiation. Detail is safe to show the
// caller and never contains secret values.
type CheckoutError struct {
	Kind   error
	Detail string
	Err    error
}

func (e *CheckoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Unwrap exposes the kind sentinel and the cause.
func (e *CheckoutError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Intent is a caller's request to begin a purchase. An empty ProductKey selects
// the catalog default.
type Intent struct {
	ProductKey    string
	CustomerEmail string
	Metadata      map[string]string
}

// Initiator opens hosted checkout sessions for catalog products.
type Initiator struct {
	Provider     Provider
	Catalog      *catalog.Catalog
	BaseURL      string
	SupportEmail string
	Logger       *zerolog.Logger
}

// Initiate validates configuration, requests a checkout session and returns it.
// Configuration gaps fail before any network call; provider failures are not retried.
func (s *Initiator) Initiate(ctx context.Context, intent Intent) (Session, error) {
	if s == nil || s.Catalog == nil {
		return Session{}, &CheckoutError{Kind: ErrConfiguration, Detail: "checkout is not configured"}
	}
	ctx, span := otel.Tracer("payment.Initiator").Start(ctx, "Initiator.Initiate")
	defer span.End()

	logger := obs.LoggerOrNop(s.Logger)
	product, err := s.Catalog.Lookup(intent.ProductKey)
	if err != nil {
		obs.Count(obs.CheckoutSessionTotal, "unknown", "unknown_product")
		span.SetStatus(codes.Error, "unknown product")
		return Session{}, err
	}
	span.SetAttributes(attribute.String("checkout.product", product.Key))

	result := "error"
	start := time.Now()
	defer func() {
		obs.Count(obs.CheckoutSessionTotal, product.Key, result)
		span.SetAttributes(attribute.String("checkout.result", result))
	}()

	baseURL := strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	missing := s.missingSettings(product, baseURL)
	logger.Info().
		Str("product", product.Key).
		Bool("has_secret_key", !slices.Contains(missing, "STRIPE_SECRET_KEY")).
		Bool("has_price_id", product.PriceID != "").
		Bool("has_base_url", baseURL != "").
		Int("price_id_length", len(product.PriceID)).
		Msg("checkout_environment_check")
	if len(missing) > 0 {
		result = "configuration_error"
		detail := s.configurationDetail(missing)
		logger.Error().Str("product", product.Key).Strs("missing", missing).Msg("configuration_error")
		span.SetStatus(codes.Error, "configuration error")
		return Session{}, &CheckoutError{Kind: ErrConfiguration, Detail: detail}
	}

	metadata := map[string]string{}
	for k, v := range intent.Metadata {
		metadata[k] = v
	}
	metadata["product"] = product.Name
	metadata["product_key"] = product.Key

	req := SessionRequest{
		PriceID:       product.PriceID,
		SuccessURL:    fmt.Sprintf("%s%s?session_id={CHECKOUT_SESSION_ID}&product=%s", baseURL, product.SuccessPath, url.QueryEscape(product.Key)),
		CancelURL:     baseURL + product.CancelPath,
		CustomerEmail: intent.CustomerEmail,
		Metadata:      metadata,
	}
	session, err := s.Provider.CreateSession(ctx, req)
	if obs.CheckoutSessionLatency != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		obs.CheckoutSessionLatency.WithLabelValues(outcome).Observe(obs.DurationMillis(time.Since(start)))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create session")
		if errors.Is(err, ErrConfiguration) {
			result = "configuration_error"
			logger.Error().Err(err).Str("product", product.Key).Msg("configuration_error")
			return Session{}, &CheckoutError{Kind: ErrConfiguration, Detail: s.configurationDetail(nil), Err: err}
		}
		result = "upstream_error"
		detail := err.Error()
		evt := logger.Error().Err(err).Str("product", product.Key)
		var upstream *UpstreamError
		if errors.As(err, &upstream) {
			detail = upstream.Message
			evt = evt.Int("status", upstream.StatusCode).Str("code", upstream.Code).Str("request_id", upstream.RequestID)
		}
		evt.Msg("checkout_upstream_error")
		return Session{}, &CheckoutError{Kind: ErrUpstream, Detail: s.withSupport(detail), Err: err}
	}

	if !isSecureURL(session.URL) {
		result = "upstream_error"
		logger.Error().Str("product", product.Key).Str("session_id", session.ID).Msg("checkout_upstream_error")
		span.SetStatus(codes.Error, "invalid session url")
		return Session{}, &CheckoutError{Kind: ErrUpstream, Detail: s.withSupport("payment provider returned an invalid checkout URL")}
	}

	result = "created"
	span.SetAttributes(attribute.String("checkout.session_id", session.ID))
	logger.Info().Str("product", product.Key).Str("session_id", session.ID).Msg("checkout_session_created")
	return session, nil
}

func (s *Initiator) missingSettings(product catalog.Product, baseURL string) []string {
	var missing []string
	if s.Provider == nil {
		missing = append(missing, "STRIPE_SECRET_KEY")
	} else if checker, ok := s.Provider.(credentialChecker); ok {
		missing = append(missing, checker.MissingCredentials()...)
	}
	if product.PriceID == "" {
		missing = append(missing, fmt.Sprintf("price id for %q", product.Key))
	}
	if baseURL == "" {
		missing = append(missing, "PUBLIC_BASE_URL")
	}
	return missing
}

func (s *Initiator) configurationDetail(missing []string) string {
	var b strings.Builder
	b.WriteString("Checkout is not configured")
	if len(missing) > 0 {
		b.WriteString(" (missing ")
		b.WriteString(strings.Join(missing, ", "))
		b.WriteString(")")
	}
	return s.withSupport(b.String())
}

// withSupport appends the support contact to a caller-facing detail.
func (s *Initiator) withSupport(detail string) string {
	if s.SupportEmail == "" {
		return detail
	}
	return strings.TrimRight(detail, ". ") + ". Please contact " + s.SupportEmail
}

func isSecureURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "https" && u.Host != ""
}

