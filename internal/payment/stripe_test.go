package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/aistrategyllc/checkout-api/internal/payment"
)

const (
	testSecretKey     = "sk_test_123"
	testWebhookSecret = "whsec_test_secret"
)

type fakeStripe struct {
	srv      *httptest.Server
	requests atomic.Int32
	mu       sync.Mutex
	lastForm map[string]string
	lastAuth string
	status   int
	body     string
}

func newFakeStripe(t *testing.T) *fakeStripe {
	t.Helper()
	f := &fakeStripe{
		status: http.StatusOK,
		body:   `{"id":"cs_test_abc","object":"checkout.session","url":"https://checkout.example/session/abc"}`,
	}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		if r.Method != http.MethodPost || r.URL.Path != "/v1/checkout/sessions" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		form := map[string]string{}
		for k, v := range r.PostForm {
			form[k] = v[0]
		}
		f.mu.Lock()
		f.lastForm = form
		f.lastAuth = r.Header.Get("Authorization")
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Request-Id", "req_test_1")
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(f.body))
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeStripe) form() (map[string]string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastForm, f.lastAuth
}

func (f *fakeStripe) provider(secretKey, webhookSecret string) *payment.Stripe {
	return payment.NewStripe(payment.StripeConfig{
		SecretKey:     secretKey,
		WebhookSecret: webhookSecret,
		APIURL:        f.srv.URL,
		Timeout:       5 * time.Second,
		HTTPClient:    f.srv.Client(),
	})
}

func bufferLogger() (*zerolog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	return &logger, &buf
}

func logCount(buf *bytes.Buffer, message string) int {
	return bytes.Count(buf.Bytes(), []byte(`"message":"`+message+`"`))
}

func eventPayload(t *testing.T, id, eventType string, object map[string]any) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"api_version": "2020-08-27",
		"created":     time.Now().Unix(),
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)
	return payload
}

func sign(payload []byte, secret string) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: secret}).Header
}

func TestStripeCreateSessionSendsHostedPaymentRequest(t *testing.T) {
	fake := newFakeStripe(t)
	provider := fake.provider(testSecretKey, "")

	session, err := provider.CreateSession(context.Background(), payment.SessionRequest{
		PriceID:       "price_123",
		SuccessURL:    "https://www.aistrategyllc.com/success?session_id={CHECKOUT_SESSION_ID}&product=sprint",
		CancelURL:     "https://www.aistrategyllc.com/story",
		CustomerEmail: "buyer@example.com",
		Metadata:      map[string]string{"product_key": "sprint"},
	})
	require.NoError(t, err)
	require.Equal(t, "cs_test_abc", session.ID)
	require.Equal(t, "https://checkout.example/session/abc", session.URL)

	require.EqualValues(t, 1, fake.requests.Load())
	form, auth := fake.form()
	require.Equal(t, "Bearer "+testSecretKey, auth)
	require.Equal(t, "price_123", form["line_items[0][price]"])
	require.Equal(t, "1", form["line_items[0][quantity]"])
	require.Equal(t, "payment", form["mode"])
	require.Equal(t, "https://www.aistrategyllc.com/story", form["cancel_url"])
	require.Equal(t, "buyer@example.com", form["customer_email"])
	require.Equal(t, "sprint", form["metadata[product_key]"])
}

func TestStripeCreateSessionWithoutKeyMakesNoRequest(t *testing.T) {
	fake := newFakeStripe(t)
	provider := fake.provider("", "")

	require.Equal(t, []string{"STRIPE_SECRET_KEY"}, provider.MissingCredentials())
	_, err := provider.CreateSession(context.Background(), payment.SessionRequest{PriceID: "price_123"})
	require.ErrorIs(t, err, payment.ErrConfiguration)
	require.EqualValues(t, 0, fake.requests.Load())
}

func TestStripeCreateSessionReportsProviderError(t *testing.T) {
	fake := newFakeStripe(t)
	fake.status = http.StatusBadRequest
	fake.body = `{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such price: 'price_missing'"}}`
	provider := fake.provider(testSecretKey, "")

	_, err := provider.CreateSession(context.Background(), payment.SessionRequest{PriceID: "price_missing"})
	require.ErrorIs(t, err, payment.ErrUpstream)
	var upstream *payment.UpstreamError
	require.True(t, errors.As(err, &upstream))
	require.Equal(t, http.StatusBadRequest, upstream.StatusCode)
	require.Equal(t, "resource_missing", upstream.Code)
	require.Equal(t, "No such price: 'price_missing'", upstream.Message)
	require.EqualValues(t, 1, fake.requests.Load())
}

func TestStripeCreateSessionDoesNotRetryServerErrors(t *testing.T) {
	fake := newFakeStripe(t)
	fake.status = http.StatusInternalServerError
	fake.body = `{"error":{"type":"api_error","message":"boom"}}`
	provider := fake.provider(testSecretKey, "")

	_, err := provider.CreateSession(context.Background(), payment.SessionRequest{PriceID: "price_123"})
	require.ErrorIs(t, err, payment.ErrUpstream)
	require.EqualValues(t, 1, fake.requests.Load())
}

func TestStripeParseWebhookDecodesCompletedSession(t *testing.T) {
	provider := payment.NewStripe(payment.StripeConfig{WebhookSecret: testWebhookSecret})
	payload := eventPayload(t, "evt_1", payment.EventCheckoutSessionCompleted, map[string]any{
		"id":               "cs_test_1",
		"object":           "checkout.session",
		"amount_total":     149900,
		"currency":         "usd",
		"customer_details": map[string]any{"email": "a@b.com", "name": "Pat"},
		"metadata":         map[string]any{"product_key": "sprint"},
	})

	event, err := provider.ParseWebhook(payload, sign(payload, testWebhookSecret))
	require.NoError(t, err)
	require.Equal(t, "evt_1", event.ID)
	require.Equal(t, payment.EventCheckoutSessionCompleted, event.Type)
	require.NotNil(t, event.Session)
	require.Equal(t, "cs_test_1", event.Session.ID)
	require.Equal(t, "a@b.com", event.Session.CustomerDetails.Email)
	require.Equal(t, "Pat", event.Session.CustomerDetails.Name)
	require.Equal(t, "sprint", event.Session.ProductKey())
	require.EqualValues(t, 149900, event.Session.AmountTotal)
	require.Equal(t, "USD", event.Session.Currency)
}

func TestStripeParseWebhookLeavesOtherEventsUndecoded(t *testing.T) {
	provider := payment.NewStripe(payment.StripeConfig{WebhookSecret: testWebhookSecret})
	payload := eventPayload(t, "evt_2", "invoice.created", map[string]any{"id": "in_1", "object": "invoice"})

	event, err := provider.ParseWebhook(payload, sign(payload, testWebhookSecret))
	require.NoError(t, err)
	require.Equal(t, "invoice.created", event.Type)
	require.Nil(t, event.Session)
	require.NotEmpty(t, event.Object)
}

func TestStripeParseWebhookRejectsAnySingleByteMutation(t *testing.T) {
	provider := payment.NewStripe(payment.StripeConfig{WebhookSecret: testWebhookSecret})
	payload := eventPayload(t, "evt_3", payment.EventCheckoutSessionCompleted, map[string]any{
		"id":               "cs_test_3",
		"object":           "checkout.session",
		"customer_details": map[string]any{"email": "a@b.com", "name": "Pat"},
	})
	header := sign(payload, testWebhookSecret)

	_, err := provider.ParseWebhook(payload, header)
	require.NoError(t, err)

	for i := range payload {
		mutated := bytes.Clone(payload)
		mutated[i] ^= 0x01
		_, err := provider.ParseWebhook(mutated, header)
		require.ErrorIs(t, err, payment.ErrInvalidSignature, "byte %d", i)
	}
}

func TestStripeParseWebhookFailures(t *testing.T) {
	payload := eventPayload(t, "evt_4", payment.EventCheckoutSessionCompleted, map[string]any{"id": "cs_test_4"})

	t.Run("wrong secret", func(t *testing.T) {
		provider := payment.NewStripe(payment.StripeConfig{WebhookSecret: testWebhookSecret})
		_, err := provider.ParseWebhook(payload, sign(payload, "whsec_other"))
		require.ErrorIs(t, err, payment.ErrInvalidSignature)
	})

	t.Run("missing header", func(t *testing.T) {
		provider := payment.NewStripe(payment.StripeConfig{WebhookSecret: testWebhookSecret})
		_, err := provider.ParseWebhook(payload, "")
		require.ErrorIs(t, err, payment.ErrInvalidSignature)
	})

	t.Run("garbage header", func(t *testing.T) {
		provider := payment.NewStripe(payment.StripeConfig{WebhookSecret: testWebhookSecret})
		_, err := provider.ParseWebhook(payload, "t=1,v1=deadbeef")
		require.ErrorIs(t, err, payment.ErrInvalidSignature)
	})

	t.Run("missing secret", func(t *testing.T) {
		provider := payment.NewStripe(payment.StripeConfig{})
		_, err := provider.ParseWebhook(payload, sign(payload, testWebhookSecret))
		require.ErrorIs(t, err, payment.ErrConfiguration)
		require.NotErrorIs(t, err, payment.ErrInvalidSignature)
	})
}
