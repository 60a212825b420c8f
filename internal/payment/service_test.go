package payment_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aistrategyllc/checkout-api/internal/catalog"
	"github.com/aistrategyllc/checkout-api/internal/payment"
)

type stubProvider struct {
	session  payment.Session
	err      error
	missing  []string
	requests []payment.SessionRequest
}

func (p *stubProvider) CreateSession(ctx context.Context, req payment.SessionRequest) (payment.Session, error) {
	p.requests = append(p.requests, req)
	return p.session, p.err
}

func (p *stubProvider) ParseWebhook(payload []byte, signature string) (payment.Event, error) {
	return payment.Event{}, payment.ErrInvalidSignature
}

func (p *stubProvider) MissingCredentials() []string { return p.missing }

func testCatalog(t *testing.T, priceIDs map[string]string) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New("sprint", catalog.Builtin(priceIDs)...)
	require.NoError(t, err)
	return c
}

func allPrices() map[string]string {
	return map[string]string{"sprint": "price_sprint", "solo": "price_solo", "plus": "price_plus", "family": "price_family"}
}

func TestInitiateBuildsSessionRequest(t *testing.T) {
	provider := &stubProvider{session: payment.Session{ID: "cs_1", URL: "https://checkout.example/session/abc"}}
	initiator := &payment.Initiator{
		Provider: provider,
		Catalog:  testCatalog(t, allPrices()),
		BaseURL:  "https://www.aistrategyllc.com/",
	}

	session, err := initiator.Initiate(context.Background(), payment.Intent{
		ProductKey:    "solo",
		CustomerEmail: "buyer@example.com",
		Metadata:      map[string]string{"campaign": "spring", "product": "spoofed"},
	})
	require.NoError(t, err)
	require.Equal(t, "https://checkout.example/session/abc", session.URL)

	require.Len(t, provider.requests, 1)
	req := provider.requests[0]
	require.Equal(t, "price_solo", req.PriceID)
	require.Equal(t, "https://www.aistrategyllc.com/success?session_id={CHECKOUT_SESSION_ID}&product=solo", req.SuccessURL)
	require.Equal(t, "https://www.aistrategyllc.com/sidekick", req.CancelURL)
	require.Equal(t, "buyer@example.com", req.CustomerEmail)
	require.Equal(t, map[string]string{"campaign": "spring", "product": "Sidekick Solo", "product_key": "solo"}, req.Metadata)
}

func TestInitiateDefaultProduct(t *testing.T) {
	provider := &stubProvider{session: payment.Session{ID: "cs_1", URL: "https://checkout.example/session/abc"}}
	initiator := &payment.Initiator{Provider: provider, Catalog: testCatalog(t, allPrices()), BaseURL: "https://www.aistrategyllc.com"}

	_, err := initiator.Initiate(context.Background(), payment.Intent{})
	require.NoError(t, err)
	require.Equal(t, "price_sprint", provider.requests[0].PriceID)
	require.Equal(t, "https://www.aistrategyllc.com/story", provider.requests[0].CancelURL)
}

func TestInitiateReportsEveryMissingSetting(t *testing.T) {
	logger, buf := bufferLogger()
	provider := &stubProvider{missing: []string{"STRIPE_SECRET_KEY"}}
	initiator := &payment.Initiator{
		Provider:     provider,
		Catalog:      testCatalog(t, map[string]string{}),
		SupportEmail: "michele@aistrategyllc.com",
		Logger:       logger,
	}

	_, err := initiator.Initiate(context.Background(), payment.Intent{})
	require.ErrorIs(t, err, payment.ErrConfiguration)
	require.Empty(t, provider.requests)

	var checkoutErr *payment.CheckoutError
	require.True(t, errors.As(err, &checkoutErr))
	require.Contains(t, checkoutErr.Detail, "STRIPE_SECRET_KEY")
	require.Contains(t, checkoutErr.Detail, `price id for "sprint"`)
	require.Contains(t, checkoutErr.Detail, "PUBLIC_BASE_URL")
	require.True(t, strings.HasSuffix(checkoutErr.Detail, "Please contact michele@aistrategyllc.com"))

	require.Equal(t, 1, logCount(buf, "checkout_environment_check"))
	require.Equal(t, 1, logCount(buf, "configuration_error"))
	require.Contains(t, buf.String(), `"has_secret_key":false`)
	require.Contains(t, buf.String(), `"price_id_length":0`)
}

func TestInitiateWithRealProviderMissingKeyMakesNoRequest(t *testing.T) {
	fake := newFakeStripe(t)
	initiator := &payment.Initiator{
		Provider: fake.provider("", ""),
		Catalog:  testCatalog(t, allPrices()),
		BaseURL:  "https://www.aistrategyllc.com",
	}

	_, err := initiator.Initiate(context.Background(), payment.Intent{})
	require.ErrorIs(t, err, payment.ErrConfiguration)
	require.EqualValues(t, 0, fake.requests.Load())
}

func TestInitiateNeverLogsSecretValues(t *testing.T) {
	logger, buf := bufferLogger()
	fake := newFakeStripe(t)
	initiator := &payment.Initiator{
		Provider: fake.provider(testSecretKey, ""),
		Catalog:  testCatalog(t, allPrices()),
		BaseURL:  "https://www.aistrategyllc.com",
		Logger:   logger,
	}

	_, err := initiator.Initiate(context.Background(), payment.Intent{})
	require.NoError(t, err)
	require.Contains(t, buf.String(), `"has_secret_key":true`)
	require.Contains(t, buf.String(), `"price_id_length":12`)
	require.NotContains(t, buf.String(), testSecretKey)
	require.NotContains(t, buf.String(), "price_sprint")
}

func TestInitiateUnknownProduct(t *testing.T) {
	provider := &stubProvider{}
	initiator := &payment.Initiator{Provider: provider, Catalog: testCatalog(t, allPrices()), BaseURL: "https://x.example"}

	_, err := initiator.Initiate(context.Background(), payment.Intent{ProductKey: "gold"})
	require.ErrorIs(t, err, payment.ErrUnknownProduct)
	require.Empty(t, provider.requests)
}

func TestInitiateUpstreamFailure(t *testing.T) {
	logger, buf := bufferLogger()
	provider := &stubProvider{err: &payment.UpstreamError{StatusCode: 400, Message: "No such price: 'price_sprint'", Err: errors.New("stripe")}}
	initiator := &payment.Initiator{
		Provider:     provider,
		Catalog:      testCatalog(t, allPrices()),
		BaseURL:      "https://x.example",
		SupportEmail: "michele@aistrategyllc.com",
		Logger:       logger,
	}

	_, err := initiator.Initiate(context.Background(), payment.Intent{})
	require.ErrorIs(t, err, payment.ErrUpstream)
	var checkoutErr *payment.CheckoutError
	require.True(t, errors.As(err, &checkoutErr))
	require.Equal(t, "No such price: 'price_sprint'. Please contact michele@aistrategyllc.com", checkoutErr.Detail)
	require.Len(t, provider.requests, 1)
	require.Equal(t, 1, logCount(buf, "checkout_upstream_error"))
}

func TestInitiateRejectsInsecureSessionURL(t *testing.T) {
	provider := &stubProvider{session: payment.Session{ID: "cs_1", URL: "http://checkout.example/session/abc"}}
	initiator := &payment.Initiator{Provider: provider, Catalog: testCatalog(t, allPrices()), BaseURL: "https://x.example"}

	_, err := initiator.Initiate(context.Background(), payment.Intent{})
	require.ErrorIs(t, err, payment.ErrUpstream)
	var checkoutErr *payment.CheckoutError
	require.True(t, errors.As(err, &checkoutErr))
	require.Equal(t, "payment provider returned an invalid checkout URL", checkoutErr.Detail)
}
