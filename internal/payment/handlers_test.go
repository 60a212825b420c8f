package payment_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aistrategyllc/checkout-api/internal/common"
	"github.com/aistrategyllc/checkout-api/internal/payment"
)

func checkoutHandler(t *testing.T, provider payment.Provider, baseURL string) *payment.Handler {
	t.Helper()
	return &payment.Handler{Initiator: &payment.Initiator{
		Provider:     provider,
		Catalog:      testCatalog(t, allPrices()),
		BaseURL:      baseURL,
		SupportEmail: "michele@aistrategyllc.com",
	}}
}

func postCheckout(h *payment.Handler, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.Checkout(rr, req)
	return rr
}

func TestCheckoutReturnsHostedURL(t *testing.T) {
	fake := newFakeStripe(t)
	h := checkoutHandler(t, fake.provider(testSecretKey, ""), "https://www.aistrategyllc.com")

	rr := postCheckout(h, "/checkout", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.JSONEq(t, `{"url":"https://checkout.example/session/abc"}`, rr.Body.String())

	form, _ := fake.form()
	require.Equal(t, "price_sprint", form["line_items[0][price]"])
	require.Equal(t, "https://www.aistrategyllc.com/success?session_id={CHECKOUT_SESSION_ID}&product=sprint", form["success_url"])
	require.Equal(t, "Executive AI Fluency Sprint", form["metadata[product]"])
}

func TestCheckoutSelectsProduct(t *testing.T) {
	fake := newFakeStripe(t)
	h := checkoutHandler(t, fake.provider(testSecretKey, ""), "https://www.aistrategyllc.com")

	rr := postCheckout(h, "/checkout", `{"product":"Family","email":"buyer@example.com"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	form, _ := fake.form()
	require.Equal(t, "price_family", form["line_items[0][price]"])
	require.Equal(t, "buyer@example.com", form["customer_email"])

	rr = postCheckout(h, "/checkout?product=plus", "")
	require.Equal(t, http.StatusOK, rr.Code)
	form, _ = fake.form()
	require.Equal(t, "price_plus", form["line_items[0][price]"])
}

func TestCheckoutConfigurationFailure(t *testing.T) {
	fake := newFakeStripe(t)
	h := checkoutHandler(t, fake.provider("", ""), "https://www.aistrategyllc.com")

	rr := postCheckout(h, "/checkout", "{}")
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	var body common.ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "Failed to create checkout session", body.Error)
	require.Contains(t, body.Details, "STRIPE_SECRET_KEY")
	require.Contains(t, body.Details, "michele@aistrategyllc.com")
	require.EqualValues(t, 0, fake.requests.Load())
}

func TestCheckoutUpstreamFailure(t *testing.T) {
	fake := newFakeStripe(t)
	fake.status = http.StatusBadRequest
	fake.body = `{"error":{"type":"invalid_request_error","message":"No such price: 'price_sprint'"}}`
	h := checkoutHandler(t, fake.provider(testSecretKey, ""), "https://www.aistrategyllc.com")

	rr := postCheckout(h, "/checkout", "")
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.JSONEq(t, `{"error":"Failed to create checkout session","details":"No such price: 'price_sprint'. Please contact michele@aistrategyllc.com"}`, rr.Body.String())
}

func TestCheckoutRejectsBadInput(t *testing.T) {
	h := checkoutHandler(t, &stubProvider{}, "https://www.aistrategyllc.com")

	cases := []struct {
		name  string
		body  string
		error string
	}{
		{name: "malformed json", body: `{"product":`, error: "Invalid request body"},
		{name: "invalid email", body: `{"email":"not-an-email"}`, error: "Invalid request body"},
		{name: "non alphanumeric product", body: `{"product":"../etc"}`, error: "Invalid request body"},
		{name: "unknown product", body: `{"product":"gold"}`, error: "Unknown product"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := postCheckout(h, "/checkout", tc.body)
			require.Equal(t, http.StatusBadRequest, rr.Code)
			var body common.ErrorBody
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			require.Equal(t, tc.error, body.Error)
		})
	}
}
