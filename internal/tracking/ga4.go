package tracking

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/aistrategyllc/checkout-api/internal/resilience"
)

const ga4BaseURL = "https://www.google-analytics.com"

// GA4 reports purchase events through the Measurement Protocol.
type GA4 struct {
	MeasurementID string
	APISecret     string
	BaseURL       string
	Client        resilience.HTTPClient
}

type gaRequest struct {
	ClientID string    `json:"client_id"`
	Events   []gaEvent `json:"events"`
}

type gaEvent struct {
	Name   string   `json:"name"`
	Params gaParams `json:"params"`
}

type gaParams struct {
	TransactionID string   `json:"transaction_id"`
	Currency      string   `json:"currency"`
	Value         float64  `json:"value"`
	Items         []gaItem `json:"items"`
}

type gaItem struct {
	ItemID   string  `json:"item_id"`
	ItemName string  `json:"item_name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Platform implements Tracker.
func (g *GA4) Platform() string { return "ga4" }

// ClientID derives a stable pseudonymous client id from the event id.
func ClientID(eventID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("checkout:"+eventID)).String()
}

// Send implements Tracker.
func (g *GA4) Send(ctx context.Context, c Conversion) error {
	base := strings.TrimRight(g.BaseURL, "/")
	if base == "" {
		base = ga4BaseURL
	}
	q := url.Values{}
	q.Set("measurement_id", g.MeasurementID)
	q.Set("api_secret", g.APISecret)

	req := gaRequest{
		ClientID: ClientID(c.EventID),
		Events: []gaEvent{{
			Name: "purchase",
			Params: gaParams{
				TransactionID: c.EventID,
				Currency:      c.Currency,
				Value:         c.Value,
				Items: []gaItem{{
					ItemID:   c.ProductKey,
					ItemName: c.ProductName,
					Price:    c.Value,
					Quantity: 1,
				}},
			},
		}},
	}
	if err := g.Client.PostJSON(ctx, base+"/mp/collect?"+q.Encode(), nil, req); err != nil {
		return fmt.Errorf("ga4 measurement: %w", err)
	}
	return nil
}
