package tracking

import (
	"context"
	"fmt"
	"strings"

	"github.com/aistrategyllc/checkout-api/internal/resilience"
)

const tiktokBaseURL = "https://business-api.tiktok.com"

// TikTok reports CompletePayment events to the TikTok Events API.
type TikTok struct {
	PixelID     string
	AccessToken string
	BaseURL     string
	Client      resilience.HTTPClient
}

type ttRequest struct {
	EventSource   string    `json:"event_source"`
	EventSourceID string    `json:"event_source_id"`
	Data          []ttEvent `json:"data"`
}

type ttEvent struct {
	Event      string       `json:"event"`
	EventTime  int64        `json:"event_time"`
	EventID    string       `json:"event_id"`
	User       ttUser       `json:"user"`
	Properties ttProperties `json:"properties"`
}

type ttUser struct {
	Email string `json:"email,omitempty"`
}

type ttProperties struct {
	Currency string      `json:"currency"`
	Value    float64     `json:"value"`
	Contents []ttContent `json:"contents"`
}

type ttContent struct {
	ContentID   string  `json:"content_id"`
	ContentName string  `json:"content_name"`
	ContentType string  `json:"content_type"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

// Platform implements Tracker.
func (t *TikTok) Platform() string { return "tiktok" }

// Send implements Tracker.
func (t *TikTok) Send(ctx context.Context, c Conversion) error {
	base := strings.TrimRight(t.BaseURL, "/")
	if base == "" {
		base = tiktokBaseURL
	}
	req := ttRequest{
		EventSource:   "web",
		EventSourceID: t.PixelID,
		Data: []ttEvent{{
			Event:     "CompletePayment",
			EventTime: c.Time.Unix(),
			EventID:   c.EventID,
			User:      ttUser{Email: c.EmailHash},
			Properties: ttProperties{
				Currency: c.Currency,
				Value:    c.Value,
				Contents: []ttContent{{
					ContentID:   c.ProductKey,
					ContentName: c.ProductName,
					ContentType: "product",
					Quantity:    1,
					Price:       c.Value,
				}},
			},
		}},
	}
	headers := map[string]string{"Access-Token": t.AccessToken}
	if err := t.Client.PostJSON(ctx, base+"/open_api/v1.3/event/track/", headers, req); err != nil {
		return fmt.Errorf("tiktok events: %w", err)
	}
	return nil
}
