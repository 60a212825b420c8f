package tracking

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aistrategyllc/checkout-api/internal/resilience"
)

const (
	facebookBaseURL    = "https://graph.facebook.com"
	facebookAPIVersion = "v19.0"
)

// Facebook reports Purchase events to the Conversions API.
type Facebook struct {
	PixelID     string
	AccessToken string
	BaseURL     string
	Client      resilience.HTTPClient
}

type fbEvent struct {
	EventName    string       `json:"event_name"`
	EventTime    int64        `json:"event_time"`
	EventID      string       `json:"event_id"`
	ActionSource string       `json:"action_source"`
	UserData     fbUserData   `json:"user_data"`
	CustomData   fbCustomData `json:"custom_data"`
}

type fbUserData struct {
	Email []string `json:"em,omitempty"`
}

type fbCustomData struct {
	Currency    string   `json:"currency"`
	Value       float64  `json:"value"`
	ContentIDs  []string `json:"content_ids"`
	ContentName string   `json:"content_name"`
	ContentType string   `json:"content_type"`
}

// Platform implements Tracker.
func (f *Facebook) Platform() string { return "facebook" }

// Send implements Tracker.
func (f *Facebook) Send(ctx context.Context, c Conversion) error {
	base := strings.TrimRight(f.BaseURL, "/")
	if base == "" {
		base = facebookBaseURL
	}
	endpoint := fmt.Sprintf("%s/%s/%s/events?access_token=%s", base, facebookAPIVersion, url.PathEscape(f.PixelID), url.QueryEscape(f.AccessToken))

	event := fbEvent{
		EventName:    "Purchase",
		EventTime:    c.Time.Unix(),
		EventID:      c.EventID,
		ActionSource: "website",
		CustomData: fbCustomData{
			Currency:    c.Currency,
			Value:       c.Value,
			ContentIDs:  []string{c.ProductKey},
			ContentName: c.ProductName,
			ContentType: "product",
		},
	}
	if c.EmailHash != "" {
		event.UserData.Email = []string{c.EmailHash}
	}
	payload := map[string]any{"data": []fbEvent{event}}
	if err := f.Client.PostJSON(ctx, endpoint, nil, payload); err != nil {
		return fmt.Errorf("facebook capi: %w", err)
	}
	return nil
}
