package payment

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// EventCheckoutSessionCompleted is the only webhook event type acted upon.
const EventCheckoutSessionCompleted = "checkout.session.completed"

var (
	// ErrConfiguration reports a required setting that is absent at the point of use.
	ErrConfiguration = errors.New("payment: missing configuration")
	// ErrUpstream reports a failed call to the payment provider.
	ErrUpstream = errors.New("payment: upstream request failed")
	// ErrInvalidSignature reports a webhook that failed signature verification.
	ErrInvalidSignature = errors.New("payment: invalid webhook signature")
)

// SessionRequest carries everything needed to open a hosted, single-item,
// one-time-payment checkout session.
type SessionRequest struct {
	PriceID       string
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
	Metadata      map[string]string
}

// Session is the provider's hosted checkout session.
type Session struct {
	ID  string
	URL string
}

// CustomerDetails holds the buyer details collected on the hosted page.
type CustomerDetails struct {
	Email string
	Name  string
}

// CompletedSession is the verified payload of a completed checkout.
type CompletedSession struct {
	ID              string
	CustomerEmail   string
	CustomerDetails *CustomerDetails
	Metadata        map[string]string
	AmountTotal     int64
	Currency        string
	Created         time.Time
}

// ProductKey returns the catalog key recorded when the session was created.
func (s CompletedSession) ProductKey() string {
	if s.Metadata == nil {
		return ""
	}
	return s.Metadata["product_key"]
}

// Event is a verified webhook notification. Session is set only for
// completed checkouts whose payload could be decoded.
type Event struct {
	ID      string
	Type    string
	Object  json.RawMessage
	Session *CompletedSession
}

// Provider abstracts the operations required from an upstream payment provider.
type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	ParseWebhook(payload []byte, signature string) (Event, error)
}

// Fulfiller performs the post-payment action for a completed checkout.
type Fulfiller interface {
	Fulfill(ctx context.Context, session CompletedSession) error
}

// ConversionTracker reports completed purchases to analytics platforms. It must not block.
type ConversionTracker interface {
	Track(ctx context.Context, session CompletedSession)
}

// credentialChecker is implemented by providers that can name missing
// credentials without calling out.
type credentialChecker interface {
	MissingCredentials() []string
}
