package tracking

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aistrategyllc/checkout-api/internal/catalog"
	"github.com/aistrategyllc/checkout-api/internal/common"
	"github.com/aistrategyllc/checkout-api/internal/obs"
	"github.com/aistrategyllc/checkout-api/internal/payment"
	"github.com/aistrategyllc/checkout-api/internal/resilience"
)

// Conversion is a completed purchase as reported to analytics platforms.
type Conversion struct {
	EventID     string
	ProductKey  string
	ProductName string
	Value       float64
	Currency    string
	EmailHash   string
	Time        time.Time
}

// Tracker reports a conversion to one platform.
type Tracker interface {
	Platform() string
	Send(ctx context.Context, c Conversion) error
}

// Settings enables individual trackers. A platform without its ids is skipped.
type Settings struct {
	FacebookPixelID     string
	FacebookAccessToken string
	TikTokPixelID       string
	TikTokAccessToken   string
	GAMeasurementID     string
	GAAPISecret         string
	Timeout             time.Duration
	HTTPClient          *http.Client
	Logger              *zerolog.Logger
}

// Trackers returns the trackers whose credentials are configured.
func Trackers(s Settings) []Tracker {
	httpClient := s.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	client := func(target string) resilience.HTTPClient {
		breaker := resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget(target)
		if s.Logger != nil {
			breaker = breaker.WithLogger(*s.Logger)
		}
		return resilience.HTTPClient{
			Client:      httpClient,
			Breaker:     breaker,
			Target:      target,
			MaxAttempts: 1,
			Timeout:     s.Timeout,
		}
	}

	var out []Tracker
	if s.FacebookPixelID != "" && s.FacebookAccessToken != "" {
		out = append(out, &Facebook{PixelID: s.FacebookPixelID, AccessToken: s.FacebookAccessToken, Client: client("facebook")})
	}
	if s.TikTokPixelID != "" && s.TikTokAccessToken != "" {
		out = append(out, &TikTok{PixelID: s.TikTokPixelID, AccessToken: s.TikTokAccessToken, Client: client("tiktok")})
	}
	if s.GAMeasurementID != "" && s.GAAPISecret != "" {
		out = append(out, &GA4{MeasurementID: s.GAMeasurementID, APISecret: s.GAAPISecret, Client: client("ga4")})
	}
	return out
}

// Fanout reports each purchase to every tracker concurrently. Failures are
// logged and counted; they never reach the caller.
type Fanout struct {
	Trackers []Tracker
	Catalog  *catalog.Catalog
	Timeout  time.Duration
	Logger   *zerolog.Logger

	wg sync.WaitGroup
}

// Track implements payment.ConversionTracker.
func (f *Fanout) Track(ctx context.Context, s payment.CompletedSession) {
	if f == nil || len(f.Trackers) == 0 {
		return
	}
	f.Purchase(ctx, f.conversion(s))
}

// Purchase dispatches c to every tracker and returns without waiting.
func (f *Fanout) Purchase(ctx context.Context, c Conversion) {
	if f == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	logger := obs.LoggerOrNop(f.Logger)
	for _, t := range f.Trackers {
		f.wg.Add(1)
		go func(t Tracker) {
			defer f.wg.Done()
			platform := t.Platform()
			defer func() {
				if r := recover(); r != nil {
					obs.Count(obs.ConversionTotal, platform, "panic")
					logger.Error().Str("platform", platform).Str("panic", fmt.Sprint(r)).Msg("conversion_tracking_panic")
				}
			}()
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if err := t.Send(callCtx, c); err != nil {
				obs.Count(obs.ConversionTotal, platform, "error")
				logger.Warn().Err(err).Str("platform", platform).Str("event_id", c.EventID).Msg("conversion_tracking_failed")
				return
			}
			obs.Count(obs.ConversionTotal, platform, "sent")
			logger.Debug().Str("platform", platform).Str("event_id", c.EventID).Msg("conversion_tracked")
		}(t)
	}
}

// Wait blocks until every dispatched report has finished.
func (f *Fanout) Wait() {
	f.wg.Wait()
}

func (f *Fanout) conversion(s payment.CompletedSession) Conversion {
	key := s.ProductKey()
	name, value := f.Catalog.Describe(key)
	if s.AmountTotal > 0 {
		value = float64(s.AmountTotal) / 100
	}
	currency := strings.ToUpper(strings.TrimSpace(s.Currency))
	if currency == "" {
		currency = "USD"
	}
	email := s.CustomerEmail
	if email == "" && s.CustomerDetails != nil {
		email = s.CustomerDetails.Email
	}
	ts := s.Created
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return Conversion{
		EventID:     s.ID,
		ProductKey:  key,
		ProductName: name,
		Value:       value,
		Currency:    currency,
		EmailHash:   common.HashEmail(email),
		Time:        ts,
	}
}
