package resilience_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/aistrategyllc/checkout-api/internal/resilience"
)

func TestFailingTrackerEndpointOpensBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	const target = "facebook-outage"
	client := resilience.HTTPClient{
		Client:      srv.Client(),
		Breaker:     resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget(target),
		Target:      target,
		MaxAttempts: 1,
	}
	ctx := context.Background()
	event := map[string]any{"event_name": "Purchase"}

	for i := 0; i < 5; i++ {
		var statusErr *resilience.StatusError
		require.ErrorAs(t, client.PostJSON(ctx, srv.URL, nil, event), &statusErr)
		require.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	}
	require.ErrorIs(t, client.PostJSON(ctx, srv.URL, nil, event), resilience.ErrOpenCircuit)
	require.EqualValues(t, 5, calls.Load())

	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerState.WithLabelValues(target)))
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerOpenedTotal.WithLabelValues(target)))
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues(target, "closed", "open")))
	require.Equal(t, 5.0, testutil.ToFloat64(resilience.OutboundAttempts.WithLabelValues(target, "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.OutboundAttempts.WithLabelValues(target, "rejected")))
	require.Zero(t, testutil.ToFloat64(resilience.OutboundAttempts.WithLabelValues(target, "ok")))
}

func TestRecoveredEndpointClosesBreaker(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	const target = "ga4-recovery"
	client := resilience.HTTPClient{
		Client:      srv.Client(),
		Breaker:     resilience.NewBreaker(1, 0.5, 20*time.Millisecond).WithTarget(target),
		Target:      target,
		MaxAttempts: 1,
	}
	ctx := context.Background()
	event := map[string]any{"name": "purchase"}

	require.Error(t, client.PostJSON(ctx, srv.URL, nil, event))
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerState.WithLabelValues(target)))

	healthy.Store(true)
	require.Eventually(t, func() bool {
		return client.PostJSON(ctx, srv.URL, nil, event) == nil
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, 0.0, testutil.ToFloat64(resilience.BreakerState.WithLabelValues(target)))
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues(target, "open", "half_open")))
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues(target, "half_open", "closed")))
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.OutboundAttempts.WithLabelValues(target, "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.OutboundAttempts.WithLabelValues(target, "error")))
}
