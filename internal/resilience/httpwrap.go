package resilience

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// StatusError reports a non-success upstream response.
type StatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("resilience: upstream status %d", e.StatusCode)
	}
	return fmt.Sprintf("resilience: upstream status %d: %s", e.StatusCode, e.Body)
}

// HTTPClient sends outbound calls through a circuit breaker with a per
// attempt timeout and bounded retries on transport errors, 5xx and 429.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	Target      string
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	Timeout     time.Duration
}

// Do executes req, replaying its body on each attempt. A response is
// returned only for non-retryable statuses; otherwise the last error is. When
// the breaker refuses a call the result is ErrOpenCircuit.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	breaker := cl.Breaker
	if breaker == nil {
		breaker = NewBreaker(1, 1, time.Second).WithTarget(cl.Target)
	}
	body, err := readBody(req)
	if err != nil {
		return nil, err
	}

	attempts := max(cl.MaxAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if !breaker.Allow(ctx) {
			cl.count("rejected")
			return nil, ErrOpenCircuit
		}
		resp, err := cl.attempt(ctx, req, body)
		if err == nil {
			breaker.Report(ctx, true)
			cl.count("ok")
			return resp, nil
		}
		breaker.Report(ctx, false)
		cl.count("error")
		lastErr = err
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, cl.delay(attempt, err)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// PostJSON marshals payload, posts it to url and treats any non-2xx response as an error.
func (cl HTTPClient) PostJSON(ctx context.Context, url string, headers map[string]string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("resilience: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := cl.Do(ctx, req)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	_ = drain(resp)
	return nil
}

// attempt performs one call. Retryable statuses come back as *StatusError
// with the body already consumed.
func (cl HTTPClient) attempt(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}

	out := req.Clone(ctx)
	if body != nil {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
		out.ContentLength = int64(len(body))
	}
	resp, err := cl.Client.Do(out)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	if retryable(resp.StatusCode) {
		return nil, statusError(resp)
	}
	return resp, nil
}

func (cl HTTPClient) delay(attempt int, err error) time.Duration {
	var se *StatusError
	if errors.As(err, &se) && se.RetryAfter > 0 {
		return se.RetryAfter
	}
	return Backoff(cl.BaseBackoff, attempt, cl.Jitter)
}

func (cl HTTPClient) count(result string) {
	target := cl.Target
	if target == "" {
		target = "default"
	}
	OutboundAttempts.WithLabelValues(target, result).Inc()
}

func retryable(status int) bool {
	return status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
}

// statusError describes a failed response and closes its body.
func statusError(resp *http.Response) *StatusError {
	se := &StatusError{StatusCode: resp.StatusCode}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		se.RetryAfter = min(time.Duration(secs)*time.Second, maxBackoff)
	}
	se.Body = drain(resp)
	return se
}

// drain reads at most 1 KiB of the body for diagnostics and closes it.
func drain(resp *http.Response) string {
	if resp == nil || resp.Body == nil {
		return ""
	}
	defer func() { _ = resp.Body.Close() }()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	_, _ = io.Copy(io.Discard, resp.Body)
	return string(bytes.TrimSpace(data))
}

func readBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer func() { _ = req.Body.Close() }()
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("resilience: read request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
