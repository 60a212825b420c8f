package notify_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aistrategyllc/checkout-api/internal/notify"
	"github.com/aistrategyllc/checkout-api/internal/payment"
)

type recordingSender struct {
	mu      sync.Mutex
	notices []notify.Notice
	err     error
	channel string
}

func (s *recordingSender) Channel() string {
	if s.channel == "" {
		return "stub"
	}
	return s.channel
}

func (s *recordingSender) Send(ctx context.Context, n notify.Notice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, n)
	return s.err
}

func (s *recordingSender) sent() []notify.Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Notice(nil), s.notices...)
}

type blockingSender struct{}

func (blockingSender) Channel() string { return "slow" }

func (blockingSender) Send(ctx context.Context, n notify.Notice) error {
	<-ctx.Done()
	return ctx.Err()
}

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func bufferLogger() (*zerolog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	return &logger, &buf
}

func logCount(buf *bytes.Buffer, message string) int {
	return strings.Count(buf.String(), `"message":"`+message+`"`)
}

func completedSession() payment.CompletedSession {
	return payment.CompletedSession{
		ID:              "cs_test_123",
		CustomerDetails: &payment.CustomerDetails{Email: "a@b.com", Name: "Pat"},
		Metadata:        map[string]string{"product": "Sidekick Solo", "product_key": "solo"},
	}
}

func TestNoticeFromSessionExtraction(t *testing.T) {
	t.Run("customer email wins", func(t *testing.T) {
		s := completedSession()
		s.CustomerEmail = "first@example.com"
		n, err := notify.NoticeFromSession(s, fixedNow)
		require.NoError(t, err)
		require.Equal(t, "first@example.com", n.Email)
		require.Equal(t, "Pat", n.Name)
		require.Equal(t, "cs_test_123", n.SessionID)
		require.Equal(t, "solo", n.ProductKey)
		require.Equal(t, "Sidekick Solo", n.Product)
		require.Equal(t, fixedNow, n.Timestamp)
	})

	t.Run("details email used when customer email empty", func(t *testing.T) {
		n, err := notify.NoticeFromSession(completedSession(), fixedNow)
		require.NoError(t, err)
		require.Equal(t, "a@b.com", n.Email)
	})

	t.Run("name defaults to there", func(t *testing.T) {
		s := payment.CompletedSession{ID: "cs_1", CustomerEmail: "x@y.com"}
		n, err := notify.NoticeFromSession(s, fixedNow)
		require.NoError(t, err)
		require.Equal(t, notify.DefaultName, n.Name)
	})

	t.Run("no email anywhere", func(t *testing.T) {
		s := payment.CompletedSession{ID: "cs_2", CustomerDetails: &payment.CustomerDetails{Name: "Pat"}}
		_, err := notify.NoticeFromSession(s, fixedNow)
		require.True(t, errors.Is(err, notify.ErrMissingRecipient))
	})
}

func TestFulfillSendsNotice(t *testing.T) {
	sender := &recordingSender{}
	n := &notify.Notifier{Sender: sender, Now: func() time.Time { return fixedNow }}

	require.NoError(t, n.Fulfill(context.Background(), completedSession()))
	sent := sender.sent()
	require.Len(t, sent, 1)
	require.Equal(t, "a@b.com", sent[0].Email)
	require.Equal(t, "Pat", sent[0].Name)
}

func TestFulfillMissingEmailLogsDataError(t *testing.T) {
	logger, buf := bufferLogger()
	sender := &recordingSender{}
	n := &notify.Notifier{Sender: sender, Logger: logger}

	err := n.Fulfill(context.Background(), payment.CompletedSession{ID: "cs_empty"})
	require.True(t, errors.Is(err, notify.ErrMissingRecipient))
	require.Empty(t, sender.sent())
	require.Equal(t, 1, logCount(buf, "fulfillment_data_error"))
}

func TestFulfillWithoutDedupNotifiesEveryDelivery(t *testing.T) {
	sender := &recordingSender{}
	n := &notify.Notifier{Sender: sender}

	require.NoError(t, n.Fulfill(context.Background(), completedSession()))
	require.NoError(t, n.Fulfill(context.Background(), completedSession()))
	require.Len(t, sender.sent(), 2)
}

func TestFulfillWithRedisDedupSkipsDuplicate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sender := &recordingSender{}
	n := &notify.Notifier{
		Sender: sender,
		Dedup:  notify.RedisDedup{Client: client, TTL: time.Hour},
	}

	require.NoError(t, n.Fulfill(context.Background(), completedSession()))
	require.NoError(t, n.Fulfill(context.Background(), completedSession()))
	require.Len(t, sender.sent(), 1)
	require.True(t, mr.Exists("fulfillment:claimed:cs_test_123"))

	mr.FastForward(2 * time.Hour)
	require.NoError(t, n.Fulfill(context.Background(), completedSession()))
	require.Len(t, sender.sent(), 2)
}

func TestFulfillDedupUnavailableFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	sender := &recordingSender{}
	n := &notify.Notifier{Sender: sender, Dedup: notify.RedisDedup{Client: client}}

	require.NoError(t, n.Fulfill(context.Background(), completedSession()))
	require.Len(t, sender.sent(), 1)
}

func TestFulfillDeliveryFailureRecordsFallback(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger, buf := bufferLogger()
	failing := &recordingSender{err: errors.New("smtp outage"), channel: "email"}
	ledger := &notify.LedgerSender{Logger: logger, Redis: client, Key: "fulfillment:manual"}
	dedup := notify.RedisDedup{Client: client}
	n := &notify.Notifier{Sender: failing, Fallback: ledger, Dedup: dedup, Logger: logger}

	err := n.Fulfill(context.Background(), completedSession())
	require.True(t, errors.Is(err, notify.ErrDelivery))
	require.Contains(t, err.Error(), "smtp outage")
	require.Equal(t, 1, logCount(buf, "fulfillment_delivery_error"))
	require.Equal(t, 1, logCount(buf, "fulfillment_manual_record"))

	records, err := ledger.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "a@b.com", records[0].Email)

	require.False(t, mr.Exists("fulfillment:claimed:cs_test_123"), "claim should be released after failure")
}

func TestFulfillDefaultsToLedger(t *testing.T) {
	logger, buf := bufferLogger()
	n := &notify.Notifier{Logger: logger}

	require.NoError(t, n.Fulfill(context.Background(), completedSession()))
	require.Equal(t, 1, logCount(buf, "fulfillment_manual_record"))
	require.Contains(t, buf.String(), `"email":"a@b.com"`)
}

func TestFulfillAppliesTimeout(t *testing.T) {
	n := &notify.Notifier{Sender: blockingSender{}, Timeout: 20 * time.Millisecond}

	err := n.Fulfill(context.Background(), completedSession())
	require.True(t, errors.Is(err, notify.ErrDelivery))
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}
