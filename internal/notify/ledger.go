package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/aistrategyllc/checkout-api/internal/obs"
)

// LedgerSender records notices for manual handling: a structured log entry
// and, when Redis is configured, an append to a list.
type LedgerSender struct {
	Logger *zerolog.Logger
	Redis  *redis.Client
	Key    string
}

// Channel implements Sender.
func (l *LedgerSender) Channel() string { return "log" }

// Send implements Sender.
func (l *LedgerSender) Send(ctx context.Context, n Notice) error {
	logger := obs.LoggerOrNop(l.Logger)
	logger.Info().
		Str("email", n.Email).
		Str("name", n.Name).
		Str("session_id", n.SessionID).
		Str("product", n.Product).
		Time("timestamp", n.Timestamp).
		Msg("fulfillment_manual_record")
	if l.Redis == nil || strings.TrimSpace(l.Key) == "" {
		return nil
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("ledger: encode notice: %w", err)
	}
	if err := l.Redis.RPush(ctx, l.Key, data).Err(); err != nil {
		return fmt.Errorf("ledger: append: %w", err)
	}
	return nil
}

// Recent returns up to limit of the newest ledger records, newest last.
func (l *LedgerSender) Recent(ctx context.Context, limit int64) ([]Notice, error) {
	if l.Redis == nil || strings.TrimSpace(l.Key) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	raw, err := l.Redis.LRange(ctx, l.Key, -limit, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("ledger: read: %w", err)
	}
	out := make([]Notice, 0, len(raw))
	for _, item := range raw {
		var n Notice
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}
