package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/aistrategyllc/checkout-api/internal/obs"
)

const (
	// TaskWelcomeEmail is the asynq task type carrying a Notice.
	TaskWelcomeEmail = "fulfillment:welcome_email"
	// QueueEmail is the asynq queue welcome emails are published to.
	QueueEmail = "email"
	// WelcomeMaxRetry bounds redelivery attempts of a welcome email task.
	WelcomeMaxRetry = 3
)

// Enqueuer is the subset of *asynq.Client used to publish tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewWelcomeEmailTask encodes a notice as an asynq task.
func NewWelcomeEmailTask(n Notice) (*asynq.Task, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encode welcome task: %w", err)
	}
	return asynq.NewTask(TaskWelcomeEmail, payload), nil
}

// QueueSender hands notices to the background worker so the webhook can
// acknowledge without waiting on the email provider.
type QueueSender struct {
	Client   Enqueuer
	Queue    string
	MaxRetry int
}

// Channel implements Sender.
func (q *QueueSender) Channel() string { return "queue" }

// Send implements Sender.
func (q *QueueSender) Send(ctx context.Context, n Notice) error {
	if q.Client == nil {
		return errors.New("queue: client not configured")
	}
	task, err := NewWelcomeEmailTask(n)
	if err != nil {
		return err
	}
	queue := strings.TrimSpace(q.Queue)
	if queue == "" {
		queue = QueueEmail
	}
	maxRetry := q.MaxRetry
	if maxRetry <= 0 {
		maxRetry = WelcomeMaxRetry
	}
	if _, err := q.Client.EnqueueContext(ctx, task, asynq.Queue(queue), asynq.MaxRetry(maxRetry)); err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", TaskWelcomeEmail, err)
	}
	return nil
}

// WelcomeEmailWorker consumes welcome email tasks.
type WelcomeEmailWorker struct {
	Sender Sender
	Logger *zerolog.Logger
}

// ProcessTask implements asynq.Handler. Undecodable or recipient-less
// payloads are not retried.
func (w WelcomeEmailWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if w.Sender == nil {
		return errors.New("welcome worker: sender not configured")
	}
	logger := obs.LoggerOrNop(w.Logger)
	var n Notice
	if err := json.Unmarshal(t.Payload(), &n); err != nil {
		logger.Error().Err(err).Str("task", t.Type()).Msg("fulfillment_data_error")
		return fmt.Errorf("decode welcome task: %v: %w", err, asynq.SkipRetry)
	}
	if strings.TrimSpace(n.Email) == "" {
		logger.Error().Str("session_id", n.SessionID).Msg("fulfillment_data_error")
		return fmt.Errorf("%w: %w", ErrMissingRecipient, asynq.SkipRetry)
	}
	if err := w.Sender.Send(ctx, n); err != nil {
		obs.Count(obs.FulfillmentTotal, w.Sender.Channel(), "retry")
		logger.Warn().Err(err).Str("session_id", n.SessionID).Msg("fulfillment_delivery_error")
		return err
	}
	obs.Count(obs.FulfillmentTotal, w.Sender.Channel(), "sent")
	logger.Info().Str("session_id", n.SessionID).Str("channel", w.Sender.Channel()).Msg("fulfillment_sent")
	return nil
}

// Register wires the worker into an asynq mux.
func (w WelcomeEmailWorker) Register(mux *asynq.ServeMux) {
	mux.Handle(TaskWelcomeEmail, w)
}
