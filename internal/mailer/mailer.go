// Package mailer dispatches activation emails. Delivery itself happens outside
// this service; the Kafka sender hands requests to a mail worker.
package mailer

import (
	"context"
	"log/slog"
	"time"

	"credential-lifecycle/internal/platform/logging"
	"credential-lifecycle/internal/telemetry/producer"
)

// sendTimeout bounds one asynchronous dispatch.
const sendTimeout = 5 * time.Second

// Sender delivers the activation token to the user's mailbox.
type Sender interface {
	SendActivation(ctx context.Context, email, token, name string) error
}

// ActivationMessage is the payload published for the mail worker.
type ActivationMessage struct {
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Token       string    `json:"token"`
	RequestedAt time.Time `json:"requested_at"`
}

// KafkaSender publishes ActivationMessage values keyed by email.
type KafkaSender struct {
	producer producer.Producer
}

// NewKafkaSender returns a Sender writing through p.
func NewKafkaSender(p producer.Producer) *KafkaSender {
	return &KafkaSender{producer: p}
}

func (s *KafkaSender) SendActivation(ctx context.Context, email, token, name string) error {
	return s.producer.Publish(ctx, email, ActivationMessage{
		Email:       email,
		Name:        name,
		Token:       token,
		RequestedAt: time.Now().UTC(),
	})
}

// LogSender logs that an activation email would be sent. For development; the token is not logged.
type LogSender struct {
	log *slog.Logger
}

// NewLogSender returns a LogSender. log may be nil.
func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: logging.OrDefault(log)}
}

func (s *LogSender) SendActivation(ctx context.Context, email, token, name string) error {
	s.log.InfoContext(ctx, "mailer: activation email", "email", email, "name", name, "token_len", len(token))
	return nil
}

// SendAsync dispatches in a goroutine detached from the request context. Failures are logged, never returned.
// done, if non-nil, is called after the attempt.
func SendAsync(sender Sender, log *slog.Logger, email, token, name string, done func(error)) {
	if sender == nil {
		return
	}
	log = logging.OrDefault(log)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		err := sender.SendActivation(ctx, email, token, name)
		if err != nil {
			log.Warn("mailer: activation email failed", "email", email, "error", err)
		}
		if done != nil {
			done(err)
		}
	}()
}
