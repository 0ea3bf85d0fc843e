package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"credential-lifecycle/internal/platform/logging"
)

// deliverTimeout bounds one delivery attempt by the consumer.
const deliverTimeout = 10 * time.Second

// MessageReader is the subset of *kafka.Reader used by Consume.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// NewReader returns a consumer-group reader for the activation email topic.
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        time.Second,
		CommitInterval: time.Second,
	})
}

// Consume reads ActivationMessage payloads until ctx is done and hands each to
// deliver. Malformed messages and delivery failures are logged and skipped.
// Returns nil when ctx is cancelled.
func Consume(ctx context.Context, r MessageReader, deliver Sender, log *slog.Logger) error {
	if r == nil || deliver == nil {
		return errors.New("mailer: reader and sender are required")
	}
	log = logging.OrDefault(log)
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("mailer: kafka read error", "error", err)
			continue
		}
		var m ActivationMessage
		if err := json.Unmarshal(msg.Value, &m); err != nil || m.Email == "" || m.Token == "" {
			log.Warn("mailer: skipping malformed activation message", "offset", msg.Offset, "error", err)
			continue
		}
		dctx, cancel := context.WithTimeout(ctx, deliverTimeout)
		if err := deliver.SendActivation(dctx, m.Email, m.Token, m.Name); err != nil {
			log.Warn("mailer: delivery failed", "email", m.Email, "error", err)
		}
		cancel()
	}
}
