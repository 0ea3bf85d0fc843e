// Package producer publishes JSON messages to Kafka: security events and activation-mail requests.
package producer

import (
	"context"

	"credential-lifecycle/internal/telemetry"
)

// Producer publishes JSON-encoded values. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Publish encodes v as JSON and writes it with the given partition key.
	Publish(ctx context.Context, key string, v any) error
	// Emit publishes a telemetry event keyed by user id, so Producer can serve as a telemetry.EventEmitter.
	Emit(ctx context.Context, event *telemetry.Event) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
