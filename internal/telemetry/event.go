package telemetry

import (
	"encoding/json"
	"time"
)

// Event is a security-relevant occurrence in the credential lifecycle
// (login, refresh rotation, compromise, activation). It never carries tokens,
// passwords, or hashes.
type Event struct {
	Type      string          `json:"event_type"`
	Source    string          `json:"source"`
	Outcome   string          `json:"outcome,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	DeviceID  string          `json:"device_id,omitempty"`
	ClientIP  string          `json:"client_ip,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
