package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"credential-lifecycle/internal/platform/logging"
	"credential-lifecycle/internal/telemetry"
)

// Security event actions recorded by the credential service.
const (
	ActionRegistered          = "registered"
	ActionLoginSucceeded      = "login_succeeded"
	ActionLoginFailed         = "login_failed"
	ActionRefreshRotated      = "refresh_rotated"
	ActionRefreshFailed       = "refresh_failed"
	ActionSessionCompromised  = "session_compromised"
	ActionLogout              = "logout"
	ActionActivationConfirmed = "activation_confirmed"
	ActionActivationFailed    = "activation_failed"
	ActionActivationResent    = "activation_resent"
)

// OutcomeCompromised marks events that indicate possible token theft.
const OutcomeCompromised = "compromised"

const source = "auth_service"

// IPExtractor returns the client IP from the request context (e.g. gRPC metadata or peer).
type IPExtractor func(context.Context) string

// AuditLogger records one security event. LogEvent is best-effort: failures are
// logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, action, userID, deviceID, outcome string, details map[string]string)
}

// Logger implements AuditLogger by writing a slog line and emitting a telemetry.Event asynchronously.
type Logger struct {
	emitter     telemetry.EventEmitter
	log         *slog.Logger
	ipExtractor IPExtractor
}

// NewLogger returns an AuditLogger. emitter may be nil (slog only); ipExtractor may be
// nil, then IP is recorded as "unknown".
func NewLogger(emitter telemetry.EventEmitter, log *slog.Logger, ipExtractor IPExtractor) *Logger {
	return &Logger{emitter: emitter, log: logging.OrDefault(log), ipExtractor: ipExtractor}
}

// LogEvent writes one audit entry. details must not contain secrets.
func (l *Logger) LogEvent(ctx context.Context, action, userID, deviceID, outcome string, details map[string]string) {
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	event := &telemetry.Event{
		Type:      action,
		Source:    source,
		Outcome:   outcome,
		UserID:    userID,
		DeviceID:  deviceID,
		ClientIP:  ip,
		CreatedAt: time.Now().UTC(),
	}
	if len(details) > 0 {
		if b, err := json.Marshal(details); err == nil {
			event.Metadata = b
		}
	}

	level := slog.LevelInfo
	if outcome == OutcomeCompromised {
		level = slog.LevelWarn
	}
	l.log.LogAttrs(ctx, level, "audit: "+action,
		slog.String("user_id", userID),
		slog.String("device_id", deviceID),
		slog.String("outcome", outcome),
		slog.String("client_ip", ip),
	)
	telemetry.EmitAsync(l.emitter, event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) LogEvent(context.Context, string, string, string, string, map[string]string) {}
