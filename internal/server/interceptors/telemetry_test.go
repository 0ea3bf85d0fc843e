package interceptors

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"credential-lifecycle/internal/telemetry"
)

type chanEmitter chan *telemetry.Event

func (c chanEmitter) Emit(ctx context.Context, e *telemetry.Event) error {
	c <- e
	return nil
}

func TestTelemetryUnary_EmitsEvent(t *testing.T) {
	events := make(chanEmitter, 1)
	interceptor := TelemetryUnary(events, nil)
	ctx := WithIdentity(context.Background(), "user-1", "dev1", "jti-1")
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.InvalidArgument, "validation_failed")
	}
	if _, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/credential.v1.AuthService/Logout"}, handler); err == nil {
		t.Fatal("handler error must pass through")
	}

	select {
	case e := <-events:
		if e.Type != "grpc_request" || e.UserID != "user-1" || e.DeviceID != "dev1" || e.Outcome != "InvalidArgument" {
			t.Errorf("event = %+v", e)
		}
		var meta grpcRequestMetadata
		if err := json.Unmarshal(e.Metadata, &meta); err != nil {
			t.Fatal(err)
		}
		if meta.FullMethod != "/credential.v1.AuthService/Logout" || meta.StatusCode != "InvalidArgument" {
			t.Errorf("metadata = %+v", meta)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event emitted")
	}
}

func TestTelemetryUnary_SkipAndNil(t *testing.T) {
	events := make(chanEmitter, 1)
	skip := TelemetryUnary(events, map[string]bool{"/grpc.health.v1.Health/Check": true})
	handler := func(ctx context.Context, req interface{}) (interface{}, error) { return "ok", nil }
	if _, err := skip(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, handler); err != nil {
		t.Fatal(err)
	}
	select {
	case e := <-events:
		t.Errorf("unexpected event %+v", e)
	case <-time.After(50 * time.Millisecond):
	}

	resp, err := TelemetryUnary(nil, nil)(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x/Y"}, handler)
	if err != nil || resp != "ok" {
		t.Errorf("nil emitter: %v, %v", resp, err)
	}
}
