package server

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"

	"credential-lifecycle/internal/devinbox"
	devhandler "credential-lifecycle/internal/devinbox/handler"
	identityhandler "credential-lifecycle/internal/identity/handler"
	"credential-lifecycle/internal/metrics"
	"credential-lifecycle/internal/server/interceptors"
	"credential-lifecycle/internal/security"
	"credential-lifecycle/internal/telemetry"
)

// Health check methods are neither logged nor emitted as telemetry.
var quietMethods = map[string]bool{
	healthgrpc.Health_Check_FullMethodName: true,
	healthgrpc.Health_Watch_FullMethodName: true,
	healthgrpc.Health_List_FullMethodName:  true,
}

// Deps holds the dependencies for the gRPC server.
type Deps struct {
	// Auth is the credential service. If nil, AuthService RPCs return Unimplemented.
	Auth identityhandler.AuthService
	// Tokens verifies Bearer access tokens for protected methods. Required.
	Tokens *security.TokenCodec
	// IdentityValidator, if set, refuses access tokens whose principal is gone.
	IdentityValidator interceptors.IdentityValidator
	// Health is the grpc.health.v1 server, driven by health.Monitor. If nil, health is not served.
	Health *health.Server
	// Telemetry receives one grpc_request event per RPC. If nil, no events are emitted.
	Telemetry telemetry.EventEmitter
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	// RequestTimeout bounds each unary call; zero disables it.
	RequestTimeout time.Duration
	// DevInbox, if set, serves credential.v1.DevService. Never set in production.
	DevInbox devinbox.Store
	// DevPending, if set, limits DevService to identities still awaiting activation.
	DevPending devhandler.PendingChecker
}

// NewServer returns a grpc.Server with tracing, the interceptor chain and all services registered.
func NewServer(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.TimeoutUnary(deps.RequestTimeout),
			interceptors.AuthUnary(deps.Tokens, publicMethods(deps), deps.IdentityValidator),
			interceptors.LoggingUnary(deps.Logger, deps.Metrics, quietMethods),
			interceptors.TelemetryUnary(deps.Telemetry, quietMethods),
		),
	}, opts...)
	s := grpc.NewServer(opts...)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers all gRPC services with the given server.
//
// Service → handler mapping:
//   - credential.v1.AuthService → internal/identity/handler
//   - grpc.health.v1.Health     → google.golang.org/grpc/health (driven by internal/health/handler)
//   - credential.v1.DevService  → internal/devinbox/handler (dev only)
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	identityhandler.RegisterAuthServiceServer(s, identityhandler.NewAuthServer(deps.Auth, deps.Logger))
	if deps.Health != nil {
		healthgrpc.RegisterHealthServer(s, deps.Health)
	}
	if deps.DevInbox != nil {
		devhandler.Register(s, devhandler.NewServer(deps.DevInbox, deps.DevPending))
	}
}

func publicMethods(deps Deps) map[string]bool {
	m := identityhandler.PublicMethods()
	for k := range quietMethods {
		m[k] = true
	}
	if deps.DevInbox != nil {
		m[devhandler.MethodGetActivationToken] = true
	}
	return m
}

// IdentityExists returns an IdentityValidator that accepts tokens whose user still exists.
func IdentityExists(lookup func(ctx context.Context, id string) (bool, error)) interceptors.IdentityValidator {
	return func(ctx context.Context, userID, _ string) (bool, error) {
		return lookup(ctx, userID)
	}
}
