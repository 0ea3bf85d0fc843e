package interceptors

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"credential-lifecycle/internal/security"
)

const bearerPrefix = "bearer "

// IdentityValidator reports whether the principal of a verified access token may still call
// protected methods (e.g. the identity was not deleted).
type IdentityValidator func(ctx context.Context, userID, deviceID string) (bool, error)

// AuthUnary returns a unary server interceptor that validates the Bearer access token
// from gRPC metadata and sets user_id, device_id and token_id in context for protected RPCs.
// publicMethods is the set of full method names that do not require a Bearer token
// (Register, Login, Refresh, activation, health). If validator is non-nil, protected
// calls are also rejected when it refuses the token's principal.
func AuthUnary(tokens *security.TokenCodec, publicMethods map[string]bool, validator IdentityValidator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if publicMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		token := extractBearer(ctx)
		if token == "" {
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}
		claims, err := tokens.Verify(security.KindAccess, token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}
		if validator != nil {
			ok, err := validator(ctx, claims.Subject, claims.DeviceID)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					return nil, status.Error(codes.Unavailable, "unavailable")
				}
				slog.WarnContext(ctx, "auth: identity check failed", "user_id", claims.Subject, "error", err)
				return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
			}
			if !ok {
				return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
			}
		}
		ctx = WithIdentity(ctx, claims.Subject, claims.DeviceID, claims.ID)
		return handler(ctx, req)
	}
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	v := strings.TrimSpace(vals[0])
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
