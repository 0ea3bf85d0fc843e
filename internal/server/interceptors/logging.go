package interceptors

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"credential-lifecycle/internal/metrics"
	"credential-lifecycle/internal/platform/logging"
)

// LoggingUnary returns a unary server interceptor that logs each RPC with its status code and
// duration and counts it in m. skipMethods are neither logged nor counted (e.g. health checks).
// Internal errors log at ERROR; everything else at INFO.
func LoggingUnary(log *slog.Logger, m *metrics.Metrics, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	log = logging.OrDefault(log)
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}
		code := status.Code(err)
		m.RPC(info.FullMethod, code.String())

		level := slog.LevelInfo
		if code == codes.Internal || code == codes.Unknown {
			level = slog.LevelError
		}
		attrs := []slog.Attr{
			slog.String("method", info.FullMethod),
			slog.String("code", code.String()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("client_ip", ClientIP(ctx)),
		}
		if userID, ok := GetUserID(ctx); ok {
			attrs = append(attrs, slog.String("user_id", userID))
		}
		log.LogAttrs(ctx, level, "grpc request", attrs...)
		return resp, err
	}
}
