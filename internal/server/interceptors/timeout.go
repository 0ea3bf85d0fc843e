package interceptors

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

// TimeoutUnary bounds every unary call to d. A non-positive d disables the bound.
// An earlier client deadline still wins.
func TimeoutUnary(d time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if d <= 0 {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return handler(ctx, req)
	}
}
