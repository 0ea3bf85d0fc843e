// Package handler implements the dev-only gRPC DevService (GetActivationToken).
package handler

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"credential-lifecycle/internal/devinbox"
	identityhandler "credential-lifecycle/internal/identity/handler"
	"credential-lifecycle/internal/identity/service"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "credential.v1.DevService"

// MethodGetActivationToken is the full method name, for interceptor allow-lists.
const MethodGetActivationToken = "/" + ServiceName + "/GetActivationToken"

const devNote = "DEV MODE ONLY"

type GetActivationTokenRequest struct {
	Email string `json:"email"`
}

type GetActivationTokenResponse struct {
	Token string `json:"token"`
	Note  string `json:"note"`
}

// PendingChecker reports whether the identity with email still awaits activation.
// Satisfied by *service.AuthService.
type PendingChecker interface {
	PendingActivation(ctx context.Context, email string) (bool, error)
}

// Server implements DevService. Only registered when the dev inbox is enabled and not production.
type Server struct {
	store   devinbox.Store
	pending PendingChecker
}

// NewServer returns a DevService server that reads tokens from the given store.
// If pending is non-nil, tokens are only handed out for identities still awaiting activation.
func NewServer(store devinbox.Store, pending PendingChecker) *Server {
	return &Server{store: store, pending: pending}
}

// GetActivationToken returns the latest activation token mailed to email. Returns NotFound if missing or expired,
// and FailedPrecondition once the identity is active.
func (s *Server) GetActivationToken(ctx context.Context, req *GetActivationTokenRequest) (*GetActivationTokenResponse, error) {
	if req.Email == "" {
		return nil, status.Error(codes.InvalidArgument, "email is required")
	}
	if s.pending != nil {
		ok, err := s.pending.PendingActivation(ctx, req.Email)
		switch {
		case errors.Is(err, service.ErrNotFound):
			return nil, status.Error(codes.NotFound, "no identity registered for email")
		case err != nil:
			return nil, status.Error(codes.Internal, "pending activation lookup failed")
		case !ok:
			return nil, status.Error(codes.FailedPrecondition, "identity is already activated")
		}
	}
	token, ok := s.store.Get(ctx, req.Email)
	if !ok {
		return nil, status.Error(codes.NotFound, "activation token not found or expired")
	}
	return &GetActivationTokenResponse{Token: token, Note: devNote}, nil
}

// Register registers srv with s.
func Register(s grpc.ServiceRegistrar, srv *Server) {
	s.RegisterService(&serviceDesc, srv)
}

func getActivationTokenHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetActivationTokenRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).GetActivationToken(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodGetActivationToken}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*Server).GetActivationToken(ctx, req.(*GetActivationTokenRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetActivationToken", Handler: getActivationTokenHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "credential/v1/dev.proto",
}

// GetActivationToken calls DevService over cc with the JSON codec.
func GetActivationToken(ctx context.Context, cc grpc.ClientConnInterface, email string) (*GetActivationTokenResponse, error) {
	out := new(GetActivationTokenResponse)
	err := cc.Invoke(ctx, MethodGetActivationToken, &GetActivationTokenRequest{Email: email}, out, grpc.CallContentSubtype(identityhandler.CodecName))
	if err != nil {
		return nil, err
	}
	return out, nil
}
