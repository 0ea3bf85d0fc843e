package handler

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "credential.v1.AuthService"

// Full method names, for interceptor allow-lists.
const (
	MethodRegister          = "/" + ServiceName + "/Register"
	MethodLogin             = "/" + ServiceName + "/Login"
	MethodRefresh           = "/" + ServiceName + "/Refresh"
	MethodLogout            = "/" + ServiceName + "/Logout"
	MethodConfirmActivation = "/" + ServiceName + "/ConfirmActivation"
	MethodResendActivation  = "/" + ServiceName + "/ResendActivation"
)

// PublicMethods do not require a Bearer access token.
func PublicMethods() map[string]bool {
	return map[string]bool{
		MethodRegister:          true,
		MethodLogin:             true,
		MethodRefresh:           true,
		MethodConfirmActivation: true,
		MethodResendActivation:  true,
	}
}

// AuthServiceServer is the server API of credential.v1.AuthService.
type AuthServiceServer interface {
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	Refresh(context.Context, *RefreshRequest) (*RefreshResponse, error)
	Logout(context.Context, *LogoutRequest) (*LogoutResponse, error)
	ConfirmActivation(context.Context, *ConfirmActivationRequest) (*ConfirmActivationResponse, error)
	ResendActivation(context.Context, *ResendActivationRequest) (*ResendActivationResponse, error)
}

// RegisterAuthServiceServer registers srv with s.
func RegisterAuthServiceServer(s grpc.ServiceRegistrar, srv AuthServiceServer) {
	s.RegisterService(&AuthServiceDesc, srv)
}

// unaryHandler adapts a typed method to grpc.MethodDesc.Handler.
func unaryHandler[Req any, Resp any](fullMethod string, call func(AuthServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AuthServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(AuthServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// AuthServiceDesc describes credential.v1.AuthService for grpc.Server.RegisterService.
var AuthServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: unaryHandler(MethodRegister, AuthServiceServer.Register)},
		{MethodName: "Login", Handler: unaryHandler(MethodLogin, AuthServiceServer.Login)},
		{MethodName: "Refresh", Handler: unaryHandler(MethodRefresh, AuthServiceServer.Refresh)},
		{MethodName: "Logout", Handler: unaryHandler(MethodLogout, AuthServiceServer.Logout)},
		{MethodName: "ConfirmActivation", Handler: unaryHandler(MethodConfirmActivation, AuthServiceServer.ConfirmActivation)},
		{MethodName: "ResendActivation", Handler: unaryHandler(MethodResendActivation, AuthServiceServer.ResendActivation)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "credential/v1/auth.proto",
}

// AuthClient calls credential.v1.AuthService with the JSON codec.
type AuthClient struct {
	cc grpc.ClientConnInterface
}

// NewAuthClient returns a client over cc.
func NewAuthClient(cc grpc.ClientConnInterface) *AuthClient {
	return &AuthClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *AuthClient, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AuthClient) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error) {
	return invoke[RegisterResponse](ctx, c, MethodRegister, in, opts)
}

func (c *AuthClient) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error) {
	return invoke[LoginResponse](ctx, c, MethodLogin, in, opts)
}

func (c *AuthClient) Refresh(ctx context.Context, in *RefreshRequest, opts ...grpc.CallOption) (*RefreshResponse, error) {
	return invoke[RefreshResponse](ctx, c, MethodRefresh, in, opts)
}

func (c *AuthClient) Logout(ctx context.Context, in *LogoutRequest, opts ...grpc.CallOption) (*LogoutResponse, error) {
	return invoke[LogoutResponse](ctx, c, MethodLogout, in, opts)
}

func (c *AuthClient) ConfirmActivation(ctx context.Context, in *ConfirmActivationRequest, opts ...grpc.CallOption) (*ConfirmActivationResponse, error) {
	return invoke[ConfirmActivationResponse](ctx, c, MethodConfirmActivation, in, opts)
}

func (c *AuthClient) ResendActivation(ctx context.Context, in *ResendActivationRequest, opts ...grpc.CallOption) (*ResendActivationResponse, error) {
	return invoke[ResendActivationResponse](ctx, c, MethodResendActivation, in, opts)
}
