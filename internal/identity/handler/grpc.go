package handler

import (
	"context"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"credential-lifecycle/internal/identity/service"
	"credential-lifecycle/internal/platform/logging"
	"credential-lifecycle/internal/server/interceptors"
)

// AuthService is the credential service the handler delegates to.
type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput) (*service.RegisterResult, error)
	Login(ctx context.Context, email, password, deviceID string) (*service.LoginResult, error)
	Refresh(ctx context.Context, refreshToken, deviceID string) (*service.TokenPair, error)
	Logout(ctx context.Context, userID, deviceID string) error
	ConfirmActivation(ctx context.Context, token string) error
	ResendActivation(ctx context.Context, email string) (string, error)
}

// AuthServer implements AuthServiceServer on top of AuthService.
type AuthServer struct {
	auth AuthService
	log  *slog.Logger
}

// NewAuthServer returns a new Auth gRPC server. If auth is nil, every RPC returns Unimplemented.
func NewAuthServer(auth AuthService, log *slog.Logger) *AuthServer {
	return &AuthServer{auth: auth, log: logging.OrDefault(log)}
}

// Register creates an inactive account and sends the activation email.
func (s *AuthServer) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method Register not implemented")
	}
	res, err := s.auth.Register(ctx, service.RegisterInput{
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		Name:            req.Name,
		Age:             req.Age,
		Occupation:      req.Occupation,
		DefaultCurrency: req.DefaultCurrency,
	})
	if err != nil {
		return nil, s.authErr(ctx, err)
	}
	return &RegisterResponse{UserID: res.UserID}, nil
}

// Login authenticates with email and password and opens the device session.
func (s *AuthServer) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method Login not implemented")
	}
	res, err := s.auth.Login(ctx, req.Email, req.Password, req.DeviceID)
	if err != nil {
		return nil, s.authErr(ctx, err)
	}
	return &LoginResponse{
		Tokens: tokensFrom(&res.Tokens),
		User: User{
			ID:              res.User.ID,
			Email:           res.User.Email,
			Name:            res.User.Name,
			Role:            res.User.Role,
			ActiveAccountID: res.User.ActiveAccountID,
		},
	}, nil
}

// Refresh rotates the refresh token of the device session.
func (s *AuthServer) Refresh(ctx context.Context, req *RefreshRequest) (*RefreshResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method Refresh not implemented")
	}
	pair, err := s.auth.Refresh(ctx, req.RefreshToken, req.DeviceID)
	if err != nil {
		return nil, s.authErr(ctx, err)
	}
	return &RefreshResponse{Tokens: tokensFrom(pair)}, nil
}

// Logout revokes the session named by the caller's access token.
func (s *AuthServer) Logout(ctx context.Context, req *LogoutRequest) (*LogoutResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method Logout not implemented")
	}
	userID, ok := interceptors.GetUserID(ctx)
	if !ok || userID == "" {
		return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}
	deviceID, _ := interceptors.GetDeviceID(ctx)
	if err := s.auth.Logout(ctx, userID, deviceID); err != nil {
		return nil, s.authErr(ctx, err)
	}
	return &LogoutResponse{}, nil
}

// ConfirmActivation consumes an activation token.
func (s *AuthServer) ConfirmActivation(ctx context.Context, req *ConfirmActivationRequest) (*ConfirmActivationResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method ConfirmActivation not implemented")
	}
	if err := s.auth.ConfirmActivation(ctx, req.Token); err != nil {
		return nil, s.authErr(ctx, err)
	}
	return &ConfirmActivationResponse{Activated: true}, nil
}

// ResendActivation issues a new activation token for a pending account.
func (s *AuthServer) ResendActivation(ctx context.Context, req *ResendActivationRequest) (*ResendActivationResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method ResendActivation not implemented")
	}
	msg, err := s.auth.ResendActivation(ctx, req.Email)
	if err != nil {
		return nil, s.authErr(ctx, err)
	}
	return &ResendActivationResponse{Message: msg}, nil
}

func tokensFrom(p *service.TokenPair) Tokens {
	return Tokens{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

// authErr maps service errors to gRPC status errors. Client errors carry their code as
// the message; anything else is logged and returned as a generic Internal.
func (s *AuthServer) authErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if e, ok := service.AsError(err); ok {
		switch e.Kind {
		case service.KindValidation, service.KindBadRequest:
			return status.Error(codes.InvalidArgument, e.Error())
		case service.KindUnauthenticated:
			return status.Error(codes.Unauthenticated, e.Code)
		case service.KindNotFound:
			return status.Error(codes.NotFound, e.Code)
		}
	}
	if service.IsTransient(err) {
		return status.Error(codes.Unavailable, "unavailable")
	}
	s.log.ErrorContext(ctx, "auth: internal error", "error", err)
	return status.Error(codes.Internal, "internal error")
}
