package handler

import "time"

// RegisterRequest creates an inactive account.
type RegisterRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Name            string `json:"name,omitempty"`
	Age             int    `json:"age,omitempty"`
	Occupation      string `json:"occupation,omitempty"`
	DefaultCurrency string `json:"default_currency,omitempty"`
}

type RegisterResponse struct {
	UserID string `json:"user_id"`
}

// LoginRequest opens a session for DeviceID; empty means the shared default device.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	DeviceID string `json:"device_id,omitempty"`
}

type Tokens struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type User struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	Name            string `json:"name,omitempty"`
	Role            string `json:"role"`
	ActiveAccountID string `json:"active_account_id,omitempty"`
}

type LoginResponse struct {
	Tokens Tokens `json:"tokens"`
	User   User   `json:"user"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	DeviceID     string `json:"device_id,omitempty"`
}

type RefreshResponse struct {
	Tokens Tokens `json:"tokens"`
}

// LogoutRequest is empty: the session comes from the Bearer access token.
type LogoutRequest struct{}

type LogoutResponse struct{}

type ConfirmActivationRequest struct {
	Token string `json:"token"`
}

type ConfirmActivationResponse struct {
	Activated bool `json:"activated"`
}

type ResendActivationRequest struct {
	Email string `json:"email"`
}

type ResendActivationResponse struct {
	Message string `json:"message"`
}
