package auth

import (
	"oneflow/internal/identity"
)

// LoginRequest represents the login request payload
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// RegisterRequest represents the registration request payload
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role,omitempty"` // Optional, defaults to team_member
}

// RefreshRequest represents the refresh token request payload
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// LogoutRequest represents the logout request payload. The scheme is
// stateless, so the body is advisory.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

// TokenPair represents an access/refresh token pair. ExpiresIn is a duration
// label for the access token (e.g. "168h"), not an absolute timestamp; the
// authoritative expiry lives inside the token itself.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

// UserResponse represents identity data in responses (without sensitive info)
type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// AuthResponse represents the login/registration response
type AuthResponse struct {
	User         UserResponse `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    string       `json:"expiresIn"`
}

func newUserResponse(id *identity.Identity) UserResponse {
	return UserResponse{
		ID:    id.ID.String(),
		Email: id.Email,
		Name:  id.Name,
		Role:  string(id.Role),
	}
}
