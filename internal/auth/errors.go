package auth

import "errors"

// Sentinel errors for the issuance side of the auth core. Token-shaped
// failures live in oneflow/internal/token.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
)
