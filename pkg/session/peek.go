package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// AccessTokenExpiry decodes a token payload locally to read its expiry
// claim. No signature verification happens here: this exists so the client
// can decide whether a silent refresh is needed without a network round
// trip. It must never gate authorization; only the server-side codec's
// VerifyAccess is authoritative.
func AccessTokenExpiry(tokenString string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, &claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("token carries no expiry")
	}
	return claims.ExpiresAt.Time, nil
}
