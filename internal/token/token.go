package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"oneflow/internal/identity"
)

const (
	// Issuer and Audience bind every token to this deployment. Both are
	// verified on every parse.
	Issuer   = "oneflow-api"
	Audience = "oneflow-client"

	classAccess  = "access"
	classRefresh = "refresh"
)

// Sentinel errors. Handlers collapse these into a single external message;
// the distinct kinds exist for logging and tests only.
var (
	ErrMissingToken    = errors.New("missing bearer token")
	ErrInvalidToken    = errors.New("invalid or expired token")
	ErrWrongTokenClass = errors.New("wrong token class")
)

// AccessClaims is the payload carried in an access token.
type AccessClaims struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	Name       string `json:"name"`
	TokenClass string `json:"type"`
	jwt.RegisteredClaims
}

// RefreshClaims is the narrower payload carried in a refresh token. The
// TokenClass discriminator is the only thing separating it from an access
// token signed with the same key, so verification must check it.
type RefreshClaims struct {
	UserID     string `json:"user_id"`
	TokenClass string `json:"type"`
	jwt.RegisteredClaims
}

// Codec signs and verifies the two token classes. Both classes share one
// HMAC key; the "type" discriminator claim is what keeps an access token
// from being replayed as a refresh token, so verification never skips it.
// A Codec is stateless and safe for unlimited concurrent use.
type Codec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewCodec(secret string, accessTTL, refreshTTL time.Duration) *Codec {
	return &Codec{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// AccessTTL reports the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration {
	return c.accessTTL
}

// SignAccess mints an access token carrying the identity's id, email, role
// and display name.
func (c *Codec) SignAccess(id *identity.Identity) (string, error) {
	now := c.now().UTC()
	claims := AccessClaims{
		UserID:     id.ID.String(),
		Email:      id.Email,
		Role:       string(id.Role),
		Name:       id.Name,
		TokenClass: classAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			Subject:   id.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// SignRefresh mints a refresh token for the given user id.
func (c *Codec) SignRefresh(userID string) (string, error) {
	now := c.now().UTC()
	claims := RefreshClaims{
		UserID:     userID,
		TokenClass: classRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.refreshTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// VerifyAccess checks signature, signing method, issuer, audience, expiry,
// token class and role. Every failure satisfies errors.Is(err,
// ErrInvalidToken); the underlying cause stays in the error text for logs.
func (c *Codec) VerifyAccess(tokenString string) (*AccessClaims, error) {
	var claims AccessClaims
	parsed, err := jwt.ParseWithClaims(tokenString, &claims, c.keyFunc)
	if err != nil {
		return nil, invalidToken(err)
	}
	if !parsed.Valid {
		return nil, invalidToken(errors.New("token not valid"))
	}
	if err := c.verifyBinding(&claims.RegisteredClaims); err != nil {
		return nil, err
	}
	if claims.TokenClass != classAccess {
		return nil, invalidToken(errors.New("not an access token"))
	}
	if _, ok := identity.ParseRole(claims.Role); !ok {
		return nil, invalidToken(fmt.Errorf("unknown role %q", claims.Role))
	}
	return &claims, nil
}

// VerifyRefresh checks everything VerifyAccess does and additionally demands
// the refresh discriminator. A cryptographically valid access token is still
// rejected here.
func (c *Codec) VerifyRefresh(tokenString string) (string, error) {
	var claims RefreshClaims
	parsed, err := jwt.ParseWithClaims(tokenString, &claims, c.keyFunc)
	if err != nil {
		return "", invalidToken(err)
	}
	if !parsed.Valid {
		return "", invalidToken(errors.New("token not valid"))
	}
	if err := c.verifyBinding(&claims.RegisteredClaims); err != nil {
		return "", err
	}
	if claims.TokenClass != classRefresh {
		return "", fmt.Errorf("%w: got %q", ErrWrongTokenClass, claims.TokenClass)
	}
	if claims.UserID == "" {
		return "", invalidToken(errors.New("refresh token missing user id"))
	}
	return claims.UserID, nil
}

func (c *Codec) keyFunc(t *jwt.Token) (interface{}, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}
	return c.secret, nil
}

func (c *Codec) verifyBinding(claims *jwt.RegisteredClaims) error {
	if !claims.VerifyIssuer(Issuer, true) {
		return invalidToken(fmt.Errorf("issuer %q", claims.Issuer))
	}
	if !claims.VerifyAudience(Audience, true) {
		return invalidToken(fmt.Errorf("audience %v", claims.Audience))
	}
	return nil
}

func invalidToken(cause error) error {
	return fmt.Errorf("%w: %v", ErrInvalidToken, cause)
}
