package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"oneflow/internal/audit"
	"oneflow/internal/identity"
	"oneflow/internal/token"
	"oneflow/pkg/logger"
)

// Service orchestrates credential verification, token issuance and rotation.
//
// Rotation note: a refresh produces a brand-new pair, but the superseded
// refresh token stays cryptographically valid until its own expiry. There is
// no server-side token store, so logout cannot revoke anything; deployments
// that need revocation must shorten ACCESS_TOKEN_TTL instead.
type Service interface {
	Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error)
	Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	IssueTokens(id *identity.Identity) (*TokenPair, error)
}

type service struct {
	store    identity.Store
	codec    *token.Codec
	verifier *Verifier
	audit    audit.Producer
	log      *logger.Logger
}

// NewService wires the token service. The store must be the uncached one;
// the refresh path relies on it to observe deletions and deactivations
// immediately.
func NewService(store identity.Store, codec *token.Codec, auditProducer audit.Producer, log *logger.Logger) Service {
	if auditProducer == nil {
		auditProducer = audit.NopProducer{}
	}
	return &service{
		store:    store,
		codec:    codec,
		verifier: NewVerifier(store),
		audit:    auditProducer,
		log:      log,
	}
}

// IssueTokens mints an access/refresh pair for a verified identity. Pure
// function of its input plus the codec clock; nothing is persisted.
func (s *service) IssueTokens(id *identity.Identity) (*TokenPair, error) {
	accessToken, err := s.codec.SignAccess(id)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.codec.SignRefresh(id.ID.String())
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    durationLabel(s.codec.AccessTTL()),
	}, nil
}

func (s *service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	id, err := s.verifier.Verify(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.publish(ctx, audit.NewEvent(audit.EventLoginDenied, "", NormalizeEmail(req.Email)))
		}
		return nil, err
	}

	pair, err := s.IssueTokens(id)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, audit.NewEvent(audit.EventLogin, id.ID.String(), id.Email))
	s.log.LogAuthSuccess(ctx, id.ID.String(), "login")

	return &AuthResponse{
		User:         newUserResponse(id),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

func (s *service) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	email := NormalizeEmail(req.Email)

	exists, err := s.store.EmailExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUserAlreadyExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	role, ok := identity.ParseRole(req.Role)
	if !ok {
		role = identity.RoleTeamMember
	}

	id := &identity.Identity{
		Email:        email,
		Name:         req.Name,
		PasswordHash: string(hashed),
		Role:         role,
		Active:       true,
	}
	if err := s.store.Create(ctx, id); err != nil {
		return nil, err
	}

	pair, err := s.IssueTokens(id)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, audit.NewEvent(audit.EventRegister, id.ID.String(), id.Email))

	return &AuthResponse{
		User:         newUserResponse(id),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

// Refresh verifies the refresh token, re-resolves the identity by its
// embedded user id and mints a new pair. The re-lookup is what catches users
// deleted or deactivated since the token was issued, so it must hit the
// store, never a cache.
func (s *service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	userID, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		s.publish(ctx, audit.NewEvent(audit.EventRefreshDenied, "", "").WithReason(err.Error()))
		return nil, err
	}

	id, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			s.publish(ctx, audit.NewEvent(audit.EventRefreshDenied, userID, "").WithReason("identity gone"))
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !id.Active {
		s.publish(ctx, audit.NewEvent(audit.EventRefreshDenied, userID, id.Email).WithReason("identity deactivated"))
		return nil, ErrUserNotFound
	}

	pair, err := s.IssueTokens(id)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, audit.NewEvent(audit.EventRefresh, id.ID.String(), id.Email))
	return pair, nil
}

// publish sends an audit event; failures are logged and swallowed so the
// auth decision is never coupled to broker availability.
func (s *service) publish(ctx context.Context, event *audit.Event) {
	if err := s.audit.Publish(ctx, event); err != nil {
		s.log.WithError(err).Warn("audit publish failed", "event_type", string(event.Type))
	}
}

// durationLabel renders a TTL as the expiresIn wire label, e.g. "168h".
func durationLabel(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int64(d/time.Hour))
	}
	return d.String()
}
