package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"oneflow/internal/identity"
	"oneflow/internal/token"
	"oneflow/pkg/logger"
)

// fakeStore is an in-memory identity.Store for service tests.
type fakeStore struct {
	byEmail map[string]*identity.Identity
	byID    map[string]*identity.Identity
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byEmail: map[string]*identity.Identity{},
		byID:    map[string]*identity.Identity{},
	}
}

func (s *fakeStore) add(id *identity.Identity) {
	s.byEmail[id.Email] = id
	s.byID[id.ID.String()] = id
}

func (s *fakeStore) FindByEmail(_ context.Context, email string) (*identity.Identity, error) {
	id, ok := s.byEmail[email]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return id, nil
}

func (s *fakeStore) FindByID(_ context.Context, id string) (*identity.Identity, error) {
	rec, ok := s.byID[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return rec, nil
}

func (s *fakeStore) EmailExists(_ context.Context, email string) (bool, error) {
	_, ok := s.byEmail[email]
	return ok, nil
}

func (s *fakeStore) Create(_ context.Context, id *identity.Identity) error {
	if id.ID == uuid.Nil {
		id.ID = uuid.New()
	}
	id.CreatedAt = time.Now()
	s.add(id)
	return nil
}

func (s *fakeStore) List(_ context.Context) ([]identity.Identity, error) {
	var out []identity.Identity
	for _, id := range s.byID {
		out = append(out, *id)
	}
	return out, nil
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hashed)
}

func newTestService(t *testing.T, store identity.Store) (Service, *token.Codec) {
	t.Helper()
	codec := token.NewCodec("service-test-secret", 168*time.Hour, 720*time.Hour)
	return NewService(store, codec, nil, logger.GetDefault()), codec
}

func seedIdentity(t *testing.T, store *fakeStore, email, password string, role identity.Role, active bool) *identity.Identity {
	t.Helper()
	id := &identity.Identity{
		ID:           uuid.New(),
		Email:        email,
		Name:         "Test User",
		PasswordHash: mustHash(t, password),
		Role:         role,
		Active:       active,
	}
	store.add(id)
	return id
}

func TestLoginSuccess(t *testing.T) {
	store := newFakeStore()
	admin := seedIdentity(t, store, "admin@oneflow.test", "correct-horse", identity.RoleAdmin, true)
	svc, codec := newTestService(t, store)

	resp, err := svc.Login(context.Background(), &LoginRequest{
		Email:    "Admin@Oneflow.Test",
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if resp.User.ID != admin.ID.String() {
		t.Errorf("user id = %q, want %q", resp.User.ID, admin.ID.String())
	}
	if resp.User.Role != string(identity.RoleAdmin) {
		t.Errorf("role = %q, want admin", resp.User.Role)
	}
	if resp.ExpiresIn != "168h" {
		t.Errorf("expiresIn = %q, want \"168h\"", resp.ExpiresIn)
	}

	claims, err := codec.VerifyAccess(resp.AccessToken)
	if err != nil {
		t.Fatalf("access token does not verify: %v", err)
	}
	if claims.UserID != admin.ID.String() {
		t.Errorf("claims user id = %q, want %q", claims.UserID, admin.ID.String())
	}

	userID, err := codec.VerifyRefresh(resp.RefreshToken)
	if err != nil {
		t.Fatalf("refresh token does not verify: %v", err)
	}
	if userID != admin.ID.String() {
		t.Errorf("refresh user id = %q, want %q", userID, admin.ID.String())
	}
}

func TestLoginWrongPassword(t *testing.T) {
	store := newFakeStore()
	seedIdentity(t, store, "member@oneflow.test", "right-password", identity.RoleTeamMember, true)
	svc, _ := newTestService(t, store)

	_, err := svc.Login(context.Background(), &LoginRequest{
		Email:    "member@oneflow.test",
		Password: "wrong-password",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login(wrong password) = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	svc, _ := newTestService(t, newFakeStore())

	_, err := svc.Login(context.Background(), &LoginRequest{
		Email:    "nobody@oneflow.test",
		Password: "whatever",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login(unknown user) = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginDeactivatedUser(t *testing.T) {
	store := newFakeStore()
	seedIdentity(t, store, "gone@oneflow.test", "password1", identity.RoleFinance, false)
	svc, _ := newTestService(t, store)

	_, err := svc.Login(context.Background(), &LoginRequest{
		Email:    "gone@oneflow.test",
		Password: "password1",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login(deactivated) = %v, want ErrInvalidCredentials", err)
	}
}

func TestRegisterDefaultsRole(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(t, store)

	resp, err := svc.Register(context.Background(), &RegisterRequest{
		Name:     "New User",
		Email:    "New@Oneflow.Test",
		Password: "password1",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if resp.User.Role != string(identity.RoleTeamMember) {
		t.Errorf("role = %q, want team_member", resp.User.Role)
	}
	if resp.User.Email != "new@oneflow.test" {
		t.Errorf("email = %q, want normalized lowercase", resp.User.Email)
	}

	// The stored hash must not be the plaintext and must verify.
	stored, err := store.FindByEmail(context.Background(), "new@oneflow.test")
	if err != nil {
		t.Fatalf("stored identity missing: %v", err)
	}
	if stored.PasswordHash == "password1" {
		t.Error("password stored in plaintext")
	}
	if bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("password1")) != nil {
		t.Error("stored hash does not match the password")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	store := newFakeStore()
	seedIdentity(t, store, "taken@oneflow.test", "password1", identity.RoleTeamMember, true)
	svc, _ := newTestService(t, store)

	_, err := svc.Register(context.Background(), &RegisterRequest{
		Name:     "Other",
		Email:    "taken@oneflow.test",
		Password: "password2",
	})
	if !errors.Is(err, ErrUserAlreadyExists) {
		t.Fatalf("Register(duplicate) = %v, want ErrUserAlreadyExists", err)
	}
}

func TestRefreshRotatesPair(t *testing.T) {
	store := newFakeStore()
	member := seedIdentity(t, store, "member@oneflow.test", "password1", identity.RoleTeamMember, true)
	svc, codec := newTestService(t, store)

	refreshToken, err := codec.SignRefresh(member.ID.String())
	if err != nil {
		t.Fatalf("SignRefresh: %v", err)
	}

	pair, err := svc.Refresh(context.Background(), refreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	claims, err := codec.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("rotated access token does not verify: %v", err)
	}
	if claims.UserID != member.ID.String() {
		t.Errorf("claims user id = %q, want %q", claims.UserID, member.ID.String())
	}
	if _, err := codec.VerifyRefresh(pair.RefreshToken); err != nil {
		t.Fatalf("rotated refresh token does not verify: %v", err)
	}
}

func TestRefreshWithAccessTokenRejected(t *testing.T) {
	store := newFakeStore()
	member := seedIdentity(t, store, "member@oneflow.test", "password1", identity.RoleTeamMember, true)
	svc, codec := newTestService(t, store)

	accessToken, err := codec.SignAccess(member)
	if err != nil {
		t.Fatalf("SignAccess: %v", err)
	}

	_, err = svc.Refresh(context.Background(), accessToken)
	if !errors.Is(err, token.ErrWrongTokenClass) {
		t.Fatalf("Refresh(access token) = %v, want ErrWrongTokenClass", err)
	}
}

func TestRefreshForDeletedUser(t *testing.T) {
	store := newFakeStore()
	svc, codec := newTestService(t, store)

	refreshToken, err := codec.SignRefresh(uuid.NewString())
	if err != nil {
		t.Fatalf("SignRefresh: %v", err)
	}

	_, err = svc.Refresh(context.Background(), refreshToken)
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("Refresh(deleted user) = %v, want ErrUserNotFound", err)
	}
}

func TestRefreshForDeactivatedUser(t *testing.T) {
	store := newFakeStore()
	member := seedIdentity(t, store, "member@oneflow.test", "password1", identity.RoleTeamMember, true)
	svc, codec := newTestService(t, store)

	refreshToken, err := codec.SignRefresh(member.ID.String())
	if err != nil {
		t.Fatalf("SignRefresh: %v", err)
	}

	member.Active = false

	_, err = svc.Refresh(context.Background(), refreshToken)
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("Refresh(deactivated user) = %v, want ErrUserNotFound", err)
	}
}

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]string{
		"Admin@Example.COM":   "admin@example.com",
		"  admin@example.com": "admin@example.com",
		"admin@example.com":   "admin@example.com",
	}
	for in, want := range cases {
		if got := NormalizeEmail(in); got != want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
