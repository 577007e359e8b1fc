package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"oneflow/internal/identity"
)

func signedToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("peek-test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func freshPair(t *testing.T) *TokenPair {
	t.Helper()
	return &TokenPair{
		AccessToken:  signedToken(t, time.Now().Add(time.Hour)),
		RefreshToken: "refresh-1",
		ExpiresIn:    "168h",
	}
}

func stalePair(t *testing.T) *TokenPair {
	t.Helper()
	return &TokenPair{
		AccessToken:  signedToken(t, time.Now().Add(-time.Minute)),
		RefreshToken: "refresh-1",
		ExpiresIn:    "168h",
	}
}

func testUser() *Identity {
	return &Identity{
		ID:    "user-1",
		Email: "member@oneflow.test",
		Name:  "Test User",
		Role:  identity.RoleTeamMember,
	}
}

// fakeAPI is a scriptable API with call counting.
type fakeAPI struct {
	mu           sync.Mutex
	refreshCalls int
	logoutCalls  int

	loginFn   func(email, password string) (*Identity, *TokenPair, error)
	refreshFn func(refreshToken string) (*TokenPair, error)
}

func (f *fakeAPI) Login(_ context.Context, email, password string) (*Identity, *TokenPair, error) {
	if f.loginFn == nil {
		return nil, nil, fmt.Errorf("%w: login not scripted", ErrUnauthorized)
	}
	return f.loginFn(email, password)
}

func (f *fakeAPI) Register(_ context.Context, _ RegisterParams) (*Identity, *TokenPair, error) {
	return nil, nil, errors.New("register not scripted")
}

func (f *fakeAPI) Refresh(_ context.Context, refreshToken string) (*TokenPair, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.mu.Unlock()
	if f.refreshFn == nil {
		return nil, fmt.Errorf("%w: refresh not scripted", ErrUnauthorized)
	}
	return f.refreshFn(refreshToken)
}

func (f *fakeAPI) Logout(_ context.Context) error {
	f.mu.Lock()
	f.logoutCalls++
	f.mu.Unlock()
	return nil
}

func (f *fakeAPI) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

// recordingCookies captures cookie writes for assertions.
type recordingCookies struct {
	mu      sync.Mutex
	value   string
	cleared bool
}

func (c *recordingCookies) Set(accessToken string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = accessToken
	c.cleared = false
}

func (c *recordingCookies) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = ""
	c.cleared = true
}

func seedStorage(t *testing.T, store Storage, id *Identity, pair *TokenPair) {
	t.Helper()
	m := NewManager(&fakeAPI{}, store, nil)
	if err := m.persistLocked(id, pair); err != nil {
		t.Fatalf("seed storage: %v", err)
	}
}

func TestRehydrateEmptyStorage(t *testing.T) {
	m := NewManager(&fakeAPI{}, NewMemoryStorage(), nil)
	if got := m.Rehydrate(context.Background()); got != StateAnonymous {
		t.Fatalf("Rehydrate = %v, want anonymous", got)
	}
}

func TestRehydrateUnexpiredToken(t *testing.T) {
	store := NewMemoryStorage()
	seedStorage(t, store, testUser(), freshPair(t))

	api := &fakeAPI{}
	cookies := &recordingCookies{}
	m := NewManager(api, store, cookies)

	if got := m.Rehydrate(context.Background()); got != StateAuthenticated {
		t.Fatalf("Rehydrate = %v, want authenticated", got)
	}
	if api.refreshCount() != 0 {
		t.Errorf("refresh calls = %d, want 0 for unexpired token", api.refreshCount())
	}
	if id, ok := m.CurrentIdentity(); !ok || id.Email != "member@oneflow.test" {
		t.Errorf("CurrentIdentity = %+v, %v", id, ok)
	}
	if cookies.value == "" {
		t.Error("cookie not mirrored on rehydrate")
	}
}

func TestRehydrateExpiredTokenSilentRefresh(t *testing.T) {
	store := NewMemoryStorage()
	seedStorage(t, store, testUser(), stalePair(t))

	rotated := freshPair(t)
	rotated.RefreshToken = "refresh-2"
	api := &fakeAPI{
		refreshFn: func(refreshToken string) (*TokenPair, error) {
			if refreshToken != "refresh-1" {
				return nil, fmt.Errorf("%w: unexpected refresh token", ErrUnauthorized)
			}
			return rotated, nil
		},
	}
	m := NewManager(api, store, nil)

	if got := m.Rehydrate(context.Background()); got != StateAuthenticated {
		t.Fatalf("Rehydrate = %v, want authenticated after silent refresh", got)
	}
	if api.refreshCount() != 1 {
		t.Errorf("refresh calls = %d, want 1", api.refreshCount())
	}
	if tok, ok := m.AccessToken(); !ok || tok != rotated.AccessToken {
		t.Errorf("access token not rotated")
	}
}

func TestRehydrateExpiredTokenRefreshRejected(t *testing.T) {
	store := NewMemoryStorage()
	seedStorage(t, store, testUser(), stalePair(t))

	api := &fakeAPI{
		refreshFn: func(string) (*TokenPair, error) {
			return nil, fmt.Errorf("%w: token revoked", ErrUnauthorized)
		},
	}
	m := NewManager(api, store, nil)

	if got := m.Rehydrate(context.Background()); got != StateAnonymous {
		t.Fatalf("Rehydrate = %v, want anonymous", got)
	}
	if _, ok, _ := store.Get(KeyTokens); ok {
		t.Error("tokens key not cleared after rejected refresh")
	}
	if _, ok, _ := store.Get(KeyIdentity); ok {
		t.Error("identity key not cleared after rejected refresh")
	}
}

func TestRehydrateCorruptIdentityClears(t *testing.T) {
	store := NewMemoryStorage()
	_ = store.Set(KeyIdentity, []byte("{not json"))
	_ = store.Set(KeyTokens, []byte(`{"accessToken":"a","refreshToken":"b"}`))

	m := NewManager(&fakeAPI{}, store, nil)
	if got := m.Rehydrate(context.Background()); got != StateAnonymous {
		t.Fatalf("Rehydrate = %v, want anonymous", got)
	}
	if _, ok, _ := store.Get(KeyTokens); ok {
		t.Error("orphaned tokens key survived corrupt identity")
	}
}

func TestLoginPersistsSession(t *testing.T) {
	pair := freshPair(t)
	api := &fakeAPI{
		loginFn: func(email, password string) (*Identity, *TokenPair, error) {
			if email != "member@oneflow.test" || password != "password1" {
				return nil, nil, fmt.Errorf("%w: bad credentials", ErrUnauthorized)
			}
			return testUser(), pair, nil
		},
	}
	store := NewMemoryStorage()
	cookies := &recordingCookies{}
	m := NewManager(api, store, cookies)

	if err := m.Login(context.Background(), "member@oneflow.test", "password1"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if m.State() != StateAuthenticated {
		t.Fatalf("state = %v, want authenticated", m.State())
	}
	if _, ok, _ := store.Get(KeyIdentity); !ok {
		t.Error("identity not persisted")
	}
	if _, ok, _ := store.Get(KeyTokens); !ok {
		t.Error("tokens not persisted")
	}
	if cookies.value != pair.AccessToken {
		t.Error("cookie does not carry the access token")
	}
}

func TestLoginRejectedLeavesAnonymous(t *testing.T) {
	api := &fakeAPI{
		loginFn: func(string, string) (*Identity, *TokenPair, error) {
			return nil, nil, fmt.Errorf("%w: bad credentials", ErrUnauthorized)
		},
	}
	store := NewMemoryStorage()
	m := NewManager(api, store, nil)

	err := m.Login(context.Background(), "member@oneflow.test", "wrong")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Login = %v, want ErrUnauthorized", err)
	}
	if _, ok, _ := store.Get(KeyTokens); ok {
		t.Error("tokens persisted for rejected login")
	}
}

func TestLogoutIdempotent(t *testing.T) {
	store := NewMemoryStorage()
	seedStorage(t, store, testUser(), freshPair(t))

	api := &fakeAPI{}
	cookies := &recordingCookies{}
	m := NewManager(api, store, cookies)
	m.Rehydrate(context.Background())

	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("second Logout: %v", err)
	}

	if m.State() != StateAnonymous {
		t.Errorf("state = %v, want anonymous", m.State())
	}
	if _, ok, _ := store.Get(KeyTokens); ok {
		t.Error("tokens survived logout")
	}
	if !cookies.cleared {
		t.Error("cookie not cleared on logout")
	}
}

func TestConcurrentRefreshSharesOneCall(t *testing.T) {
	store := NewMemoryStorage()
	seedStorage(t, store, testUser(), freshPair(t))

	rotated := freshPair(t)
	rotated.RefreshToken = "refresh-2"

	release := make(chan struct{})
	api := &fakeAPI{
		refreshFn: func(string) (*TokenPair, error) {
			<-release
			return rotated, nil
		},
	}
	m := NewManager(api, store, nil)
	m.Rehydrate(context.Background())

	const callers = 8
	results := make(chan *TokenPair, callers)
	var started sync.WaitGroup
	started.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			started.Done()
			pair, err := m.Refresh(context.Background())
			if err != nil {
				t.Errorf("Refresh: %v", err)
				results <- nil
				return
			}
			results <- pair
		}()
	}
	started.Wait()
	// Give the goroutines time to pile onto the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(release)

	for i := 0; i < callers; i++ {
		pair := <-results
		if pair == nil {
			continue
		}
		if pair.RefreshToken != "refresh-2" {
			t.Errorf("caller %d observed pair %+v, want the shared rotated pair", i, pair)
		}
	}
	if got := api.refreshCount(); got != 1 {
		t.Errorf("refresh calls = %d, want 1 shared call", got)
	}
}

func TestLogoutWinsOverInFlightRefresh(t *testing.T) {
	store := NewMemoryStorage()
	seedStorage(t, store, testUser(), freshPair(t))

	inFlight := make(chan struct{})
	release := make(chan struct{})
	api := &fakeAPI{
		refreshFn: func(string) (*TokenPair, error) {
			close(inFlight)
			<-release
			return freshPair(t), nil
		},
	}
	m := NewManager(api, store, nil)
	m.Rehydrate(context.Background())

	refreshDone := make(chan error, 1)
	go func() {
		_, err := m.Refresh(context.Background())
		refreshDone <- err
	}()

	<-inFlight
	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	close(release)

	if err := <-refreshDone; !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("Refresh after logout = %v, want ErrNotAuthenticated", err)
	}
	if m.State() != StateAnonymous {
		t.Errorf("state = %v, want anonymous", m.State())
	}
	if _, ok, _ := store.Get(KeyTokens); ok {
		t.Error("stale refresh result was persisted after logout")
	}
}

func TestRefreshNetworkErrorKeepsSession(t *testing.T) {
	store := NewMemoryStorage()
	seedStorage(t, store, testUser(), freshPair(t))

	api := &fakeAPI{
		refreshFn: func(string) (*TokenPair, error) {
			return nil, fmt.Errorf("%w: connection refused", ErrNetwork)
		},
	}
	m := NewManager(api, store, nil)
	m.Rehydrate(context.Background())

	_, err := m.Refresh(context.Background())
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("Refresh = %v, want ErrNetwork", err)
	}
	if m.State() != StateAuthenticated {
		t.Errorf("state = %v, want authenticated after transient failure", m.State())
	}
	if _, ok, _ := store.Get(KeyTokens); !ok {
		t.Error("tokens cleared on transient failure")
	}
}

func TestRefreshWhenAnonymous(t *testing.T) {
	m := NewManager(&fakeAPI{}, NewMemoryStorage(), nil)
	m.Rehydrate(context.Background())

	if _, err := m.Refresh(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("Refresh = %v, want ErrNotAuthenticated", err)
	}
}

func TestRouteResolution(t *testing.T) {
	store := NewMemoryStorage()
	user := testUser()
	user.Role = identity.RoleFinance
	seedStorage(t, store, user, freshPair(t))

	m := NewManager(&fakeAPI{}, store, nil)

	// Anonymous before rehydrate.
	if got := m.ResolveRoute("/finance/reports"); got != LoginRoute {
		t.Errorf("anonymous ResolveRoute = %q, want %q", got, LoginRoute)
	}

	m.Rehydrate(context.Background())

	if got := m.LandingRoute(); got != "/finance" {
		t.Errorf("LandingRoute = %q, want /finance", got)
	}
	if !m.AllowsPath("/finance/reports") {
		t.Error("finance denied its own section")
	}
	if m.AllowsPath("/admin") {
		t.Error("finance allowed into /admin")
	}
	if got := m.ResolveRoute("/admin/users"); got != "/finance" {
		t.Errorf("ResolveRoute(/admin/users) = %q, want redirect to /finance", got)
	}
	if got := m.ResolveRoute("/finance/reports"); got != "/finance/reports" {
		t.Errorf("ResolveRoute(allowed path) = %q, want unchanged", got)
	}
}

func TestFileStorageRoundTrip(t *testing.T) {
	path := t.TempDir() + "/session.json"
	store := NewFileStorage(path)

	if err := store.Set(KeyTokens, []byte(`{"accessToken":"a"}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	raw, ok, err := store.Get(KeyTokens)
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if string(raw) != `{"accessToken":"a"}` {
		t.Errorf("Get = %s", raw)
	}

	// A second handle over the same file sees the data.
	if _, ok, _ := NewFileStorage(path).Get(KeyTokens); !ok {
		t.Error("persisted value not visible to a fresh handle")
	}

	if err := store.Delete(KeyTokens); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := store.Get(KeyTokens); ok {
		t.Error("value survived delete")
	}
}

func TestFileStorageCorruptFileReadsEmpty(t *testing.T) {
	path := t.TempDir() + "/session.json"
	store := NewFileStorage(path)
	if err := os.WriteFile(path, []byte("not json at all"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok, err := store.Get(KeyTokens); ok || err != nil {
		t.Fatalf("corrupt store Get = %v, %v; want empty, nil", ok, err)
	}
}
