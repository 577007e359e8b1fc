// Package session owns the authenticated-session lifecycle on the client
// side: it persists tokens, detects local expiry, performs silent refresh
// and derives the role-appropriate landing route.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// State is the session lifecycle state.
type State int

const (
	// StateUnknown means no rehydration decision has been made yet.
	StateUnknown State = iota
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// LoginRoute is where anonymous sessions are sent.
const LoginRoute = "/login"

// DefaultCookieMaxAge matches the access token's default 7 day lifetime.
const DefaultCookieMaxAge = 168 * time.Hour

// Manager owns one session. All methods are safe for concurrent use; refresh
// attempts are serialized behind an in-flight guard, and a logout always
// wins over any refresh or login still in flight.
type Manager struct {
	api          API
	store        Storage
	cookies      CookieWriter
	cookieMaxAge time.Duration

	group singleflight.Group

	mu       sync.Mutex
	state    State
	identity *Identity
	tokens   *TokenPair
	// gen increments on logout; any token write that finishes carrying an
	// older gen is discarded instead of persisted.
	gen uint64
}

func NewManager(api API, store Storage, cookies CookieWriter) *Manager {
	if cookies == nil {
		cookies = NopCookies{}
	}
	return &Manager{
		api:          api,
		store:        store,
		cookies:      cookies,
		cookieMaxAge: DefaultCookieMaxAge,
		state:        StateUnknown,
	}
}

// SetCookieMaxAge overrides the auth cookie lifetime.
func (m *Manager) SetCookieMaxAge(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cookieMaxAge = d
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentIdentity returns the authenticated identity, if any.
func (m *Manager) CurrentIdentity() (*Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAuthenticated || m.identity == nil {
		return nil, false
	}
	id := *m.identity
	return &id, true
}

// AccessToken returns the current access token, if authenticated.
func (m *Manager) AccessToken() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAuthenticated || m.tokens == nil {
		return "", false
	}
	return m.tokens.AccessToken, true
}

// Rehydrate restores a session from storage at startup. A locally unexpired
// access token is trusted for scheduling purposes only; if it has expired, a
// silent refresh decides the outcome. Any failure clears persisted state and
// lands in Anonymous.
func (m *Manager) Rehydrate(ctx context.Context) State {
	m.mu.Lock()

	id, pair, ok := m.loadLocked()
	if !ok {
		m.clearLocked()
		m.mu.Unlock()
		return StateAnonymous
	}

	expiry, err := AccessTokenExpiry(pair.AccessToken)
	if err == nil && time.Now().Before(expiry) {
		m.identity = id
		m.tokens = pair
		m.state = StateAuthenticated
		m.cookies.Set(pair.AccessToken, m.cookieMaxAge)
		m.mu.Unlock()
		return StateAuthenticated
	}

	// Access token expired (or unreadable): try a silent refresh with the
	// persisted refresh token.
	m.identity = id
	m.tokens = pair
	m.state = StateAuthenticated
	m.mu.Unlock()

	if _, err := m.Refresh(ctx); err != nil {
		m.mu.Lock()
		m.clearLocked()
		m.mu.Unlock()
		return StateAnonymous
	}
	return StateAuthenticated
}

// Login authenticates with credentials and persists the session. Identity
// and tokens are persisted together or not at all.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()

	id, pair, err := m.api.Login(ctx, email, password)
	if err != nil {
		return err
	}

	return m.adopt(gen, id, pair)
}

// Register creates an account and persists the resulting session.
func (m *Manager) Register(ctx context.Context, params RegisterParams) error {
	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()

	id, pair, err := m.api.Register(ctx, params)
	if err != nil {
		return err
	}

	return m.adopt(gen, id, pair)
}

// Refresh rotates the token pair. Concurrent callers share a single
// in-flight network call and observe the same result. A transport failure
// leaves the session untouched; a server rejection destroys it.
func (m *Manager) Refresh(ctx context.Context) (*TokenPair, error) {
	m.mu.Lock()
	if m.state != StateAuthenticated || m.tokens == nil {
		m.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	refreshToken := m.tokens.RefreshToken
	gen := m.gen
	m.mu.Unlock()

	v, err, _ := m.group.Do("refresh", func() (interface{}, error) {
		return m.api.Refresh(ctx, refreshToken)
	})
	if err != nil {
		if errors.Is(err, ErrNetwork) {
			// Transient; keep the session as it was.
			return nil, err
		}
		// The refresh token is no longer acceptable; the session is over.
		m.mu.Lock()
		if m.gen == gen {
			m.clearLocked()
		}
		m.mu.Unlock()
		return nil, err
	}

	pair := v.(*TokenPair)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		// A logout intervened while the call was in flight; discard.
		return nil, ErrNotAuthenticated
	}
	if err := m.persistLocked(m.identity, pair); err != nil {
		return nil, err
	}
	m.tokens = pair
	m.state = StateAuthenticated
	return pair, nil
}

// NeedsRefresh reports whether the access token has passed its local expiry.
// Scheduling hint only; the server remains the authority.
func (m *Manager) NeedsRefresh() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAuthenticated || m.tokens == nil {
		return false
	}
	expiry, err := AccessTokenExpiry(m.tokens.AccessToken)
	if err != nil {
		return true
	}
	return !time.Now().Before(expiry)
}

// Logout destroys the session. Idempotent: a second call is a no-op. Any
// login or refresh still in flight when this runs will have its result
// discarded rather than persisted.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.gen++
	m.clearLocked()
	m.mu.Unlock()

	// Best-effort server acknowledgement; the scheme is stateless, so a
	// transport failure here changes nothing.
	_ = m.api.Logout(ctx)
	return nil
}

// LandingRoute returns the canonical route for the session's role, or the
// login route when anonymous.
func (m *Manager) LandingRoute() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAuthenticated || m.identity == nil {
		return LoginRoute
	}
	return m.identity.Role.LandingRoute()
}

// AllowsPath reports whether the current role may navigate to path.
func (m *Manager) AllowsPath(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAuthenticated || m.identity == nil {
		return false
	}
	for _, prefix := range m.identity.Role.RoutePrefixes() {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// ResolveRoute maps the current location to where the session should be:
// anonymous sessions go to login, authenticated ones stay put when allowed
// and are redirected to their landing route otherwise.
func (m *Manager) ResolveRoute(current string) string {
	if m.State() != StateAuthenticated {
		return LoginRoute
	}
	if m.AllowsPath(current) {
		return current
	}
	return m.LandingRoute()
}

// adopt persists a fresh identity+pair unless a logout happened since gen
// was sampled.
func (m *Manager) adopt(gen uint64, id *Identity, pair *TokenPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return ErrNotAuthenticated
	}
	if err := m.persistLocked(id, pair); err != nil {
		return err
	}
	m.identity = id
	m.tokens = pair
	m.state = StateAuthenticated
	return nil
}

// persistLocked writes the two storage keys together or not at all, then
// mirrors the access token into the cookie.
func (m *Manager) persistLocked(id *Identity, pair *TokenPair) error {
	idRaw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	pairRaw, err := json.Marshal(pair)
	if err != nil {
		return err
	}
	if err := m.store.Set(KeyIdentity, idRaw); err != nil {
		return err
	}
	if err := m.store.Set(KeyTokens, pairRaw); err != nil {
		// Roll back so the two keys never disagree.
		_ = m.store.Delete(KeyIdentity)
		return err
	}
	m.cookies.Set(pair.AccessToken, m.cookieMaxAge)
	return nil
}

func (m *Manager) loadLocked() (*Identity, *TokenPair, bool) {
	idRaw, okID, err := m.store.Get(KeyIdentity)
	if err != nil || !okID {
		return nil, nil, false
	}
	pairRaw, okPair, err := m.store.Get(KeyTokens)
	if err != nil || !okPair {
		return nil, nil, false
	}

	var id Identity
	var pair TokenPair
	if json.Unmarshal(idRaw, &id) != nil || json.Unmarshal(pairRaw, &pair) != nil {
		return nil, nil, false
	}
	if !id.Role.Valid() || pair.AccessToken == "" || pair.RefreshToken == "" {
		return nil, nil, false
	}
	return &id, &pair, true
}

func (m *Manager) clearLocked() {
	m.identity = nil
	m.tokens = nil
	m.state = StateAnonymous
	_ = m.store.Delete(KeyIdentity)
	_ = m.store.Delete(KeyTokens)
	m.cookies.Clear()
}
