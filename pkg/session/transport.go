package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"oneflow/internal/identity"
)

// Errors surfaced by the client transport. Callers see ErrNetwork as a
// generic "try again" condition; ErrUnauthorized means the server rejected
// the credentials or token.
var (
	ErrNetwork          = errors.New("network failure")
	ErrUnauthorized     = errors.New("authentication rejected")
	ErrNotAuthenticated = errors.New("no authenticated session")
)

// Identity is the client-side mirror of the authenticated user record.
type Identity struct {
	ID    string        `json:"id"`
	Email string        `json:"email"`
	Name  string        `json:"name"`
	Role  identity.Role `json:"role"`
}

// TokenPair mirrors the server's token triple. ExpiresIn is the duration
// label from the wire, kept verbatim; the authoritative expiry is read from
// the token itself.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

// RegisterParams carries the registration form fields.
type RegisterParams struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// API is the auth endpoint surface the session manager talks to.
type API interface {
	Login(ctx context.Context, email, password string) (*Identity, *TokenPair, error)
	Register(ctx context.Context, params RegisterParams) (*Identity, *TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context) error
}

// Client is the HTTP implementation of API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client for the given API origin. The request timeout is
// a deliberate hardening choice; an auth call that hangs past it surfaces as
// ErrNetwork.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SetHTTPClient swaps the underlying http.Client, e.g. to share a cookie jar
// with the rest of the application.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

type envelope struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"status_code"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data,omitempty"`
}

type authPayload struct {
	User         Identity `json:"user"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	ExpiresIn    string   `json:"expiresIn"`
}

func (c *Client) Login(ctx context.Context, email, password string) (*Identity, *TokenPair, error) {
	var payload authPayload
	err := c.post(ctx, "/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &payload)
	if err != nil {
		return nil, nil, err
	}
	return &payload.User, &TokenPair{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresIn:    payload.ExpiresIn,
	}, nil
}

func (c *Client) Register(ctx context.Context, params RegisterParams) (*Identity, *TokenPair, error) {
	var payload authPayload
	if err := c.post(ctx, "/api/v1/auth/register", params, &payload); err != nil {
		return nil, nil, err
	}
	return &payload.User, &TokenPair{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresIn:    payload.ExpiresIn,
	}, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var pair TokenPair
	err := c.post(ctx, "/api/v1/auth/refresh", map[string]string{
		"refreshToken": refreshToken,
	}, &pair)
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.post(ctx, "/api/v1/auth/logout", map[string]string{}, nil)
}

// post sends a JSON body and decodes the response envelope's data into out.
func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	respRaw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	var env envelope
	if err := json.Unmarshal(respRaw, &env); err != nil {
		return fmt.Errorf("%w: malformed response", ErrNetwork)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%w: %s", ErrUnauthorized, env.Message)
		}
		return fmt.Errorf("auth request failed: %s", env.Message)
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%w: malformed response data", ErrNetwork)
		}
	}
	return nil
}
