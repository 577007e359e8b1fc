package session

import (
	"net/http"
	"net/url"
	"time"
)

// CookieName is the short-lived cookie mirroring the bare access token so a
// page-level gate can read it without storage access.
const CookieName = "auth-token"

// CookieWriter mirrors the access token into cookie storage. Implementations
// are not expected to fail; a cookie is a best-effort mirror, never the
// source of truth.
type CookieWriter interface {
	Set(accessToken string, maxAge time.Duration)
	Clear()
}

// NopCookies discards cookie writes, for callers with no cookie surface.
type NopCookies struct{}

func (NopCookies) Set(string, time.Duration) {}
func (NopCookies) Clear()                    {}

// JarCookies writes the auth cookie into an http.CookieJar scoped to the API
// origin, so an http.Client sharing the jar sends it automatically.
type JarCookies struct {
	jar  http.CookieJar
	base *url.URL
}

func NewJarCookies(jar http.CookieJar, baseURL string) (*JarCookies, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &JarCookies{jar: jar, base: u}, nil
}

func (c *JarCookies) Set(accessToken string, maxAge time.Duration) {
	c.jar.SetCookies(c.base, []*http.Cookie{{
		Name:   CookieName,
		Value:  accessToken,
		Path:   "/",
		MaxAge: int(maxAge.Seconds()),
	}})
}

func (c *JarCookies) Clear() {
	c.jar.SetCookies(c.base, []*http.Cookie{{
		Name:   CookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	}})
}
