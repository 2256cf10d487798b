package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the cookie carrying the signed visitor session.
const CookieName = "dn_session"

type cookieClaims struct {
	Values map[string]string `json:"v"`
	jwt.RegisteredClaims
}

// CookieProvider keeps the whole visitor session in an HS256-signed cookie.
// A missing, tampered or expired cookie starts an empty session.
type CookieProvider struct {
	secret []byte
	maxAge time.Duration
	secure bool
}

// NewCookieProvider returns a provider signing with secret.
func NewCookieProvider(secret string, maxAge time.Duration, secure bool) (*CookieProvider, error) {
	if secret == "" {
		return nil, errors.New("cookie session secret is required")
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &CookieProvider{secret: []byte(secret), maxAge: maxAge, secure: secure}, nil
}

// Bind decodes the request cookie into a Store that rewrites the cookie on every change.
func (p *CookieProvider) Bind(w http.ResponseWriter, r *http.Request) (Store, error) {
	values := map[string]string{}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		decoded, err := p.decode(c.Value)
		if err != nil {
			slog.Debug("Discarding invalid session cookie", "error", err)
		} else {
			values = decoded
		}
	}
	return &cookieStore{provider: p, w: w, values: values}, nil
}

func (p *CookieProvider) encode(values map[string]string) (string, error) {
	now := time.Now()
	claims := cookieClaims{
		Values: values,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.maxAge)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign session cookie: %w", err)
	}
	return signed, nil
}

func (p *CookieProvider) decode(raw string) (map[string]string, error) {
	claims := &cookieClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims.Values == nil {
		claims.Values = map[string]string{}
	}
	return claims.Values, nil
}

type cookieStore struct {
	provider *CookieProvider
	w        http.ResponseWriter

	mu     sync.Mutex
	values map[string]string
}

func (s *cookieStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *cookieStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.flush()
}

func (s *cookieStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	return s.flush()
}

// flush must run before the response header is written.
func (s *cookieStore) flush() error {
	token, err := s.provider.encode(s.values)
	if err != nil {
		return err
	}
	replaceCookie(s.w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.provider.maxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.provider.secure,
	})
	return nil
}

// replaceCookie sets c, dropping any Set-Cookie for the same name queued earlier
// in this response.
func replaceCookie(w http.ResponseWriter, c *http.Cookie) {
	h := w.Header()
	prefix := c.Name + "="
	var kept []string
	for _, v := range h.Values("Set-Cookie") {
		if !strings.HasPrefix(v, prefix) {
			kept = append(kept, v)
		}
	}
	h.Del("Set-Cookie")
	for _, v := range kept {
		h.Add("Set-Cookie", v)
	}
	http.SetCookie(w, c)
}
