// Package session carries the authenticated user context injected into the
// HTTP client: the bearer token and the username shown to the operator.
package session

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is an authentication context.
type Session struct {
	Token    string
	Username string
}

// Claims are the parts of a JWT bearer token the client cares about.
type Claims struct {
	Subject   string
	Username  string
	ExpiresAt time.Time
}

// ErrOpaqueToken is returned by Claims for tokens that are not JWTs.
var ErrOpaqueToken = errors.New("session: token is not a JWT")

// Authenticated reports whether a token is present.
func (s Session) Authenticated() bool { return strings.TrimSpace(s.Token) != "" }

// Claims decodes the token without verifying its signature; verification is
// the server's job. Opaque tokens yield ErrOpaqueToken.
func (s Session) Claims() (Claims, error) {
	if !s.Authenticated() {
		return Claims{}, ErrOpaqueToken
	}
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.Token, mc); err != nil {
		return Claims{}, ErrOpaqueToken
	}
	var c Claims
	if sub, err := mc.GetSubject(); err == nil {
		c.Subject = sub
	}
	if name, ok := mc["username"].(string); ok {
		c.Username = name
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}

// Expired reports whether a JWT token carries an expiry before now. Opaque
// tokens and tokens without expiry never expire client side.
func (s Session) Expired(now time.Time) bool {
	c, err := s.Claims()
	if err != nil || c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt)
}

// DisplayName returns the username, falling back to the token claims.
func (s Session) DisplayName() string {
	if s.Username != "" {
		return s.Username
	}
	if c, err := s.Claims(); err == nil {
		if c.Username != "" {
			return c.Username
		}
		return c.Subject
	}
	return ""
}

// Authorize sets the bearer header on req when a token is present.
func (s Session) Authorize(req *http.Request) {
	if s.Authenticated() {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
}

// Provider supplies the current session.
type Provider interface {
	Current() Session
}

// Store is a mutable in-process Provider.
type Store struct {
	mu      sync.RWMutex
	current Session
}

// NewStore returns a store holding s.
func NewStore(s Session) *Store { return &Store{current: s} }

// Current implements Provider.
func (st *Store) Current() Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.current
}

// Login replaces the session.
func (st *Store) Login(s Session) {
	st.mu.Lock()
	st.current = s
	st.mu.Unlock()
}

// Logout clears the session.
func (st *Store) Logout() {
	st.mu.Lock()
	st.current = Session{}
	st.mu.Unlock()
}
