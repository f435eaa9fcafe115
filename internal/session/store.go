// Package session supplies the authenticated-session collaborator the
// aggregation layer depends on: the current session token and the signed-in
// professional's identifier. The login flow that writes sessions lives
// upstream; this package only reads them.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/firesafely/marketplace/pkg/common"
	"github.com/golang-jwt/jwt/v5"
)

// Store exposes the current session credentials. Both methods fail with
// common.ErrNotAuthenticated when no usable session exists, which callers
// must treat as fatal to the attempted operation.
type Store interface {
	Token(ctx context.Context) (string, error)
	ProfessionalID(ctx context.Context) (int64, error)
}

// Static is a fixed-credential store, used per request by the dashboard
// (credentials come from the request) and directly in tests.
type Static struct {
	SessionToken string
	Professional int64
}

func (s Static) Token(ctx context.Context) (string, error) {
	if s.SessionToken == "" {
		return "", common.NewNotAuthenticatedError("no session token")
	}
	if tokenExpired(s.SessionToken) {
		return "", common.NewNotAuthenticatedError("session expired")
	}
	return s.SessionToken, nil
}

func (s Static) ProfessionalID(ctx context.Context) (int64, error) {
	if s.Professional == 0 {
		return 0, common.NewNotAuthenticatedError("no professional identifier")
	}
	return s.Professional, nil
}

// MemoryStore is an in-process store with a login/logout lifecycle, used by
// single-user deployments and tests.
type MemoryStore struct {
	mu           sync.RWMutex
	token        string
	professional int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// SetSession records the credentials of a fresh login.
func (m *MemoryStore) SetSession(token string, professionalID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.professional = professionalID
}

// Clear discards the session on logout.
func (m *MemoryStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.professional = 0
}

func (m *MemoryStore) Token(ctx context.Context) (string, error) {
	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()

	if token == "" {
		return "", common.NewNotAuthenticatedError("no session token")
	}
	if tokenExpired(token) {
		return "", common.NewNotAuthenticatedError("session expired")
	}
	return token, nil
}

func (m *MemoryStore) ProfessionalID(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.professional == 0 {
		return 0, common.NewNotAuthenticatedError("no professional identifier")
	}
	return m.professional, nil
}

// tokenExpired reports whether a JWT session token is already past its exp
// claim. Opaque tokens and tokens without exp are never considered expired
// here; the upstream rejects those itself.
func tokenExpired(token string) bool {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now())
}
