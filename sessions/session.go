// Package sessions persists one record per login. A session row is the
// server-side half of a refresh token: the row stores only a one-way hash of
// the current refresh token, and rotation replaces the row atomically, which
// is what makes a stolen-but-already-used refresh token harmless.
package sessions

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/postloop/postloop/tenants"
)

// ErrNotFound is returned when no session matches a refresh-token hash -
// either the token was already rotated or it was never issued. The two cases
// are intentionally indistinguishable.
var ErrNotFound = errors.New("session not found")

// DefaultExpiry is the absolute session lifetime from creation.
const DefaultExpiry = 30 * 24 * time.Hour

// DeviceInfo is free-form metadata captured at login for the user's "active
// sessions" view.
type DeviceInfo struct {
	UserAgent string `json:"user_agent"`
	IP        string `json:"ip"`
	Name      string `json:"name"`
}

// Session represents one successful login.
type Session struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	TenantID     string     `json:"tenant_id"`
	RefreshHash  string     `json:"-"` // never the raw token
	Device       DeviceInfo `json:"device"`
	LastActiveAt time.Time  `json:"last_active_at"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
}

// Expired reports whether the session is past its absolute expiry.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Repo persists sessions inside a tenant namespace. Every method takes the
// tenant context explicitly; implementations must never fall back to an
// ambient namespace.
type Repo interface {
	Create(ctx context.Context, tc tenants.Context, session *Session) error
	GetByHash(ctx context.Context, tc tenants.Context, refreshHash string) (*Session, error)
	// DeleteByHash reports whether a row was actually deleted, which is the
	// precondition check of the rotation fallback path.
	DeleteByHash(ctx context.Context, tc tenants.Context, refreshHash string) (bool, error)
	DeleteForUser(ctx context.Context, tc tenants.Context, userID string) (int64, error)
	ListActive(ctx context.Context, tc tenants.Context, userID string) ([]*Session, error)
	SweepExpired(ctx context.Context, tc tenants.Context) (int64, error)
	// Rotate atomically replaces the session identified by oldHash with
	// next. If no row matches oldHash it fails with ErrNotFound and next is
	// not created, so a replayed refresh token is always rejected.
	Rotate(ctx context.Context, tc tenants.Context, oldHash string, next *Session) error
}
