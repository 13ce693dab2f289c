// Package platforms defines the provider-side boundary of the credential
// subsystem. Each adapter speaks one provider's wire protocol and normalizes
// its token responses into the uniform TokenSet shape at its own edge, so
// the refresh orchestrator never sees provider-specific payloads.
package platforms

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrProviderRefreshFailed means the upstream rejected a refresh exchange.
// The stored credential is left intact; the user-facing outcome is "needs
// reconnect".
var ErrProviderRefreshFailed = errors.New("provider refresh failed")

// RefreshBehavior is a declared adapter capability, not something guessed
// from individual responses. It tells the orchestrator what to expect of the
// provider's refresh secrets.
type RefreshBehavior int

const (
	// RotatingRefresh providers return a new refresh secret on every
	// exchange and invalidate the old one. The new secret must be stored or
	// the credential becomes unrefreshable.
	RotatingRefresh RefreshBehavior = iota
	// StaticRefresh providers reuse the same refresh secret across calls.
	StaticRefresh
	// NonExpiring providers issue credentials that never need refreshing.
	// Health checks use a lightweight Validate call instead.
	NonExpiring
)

func (b RefreshBehavior) String() string {
	switch b {
	case RotatingRefresh:
		return "rotating"
	case StaticRefresh:
		return "static"
	case NonExpiring:
		return "non-expiring"
	default:
		return "unknown"
	}
}

// TokenSet is the uniform token response every adapter normalizes to.
// RefreshToken is empty when the provider did not return one, which for a
// StaticRefresh provider means "keep using the stored secret".
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // seconds; 0 means the provider reported no expiry
}

// ExpiryTime converts ExpiresIn to an absolute expiry, or nil for
// non-expiring credentials.
func (ts *TokenSet) ExpiryTime(now time.Time) *time.Time {
	if ts.ExpiresIn <= 0 {
		return nil
	}
	expiry := now.Add(time.Duration(ts.ExpiresIn) * time.Second)
	return &expiry
}

// Adapter is implemented once per provider. Revoke is best-effort: failures
// are logged by callers, never propagated as the primary error.
type Adapter interface {
	Name() string
	Behavior() RefreshBehavior

	// ExchangeCode trades an OAuth authorization code for tokens.
	ExchangeCode(ctx context.Context, code string) (*TokenSet, error)
	// RefreshToken renews a credential using the stored refresh secret.
	RefreshToken(ctx context.Context, secret string) (*TokenSet, error)
	// Revoke invalidates a secret upstream.
	Revoke(ctx context.Context, secret string) error
	// Validate checks a secret is still accepted upstream without renewing it.
	Validate(ctx context.Context, secret string) (bool, error)
}
