// Package refresh renews stored OAuth credentials before they expire. The
// orchestrator is provider-agnostic: the wire exchange is delegated to a
// platform adapter, and the adapter's declared refresh behavior decides how
// the response is applied.
package refresh

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/postloop/postloop/credentials"
	"github.com/postloop/postloop/platforms"
	"github.com/postloop/postloop/secrets"
	"github.com/postloop/postloop/tenants"
)

const (
	defaultLeadWindow  = 5 * time.Minute
	defaultCallTimeout = 15 * time.Second
)

// Orchestrator drives proactive credential refresh through the vault.
// Concurrent refreshes of different credentials need no coordination; two
// concurrent refreshes of the same credential are serialized by the vault's
// version column and the loser gets ErrRefreshConflict to retry on.
type Orchestrator struct {
	vault       *credentials.Vault
	leadWindow  time.Duration
	callTimeout time.Duration
	nowFunc     func() time.Time
}

type OrchestratorOption func(*Orchestrator)

// WithLeadWindow overrides how long before expiry a credential is considered
// due (default 5 minutes).
func WithLeadWindow(window time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if window > 0 {
			o.leadWindow = window
		}
	}
}

// WithCallTimeout bounds each adapter wire call (default 15s).
func WithCallTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.callTimeout = timeout
		}
	}
}

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.nowFunc = now
	}
}

func NewOrchestrator(vault *credentials.Vault, options ...OrchestratorOption) (*Orchestrator, error) {
	if vault == nil {
		return nil, errors.New("[NewOrchestrator] vault is required")
	}

	o := &Orchestrator{
		vault:       vault,
		leadWindow:  defaultLeadWindow,
		callTimeout: defaultCallTimeout,
		nowFunc:     time.Now,
	}
	for _, opt := range options {
		opt(o)
	}
	return o, nil
}

// ShouldRefresh reports whether a credential is due for proactive renewal.
// Non-expiring providers never refresh. A missing expiry on a refreshing
// provider counts as due: the stored state can't prove the secret is fresh.
func (o *Orchestrator) ShouldRefresh(expiresAt *time.Time, behavior platforms.RefreshBehavior) bool {
	if behavior == platforms.NonExpiring {
		return false
	}
	if expiresAt == nil {
		return true
	}
	return o.nowFunc().Add(o.leadWindow).After(*expiresAt)
}

// Refresh renews one credential through its adapter and applies the result
// as a single versioned vault update. On any failure the stored credential
// is left exactly as it was.
func (o *Orchestrator) Refresh(ctx context.Context, tc tenants.Context, credentialID string, adapter platforms.Adapter) error {
	if err := tc.Require(); err != nil {
		return err
	}
	if adapter.Behavior() == platforms.NonExpiring {
		return errors.Wrapf(platforms.ErrProviderRefreshFailed,
			"[Orchestrator.Refresh] %s credentials do not refresh", adapter.Name())
	}

	decrypted, err := o.vault.GetByID(ctx, tc, credentialID)
	if err != nil {
		return err
	}
	if decrypted == nil {
		// Ciphertext unusable: surfaced as needs-reconnect, never retried here.
		return errors.Wrapf(secrets.ErrDecryptionFailed, "[Orchestrator.Refresh] credential %s", credentialID)
	}
	if decrypted.RefreshToken == "" {
		// The provider rotates or reuses refresh secrets but we hold none;
		// only a reconnect can recover this credential.
		return errors.Wrapf(platforms.ErrProviderRefreshFailed,
			"[Orchestrator.Refresh] no refresh secret stored for credential %s", credentialID)
	}

	wctx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	tokenSet, err := adapter.RefreshToken(wctx, decrypted.RefreshToken)
	if err != nil {
		if errors.Is(err, platforms.ErrProviderRefreshFailed) {
			return err
		}
		return errors.Wrapf(platforms.ErrProviderRefreshFailed, "[Orchestrator.Refresh] %v", err)
	}
	if tokenSet.AccessToken == "" {
		return errors.Wrapf(platforms.ErrProviderRefreshFailed,
			"[Orchestrator.Refresh] %s returned no access token", adapter.Name())
	}

	newRefresh := tokenSet.RefreshToken
	if adapter.Behavior() == platforms.RotatingRefresh && newRefresh == "" {
		// A rotating provider that returns no replacement has invalidated
		// the old secret; storing nothing would strand the credential.
		return errors.Wrapf(platforms.ErrProviderRefreshFailed,
			"[Orchestrator.Refresh] %s rotated away its refresh secret without returning a new one", adapter.Name())
	}

	err = o.vault.UpdateSecrets(ctx, tc, credentialID, decrypted.Version,
		tokenSet.AccessToken, newRefresh, tokenSet.ExpiryTime(o.nowFunc()))
	if err != nil {
		return err
	}

	log.Debug().Str("credential_id", credentialID).Str("provider", adapter.Name()).
		Str("behavior", adapter.Behavior().String()).Msg("credential refreshed")
	return nil
}

// HealthCheck substitutes for refresh on non-expiring credentials: a
// lightweight upstream validation of the stored access secret.
func (o *Orchestrator) HealthCheck(ctx context.Context, tc tenants.Context, credentialID string, adapter platforms.Adapter) (bool, error) {
	if err := tc.Require(); err != nil {
		return false, err
	}

	decrypted, err := o.vault.GetByID(ctx, tc, credentialID)
	if err != nil {
		return false, err
	}
	if decrypted == nil {
		return false, nil
	}

	wctx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	return adapter.Validate(wctx, decrypted.AccessToken)
}
