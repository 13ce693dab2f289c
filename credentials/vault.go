package credentials

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/postloop/postloop/platforms"
	"github.com/postloop/postloop/secrets"
	"github.com/postloop/postloop/tenants"
)

// Vault is the only component that touches credential plaintext. It seals
// secrets on every write (always with a fresh nonce - Seal never reuses one)
// and opens them only at the point of use.
type Vault struct {
	repo          Repo
	cipher        *secrets.Cipher
	revokeTimeout time.Duration
	nowFunc       func() time.Time
}

type VaultOption func(*Vault)

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) VaultOption {
	return func(v *Vault) {
		v.nowFunc = now
	}
}

// WithRevokeTimeout bounds the best-effort upstream revocation call made
// during Disconnect (default 5s).
func WithRevokeTimeout(timeout time.Duration) VaultOption {
	return func(v *Vault) {
		if timeout > 0 {
			v.revokeTimeout = timeout
		}
	}
}

func NewVault(repo Repo, cipher *secrets.Cipher, options ...VaultOption) (*Vault, error) {
	if repo == nil {
		return nil, errors.New("[NewVault] credential repo is required")
	}
	if cipher == nil {
		return nil, errors.New("[NewVault] cipher is required")
	}

	v := &Vault{
		repo:          repo,
		cipher:        cipher,
		revokeTimeout: 5 * time.Second,
		nowFunc:       time.Now,
	}
	for _, opt := range options {
		opt(v)
	}
	return v, nil
}

// SaveInput carries the plaintext secrets of a successful OAuth callback or
// token refresh. Fields left zero keep their stored values on update.
type SaveInput struct {
	UserID         string
	Provider       string
	ExternalID     string
	Username       string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt *time.Time
	Scopes         []string
	Metadata       map[string]string
	Label          string
}

// Save upserts a credential by its (user, provider, external account) key,
// re-encrypting with a fresh nonce even when updating an existing row.
func (v *Vault) Save(ctx context.Context, tc tenants.Context, input SaveInput) (*Credential, error) {
	if err := tc.Require(); err != nil {
		return nil, err
	}
	if input.UserID == "" || input.Provider == "" || input.ExternalID == "" {
		return nil, errors.New("[Vault.Save] user, provider and external account are required")
	}
	if input.AccessToken == "" {
		return nil, errors.New("[Vault.Save] access token is required")
	}

	accessCT, err := v.cipher.Seal(input.AccessToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Vault.Save] seal access")
	}
	var refreshCT string
	if input.RefreshToken != "" {
		refreshCT, err = v.cipher.Seal(input.RefreshToken)
		if err != nil {
			return nil, errors.Wrap(err, "[Vault.Save] seal refresh")
		}
	}

	metadata := input.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	credential := &Credential{
		ID:             uuid.New().String(),
		UserID:         input.UserID,
		Provider:       input.Provider,
		ExternalID:     input.ExternalID,
		Username:       input.Username,
		AccessSecret:   accessCT,
		RefreshSecret:  refreshCT,
		TokenExpiresAt: input.TokenExpiresAt,
		Scopes:         input.Scopes,
		Metadata:       metadata,
		Label:          input.Label,
		Active:         true,
		CreatedAt:      v.nowFunc(),
		UpdatedAt:      v.nowFunc(),
	}

	if err := v.repo.Upsert(ctx, tc, credential); err != nil {
		return nil, errors.Wrap(err, "[Vault.Save] upsert")
	}
	return credential, nil
}

// GetByID fetches and decrypts a credential. A row whose ciphertext cannot
// be opened degrades to (nil, nil) - "needs reconnect" - instead of an error,
// so a corrupted row never crashes the caller. ErrNotFound still propagates.
func (v *Vault) GetByID(ctx context.Context, tc tenants.Context, id string) (*Decrypted, error) {
	if err := tc.Require(); err != nil {
		return nil, err
	}

	credential, err := v.repo.GetByID(ctx, tc, id)
	if err != nil {
		return nil, err
	}

	access, err := v.cipher.Open(credential.AccessSecret)
	if err != nil {
		log.Warn().Str("credential_id", id).Str("provider", credential.Provider).
			Msg("credential ciphertext unusable, account needs reconnect")
		return nil, nil
	}

	var refresh string
	if credential.RefreshSecret != "" {
		refresh, err = v.cipher.Open(credential.RefreshSecret)
		if err != nil {
			log.Warn().Str("credential_id", id).Str("provider", credential.Provider).
				Msg("credential ciphertext unusable, account needs reconnect")
			return nil, nil
		}
	}

	return &Decrypted{Credential: *credential, AccessToken: access, RefreshToken: refresh}, nil
}

// Describe returns one credential's metadata without touching the
// ciphertext, so it works even on rows whose secrets are unusable.
func (v *Vault) Describe(ctx context.Context, tc tenants.Context, id string) (*Credential, error) {
	if err := tc.Require(); err != nil {
		return nil, err
	}

	credential, err := v.repo.GetByID(ctx, tc, id)
	if err != nil {
		return nil, err
	}
	credential.AccessSecret = ""
	credential.RefreshSecret = ""
	return credential, nil
}

// ListForUser returns credential metadata without any secret material.
func (v *Vault) ListForUser(ctx context.Context, tc tenants.Context, userID, provider string) ([]*Credential, error) {
	if err := tc.Require(); err != nil {
		return nil, err
	}

	list, err := v.repo.ListForUser(ctx, tc, userID, provider)
	if err != nil {
		return nil, err
	}
	for _, credential := range list {
		credential.AccessSecret = ""
		credential.RefreshSecret = ""
	}
	return list, nil
}

// Relabel updates the human label on a credential.
func (v *Vault) Relabel(ctx context.Context, tc tenants.Context, id, label string) error {
	if err := tc.Require(); err != nil {
		return err
	}
	return v.repo.UpdateLabel(ctx, tc, id, label)
}

// CountForUser feeds the external tier-limit bookkeeping.
func (v *Vault) CountForUser(ctx context.Context, tc tenants.Context, userID, provider string) (int, error) {
	if err := tc.Require(); err != nil {
		return 0, err
	}
	return v.repo.CountForUser(ctx, tc, userID, provider)
}

// UpdateSecrets re-seals the outcome of a provider refresh and applies it as
// one versioned update. Plaintext goes in, only ciphertext reaches the repo.
func (v *Vault) UpdateSecrets(ctx context.Context, tc tenants.Context, id string, version int64, accessToken, refreshToken string, expiresAt *time.Time) error {
	if err := tc.Require(); err != nil {
		return err
	}

	accessCT, err := v.cipher.Seal(accessToken)
	if err != nil {
		return errors.Wrap(err, "[Vault.UpdateSecrets] seal access")
	}
	var refreshCT string
	if refreshToken != "" {
		refreshCT, err = v.cipher.Seal(refreshToken)
		if err != nil {
			return errors.Wrap(err, "[Vault.UpdateSecrets] seal refresh")
		}
	}

	return v.repo.UpdateSecrets(ctx, tc, id, SecretUpdate{
		AccessSecret:   accessCT,
		RefreshSecret:  refreshCT,
		TokenExpiresAt: expiresAt,
		Version:        version,
	})
}

// Disconnect removes the credential and attempts best-effort revocation
// upstream. Revocation failures (including timeouts) are logged and
// swallowed; the local row is removed regardless.
func (v *Vault) Disconnect(ctx context.Context, tc tenants.Context, id string, adapter platforms.Adapter) error {
	if err := tc.Require(); err != nil {
		return err
	}

	if adapter != nil {
		if decrypted, err := v.GetByID(ctx, tc, id); err == nil && decrypted != nil {
			rctx, cancel := context.WithTimeout(ctx, v.revokeTimeout)
			if revokeErr := adapter.Revoke(rctx, decrypted.AccessToken); revokeErr != nil {
				log.Warn().Err(revokeErr).Str("credential_id", id).Str("provider", adapter.Name()).
					Msg("best-effort upstream revocation failed")
			}
			cancel()
		}
	}

	return v.repo.Delete(ctx, tc, id)
}
