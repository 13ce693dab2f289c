// Package credentials is the vault for third-party OAuth credentials. Every
// secret is stored as AES-GCM ciphertext; decryption happens only at the
// point of use and plaintext is never persisted.
package credentials

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/postloop/postloop/tenants"
)

var (
	// ErrNotFound is returned when no credential matches the lookup.
	ErrNotFound = errors.New("credential not found")
	// ErrRefreshConflict means a concurrent rotation updated the row first.
	// The loser should re-read and retry.
	ErrRefreshConflict = errors.New("credential refresh conflict")
)

// Credential is one connected social account: one row per
// (tenant, user, provider, external account). Secret fields hold ciphertext.
type Credential struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	Provider       string            `json:"provider"`
	ExternalID     string            `json:"external_id"`
	Username       string            `json:"username"`
	AccessSecret   string            `json:"-"` // ciphertext, never serialized
	RefreshSecret  string            `json:"-"` // ciphertext, empty when the provider issued none
	TokenExpiresAt *time.Time        `json:"token_expires_at,omitempty"` // nil for non-expiring credentials
	Scopes         []string          `json:"scopes,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Label          string            `json:"label"`
	Active         bool              `json:"active"`
	Version        int64             `json:"-"` // optimistic-concurrency guard for refresh updates
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Decrypted pairs a credential row with its plaintext secrets. Instances are
// short-lived call-scoped values; nothing in this package stores one.
type Decrypted struct {
	Credential
	AccessToken  string
	RefreshToken string
}

// SecretUpdate is the single logical write a successful provider refresh
// applies: new ciphertexts plus the new expiry, guarded by the version the
// caller read.
type SecretUpdate struct {
	AccessSecret   string
	RefreshSecret  string // empty keeps the stored refresh secret
	TokenExpiresAt *time.Time
	Version        int64 // version the caller observed; mismatch fails with ErrRefreshConflict
}

// Repo persists credentials inside a tenant namespace.
type Repo interface {
	// Upsert inserts or, when the (user, provider, external_id) key already
	// exists, updates the row in place preserving label and active flag.
	Upsert(ctx context.Context, tc tenants.Context, credential *Credential) error
	GetByID(ctx context.Context, tc tenants.Context, id string) (*Credential, error)
	// ListForUser filters by provider when provider is non-empty.
	ListForUser(ctx context.Context, tc tenants.Context, userID, provider string) ([]*Credential, error)
	Delete(ctx context.Context, tc tenants.Context, id string) error
	UpdateLabel(ctx context.Context, tc tenants.Context, id, label string) error
	CountForUser(ctx context.Context, tc tenants.Context, userID, provider string) (int, error)
	// UpdateSecrets applies a SecretUpdate atomically, bumping the version.
	UpdateSecrets(ctx context.Context, tc tenants.Context, id string, update SecretUpdate) error
}
