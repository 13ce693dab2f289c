package postgres

import (
	"context"
	"fmt"
	"regexp"

	"github.com/pkg/errors"
)

// Namespace identifiers are generated from tenant IDs, never from user input,
// but they are still interpolated into DDL/DML as schema qualifiers, so they
// are validated against a strict pattern before use.
var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// ValidIdent reports whether ns is safe to use as a schema qualifier.
func ValidIdent(ns string) error {
	if !identPattern.MatchString(ns) {
		return errors.Errorf("[postgres.ValidIdent] invalid namespace identifier %q", ns)
	}
	return nil
}

// Table returns a schema-qualified table name for an already-validated
// namespace. Values are still passed as query parameters; only the qualifier
// is interpolated.
func Table(ns, table string) string {
	return fmt.Sprintf("%s.%s", ns, table)
}

// Migrate creates the control-plane tables shared by all tenants. Idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	ctx, cancel := db.WithTimeout(ctx)
	defer cancel()

	_, err := db.Pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenants (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    subdomain  TEXT NOT NULL UNIQUE,
    namespace  TEXT NOT NULL UNIQUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`)
	if err != nil {
		return errors.Wrap(err, "[DB.Migrate] tenants")
	}
	return nil
}

// EnsureNamespace lazily creates a tenant's schema and its tables on first
// use. Idempotent and safe to call on every tenant creation.
func (db *DB) EnsureNamespace(ctx context.Context, ns string) error {
	if err := ValidIdent(ns); err != nil {
		return err
	}

	ctx, cancel := db.WithTimeout(ctx)
	defer cancel()

	statements := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, ns),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    id            UUID PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'user',
    totp_enabled  BOOLEAN NOT NULL DEFAULT FALSE,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_login    TIMESTAMPTZ
);`, Table(ns, "users")),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    id             UUID PRIMARY KEY,
    user_id        UUID NOT NULL,
    refresh_hash   TEXT NOT NULL UNIQUE,
    user_agent     TEXT NOT NULL DEFAULT '',
    ip             TEXT NOT NULL DEFAULT '',
    device_name    TEXT NOT NULL DEFAULT '',
    last_active_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    expires_at     TIMESTAMPTZ NOT NULL
);`, Table(ns, "sessions")),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    id               UUID PRIMARY KEY,
    user_id          UUID NOT NULL,
    provider         TEXT NOT NULL,
    external_id      TEXT NOT NULL,
    username         TEXT NOT NULL DEFAULT '',
    access_secret    TEXT NOT NULL,
    refresh_secret   TEXT,
    token_expires_at TIMESTAMPTZ,
    scopes           TEXT[] NOT NULL DEFAULT '{}',
    metadata         JSONB NOT NULL DEFAULT '{}',
    label            TEXT NOT NULL DEFAULT '',
    active           BOOLEAN NOT NULL DEFAULT TRUE,
    version          BIGINT NOT NULL DEFAULT 1,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (user_id, provider, external_id)
);`, Table(ns, "social_accounts")),
	}

	for _, stmt := range statements {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "[DB.EnsureNamespace] %s", ns)
		}
	}
	return nil
}

// DropNamespace removes a tenant's schema and everything in it. This is the
// storage side of tenant soft deletion.
func (db *DB) DropNamespace(ctx context.Context, ns string) error {
	if err := ValidIdent(ns); err != nil {
		return err
	}

	ctx, cancel := db.WithTimeout(ctx)
	defer cancel()

	if _, err := db.Pool.Exec(ctx, fmt.Sprintf(`DROP SCHEMA IF EXISTS %s CASCADE`, ns)); err != nil {
		return errors.Wrapf(err, "[DB.DropNamespace] %s", ns)
	}
	return nil
}
