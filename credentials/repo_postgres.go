package credentials

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/postloop/postloop/internal/postgres"
	"github.com/postloop/postloop/tenants"
)

var _ Repo = (*PostgresRepo)(nil)

type PostgresRepo struct {
	db *postgres.DB
}

func NewPostgresRepo(db *postgres.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func table(tc tenants.Context) (string, error) {
	if err := tc.Require(); err != nil {
		return "", err
	}
	if err := postgres.ValidIdent(tc.Namespace); err != nil {
		return "", err
	}
	return postgres.Table(tc.Namespace, "social_accounts"), nil
}

const credentialColumns = `id, user_id, provider, external_id, username, access_secret,
COALESCE(refresh_secret, ''), token_expires_at, scopes, metadata, label, active, version, created_at, updated_at`

func (r *PostgresRepo) Upsert(ctx context.Context, tc tenants.Context, credential *Credential) error {
	tbl, err := table(tc)
	if err != nil {
		return err
	}
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	// On conflict the row is updated in place; label and active flag are
	// caller-owned state and survive reconnects untouched.
	err = r.db.Pool.QueryRow(ctx, fmt.Sprintf(`
INSERT INTO %s (id, user_id, provider, external_id, username, access_secret, refresh_secret,
                token_expires_at, scopes, metadata, label, active, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11, TRUE, 1, now(), now())
ON CONFLICT (user_id, provider, external_id) DO UPDATE SET
    username         = EXCLUDED.username,
    access_secret    = EXCLUDED.access_secret,
    refresh_secret   = COALESCE(NULLIF(EXCLUDED.refresh_secret, ''), %[1]s.refresh_secret),
    token_expires_at = EXCLUDED.token_expires_at,
    scopes           = EXCLUDED.scopes,
    metadata         = EXCLUDED.metadata,
    version          = %[1]s.version + 1,
    updated_at       = now()
RETURNING id, version, created_at, updated_at`, tbl),
		credential.ID, credential.UserID, credential.Provider, credential.ExternalID,
		credential.Username, credential.AccessSecret, credential.RefreshSecret,
		credential.TokenExpiresAt, credential.Scopes, credential.Metadata, credential.Label).
		Scan(&credential.ID, &credential.Version, &credential.CreatedAt, &credential.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "[credentials.PostgresRepo.Upsert] exec")
	}
	credential.Active = true
	return nil
}

func (r *PostgresRepo) GetByID(ctx context.Context, tc tenants.Context, id string) (*Credential, error) {
	tbl, err := table(tc)
	if err != nil {
		return nil, err
	}
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	row := r.db.Pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, credentialColumns, tbl), id)
	return scanCredential(row)
}

func (r *PostgresRepo) ListForUser(ctx context.Context, tc tenants.Context, userID, provider string) ([]*Credential, error) {
	tbl, err := table(tc)
	if err != nil {
		return nil, err
	}
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE user_id = $1 AND active`, credentialColumns, tbl)
	args := []any{userID}
	if provider != "" {
		query += ` AND provider = $2`
		args = append(args, provider)
	}
	query += ` ORDER BY created_at`

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "[credentials.PostgresRepo.ListForUser] query")
	}
	defer rows.Close()

	var out []*Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Delete(ctx context.Context, tc tenants.Context, id string) error {
	tbl, err := table(tc)
	if err != nil {
		return err
	}
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	tag, err := r.db.Pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, tbl), id)
	if err != nil {
		return errors.Wrap(err, "[credentials.PostgresRepo.Delete] exec")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) UpdateLabel(ctx context.Context, tc tenants.Context, id, label string) error {
	tbl, err := table(tc)
	if err != nil {
		return err
	}
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	tag, err := r.db.Pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET label = $2, updated_at = now() WHERE id = $1`, tbl), id, label)
	if err != nil {
		return errors.Wrap(err, "[credentials.PostgresRepo.UpdateLabel] exec")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) CountForUser(ctx context.Context, tc tenants.Context, userID, provider string) (int, error) {
	tbl, err := table(tc)
	if err != nil {
		return 0, err
	}
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	var count int
	err = r.db.Pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT count(*) FROM %s WHERE user_id = $1 AND provider = $2 AND active`, tbl),
		userID, provider).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "[credentials.PostgresRepo.CountForUser] scan")
	}
	return count, nil
}

func (r *PostgresRepo) UpdateSecrets(ctx context.Context, tc tenants.Context, id string, update SecretUpdate) error {
	tbl, err := table(tc)
	if err != nil {
		return err
	}
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	// Versioned single-statement update: a concurrent refresh that already
	// bumped the version makes this match nothing.
	tag, err := r.db.Pool.Exec(ctx, fmt.Sprintf(`
UPDATE %s SET access_secret = $3,
              refresh_secret = COALESCE(NULLIF($4, ''), refresh_secret),
              token_expires_at = $5,
              version = version + 1,
              updated_at = now()
WHERE id = $1 AND version = $2`, tbl),
		id, update.Version, update.AccessSecret, update.RefreshSecret, update.TokenExpiresAt)
	if err != nil {
		return errors.Wrap(err, "[credentials.PostgresRepo.UpdateSecrets] exec")
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a lost race from a deleted row.
		if _, getErr := r.GetByID(ctx, tc, id); getErr != nil {
			return getErr
		}
		return ErrRefreshConflict
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*Credential, error) {
	var c Credential
	err := row.Scan(&c.ID, &c.UserID, &c.Provider, &c.ExternalID, &c.Username,
		&c.AccessSecret, &c.RefreshSecret, &c.TokenExpiresAt, &c.Scopes, &c.Metadata,
		&c.Label, &c.Active, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[credentials.scanCredential] scan")
	}
	return &c, nil
}
