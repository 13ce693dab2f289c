package tenants

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/postloop/postloop/internal/postgres"
)

var _ Repo = (*PostgresRepo)(nil)

// PostgresRepo stores the tenant directory in the shared control-plane
// schema. Tenant-owned data never lives here.
type PostgresRepo struct {
	db *postgres.DB
}

func NewPostgresRepo(db *postgres.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Upsert(ctx context.Context, tenant *Tenant) error {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO tenants (id, name, subdomain, namespace, created_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, subdomain = EXCLUDED.subdomain`,
		tenant.ID, tenant.Name, tenant.Subdomain, tenant.Namespace)
	if err != nil {
		return errors.Wrap(err, "[PostgresRepo.Upsert] exec")
	}
	return nil
}

func (r *PostgresRepo) Get(ctx context.Context, tenantID string) (*Tenant, error) {
	return r.getBy(ctx, `SELECT id, name, subdomain, namespace, created_at FROM tenants WHERE id = $1`, tenantID)
}

func (r *PostgresRepo) GetBySubdomain(ctx context.Context, subdomain string) (*Tenant, error) {
	return r.getBy(ctx, `SELECT id, name, subdomain, namespace, created_at FROM tenants WHERE subdomain = $1`, subdomain)
}

func (r *PostgresRepo) getBy(ctx context.Context, query, arg string) (*Tenant, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	var t Tenant
	err := r.db.Pool.QueryRow(ctx, query, arg).Scan(&t.ID, &t.Name, &t.Subdomain, &t.Namespace, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[PostgresRepo.getBy] scan")
	}
	return &t, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, tenantID string) error {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, tenantID); err != nil {
		return errors.Wrap(err, "[PostgresRepo.Delete] exec")
	}
	return nil
}

func (r *PostgresRepo) List(ctx context.Context, offset, limit int) ([]*Tenant, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, `
SELECT id, name, subdomain, namespace, created_at FROM tenants
ORDER BY created_at OFFSET $1 LIMIT NULLIF($2, 0)`, offset, limit)
	if err != nil {
		return nil, errors.Wrap(err, "[PostgresRepo.List] query")
	}
	defer rows.Close()

	var out []*Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Subdomain, &t.Namespace, &t.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "[PostgresRepo.List] scan")
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}
