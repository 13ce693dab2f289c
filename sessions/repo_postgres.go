package sessions

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/postloop/postloop/internal/postgres"
	"github.com/postloop/postloop/tenants"
)

var _ Repo = (*PostgresRepo)(nil)

// PostgresRepo stores sessions in the tenant's schema. The namespace is a
// validated per-call argument; only the schema qualifier is interpolated,
// all values are query parameters.
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
	return postgres.Table(tc.Namespace, "sessions"), nil
}

func (r *PostgresRepo) Create(ctx context.Context, tc tenants.Context, session *Session) error {
	tbl, err := table(tc)
	if err != nil {
		return err
	}
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	_, err = r.db.Pool.Exec(ctx, fmt.Sprintf(`
INSERT INTO %s (id, user_id, refresh_hash, user_agent, ip, device_name, last_active_at, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, tbl),
		session.ID, session.UserID, session.RefreshHash,
		session.Device.UserAgent, session.Device.IP, session.Device.Name,
		session.LastActiveAt, session.CreatedAt, session.ExpiresAt)
	if err != nil {
		return errors.Wrap(err, "[sessions.PostgresRepo.Create] exec")
	}
	return nil
}

func (r *PostgresRepo) GetByHash(ctx context.Context, tc tenants.Context, refreshHash string) (*Session, error) {
	tbl, err := table(tc)
	if err != nil {
		return nil, err
	}
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	s := Session{TenantID: tc.TenantID}
	err = r.db.Pool.QueryRow(ctx, fmt.Sprintf(`
SELECT id, user_id, refresh_hash, user_agent, ip, device_name, last_active_at, created_at, expires_at
FROM %s WHERE refresh_hash = $1`, tbl), refreshHash).
		Scan(&s.ID, &s.UserID, &s.RefreshHash, &s.Device.UserAgent, &s.Device.IP, &s.Device.Name,
			&s.LastActiveAt, &s.CreatedAt, &s.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[sessions.PostgresRepo.GetByHash] scan")
	}
	return &s, nil
}

func (r *PostgresRepo) DeleteByHash(ctx context.Context, tc tenants.Context, refreshHash string) (bool, error) {
	tbl, err := table(tc)
	if err != nil {
		return false, err
	}
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	tag, err := r.db.Pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE refresh_hash = $1`, tbl), refreshHash)
	if err != nil {
		return false, errors.Wrap(err, "[sessions.PostgresRepo.DeleteByHash] exec")
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepo) DeleteForUser(ctx context.Context, tc tenants.Context, userID string) (int64, error) {
	tbl, err := table(tc)
	if err != nil {
		return 0, err
	}
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	tag, err := r.db.Pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1`, tbl), userID)
	if err != nil {
		return 0, errors.Wrap(err, "[sessions.PostgresRepo.DeleteForUser] exec")
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepo) ListActive(ctx context.Context, tc tenants.Context, userID string) ([]*Session, error) {
	tbl, err := table(tc)
	if err != nil {
		return nil, err
	}
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, fmt.Sprintf(`
SELECT id, user_id, refresh_hash, user_agent, ip, device_name, last_active_at, created_at, expires_at
FROM %s WHERE user_id = $1 AND expires_at > now()
ORDER BY last_active_at DESC`, tbl), userID)
	if err != nil {
		return nil, errors.Wrap(err, "[sessions.PostgresRepo.ListActive] query")
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		s := Session{TenantID: tc.TenantID}
		if err := rows.Scan(&s.ID, &s.UserID, &s.RefreshHash, &s.Device.UserAgent, &s.Device.IP,
			&s.Device.Name, &s.LastActiveAt, &s.CreatedAt, &s.ExpiresAt); err != nil {
			return nil, errors.Wrap(err, "[sessions.PostgresRepo.ListActive] scan")
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) SweepExpired(ctx context.Context, tc tenants.Context) (int64, error) {
	tbl, err := table(tc)
	if err != nil {
		return 0, err
	}
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	tag, err := r.db.Pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE expires_at <= now()`, tbl))
	if err != nil {
		return 0, errors.Wrap(err, "[sessions.PostgresRepo.SweepExpired] exec")
	}
	return tag.RowsAffected(), nil
}

// Rotate runs delete-old-then-insert-new in one transaction. The old row must
// be gone before the new pair is usable; if the delete matches nothing the
// whole rotation fails with ErrNotFound.
func (r *PostgresRepo) Rotate(ctx context.Context, tc tenants.Context, oldHash string, next *Session) error {
	tbl, err := table(tc)
	if err != nil {
		return err
	}
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "[sessions.PostgresRepo.Rotate] begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE refresh_hash = $1`, tbl), oldHash)
	if err != nil {
		return errors.Wrap(err, "[sessions.PostgresRepo.Rotate] delete")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	_, err = tx.Exec(ctx, fmt.Sprintf(`
INSERT INTO %s (id, user_id, refresh_hash, user_agent, ip, device_name, last_active_at, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, tbl),
		next.ID, next.UserID, next.RefreshHash,
		next.Device.UserAgent, next.Device.IP, next.Device.Name,
		next.LastActiveAt, next.CreatedAt, next.ExpiresAt)
	if err != nil {
		return errors.Wrap(err, "[sessions.PostgresRepo.Rotate] insert")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "[sessions.PostgresRepo.Rotate] commit")
	}
	return nil
}
