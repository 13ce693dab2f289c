package users

import (
	"context"
	"fmt"
	"time"

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
	return postgres.Table(tc.Namespace, "users"), nil
}

func (r *PostgresRepo) Create(ctx context.Context, tc tenants.Context, user *User) error {
	tbl, err := table(tc)
	if err != nil {
		return err
	}
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	_, err = r.db.Pool.Exec(ctx, fmt.Sprintf(`
INSERT INTO %s (id, email, password_hash, role, totp_enabled, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`, tbl),
		user.ID, user.Email, user.PasswordHash, string(user.Role), user.TOTPEnabled, user.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "[users.PostgresRepo.Create] exec")
	}
	return nil
}

func (r *PostgresRepo) GetByEmail(ctx context.Context, tc tenants.Context, email string) (*User, error) {
	return r.getBy(ctx, tc, "email", email)
}

func (r *PostgresRepo) GetByID(ctx context.Context, tc tenants.Context, userID string) (*User, error) {
	return r.getBy(ctx, tc, "id", userID)
}

func (r *PostgresRepo) getBy(ctx context.Context, tc tenants.Context, column, value string) (*User, error) {
	tbl, err := table(tc)
	if err != nil {
		return nil, err
	}
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	var u User
	var lastLogin *time.Time
	err = r.db.Pool.QueryRow(ctx, fmt.Sprintf(`
SELECT id, email, password_hash, role, totp_enabled, created_at, last_login
FROM %s WHERE %s = $1`, tbl, column), value).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.TOTPEnabled, &u.CreatedAt, &lastLogin)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[users.PostgresRepo.getBy] scan")
	}
	if lastLogin != nil {
		u.LastLogin = *lastLogin
	}
	return &u, nil
}

func (r *PostgresRepo) UpdatePassword(ctx context.Context, tc tenants.Context, userID, passwordHash string) error {
	tbl, err := table(tc)
	if err != nil {
		return err
	}
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	tag, err := r.db.Pool.Exec(ctx, fmt.Sprintf(`UPDATE %s SET password_hash = $2 WHERE id = $1`, tbl), userID, passwordHash)
	if err != nil {
		return errors.Wrap(err, "[users.PostgresRepo.UpdatePassword] exec")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) TouchLastLogin(ctx context.Context, tc tenants.Context, userID string, at time.Time) error {
	tbl, err := table(tc)
	if err != nil {
		return err
	}
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	if _, err := r.db.Pool.Exec(ctx, fmt.Sprintf(`UPDATE %s SET last_login = $2 WHERE id = $1`, tbl), userID, at); err != nil {
		return errors.Wrap(err, "[users.PostgresRepo.TouchLastLogin] exec")
	}
	return nil
}
