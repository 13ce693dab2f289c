// Package auth composes the token issuer, session store, tenant directory
// and user accounts into the login/refresh/logout lifecycle. It owns the
// refresh rotation state machine.
package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/postloop/postloop/sessions"
	"github.com/postloop/postloop/tenants"
	"github.com/postloop/postloop/token"
	"github.com/postloop/postloop/users"
)

// NamespaceStore is the slice of the storage backend the service needs for
// tenant provisioning: lazily creating a namespace on registration.
type NamespaceStore interface {
	EnsureNamespace(ctx context.Context, ns string) error
}

// TOTPVerifier checks a user's one-time code. The concrete implementation
// lives outside this core; registration and login only gate on it.
type TOTPVerifier interface {
	Verify(ctx context.Context, tc tenants.Context, userID, code string) (bool, error)
}

// Repos holds all repository dependencies for the Service
type Repos struct {
	Users    users.Repo
	Sessions sessions.Repo
	Tenants  tenants.Repo
}

// Service implements the inbound session API: issue, verify, rotate, revoke.
type Service struct {
	repos   Repos
	store   NamespaceStore
	issuer  *token.Issuer
	totp    TOTPVerifier
	nowFunc func() time.Time
}

type ServiceOption func(*Service)

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowFunc = now
	}
}

// WithTOTPVerifier plugs in the external TOTP implementation. Without one,
// TOTP-enabled users cannot log in.
func WithTOTPVerifier(verifier TOTPVerifier) ServiceOption {
	return func(s *Service) {
		s.totp = verifier
	}
}

func NewService(repos Repos, store NamespaceStore, issuer *token.Issuer, options ...ServiceOption) (*Service, error) {
	if repos.Users == nil {
		return nil, errors.New("[auth.NewService] Users repo is required")
	}
	if repos.Sessions == nil {
		return nil, errors.New("[auth.NewService] Sessions repo is required")
	}
	if repos.Tenants == nil {
		return nil, errors.New("[auth.NewService] Tenants repo is required")
	}
	if store == nil {
		return nil, errors.New("[auth.NewService] namespace store is required")
	}
	if issuer == nil {
		return nil, errors.New("[auth.NewService] token issuer is required")
	}

	s := &Service{
		repos:   repos,
		store:   store,
		issuer:  issuer,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Register provisions a new tenant with its namespace, creates the first
// user as admin, and logs them in.
func (s *Service) Register(ctx context.Context, email, password, tenantName, subdomain string, device sessions.DeviceInfo) (*tenants.Tenant, *token.Pair, error) {
	if err := users.ValidatePasswordStrength(password); err != nil {
		return nil, nil, err
	}
	if _, err := s.repos.Tenants.GetBySubdomain(ctx, subdomain); err == nil {
		return nil, nil, ErrSubdomainTaken
	} else if !errors.Is(err, tenants.ErrNotFound) {
		return nil, nil, errors.Wrap(err, "[Service.Register] subdomain lookup")
	}

	tenantID := uuid.New().String()
	tenant := &tenants.Tenant{
		ID:        tenantID,
		Name:      tenantName,
		Subdomain: subdomain,
		Namespace: tenants.NamespaceForID(tenantID),
		CreatedAt: s.nowFunc(),
	}
	if err := s.store.EnsureNamespace(ctx, tenant.Namespace); err != nil {
		return nil, nil, errors.Wrap(err, "[Service.Register] ensure namespace")
	}
	if err := s.repos.Tenants.Upsert(ctx, tenant); err != nil {
		return nil, nil, errors.Wrap(err, "[Service.Register] create tenant")
	}

	tc := tenants.Context{TenantID: tenant.ID, Namespace: tenant.Namespace}

	passwordHash, err := users.HashPassword(password)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Service.Register] hash password")
	}
	user := &users.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         users.RoleAdmin,
		CreatedAt:    s.nowFunc(),
	}
	if err := s.repos.Users.Create(ctx, tc, user); err != nil {
		return nil, nil, errors.Wrap(err, "[Service.Register] create user")
	}

	pair, err := s.startSession(ctx, tc, user, device)
	if err != nil {
		return nil, nil, err
	}
	return tenant, pair, nil
}

// Login checks the password, gates on TOTP when enabled, and issues a token
// pair backed by a new session. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, tc tenants.Context, email, password, totpCode string, device sessions.DeviceInfo) (*token.Pair, error) {
	if err := tc.Require(); err != nil {
		return nil, err
	}

	user, err := s.repos.Users.GetByEmail(ctx, tc, email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "[Service.Login] GetByEmail")
	}

	if !users.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if user.TOTPEnabled {
		if s.totp == nil || totpCode == "" {
			return nil, ErrMFARequired
		}
		ok, err := s.totp.Verify(ctx, tc, user.ID, totpCode)
		if err != nil {
			return nil, errors.Wrap(err, "[Service.Login] totp verify")
		}
		if !ok {
			return nil, ErrMFARequired
		}
	}

	if err := s.repos.Users.TouchLastLogin(ctx, tc, user.ID, s.nowFunc()); err != nil {
		return nil, errors.Wrap(err, "[Service.Login] touch last login")
	}

	return s.startSession(ctx, tc, user, device)
}

// Verify validates a bearer access token and returns its claims.
func (s *Service) Verify(accessToken string) (*token.Claims, error) {
	return s.issuer.Verify(accessToken, token.KindAccess)
}

// Rotate implements single-use refresh rotation. The old session row is gone
// before the new pair is returned, so replaying the old refresh token always
// fails - and that failure is indistinguishable from a token that never
// existed.
func (s *Service) Rotate(ctx context.Context, tc tenants.Context, rawRefresh string, device sessions.DeviceInfo) (*token.Pair, error) {
	if err := tc.Require(); err != nil {
		return nil, err
	}

	claims, err := s.issuer.Verify(rawRefresh, token.KindRefresh)
	if err != nil {
		return nil, err
	}

	pair, err := s.issuer.IssuePair(token.Claims{
		UserID:   claims.UserID,
		TenantID: claims.TenantID,
		Email:    claims.Email,
		Role:     claims.Role,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Rotate] issue pair")
	}

	now := s.nowFunc()
	next := &sessions.Session{
		ID:           uuid.New().String(),
		UserID:       claims.UserID,
		TenantID:     tc.TenantID,
		RefreshHash:  token.Hash(pair.RefreshToken),
		Device:       device,
		LastActiveAt: now,
		CreatedAt:    now,
		ExpiresAt:    now.Add(sessions.DefaultExpiry),
	}

	if err := s.repos.Sessions.Rotate(ctx, tc, token.Hash(rawRefresh), next); err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			// Already rotated or never issued; do not tell which.
			return nil, token.ErrInvalid
		}
		return nil, errors.Wrap(err, "[Service.Rotate] rotate session")
	}

	return pair, nil
}

// Logout revokes the session backing a refresh token. Unknown tokens are a
// no-op: logout is idempotent.
func (s *Service) Logout(ctx context.Context, tc tenants.Context, rawRefresh string) error {
	if err := tc.Require(); err != nil {
		return err
	}
	_, err := s.repos.Sessions.DeleteByHash(ctx, tc, token.Hash(rawRefresh))
	return err
}

// ResetPassword replaces the user's password and purges every session they
// own, forcing re-login everywhere.
func (s *Service) ResetPassword(ctx context.Context, tc tenants.Context, userID, newPassword string) error {
	if err := tc.Require(); err != nil {
		return err
	}
	if err := users.ValidatePasswordStrength(newPassword); err != nil {
		return err
	}

	passwordHash, err := users.HashPassword(newPassword)
	if err != nil {
		return errors.Wrap(err, "[Service.ResetPassword] hash password")
	}
	if err := s.repos.Users.UpdatePassword(ctx, tc, userID, passwordHash); err != nil {
		return err
	}

	if _, err := s.repos.Sessions.DeleteForUser(ctx, tc, userID); err != nil {
		return errors.Wrap(err, "[Service.ResetPassword] purge sessions")
	}
	return nil
}

// ListSessions returns the user's live sessions for the devices view.
func (s *Service) ListSessions(ctx context.Context, tc tenants.Context, userID string) ([]*sessions.Session, error) {
	if err := tc.Require(); err != nil {
		return nil, err
	}
	return s.repos.Sessions.ListActive(ctx, tc, userID)
}

// SweepExpiredSessions removes sessions past their absolute expiry.
func (s *Service) SweepExpiredSessions(ctx context.Context, tc tenants.Context) (int64, error) {
	if err := tc.Require(); err != nil {
		return 0, err
	}
	return s.repos.Sessions.SweepExpired(ctx, tc)
}

func (s *Service) startSession(ctx context.Context, tc tenants.Context, user *users.User, device sessions.DeviceInfo) (*token.Pair, error) {
	pair, err := s.issuer.IssuePair(token.Claims{
		UserID:   user.ID,
		TenantID: tc.TenantID,
		Email:    user.Email,
		Role:     string(user.Role),
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Service.startSession] issue pair")
	}

	now := s.nowFunc()
	session := &sessions.Session{
		ID:           uuid.New().String(),
		UserID:       user.ID,
		TenantID:     tc.TenantID,
		RefreshHash:  token.Hash(pair.RefreshToken),
		Device:       device,
		LastActiveAt: now,
		CreatedAt:    now,
		ExpiresAt:    now.Add(sessions.DefaultExpiry),
	}
	if err := s.repos.Sessions.Create(ctx, tc, session); err != nil {
		return nil, errors.Wrap(err, "[Service.startSession] create session")
	}
	return pair, nil
}
