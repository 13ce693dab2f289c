// Package token mints and verifies the application's own session tokens:
// short-lived access tokens and longer-lived refresh tokens bound to
// (subject, tenant, role). Refresh tokens are persisted only as a one-way
// hash by the session store.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	// ErrExpired means the token was past its expiry - recoverable by refresh.
	ErrExpired = errors.New("token expired")
	// ErrInvalid means a bad signature or malformed token - force re-login.
	ErrInvalid = errors.New("token invalid")
	// ErrWrongKind means a structurally valid token of the other kind was
	// presented, e.g. a refresh token where an access token is expected.
	ErrWrongKind = errors.New("wrong token kind")
)

const (
	defaultAccessExpiry  = 15 * time.Minute
	defaultRefreshExpiry = 30 * 24 * time.Hour
)

// Issuer creates and verifies access/refresh token pairs. The two kinds are
// signed with distinct secrets.
type Issuer struct {
	issuer        string
	accessSigner  Signer
	refreshSigner Signer
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	nowFunc       func() time.Time
}

type IssuerOption func(*Issuer)

// WithTokenExpiry overrides the access and refresh token lifetimes
// (defaults: 15 minutes and 30 days).
func WithTokenExpiry(accessExpiry, refreshExpiry time.Duration) IssuerOption {
	return func(i *Issuer) {
		if accessExpiry > 0 {
			i.accessExpiry = accessExpiry
		}
		if refreshExpiry > 0 {
			i.refreshExpiry = refreshExpiry
		}
	}
}

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowFunc = now
	}
}

// NewIssuer initialises an Issuer with distinct access and refresh signing
// secrets. Identical secrets are rejected: a leaked access key must not be
// usable to forge refresh tokens.
func NewIssuer(issuer, accessSecret, refreshSecret string, options ...IssuerOption) (*Issuer, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("[NewIssuer] access and refresh signing secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("[NewIssuer] access and refresh signing secrets must differ")
	}

	i := &Issuer{
		issuer:        issuer,
		accessSigner:  NewHMACSigner(accessSecret),
		refreshSigner: NewHMACSigner(refreshSecret),
		accessExpiry:  defaultAccessExpiry,
		refreshExpiry: defaultRefreshExpiry,
		nowFunc:       time.Now,
	}

	for _, opt := range options {
		opt(i)
	}

	return i, nil
}

// AccessExpiry returns the configured access token lifetime.
func (i *Issuer) AccessExpiry() time.Duration { return i.accessExpiry }

// RefreshExpiry returns the configured refresh token lifetime.
func (i *Issuer) RefreshExpiry() time.Duration { return i.refreshExpiry }

// IssueAccessToken mints a signed access token for the claim set.
func (i *Issuer) IssueAccessToken(claims Claims) (string, error) {
	return i.issue(claims, KindAccess)
}

// IssueRefreshToken mints a signed refresh token for the claim set.
func (i *Issuer) IssueRefreshToken(claims Claims) (string, error) {
	return i.issue(claims, KindRefresh)
}

// IssuePair is the composition used by login, registration and refresh:
// it always returns both tokens plus the access token lifetime in seconds.
func (i *Issuer) IssuePair(claims Claims) (*Pair, error) {
	access, err := i.IssueAccessToken(claims)
	if err != nil {
		return nil, errors.Wrap(err, "[Issuer.IssuePair] access")
	}
	refresh, err := i.IssueRefreshToken(claims)
	if err != nil {
		return nil, errors.Wrap(err, "[Issuer.IssuePair] refresh")
	}
	return &Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(i.accessExpiry.Seconds()),
	}, nil
}

func (i *Issuer) issue(claims Claims, kind Kind) (string, error) {
	expiry := i.accessExpiry
	signer := i.accessSigner
	if kind == KindRefresh {
		expiry = i.refreshExpiry
		signer = i.refreshSigner
	}

	now := i.nowFunc()
	mapClaims := jwt.MapClaims{
		"iss":    i.issuer,
		"sub":    claims.UserID,
		"tenant": claims.TenantID,
		"email":  claims.Email,
		"role":   claims.Role,
		"kind":   string(kind),
		"iat":    now.Unix(),
		"exp":    now.Add(expiry).Unix(),
		"jti":    uuid.New().String(),
	}

	signed, err := signer.Sign(mapClaims)
	if err != nil {
		return "", errors.Wrap(err, "[Issuer.issue] Sign")
	}
	return signed, nil
}

// Verify parses and validates a raw token of the expected kind. Failures are
// one of exactly three kinds: ErrExpired, ErrInvalid, or ErrWrongKind, so
// callers can map them to distinct user-facing outcomes.
func (i *Issuer) Verify(rawToken string, kind Kind) (*Claims, error) {
	signer := i.accessSigner
	other := i.refreshSigner
	if kind == KindRefresh {
		signer = i.refreshSigner
		other = i.accessSigner
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.nowFunc),
	)

	parsed, err := parser.Parse(rawToken, signer.GetVerificationKey)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		// A token that verifies under the other kind's key is structurally
		// valid but presented in the wrong place.
		if _, otherErr := parser.Parse(rawToken, other.GetVerificationKey); otherErr == nil || errors.Is(otherErr, jwt.ErrTokenExpired) {
			return nil, ErrWrongKind
		}
		return nil, ErrInvalid
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalid
	}
	if k, _ := mapClaims["kind"].(string); k != string(kind) {
		return nil, ErrWrongKind
	}

	sub, _ := mapClaims["sub"].(string)
	tenant, _ := mapClaims["tenant"].(string)
	email, _ := mapClaims["email"].(string)
	role, _ := mapClaims["role"].(string)
	iat, _ := mapClaims["iat"].(float64)
	exp, _ := mapClaims["exp"].(float64)

	return &Claims{
		UserID:    sub,
		TenantID:  tenant,
		Email:     email,
		Role:      role,
		IssuedAt:  time.Unix(int64(iat), 0),
		ExpiresAt: time.Unix(int64(exp), 0),
	}, nil
}
