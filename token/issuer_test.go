package token_test

import (
	"testing"
	"time"

	"github.com/postloop/postloop/token"
	"github.com/stretchr/testify/require"
)

const (
	accessSecret  = "access-signing-secret"
	refreshSecret = "refresh-signing-secret"
	testIssuer    = "postloop.test"
)

func testClaims() token.Claims {
	return token.Claims{
		UserID:   "user-1",
		TenantID: "tenant-1",
		Email:    "a@x.com",
		Role:     "user",
	}
}

func newIssuer(t *testing.T, options ...token.IssuerOption) *token.Issuer {
	t.Helper()
	i, err := token.NewIssuer(testIssuer, accessSecret, refreshSecret, options...)
	require.NoError(t, err)
	return i
}

func TestVerifyRoundTrip(t *testing.T) {
	issuer := newIssuer(t)

	raw, err := issuer.IssueAccessToken(testClaims())
	require.NoError(t, err)

	claims, err := issuer.Verify(raw, token.KindAccess)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, "tenant-1", claims.TenantID)
	require.Equal(t, "a@x.com", claims.Email)
	require.Equal(t, "user", claims.Role)
	require.False(t, claims.ExpiresAt.IsZero())
}

func TestVerifyExpired(t *testing.T) {
	now := time.Now()
	issuer := newIssuer(t, token.WithNowFunc(func() time.Time { return now }))

	raw, err := issuer.IssueAccessToken(testClaims())
	require.NoError(t, err)

	// Move the clock past the access expiry.
	now = now.Add(16 * time.Minute)
	_, err = issuer.Verify(raw, token.KindAccess)
	require.ErrorIs(t, err, token.ErrExpired)
}

func TestVerifyForeignKey(t *testing.T) {
	issuer := newIssuer(t)
	forged, err := token.NewIssuer(testIssuer, "other-access-secret", "other-refresh-secret")
	require.NoError(t, err)

	raw, err := forged.IssueAccessToken(testClaims())
	require.NoError(t, err)

	_, err = issuer.Verify(raw, token.KindAccess)
	require.ErrorIs(t, err, token.ErrInvalid)
}

func TestVerifyMalformed(t *testing.T) {
	issuer := newIssuer(t)

	for _, raw := range []string{"", "garbage", "a.b.c"} {
		_, err := issuer.Verify(raw, token.KindAccess)
		require.ErrorIs(t, err, token.ErrInvalid)
	}
}

func TestVerifyWrongKind(t *testing.T) {
	issuer := newIssuer(t)

	refresh, err := issuer.IssueRefreshToken(testClaims())
	require.NoError(t, err)
	_, err = issuer.Verify(refresh, token.KindAccess)
	require.ErrorIs(t, err, token.ErrWrongKind)

	access, err := issuer.IssueAccessToken(testClaims())
	require.NoError(t, err)
	_, err = issuer.Verify(access, token.KindRefresh)
	require.ErrorIs(t, err, token.ErrWrongKind)
}

func TestIssuePair(t *testing.T) {
	issuer := newIssuer(t, token.WithTokenExpiry(5*time.Minute, 24*time.Hour))

	pair, err := issuer.IssuePair(testClaims())
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	require.Equal(t, "Bearer", pair.TokenType)
	require.Equal(t, int64(300), pair.ExpiresIn)

	_, err = issuer.Verify(pair.AccessToken, token.KindAccess)
	require.NoError(t, err)
	_, err = issuer.Verify(pair.RefreshToken, token.KindRefresh)
	require.NoError(t, err)
}

func TestIdenticalSecretsRejected(t *testing.T) {
	_, err := token.NewIssuer(testIssuer, "same-secret", "same-secret")
	require.Error(t, err)
}

func TestHashIsStable(t *testing.T) {
	require.Equal(t, token.Hash("tok"), token.Hash("tok"))
	require.NotEqual(t, token.Hash("tok"), token.Hash("tok2"))
	require.Len(t, token.Hash("tok"), 64)
}
