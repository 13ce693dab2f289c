package credentials_test

import (
	"context"
	"testing"
	"time"

	"github.com/postloop/postloop/credentials"
	"github.com/postloop/postloop/credentials/repofakes"
	"github.com/postloop/postloop/platforms"
	"github.com/postloop/postloop/secrets"
	"github.com/postloop/postloop/tenants"
	"github.com/stretchr/testify/require"
)

var (
	tenantA = tenants.Context{TenantID: "tenant-a", Namespace: "tenant_a"}
	tenantB = tenants.Context{TenantID: "tenant-b", Namespace: "tenant_b"}
)

func setupVault(t *testing.T) (*credentials.Vault, *repofakes.FakeCredentialRepo) {
	t.Helper()

	cipher, err := secrets.NewCipher("vault-test-operator-secret", "test")
	require.NoError(t, err)

	repo := repofakes.NewFakeCredentialRepo()
	vault, err := credentials.NewVault(repo, cipher)
	require.NoError(t, err)
	return vault, repo
}

func saveInput() credentials.SaveInput {
	return credentials.SaveInput{
		UserID:      "user-1",
		Provider:    platforms.ProviderTwitter,
		ExternalID:  "12345",
		Username:    "acme_social",
		AccessToken: "tok-123",
		Scopes:      []string{"tweet.read", "tweet.write"},
		Label:       "Main account",
	}
}

func TestSaveEncryptsAtRest(t *testing.T) {
	vault, repo := setupVault(t)

	saved, err := vault.Save(context.Background(), tenantA, saveInput())
	require.NoError(t, err)

	// The stored row never contains the plaintext.
	stored, err := repo.GetByID(context.Background(), tenantA, saved.ID)
	require.NoError(t, err)
	require.NotEqual(t, "tok-123", stored.AccessSecret)
	require.NotEmpty(t, stored.AccessSecret)

	decrypted, err := vault.GetByID(context.Background(), tenantA, saved.ID)
	require.NoError(t, err)
	require.NotNil(t, decrypted)
	require.Equal(t, "tok-123", decrypted.AccessToken)
}

func TestSaveUpsertsByUniquenessKey(t *testing.T) {
	vault, _ := setupVault(t)

	first, err := vault.Save(context.Background(), tenantA, saveInput())
	require.NoError(t, err)

	// Same (user, provider, external account): updated in place, not duplicated.
	input := saveInput()
	input.AccessToken = "tok-456"
	second, err := vault.Save(context.Background(), tenantA, input)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Greater(t, second.Version, first.Version)

	list, err := vault.ListForUser(context.Background(), tenantA, "user-1", "")
	require.NoError(t, err)
	require.Len(t, list, 1)

	decrypted, err := vault.GetByID(context.Background(), tenantA, first.ID)
	require.NoError(t, err)
	require.Equal(t, "tok-456", decrypted.AccessToken)
}

func TestSaveReEncryptsWithFreshNonce(t *testing.T) {
	vault, repo := setupVault(t)

	saved, err := vault.Save(context.Background(), tenantA, saveInput())
	require.NoError(t, err)
	firstCT := saved.AccessSecret

	again, err := vault.Save(context.Background(), tenantA, saveInput())
	require.NoError(t, err)

	stored, err := repo.GetByID(context.Background(), tenantA, again.ID)
	require.NoError(t, err)
	require.NotEqual(t, firstCT, stored.AccessSecret)
}

func TestTenantIsolation(t *testing.T) {
	vault, _ := setupVault(t)

	saved, err := vault.Save(context.Background(), tenantA, saveInput())
	require.NoError(t, err)

	// The same ID under another tenant's namespace yields not-found.
	_, err = vault.GetByID(context.Background(), tenantB, saved.ID)
	require.ErrorIs(t, err, credentials.ErrNotFound)

	list, err := vault.ListForUser(context.Background(), tenantB, "user-1", "")
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestPublicContextRejected(t *testing.T) {
	vault, _ := setupVault(t)

	_, err := vault.Save(context.Background(), tenants.Public, saveInput())
	require.ErrorIs(t, err, tenants.ErrContextMissing)

	_, err = vault.GetByID(context.Background(), tenants.Context{}, "any")
	require.ErrorIs(t, err, tenants.ErrContextMissing)
}

func TestGetByIDCorruptedRowDegrades(t *testing.T) {
	vault, repo := setupVault(t)

	saved, err := vault.Save(context.Background(), tenantA, saveInput())
	require.NoError(t, err)

	// Corrupt the stored ciphertext directly.
	stored, err := repo.GetByID(context.Background(), tenantA, saved.ID)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateSecrets(context.Background(), tenantA, saved.ID, credentials.SecretUpdate{
		AccessSecret: "garbage-ciphertext",
		Version:      stored.Version,
	}))

	decrypted, err := vault.GetByID(context.Background(), tenantA, saved.ID)
	require.NoError(t, err)
	require.Nil(t, decrypted)
}

func TestListForUserNeverIncludesSecrets(t *testing.T) {
	vault, _ := setupVault(t)

	input := saveInput()
	input.RefreshToken = "refresh-tok"
	_, err := vault.Save(context.Background(), tenantA, input)
	require.NoError(t, err)

	list, err := vault.ListForUser(context.Background(), tenantA, "user-1", platforms.ProviderTwitter)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Empty(t, list[0].AccessSecret)
	require.Empty(t, list[0].RefreshSecret)
}

func TestRelabelAndCount(t *testing.T) {
	vault, _ := setupVault(t)

	saved, err := vault.Save(context.Background(), tenantA, saveInput())
	require.NoError(t, err)

	require.NoError(t, vault.Relabel(context.Background(), tenantA, saved.ID, "Brand account"))
	list, err := vault.ListForUser(context.Background(), tenantA, "user-1", "")
	require.NoError(t, err)
	require.Equal(t, "Brand account", list[0].Label)

	count, err := vault.CountForUser(context.Background(), tenantA, "user-1", platforms.ProviderTwitter)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	count, err = vault.CountForUser(context.Background(), tenantA, "user-1", platforms.ProviderLinkedIn)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestUpdateSecretsVersionConflict(t *testing.T) {
	vault, repo := setupVault(t)

	saved, err := vault.Save(context.Background(), tenantA, saveInput())
	require.NoError(t, err)
	stored, err := repo.GetByID(context.Background(), tenantA, saved.ID)
	require.NoError(t, err)

	require.NoError(t, vault.UpdateSecrets(context.Background(), tenantA, saved.ID, stored.Version, "tok-new", "", nil))

	// A second writer holding the stale version loses.
	err = vault.UpdateSecrets(context.Background(), tenantA, saved.ID, stored.Version, "tok-racer", "", nil)
	require.ErrorIs(t, err, credentials.ErrRefreshConflict)

	decrypted, err := vault.GetByID(context.Background(), tenantA, saved.ID)
	require.NoError(t, err)
	require.Equal(t, "tok-new", decrypted.AccessToken)
}

// slowRevokeAdapter simulates a provider whose revocation endpoint hangs.
type slowRevokeAdapter struct {
	platforms.Adapter
}

func (a *slowRevokeAdapter) Name() string                        { return "slow" }
func (a *slowRevokeAdapter) Behavior() platforms.RefreshBehavior { return platforms.StaticRefresh }

func (a *slowRevokeAdapter) Revoke(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestDisconnectSurvivesRevokeTimeout(t *testing.T) {
	cipher, err := secrets.NewCipher("vault-test-operator-secret", "test")
	require.NoError(t, err)
	repo := repofakes.NewFakeCredentialRepo()
	vault, err := credentials.NewVault(repo, cipher, credentials.WithRevokeTimeout(10*time.Millisecond))
	require.NoError(t, err)

	saved, err := vault.Save(context.Background(), tenantA, saveInput())
	require.NoError(t, err)

	err = vault.Disconnect(context.Background(), tenantA, saved.ID, &slowRevokeAdapter{})
	require.NoError(t, err)

	_, err = vault.GetByID(context.Background(), tenantA, saved.ID)
	require.ErrorIs(t, err, credentials.ErrNotFound)
}
