package secrets_test

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/postloop/postloop/secrets"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	c, err := secrets.NewCipher("a-long-operator-secret-that-gets-stretched", "test")
	require.NoError(t, err)

	for _, plaintext := range []string{"", "tok-123", "a much longer oauth access token value with spaces", "ünïcode-tøken"} {
		sealed, err := c.Seal(plaintext)
		require.NoError(t, err)

		opened, err := c.Open(sealed)
		require.NoError(t, err)
		require.Equal(t, plaintext, opened)
	}
}

func TestSealUsesFreshNonce(t *testing.T) {
	c, err := secrets.NewCipher("a-long-operator-secret-that-gets-stretched", "test")
	require.NoError(t, err)

	first, err := c.Seal("tok-123")
	require.NoError(t, err)
	second, err := c.Seal("tok-123")
	require.NoError(t, err)

	require.NotEqual(t, first, second)
}

func TestCiphertextShape(t *testing.T) {
	c, err := secrets.NewCipher("a-long-operator-secret-that-gets-stretched", "test")
	require.NoError(t, err)

	sealed, err := c.Seal("tok-123")
	require.NoError(t, err)

	parts := strings.Split(sealed, ":")
	require.Len(t, parts, 3)
	nonce, err := hex.DecodeString(parts[0])
	require.NoError(t, err)
	require.Len(t, nonce, 12)
	tag, err := hex.DecodeString(parts[1])
	require.NoError(t, err)
	require.Len(t, tag, 16)
}

func TestOpenRejectsTamperedTag(t *testing.T) {
	c, err := secrets.NewCipher("a-long-operator-secret-that-gets-stretched", "test")
	require.NoError(t, err)

	sealed, err := c.Seal("tok-123")
	require.NoError(t, err)

	parts := strings.Split(sealed, ":")
	tag, err := hex.DecodeString(parts[1])
	require.NoError(t, err)
	tag[0] ^= 0x01
	tampered := parts[0] + ":" + hex.EncodeToString(tag) + ":" + parts[2]

	opened, err := c.Open(tampered)
	require.ErrorIs(t, err, secrets.ErrDecryptionFailed)
	require.Empty(t, opened)
}

func TestOpenRejectsMalformedInput(t *testing.T) {
	c, err := secrets.NewCipher("a-long-operator-secret-that-gets-stretched", "test")
	require.NoError(t, err)

	sealed, err := c.Seal("tok-123")
	require.NoError(t, err)
	parts := strings.Split(sealed, ":")

	for _, input := range []string{
		"",
		"not-a-ciphertext",
		"aa:bb",
		parts[0] + ":" + parts[1],                  // truncated: missing body
		"zz:" + parts[1] + ":" + parts[2],          // non-hex nonce
		parts[0][:10] + ":" + parts[1] + ":" + parts[2], // short nonce
	} {
		_, err := c.Open(input)
		require.ErrorIs(t, err, secrets.ErrDecryptionFailed, "input %q", input)
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	a, err := secrets.NewCipher("operator-secret-one", "test")
	require.NoError(t, err)
	b, err := secrets.NewCipher("operator-secret-two", "test")
	require.NoError(t, err)

	sealed, err := a.Seal("tok-123")
	require.NoError(t, err)

	_, err = b.Open(sealed)
	require.ErrorIs(t, err, secrets.ErrDecryptionFailed)
}

func TestMissingSecretFatalInProduction(t *testing.T) {
	_, err := secrets.NewCipher("", "production")
	require.Error(t, err)

	// Anywhere else the development fallback key applies.
	c, err := secrets.NewCipher("", "dev")
	require.NoError(t, err)
	sealed, err := c.Seal("tok-123")
	require.NoError(t, err)
	opened, err := c.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "tok-123", opened)
}

func TestDirect256BitKeyUsedAsIs(t *testing.T) {
	key := strings.Repeat("k", 32)
	a, err := secrets.NewCipher(key, "test")
	require.NoError(t, err)
	b, err := secrets.NewCipher(key, "test")
	require.NoError(t, err)

	sealed, err := a.Seal("tok-123")
	require.NoError(t, err)
	opened, err := b.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "tok-123", opened)
}
