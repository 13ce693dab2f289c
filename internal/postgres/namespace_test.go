package postgres_test

import (
	"strings"
	"testing"

	"github.com/postloop/postloop/internal/postgres"
	"github.com/stretchr/testify/require"
)

func TestValidIdent(t *testing.T) {
	require.NoError(t, postgres.ValidIdent("public"))
	require.NoError(t, postgres.ValidIdent("tenant_9f8c2d1e"))

	// Anything that could escape the schema qualifier position is rejected.
	require.Error(t, postgres.ValidIdent(""))
	require.Error(t, postgres.ValidIdent("Tenant"))
	require.Error(t, postgres.ValidIdent("1tenant"))
	require.Error(t, postgres.ValidIdent(`tenant";DROP SCHEMA public`))
	require.Error(t, postgres.ValidIdent("tenant-a"))
	require.Error(t, postgres.ValidIdent("a"+strings.Repeat("b", 63)))
}

func TestTable(t *testing.T) {
	require.Equal(t, "tenant_abc.sessions", postgres.Table("tenant_abc", "sessions"))
}
