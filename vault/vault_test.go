package vault_test

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vatsan127/config-server/cache"
	"github.com/vatsan127/config-server/cipher"
	"github.com/vatsan127/config-server/gitrepo"
	"github.com/vatsan127/config-server/vault"
)

func testKey(t *testing.T) string {
	t.Helper()
	return base64.StdEncoding.EncodeToString(make([]byte, 32))
}

func newTestStore(t *testing.T) (*vault.Store, *gitrepo.Gateway, string) {
	t.Helper()
	base := t.TempDir()
	gw := gitrepo.New(base)
	require.NoError(t, gw.CreateNamespace(context.Background(), "prod"))

	ciph, err := cipher.New(testKey(t), "")
	require.NoError(t, err)

	c := cache.New(10, time.Minute)
	return vault.New(gw, ciph, c), gw, base
}

func TestUpdateThenGetRoundTrips(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Update(ctx, "prod", map[string]string{"db.password": "s3cret"}, "dev@example.com", "set db password")
	require.NoError(t, err)

	secrets, err := store.Get(ctx, "prod")
	require.NoError(t, err)
	require.Equal(t, "s3cret", secrets["db.password"])
}

func TestUpdatePersistsEncryptedValuesOnDisk(t *testing.T) {
	store, _, base := newTestStore(t)
	ctx := context.Background()

	_, err := store.Update(ctx, "prod", map[string]string{"db.password": "s3cret"}, "dev@example.com", "set db password")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(base, "prod", ".vault", "prod-vault.json"))
	require.NoError(t, err)
	require.Contains(t, string(data), "VAULT:")
	require.NotContains(t, string(data), "s3cret")
}

func TestUpdateWithEmptyMapErasesSecrets(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Update(ctx, "prod", map[string]string{"a": "1"}, "dev@example.com", "add")
	require.NoError(t, err)

	_, err = store.Update(ctx, "prod", map[string]string{}, "dev@example.com", "erase")
	require.NoError(t, err)

	secrets, err := store.Get(ctx, "prod")
	require.NoError(t, err)
	require.Empty(t, secrets)
}

func TestGetOnMissingVaultFileReturnsEmptyMap(t *testing.T) {
	store, _, _ := newTestStore(t)
	secrets, err := store.Get(context.Background(), "prod")
	require.NoError(t, err)
	require.Empty(t, secrets)
}
