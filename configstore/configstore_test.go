package configstore_test

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vatsan127/config-server/cache"
	"github.com/vatsan127/config-server/cipher"
	"github.com/vatsan127/config-server/configstore"
	"github.com/vatsan127/config-server/gitrepo"
	"github.com/vatsan127/config-server/secretproc"
	"github.com/vatsan127/config-server/vault"
)

func newStore(t *testing.T) (*configstore.Store, *gitrepo.Gateway) {
	t.Helper()
	base := t.TempDir()
	gw := gitrepo.New(base)
	require.NoError(t, gw.CreateNamespace(context.Background(), "prod"))

	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	ciph, err := cipher.New(key, "")
	require.NoError(t, err)

	c := cache.New(10, time.Minute)
	vs := vault.New(gw, ciph, c)
	sp := secretproc.New(vs)
	return configstore.New(gw, c, sp, 20), gw
}

func TestInitializeThenReadRoundTrips(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	_, err := store.Initialize(ctx, "prod/service-a", "service-a", "dev@example.com")
	require.NoError(t, err)

	content, err := store.Read(ctx, "prod/service-a")
	require.NoError(t, err)
	require.Contains(t, content, "service-a")
}

func TestInitializeTwiceFails(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	_, err := store.Initialize(ctx, "prod/service-a", "service-a", "dev@example.com")
	require.NoError(t, err)

	_, err = store.Initialize(ctx, "prod/service-a", "service-a", "dev@example.com")
	require.Error(t, err)
}

func TestUpdateRejectsStaleCommitID(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	commitID, err := store.Initialize(ctx, "prod/service-a", "service-a", "dev@example.com")
	require.NoError(t, err)

	_, err = store.Update(ctx, "prod/service-a", "application:\n  name: service-a\nconfig:\n  x: 1\n", "update x", commitID, "dev@example.com", "service-a")
	require.NoError(t, err)

	// Reusing the now-stale commitID must fail the optimistic-lock check.
	_, err = store.Update(ctx, "prod/service-a", "application:\n  name: service-a\nconfig:\n  x: 2\n", "update x again", commitID, "dev@example.com", "service-a")
	require.Error(t, err)
}

func TestDeleteRemovesFile(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	_, err := store.Initialize(ctx, "prod/service-a", "service-a", "dev@example.com")
	require.NoError(t, err)

	_, err = store.Delete(ctx, "prod/service-a", "remove service-a", "dev@example.com")
	require.NoError(t, err)

	_, err = store.Read(ctx, "prod/service-a")
	require.Error(t, err)
}

func TestListDirectoryAndNamespaces(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	_, err := store.Initialize(ctx, "prod/service-a", "service-a", "dev@example.com")
	require.NoError(t, err)

	entries, err := store.ListDirectory(ctx, "prod", "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "service-a", entries[0].Name)

	namespaces, err := store.ListNamespaces(ctx)
	require.NoError(t, err)
	require.Contains(t, namespaces, "prod")
}

func TestCreateNamespaceThenDeleteRemovesIt(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateNamespace(ctx, "staging"))

	namespaces, err := store.ListNamespaces(ctx)
	require.NoError(t, err)
	require.Contains(t, namespaces, "staging")

	require.NoError(t, store.DeleteNamespace(ctx, "staging"))

	namespaces, err = store.ListNamespaces(ctx)
	require.NoError(t, err)
	require.NotContains(t, namespaces, "staging")
}

func TestCreateNamespaceRejectsReservedName(t *testing.T) {
	store, _ := newStore(t)
	err := store.CreateNamespace(context.Background(), "admin")
	require.Error(t, err)
}

func TestHistoryAndCommitChanges(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	commitID, err := store.Initialize(ctx, "prod/service-a", "service-a", "dev@example.com")
	require.NoError(t, err)

	history, err := store.History(ctx, "prod/service-a")
	require.NoError(t, err)
	require.Len(t, history, 1)

	record, diff, err := store.CommitChanges(ctx, "prod", commitID)
	require.NoError(t, err)
	require.Equal(t, commitID, record.CommitID)
	require.NotContains(t, diff, "diff --git")
}
