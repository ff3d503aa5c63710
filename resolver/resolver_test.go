package resolver_test

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vatsan127/config-server/cache"
	"github.com/vatsan127/config-server/cerrors"
	"github.com/vatsan127/config-server/cipher"
	"github.com/vatsan127/config-server/configstore"
	"github.com/vatsan127/config-server/gitrepo"
	"github.com/vatsan127/config-server/resolver"
	"github.com/vatsan127/config-server/secretproc"
	"github.com/vatsan127/config-server/vault"
)

func newResolver(t *testing.T) (*resolver.Resolver, *configstore.Store, *vault.Store) {
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
	store := configstore.New(gw, c, sp, 20)
	return resolver.New(store, sp), store, vs
}

// writeFile initializes path with the default template, then overwrites it
// with content, returning the resulting commit ID.
func writeFile(t *testing.T, store *configstore.Store, path, appName, content string) string {
	t.Helper()
	ctx := context.Background()
	commitID, err := store.Initialize(ctx, path, appName, "dev@example.com")
	require.NoError(t, err)

	result, err := store.Update(ctx, path, content, "write content", commitID, "dev@example.com", appName)
	require.NoError(t, err)
	return result.CommitID
}

func TestResolveMergesNamespaceApplicationAndProfileSources(t *testing.T) {
	res, store, vs := newResolver(t)
	ctx := context.Background()

	writeFile(t, store, "prod/application.yml", "application", "config:\n  common: base\n")
	commitID := writeFile(t, store, "prod/service-a.yml", "service-a",
		"application:\n  name: service-a\nconfig:\n  password: "+secretproc.Sentinel+"\n  own: own-value\n")

	_, err := vs.Update(ctx, "prod", map[string]string{"config.password": "secret123"}, "dev@example.com", "add password")
	require.NoError(t, err)

	result, err := res.Resolve(ctx, "service-a", "", "prod")
	require.NoError(t, err)
	require.Len(t, result.PropertySources, 1)
	require.Equal(t, commitID, result.Version)

	source := result.PropertySources[0].Source
	require.Equal(t, "base", source["config.common"])
	require.Equal(t, "own-value", source["config.own"])
	require.Equal(t, "secret123", source["config.password"])
}

func TestResolveWithProfileOverlaysMergeOrder(t *testing.T) {
	res, store, _ := newResolver(t)

	commitID := writeFile(t, store, "prod/service-a.yml", "service-a",
		"application:\n  name: service-a\nconfig:\n  value: base\n")
	writeFile(t, store, "prod/service-a-qa.yml", "service-a-qa", "config:\n  value: qa-override\n")

	result, err := res.Resolve(context.Background(), "service-a", "qa", "prod")
	require.NoError(t, err)
	require.Equal(t, commitID, result.Version)
	require.Equal(t, "qa-override", result.PropertySources[0].Source["config.value"])
}

func TestResolveWithNoSourcesReturnsConfigFileNotFound(t *testing.T) {
	res, _, _ := newResolver(t)
	_, err := res.Resolve(context.Background(), "missing-app", "", "prod")
	require.Error(t, err)
	require.Equal(t, cerrors.CodeConfigFileNotFound, cerrors.CodeOf(err))
}

func TestResolveSkipsDefaultProfileSegment(t *testing.T) {
	res, store, _ := newResolver(t)

	commitID := writeFile(t, store, "prod/service-a.yml", "service-a",
		"application:\n  name: service-a\nconfig:\n  value: base\n")

	result, err := res.Resolve(context.Background(), "service-a", "default", "prod")
	require.NoError(t, err)
	require.Equal(t, commitID, result.Version)
	require.Equal(t, "base", result.PropertySources[0].Source["config.value"])
}
