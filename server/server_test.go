package server_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vatsan127/config-server/cache"
	"github.com/vatsan127/config-server/cipher"
	"github.com/vatsan127/config-server/configstore"
	"github.com/vatsan127/config-server/gitrepo"
	"github.com/vatsan127/config-server/notify"
	"github.com/vatsan127/config-server/resolver"
	"github.com/vatsan127/config-server/secretproc"
	"github.com/vatsan127/config-server/server"
	"github.com/vatsan127/config-server/vault"
)

func newTestServer(t *testing.T) *server.Server {
	t.Helper()
	base := t.TempDir()
	gw := gitrepo.New(base)

	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	ciph, err := cipher.New(key, "")
	require.NoError(t, err)

	c := cache.New(10, time.Minute)
	vs := vault.New(gw, ciph, c)
	sp := secretproc.New(vs)
	configs := configstore.New(gw, c, sp, 20)
	resolve := resolver.New(configs, sp)

	notifyStore := notify.NewStore()
	notifier := notify.New(notifyStore, 1, func(string) (string, bool) { return "", false })
	t.Cleanup(func() { notifier.Shutdown(context.Background(), nil) })

	return server.New(configs, vs, resolve, notifier)
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestNamespaceCreateListDelete(t *testing.T) {
	srv := newTestServer(t)
	mux := startMux(t, srv)

	rec := doJSON(t, mux, http.MethodPost, "/namespace/create", map[string]string{"namespace": "prod"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/namespace/list", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listResp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	require.Contains(t, listResp["namespaces"], "prod")

	rec = doJSON(t, mux, http.MethodPost, "/namespace/delete", map[string]string{"namespace": "prod"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestConfigCreateFetchUpdate(t *testing.T) {
	srv := newTestServer(t)
	mux := startMux(t, srv)

	doJSON(t, mux, http.MethodPost, "/namespace/create", map[string]string{"namespace": "prod"})

	rec := doJSON(t, mux, http.MethodPost, "/config/create", map[string]string{
		"action": "create", "namespace": "prod", "path": "service-a", "appName": "service-a", "email": "dev@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var createResp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &createResp))
	commitID := createResp["commitId"]
	require.NotEmpty(t, commitID)

	rec = doJSON(t, mux, http.MethodPost, "/config/fetch", map[string]string{
		"action": "fetch", "namespace": "prod", "path": "service-a",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/config/update", map[string]string{
		"action": "update", "namespace": "prod", "path": "service-a", "appName": "service-a",
		"email": "dev@example.com", "message": "update", "commitId": commitID,
		"content": "application:\n  name: service-a\nconfig:\n  x: 1\n",
	})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestVaultUpdateRedactsValuesFromGet(t *testing.T) {
	srv := newTestServer(t)
	mux := startMux(t, srv)

	doJSON(t, mux, http.MethodPost, "/namespace/create", map[string]string{"namespace": "prod"})

	rec := doJSON(t, mux, http.MethodPost, "/vault/update", map[string]any{
		"namespace": "prod", "email": "dev@example.com", "commitMessage": "add secret",
		"config.password": "secret123",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/vault/get", map[string]string{"namespace": "prod"})
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	keys, ok := body["keys"].([]any)
	require.True(t, ok)
	require.Contains(t, keys, "config.password")
	require.NotContains(t, rec.Body.String(), "secret123")
}

func startMux(t *testing.T, srv *server.Server) http.Handler {
	t.Helper()
	return srv.Handler()
}
