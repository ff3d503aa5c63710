package secretproc_test

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vatsan127/config-server/cache"
	"github.com/vatsan127/config-server/cipher"
	"github.com/vatsan127/config-server/gitrepo"
	"github.com/vatsan127/config-server/secretproc"
	"github.com/vatsan127/config-server/vault"
)

func newProcessor(t *testing.T) *secretproc.Processor {
	t.Helper()
	base := t.TempDir()
	gw := gitrepo.New(base)
	require.NoError(t, gw.CreateNamespace(context.Background(), "prod"))

	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	ciph, err := cipher.New(key, "")
	require.NoError(t, err)

	store := vault.New(gw, ciph, cache.New(10, time.Minute))
	_, err = store.Update(context.Background(), "prod", map[string]string{"db.password": "s3cret"}, "dev@example.com", "seed")
	require.NoError(t, err)

	return secretproc.New(store)
}

func TestProcessForInternalRedactsVaultLeaves(t *testing.T) {
	p := newProcessor(t)
	yamlText := "db:\n  password: stub\n  host: localhost\n"

	out := p.ProcessForInternal(context.Background(), "prod", yamlText)

	require.Contains(t, out, secretproc.Sentinel)
	require.Contains(t, out, "localhost")
	require.NotContains(t, out, "stub")
}

func TestProcessForClientSubstitutesDecryptedValues(t *testing.T) {
	p := newProcessor(t)
	yamlText := "db:\n  password: stub\n"

	out := p.ProcessForClient(context.Background(), "prod", yamlText)

	require.Contains(t, out, "s3cret")
}

func TestRoundTripClientAfterInternal(t *testing.T) {
	p := newProcessor(t)
	original := "db:\n  password: stub\n  host: localhost\n"

	redacted := p.ProcessForInternal(context.Background(), "prod", original)
	resolved := p.ProcessForClient(context.Background(), "prod", redacted)

	require.Contains(t, resolved, "s3cret")
	require.Contains(t, resolved, "localhost")
}
