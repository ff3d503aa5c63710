// Package vault implements the per-namespace secret store: a JSON file
// under <namespace>/.vault/ mapping validated secret keys to cipher.Cipher
// envelopes.
package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vatsan127/config-server/cache"
	"github.com/vatsan127/config-server/cerrors"
	"github.com/vatsan127/config-server/cipher"
	"github.com/vatsan127/config-server/gitrepo"
	"github.com/vatsan127/config-server/validator"
)

// Store loads, mutates, and persists namespace vaults.
type Store struct {
	gateway *gitrepo.Gateway
	cipher  *cipher.Cipher
	cache   *cache.Cache
}

// New builds a Store over gateway and cipher, using c for vault-secrets
// caching.
func New(gateway *gitrepo.Gateway, ciph *cipher.Cipher, c *cache.Cache) *Store {
	return &Store{gateway: gateway, cipher: ciph, cache: c}
}

func vaultRelPath(ns string) string {
	return fmt.Sprintf(".vault/%s-vault.json", ns)
}

// Get returns the decrypted secret map for ns. A missing vault file is an
// empty map, not an error. The result is cached under vault-secrets[ns] for
// the lifetime of one cache TTL window; callers within the same resolution
// call should treat repeated Get calls as consistent.
func (s *Store) Get(ctx context.Context, ns string) (map[string]string, error) {
	if v, ok := s.cache.Get(cache.VaultSecrets, ns); ok {
		return v.(map[string]string), nil
	}

	decrypted, err := gitrepo.WithRepo(ctx, s.gateway, ns, func(h *gitrepo.Handle) (map[string]string, error) {
		return s.loadDecrypted(h, ns)
	})
	if err != nil {
		return nil, err
	}

	s.cache.Put(cache.VaultSecrets, ns, decrypted)
	return decrypted, nil
}

func (s *Store) loadDecrypted(h *gitrepo.Handle, ns string) (map[string]string, error) {
	raw, err := readEncryptedMap(h, ns)
	if err != nil {
		return nil, err
	}

	decrypted := make(map[string]string, len(raw))
	for k, v := range raw {
		plain, err := s.cipher.Decrypt(v)
		if err != nil {
			return nil, err
		}
		decrypted[k] = plain
	}
	return decrypted, nil
}

func readEncryptedMap(h *gitrepo.Handle, ns string) (map[string]string, error) {
	rel := vaultRelPath(ns)
	if !h.Exists(rel) {
		return map[string]string{}, nil
	}
	data, err := h.ReadFile(rel)
	if err != nil {
		return nil, err
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, cerrors.Wrap(cerrors.CodeVaultOperationFailed, "vault file is not a valid JSON object", err)
	}
	return raw, nil
}

// Update fully replaces ns's secret map: every key is validated, every
// value encrypted, and the result is written, staged, and committed. Keys
// absent from secrets are removed from the persisted vault.
func (s *Store) Update(ctx context.Context, ns string, secrets map[string]string, email, message string) (string, error) {
	encrypted := make(map[string]string, len(secrets))
	for k, v := range secrets {
		if err := validator.ValidateSecretKey(k); err != nil {
			return "", err
		}
		enc, err := s.cipher.Encrypt(v)
		if err != nil {
			return "", err
		}
		encrypted[k] = enc
	}

	body, err := marshalPretty(encrypted)
	if err != nil {
		return "", cerrors.Wrap(cerrors.CodeVaultOperationFailed, "failed to marshal vault file", err)
	}

	commitID, err := gitrepo.WithRepo(ctx, s.gateway, ns, func(h *gitrepo.Handle) (string, error) {
		rel := vaultRelPath(ns)
		if err := h.WriteFile(rel, body); err != nil {
			return "", err
		}
		who := gitrepo.NewSignature(email, time.Now())
		return h.StageAndCommit(rel, message, who)
	})
	if err != nil {
		return "", err
	}

	s.cache.Invalidate(cache.EventVaultUpdated, ns, "")
	return commitID, nil
}

// marshalPretty renders m as pretty-printed JSON. encoding/json serializes
// map keys in sorted order already, matching the spec's "pretty-printed
// JSON" requirement with no extra bookkeeping.
func marshalPretty(m map[string]string) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
