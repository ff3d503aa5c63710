// Package cipher implements the authenticated symmetric encryption used by
// the secret vault. Values are encoded as the literal prefix "VAULT:"
// followed by the base64 encoding of IV || ciphertext || tag (AES-256-GCM,
// 12-byte IV, 16-byte tag).
package cipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/vatsan127/config-server/cerrors"
)

const (
	// Prefix marks a value as an encrypted vault entry.
	Prefix = "VAULT:"

	keyLen   = 32 // AES-256
	nonceLen = 12 // GCM standard nonce size
)

// Cipher encrypts and decrypts vault values with a single 256-bit key held
// for the lifetime of the process.
type Cipher struct {
	key []byte
}

// New builds a Cipher from a base64-encoded 256-bit key. defaultKey is used
// when key is empty, and triggers a startup warning since it is not safe
// for production use.
func New(key, defaultKey string) (*Cipher, error) {
	source := key
	usingDefault := false
	if strings.TrimSpace(source) == "" {
		source = defaultKey
		usingDefault = true
	}
	if strings.TrimSpace(source) == "" {
		return nil, cerrors.New(cerrors.CodeKeyLoadFailed, "no vault master key configured")
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(source))
	if err != nil {
		return nil, cerrors.Wrap(cerrors.CodeKeyLoadFailed, "invalid base64 in vault master key", err)
	}
	if len(raw) != keyLen {
		return nil, cerrors.New(cerrors.CodeKeyLoadFailed, "vault master key must decode to 32 bytes")
	}

	if usingDefault {
		logrus.Warn("using default vault master key from configuration; set VAULT_MASTER_KEY for production")
	}

	return &Cipher{key: raw}, nil
}

// Encrypt produces a "VAULT:"-prefixed envelope for plaintext. Empty or
// whitespace-only input is rejected.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if strings.TrimSpace(plaintext) == "" {
		return "", cerrors.New(cerrors.CodeEncryptionFailed, "cannot encrypt empty value")
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", cerrors.Wrap(cerrors.CodeEncryptionFailed, "failed to initialize cipher", err)
	}
	gcm, err := cipher.NewGCMWithTagSize(block, 16)
	if err != nil {
		return "", cerrors.Wrap(cerrors.CodeEncryptionFailed, "failed to initialize GCM", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", cerrors.Wrap(cerrors.CodeEncryptionFailed, "failed to generate IV", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	envelope := append(nonce, sealed...)
	return Prefix + base64.StdEncoding.EncodeToString(envelope), nil
}

// Decrypt reverses Encrypt. A value lacking the Prefix is returned
// unchanged, matching the vault's "plaintext if not ours" compatibility
// rule.
func (c *Cipher) Decrypt(value string) (string, error) {
	if !c.IsEncrypted(value) {
		return value, nil
	}

	encoded := strings.TrimPrefix(value, Prefix)
	envelope, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", cerrors.Wrap(cerrors.CodeDecryptionFailed, "invalid base64 envelope", err)
	}
	if len(envelope) < nonceLen {
		return "", cerrors.New(cerrors.CodeDecryptionFailed, "envelope shorter than IV")
	}
	nonce, ciphertext := envelope[:nonceLen], envelope[nonceLen:]

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", cerrors.Wrap(cerrors.CodeDecryptionFailed, "failed to initialize cipher", err)
	}
	gcm, err := cipher.NewGCMWithTagSize(block, 16)
	if err != nil {
		return "", cerrors.Wrap(cerrors.CodeDecryptionFailed, "failed to initialize GCM", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", cerrors.Wrap(cerrors.CodeDecryptionFailed, "authentication failed", err)
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether value carries the vault envelope prefix.
func (c *Cipher) IsEncrypted(value string) bool {
	return strings.HasPrefix(value, Prefix)
}
