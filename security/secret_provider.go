package security

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/goliatone/go-banklink/core"
)

const envelopePrefix = "banklink.secret.v1:"

const envelopeAlgorithm = "aes-256-gcm+hkdf"

type Option func(*KeyringSecretProvider)

// KeyringSecretProvider seals access tokens before they reach the database.
// New envelopes use the current key; envelopes written with a retired key
// version still open.
type KeyringSecretProvider struct {
	keyID   string
	current int
	aeads   map[int]cipher.AEAD
	err     error
}

type envelope struct {
	KeyID      string `json:"kid"`
	Version    int    `json:"ver"`
	Algorithm  string `json:"alg"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

func WithKeyID(id string) Option {
	return func(provider *KeyringSecretProvider) {
		trimmed := strings.TrimSpace(id)
		if trimmed != "" {
			provider.keyID = trimmed
		}
	}
}

func WithRetiredKeys(keys ...KeyVersion) Option {
	return func(provider *KeyringSecretProvider) {
		for _, key := range keys {
			if _, exists := provider.aeads[key.Version]; exists || key.Version <= 0 {
				provider.err = fmt.Errorf("security: retired key version %d is invalid or duplicated", key.Version)
				return
			}
			aead, err := newStorageAEAD(key.Material)
			if err != nil {
				provider.err = fmt.Errorf("security: retired key version %d: %w", key.Version, err)
				return
			}
			provider.aeads[key.Version] = aead
		}
	}
}

func NewKeyringSecretProvider(material []byte, version int, opts ...Option) (*KeyringSecretProvider, error) {
	if version <= 0 {
		return nil, fmt.Errorf("security: key version must be positive")
	}
	aead, err := newStorageAEAD(material)
	if err != nil {
		return nil, err
	}
	provider := &KeyringSecretProvider{
		keyID:   "storage-key",
		current: version,
		aeads:   map[int]cipher.AEAD{version: aead},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(provider)
	}
	if provider.err != nil {
		return nil, provider.err
	}
	return provider, nil
}

func NewKeyringSecretProviderFromString(key string, opts ...Option) (*KeyringSecretProvider, error) {
	return NewKeyringSecretProvider([]byte(key), 1, opts...)
}

func newStorageAEAD(material []byte) (cipher.AEAD, error) {
	validated, err := validateKeyMaterial(material)
	if err != nil {
		return nil, err
	}
	key, err := deriveKey(validated, "storage/access-token")
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return aead, nil
}

func (p *KeyringSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	aead := p.aeads[p.current]
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}

	data, err := json.Marshal(envelope{
		KeyID:      p.keyID,
		Version:    p.current,
		Algorithm:  envelopeAlgorithm,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(aead.Seal(nil, nonce, plaintext, p.additionalData(p.current))),
	})
	if err != nil {
		return nil, fmt.Errorf("security: encode envelope: %w", err)
	}
	return append([]byte(envelopePrefix), data...), nil
}

func (p *KeyringSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	payload, found := strings.CutPrefix(string(ciphertext), envelopePrefix)
	if !found {
		return nil, fmt.Errorf("security: ciphertext is not a banklink envelope")
	}

	var parsed envelope
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, fmt.Errorf("security: decode envelope: %w", err)
	}
	if parsed.KeyID != p.keyID {
		return nil, fmt.Errorf("security: key id mismatch: got %q want %q", parsed.KeyID, p.keyID)
	}
	aead, ok := p.aeads[parsed.Version]
	if !ok {
		return nil, fmt.Errorf("security: key version %d is not in the keyring", parsed.Version)
	}

	nonce, err := base64.StdEncoding.DecodeString(parsed.Nonce)
	if err != nil || len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("security: decode nonce failed")
	}
	sealed, err := base64.StdEncoding.DecodeString(parsed.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("security: decode ciphertext payload: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, sealed, p.additionalData(parsed.Version))
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

// NeedsRotation reports whether an envelope was sealed with a retired key.
func (p *KeyringSecretProvider) NeedsRotation(ciphertext []byte) bool {
	payload, found := strings.CutPrefix(string(ciphertext), envelopePrefix)
	if !found {
		return true
	}
	var parsed envelope
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return true
	}
	return parsed.Version != p.current
}

func (p *KeyringSecretProvider) Metadata() (string, int) {
	if p == nil {
		return "", 0
	}
	return p.keyID, p.current
}

func (p *KeyringSecretProvider) additionalData(version int) []byte {
	return []byte(fmt.Sprintf("%s/%d", p.keyID, version))
}

var _ core.SecretProvider = (*KeyringSecretProvider)(nil)
