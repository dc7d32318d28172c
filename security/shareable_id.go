package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-banklink/core"
)

var ErrMalformedShareableID = errors.New("security: malformed shareable id")

const shareableNonceSize = 12

// ShareableIDCodec turns upstream account ids into opaque, URL safe ids.
//
// The nonce is an HMAC of the plaintext, so encoding is deterministic and the
// GCM tag authenticates the result. Equal account ids yield equal shareable
// ids: the raw id is hidden, its equality is not. The first byte carries the
// key version and retired versions still decode.
type ShareableIDCodec struct {
	current int
	keys    map[int]shareableKey
}

type shareableKey struct {
	aead   cipher.AEAD
	macKey []byte
}

// NewShareableIDCodec fails with a LINK_OBSCURING_KEY_ERROR envelope when the
// key is missing or shorter than MinKeyMaterialLength.
func NewShareableIDCodec(material []byte, version int, retired ...KeyVersion) (*ShareableIDCodec, error) {
	if version <= 0 || version > 255 {
		return nil, core.ObscuringKeyError(fmt.Errorf("security: key version %d is out of range", version))
	}
	codec := &ShareableIDCodec{current: version, keys: map[int]shareableKey{}}
	all := append([]KeyVersion{{Version: version, Material: material}}, retired...)
	for _, entry := range all {
		if _, exists := codec.keys[entry.Version]; exists {
			return nil, core.ObscuringKeyError(fmt.Errorf("security: key version %d configured twice", entry.Version))
		}
		key, err := newShareableKey(entry.Material)
		if err != nil {
			return nil, core.ObscuringKeyError(err)
		}
		codec.keys[entry.Version] = key
	}
	return codec, nil
}

// NewShareableIDCodecFromConfig builds the codec from the security section.
func NewShareableIDCodecFromConfig(cfg core.SecurityConfig) (*ShareableIDCodec, error) {
	retired, err := ParseRetiredKeys(cfg.RetiredShareableKeys)
	if err != nil {
		return nil, core.ObscuringKeyError(err)
	}
	return NewShareableIDCodec([]byte(cfg.ShareableKey), cfg.ShareableKeyVersion, retired...)
}

func newShareableKey(material []byte) (shareableKey, error) {
	validated, err := validateKeyMaterial(material)
	if err != nil {
		return shareableKey{}, err
	}
	encKey, err := deriveKey(validated, "shareable-id/enc")
	if err != nil {
		return shareableKey{}, err
	}
	macKey, err := deriveKey(validated, "shareable-id/mac")
	if err != nil {
		return shareableKey{}, err
	}
	block, err := aes.NewCipher(encKey)
	if err != nil {
		return shareableKey{}, fmt.Errorf("security: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return shareableKey{}, fmt.Errorf("security: create gcm: %w", err)
	}
	return shareableKey{aead: aead, macKey: macKey}, nil
}

func (c *ShareableIDCodec) Encrypt(accountID string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("security: shareable id codec is nil")
	}
	if strings.TrimSpace(accountID) == "" {
		return "", fmt.Errorf("security: account id is required")
	}
	key := c.keys[c.current]
	header := []byte{byte(c.current)}
	nonce := key.syntheticNonce(header, accountID)

	out := make([]byte, 0, 1+shareableNonceSize+len(accountID)+key.aead.Overhead())
	out = append(out, header...)
	out = append(out, nonce...)
	out = key.aead.Seal(out, nonce, []byte(accountID), header)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

func (c *ShareableIDCodec) Decrypt(shareableID string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("security: shareable id codec is nil")
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(shareableID))
	if err != nil || len(raw) < 1+shareableNonceSize {
		return "", ErrMalformedShareableID
	}
	header := raw[:1]
	key, ok := c.keys[int(header[0])]
	if !ok {
		return "", fmt.Errorf("security: unknown key version %d: %w", header[0], ErrMalformedShareableID)
	}
	nonce := raw[1 : 1+shareableNonceSize]
	plaintext, err := key.aead.Open(nil, nonce, raw[1+shareableNonceSize:], header)
	if err != nil {
		return "", ErrMalformedShareableID
	}
	if !hmac.Equal(nonce, key.syntheticNonce(header, string(plaintext))) {
		return "", ErrMalformedShareableID
	}
	return string(plaintext), nil
}

// CurrentVersion is the key version new ids are written with.
func (c *ShareableIDCodec) CurrentVersion() int {
	if c == nil {
		return 0
	}
	return c.current
}

func (k shareableKey) syntheticNonce(header []byte, accountID string) []byte {
	mac := hmac.New(sha256.New, k.macKey)
	mac.Write(header)
	mac.Write([]byte(accountID))
	return mac.Sum(nil)[:shareableNonceSize]
}

var _ core.IDObscurer = (*ShareableIDCodec)(nil)
