package security

import (
	"bytes"
	"context"
	"testing"
)

const testStorageKey = "storage-key-material-0123456789abcdefgh"

func TestKeyringSecretProvider_EncryptDecryptRoundTrip(t *testing.T) {
	provider, err := NewKeyringSecretProviderFromString(testStorageKey, WithKeyID("banklink-storage"))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	plaintext := []byte("access-sandbox-de3ce8ef")
	encrypted, err := provider.Encrypt(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(encrypted, plaintext) {
		t.Fatalf("expected encrypted payload to hide plaintext")
	}
	if !bytes.HasPrefix(encrypted, []byte(envelopePrefix)) {
		t.Fatalf("expected envelope prefix")
	}
	again, err := provider.Encrypt(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("encrypt again: %v", err)
	}
	if bytes.Equal(encrypted, again) {
		t.Fatalf("expected random nonce per envelope")
	}

	decrypted, err := provider.Decrypt(context.Background(), encrypted)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("expected roundtrip plaintext; got %q", string(decrypted))
	}
}

func TestKeyringSecretProvider_RetiredKeysStillDecrypt(t *testing.T) {
	legacy, err := NewKeyringSecretProvider([]byte(testStorageKey), 1)
	if err != nil {
		t.Fatalf("legacy provider: %v", err)
	}
	sealed, err := legacy.Encrypt(context.Background(), []byte("access-old"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	rotated, err := NewKeyringSecretProvider([]byte("rotated-storage-key-0123456789abcdefgh"), 2,
		WithRetiredKeys(KeyVersion{Version: 1, Material: []byte(testStorageKey)}),
	)
	if err != nil {
		t.Fatalf("rotated provider: %v", err)
	}
	if !rotated.NeedsRotation(sealed) {
		t.Fatalf("expected legacy envelope to need rotation")
	}
	opened, err := rotated.Decrypt(context.Background(), sealed)
	if err != nil || string(opened) != "access-old" {
		t.Fatalf("expected legacy envelope readable, got %q err=%v", opened, err)
	}

	withoutRetired, err := NewKeyringSecretProvider([]byte("rotated-storage-key-0123456789abcdefgh"), 2)
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	if _, err := withoutRetired.Decrypt(context.Background(), sealed); err == nil {
		t.Fatalf("expected unknown key version to fail")
	}
}

func TestKeyringSecretProvider_RejectsInvalidInput(t *testing.T) {
	if _, err := NewKeyringSecretProviderFromString("short"); err == nil {
		t.Fatalf("expected short key to be rejected")
	}
	if _, err := NewKeyringSecretProvider([]byte(testStorageKey), 1, WithRetiredKeys(KeyVersion{Version: 1, Material: []byte(testStorageKey)})); err == nil {
		t.Fatalf("expected duplicated version to be rejected")
	}

	issuer, err := NewKeyringSecretProviderFromString(testStorageKey, WithKeyID("a"))
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	receiver, err := NewKeyringSecretProviderFromString(testStorageKey, WithKeyID("b"))
	if err != nil {
		t.Fatalf("receiver: %v", err)
	}
	sealed, err := issuer.Encrypt(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := receiver.Decrypt(context.Background(), sealed); err == nil {
		t.Fatalf("expected key id mismatch error")
	}
	if _, err := receiver.Decrypt(context.Background(), []byte("plain")); err == nil {
		t.Fatalf("expected non-envelope input to fail")
	}
}
