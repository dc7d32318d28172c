package security

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const MinKeyMaterialLength = 32

// KeyVersion is one entry of a keyring. Version 0 is never valid.
type KeyVersion struct {
	Version  int
	Material []byte
}

// ParseRetiredKeys reads "version:material" entries, as found in
// security.retired_shareable_keys.
func ParseRetiredKeys(entries []string) ([]KeyVersion, error) {
	keys := make([]KeyVersion, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		rawVersion, material, found := strings.Cut(entry, ":")
		if !found {
			return nil, fmt.Errorf("security: retired key entry must be version:material")
		}
		version, err := strconv.Atoi(strings.TrimSpace(rawVersion))
		if err != nil || version <= 0 || version > 255 {
			return nil, fmt.Errorf("security: retired key version %q is invalid", rawVersion)
		}
		keys = append(keys, KeyVersion{Version: version, Material: []byte(material)})
	}
	return keys, nil
}

func validateKeyMaterial(material []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(material)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	if len(trimmed) < MinKeyMaterialLength {
		return nil, fmt.Errorf("security: key material must be at least %d bytes", MinKeyMaterialLength)
	}
	out := make([]byte, len(trimmed))
	copy(out, trimmed)
	return out, nil
}

// deriveKey expands key material into a purpose-bound 32 byte key.
func deriveKey(material []byte, purpose string) ([]byte, error) {
	reader := hkdf.New(sha256.New, material, []byte("banklink"), []byte(purpose))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("security: derive %s key: %w", purpose, err)
	}
	return key, nil
}
