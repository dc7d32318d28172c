package security

import (
	"errors"
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-banklink/core"
)

const (
	testShareableKey = "shareable-key-material-0123456789abcdef"
	testRetiredKey   = "retired-shareable-key-0123456789abcdef"
)

func TestShareableIDCodec_RoundTripAndDeterminism(t *testing.T) {
	codec, err := NewShareableIDCodec([]byte(testShareableKey), 1)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	for _, accountID := range []string{"BxBXxLj1m4HMXBm9WZZmCWVbPjX16EHwv99vp", "acc_1", "a", strings.Repeat("z", 200)} {
		first, err := codec.Encrypt(accountID)
		if err != nil {
			t.Fatalf("encrypt %q: %v", accountID, err)
		}
		second, err := codec.Encrypt(accountID)
		if err != nil {
			t.Fatalf("encrypt again %q: %v", accountID, err)
		}
		if first != second {
			t.Fatalf("expected deterministic output for %q", accountID)
		}
		if len(accountID) >= 8 && strings.Contains(first, accountID) {
			t.Fatalf("expected raw id hidden, got %q", first)
		}
		if strings.ContainsAny(first, "+/=") {
			t.Fatalf("expected url safe output, got %q", first)
		}
		decoded, err := codec.Decrypt(first)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if decoded != accountID {
			t.Fatalf("expected %q, got %q", accountID, decoded)
		}
	}

	padded := " acc_1\t"
	encoded, err := codec.Encrypt(padded)
	if err != nil {
		t.Fatalf("encrypt padded id: %v", err)
	}
	if decoded, err := codec.Decrypt(encoded); err != nil || decoded != padded {
		t.Fatalf("expected padded id preserved, got %q err=%v", decoded, err)
	}
	if trimmed, _ := codec.Encrypt("acc_1"); trimmed == encoded {
		t.Fatalf("expected padded and trimmed ids to encode differently")
	}
	if _, err := codec.Encrypt("   "); err == nil {
		t.Fatalf("expected blank id to fail")
	}

	a, _ := codec.Encrypt("acc_1")
	b, _ := codec.Encrypt("acc_2")
	if a == b {
		t.Fatalf("expected different ids for different accounts")
	}
}

func TestShareableIDCodec_RejectsTampering(t *testing.T) {
	codec, err := NewShareableIDCodec([]byte(testShareableKey), 1)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	encoded, err := codec.Encrypt("acc_1")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	tampered := []byte(encoded)
	if tampered[len(tampered)-2] == 'A' {
		tampered[len(tampered)-2] = 'B'
	} else {
		tampered[len(tampered)-2] = 'A'
	}
	for _, input := range []string{string(tampered), "", "not base64!", "AQ"} {
		if _, err := codec.Decrypt(input); !errors.Is(err, ErrMalformedShareableID) {
			t.Fatalf("expected malformed error for %q, got %v", input, err)
		}
	}

	other, err := NewShareableIDCodec([]byte("a-completely-different-key-material-xyz"), 1)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	if _, err := other.Decrypt(encoded); err == nil {
		t.Fatalf("expected decode with another key to fail")
	}
}

func TestShareableIDCodec_RotationKeepsOldIDsReadable(t *testing.T) {
	old, err := NewShareableIDCodec([]byte(testRetiredKey), 1)
	if err != nil {
		t.Fatalf("old codec: %v", err)
	}
	legacy, err := old.Encrypt("acc_1")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	rotated, err := NewShareableIDCodecFromConfig(core.SecurityConfig{
		ShareableKey:         testShareableKey,
		ShareableKeyVersion:  2,
		RetiredShareableKeys: []string{"1:" + testRetiredKey},
	})
	if err != nil {
		t.Fatalf("rotated codec: %v", err)
	}
	decoded, err := rotated.Decrypt(legacy)
	if err != nil || decoded != "acc_1" {
		t.Fatalf("expected legacy id readable, got %q err=%v", decoded, err)
	}
	fresh, err := rotated.Encrypt("acc_1")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if fresh == legacy {
		t.Fatalf("expected new key version to produce a new id")
	}
	if rotated.CurrentVersion() != 2 {
		t.Fatalf("expected current version 2, got %d", rotated.CurrentVersion())
	}
}

func TestShareableIDCodec_KeyErrors(t *testing.T) {
	cases := []core.SecurityConfig{
		{ShareableKey: "", ShareableKeyVersion: 1},
		{ShareableKey: "too-short", ShareableKeyVersion: 1},
		{ShareableKey: testShareableKey, ShareableKeyVersion: 0},
		{ShareableKey: testShareableKey, ShareableKeyVersion: 1, RetiredShareableKeys: []string{"no-version"}},
		{ShareableKey: testShareableKey, ShareableKeyVersion: 1, RetiredShareableKeys: []string{"1:" + testRetiredKey}},
	}
	for index, cfg := range cases {
		_, err := NewShareableIDCodecFromConfig(cfg)
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) || rich.TextCode != core.LinkErrorObscuringKey {
			t.Fatalf("case %d: expected %s, got %v", index, core.LinkErrorObscuringKey, err)
		}
	}
}
