package core

import (
	"fmt"
	"log/slog"
	"strings"
)

const RedactedValue = "[REDACTED]"

// Secret holds a credential that must never reach logs, JSON payloads or
// formatted output. The raw value is only available through Reveal.
type Secret struct {
	value string
}

func NewSecret(value string) Secret {
	return Secret{value: strings.TrimSpace(value)}
}

func (s Secret) Reveal() string {
	return s.value
}

func (s Secret) IsZero() bool {
	return s.value == ""
}

func (s Secret) Equal(other Secret) bool {
	return s.value == other.value
}

func (s Secret) String() string {
	if s.value == "" {
		return ""
	}
	return RedactedValue
}

func (s Secret) GoString() string {
	return fmt.Sprintf("core.Secret(%q)", s.String())
}

func (s Secret) Format(state fmt.State, verb rune) {
	switch verb {
	case 'q':
		_, _ = fmt.Fprintf(state, "%q", s.String())
	default:
		_, _ = fmt.Fprint(state, s.String())
	}
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", s.String())), nil
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s Secret) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

// PublicToken is the single-use token returned by the link widget.
type PublicToken struct{ Secret }

// AccessToken is the durable aggregator credential for a linked item.
type AccessToken struct{ Secret }

// ProcessorToken scopes an access token and account to the payments rail.
type ProcessorToken struct{ Secret }

// SessionSecret authenticates a session against the identity store.
type SessionSecret struct{ Secret }

func NewPublicToken(value string) PublicToken {
	return PublicToken{NewSecret(value)}
}

func NewAccessToken(value string) AccessToken {
	return AccessToken{NewSecret(value)}
}

func NewProcessorToken(value string) ProcessorToken {
	return ProcessorToken{NewSecret(value)}
}

func NewSessionSecret(value string) SessionSecret {
	return SessionSecret{NewSecret(value)}
}

var (
	_ fmt.Stringer   = Secret{}
	_ fmt.GoStringer = Secret{}
	_ fmt.Formatter  = Secret{}
	_ slog.LogValuer = Secret{}
)
