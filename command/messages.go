package command

import (
	"strings"

	"github.com/goliatone/go-banklink/core"
)

const (
	TypeCreateLinkToken = "banklink.command.link.token.create"
	TypeCompleteLink    = "banklink.command.link.complete"
	TypeSignUp          = "banklink.command.user.sign_up"
	TypeSignIn          = "banklink.command.user.sign_in"
	TypeSignOut         = "banklink.command.user.sign_out"
)

type CreateLinkTokenMessage struct {
	User core.UserIdentity
}

func (CreateLinkTokenMessage) Type() string { return TypeCreateLinkToken }

func (m CreateLinkTokenMessage) Validate() error {
	if strings.TrimSpace(m.User.ID) == "" {
		return commandValidationError("user.id", "user id is required")
	}
	return nil
}

type CompleteLinkMessage struct {
	Request core.CompleteLinkRequest
}

func (CompleteLinkMessage) Type() string { return TypeCompleteLink }

func (m CompleteLinkMessage) Validate() error {
	if m.Request.PublicToken.IsZero() {
		return commandValidationError("public_token", "public token is required")
	}
	if strings.TrimSpace(m.Request.User.ID) == "" {
		return commandValidationError("user.id", "user id is required")
	}
	return nil
}

type SignUpMessage struct {
	Request core.SignUpRequest
}

func (SignUpMessage) Type() string { return TypeSignUp }

func (m SignUpMessage) Validate() error {
	return m.Request.Validate()
}

type SignInMessage struct {
	Email    string
	Password core.Secret
}

func (SignInMessage) Type() string { return TypeSignIn }

func (m SignInMessage) Validate() error {
	if strings.TrimSpace(m.Email) == "" {
		return commandValidationError("email", "email is required")
	}
	if m.Password.IsZero() {
		return commandValidationError("password", "password is required")
	}
	return nil
}

type SignOutMessage struct {
	Session core.Session
}

func (SignOutMessage) Type() string { return TypeSignOut }

func (SignOutMessage) Validate() error { return nil }

// AuthResult is stored by the sign-up and sign-in commands.
type AuthResult struct {
	User    core.UserIdentity
	Session core.Session
}
