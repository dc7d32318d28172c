package command

import (
	"context"

	"github.com/goliatone/go-banklink/core"
	gocmd "github.com/goliatone/go-command"
)

type LinkService interface {
	Initiate(ctx context.Context, user core.UserIdentity) core.Outcome[core.LinkHandle]
	Complete(ctx context.Context, req core.CompleteLinkRequest) core.Outcome[core.BankAccountRecord]
}

type UserService interface {
	SignUp(ctx context.Context, req core.SignUpRequest) (core.UserIdentity, core.Session, error)
	SignIn(ctx context.Context, email string, password core.Secret) (core.UserIdentity, core.Session, error)
	SignOut(ctx context.Context, session core.Session) error
}

type CreateLinkTokenCommand struct {
	service LinkService
}

func NewCreateLinkTokenCommand(service LinkService) *CreateLinkTokenCommand {
	return &CreateLinkTokenCommand{service: service}
}

func (c *CreateLinkTokenCommand) Execute(ctx context.Context, msg CreateLinkTokenMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: link service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	handle, err := c.service.Initiate(ctx, msg.User).Unwrap()
	if err != nil {
		return err
	}
	storeResult(ctx, handle)
	return nil
}

// CompleteLinkCommand stores the linked record with its access token
// cleared. Request validation is left to the workflow so every failed
// completion, malformed input included, returns a *core.Failure.
type CompleteLinkCommand struct {
	service LinkService
}

func NewCompleteLinkCommand(service LinkService) *CompleteLinkCommand {
	return &CompleteLinkCommand{service: service}
}

func (c *CompleteLinkCommand) Execute(ctx context.Context, msg CompleteLinkMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: link service is required")
	}
	record, err := c.service.Complete(ctx, msg.Request).Unwrap()
	if err != nil {
		return err
	}
	record.AccessToken = core.AccessToken{}
	storeResult(ctx, record)
	return nil
}

type SignUpCommand struct {
	service UserService
}

func NewSignUpCommand(service UserService) *SignUpCommand {
	return &SignUpCommand{service: service}
}

func (c *SignUpCommand) Execute(ctx context.Context, msg SignUpMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: user service is required")
	}
	user, session, err := c.service.SignUp(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, AuthResult{User: user, Session: session})
	return nil
}

type SignInCommand struct {
	service UserService
}

func NewSignInCommand(service UserService) *SignInCommand {
	return &SignInCommand{service: service}
}

func (c *SignInCommand) Execute(ctx context.Context, msg SignInMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: user service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	user, session, err := c.service.SignIn(ctx, msg.Email, msg.Password)
	if err != nil {
		return err
	}
	storeResult(ctx, AuthResult{User: user, Session: session})
	return nil
}

type SignOutCommand struct {
	service UserService
}

func NewSignOutCommand(service UserService) *SignOutCommand {
	return &SignOutCommand{service: service}
}

func (c *SignOutCommand) Execute(ctx context.Context, msg SignOutMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: user service is required")
	}
	return c.service.SignOut(ctx, msg.Session)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
