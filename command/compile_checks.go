package command

import (
	"github.com/goliatone/go-banklink/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Commander[CreateLinkTokenMessage] = (*CreateLinkTokenCommand)(nil)
	_ gocmd.Commander[CompleteLinkMessage]    = (*CompleteLinkCommand)(nil)
	_ gocmd.Commander[SignUpMessage]          = (*SignUpCommand)(nil)
	_ gocmd.Commander[SignInMessage]          = (*SignInCommand)(nil)
	_ gocmd.Commander[SignOutMessage]         = (*SignOutCommand)(nil)

	_ LinkService = (*core.LinkWorkflow)(nil)
	_ UserService = (*core.UserService)(nil)
)
