package query

import (
	"github.com/goliatone/go-banklink/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[ListBanksMessage, []core.BankAccountRecord]          = (*ListBanksQuery)(nil)
	_ gocmd.Querier[GetBankMessage, core.BankAccountRecord]              = (*GetBankQuery)(nil)
	_ gocmd.Querier[GetBankByAccountIDMessage, core.BankAccountRecord]   = (*GetBankByAccountIDQuery)(nil)
	_ gocmd.Querier[GetBankByShareableIDMessage, core.BankAccountRecord] = (*GetBankByShareableIDQuery)(nil)
	_ gocmd.Querier[ListBankAccountsMessage, []core.LinkedAccount]       = (*ListBankAccountsQuery)(nil)
	_ gocmd.Querier[CurrentUserMessage, core.UserIdentity]               = (*CurrentUserQuery)(nil)

	_ BankReader    = (*core.BankQueries)(nil)
	_ SessionReader = (*core.UserService)(nil)
)
