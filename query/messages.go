package query

import (
	"strings"

	"github.com/goliatone/go-banklink/core"
)

const (
	TypeListBanks            = "banklink.query.banks.list"
	TypeGetBank              = "banklink.query.banks.get"
	TypeGetBankByAccountID   = "banklink.query.banks.get_by_account_id"
	TypeGetBankByShareableID = "banklink.query.banks.get_by_shareable_id"
	TypeListBankAccounts     = "banklink.query.bank_accounts.list"
	TypeCurrentUser          = "banklink.query.user.current"
)

type ListBanksMessage struct {
	UserID string
}

func (ListBanksMessage) Type() string { return TypeListBanks }

func (m ListBanksMessage) Validate() error {
	return requireField("user_id", m.UserID)
}

type GetBankMessage struct {
	ID string
}

func (GetBankMessage) Type() string { return TypeGetBank }

func (m GetBankMessage) Validate() error {
	return requireField("id", m.ID)
}

type GetBankByAccountIDMessage struct {
	AccountID string
}

func (GetBankByAccountIDMessage) Type() string { return TypeGetBankByAccountID }

func (m GetBankByAccountIDMessage) Validate() error {
	return requireField("account_id", m.AccountID)
}

type GetBankByShareableIDMessage struct {
	ShareableID string
}

func (GetBankByShareableIDMessage) Type() string { return TypeGetBankByShareableID }

func (m GetBankByShareableIDMessage) Validate() error {
	return requireField("shareable_id", m.ShareableID)
}

type ListBankAccountsMessage struct {
	UserID string
}

func (ListBankAccountsMessage) Type() string { return TypeListBankAccounts }

func (m ListBankAccountsMessage) Validate() error {
	return requireField("user_id", m.UserID)
}

type CurrentUserMessage struct {
	Session core.Session
}

func (CurrentUserMessage) Type() string { return TypeCurrentUser }

func (CurrentUserMessage) Validate() error { return nil }

func requireField(field string, value string) error {
	if strings.TrimSpace(value) == "" {
		return queryValidationError(field, field+" is required")
	}
	return nil
}
