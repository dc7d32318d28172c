package query

import (
	"context"

	"github.com/goliatone/go-banklink/core"
)

type BankReader interface {
	ListBanks(ctx context.Context, userID string) ([]core.BankAccountRecord, error)
	GetBank(ctx context.Context, id string) (core.BankAccountRecord, error)
	GetBankByAccountID(ctx context.Context, accountID string) (core.BankAccountRecord, error)
	GetBankByShareableID(ctx context.Context, shareableID string) (core.BankAccountRecord, error)
	GetBankAccounts(ctx context.Context, userID string) ([]core.LinkedAccount, error)
}

type SessionReader interface {
	CurrentUser(ctx context.Context, session core.Session) (core.UserIdentity, bool, error)
}

type ListBanksQuery struct {
	reader BankReader
}

func NewListBanksQuery(reader BankReader) *ListBanksQuery {
	return &ListBanksQuery{reader: reader}
}

func (q *ListBanksQuery) Query(ctx context.Context, msg ListBanksMessage) ([]core.BankAccountRecord, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: bank reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.reader.ListBanks(ctx, msg.UserID)
}

type GetBankQuery struct {
	reader BankReader
}

func NewGetBankQuery(reader BankReader) *GetBankQuery {
	return &GetBankQuery{reader: reader}
}

func (q *GetBankQuery) Query(ctx context.Context, msg GetBankMessage) (core.BankAccountRecord, error) {
	if q == nil || q.reader == nil {
		return core.BankAccountRecord{}, queryDependencyError("query: bank reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.BankAccountRecord{}, err
	}
	return q.reader.GetBank(ctx, msg.ID)
}

type GetBankByAccountIDQuery struct {
	reader BankReader
}

func NewGetBankByAccountIDQuery(reader BankReader) *GetBankByAccountIDQuery {
	return &GetBankByAccountIDQuery{reader: reader}
}

func (q *GetBankByAccountIDQuery) Query(ctx context.Context, msg GetBankByAccountIDMessage) (core.BankAccountRecord, error) {
	if q == nil || q.reader == nil {
		return core.BankAccountRecord{}, queryDependencyError("query: bank reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.BankAccountRecord{}, err
	}
	return q.reader.GetBankByAccountID(ctx, msg.AccountID)
}

type GetBankByShareableIDQuery struct {
	reader BankReader
}

func NewGetBankByShareableIDQuery(reader BankReader) *GetBankByShareableIDQuery {
	return &GetBankByShareableIDQuery{reader: reader}
}

func (q *GetBankByShareableIDQuery) Query(ctx context.Context, msg GetBankByShareableIDMessage) (core.BankAccountRecord, error) {
	if q == nil || q.reader == nil {
		return core.BankAccountRecord{}, queryDependencyError("query: bank reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.BankAccountRecord{}, err
	}
	return q.reader.GetBankByShareableID(ctx, msg.ShareableID)
}

// ListBankAccountsQuery returns live account summaries for every linked bank
// of a user.
type ListBankAccountsQuery struct {
	reader BankReader
}

func NewListBankAccountsQuery(reader BankReader) *ListBankAccountsQuery {
	return &ListBankAccountsQuery{reader: reader}
}

func (q *ListBankAccountsQuery) Query(ctx context.Context, msg ListBankAccountsMessage) ([]core.LinkedAccount, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: bank reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.reader.GetBankAccounts(ctx, msg.UserID)
}

// CurrentUserQuery fails with an auth error when the session does not
// resolve to a user.
type CurrentUserQuery struct {
	reader SessionReader
}

func NewCurrentUserQuery(reader SessionReader) *CurrentUserQuery {
	return &CurrentUserQuery{reader: reader}
}

func (q *CurrentUserQuery) Query(ctx context.Context, msg CurrentUserMessage) (core.UserIdentity, error) {
	if q == nil || q.reader == nil {
		return core.UserIdentity{}, queryDependencyError("query: session reader is required")
	}
	if msg.Session.IsZero() {
		return core.UserIdentity{}, queryUnauthenticatedError()
	}
	user, ok, err := q.reader.CurrentUser(ctx, msg.Session)
	if err != nil {
		return core.UserIdentity{}, err
	}
	if !ok {
		return core.UserIdentity{}, queryUnauthenticatedError()
	}
	return user, nil
}
