package banklink

import (
	"fmt"

	banklinkcommand "github.com/goliatone/go-banklink/command"
	"github.com/goliatone/go-banklink/core"
	banklinkquery "github.com/goliatone/go-banklink/query"
)

// Backend is the surface the facade builds its handlers over. *core.Service
// satisfies it through ServiceBackend.
type Backend interface {
	Link() banklinkcommand.LinkService
	Users() UserBackend
	Banks() banklinkquery.BankReader
}

type UserBackend interface {
	banklinkcommand.UserService
	banklinkquery.SessionReader
}

type Commands struct {
	CreateLinkToken *banklinkcommand.CreateLinkTokenCommand
	CompleteLink    *banklinkcommand.CompleteLinkCommand
	SignUp          *banklinkcommand.SignUpCommand
	SignIn          *banklinkcommand.SignInCommand
	SignOut         *banklinkcommand.SignOutCommand
}

type Queries struct {
	ListBanks            *banklinkquery.ListBanksQuery
	GetBank              *banklinkquery.GetBankQuery
	GetBankByAccountID   *banklinkquery.GetBankByAccountIDQuery
	GetBankByShareableID *banklinkquery.GetBankByShareableIDQuery
	ListBankAccounts     *banklinkquery.ListBankAccountsQuery
	CurrentUser          *banklinkquery.CurrentUserQuery
}

type Facade struct {
	backend  Backend
	commands Commands
	queries  Queries
}

func NewFacade(backend Backend) (*Facade, error) {
	if backend == nil {
		return nil, fmt.Errorf("banklink: backend is required")
	}
	link := backend.Link()
	users := backend.Users()
	banks := backend.Banks()
	if link == nil || users == nil || banks == nil {
		return nil, fmt.Errorf("banklink: backend must expose link, user and bank services")
	}

	facade := &Facade{backend: backend}
	facade.commands = Commands{
		CreateLinkToken: banklinkcommand.NewCreateLinkTokenCommand(link),
		CompleteLink:    banklinkcommand.NewCompleteLinkCommand(link),
		SignUp:          banklinkcommand.NewSignUpCommand(users),
		SignIn:          banklinkcommand.NewSignInCommand(users),
		SignOut:         banklinkcommand.NewSignOutCommand(users),
	}
	facade.queries = Queries{
		ListBanks:            banklinkquery.NewListBanksQuery(banks),
		GetBank:              banklinkquery.NewGetBankQuery(banks),
		GetBankByAccountID:   banklinkquery.NewGetBankByAccountIDQuery(banks),
		GetBankByShareableID: banklinkquery.NewGetBankByShareableIDQuery(banks),
		ListBankAccounts:     banklinkquery.NewListBankAccountsQuery(banks),
		CurrentUser:          banklinkquery.NewCurrentUserQuery(users),
	}
	return facade, nil
}

// NewServiceFacade wires the facade over a constructed core service.
func NewServiceFacade(service *core.Service) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("banklink: service is required")
	}
	return NewFacade(ServiceBackend{Service: service})
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Backend() Backend {
	if f == nil {
		return nil
	}
	return f.backend
}

// ServiceBackend adapts *core.Service, whose accessors return concrete
// types, to Backend.
type ServiceBackend struct {
	Service *core.Service
}

func (b ServiceBackend) Link() banklinkcommand.LinkService {
	if b.Service == nil || b.Service.Link() == nil {
		return nil
	}
	return b.Service.Link()
}

func (b ServiceBackend) Users() UserBackend {
	if b.Service == nil || b.Service.Users() == nil {
		return nil
	}
	return b.Service.Users()
}

func (b ServiceBackend) Banks() banklinkquery.BankReader {
	if b.Service == nil || b.Service.Banks() == nil {
		return nil
	}
	return b.Service.Banks()
}
