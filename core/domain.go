package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type UserIdentity struct {
	ID                  string `json:"id"`
	DisplayName         string `json:"display_name"`
	Email               string `json:"email"`
	FirstName           string `json:"first_name,omitempty"`
	LastName            string `json:"last_name,omitempty"`
	PaymentsCustomerID  string `json:"payments_customer_id,omitempty"`
	PaymentsCustomerURL string `json:"payments_customer_url,omitempty"`
}

func (u UserIdentity) Name() string {
	if name := strings.TrimSpace(u.DisplayName); name != "" {
		return name
	}
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

// Session is the explicit session context handed to identity lookups. It
// replaces ambient cookie access so callers can be exercised without a
// request.
type Session struct {
	ID        string        `json:"id,omitempty"`
	UserID    string        `json:"user_id,omitempty"`
	Secret    SessionSecret `json:"-"`
	ExpiresAt time.Time     `json:"expires_at,omitzero"`
}

func (s Session) IsZero() bool {
	return s.Secret.IsZero()
}

type LinkHandle struct {
	Token      string    `json:"link_token"`
	Expiration time.Time `json:"expiration,omitzero"`
	RequestID  string    `json:"request_id,omitempty"`
}

type LinkHandleRequest struct {
	UserID       string
	ClientName   string
	Products     []string
	CountryCodes []string
	Language     string
}

type ItemAccess struct {
	AccessToken AccessToken
	ItemID      string
}

type AccountSummary struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	OfficialName     string          `json:"official_name,omitempty"`
	Mask             string          `json:"mask,omitempty"`
	Type             string          `json:"type,omitempty"`
	Subtype          string          `json:"subtype,omitempty"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	CurrentBalance   decimal.Decimal `json:"current_balance"`
	CurrencyCode     string          `json:"currency_code,omitempty"`
}

type CustomerProfile struct {
	FirstName   string
	LastName    string
	Email       string
	Address1    string
	City        string
	State       string
	PostalCode  string
	DateOfBirth string
	SSN         Secret
	Type        string
}

type PaymentsCustomer struct {
	ID  string
	URL string
}

type FundingSourceRequest struct {
	CustomerID     string
	ProcessorToken ProcessorToken
	Name           string
	IdempotencyKey string
}

type BankAccountRecord struct {
	ID               string      `json:"id"`
	OwnerUserID      string      `json:"owner_user_id"`
	ItemID           string      `json:"item_id"`
	AccountID        string      `json:"account_id"`
	AccessToken      AccessToken `json:"-"`
	FundingSourceRef string      `json:"funding_source_ref"`
	ShareableID      string      `json:"shareable_id"`
	InstitutionName  string      `json:"institution_name,omitempty"`
	CreatedAt        time.Time   `json:"created_at,omitzero"`
}

// LinkedAccount pairs a stored bank record with its live account summary.
type LinkedAccount struct {
	BankID          string         `json:"bank_id"`
	ShareableID     string         `json:"shareable_id"`
	InstitutionName string         `json:"institution_name,omitempty"`
	Account         AccountSummary `json:"account"`
}

type NewAccount struct {
	Email    string
	Password Secret
	Name     string
}

type IdentityAccount struct {
	ID    string
	Email string
	Name  string
}

type UserProfile struct {
	ID                  string
	UserID              string
	Email               string
	FirstName           string
	LastName            string
	Address1            string
	City                string
	State               string
	PostalCode          string
	PaymentsCustomerID  string
	PaymentsCustomerURL string
	CreatedAt           time.Time
}

func (p UserProfile) Identity(account IdentityAccount) UserIdentity {
	identity := UserIdentity{
		ID:                  account.ID,
		DisplayName:         strings.TrimSpace(account.Name),
		Email:               account.Email,
		FirstName:           p.FirstName,
		LastName:            p.LastName,
		PaymentsCustomerID:  p.PaymentsCustomerID,
		PaymentsCustomerURL: p.PaymentsCustomerURL,
	}
	if identity.ID == "" {
		identity.ID = p.UserID
	}
	if identity.Email == "" {
		identity.Email = p.Email
	}
	if identity.DisplayName == "" {
		identity.DisplayName = identity.Name()
	}
	return identity
}
