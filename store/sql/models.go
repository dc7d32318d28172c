package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-banklink/core"
	"github.com/uptrace/bun"
)

type bankAccountRecord struct {
	bun.BaseModel `bun:"table:bank_accounts,alias:ba"`

	ID                   string    `bun:"id,pk"`
	OwnerUserID          string    `bun:"owner_user_id,notnull"`
	ItemID               string    `bun:"item_id,notnull"`
	AccountID            string    `bun:"account_id,notnull"`
	EncryptedAccessToken []byte    `bun:"encrypted_access_token,notnull"`
	EncryptionKeyID      string    `bun:"encryption_key_id,notnull"`
	EncryptionVersion    int       `bun:"encryption_version,notnull"`
	FundingSourceRef     string    `bun:"funding_source_ref,notnull"`
	ShareableID          string    `bun:"shareable_id,notnull"`
	InstitutionName      string    `bun:"institution_name,notnull"`
	CreatedAt            time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt            time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type userProfileRecord struct {
	bun.BaseModel `bun:"table:user_profiles,alias:up"`

	ID                  string    `bun:"id,pk"`
	UserID              string    `bun:"user_id,notnull"`
	Email               string    `bun:"email,notnull"`
	FirstName           string    `bun:"first_name,notnull"`
	LastName            string    `bun:"last_name,notnull"`
	Address1            string    `bun:"address1,notnull"`
	City                string    `bun:"city,notnull"`
	State               string    `bun:"state,notnull"`
	PostalCode          string    `bun:"postal_code,notnull"`
	PaymentsCustomerID  string    `bun:"payments_customer_id,notnull"`
	PaymentsCustomerURL string    `bun:"payments_customer_url,notnull"`
	CreatedAt           time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt           time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// newBankAccountRecord copies everything but the access token, which the
// store seals separately.
func newBankAccountRecord(record core.BankAccountRecord, now time.Time) *bankAccountRecord {
	createdAt := record.CreatedAt.UTC()
	if record.CreatedAt.IsZero() {
		createdAt = now
	}
	return &bankAccountRecord{
		ID:               strings.TrimSpace(record.ID),
		OwnerUserID:      strings.TrimSpace(record.OwnerUserID),
		ItemID:           strings.TrimSpace(record.ItemID),
		AccountID:        strings.TrimSpace(record.AccountID),
		FundingSourceRef: strings.TrimSpace(record.FundingSourceRef),
		ShareableID:      strings.TrimSpace(record.ShareableID),
		InstitutionName:  strings.TrimSpace(record.InstitutionName),
		CreatedAt:        createdAt,
		UpdatedAt:        now,
	}
}

func (r *bankAccountRecord) toDomain(token core.AccessToken) core.BankAccountRecord {
	if r == nil {
		return core.BankAccountRecord{}
	}
	return core.BankAccountRecord{
		ID:               r.ID,
		OwnerUserID:      r.OwnerUserID,
		ItemID:           r.ItemID,
		AccountID:        r.AccountID,
		AccessToken:      token,
		FundingSourceRef: r.FundingSourceRef,
		ShareableID:      r.ShareableID,
		InstitutionName:  r.InstitutionName,
		CreatedAt:        r.CreatedAt.UTC(),
	}
}

func newUserProfileRecord(profile core.UserProfile, now time.Time) *userProfileRecord {
	createdAt := profile.CreatedAt.UTC()
	if profile.CreatedAt.IsZero() {
		createdAt = now
	}
	return &userProfileRecord{
		ID:                  strings.TrimSpace(profile.ID),
		UserID:              strings.TrimSpace(profile.UserID),
		Email:               strings.ToLower(strings.TrimSpace(profile.Email)),
		FirstName:           strings.TrimSpace(profile.FirstName),
		LastName:            strings.TrimSpace(profile.LastName),
		Address1:            strings.TrimSpace(profile.Address1),
		City:                strings.TrimSpace(profile.City),
		State:               strings.TrimSpace(profile.State),
		PostalCode:          strings.TrimSpace(profile.PostalCode),
		PaymentsCustomerID:  strings.TrimSpace(profile.PaymentsCustomerID),
		PaymentsCustomerURL: strings.TrimSpace(profile.PaymentsCustomerURL),
		CreatedAt:           createdAt,
		UpdatedAt:           now,
	}
}

func (r *userProfileRecord) toDomain() core.UserProfile {
	if r == nil {
		return core.UserProfile{}
	}
	return core.UserProfile{
		ID:                  r.ID,
		UserID:              r.UserID,
		Email:               r.Email,
		FirstName:           r.FirstName,
		LastName:            r.LastName,
		Address1:            r.Address1,
		City:                r.City,
		State:               r.State,
		PostalCode:          r.PostalCode,
		PaymentsCustomerID:  r.PaymentsCustomerID,
		PaymentsCustomerURL: r.PaymentsCustomerURL,
		CreatedAt:           r.CreatedAt.UTC(),
	}
}
