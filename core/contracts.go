package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// SecretProvider encrypts credentials before they are written at rest.
type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type AggregatorClient interface {
	CreateLinkHandle(ctx context.Context, req LinkHandleRequest) (LinkHandle, error)
	ExchangePublicToken(ctx context.Context, token PublicToken) (ItemAccess, error)
	ListAccounts(ctx context.Context, token AccessToken) ([]AccountSummary, error)
	CreateProcessorToken(ctx context.Context, token AccessToken, accountID string, rail string) (ProcessorToken, error)
}

type PaymentsRailClient interface {
	CreateCustomer(ctx context.Context, profile CustomerProfile) (PaymentsCustomer, error)
	RegisterFundingSource(ctx context.Context, req FundingSourceRequest) (string, error)
}

type IdentityStore interface {
	CreateAccount(ctx context.Context, account NewAccount) (IdentityAccount, error)
	CreateSession(ctx context.Context, email string, password Secret) (Session, error)
	CurrentUser(ctx context.Context, session Session) (IdentityAccount, error)
	DeleteSession(ctx context.Context, session Session) error
}

type BankRecordStore interface {
	Save(ctx context.Context, record BankAccountRecord) (BankAccountRecord, error)
	ListByUser(ctx context.Context, userID string) ([]BankAccountRecord, error)
	GetByID(ctx context.Context, id string) (BankAccountRecord, bool, error)
	// GetByAccountID reports not found when zero or more than one record
	// matches.
	GetByAccountID(ctx context.Context, accountID string) (BankAccountRecord, bool, error)
}

type UserProfileStore interface {
	Save(ctx context.Context, profile UserProfile) (UserProfile, error)
	GetByUserID(ctx context.Context, userID string) (UserProfile, bool, error)
}

type ViewInvalidator interface {
	Invalidate(ctx context.Context, userID string, routes ...string) error
}

type IDObscurer interface {
	Encrypt(accountID string) (string, error)
	Decrypt(shareableID string) (string, error)
}

// NameSanitizer strips markup from display names received from upstream
// providers or users. *bluemonday.Policy satisfies it.
type NameSanitizer interface {
	Sanitize(value string) string
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
	// Idempotency is sent as the Idempotency-Key header.
	Idempotency string
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}
