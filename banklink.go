package banklink

import "github.com/goliatone/go-banklink/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type UserIdentity = core.UserIdentity
type Session = core.Session
type LinkHandle = core.LinkHandle
type BankAccountRecord = core.BankAccountRecord
type LinkedAccount = core.LinkedAccount
type CompleteLinkRequest = core.CompleteLinkRequest
type SignUpRequest = core.SignUpRequest
type Failure = core.Failure

var (
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithErrorMapper        = core.WithErrorMapper
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithAggregatorClient   = core.WithAggregatorClient
	WithPaymentsRailClient = core.WithPaymentsRailClient
	WithIdentityStore      = core.WithIdentityStore
	WithBankRecordStore    = core.WithBankRecordStore
	WithUserProfileStore   = core.WithUserProfileStore
	WithViewInvalidator    = core.WithViewInvalidator
	WithIDObscurer         = core.WithIDObscurer
	WithNameSanitizer      = core.WithNameSanitizer
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}
