package core

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service wires the link workflow, user flows and bank queries around one
// resolved configuration and one set of collaborators.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver

	link  *LinkWorkflow
	users *UserService
	banks *BankQueries
}

type ServiceDependencies struct {
	Logger           Logger
	LoggerProvider   LoggerProvider
	MetricsRecorder  MetricsRecorder
	ErrorMapper      ErrorMapper
	ConfigProvider   ConfigProvider
	OptionsResolver  OptionsResolver
	Aggregator       AggregatorClient
	PaymentsRail     PaymentsRailClient
	IdentityStore    IdentityStore
	BankRecordStore  BankRecordStore
	UserProfileStore UserProfileStore
	ViewInvalidator  ViewInvalidator
	IDObscurer       IDObscurer
	NameSanitizer    NameSanitizer
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("banklink", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("banklink"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.viewInvalidator == nil {
		builder.viewInvalidator = NopViewInvalidator{}
	}
	if builder.nameSanitizer == nil {
		builder.nameSanitizer = trimSanitizer{}
	}
	if builder.clock == nil {
		builder.clock = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.idObscurer == nil {
		return nil, ObscuringKeyError(errors.New("core: shareable id obscurer is required"))
	}
	if builder.aggregator == nil || builder.paymentsRail == nil || builder.bankRecordStore == nil {
		return nil, newServiceError(
			"core: aggregator client, payments rail client and bank record store are required",
			goerrors.CategoryInternal,
			ServiceErrorInternal,
		)
	}

	observation := observer{
		logger:  logger,
		metrics: builder.metricsRecorder,
		prefix:  "banklink",
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		link: &LinkWorkflow{
			config:      finalConfig.Link,
			clientName:  finalConfig.ServiceName,
			aggregator:  builder.aggregator,
			rail:        builder.paymentsRail,
			records:     builder.bankRecordStore,
			obscurer:    builder.idObscurer,
			views:       builder.viewInvalidator,
			sanitizer:   builder.nameSanitizer,
			now:         builder.clock,
			observation: observation,
		},
		users: &UserService{
			identity:    builder.identityStore,
			profiles:    builder.userProfileStore,
			rail:        builder.paymentsRail,
			sanitizer:   builder.nameSanitizer,
			now:         builder.clock,
			observation: observation,
		},
		banks: &BankQueries{
			records:     builder.bankRecordStore,
			aggregator:  builder.aggregator,
			obscurer:    builder.idObscurer,
			stepTimeout: finalConfig.Link.StepTimeout,
			observation: observation,
		},
	}, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Logger() Logger {
	if s == nil {
		return glog.Nop()
	}
	return s.logger
}

// MapError runs the configured error mapper.
func (s *Service) MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return MapError(err)
	}
	if mapped := s.errorMapper(err); mapped != nil {
		return mapped
	}
	return MapError(err)
}

func (s *Service) Link() *LinkWorkflow {
	if s == nil {
		return nil
	}
	return s.link
}

func (s *Service) Users() *UserService {
	if s == nil {
		return nil
	}
	return s.users
}

func (s *Service) Banks() *BankQueries {
	if s == nil {
		return nil
	}
	return s.banks
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:           s.logger,
		LoggerProvider:   s.loggerProvider,
		MetricsRecorder:  s.metricsRecorder,
		ErrorMapper:      s.errorMapper,
		ConfigProvider:   s.configProvider,
		OptionsResolver:  s.optionsResolver,
		Aggregator:       s.link.aggregator,
		PaymentsRail:     s.link.rail,
		IdentityStore:    s.users.identity,
		BankRecordStore:  s.link.records,
		UserProfileStore: s.users.profiles,
		ViewInvalidator:  s.link.views,
		IDObscurer:       s.link.obscurer,
		NameSanitizer:    s.link.sanitizer,
	}
}
