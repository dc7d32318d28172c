package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig    Config
	logger           Logger
	loggerProvider   LoggerProvider
	metricsRecorder  MetricsRecorder
	errorMapper      ErrorMapper
	configProvider   ConfigProvider
	optionsResolver  OptionsResolver
	aggregator       AggregatorClient
	paymentsRail     PaymentsRailClient
	identityStore    IdentityStore
	bankRecordStore  BankRecordStore
	userProfileStore UserProfileStore
	viewInvalidator  ViewInvalidator
	idObscurer       IDObscurer
	nameSanitizer    NameSanitizer
	clock            func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithAggregatorClient(client AggregatorClient) Option {
	return func(b *serviceBuilder) {
		b.aggregator = client
	}
}

func WithPaymentsRailClient(client PaymentsRailClient) Option {
	return func(b *serviceBuilder) {
		b.paymentsRail = client
	}
}

func WithIdentityStore(store IdentityStore) Option {
	return func(b *serviceBuilder) {
		b.identityStore = store
	}
}

func WithBankRecordStore(store BankRecordStore) Option {
	return func(b *serviceBuilder) {
		b.bankRecordStore = store
	}
}

func WithUserProfileStore(store UserProfileStore) Option {
	return func(b *serviceBuilder) {
		b.userProfileStore = store
	}
}

func WithViewInvalidator(invalidator ViewInvalidator) Option {
	return func(b *serviceBuilder) {
		b.viewInvalidator = invalidator
	}
}

func WithIDObscurer(obscurer IDObscurer) Option {
	return func(b *serviceBuilder) {
		b.idObscurer = obscurer
	}
}

func WithNameSanitizer(sanitizer NameSanitizer) Option {
	return func(b *serviceBuilder) {
		b.nameSanitizer = sanitizer
	}
}

func WithClock(clock func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.clock = clock
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("banklink", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		viewInvalidator: NopViewInvalidator{},
		nameSanitizer:   trimSanitizer{},
		clock:           func() time.Time { return time.Now().UTC() },
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return serviceErrorMapper(err)
}

type NopViewInvalidator struct{}

func (NopViewInvalidator) Invalidate(context.Context, string, ...string) error { return nil }

type trimSanitizer struct{}

func (trimSanitizer) Sanitize(value string) string { return strings.TrimSpace(value) }

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults < loaded < runtime. Zero values in the
// loaded and runtime layers never override a lower layer.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			ConfigLayer(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			ConfigLayer(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			ConfigLayer(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// ConfigLayer flattens a Config into the nested map shape cfgx decodes.
func ConfigLayer(cfg Config, includeZero bool) map[string]any {
	layer := layerMap{includeZero: includeZero, values: map[string]any{}}
	layer.put("service_name", cfg.ServiceName)

	link := layer.section("link")
	link.put("step_timeout", cfg.Link.StepTimeout)
	link.put("account_selection", cfg.Link.AccountSelection)
	link.put("products", cfg.Link.Products)
	link.put("country_codes", cfg.Link.CountryCodes)
	link.put("language", cfg.Link.Language)
	link.put("rail", cfg.Link.Rail)
	link.put("invalidate_routes", cfg.Link.InvalidateRoutes)
	layer.attach("link", link)

	httpSection := layer.section("http")
	httpSection.put("addr", cfg.HTTP.Addr)
	httpSection.put("read_timeout", cfg.HTTP.ReadTimeout)
	httpSection.put("write_timeout", cfg.HTTP.WriteTimeout)
	httpSection.put("cookie_name", cfg.HTTP.CookieName)
	httpSection.put("cookie_secure", cfg.HTTP.CookieSecure)
	layer.attach("http", httpSection)

	database := layer.section("database")
	database.put("driver", cfg.Database.Driver)
	database.put("dsn", cfg.Database.DSN)
	database.put("debug", cfg.Database.Debug)
	database.put("ping_timeout", cfg.Database.PingTimeout)
	layer.attach("database", database)

	security := layer.section("security")
	security.put("shareable_key", cfg.Security.ShareableKey)
	security.put("shareable_key_version", cfg.Security.ShareableKeyVersion)
	security.put("retired_shareable_keys", cfg.Security.RetiredShareableKeys)
	security.put("storage_key", cfg.Security.StorageKey)
	layer.attach("security", security)

	plaid := layer.section("plaid")
	plaid.put("client_id", cfg.Plaid.ClientID)
	plaid.put("secret", cfg.Plaid.Secret)
	plaid.put("environment", cfg.Plaid.Environment)
	layer.attach("plaid", plaid)

	dwolla := layer.section("dwolla")
	dwolla.put("key", cfg.Dwolla.Key)
	dwolla.put("secret", cfg.Dwolla.Secret)
	dwolla.put("environment", cfg.Dwolla.Environment)
	dwolla.put("base_url", cfg.Dwolla.BaseURL)
	layer.attach("dwolla", dwolla)

	appwrite := layer.section("appwrite")
	appwrite.put("endpoint", cfg.Appwrite.Endpoint)
	appwrite.put("project", cfg.Appwrite.Project)
	appwrite.put("api_key", cfg.Appwrite.APIKey)
	layer.attach("appwrite", appwrite)

	cache := layer.section("cache")
	cache.put("ttl", cfg.Cache.TTL)
	layer.attach("cache", cache)

	telemetry := layer.section("telemetry")
	telemetry.put("metrics_enabled", cfg.Telemetry.MetricsEnabled)
	telemetry.put("log_level", cfg.Telemetry.LogLevel)
	telemetry.put("environment", cfg.Telemetry.Environment)
	layer.attach("telemetry", telemetry)

	return layer.values
}

type layerMap struct {
	includeZero bool
	values      map[string]any
}

func (l layerMap) section(string) layerMap {
	return layerMap{includeZero: l.includeZero, values: map[string]any{}}
}

func (l layerMap) attach(key string, child layerMap) {
	if len(child.values) == 0 && !l.includeZero {
		return
	}
	l.values[key] = child.values
}

func (l layerMap) put(key string, value any) {
	if !l.includeZero && isZeroLayerValue(value) {
		return
	}
	switch typed := value.(type) {
	case []string:
		l.values[key] = append([]string(nil), typed...)
	default:
		l.values[key] = value
	}
}

func isZeroLayerValue(value any) bool {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed) == ""
	case []string:
		return len(typed) == 0
	case bool:
		return !typed
	case int:
		return typed == 0
	case time.Duration:
		return typed == 0
	case nil:
		return true
	default:
		return false
	}
}
