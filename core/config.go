package core

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	AccountSelectionFirst  = "first"
	AccountSelectionSingle = "single"

	RouteHome            = "/"
	RoutePaymentTransfer = "/payment-transfer"
)

type LinkConfig struct {
	StepTimeout      time.Duration `koanf:"step_timeout" mapstructure:"step_timeout"`
	AccountSelection string        `koanf:"account_selection" mapstructure:"account_selection"`
	Products         []string      `koanf:"products" mapstructure:"products"`
	CountryCodes     []string      `koanf:"country_codes" mapstructure:"country_codes"`
	Language         string        `koanf:"language" mapstructure:"language"`
	Rail             string        `koanf:"rail" mapstructure:"rail"`
	InvalidateRoutes []string      `koanf:"invalidate_routes" mapstructure:"invalidate_routes"`
}

type HTTPConfig struct {
	Addr         string        `koanf:"addr" mapstructure:"addr"`
	ReadTimeout  time.Duration `koanf:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout" mapstructure:"write_timeout"`
	CookieName   string        `koanf:"cookie_name" mapstructure:"cookie_name"`
	CookieSecure bool          `koanf:"cookie_secure" mapstructure:"cookie_secure"`
}

type DatabaseConfig struct {
	Driver      string        `koanf:"driver" mapstructure:"driver"`
	DSN         string        `koanf:"dsn" mapstructure:"dsn"`
	Debug       bool          `koanf:"debug" mapstructure:"debug"`
	PingTimeout time.Duration `koanf:"ping_timeout" mapstructure:"ping_timeout"`
}

type SecurityConfig struct {
	ShareableKey         string   `koanf:"shareable_key" mapstructure:"shareable_key"`
	ShareableKeyVersion  int      `koanf:"shareable_key_version" mapstructure:"shareable_key_version"`
	RetiredShareableKeys []string `koanf:"retired_shareable_keys" mapstructure:"retired_shareable_keys"`
	StorageKey           string   `koanf:"storage_key" mapstructure:"storage_key"`
}

type PlaidConfig struct {
	ClientID    string `koanf:"client_id" mapstructure:"client_id"`
	Secret      string `koanf:"secret" mapstructure:"secret"`
	Environment string `koanf:"environment" mapstructure:"environment"`
}

type DwollaConfig struct {
	Key         string `koanf:"key" mapstructure:"key"`
	Secret      string `koanf:"secret" mapstructure:"secret"`
	Environment string `koanf:"environment" mapstructure:"environment"`
	BaseURL     string `koanf:"base_url" mapstructure:"base_url"`
}

type AppwriteConfig struct {
	Endpoint string `koanf:"endpoint" mapstructure:"endpoint"`
	Project  string `koanf:"project" mapstructure:"project"`
	APIKey   string `koanf:"api_key" mapstructure:"api_key"`
}

type CacheConfig struct {
	TTL time.Duration `koanf:"ttl" mapstructure:"ttl"`
}

type TelemetryConfig struct {
	MetricsEnabled bool   `koanf:"metrics_enabled" mapstructure:"metrics_enabled"`
	LogLevel       string `koanf:"log_level" mapstructure:"log_level"`
	Environment    string `koanf:"environment" mapstructure:"environment"`
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	Link        LinkConfig      `koanf:"link" mapstructure:"link"`
	HTTP        HTTPConfig      `koanf:"http" mapstructure:"http"`
	Database    DatabaseConfig  `koanf:"database" mapstructure:"database"`
	Security    SecurityConfig  `koanf:"security" mapstructure:"security"`
	Plaid       PlaidConfig     `koanf:"plaid" mapstructure:"plaid"`
	Dwolla      DwollaConfig    `koanf:"dwolla" mapstructure:"dwolla"`
	Appwrite    AppwriteConfig  `koanf:"appwrite" mapstructure:"appwrite"`
	Cache       CacheConfig     `koanf:"cache" mapstructure:"cache"`
	Telemetry   TelemetryConfig `koanf:"telemetry" mapstructure:"telemetry"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "banklink",
		Link: LinkConfig{
			StepTimeout:      15 * time.Second,
			AccountSelection: AccountSelectionFirst,
			Products:         []string{"auth"},
			CountryCodes:     []string{"US"},
			Language:         "en",
			Rail:             "dwolla",
			InvalidateRoutes: []string{RouteHome, RoutePaymentTransfer},
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 90 * time.Second,
			CookieName:   "banklink-session",
			CookieSecure: true,
		},
		Database: DatabaseConfig{
			Driver:      "sqlite3",
			DSN:         "file:banklink.db?_foreign_keys=on",
			PingTimeout: 5 * time.Second,
		},
		Security: SecurityConfig{
			ShareableKeyVersion: 1,
		},
		Plaid: PlaidConfig{
			Environment: "sandbox",
		},
		Dwolla: DwollaConfig{
			Environment: "sandbox",
		},
		Cache: CacheConfig{
			TTL: 5 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			MetricsEnabled: true,
			LogLevel:       "info",
			Environment:    "development",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	return c.Link.Validate()
}

func (c LinkConfig) Validate() error {
	if c.StepTimeout <= 0 {
		return fmt.Errorf("core: link.step_timeout must be positive")
	}
	if !slices.Contains([]string{AccountSelectionFirst, AccountSelectionSingle}, c.AccountSelection) {
		return fmt.Errorf("core: link.account_selection %q is invalid", c.AccountSelection)
	}
	if len(c.Products) == 0 {
		return fmt.Errorf("core: link.products is required")
	}
	if len(c.CountryCodes) == 0 {
		return fmt.Errorf("core: link.country_codes is required")
	}
	if strings.TrimSpace(c.Rail) == "" {
		return fmt.Errorf("core: link.rail is required")
	}
	return nil
}
