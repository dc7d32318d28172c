package dwolla

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/goliatone/go-banklink/core"
	"github.com/goliatone/go-banklink/providers"
	"github.com/goliatone/go-banklink/ratelimit"
	"github.com/goliatone/go-banklink/transport"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	ProviderID    = "dwolla"
	SandboxURL    = "https://api-sandbox.dwolla.com"
	ProductionURL = "https://api.dwolla.com"
	mediaType     = "application/vnd.dwolla.v1.hal+json"
)

type Config struct {
	Key         string
	Secret      string
	Environment string
	// BaseURL overrides the environment URL.
	BaseURL    string
	HTTPClient *http.Client
	// RateLimit, when set, refuses calls to a bucket the API throttled.
	RateLimit *ratelimit.Policy
}

func DefaultConfig() Config {
	return Config{Environment: "sandbox"}
}

// Client implements core.PaymentsRailClient on the Dwolla API.
type Client struct {
	baseURL string
	adapter core.TransportAdapter
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Key) == "" || strings.TrimSpace(cfg.Secret) == "" {
		return nil, fmt.Errorf("dwolla: key and secret are required")
	}
	baseURL := resolveBaseURL(cfg)
	credentials := clientcredentials.Config{
		ClientID:     strings.TrimSpace(cfg.Key),
		ClientSecret: strings.TrimSpace(cfg.Secret),
		TokenURL:     baseURL + "/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	ctx := context.Background()
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}
	adapter := transport.NewRESTAdapter(credentials.Client(ctx))
	adapter.DefaultHeaders["Accept"] = mediaType
	guarded, err := ratelimit.Wrap(ProviderID, adapter, cfg.RateLimit)
	if err != nil {
		return nil, err
	}
	return NewWithAdapter(baseURL, guarded)
}

// NewWithAdapter uses an already authenticated adapter.
func NewWithAdapter(baseURL string, adapter core.TransportAdapter) (*Client, error) {
	if adapter == nil {
		return nil, fmt.Errorf("dwolla: transport adapter is required")
	}
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("dwolla: base url is required")
	}
	return &Client{baseURL: baseURL, adapter: adapter}, nil
}

func resolveBaseURL(cfg Config) string {
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		return strings.TrimSuffix(base, "/")
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Environment), "production") {
		return ProductionURL
	}
	return SandboxURL
}

type customerPayload struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	Type        string `json:"type"`
	Address1    string `json:"address1,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	PostalCode  string `json:"postalCode,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
	SSN         string `json:"ssn,omitempty"`
}

type halLink struct {
	Href string `json:"href"`
}

type onDemandAuthorization struct {
	Links      map[string]halLink `json:"_links"`
	BodyText   string             `json:"bodyText"`
	ButtonText string             `json:"buttonText"`
}

type fundingSourcePayload struct {
	PlaidToken string             `json:"plaidToken"`
	Name       string             `json:"name"`
	Links      map[string]halLink `json:"_links,omitempty"`
}

func (c *Client) CreateCustomer(ctx context.Context, profile core.CustomerProfile) (core.PaymentsCustomer, error) {
	customerType := strings.TrimSpace(profile.Type)
	if customerType == "" {
		customerType = core.CustomerTypePersonal
	}
	body, err := json.Marshal(customerPayload{
		FirstName:   profile.FirstName,
		LastName:    profile.LastName,
		Email:       profile.Email,
		Type:        customerType,
		Address1:    profile.Address1,
		City:        profile.City,
		State:       profile.State,
		PostalCode:  profile.PostalCode,
		DateOfBirth: profile.DateOfBirth,
		SSN:         profile.SSN.Reveal(),
	})
	if err != nil {
		return core.PaymentsCustomer{}, fmt.Errorf("dwolla: encode customer: %w", err)
	}
	res, err := providers.DoJSON(ctx, c.adapter, ProviderID, c.post("/customers", body, ""), nil)
	if err != nil {
		return core.PaymentsCustomer{}, err
	}
	location := providers.Header(res, "Location")
	if location == "" {
		return core.PaymentsCustomer{}, fmt.Errorf("dwolla: customer created without a location header")
	}
	return core.PaymentsCustomer{ID: core.CustomerIDFromURL(location), URL: location}, nil
}

// RegisterFundingSource creates an on-demand authorization and then attaches
// the processor token to the customer. The idempotency key makes a retried
// submit return the funding source created by the first one.
func (c *Client) RegisterFundingSource(ctx context.Context, req core.FundingSourceRequest) (string, error) {
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		return "", fmt.Errorf("dwolla: customer id is required")
	}
	if req.ProcessorToken.IsZero() {
		return "", fmt.Errorf("dwolla: processor token is required")
	}

	var authorization onDemandAuthorization
	if _, err := providers.DoJSON(ctx, c.adapter, ProviderID, c.post("/on-demand-authorizations", nil, ""), &authorization); err != nil {
		return "", fmt.Errorf("dwolla: create on-demand authorization: %w", err)
	}
	payload := fundingSourcePayload{
		PlaidToken: req.ProcessorToken.Reveal(),
		Name:       req.Name,
	}
	if self := authorization.Links["self"].Href; self != "" {
		payload.Links = map[string]halLink{"on-demand-authorization": {Href: self}}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("dwolla: encode funding source: %w", err)
	}

	path := "/customers/" + url.PathEscape(customerID) + "/funding-sources"
	res, err := providers.DoJSON(ctx, c.adapter, ProviderID, c.post(path, body, req.IdempotencyKey), nil)
	if err != nil {
		return "", err
	}
	location := providers.Header(res, "Location")
	if location == "" {
		return "", fmt.Errorf("dwolla: funding source created without a location header")
	}
	return location, nil
}

func (c *Client) post(path string, body []byte, idempotencyKey string) core.TransportRequest {
	return core.TransportRequest{
		Method: http.MethodPost,
		URL:    c.baseURL + path,
		Headers: map[string]string{
			"Content-Type": mediaType,
			"Accept":       mediaType,
		},
		Body:        body,
		Idempotency: idempotencyKey,
	}
}

var _ core.PaymentsRailClient = (*Client)(nil)
