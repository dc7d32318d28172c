package plaid

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-banklink/core"
	plaidapi "github.com/plaid/plaid-go/v20/plaid"
	"github.com/shopspring/decimal"
)

const ProviderID = "plaid"

// Error codes that mean the public token can no longer be exchanged.
var consumedTokenCodes = map[string]struct{}{
	"INVALID_PUBLIC_TOKEN": {},
	"ITEM_NOT_FOUND":       {},
}

type Config struct {
	ClientID    string
	Secret      string
	Environment string
	HTTPClient  *http.Client
}

func DefaultConfig() Config {
	return Config{Environment: "sandbox"}
}

// Client implements core.AggregatorClient on the Plaid API.
type Client struct {
	api *plaidapi.APIClient
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.Secret) == "" {
		return nil, fmt.Errorf("plaid: client id and secret are required")
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = DefaultConfig().Environment
	}

	configuration := plaidapi.NewConfiguration()
	configuration.AddDefaultHeader("PLAID-CLIENT-ID", strings.TrimSpace(cfg.ClientID))
	configuration.AddDefaultHeader("PLAID-SECRET", strings.TrimSpace(cfg.Secret))
	configuration.UseEnvironment(resolveEnvironment(cfg.Environment))
	if cfg.HTTPClient != nil {
		configuration.HTTPClient = cfg.HTTPClient
	}
	return &Client{api: plaidapi.NewAPIClient(configuration)}, nil
}

// resolveEnvironment accepts "sandbox", "production" or a base URL.
func resolveEnvironment(value string) plaidapi.Environment {
	value = strings.TrimSpace(value)
	switch strings.ToLower(value) {
	case "production":
		return plaidapi.Production
	case "sandbox", "":
		return plaidapi.Sandbox
	}
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		return plaidapi.Environment(strings.TrimSuffix(value, "/"))
	}
	return plaidapi.Sandbox
}

func (c *Client) CreateLinkHandle(ctx context.Context, req core.LinkHandleRequest) (core.LinkHandle, error) {
	countryCodes := make([]plaidapi.CountryCode, 0, len(req.CountryCodes))
	for _, code := range req.CountryCodes {
		countryCodes = append(countryCodes, plaidapi.CountryCode(strings.ToUpper(strings.TrimSpace(code))))
	}
	products := make([]plaidapi.Products, 0, len(req.Products))
	for _, product := range req.Products {
		products = append(products, plaidapi.Products(strings.ToLower(strings.TrimSpace(product))))
	}

	request := plaidapi.NewLinkTokenCreateRequest(
		req.ClientName,
		req.Language,
		countryCodes,
		plaidapi.LinkTokenCreateRequestUser{ClientUserId: req.UserID},
	)
	request.SetProducts(products)

	resp, httpResp, err := c.api.PlaidApi.LinkTokenCreate(ctx).LinkTokenCreateRequest(*request).Execute()
	if err != nil {
		return core.LinkHandle{}, classify("link token create", httpResp, err)
	}
	return core.LinkHandle{
		Token:      resp.GetLinkToken(),
		Expiration: resp.GetExpiration(),
		RequestID:  resp.GetRequestId(),
	}, nil
}

func (c *Client) ExchangePublicToken(ctx context.Context, token core.PublicToken) (core.ItemAccess, error) {
	request := plaidapi.NewItemPublicTokenExchangeRequest(token.Reveal())
	resp, httpResp, err := c.api.PlaidApi.ItemPublicTokenExchange(ctx).ItemPublicTokenExchangeRequest(*request).Execute()
	if err != nil {
		err = classify("public token exchange", httpResp, err)
		if code := errorCode(err); code != "" {
			if _, consumed := consumedTokenCodes[code]; consumed {
				return core.ItemAccess{}, fmt.Errorf("%w: %s", core.ErrPublicTokenConsumed, code)
			}
		}
		return core.ItemAccess{}, err
	}
	return core.ItemAccess{
		AccessToken: core.NewAccessToken(resp.GetAccessToken()),
		ItemID:      resp.GetItemId(),
	}, nil
}

func (c *Client) ListAccounts(ctx context.Context, token core.AccessToken) ([]core.AccountSummary, error) {
	request := plaidapi.NewAccountsGetRequest(token.Reveal())
	resp, httpResp, err := c.api.PlaidApi.AccountsGet(ctx).AccountsGetRequest(*request).Execute()
	if err != nil {
		return nil, classify("accounts get", httpResp, err)
	}

	accounts := resp.GetAccounts()
	out := make([]core.AccountSummary, 0, len(accounts))
	for _, account := range accounts {
		balances := account.GetBalances()
		out = append(out, core.AccountSummary{
			ID:               account.GetAccountId(),
			Name:             account.GetName(),
			OfficialName:     account.GetOfficialName(),
			Mask:             account.GetMask(),
			Type:             string(account.GetType()),
			Subtype:          string(account.GetSubtype()),
			AvailableBalance: decimal.NewFromFloat(balances.GetAvailable()),
			CurrentBalance:   decimal.NewFromFloat(balances.GetCurrent()),
			CurrencyCode:     balances.GetIsoCurrencyCode(),
		})
	}
	return out, nil
}

func (c *Client) CreateProcessorToken(ctx context.Context, token core.AccessToken, accountID string, rail string) (core.ProcessorToken, error) {
	request := plaidapi.NewProcessorTokenCreateRequest(token.Reveal(), accountID, rail)
	resp, httpResp, err := c.api.PlaidApi.ProcessorTokenCreate(ctx).ProcessorTokenCreateRequest(*request).Execute()
	if err != nil {
		return core.ProcessorToken{}, classify("processor token create", httpResp, err)
	}
	return core.NewProcessorToken(resp.GetProcessorToken()), nil
}

// apiError keeps the Plaid error code without carrying response bodies,
// which may echo request fields.
type apiError struct {
	operation string
	status    int
	code      string
	cause     error
}

func (e *apiError) Error() string {
	if e.code == "" {
		return fmt.Sprintf("plaid: %s failed with status %d", e.operation, e.status)
	}
	return fmt.Sprintf("plaid: %s failed with status %d (%s)", e.operation, e.status, e.code)
}

func (e *apiError) Unwrap() error {
	return e.cause
}

func classify(operation string, httpResp *http.Response, err error) error {
	if httpResp == nil {
		return fmt.Errorf("plaid: %s: %w: %w", operation, core.ErrUpstreamUnavailable, err)
	}
	wrapped := &apiError{operation: operation, status: httpResp.StatusCode}
	if plaidErr, convErr := plaidapi.ToPlaidError(err); convErr == nil {
		wrapped.code = plaidErr.GetErrorCode()
	}
	if httpResp.StatusCode >= http.StatusInternalServerError || httpResp.StatusCode == http.StatusTooManyRequests {
		wrapped.cause = core.ErrUpstreamUnavailable
	}
	return wrapped
}

func errorCode(err error) string {
	var wrapped *apiError
	if errors.As(err, &wrapped) {
		return wrapped.code
	}
	return ""
}

var _ core.AggregatorClient = (*Client)(nil)
