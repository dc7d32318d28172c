package appwrite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-banklink/core"
	"github.com/goliatone/go-banklink/providers"
	"github.com/goliatone/go-banklink/ratelimit"
	"github.com/goliatone/go-banklink/transport"
	goerrors "github.com/goliatone/go-errors"
)

const (
	ProviderID    = "appwrite"
	projectHeader = "X-Appwrite-Project"
	keyHeader     = "X-Appwrite-Key"
	sessionHeader = "X-Appwrite-Session"
	// uniqueID asks the server to allocate the user id.
	uniqueID = "unique()"
)

type Config struct {
	Endpoint   string
	Project    string
	APIKey     string
	HTTPClient transport.HTTPDoer
	RateLimit  *ratelimit.Policy
}

// Client implements core.IdentityStore on the Appwrite REST API. Admin
// calls use the API key; session calls act as the signed-in user.
type Client struct {
	endpoint string
	apiKey   core.Secret
	adapter  core.TransportAdapter
}

func New(cfg Config) (*Client, error) {
	endpoint := strings.TrimSuffix(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("appwrite: endpoint is required")
	}
	if strings.TrimSpace(cfg.Project) == "" {
		return nil, fmt.Errorf("appwrite: project is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("appwrite: api key is required")
	}
	adapter := transport.NewRESTAdapter(cfg.HTTPClient)
	adapter.DefaultHeaders["Content-Type"] = "application/json"
	adapter.DefaultHeaders[projectHeader] = strings.TrimSpace(cfg.Project)
	guarded, err := ratelimit.Wrap(ProviderID, adapter, cfg.RateLimit)
	if err != nil {
		return nil, err
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   core.NewSecret(cfg.APIKey),
		adapter:  guarded,
	}, nil
}

type userPayload struct {
	ID    string `json:"$id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type sessionPayload struct {
	ID     string `json:"$id"`
	UserID string `json:"userId"`
	Secret string `json:"secret"`
	Expire string `json:"expire"`
}

func (c *Client) CreateAccount(ctx context.Context, account core.NewAccount) (core.IdentityAccount, error) {
	body, err := json.Marshal(map[string]string{
		"userId":   uniqueID,
		"email":    account.Email,
		"password": account.Password.Reveal(),
		"name":     account.Name,
	})
	if err != nil {
		return core.IdentityAccount{}, fmt.Errorf("appwrite: encode account: %w", err)
	}
	var user userPayload
	if _, err := providers.DoJSON(ctx, c.adapter, ProviderID, c.admin(http.MethodPost, "/users", body), &user); err != nil {
		return core.IdentityAccount{}, err
	}
	if user.ID == "" {
		return core.IdentityAccount{}, fmt.Errorf("appwrite: created user has no id")
	}
	return core.IdentityAccount{ID: user.ID, Email: user.Email, Name: user.Name}, nil
}

func (c *Client) CreateSession(ctx context.Context, email string, password core.Secret) (core.Session, error) {
	body, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password.Reveal(),
	})
	if err != nil {
		return core.Session{}, fmt.Errorf("appwrite: encode session: %w", err)
	}
	var session sessionPayload
	if _, err := providers.DoJSON(ctx, c.adapter, ProviderID, c.admin(http.MethodPost, "/account/sessions/email", body), &session); err != nil {
		return core.Session{}, err
	}
	if session.Secret == "" {
		return core.Session{}, fmt.Errorf("appwrite: session created without a secret")
	}
	out := core.Session{
		ID:     session.ID,
		UserID: session.UserID,
		Secret: core.NewSessionSecret(session.Secret),
	}
	if expire, err := time.Parse(time.RFC3339Nano, session.Expire); err == nil {
		out.ExpiresAt = expire.UTC()
	}
	return out, nil
}

// CurrentUser returns core.ErrSessionInvalid when the session is rejected.
func (c *Client) CurrentUser(ctx context.Context, session core.Session) (core.IdentityAccount, error) {
	if session.IsZero() {
		return core.IdentityAccount{}, core.ErrSessionInvalid
	}
	var user userPayload
	if _, err := providers.DoJSON(ctx, c.adapter, ProviderID, c.asUser(http.MethodGet, "/account", session), &user); err != nil {
		return core.IdentityAccount{}, sessionError(err)
	}
	return core.IdentityAccount{ID: user.ID, Email: user.Email, Name: user.Name}, nil
}

func (c *Client) DeleteSession(ctx context.Context, session core.Session) error {
	if session.IsZero() {
		return core.ErrSessionInvalid
	}
	if _, err := providers.DoJSON(ctx, c.adapter, ProviderID, c.asUser(http.MethodDelete, "/account/sessions/current", session), nil); err != nil {
		return sessionError(err)
	}
	return nil
}

func (c *Client) admin(method, path string, body []byte) core.TransportRequest {
	return core.TransportRequest{
		Method:  method,
		URL:     c.endpoint + path,
		Headers: map[string]string{keyHeader: c.apiKey.Reveal()},
		Body:    body,
	}
}

func (c *Client) asUser(method, path string, session core.Session) core.TransportRequest {
	return core.TransportRequest{
		Method:  method,
		URL:     c.endpoint + path,
		Headers: map[string]string{sessionHeader: session.Secret.Reveal()},
	}
}

func sessionError(err error) error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && (rich.Category == goerrors.CategoryAuth || rich.Category == goerrors.CategoryAuthz) {
		return errors.Join(core.ErrSessionInvalid, err)
	}
	return err
}

var _ core.IdentityStore = (*Client)(nil)
