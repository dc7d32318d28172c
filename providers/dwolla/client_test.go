package dwolla

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/goliatone/go-banklink/core"
	"github.com/goliatone/go-banklink/ratelimit"
)

type dwollaStub struct {
	mu             sync.Mutex
	server         *httptest.Server
	tokenCalls     int
	authorizations map[string]string
	bodies         map[string]map[string]any
	idempotency    map[string]string
	fundingStatus  int
	fundingCalls   int
}

func newDwollaStub(t *testing.T) *dwollaStub {
	t.Helper()
	stub := &dwollaStub{
		authorizations: map[string]string{},
		bodies:         map[string]map[string]any{},
		idempotency:    map[string]string{},
		fundingStatus:  http.StatusCreated,
	}
	stub.server = httptest.NewServer(http.HandlerFunc(stub.serve))
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *dwollaStub) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.URL.Path == "/token" {
		s.tokenCalls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"dwolla-app-token","token_type":"bearer","expires_in":3600}`))
		return
	}
	s.authorizations[r.URL.Path] = r.Header.Get("Authorization")
	raw, _ := io.ReadAll(r.Body)
	payload := map[string]any{}
	_ = json.Unmarshal(raw, &payload)
	s.bodies[r.URL.Path] = payload
	s.idempotency[r.URL.Path] = r.Header.Get("Idempotency-Key")

	switch r.URL.Path {
	case "/customers":
		w.Header().Set("Location", s.server.URL+"/customers/cust-123")
		w.WriteHeader(http.StatusCreated)
	case "/on-demand-authorizations":
		w.Header().Set("Content-Type", mediaType)
		_, _ = w.Write([]byte(`{"_links":{"self":{"href":"` + s.server.URL + `/on-demand-authorizations/oda-1"}},"bodyText":"I agree","buttonText":"Agree"}`))
	case "/customers/cust-123/funding-sources":
		s.fundingCalls++
		if s.fundingStatus != http.StatusCreated {
			w.WriteHeader(s.fundingStatus)
			_, _ = w.Write([]byte(`{"code":"ServerError","message":"try again"}`))
			return
		}
		w.Header().Set("Location", s.server.URL+"/funding-sources/fs-1")
		w.WriteHeader(http.StatusCreated)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, stub *dwollaStub) *Client {
	t.Helper()
	client, err := New(Config{
		Key:        "dwolla-key",
		Secret:     "dwolla-secret",
		BaseURL:    stub.server.URL,
		HTTPClient: stub.server.Client(),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestClient_CreateCustomer(t *testing.T) {
	stub := newDwollaStub(t)
	client := newTestClient(t, stub)

	customer, err := client.CreateCustomer(context.Background(), core.CustomerProfile{
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Email:       "ada@example.com",
		Address1:    "1 Analytical Way",
		City:        "London",
		State:       "NY",
		PostalCode:  "10001",
		DateOfBirth: "1815-12-10",
		SSN:         core.NewSecret("1234"),
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	if customer.ID != "cust-123" || customer.URL != stub.server.URL+"/customers/cust-123" {
		t.Fatalf("unexpected customer %+v", customer)
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	body := stub.bodies["/customers"]
	if body["type"] != core.CustomerTypePersonal || body["ssn"] != "1234" || body["firstName"] != "Ada" {
		t.Fatalf("unexpected customer payload %#v", body)
	}
	if stub.authorizations["/customers"] != "Bearer dwolla-app-token" {
		t.Fatalf("expected client credentials bearer token, got %q", stub.authorizations["/customers"])
	}
}

func TestClient_RegisterFundingSource(t *testing.T) {
	stub := newDwollaStub(t)
	client := newTestClient(t, stub)

	ref, err := client.RegisterFundingSource(context.Background(), core.FundingSourceRequest{
		CustomerID:     "cust-123",
		ProcessorToken: core.NewProcessorToken("processor-sandbox-1"),
		Name:           "Plaid Checking",
		IdempotencyKey: "link-cust-123-acc_1",
	})
	if err != nil {
		t.Fatalf("register funding source: %v", err)
	}
	if ref != stub.server.URL+"/funding-sources/fs-1" {
		t.Fatalf("unexpected funding source ref %q", ref)
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	body := stub.bodies["/customers/cust-123/funding-sources"]
	if body["plaidToken"] != "processor-sandbox-1" || body["name"] != "Plaid Checking" {
		t.Fatalf("unexpected funding source payload %#v", body)
	}
	links, _ := body["_links"].(map[string]any)
	authorization, _ := links["on-demand-authorization"].(map[string]any)
	if authorization["href"] != stub.server.URL+"/on-demand-authorizations/oda-1" {
		t.Fatalf("expected on-demand authorization link, got %#v", body["_links"])
	}
	if stub.idempotency["/customers/cust-123/funding-sources"] != "link-cust-123-acc_1" {
		t.Fatalf("expected idempotency key on funding source request")
	}
	if stub.tokenCalls != 1 {
		t.Fatalf("expected one token fetch reused across calls, got %d", stub.tokenCalls)
	}
}

func TestClient_RegisterFundingSourceServerErrorIsTransient(t *testing.T) {
	stub := newDwollaStub(t)
	stub.fundingStatus = http.StatusServiceUnavailable
	client := newTestClient(t, stub)

	_, err := client.RegisterFundingSource(context.Background(), core.FundingSourceRequest{
		CustomerID:     "cust-123",
		ProcessorToken: core.NewProcessorToken("processor-sandbox-1"),
		Name:           "Plaid Checking",
	})
	if !errors.Is(err, core.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
}

func TestClient_RegisterFundingSourceRejectionIsNotTransient(t *testing.T) {
	stub := newDwollaStub(t)
	stub.fundingStatus = http.StatusBadRequest
	client := newTestClient(t, stub)

	_, err := client.RegisterFundingSource(context.Background(), core.FundingSourceRequest{
		CustomerID:     "cust-123",
		ProcessorToken: core.NewProcessorToken("processor-sandbox-1"),
		Name:           "Plaid Checking",
	})
	if err == nil || errors.Is(err, core.ErrUpstreamUnavailable) {
		t.Fatalf("expected permanent rejection, got %v", err)
	}
}

func TestClient_RegisterFundingSourceValidatesInput(t *testing.T) {
	stub := newDwollaStub(t)
	client := newTestClient(t, stub)
	if _, err := client.RegisterFundingSource(context.Background(), core.FundingSourceRequest{CustomerID: "cust-123"}); err == nil {
		t.Fatalf("expected missing processor token to fail")
	}
	if _, err := client.RegisterFundingSource(context.Background(), core.FundingSourceRequest{ProcessorToken: core.NewProcessorToken("p")}); err == nil {
		t.Fatalf("expected missing customer id to fail")
	}
}

func TestResolveBaseURL(t *testing.T) {
	if resolveBaseURL(Config{Environment: "production"}) != ProductionURL {
		t.Fatalf("expected production url")
	}
	if resolveBaseURL(Config{}) != SandboxURL {
		t.Fatalf("expected sandbox url by default")
	}
	if resolveBaseURL(Config{BaseURL: "http://localhost:9000/"}) != "http://localhost:9000" {
		t.Fatalf("expected base url override")
	}
}

func TestClient_ThrottledBucketSkipsNetwork(t *testing.T) {
	stub := newDwollaStub(t)
	stub.fundingStatus = http.StatusTooManyRequests
	client, err := New(Config{
		Key:        "dwolla-key",
		Secret:     "dwolla-secret",
		BaseURL:    stub.server.URL,
		HTTPClient: stub.server.Client(),
		RateLimit:  ratelimit.NewPolicy(ratelimit.NewMemoryStateStore()),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	req := core.FundingSourceRequest{
		CustomerID:     "cust-123",
		ProcessorToken: core.NewProcessorToken("processor-sandbox-1"),
		Name:           "Plaid Checking",
	}

	for i := 0; i < 2; i++ {
		if _, err := client.RegisterFundingSource(context.Background(), req); !errors.Is(err, core.ErrUpstreamUnavailable) {
			t.Fatalf("attempt %d: expected upstream unavailable, got %v", i+1, err)
		}
	}
	stub.mu.Lock()
	defer stub.mu.Unlock()
	if stub.fundingCalls != 1 {
		t.Fatalf("expected second registration refused locally, got %d upstream calls", stub.fundingCalls)
	}
}
