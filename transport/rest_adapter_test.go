package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goliatone/go-banklink/core"
	goerrors "github.com/goliatone/go-errors"
)

func TestRESTAdapter_SendsHeadersQueryAndIdempotencyKey(t *testing.T) {
	var got *http.Request
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Location", "https://api.example.test/funding-sources/fs-1")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	adapter.DefaultHeaders["Accept"] = "application/vnd.dwolla.v1.hal+json"

	res, err := adapter.Do(context.Background(), core.TransportRequest{
		Method:      http.MethodPost,
		URL:         server.URL + "/customers/cust-1/funding-sources",
		Headers:     map[string]string{"Content-Type": "application/json"},
		Query:       map[string]string{"removed": "false"},
		Body:        []byte(`{"name":"Checking"}`),
		Idempotency: "link-usr_1-acc_1",
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", res.StatusCode)
	}
	if res.Headers["Location"] == "" {
		t.Fatalf("expected location header in response")
	}
	if got.Header.Get(IdempotencyKeyHeader) != "link-usr_1-acc_1" {
		t.Fatalf("expected idempotency header, got %q", got.Header.Get(IdempotencyKeyHeader))
	}
	if got.Header.Get("Accept") != "application/vnd.dwolla.v1.hal+json" {
		t.Fatalf("expected default accept header")
	}
	if got.URL.Query().Get("removed") != "false" {
		t.Fatalf("expected query parameter, got %q", got.URL.RawQuery)
	}
	if string(body) != `{"name":"Checking"}` {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestRESTAdapter_ResponseLimitReturnsRichError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("12345"))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	adapter.MaxResponseBodyBytes = 4

	_, err := adapter.Do(context.Background(), core.TransportRequest{Method: http.MethodGet, URL: server.URL})
	if err == nil {
		t.Fatalf("expected response body limit error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryExternal {
		t.Fatalf("expected external category, got %q", rich.Category)
	}
	if rich.TextCode != core.ServiceErrorExternalFailure {
		t.Fatalf("expected %q text code, got %q", core.ServiceErrorExternalFailure, rich.TextCode)
	}
	if rich.Code != http.StatusBadGateway {
		t.Fatalf("expected %d code, got %d", http.StatusBadGateway, rich.Code)
	}
}

func TestRESTAdapter_ConnectionFailureIsUpstreamUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewRESTAdapter(nil).Do(context.Background(), core.TransportRequest{URL: url})
	if !errors.Is(err, core.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
}

func TestRESTAdapter_NilReturnsRichError(t *testing.T) {
	var adapter *RESTAdapter
	_, err := adapter.Do(context.Background(), core.TransportRequest{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != core.ServiceErrorInternal {
		t.Fatalf("expected internal envelope, got %v", err)
	}
}

func TestCheckStatus(t *testing.T) {
	cases := []struct {
		status    int
		category  goerrors.Category
		transient bool
	}{
		{status: http.StatusBadRequest, category: goerrors.CategoryBadInput},
		{status: http.StatusUnauthorized, category: goerrors.CategoryAuth},
		{status: http.StatusNotFound, category: goerrors.CategoryNotFound},
		{status: http.StatusTooManyRequests, category: goerrors.CategoryRateLimit, transient: true},
		{status: http.StatusServiceUnavailable, category: goerrors.CategoryExternal, transient: true},
	}
	for _, tc := range cases {
		err := CheckStatus("dwolla", core.TransportResponse{StatusCode: tc.status})
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			t.Fatalf("status %d: expected envelope, got %v", tc.status, err)
		}
		if rich.Category != tc.category {
			t.Fatalf("status %d: expected %q, got %q", tc.status, tc.category, rich.Category)
		}
		if errors.Is(err, core.ErrUpstreamUnavailable) != tc.transient {
			t.Fatalf("status %d: expected transient=%v", tc.status, tc.transient)
		}
	}
	if err := CheckStatus("dwolla", core.TransportResponse{StatusCode: http.StatusCreated}); err != nil {
		t.Fatalf("expected 2xx to pass, got %v", err)
	}
}
