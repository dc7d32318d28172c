package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-banklink/core"
	"github.com/goliatone/go-banklink/transport"
)

// DoJSON sends req through adapter, checks the status and decodes a non-empty
// body into out. out may be nil.
func DoJSON(ctx context.Context, adapter core.TransportAdapter, provider string, req core.TransportRequest, out any) (core.TransportResponse, error) {
	if adapter == nil {
		return core.TransportResponse{}, fmt.Errorf("providers: %s transport adapter is required", provider)
	}
	res, err := adapter.Do(ctx, req)
	if err != nil {
		return core.TransportResponse{}, err
	}
	if err := transport.CheckStatus(provider, res); err != nil {
		return res, err
	}
	if out == nil || len(strings.TrimSpace(string(res.Body))) == 0 {
		return res, nil
	}
	if err := json.Unmarshal(res.Body, out); err != nil {
		return res, fmt.Errorf("providers: decode %s response: %w", provider, err)
	}
	return res, nil
}

// Header reads a response header case-insensitively.
func Header(res core.TransportResponse, name string) string {
	for key, value := range res.Headers {
		if strings.EqualFold(key, name) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
