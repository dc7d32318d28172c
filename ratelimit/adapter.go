package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-banklink/core"
)

// Adapter guards a transport adapter with a Policy. Calls to a throttled
// bucket fail before reaching the network.
type Adapter struct {
	provider string
	next     core.TransportAdapter
	policy   *Policy
}

func Wrap(provider string, next core.TransportAdapter, policy *Policy) (core.TransportAdapter, error) {
	if next == nil {
		return nil, fmt.Errorf("ratelimit: transport adapter is required")
	}
	if policy == nil {
		return next, nil
	}
	return &Adapter{provider: strings.TrimSpace(provider), next: next, policy: policy}, nil
}

func (a *Adapter) Kind() string {
	return a.next.Kind()
}

func (a *Adapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	key := Key{Provider: a.provider, Bucket: BucketFor(req)}
	if err := a.policy.BeforeCall(ctx, key); err != nil {
		if throttled, ok := err.(ThrottledError); ok {
			return core.TransportResponse{}, throttled.ToServiceError()
		}
		return core.TransportResponse{}, err
	}
	res, err := a.next.Do(ctx, req)
	if err != nil {
		return res, err
	}
	_ = a.policy.AfterCall(ctx, key, res)
	return res, nil
}

// BucketFor groups requests by method and first path segment.
func BucketFor(req core.TransportRequest) string {
	method := strings.ToLower(strings.TrimSpace(req.Method))
	if method == "" {
		method = "get"
	}
	path := req.URL
	if parsed, err := url.Parse(req.URL); err == nil {
		path = parsed.Path
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	first := ""
	for _, segment := range segments {
		// versioned prefixes such as appwrite's /v1 are skipped
		if segment == "" || (len(segment) > 1 && segment[0] == 'v' && isDigits(segment[1:])) {
			continue
		}
		first = segment
		break
	}
	return method + " /" + first
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return value != ""
}
