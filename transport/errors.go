package transport

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-banklink/core"
	goerrors "github.com/goliatone/go-errors"
)

func transportError(message string, category goerrors.Category, code int, metadata map[string]any) error {
	return decorate(goerrors.New(message, category), category, code, metadata)
}

func transportWrapError(source error, category goerrors.Category, message string, code int, metadata map[string]any) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	return decorate(goerrors.Wrap(source, category, message), category, code, metadata)
}

func decorate(err *goerrors.Error, category goerrors.Category, code int, metadata map[string]any) *goerrors.Error {
	err = err.WithCode(code).WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ServiceErrorBadInput
	case goerrors.CategoryAuth:
		return core.ServiceErrorUnauthorized
	case goerrors.CategoryAuthz:
		return core.ServiceErrorForbidden
	case goerrors.CategoryRateLimit:
		return core.ServiceErrorRateLimited
	case goerrors.CategoryNotFound:
		return core.ServiceErrorNotFound
	case goerrors.CategoryConflict:
		return core.ServiceErrorConflict
	case goerrors.CategoryOperation:
		return core.ServiceErrorOperationFailed
	case goerrors.CategoryExternal:
		return core.ServiceErrorExternalFailure
	default:
		return core.ServiceErrorInternal
	}
}

// CheckStatus turns a non-2xx response into a rich error. 5xx and 429
// responses wrap core.ErrUpstreamUnavailable.
func CheckStatus(provider string, res core.TransportResponse) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	metadata := map[string]any{
		"provider":    strings.TrimSpace(provider),
		"status_code": res.StatusCode,
	}
	message := fmt.Sprintf("transport: %s responded with status %d", strings.TrimSpace(provider), res.StatusCode)
	switch {
	case res.StatusCode >= 500, res.StatusCode == http.StatusTooManyRequests:
		category := goerrors.CategoryExternal
		if res.StatusCode == http.StatusTooManyRequests {
			category = goerrors.CategoryRateLimit
		}
		return transportWrapError(core.ErrUpstreamUnavailable, category, message, http.StatusBadGateway, metadata)
	case res.StatusCode == http.StatusUnauthorized:
		return transportError(message, goerrors.CategoryAuth, http.StatusUnauthorized, metadata)
	case res.StatusCode == http.StatusForbidden:
		return transportError(message, goerrors.CategoryAuthz, http.StatusForbidden, metadata)
	case res.StatusCode == http.StatusNotFound:
		return transportError(message, goerrors.CategoryNotFound, http.StatusNotFound, metadata)
	case res.StatusCode == http.StatusConflict:
		return transportError(message, goerrors.CategoryConflict, http.StatusConflict, metadata)
	default:
		return transportError(message, goerrors.CategoryBadInput, http.StatusBadRequest, metadata)
	}
}
