package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

var (
	// ErrPublicTokenConsumed marks an exchange rejected because the public
	// token was already used or has expired.
	ErrPublicTokenConsumed = errors.New("core: public token already consumed")
	// ErrUpstreamUnavailable marks transport failures and 5xx responses.
	ErrUpstreamUnavailable = errors.New("core: upstream unavailable")
	// ErrSessionInvalid marks a session the identity store no longer honors.
	ErrSessionInvalid = errors.New("core: session invalid")
	ErrEmptyOutcome   = errors.New("core: outcome carries neither a value nor a failure")
)

const (
	LinkErrorBadInput                        = "LINK_BAD_INPUT"
	LinkErrorUpstreamUnavailable             = "LINK_UPSTREAM_UNAVAILABLE"
	LinkErrorTokenAlreadyConsumed            = "LINK_TOKEN_ALREADY_CONSUMED"
	LinkErrorAccountSelectionUnsupported     = "LINK_ACCOUNT_SELECTION_UNSUPPORTED"
	LinkErrorNoAccounts                      = "LINK_NO_ACCOUNTS"
	LinkErrorFundingSourceRegistrationFailed = "LINK_FUNDING_SOURCE_REGISTRATION_FAILED"
	LinkErrorPersistenceFailed               = "LINK_PERSISTENCE_FAILED"
	LinkErrorObscuringKey                    = "LINK_OBSCURING_KEY_ERROR"

	UserErrorBadInput            = "USER_BAD_INPUT"
	UserErrorUnauthenticated     = "USER_UNAUTHENTICATED"
	UserErrorSignUpIncomplete    = "USER_SIGNUP_INCOMPLETE"
	UserErrorIdentityUnavailable = "USER_IDENTITY_UNAVAILABLE"
	UserErrorProfileNotFound     = "USER_PROFILE_NOT_FOUND"

	BankErrorNotFound            = "BANK_NOT_FOUND"
	BankErrorUpstreamUnavailable = "BANK_UPSTREAM_UNAVAILABLE"

	ServiceErrorBadInput        = "SERVICE_BAD_INPUT"
	ServiceErrorUnauthorized    = "SERVICE_UNAUTHORIZED"
	ServiceErrorForbidden       = "SERVICE_FORBIDDEN"
	ServiceErrorNotFound        = "SERVICE_NOT_FOUND"
	ServiceErrorConflict        = "SERVICE_CONFLICT"
	ServiceErrorRateLimited     = "SERVICE_RATE_LIMITED"
	ServiceErrorOperationFailed = "SERVICE_OPERATION_FAILED"
	ServiceErrorExternalFailure = "SERVICE_EXTERNAL_FAILURE"
	ServiceErrorInternal        = "SERVICE_INTERNAL_ERROR"
)

type FailureKind string

const (
	FailureInvalidRequest                  FailureKind = "invalid_request"
	FailureUpstreamUnavailable             FailureKind = "upstream_unavailable"
	FailureTokenAlreadyConsumed            FailureKind = "token_already_consumed"
	FailureAccountSelectionUnsupported     FailureKind = "account_selection_unsupported"
	FailureNoAccounts                      FailureKind = "no_accounts"
	FailureFundingSourceRegistrationFailed FailureKind = "funding_source_registration_failed"
	FailurePersistenceFailed               FailureKind = "persistence_failed"
	FailureObscuringKeyError               FailureKind = "obscuring_key_error"
)

// Recovery tells the caller which affordance to present for a failure.
type Recovery string

const (
	RecoveryFixInput      Recovery = "fix_input"
	RecoveryRestartLink   Recovery = "restart_link"
	RecoveryRetryComplete Recovery = "retry_with_new_link"
	RecoveryReported      Recovery = "reported"
	RecoveryOperator      Recovery = "operator_reconciliation"
	RecoveryFatal         Recovery = "fatal"
)

type failureSpec struct {
	textCode    string
	category    goerrors.Category
	status      int
	recovery    Recovery
	userMessage string
}

var failureSpecs = map[FailureKind]failureSpec{
	FailureInvalidRequest: {
		textCode: LinkErrorBadInput, category: goerrors.CategoryBadInput, status: http.StatusBadRequest,
		recovery: RecoveryFixInput, userMessage: "The link request is incomplete.",
	},
	FailureUpstreamUnavailable: {
		textCode: LinkErrorUpstreamUnavailable, category: goerrors.CategoryExternal, status: http.StatusBadGateway,
		recovery: RecoveryRestartLink, userMessage: "Your bank could not be reached. Please start linking again.",
	},
	FailureTokenAlreadyConsumed: {
		textCode: LinkErrorTokenAlreadyConsumed, category: goerrors.CategoryConflict, status: http.StatusConflict,
		recovery: RecoveryRestartLink, userMessage: "This bank account is already linked.",
	},
	FailureAccountSelectionUnsupported: {
		textCode: LinkErrorAccountSelectionUnsupported, category: goerrors.CategoryOperation, status: http.StatusUnprocessableEntity,
		recovery: RecoveryReported, userMessage: "Please select a single account to link.",
	},
	FailureNoAccounts: {
		textCode: LinkErrorNoAccounts, category: goerrors.CategoryOperation, status: http.StatusUnprocessableEntity,
		recovery: RecoveryRestartLink, userMessage: "No accounts were shared from your bank.",
	},
	FailureFundingSourceRegistrationFailed: {
		textCode: LinkErrorFundingSourceRegistrationFailed, category: goerrors.CategoryExternal, status: http.StatusBadGateway,
		recovery: RecoveryRetryComplete, userMessage: "We could not register this account for transfers. Please link it again.",
	},
	FailurePersistenceFailed: {
		textCode: LinkErrorPersistenceFailed, category: goerrors.CategoryInternal, status: http.StatusInternalServerError,
		recovery: RecoveryOperator, userMessage: "Your account was registered but could not be saved. Support has been notified.",
	},
	FailureObscuringKeyError: {
		textCode: LinkErrorObscuringKey, category: goerrors.CategoryInternal, status: http.StatusInternalServerError,
		recovery: RecoveryFatal, userMessage: "Bank linking is unavailable.",
	},
}

// Failure is the failure variant of an Outcome.
type Failure struct {
	Kind FailureKind
	Step LinkStep
	Err  *goerrors.Error
}

func NewFailure(kind FailureKind, step LinkStep, cause error) *Failure {
	spec, ok := failureSpecs[kind]
	if !ok {
		spec = failureSpecs[FailurePersistenceFailed]
		spec.textCode = ServiceErrorInternal
	}
	rich := goerrors.New(fmt.Sprintf("link: %s failed at %s", kind, step), spec.category).
		WithCode(spec.status).
		WithTextCode(spec.textCode).
		WithMetadata(map[string]any{
			"kind":      string(kind),
			"step":      string(step),
			"recovery":  string(spec.recovery),
			"transient": isTransient(cause),
		})
	rich.Source = cause
	return &Failure{Kind: kind, Step: step, Err: rich}
}

func (f *Failure) Error() string {
	if f == nil || f.Err == nil {
		return "link: unknown failure"
	}
	return f.Err.Error()
}

func (f *Failure) Unwrap() error {
	if f == nil || f.Err == nil {
		return nil
	}
	return f.Err
}

func (f *Failure) TextCode() string {
	if f == nil || f.Err == nil {
		return ServiceErrorInternal
	}
	return f.Err.TextCode
}

func (f *Failure) HTTPStatus() int {
	if f == nil || f.Err == nil || f.Err.Code == 0 {
		return http.StatusInternalServerError
	}
	return f.Err.Code
}

func (f *Failure) Recovery() Recovery {
	if f == nil {
		return RecoveryFatal
	}
	return failureSpecs[f.Kind].recovery
}

// UserMessage is safe to render to the end user.
func (f *Failure) UserMessage() string {
	if f == nil {
		return "Something went wrong."
	}
	if spec, ok := failureSpecs[f.Kind]; ok {
		return spec.userMessage
	}
	return "Something went wrong."
}

// classifyStepError maps a step error to its failure kind. The mapping is
// fixed per step so a timeout or transport error is never mistaken for
// success.
func classifyStepError(step LinkStep, err error) *Failure {
	if err == nil {
		return nil
	}
	var failure *Failure
	if errors.As(err, &failure) && failure != nil {
		return failure
	}
	switch step {
	case StepValidate:
		return NewFailure(FailureInvalidRequest, step, err)
	case StepExchangePublicToken:
		if errors.Is(err, ErrPublicTokenConsumed) {
			return NewFailure(FailureTokenAlreadyConsumed, step, err)
		}
		return NewFailure(FailureUpstreamUnavailable, step, err)
	case StepCreateLinkHandle, StepListAccounts, StepCreateProcessorToken:
		return NewFailure(FailureUpstreamUnavailable, step, err)
	case StepRegisterFundingSource:
		return NewFailure(FailureFundingSourceRegistrationFailed, step, err)
	case StepObscureAccountID:
		return NewFailure(FailureObscuringKeyError, step, err)
	case StepPersistRecord:
		return NewFailure(FailurePersistenceFailed, step, err)
	default:
		return NewFailure(FailureUpstreamUnavailable, step, err)
	}
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrUpstreamUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// ObscuringKeyError reports a missing or invalid shareable id key. It is
// raised while wiring the service, never per request.
func ObscuringKeyError(cause error) *goerrors.Error {
	err := goerrors.New("security: shareable id key is invalid", goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(LinkErrorObscuringKey)
	err.Source = cause
	return err
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func wrapServiceError(source error, category goerrors.Category, textCode string, message string) *goerrors.Error {
	err := newServiceError(message, category, textCode)
	err.Source = source
	return err
}

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var failure *Failure
	if errors.As(err, &failure) && failure != nil && failure.Err != nil {
		return failure.Err
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case errors.Is(err, ErrSessionInvalid):
		return newServiceError(err.Error(), goerrors.CategoryAuth, UserErrorUnauthenticated)
	case errors.Is(err, ErrUpstreamUnavailable), errors.Is(err, context.DeadlineExceeded):
		return newServiceError(err.Error(), goerrors.CategoryExternal, ServiceErrorExternalFailure)
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newServiceError(err.Error(), goerrors.CategoryRateLimit, ServiceErrorRateLimited)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ServiceErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ServiceErrorBadInput
	case goerrors.CategoryNotFound:
		return ServiceErrorNotFound
	case goerrors.CategoryAuth:
		return ServiceErrorUnauthorized
	case goerrors.CategoryAuthz:
		return ServiceErrorForbidden
	case goerrors.CategoryConflict:
		return ServiceErrorConflict
	case goerrors.CategoryRateLimit:
		return ServiceErrorRateLimited
	case goerrors.CategoryOperation:
		return ServiceErrorOperationFailed
	case goerrors.CategoryExternal:
		return ServiceErrorExternalFailure
	default:
		return ServiceErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryOperation:
		return http.StatusUnprocessableEntity
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// MapError normalizes any error into a go-errors envelope.
func MapError(err error) *goerrors.Error {
	return serviceErrorMapper(err)
}
