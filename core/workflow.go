package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var linkTracer = otel.Tracer("banklink/core")

type LinkStep string

const (
	StepUnknown               LinkStep = "unknown"
	StepValidate              LinkStep = "validate"
	StepCreateLinkHandle      LinkStep = "create_link_handle"
	StepExchangePublicToken   LinkStep = "exchange_public_token"
	StepListAccounts          LinkStep = "list_accounts"
	StepSelectAccount         LinkStep = "select_account"
	StepCreateProcessorToken  LinkStep = "create_processor_token"
	StepRegisterFundingSource LinkStep = "register_funding_source"
	StepObscureAccountID      LinkStep = "obscure_account_id"
	StepPersistRecord         LinkStep = "persist_record"
	StepInvalidateViews       LinkStep = "invalidate_views"
)

type CompleteLinkRequest struct {
	PublicToken PublicToken
	User        UserIdentity
	// AccountID optionally names the account to link when the institution
	// shares several.
	AccountID string
}

func (r CompleteLinkRequest) Validate() error {
	if r.PublicToken.IsZero() {
		return fmt.Errorf("link: public token is required")
	}
	if strings.TrimSpace(r.User.ID) == "" {
		return fmt.Errorf("link: user id is required")
	}
	if strings.TrimSpace(r.User.PaymentsCustomerID) == "" {
		return fmt.Errorf("link: user has no payments customer id")
	}
	return nil
}

// LinkWorkflow drives link initiation and the sequential completion steps.
// It never retries a step and never persists a partial record.
type LinkWorkflow struct {
	config      LinkConfig
	clientName  string
	aggregator  AggregatorClient
	rail        PaymentsRailClient
	records     BankRecordStore
	obscurer    IDObscurer
	views       ViewInvalidator
	sanitizer   NameSanitizer
	now         func() time.Time
	observation observer
}

func (w *LinkWorkflow) Initiate(ctx context.Context, user UserIdentity) (outcome Outcome[LinkHandle]) {
	startedAt := time.Now()
	fields := map[string]any{"user_id": user.ID}
	defer func() {
		w.annotateFailure(fields, outcome.Failure)
		w.observation.observeOperation(ctx, startedAt, "link_initiate", outcome.Err(), fields)
	}()

	if strings.TrimSpace(user.ID) == "" {
		return Failed[LinkHandle](classifyStepError(StepValidate, fmt.Errorf("link: user id is required")))
	}
	clientName := w.sanitizer.Sanitize(user.Name())
	if clientName == "" {
		clientName = w.clientName
	}

	handle, err := runStep(ctx, w, StepCreateLinkHandle, func(ctx context.Context) (LinkHandle, error) {
		return w.aggregator.CreateLinkHandle(ctx, LinkHandleRequest{
			UserID:       user.ID,
			ClientName:   clientName,
			Products:     append([]string(nil), w.config.Products...),
			CountryCodes: append([]string(nil), w.config.CountryCodes...),
			Language:     w.config.Language,
		})
	})
	if err == nil && strings.TrimSpace(handle.Token) == "" {
		err = fmt.Errorf("link: aggregator returned an empty link token: %w", ErrUpstreamUnavailable)
	}
	if err != nil {
		return Failed[LinkHandle](classifyStepError(StepCreateLinkHandle, err))
	}
	return Succeeded(handle)
}

func (w *LinkWorkflow) Complete(ctx context.Context, req CompleteLinkRequest) (outcome Outcome[BankAccountRecord]) {
	startedAt := time.Now()
	fields := map[string]any{"user_id": req.User.ID}
	defer func() {
		w.annotateFailure(fields, outcome.Failure)
		w.observation.observeOperation(ctx, startedAt, "link_complete", outcome.Err(), fields)
	}()

	if err := req.Validate(); err != nil {
		return Failed[BankAccountRecord](classifyStepError(StepValidate, err))
	}

	access, err := runStep(ctx, w, StepExchangePublicToken, func(ctx context.Context) (ItemAccess, error) {
		return w.aggregator.ExchangePublicToken(ctx, req.PublicToken)
	})
	if err == nil && (access.AccessToken.IsZero() || strings.TrimSpace(access.ItemID) == "") {
		err = fmt.Errorf("link: aggregator returned an incomplete item: %w", ErrUpstreamUnavailable)
	}
	if err != nil {
		return Failed[BankAccountRecord](classifyStepError(StepExchangePublicToken, err))
	}
	fields["item_id"] = access.ItemID

	accounts, err := runStep(ctx, w, StepListAccounts, func(ctx context.Context) ([]AccountSummary, error) {
		return w.aggregator.ListAccounts(ctx, access.AccessToken)
	})
	if err != nil {
		return Failed[BankAccountRecord](classifyStepError(StepListAccounts, err))
	}
	fields["accounts_returned"] = len(accounts)

	selected, failure := w.selectAccount(accounts, req.AccountID)
	if failure != nil {
		return Failed[BankAccountRecord](failure)
	}
	fields["account_id"] = selected.ID

	processorToken, err := runStep(ctx, w, StepCreateProcessorToken, func(ctx context.Context) (ProcessorToken, error) {
		return w.aggregator.CreateProcessorToken(ctx, access.AccessToken, selected.ID, w.config.Rail)
	})
	if err == nil && processorToken.IsZero() {
		err = fmt.Errorf("link: aggregator returned an empty processor token: %w", ErrUpstreamUnavailable)
	}
	if err != nil {
		return Failed[BankAccountRecord](classifyStepError(StepCreateProcessorToken, err))
	}

	institution := w.institutionName(selected)
	fundingRef, err := runStep(ctx, w, StepRegisterFundingSource, func(ctx context.Context) (string, error) {
		return w.rail.RegisterFundingSource(ctx, FundingSourceRequest{
			CustomerID:     req.User.PaymentsCustomerID,
			ProcessorToken: processorToken,
			Name:           institution,
			IdempotencyKey: FundingIdempotencyKey(req.User.PaymentsCustomerID, access.ItemID, selected.ID),
		})
	})
	if err == nil && strings.TrimSpace(fundingRef) == "" {
		err = fmt.Errorf("link: payments rail returned an empty funding source")
	}
	if err != nil {
		return Failed[BankAccountRecord](classifyStepError(StepRegisterFundingSource, err))
	}
	fields["funding_source_ref"] = fundingRef

	shareableID, err := w.obscurer.Encrypt(selected.ID)
	if err != nil {
		return Failed[BankAccountRecord](classifyStepError(StepObscureAccountID, err))
	}

	record := BankAccountRecord{
		OwnerUserID:      req.User.ID,
		ItemID:           access.ItemID,
		AccountID:        selected.ID,
		AccessToken:      access.AccessToken,
		FundingSourceRef: fundingRef,
		ShareableID:      shareableID,
		InstitutionName:  institution,
		CreatedAt:        w.now(),
	}
	saved, err := runStep(ctx, w, StepPersistRecord, func(ctx context.Context) (BankAccountRecord, error) {
		return w.records.Save(ctx, record)
	})
	if err != nil {
		w.observation.logError(ctx, "link funding source registered without a local record", map[string]any{
			"user_id":            req.User.ID,
			"item_id":            access.ItemID,
			"account_id":         selected.ID,
			"funding_source_ref": fundingRef,
			"error":              err.Error(),
		})
		return Failed[BankAccountRecord](classifyStepError(StepPersistRecord, err))
	}
	fields["bank_id"] = saved.ID

	w.invalidateViews(ctx, saved.OwnerUserID)
	return Succeeded(saved)
}

func (w *LinkWorkflow) selectAccount(accounts []AccountSummary, requested string) (AccountSummary, *Failure) {
	if len(accounts) == 0 {
		return AccountSummary{}, NewFailure(FailureNoAccounts, StepSelectAccount, errors.New("link: aggregator returned no accounts"))
	}
	for _, account := range accounts {
		if strings.TrimSpace(account.ID) == "" {
			return AccountSummary{}, NewFailure(FailureUpstreamUnavailable, StepListAccounts,
				fmt.Errorf("link: aggregator returned an account without id: %w", ErrUpstreamUnavailable))
		}
	}

	requested = strings.TrimSpace(requested)
	if requested != "" {
		for _, account := range accounts {
			if account.ID == requested {
				return account, nil
			}
		}
		return AccountSummary{}, NewFailure(FailureAccountSelectionUnsupported, StepSelectAccount,
			fmt.Errorf("link: requested account %q was not shared", requested))
	}
	if len(accounts) > 1 && w.config.AccountSelection == AccountSelectionSingle {
		return AccountSummary{}, NewFailure(FailureAccountSelectionUnsupported, StepSelectAccount,
			fmt.Errorf("link: %d accounts shared, exactly one is supported", len(accounts)))
	}
	return accounts[0], nil
}

func (w *LinkWorkflow) institutionName(account AccountSummary) string {
	for _, candidate := range []string{account.Name, account.OfficialName} {
		if name := w.sanitizer.Sanitize(candidate); name != "" {
			return name
		}
	}
	return "Linked account"
}

func (w *LinkWorkflow) invalidateViews(ctx context.Context, userID string) {
	routes := w.config.InvalidateRoutes
	if len(routes) == 0 {
		return
	}
	if err := w.views.Invalidate(ctx, userID, routes...); err != nil {
		w.observation.logWarn(ctx, "link view invalidation failed", map[string]any{
			"user_id": userID,
			"step":    string(StepInvalidateViews),
			"routes":  strings.Join(routes, ","),
			"error":   err.Error(),
		})
	}
}

func (w *LinkWorkflow) annotateFailure(fields map[string]any, failureOf func() (*Failure, bool)) {
	failure, failed := failureOf()
	if !failed {
		return
	}
	fields["step"] = string(failure.Step)
	fields["failure_kind"] = string(failure.Kind)
}

// runStep bounds one external call with the step timeout and records a span
// and a duration sample for it.
func runStep[T any](ctx context.Context, w *LinkWorkflow, step LinkStep, call func(context.Context) (T, error)) (T, error) {
	stepCtx, span := linkTracer.Start(ctx, "link."+string(step))
	defer span.End()
	span.SetAttributes(attribute.String("link.step", string(step)))

	stepCtx, cancel := context.WithTimeout(stepCtx, w.config.StepTimeout)
	defer cancel()

	startedAt := time.Now()
	value, err := call(stepCtx)
	status := "success"
	if err != nil {
		status = "failure"
		span.RecordError(err)
		span.SetStatus(codes.Error, string(step))
	}
	w.observation.recordHistogram(ctx, w.observation.metricName("link_step", "duration_ms"),
		float64(time.Since(startedAt).Milliseconds()),
		map[string]string{"step": string(step), "status": status},
	)
	return value, err
}

// FundingIdempotencyKey is stable for one customer, item and account so a
// replayed registration request is collapsed by the payments rail.
func FundingIdempotencyKey(customerID string, itemID string, accountID string) string {
	name := strings.Join([]string{"banklink", "funding-source", customerID, itemID, accountID}, ":")
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
