package core

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// BankQueries reads linked bank records. Access tokens are used to fetch live
// balances but are never part of a returned value.
type BankQueries struct {
	records     BankRecordStore
	aggregator  AggregatorClient
	obscurer    IDObscurer
	stepTimeout time.Duration
	observation observer
}

func (q *BankQueries) ListBanks(ctx context.Context, userID string) (banks []BankAccountRecord, err error) {
	startedAt := time.Now()
	defer func() {
		q.observation.observeOperation(ctx, startedAt, "bank_list", err, map[string]any{
			"user_id": userID,
			"count":   len(banks),
		})
	}()

	if strings.TrimSpace(userID) == "" {
		err = newServiceError("bank: user id is required", goerrors.CategoryBadInput, ServiceErrorBadInput)
		return nil, err
	}
	records, err := q.records.ListByUser(ctx, userID)
	if err != nil {
		err = wrapServiceError(err, goerrors.CategoryInternal, ServiceErrorInternal, "bank: list records failed")
		return nil, err
	}
	banks = make([]BankAccountRecord, 0, len(records))
	for _, record := range records {
		banks = append(banks, stripAccessToken(record))
	}
	return banks, nil
}

func (q *BankQueries) GetBank(ctx context.Context, id string) (BankAccountRecord, error) {
	if strings.TrimSpace(id) == "" {
		return BankAccountRecord{}, newServiceError("bank: id is required", goerrors.CategoryBadInput, ServiceErrorBadInput)
	}
	record, found, err := q.records.GetByID(ctx, id)
	if err != nil {
		return BankAccountRecord{}, wrapServiceError(err, goerrors.CategoryInternal, ServiceErrorInternal, "bank: load record failed")
	}
	if !found {
		return BankAccountRecord{}, bankNotFound(map[string]any{"bank_id": id})
	}
	return stripAccessToken(record), nil
}

func (q *BankQueries) GetBankByAccountID(ctx context.Context, accountID string) (BankAccountRecord, error) {
	if strings.TrimSpace(accountID) == "" {
		return BankAccountRecord{}, newServiceError("bank: account id is required", goerrors.CategoryBadInput, ServiceErrorBadInput)
	}
	record, found, err := q.records.GetByAccountID(ctx, accountID)
	if err != nil {
		return BankAccountRecord{}, wrapServiceError(err, goerrors.CategoryInternal, ServiceErrorInternal, "bank: load record failed")
	}
	if !found {
		return BankAccountRecord{}, bankNotFound(map[string]any{"account_id": accountID})
	}
	return stripAccessToken(record), nil
}

// GetBankByShareableID resolves a shareable id back to its account id. An id
// that does not decode is reported as not found.
func (q *BankQueries) GetBankByShareableID(ctx context.Context, shareableID string) (record BankAccountRecord, err error) {
	startedAt := time.Now()
	defer func() {
		q.observation.observeOperation(ctx, startedAt, "bank_get_shared", err, map[string]any{
			"shareable_id": shareableID,
			"bank_id":      record.ID,
		})
	}()

	if strings.TrimSpace(shareableID) == "" {
		err = newServiceError("bank: shareable id is required", goerrors.CategoryBadInput, ServiceErrorBadInput)
		return BankAccountRecord{}, err
	}
	accountID, decodeErr := q.obscurer.Decrypt(shareableID)
	if decodeErr != nil {
		notFound := bankNotFound(map[string]any{"shareable_id": shareableID})
		notFound.Source = decodeErr
		err = notFound
		return BankAccountRecord{}, err
	}
	record, err = q.GetBankByAccountID(ctx, accountID)
	return record, err
}

// GetBankAccounts returns live summaries for every bank the user linked. A
// bank whose stored account is no longer listed upstream is skipped.
func (q *BankQueries) GetBankAccounts(ctx context.Context, userID string) (accounts []LinkedAccount, err error) {
	startedAt := time.Now()
	defer func() {
		q.observation.observeOperation(ctx, startedAt, "bank_accounts", err, map[string]any{
			"user_id": userID,
			"count":   len(accounts),
		})
	}()

	if strings.TrimSpace(userID) == "" {
		err = newServiceError("bank: user id is required", goerrors.CategoryBadInput, ServiceErrorBadInput)
		return nil, err
	}
	records, err := q.records.ListByUser(ctx, userID)
	if err != nil {
		err = wrapServiceError(err, goerrors.CategoryInternal, ServiceErrorInternal, "bank: list records failed")
		return nil, err
	}

	accounts = make([]LinkedAccount, 0, len(records))
	for _, record := range records {
		summaries, listErr := q.listAccounts(ctx, record.AccessToken)
		if listErr != nil {
			err = wrapServiceError(listErr, goerrors.CategoryExternal, BankErrorUpstreamUnavailable, "bank: list upstream accounts failed").
				WithMetadata(map[string]any{"bank_id": record.ID})
			return nil, err
		}
		for _, summary := range summaries {
			if summary.ID != record.AccountID {
				continue
			}
			accounts = append(accounts, LinkedAccount{
				BankID:          record.ID,
				ShareableID:     record.ShareableID,
				InstitutionName: record.InstitutionName,
				Account:         summary,
			})
			break
		}
	}
	return accounts, nil
}

func (q *BankQueries) listAccounts(ctx context.Context, token AccessToken) ([]AccountSummary, error) {
	if q.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.stepTimeout)
		defer cancel()
	}
	return q.aggregator.ListAccounts(ctx, token)
}

func stripAccessToken(record BankAccountRecord) BankAccountRecord {
	record.AccessToken = AccessToken{}
	return record
}

func bankNotFound(metadata map[string]any) *goerrors.Error {
	return newServiceError("bank: record not found", goerrors.CategoryNotFound, BankErrorNotFound).
		WithMetadata(metadata)
}
