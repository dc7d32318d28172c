package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-banklink/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// keyMetadata is implemented by secret providers that can report which key
// sealed new payloads.
type keyMetadata interface {
	Metadata() (string, int)
}

// BankAccountStore persists linked bank records. Access tokens are sealed
// with the configured secret provider before they are written.
type BankAccountStore struct {
	db      *bun.DB
	repo    repository.Repository[*bankAccountRecord]
	secrets core.SecretProvider
	now     func() time.Time
}

func NewBankAccountStore(db *bun.DB, secrets core.SecretProvider) (*BankAccountStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	if secrets == nil {
		return nil, fmt.Errorf("sqlstore: secret provider is required")
	}
	repo := repository.NewRepository[*bankAccountRecord](db, bankAccountHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid bank account repository wiring: %w", err)
		}
	}
	return &BankAccountStore{
		db:      db,
		repo:    repo,
		secrets: secrets,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *BankAccountStore) Save(ctx context.Context, record core.BankAccountRecord) (core.BankAccountRecord, error) {
	if s == nil || s.repo == nil || s.secrets == nil {
		return core.BankAccountRecord{}, fmt.Errorf("sqlstore: bank account store is not configured")
	}
	if strings.TrimSpace(record.OwnerUserID) == "" {
		return core.BankAccountRecord{}, fmt.Errorf("sqlstore: owner user id is required")
	}
	if strings.TrimSpace(record.AccountID) == "" {
		return core.BankAccountRecord{}, fmt.Errorf("sqlstore: account id is required")
	}
	if record.AccessToken.IsZero() {
		return core.BankAccountRecord{}, fmt.Errorf("sqlstore: access token is required")
	}

	row := newBankAccountRecord(record, s.now())
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	sealed, err := s.secrets.Encrypt(ctx, []byte(record.AccessToken.Reveal()))
	if err != nil {
		return core.BankAccountRecord{}, fmt.Errorf("sqlstore: seal access token: %w", err)
	}
	row.EncryptedAccessToken = sealed
	if meta, ok := s.secrets.(keyMetadata); ok {
		row.EncryptionKeyID, row.EncryptionVersion = meta.Metadata()
	}

	created, err := s.repo.Create(ctx, row)
	if err != nil {
		if isUniqueViolation(err) {
			return core.BankAccountRecord{}, fmt.Errorf("sqlstore: bank account %q already recorded: %w", row.FundingSourceRef, err)
		}
		return core.BankAccountRecord{}, err
	}
	return created.toDomain(record.AccessToken), nil
}

func (s *BankAccountStore) ListByUser(ctx context.Context, userID string) ([]core.BankAccountRecord, error) {
	rows, err := s.listRecords(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.openAll(ctx, rows)
}

func (s *BankAccountStore) GetByID(ctx context.Context, id string) (core.BankAccountRecord, bool, error) {
	if s == nil || s.repo == nil {
		return core.BankAccountRecord{}, false, fmt.Errorf("sqlstore: bank account store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.BankAccountRecord{}, false, nil
	}
	rows, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", id),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.BankAccountRecord{}, false, err
	}
	if len(rows) == 0 {
		return core.BankAccountRecord{}, false, nil
	}
	record, err := s.open(ctx, rows[0])
	if err != nil {
		return core.BankAccountRecord{}, false, err
	}
	return record, true, nil
}

// GetByAccountID only resolves an account id that maps to exactly one record.
func (s *BankAccountStore) GetByAccountID(ctx context.Context, accountID string) (core.BankAccountRecord, bool, error) {
	if s == nil || s.repo == nil {
		return core.BankAccountRecord{}, false, fmt.Errorf("sqlstore: bank account store is not configured")
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return core.BankAccountRecord{}, false, nil
	}
	rows, _, err := s.repo.List(ctx,
		repository.SelectBy("account_id", "=", accountID),
		repository.OrderBy("created_at ASC"),
		repository.SelectPaginate(2, 0),
	)
	if err != nil {
		return core.BankAccountRecord{}, false, err
	}
	if len(rows) != 1 {
		return core.BankAccountRecord{}, false, nil
	}
	record, err := s.open(ctx, rows[0])
	if err != nil {
		return core.BankAccountRecord{}, false, err
	}
	return record, true, nil
}

func (s *BankAccountStore) listRecords(ctx context.Context, userID string) ([]*bankAccountRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: bank account store is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("sqlstore: user id is required")
	}
	rows, _, err := s.repo.List(ctx,
		repository.SelectBy("owner_user_id", "=", userID),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *BankAccountStore) openAll(ctx context.Context, rows []*bankAccountRecord) ([]core.BankAccountRecord, error) {
	out := make([]core.BankAccountRecord, 0, len(rows))
	for _, row := range rows {
		record, err := s.open(ctx, row)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}

func (s *BankAccountStore) open(ctx context.Context, row *bankAccountRecord) (core.BankAccountRecord, error) {
	if row == nil {
		return core.BankAccountRecord{}, fmt.Errorf("sqlstore: bank account row is nil")
	}
	plaintext, err := s.secrets.Decrypt(ctx, row.EncryptedAccessToken)
	if err != nil {
		return core.BankAccountRecord{}, fmt.Errorf("sqlstore: open access token for bank %s: %w", row.ID, err)
	}
	return row.toDomain(core.NewAccessToken(string(plaintext))), nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
