package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-banklink/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const bankAccountCacheKeyPrefix = "go-banklink::bank_accounts::v1"

// CachedBankAccountStore serves per-user bank lists from a read-through
// cache. Only sealed rows are cached; tokens are opened on every read.
//
// It doubles as the view invalidator: the home and payment-transfer views
// render from the cached list, so dropping the user's entry refreshes both.
type CachedBankAccountStore struct {
	base  sealedBankStore
	cache repositorycache.CacheService
}

type sealedBankStore interface {
	core.BankRecordStore
	listRecords(ctx context.Context, userID string) ([]*bankAccountRecord, error)
	openAll(ctx context.Context, rows []*bankAccountRecord) ([]core.BankAccountRecord, error)
}

func NewCachedBankAccountStore(base *BankAccountStore, cacheService repositorycache.CacheService) (*CachedBankAccountStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base bank account store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: bank account cache service is required")
	}
	return &CachedBankAccountStore{base: base, cache: cacheService}, nil
}

// BankAccountCacheKey is go-banklink::bank_accounts::v1::<user_id> with the
// user id URL-path escaped.
func BankAccountCacheKey(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("sqlstore: user id is required")
	}
	return bankAccountCacheKeyPrefix + "::" + url.PathEscape(userID), nil
}

func (s *CachedBankAccountStore) Save(ctx context.Context, record core.BankAccountRecord) (core.BankAccountRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.BankAccountRecord{}, fmt.Errorf("sqlstore: cached bank account store is not configured")
	}
	saved, err := s.base.Save(ctx, record)
	if err != nil {
		return core.BankAccountRecord{}, err
	}
	// The row is committed; a stale entry is dropped again by the link
	// workflow, which logs invalidation failures.
	_ = s.Invalidate(ctx, saved.OwnerUserID)
	return saved, nil
}

func (s *CachedBankAccountStore) ListByUser(ctx context.Context, userID string) ([]core.BankAccountRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached bank account store is not configured")
	}
	cacheKey, err := BankAccountCacheKey(userID)
	if err != nil {
		return nil, err
	}
	rows, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) ([]bankAccountRecord, error) {
		fetched, fetchErr := s.base.listRecords(ctx, userID)
		if fetchErr != nil {
			return nil, fetchErr
		}
		return cloneBankAccountRows(fetched), nil
	})
	if err != nil {
		return nil, err
	}

	pointers := make([]*bankAccountRecord, 0, len(rows))
	for i := range rows {
		row := rows[i]
		pointers = append(pointers, &row)
	}
	return s.base.openAll(ctx, pointers)
}

func (s *CachedBankAccountStore) GetByID(ctx context.Context, id string) (core.BankAccountRecord, bool, error) {
	if s == nil || s.base == nil {
		return core.BankAccountRecord{}, false, fmt.Errorf("sqlstore: cached bank account store is not configured")
	}
	return s.base.GetByID(ctx, id)
}

func (s *CachedBankAccountStore) GetByAccountID(ctx context.Context, accountID string) (core.BankAccountRecord, bool, error) {
	if s == nil || s.base == nil {
		return core.BankAccountRecord{}, false, fmt.Errorf("sqlstore: cached bank account store is not configured")
	}
	return s.base.GetByAccountID(ctx, accountID)
}

// Invalidate drops the cached list for userID. Routes are accepted for the
// invalidator contract; every route reads the same list.
func (s *CachedBankAccountStore) Invalidate(ctx context.Context, userID string, _ ...string) error {
	if s == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached bank account store is not configured")
	}
	cacheKey, err := BankAccountCacheKey(userID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func cloneBankAccountRows(rows []*bankAccountRecord) []bankAccountRecord {
	out := make([]bankAccountRecord, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		cloned := *row
		cloned.EncryptedAccessToken = append([]byte(nil), row.EncryptedAccessToken...)
		out = append(out, cloned)
	}
	return out
}
