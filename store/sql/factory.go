package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-banklink/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db      *bun.DB
	secrets core.SecretProvider
	cache   repositorycache.CacheService

	bankAccountStore       *BankAccountStore
	cachedBankAccountStore *CachedBankAccountStore
	userProfileStore       *UserProfileStore
}

type FactoryOption func(*RepositoryFactory)

// WithCacheService fronts bank list reads with cacheService.
func WithCacheService(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cache = cacheService
	}
}

func NewRepositoryFactory(secrets core.SecretProvider, opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{secrets: secrets}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, secrets core.SecretProvider, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(secrets, opts...)
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, secrets core.SecretProvider, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(secrets, opts...)
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.bankAccountStore != nil && f.userProfileStore != nil {
		return nil
	}
	return f.initStores()
}

// BankRecordStore returns the cached store when a cache service was
// configured.
func (f *RepositoryFactory) BankRecordStore() core.BankRecordStore {
	if f == nil {
		return nil
	}
	if f.cachedBankAccountStore != nil {
		return f.cachedBankAccountStore
	}
	return f.bankAccountStore
}

// ViewInvalidator is nil without a cache service.
func (f *RepositoryFactory) ViewInvalidator() core.ViewInvalidator {
	if f == nil || f.cachedBankAccountStore == nil {
		return nil
	}
	return f.cachedBankAccountStore
}

func (f *RepositoryFactory) UserProfileStore() core.UserProfileStore {
	if f == nil {
		return nil
	}
	return f.userProfileStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	bankAccountStore, err := NewBankAccountStore(f.db, f.secrets)
	if err != nil {
		return err
	}
	f.bankAccountStore = bankAccountStore

	userProfileStore, err := NewUserProfileStore(f.db)
	if err != nil {
		return err
	}
	f.userProfileStore = userProfileStore

	if f.cache != nil {
		cached, err := NewCachedBankAccountStore(bankAccountStore, f.cache)
		if err != nil {
			return err
		}
		f.cachedBankAccountStore = cached
	}
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
