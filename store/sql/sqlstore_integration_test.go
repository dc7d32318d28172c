package sqlstore_test

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-banklink/core"
	banklinkmigrations "github.com/goliatone/go-banklink/migrations"
	"github.com/goliatone/go-banklink/security"
	sqlstore "github.com/goliatone/go-banklink/store/sql"
	goerrors "github.com/goliatone/go-errors"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

const testStorageKey = "integration-storage-key-0123456789abcdef"

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-banklink-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{"bank_accounts", "user_profiles"} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master: %v", err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestBankAccountStore_SealsAccessTokenAtRest(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory := newFactory(t, client)
	store := factory.BankRecordStore()

	saved, err := store.Save(ctx, core.BankAccountRecord{
		OwnerUserID:      "usr_1",
		ItemID:           "item_1",
		AccountID:        "acc_1",
		AccessToken:      core.NewAccessToken("access-sandbox-secret"),
		FundingSourceRef: "https://api-sandbox.dwolla.com/funding-sources/fs-1",
		ShareableID:      "sh-acc-1",
		InstitutionName:  "First Platypus Bank",
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.ID == "" {
		t.Fatalf("expected generated id")
	}

	var sealed []byte
	var keyID string
	var keyVersion int
	if err := client.DB().NewRaw(
		"SELECT encrypted_access_token, encryption_key_id, encryption_version FROM bank_accounts WHERE id = ?",
		saved.ID,
	).Scan(ctx, &sealed, &keyID, &keyVersion); err != nil {
		t.Fatalf("read sealed token: %v", err)
	}
	if bytes.Contains(sealed, []byte("access-sandbox-secret")) {
		t.Fatalf("expected access token sealed at rest")
	}
	if keyID != "storage-key" || keyVersion != 1 {
		t.Fatalf("expected storage-key v1 metadata, got %q v%d", keyID, keyVersion)
	}

	loaded, found, err := store.GetByID(ctx, saved.ID)
	if err != nil || !found {
		t.Fatalf("get by id: found=%v err=%v", found, err)
	}
	if loaded.AccessToken.Reveal() != "access-sandbox-secret" {
		t.Fatalf("expected access token opened on read")
	}
	if loaded.InstitutionName != "First Platypus Bank" || loaded.ShareableID != "sh-acc-1" {
		t.Fatalf("unexpected record %+v", loaded)
	}
}

func TestBankAccountStore_GetByAccountIDRequiresSingleMatch(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store := newFactory(t, client).BankRecordStore()
	for i, owner := range []string{"usr_1", "usr_2"} {
		if _, err := store.Save(ctx, core.BankAccountRecord{
			OwnerUserID:      owner,
			ItemID:           fmt.Sprintf("item_%d", i),
			AccountID:        "acc_dup",
			AccessToken:      core.NewAccessToken("access"),
			FundingSourceRef: fmt.Sprintf("fs-dup-%d", i),
			ShareableID:      "sh-dup",
		}); err != nil {
			t.Fatalf("save duplicate %d: %v", i, err)
		}
	}
	if _, err := store.Save(ctx, core.BankAccountRecord{
		OwnerUserID:      "usr_1",
		ItemID:           "item_single",
		AccountID:        "acc_single",
		AccessToken:      core.NewAccessToken("access"),
		FundingSourceRef: "fs-single",
		ShareableID:      "sh-single",
	}); err != nil {
		t.Fatalf("save single: %v", err)
	}

	if _, found, err := store.GetByAccountID(ctx, "acc_dup"); err != nil || found {
		t.Fatalf("expected duplicated account id to miss, found=%v err=%v", found, err)
	}
	record, found, err := store.GetByAccountID(ctx, "acc_single")
	if err != nil || !found {
		t.Fatalf("expected single match, found=%v err=%v", found, err)
	}
	if record.FundingSourceRef != "fs-single" {
		t.Fatalf("unexpected record %+v", record)
	}
	if _, found, err := store.GetByAccountID(ctx, "acc_missing"); err != nil || found {
		t.Fatalf("expected missing account id to miss, found=%v err=%v", found, err)
	}

	banks, err := store.ListByUser(ctx, "usr_1")
	if err != nil {
		t.Fatalf("list by user: %v", err)
	}
	if len(banks) != 2 {
		t.Fatalf("expected two banks for usr_1, got %d", len(banks))
	}
}

func TestBankAccountStore_RejectsDuplicateFundingSource(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store := newFactory(t, client).BankRecordStore()
	record := core.BankAccountRecord{
		OwnerUserID:      "usr_1",
		ItemID:           "item_1",
		AccountID:        "acc_1",
		AccessToken:      core.NewAccessToken("access"),
		FundingSourceRef: "fs-1",
		ShareableID:      "sh-1",
	}
	if _, err := store.Save(ctx, record); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.Save(ctx, record); err == nil || !strings.Contains(err.Error(), "already recorded") {
		t.Fatalf("expected duplicate funding source to fail, got %v", err)
	}
}

func TestBankAccountStore_ReadsRowsSealedWithRetiredKey(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	oldKey := []byte("retired-storage-key-0123456789abcdef")
	oldProvider, err := security.NewKeyringSecretProvider(oldKey, 1)
	if err != nil {
		t.Fatalf("old provider: %v", err)
	}
	oldFactory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, oldProvider)
	if err != nil {
		t.Fatalf("old factory: %v", err)
	}
	saved, err := oldFactory.BankRecordStore().Save(ctx, core.BankAccountRecord{
		OwnerUserID:      "usr_1",
		ItemID:           "item_1",
		AccountID:        "acc_1",
		AccessToken:      core.NewAccessToken("access-old"),
		FundingSourceRef: "fs-1",
		ShareableID:      "sh-1",
	})
	if err != nil {
		t.Fatalf("save with retired key: %v", err)
	}

	rotated, err := security.NewKeyringSecretProvider(
		[]byte("current-storage-key-0123456789abcdef"), 2,
		security.WithRetiredKeys(security.KeyVersion{Version: 1, Material: oldKey}),
	)
	if err != nil {
		t.Fatalf("rotated provider: %v", err)
	}
	rotatedFactory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, rotated)
	if err != nil {
		t.Fatalf("rotated factory: %v", err)
	}
	loaded, found, err := rotatedFactory.BankRecordStore().GetByID(ctx, saved.ID)
	if err != nil || !found {
		t.Fatalf("get by id after rotation: found=%v err=%v", found, err)
	}
	if loaded.AccessToken.Reveal() != "access-old" {
		t.Fatalf("expected retired key to open stored token")
	}
}

func TestUserProfileStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store := newFactory(t, client).UserProfileStore()
	saved, err := store.Save(ctx, core.UserProfile{
		UserID:              "usr_1",
		Email:               " Ada@Example.com ",
		FirstName:           "Ada",
		LastName:            "Lovelace",
		City:                "London",
		PaymentsCustomerID:  "cust-1",
		PaymentsCustomerURL: "https://api-sandbox.dwolla.com/customers/cust-1",
	})
	if err != nil {
		t.Fatalf("save profile: %v", err)
	}
	if saved.ID == "" || saved.Email != "ada@example.com" {
		t.Fatalf("unexpected saved profile %+v", saved)
	}

	loaded, found, err := store.GetByUserID(ctx, "usr_1")
	if err != nil || !found {
		t.Fatalf("get profile: found=%v err=%v", found, err)
	}
	if loaded.PaymentsCustomerID != "cust-1" || loaded.LastName != "Lovelace" {
		t.Fatalf("unexpected loaded profile %+v", loaded)
	}
	if _, found, err := store.GetByUserID(ctx, "usr_missing"); err != nil || found {
		t.Fatalf("expected missing profile, found=%v err=%v", found, err)
	}

	_, err = store.Save(ctx, core.UserProfile{UserID: "usr_1", Email: "other@example.com"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryConflict {
		t.Fatalf("expected conflict for second profile, got %v", err)
	}
}

func TestRepositoryFactory_CachedStoreInvalidatesViews(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	secrets, err := security.NewKeyringSecretProviderFromString(testStorageKey)
	if err != nil {
		t.Fatalf("secret provider: %v", err)
	}
	cacheConfig := repositorycache.DefaultConfig()
	cacheConfig.TTL = time.Minute
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, secrets, sqlstore.WithCacheService(cacheService))
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	if factory.ViewInvalidator() == nil {
		t.Fatalf("expected cached store to act as view invalidator")
	}
	store := factory.BankRecordStore()

	if banks, err := store.ListByUser(ctx, "usr_1"); err != nil || len(banks) != 0 {
		t.Fatalf("expected no banks, got %d err=%v", len(banks), err)
	}
	if _, err := store.Save(ctx, core.BankAccountRecord{
		OwnerUserID:      "usr_1",
		ItemID:           "item_1",
		AccountID:        "acc_1",
		AccessToken:      core.NewAccessToken("access"),
		FundingSourceRef: "fs-1",
		ShareableID:      "sh-1",
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	banks, err := store.ListByUser(ctx, "usr_1")
	if err != nil {
		t.Fatalf("list after save: %v", err)
	}
	if len(banks) != 1 || banks[0].AccessToken.Reveal() != "access" {
		t.Fatalf("expected saved bank visible after save, got %+v", banks)
	}
}

func TestRepositoryFactory_RequiresClient(t *testing.T) {
	factory := sqlstore.NewRepositoryFactory(nil)
	if err := factory.BuildStores(nil); err == nil {
		t.Fatalf("expected nil persistence client to fail")
	}
	if err := factory.BuildStores(struct{}{}); err == nil {
		t.Fatalf("expected unsupported client type to fail")
	}
}

func newFactory(t *testing.T, client *persistence.Client) *sqlstore.RepositoryFactory {
	t.Helper()
	secrets, err := security.NewKeyringSecretProviderFromString(testStorageKey)
	if err != nil {
		t.Fatalf("secret provider: %v", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, secrets)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	return factory
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:banklink-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = banklinkmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != banklinkmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, banklinkmigrations.WithValidationTargets(banklinkmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
