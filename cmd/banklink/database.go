package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/goliatone/go-banklink/core"
	banklinkmigrations "github.com/goliatone/go-banklink/migrations"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
	_ "modernc.org/sqlite"
)

// persistenceConfig exposes the database section the way go-persistence-bun
// reads it.
type persistenceConfig struct {
	cfg core.DatabaseConfig
}

func (c persistenceConfig) GetDebug() bool            { return c.cfg.Debug }
func (c persistenceConfig) GetDriver() string         { return c.cfg.Driver }
func (c persistenceConfig) GetServer() string         { return c.cfg.DSN }
func (c persistenceConfig) GetOtelIdentifier() string { return "banklink" }

func (c persistenceConfig) GetPingTimeout() time.Duration {
	if c.cfg.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.cfg.PingTimeout
}

// openDatabase connects and applies the schema migrations for the dialect.
// "sqlite3" uses the cgo driver, "sqlite" the pure Go one.
func openDatabase(ctx context.Context, cfg core.DatabaseConfig) (*persistence.Client, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	var (
		dialect schema.Dialect
		target  string
	)
	switch driver {
	case "sqlite3", "sqlite":
		dialect = sqlitedialect.New()
		target = banklinkmigrations.DialectSQLite
	case "postgres":
		dialect = pgdialect.New()
		target = banklinkmigrations.DialectPostgres
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", cfg.Driver)
	}

	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}
	if target == banklinkmigrations.DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{cfg: cfg}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("database: persistence client: %w", err)
	}

	_, err = banklinkmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != target {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, banklinkmigrations.WithValidationTargets(target))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("database: migrate: %w", err)
	}
	return client, nil
}
