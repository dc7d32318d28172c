// Package migrations hands the embedded banklink schema to a migration
// runner, one filesystem per SQL dialect.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	banklink "github.com/goliatone/go-banklink"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	schemaDir = "data/sql/migrations"
)

type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type Registration struct {
	SourceLabel       string
	ValidationTargets []string
	Filesystems       []FilesystemSpec
}

// RegisterFunc receives each dialect filesystem, for example
// persistence.Client.RegisterSQLMigrations behind a dialect check.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithSourceLabel(label string) Option {
	return func(r *Registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.SourceLabel = trimmed
		}
	}
}

// WithValidationTargets limits registration to the named dialects.
func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		if normalized := normalizeDialects(targets); len(normalized) > 0 {
			r.ValidationTargets = normalized
		}
	}
}

func WithFilesystems(filesystems ...FilesystemSpec) Option {
	return func(r *Registration) {
		var kept []FilesystemSpec
		for _, entry := range filesystems {
			entry.Dialect = strings.ToLower(strings.TrimSpace(entry.Dialect))
			if entry.Dialect != "" && entry.FS != nil {
				kept = append(kept, entry)
			}
		}
		if len(kept) > 0 {
			r.Filesystems = kept
		}
	}
}

// Filesystems splits the schema tree into the postgres root and its sqlite
// subdirectory. Both must hold at least one *.up.sql file.
func Filesystems() ([]FilesystemSpec, error) {
	postgres, err := fs.Sub(banklink.GetMigrationsFS(), schemaDir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", schemaDir, err)
	}
	sqlite, err := fs.Sub(postgres, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite schema: %w", err)
	}
	specs := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: schemaDir, FS: postgres},
		{Dialect: DialectSQLite, Path: schemaDir + "/sqlite", FS: sqlite},
	}
	for _, entry := range specs {
		ups, err := fs.Glob(entry.FS, "*.up.sql")
		if err != nil {
			return nil, fmt.Errorf("migrations: list %s: %w", entry.Path, err)
		}
		if len(ups) == 0 {
			return nil, fmt.Errorf("migrations: %s schema %q is empty", entry.Dialect, entry.Path)
		}
	}
	return specs, nil
}

// Register calls registerFn once per targeted dialect, in filesystem order.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel:       "go-banklink",
		ValidationTargets: []string{DialectPostgres, DialectSQLite},
	}
	filesystems, err := Filesystems()
	if err != nil {
		return reg, err
	}
	reg.Filesystems = filesystems
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}

	for _, entry := range reg.Filesystems {
		if !slices.Contains(reg.ValidationTargets, entry.Dialect) {
			continue
		}
		if err := registerFn(ctx, entry.Dialect, reg.SourceLabel, entry.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s: %w", entry.Dialect, err)
		}
	}
	return reg, nil
}

func normalizeDialects(values []string) []string {
	var out []string
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value != "" && !slices.Contains(out, value) {
			out = append(out, value)
		}
	}
	return out
}
