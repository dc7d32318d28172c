package banklink

import (
	"embed"
	"io/fs"
)

// Postgres migrations sit in data/sql/migrations, the sqlite variants in
// its sqlite subdirectory.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

func GetMigrationsFS() fs.FS {
	return migrationsFS
}
