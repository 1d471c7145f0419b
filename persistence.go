package identity

import (
	"context"
	"database/sql"
	"io/fs"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
)

// RegisterModels registers this package's models with the persistence layer.
// Hosts call it once before building their client.
func RegisterModels() {
	persistence.RegisterModel((*Profile)(nil))
	persistence.RegisterModel((*Session)(nil))
	persistence.RegisterModel((*ActivityLog)(nil))
	persistence.RegisterModel((*AdminUser)(nil))
}

// NewPersistenceClient builds a persistence client with this package's
// models and migrations registered. The caller owns the sql.DB and dialect
// so the same bootstrap serves sqlite consoles and postgres deployments.
func NewPersistenceClient(ctx context.Context, cfg persistence.Config, db *sql.DB, dialect schema.Dialect, logger Logger) (*persistence.Client, error) {
	RegisterModels()

	client, err := persistence.New(cfg, db, dialect)
	if err != nil {
		return nil, err
	}

	migrations, err := fs.Sub(GetMigrationsFS(), "data/sql/migrations")
	if err != nil {
		return nil, err
	}

	client.RegisterDialectMigrations(
		migrations,
		persistence.WithDialectSourceLabel("data/sql/migrations"),
		persistence.WithValidationTargets("postgres", "sqlite"),
	)

	if err := client.ValidateDialects(ctx); err != nil {
		return nil, err
	}

	if err := client.Migrate(ctx); err != nil {
		return nil, err
	}

	return client, nil
}

// OpenSQLite opens a sqlite database through the shim driver. Useful for
// local consoles and tests.
func OpenSQLite(dsn string) (*sql.DB, error) {
	return sql.Open(sqliteshim.ShimName, dsn)
}
