package database

import (
	"context"
	"embed"

	"github.com/echome/echosync/pkg/errors"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

func (db *DB) migrate(ctx context.Context) error {
	var (
		fsys    embed.FS
		dir     string
		dialect goose.Dialect
	)

	switch db.Driver {
	case "sqlite":
		fsys, dir, dialect = sqliteMigrations, "migrations/sqlite", goose.DialectSQLite3
	case "postgres":
		fsys, dir, dialect = postgresMigrations, "migrations/postgres", goose.DialectPostgres
	default:
		return errors.New("no migrations for driver %s", db.Driver)
	}

	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(string(dialect)); err != nil {
		return errors.Wrap(err, "failed to set migration dialect")
	}

	if err := goose.UpContext(ctx, db.handler, dir); err != nil {
		return errors.Wrap(err, "failed to apply migrations")
	}

	version, err := goose.GetDBVersionContext(ctx, db.handler)
	if err == nil {
		db.log.Debug().Int64("version", version).Msg("schema version")
	}

	return nil
}
