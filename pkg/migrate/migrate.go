// Package migrate wraps goose for the Postgres schema and the embedded
// SQLite demo schema.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
)

const DefaultDir = "pkg/migrate/migrations"

//go:embed sqlite/*.sql
var sqliteMigrations embed.FS

var errNoDB = errors.New("db is required")

func usePostgres(db *sql.DB, dir string) error {
	switch {
	case db == nil:
		return errNoDB
	case dir == "":
		return errors.New("migrations dir is required")
	}
	return goose.SetDialect("postgres")
}

// Run executes a goose command (up, down, status, ...) against Postgres.
// goose prints status output to stdout itself.
func Run(ctx context.Context, db *sql.DB, dir, command string, args ...string) error {
	if err := usePostgres(db, dir); err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion moves the schema up or down until it sits at version,
// given as the YYYYMMDDHHMMSS prefix of a migration file.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir, version string) error {
	target, err := strconv.ParseInt(version, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", version, err)
	}
	if err := usePostgres(db, dir); err != nil {
		return err
	}
	current, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	step, verb := goose.UpToContext, "up-to"
	switch {
	case current == target:
		return nil
	case current > target:
		step, verb = goose.DownToContext, "down-to"
	}
	if err := step(ctx, db, dir, target); err != nil {
		return fmt.Errorf("goose %s %d: %w", verb, target, err)
	}
	return nil
}

// ApplySQLite brings a SQLite database up to the embedded workflow schema and
// returns how many migrations ran. Demo mode and repository tests use it.
func ApplySQLite(ctx context.Context, db *sql.DB) (int, error) {
	if db == nil {
		return 0, errNoDB
	}
	fsys, err := fs.Sub(sqliteMigrations, "sqlite")
	if err != nil {
		return 0, err
	}
	provider, err := goose.NewProvider(database.DialectSQLite3, db, fsys)
	if err != nil {
		return 0, fmt.Errorf("sqlite migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("sqlite migrations: %w", err)
	}
	return len(results), nil
}
