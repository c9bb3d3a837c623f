package sqlstore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/mysql/*.sql
var migrationsFS embed.FS

// migrationsTable keeps this tool's version row apart from any other
// golang-migrate user of the same MySQL database.
const migrationsTable = "reconcile_schema_migrations"

// RunMigrations applies all pending database migrations embedded in the binary.
// It is safe to call on every startup; already-applied migrations are skipped.
// SQLite receives the full rehearsal schema; MySQL only the tables this tool owns.
func RunMigrations(db *sql.DB, driver string) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	var dbDriver database.Driver
	switch driver {
	case DriverSQLite:
		dbDriver, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	case DriverMySQL:
		dbDriver, err = migratemysql.WithInstance(db, &migratemysql.Config{MigrationsTable: migrationsTable})
	default:
		return fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, driver, dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}
