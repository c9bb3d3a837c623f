// Package sqlstore implements the target-store ports on database/sql. It runs
// against the GitHub Enterprise MySQL database in production and against a
// SQLite copy of the relevant schema for rehearsals and tests.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// DB provides reader/writer database connections.
// For SQLite the writer is limited to a single connection to avoid "database is locked"
// errors and the reader pool allows up to 4 concurrent readers. For MySQL both
// fields share one pool.
type DB struct {
	Writer *sql.DB
	Reader *sql.DB
	driver string
}

// Open connects to the target database and pings it.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	switch driver {
	case DriverMySQL:
		return openMySQL(ctx, dsn)
	case DriverSQLite:
		return openSQLite(ctx, fmt.Sprintf(
			"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=cache_size(-64000)&_time_format=sqlite",
			dsn,
		))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// OpenMemory creates a named shared in-memory SQLite database with the full
// rehearsal schema applied. Connections with the same name share the database.
func OpenMemory(ctx context.Context, name string) (*DB, error) {
	// WAL mode is not applicable to in-memory databases; omit journal_mode pragma.
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_time_format=sqlite",
		name,
	)

	db, err := openSQLite(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(db.Writer, DriverSQLite); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func openMySQL(ctx context.Context, dsn string) (*DB, error) {
	pool, err := sql.Open(DriverMySQL, dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	pool.SetMaxOpenConns(4)

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	return &DB{Writer: pool, Reader: pool, driver: DriverMySQL}, nil
}

func openSQLite(ctx context.Context, dsn string) (*DB, error) {
	writer, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)

	if err := writer.PingContext(ctx); err != nil {
		writer.Close()
		return nil, fmt.Errorf("ping writer: %w", err)
	}

	reader, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	reader.SetMaxOpenConns(4)

	if err := reader.PingContext(ctx); err != nil {
		reader.Close()
		writer.Close()
		return nil, fmt.Errorf("ping reader: %w", err)
	}

	return &DB{Writer: writer, Reader: reader, driver: DriverSQLite}, nil
}

// Driver returns the database/sql driver name the DB was opened with.
func (db *DB) Driver() string {
	return db.driver
}

// Close closes both reader and writer connections. Returns the first error encountered.
func (db *DB) Close() error {
	var firstErr error

	if db.Reader != db.Writer {
		if err := db.Reader.Close(); err != nil {
			firstErr = fmt.Errorf("close reader: %w", err)
		}
	}

	if err := db.Writer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close writer: %w", err)
	}

	return firstErr
}

// inTx runs fn in a writer transaction, committing when fn returns nil.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
