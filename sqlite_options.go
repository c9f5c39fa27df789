package shift

import (
	"database/sql"
	"time"

	"github.com/denismitr/shift/internal/database"
	"github.com/denismitr/shift/internal/database/sqlgateway"
	"github.com/denismitr/shift/internal/database/sqlgateway/sqlite"
	"github.com/jmoiron/sqlx"
)

type SqliteOptionFunc func(*sqlite.Options, *sqlgateway.ConnectOptions)

// UseSqlite keeps the ledger in the given sqlite database,
// opened with either the sqlite3 or the sqlite driver
func UseSqlite(db *sql.DB, options ...SqliteOptionFunc) OptionFunc {
	return func(m *Migrator) error {
		sqliteOpts := &sqlite.Options{
			MigrationsTable: database.DefaultMigrationsTable,
		}

		connectOpts := sqlgateway.NewDefaultConnectOptions()

		for _, oFunc := range options {
			oFunc(sqliteOpts, connectOpts)
		}

		connector := sqlgateway.MakeRetryingConnector(sqlx.NewDb(db, "sqlite3"), connectOpts)
		gateway, err := sqlgateway.NewSqliteGateway(connector, *sqliteOpts)
		if err != nil {
			return err
		}

		m.setGateway(gateway)

		return nil
	}
}

func WithSqliteMaxConnectionAttempts(attempts int) SqliteOptionFunc {
	return func(sqliteOpts *sqlite.Options, connectOpts *sqlgateway.ConnectOptions) {
		connectOpts.MaxAttempts = attempts
	}
}

func WithSqliteConnectionTimeout(timeout time.Duration) SqliteOptionFunc {
	return func(sqliteOpts *sqlite.Options, connectOpts *sqlgateway.ConnectOptions) {
		connectOpts.MaxTimeout = timeout
	}
}

func WithSqliteMigrationTable(migrationTable string) SqliteOptionFunc {
	return func(sqliteOpts *sqlite.Options, connectOpts *sqlgateway.ConnectOptions) {
		sqliteOpts.MigrationsTable = migrationTable
	}
}
