package shift

import (
	"database/sql"
	"time"

	"github.com/denismitr/shift/internal/database"
	"github.com/denismitr/shift/internal/database/sqlgateway"
	"github.com/denismitr/shift/internal/database/sqlgateway/postgres"
	"github.com/jmoiron/sqlx"
)

type PostgresOptionFunc func(*postgres.Options, *sqlgateway.ConnectOptions)

// UsePostgres keeps the ledger in the given PostgreSQL database
func UsePostgres(db *sql.DB, options ...PostgresOptionFunc) OptionFunc {
	return func(m *Migrator) error {
		pgOpts := &postgres.Options{
			MigrationsTable: database.DefaultMigrationsTable,
		}

		connectOpts := sqlgateway.NewDefaultConnectOptions()

		for _, oFunc := range options {
			oFunc(pgOpts, connectOpts)
		}

		connector := sqlgateway.MakeRetryingConnector(sqlx.NewDb(db, "postgres"), connectOpts)
		gateway, err := sqlgateway.NewPostgresGateway(connector, *pgOpts)
		if err != nil {
			return err
		}

		m.setGateway(gateway)

		return nil
	}
}

func WithPostgresNoLock() PostgresOptionFunc {
	return func(pgOpts *postgres.Options, connectOpts *sqlgateway.ConnectOptions) {
		pgOpts.NoLock = true
	}
}

// WithPostgresLockKey overrides the advisory lock key derived from the table name
func WithPostgresLockKey(key int64) PostgresOptionFunc {
	return func(pgOpts *postgres.Options, connectOpts *sqlgateway.ConnectOptions) {
		pgOpts.LockKey = key
	}
}

func WithPostgresMigrationTable(migrationTable string) PostgresOptionFunc {
	return func(pgOpts *postgres.Options, connectOpts *sqlgateway.ConnectOptions) {
		pgOpts.MigrationsTable = migrationTable
	}
}

func WithPostgresConnectionTimeout(timeout time.Duration) PostgresOptionFunc {
	return func(pgOpts *postgres.Options, connectOpts *sqlgateway.ConnectOptions) {
		connectOpts.MaxTimeout = timeout
	}
}

func WithPostgresMaxConnectionAttempts(attempts int) PostgresOptionFunc {
	return func(pgOpts *postgres.Options, connectOpts *sqlgateway.ConnectOptions) {
		connectOpts.MaxAttempts = attempts
	}
}
