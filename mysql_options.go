package shift

import (
	"database/sql"
	"time"

	"github.com/denismitr/shift/internal/database"
	"github.com/denismitr/shift/internal/database/sqlgateway"
	"github.com/denismitr/shift/internal/database/sqlgateway/mysql"
	"github.com/jmoiron/sqlx"
)

type MySQLOptionFunc func(*mysql.Options, *sqlgateway.ConnectOptions)

// UseMySQL keeps the ledger in the given MySQL database. Multi statement
// migration files need multiStatements=true in the DSN.
func UseMySQL(db *sql.DB, options ...MySQLOptionFunc) OptionFunc {
	return func(m *Migrator) error {
		mysqlOpts := &mysql.Options{
			MigrationsTable: database.DefaultMigrationsTable,
			Charset:         mysql.DefaultCharset,
			LockFor:         mysql.DefaultLockSeconds,
			LockKey:         mysql.DefaultLockKey,
		}

		connectOpts := sqlgateway.NewDefaultConnectOptions()

		for _, oFunc := range options {
			oFunc(mysqlOpts, connectOpts)
		}

		connector := sqlgateway.MakeRetryingConnector(sqlx.NewDb(db, "mysql"), connectOpts)
		gateway, err := sqlgateway.NewMySQLGateway(connector, *mysqlOpts)
		if err != nil {
			return err
		}

		m.setGateway(gateway)

		return nil
	}
}

func WithMySQLNoLock() MySQLOptionFunc {
	return func(mysqlOpts *mysql.Options, connectOpts *sqlgateway.ConnectOptions) {
		mysqlOpts.NoLock = true
	}
}

func WithMySQLLockKey(key string) MySQLOptionFunc {
	return func(mysqlOpts *mysql.Options, connectOpts *sqlgateway.ConnectOptions) {
		mysqlOpts.LockKey = key
	}
}

func WithMySQLLockFor(lockFor int) MySQLOptionFunc {
	return func(mysqlOpts *mysql.Options, connectOpts *sqlgateway.ConnectOptions) {
		mysqlOpts.LockFor = lockFor
	}
}

func WithMySQLMigrationTable(migrationTable string) MySQLOptionFunc {
	return func(mysqlOpts *mysql.Options, connectOpts *sqlgateway.ConnectOptions) {
		mysqlOpts.MigrationsTable = migrationTable
	}
}

func WithMySQLCharset(charset string) MySQLOptionFunc {
	return func(mysqlOpts *mysql.Options, connectOpts *sqlgateway.ConnectOptions) {
		mysqlOpts.Charset = charset
	}
}

func WithMySQLConnectionTimeout(timeout time.Duration) MySQLOptionFunc {
	return func(mysqlOpts *mysql.Options, connectOpts *sqlgateway.ConnectOptions) {
		connectOpts.MaxTimeout = timeout
	}
}

func WithMySQLMaxConnectionAttempts(attempts int) MySQLOptionFunc {
	return func(mysqlOpts *mysql.Options, connectOpts *sqlgateway.ConnectOptions) {
		connectOpts.MaxAttempts = attempts
	}
}
