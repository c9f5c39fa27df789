package sqlgateway

import (
	"context"

	"github.com/denismitr/shift/internal/database"
	"github.com/denismitr/shift/internal/database/sqlgateway/mysql"
	"github.com/denismitr/shift/internal/database/sqlgateway/postgres"
	"github.com/denismitr/shift/internal/database/sqlgateway/sqlite"
	"github.com/denismitr/shift/internal/logger"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// SQLGateway is the ledger backed by a table in the target database.
// Every call goes through one pinned connection.
type SQLGateway struct {
	connector *RetryingConnector
	txm       *SqlxTxManager
	dialect   Dialect
	locker    Locker
	lg        logger.Logger
}

var _ database.Ledger = (*SQLGateway)(nil)
var _ database.Locker = (*SQLGateway)(nil)

var _ Dialect = (*mysql.Dialect)(nil)
var _ Dialect = (*postgres.Dialect)(nil)
var _ Dialect = (*sqlite.Dialect)(nil)

// NewMySQLGateway - creates a ledger in a MySQL database guarded by a named lock
func NewMySQLGateway(connector *RetryingConnector, opts mysql.Options) (*SQLGateway, error) {
	table, err := database.TableName(opts.MigrationsTable)
	if err != nil {
		return nil, err
	}

	return newGateway(
		connector,
		mysql.NewDialect(table, opts.Charset),
		mysql.NewLocker(opts.LockKey, opts.LockFor, opts.NoLock),
	), nil
}

// NewPostgresGateway - creates a ledger in a PostgreSQL database guarded by an advisory lock
func NewPostgresGateway(connector *RetryingConnector, opts postgres.Options) (*SQLGateway, error) {
	table, err := database.TableName(opts.MigrationsTable)
	if err != nil {
		return nil, err
	}

	lockKey := opts.LockKey
	if lockKey == 0 {
		lockKey = postgres.LockKeyFor(table)
	}

	return newGateway(
		connector,
		postgres.NewDialect(table),
		postgres.NewLocker(lockKey, opts.NoLock),
	), nil
}

// NewSqliteGateway - creates a ledger in a sqlite database.
// Sqlite serializes writers on its own so no lock is taken.
func NewSqliteGateway(connector *RetryingConnector, opts sqlite.Options) (*SQLGateway, error) {
	table, err := database.TableName(opts.MigrationsTable)
	if err != nil {
		return nil, err
	}

	return newGateway(connector, sqlite.NewDialect(table), nullLocker{}), nil
}

func newGateway(connector *RetryingConnector, d Dialect, l Locker) *SQLGateway {
	return &SQLGateway{
		connector: connector,
		txm:       NewTxManager(),
		dialect:   d,
		locker:    l,
		lg:        logger.NullLogger{},
	}
}

func (g *SQLGateway) SetLogger(lg logger.Logger) {
	g.lg = lg
	g.connector.SetLogger(lg)
}

func (g *SQLGateway) Lock(ctx context.Context) error {
	conn, err := g.connector.Connect(ctx)
	if err != nil {
		return err
	}

	return g.locker.Lock(ctx, conn)
}

func (g *SQLGateway) Unlock(ctx context.Context) error {
	conn, err := g.connector.Connect(ctx)
	if err != nil {
		return err
	}

	return g.locker.Unlock(ctx, conn)
}

func (g *SQLGateway) EnsureInstalled(ctx context.Context) error {
	conn, err := g.connector.Connect(ctx)
	if err != nil {
		return err
	}

	q := g.dialect.InitQuery()
	g.lg.SQL(q)

	if _, err := conn.ExecContext(ctx, q); err != nil {
		return errors.Wrap(err, "could not create migrations table")
	}

	return nil
}

func (g *SQLGateway) ListApplied(ctx context.Context) ([]database.Entry, error) {
	conn, err := g.connector.Connect(ctx)
	if err != nil {
		return nil, err
	}

	var result []database.Entry
	if err := conn.SelectContext(ctx, &result, g.dialect.ReadQuery()); err != nil {
		return nil, errors.Wrap(err, "could not read migration versions")
	}

	return result, nil
}

func (g *SQLGateway) InTx(ctx context.Context, fn func(tx database.Tx) error) error {
	conn, err := g.connector.Connect(ctx)
	if err != nil {
		return err
	}

	return g.txm.ReadWrite(ctx, conn, func(ctx context.Context, tx *sqlx.Tx) error {
		return fn(&ledgerTx{Tx: tx, dialect: g.dialect, lg: g.lg})
	})
}

// dropMigrationsTable removes the ledger, tests use it to start over
func (g *SQLGateway) dropMigrationsTable(ctx context.Context) error {
	conn, err := g.connector.Connect(ctx)
	if err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, g.dialect.DropQuery()); err != nil {
		return errors.Wrap(err, "could not drop migrations table")
	}

	return nil
}

func (g *SQLGateway) Close() error {
	return g.connector.Close()
}

// ledgerTx runs migration scripts and ledger writes in one transaction
type ledgerTx struct {
	*sqlx.Tx
	dialect Dialect
	lg      logger.Logger
}

var _ database.Tx = (*ledgerTx)(nil)

func (tx *ledgerTx) RecordApplied(ctx context.Context, version string, appliedAt int64) error {
	existsQuery, args := tx.dialect.ExistsQuery(version)

	var count int
	if err := tx.GetContext(ctx, &count, existsQuery, args...); err != nil {
		return errors.Wrapf(err, "could not check migration version [%s]", version)
	}

	if count > 0 {
		return &database.ConflictError{Key: version}
	}

	insertQuery, args := tx.dialect.InsertQuery(version, appliedAt)
	tx.lg.SQL(insertQuery, args...)

	if _, err := tx.ExecContext(ctx, insertQuery, args...); err != nil {
		if tx.dialect.IsDuplicate(err) {
			return &database.ConflictError{Key: version, Err: err}
		}

		return errors.Wrapf(err, "could not insert migration version [%s]", version)
	}

	return nil
}

func (tx *ledgerTx) RecordReverted(ctx context.Context, version string) error {
	removeQuery, args := tx.dialect.RemoveQuery(version)
	tx.lg.SQL(removeQuery, args...)

	result, err := tx.ExecContext(ctx, removeQuery, args...)
	if err != nil {
		return errors.Wrapf(err, "could not remove migration version [%s]", version)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "could not verify removal of migration version [%s]", version)
	}

	if affected == 0 {
		return &database.NotFoundError{Key: version}
	}

	return nil
}
