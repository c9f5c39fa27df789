package sqlgateway

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

var ErrTxDeadlock = errors.New("transaction deadlock occurred")

// TxConfig - configures tx
type TxConfig struct {
	Iso      sql.IsolationLevel
	ReadOnly bool
}

type TxConfigFunc func(*TxConfig)

// ISO - isolation level type
type ISO int

const (
	Default ISO = iota
	Serializable
	RepeatableRead
	ReadCommitted
)

// Isolation tx config function
func Isolation(iso ISO) TxConfigFunc {
	return func(txCfg *TxConfig) {
		switch iso {
		case Serializable:
			txCfg.Iso = sql.LevelSerializable
		case RepeatableRead:
			txCfg.Iso = sql.LevelRepeatableRead
		case ReadCommitted:
			txCfg.Iso = sql.LevelReadCommitted
		default:
			txCfg.Iso = sql.LevelDefault
		}
	}
}

type TxCallback func(context.Context, *sqlx.Tx) error

type TxBeginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type SqlxTxManager struct{}

func NewTxManager() *SqlxTxManager {
	return &SqlxTxManager{}
}

// ReadWrite runs the callback in a transaction that is committed only
// when the callback succeeds. Isolation is left to the driver by default,
// since not every driver accepts an explicit level.
func (txm *SqlxTxManager) ReadWrite(
	ctx context.Context,
	b TxBeginner,
	cb TxCallback,
	cfn ...TxConfigFunc,
) error {
	txCfg := TxConfig{
		Iso:      sql.LevelDefault,
		ReadOnly: false,
	}

	for _, fn := range cfn {
		fn(&txCfg)
	}

	return txm.isolate(ctx, b, cb, txCfg)
}

func (txm *SqlxTxManager) isolate(
	ctx context.Context,
	b TxBeginner,
	cb TxCallback,
	txCfg TxConfig,
) error {
	txx, err := b.BeginTxx(ctx, &sql.TxOptions{ReadOnly: txCfg.ReadOnly, Isolation: txCfg.Iso})
	if err != nil {
		return errors.Wrapf(
			err,
			"could not start transaction. read-only: %v, isolation: %d",
			txCfg.ReadOnly, txCfg.Iso,
		)
	}

	if err := cb(ctx, txx); err != nil {
		if isDeadlock(err) {
			err = &deadlockError{cause: err}
		}

		if rbErr := txx.Rollback(); rbErr != nil {
			return errors.Wrap(err, "ROLLBACK: "+rbErr.Error())
		}

		return err
	}

	if err := txx.Commit(); err != nil {
		discardOpenTx(ctx, b)

		if isDeadlock(err) {
			return errors.Wrapf(ErrTxDeadlock, "on commit: %s", err.Error())
		}

		return errors.Wrapf(
			err,
			"could not commit transaction. read-only: %v, isolation: %d",
			txCfg.ReadOnly, txCfg.Iso,
		)
	}

	return nil
}

// discardOpenTx ends a transaction the server kept open after a failed
// commit, sqlite does so on deferred constraint violations. The error is
// ignored: usually no transaction is left to roll back.
func discardOpenTx(ctx context.Context, b TxBeginner) {
	if ex, ok := b.(interface {
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	}); ok {
		_, _ = ex.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
	}
}

// deadlockError keeps the typed cause reachable while also matching ErrTxDeadlock
type deadlockError struct {
	cause error
}

func (e *deadlockError) Error() string {
	return ErrTxDeadlock.Error() + ": " + e.cause.Error()
}

func (e *deadlockError) Unwrap() error { return e.cause }

func (e *deadlockError) Is(target error) bool {
	return target == ErrTxDeadlock
}

func isDeadlock(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "deadlock")
}
