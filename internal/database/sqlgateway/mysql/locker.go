package mysql

import (
	"context"
	"database/sql"

	"github.com/denismitr/shift/migration"
	"github.com/pkg/errors"
)

const (
	DefaultLockKey     = "shift_migrations"
	DefaultLockSeconds = 30
)

type Options struct {
	MigrationsTable string
	Charset         string
	LockKey         string
	LockFor         int
	NoLock          bool
}

// Locker uses MySQL named locks, which belong to the session
// that obtained them
type Locker struct {
	lockKey string
	lockFor int
	noLock  bool
}

func NewLocker(lockKey string, lockFor int, noLock bool) *Locker {
	if lockKey == "" {
		lockKey = DefaultLockKey
	}

	if lockFor <= 0 {
		lockFor = DefaultLockSeconds
	}

	return &Locker{lockKey: lockKey, lockFor: lockFor, noLock: noLock}
}

func (l *Locker) Lock(ctx context.Context, ex migration.Executor) error {
	if l.noLock {
		return nil
	}

	var obtained sql.NullInt64
	if err := ex.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", l.lockKey, l.lockFor).Scan(&obtained); err != nil {
		return errors.Wrapf(err, "could not obtain [%s] exclusive MySQL DB lock for [%d] seconds", l.lockKey, l.lockFor)
	}

	if !obtained.Valid || obtained.Int64 != 1 {
		return errors.Errorf("[%s] exclusive MySQL DB lock is held by another session for more than [%d] seconds", l.lockKey, l.lockFor)
	}

	return nil
}

func (l *Locker) Unlock(ctx context.Context, ex migration.Executor) error {
	if l.noLock {
		return nil
	}

	if _, err := ex.ExecContext(ctx, "SELECT RELEASE_LOCK(?)", l.lockKey); err != nil {
		return errors.Wrapf(err, "could not release [%s] exclusive MySQL DB lock", l.lockKey)
	}

	return nil
}
