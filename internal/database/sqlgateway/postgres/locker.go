package postgres

import (
	"context"
	"hash/fnv"

	"github.com/denismitr/shift/migration"
	"github.com/pkg/errors"
)

type Options struct {
	MigrationsTable string
	LockKey         int64
	NoLock          bool
}

// Locker uses a session level advisory lock
type Locker struct {
	lockKey int64
	noLock  bool
}

func NewLocker(lockKey int64, noLock bool) *Locker {
	return &Locker{lockKey: lockKey, noLock: noLock}
}

// LockKeyFor derives a stable advisory lock key from the ledger table name,
// so runners sharing a ledger also share the lock
func LockKeyFor(migrationsTable string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("shift:" + migrationsTable))
	return int64(h.Sum64())
}

func (l *Locker) Lock(ctx context.Context, ex migration.Executor) error {
	if l.noLock {
		return nil
	}

	if _, err := ex.ExecContext(ctx, "SELECT pg_advisory_lock($1)", l.lockKey); err != nil {
		return errors.Wrapf(err, "could not obtain [%d] exclusive PostgreSQL advisory lock", l.lockKey)
	}

	return nil
}

func (l *Locker) Unlock(ctx context.Context, ex migration.Executor) error {
	if l.noLock {
		return nil
	}

	var released bool
	if err := ex.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockKey).Scan(&released); err != nil {
		return errors.Wrapf(err, "could not release [%d] exclusive PostgreSQL advisory lock", l.lockKey)
	}

	if !released {
		return errors.Errorf("[%d] PostgreSQL advisory lock was not held by this session", l.lockKey)
	}

	return nil
}
