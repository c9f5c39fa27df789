package sqlgateway

import (
	"context"

	"github.com/denismitr/shift/migration"
)

// Dialect renders the ledger queries of a particular database
type Dialect interface {
	InitQuery() string
	ReadQuery() string
	ExistsQuery(version string) (string, []interface{})
	InsertQuery(version string, appliedAt int64) (string, []interface{})
	RemoveQuery(version string) (string, []interface{})
	DropQuery() string

	// IsDuplicate reports whether err is a primary key violation
	IsDuplicate(err error) bool
}

// Locker holds a database wide lock on a pinned connection
type Locker interface {
	Lock(ctx context.Context, ex migration.Executor) error
	Unlock(ctx context.Context, ex migration.Executor) error
}

type nullLocker struct{}

func (nullLocker) Lock(context.Context, migration.Executor) error {
	return nil
}

func (nullLocker) Unlock(context.Context, migration.Executor) error {
	return nil
}
