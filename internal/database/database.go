package database

import (
	"context"
	"regexp"
	"sort"
	"time"

	"github.com/denismitr/shift/migration"
	"github.com/pkg/errors"
)

var (
	ErrNegativeSteps = errors.New("number of steps must not be negative")
	ErrInvalidTable  = errors.New("invalid migrations table name")
	tableNameRegexp  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)
)

const (
	DefaultMigrationsTable = "migrations"

	DirectionUp   Direction = "migrate"
	DirectionDown Direction = "rollback"
)

type Direction string

// TableName returns the ledger table name to use, the default one if empty.
// Table names end up inside SQL text so only plain identifiers are accepted.
func TableName(table string) (string, error) {
	if table == "" {
		return DefaultMigrationsTable, nil
	}

	if !tableNameRegexp.MatchString(table) {
		return "", errors.Wrapf(ErrInvalidTable, "%q", table)
	}

	return table, nil
}

// Entry is one row of the ledger
type Entry struct {
	Version   string `db:"version"`
	AppliedAt int64  `db:"applied_at"`
}

func (e Entry) AppliedTime() time.Time {
	return time.Unix(e.AppliedAt, 0).UTC()
}

// Tx is the transaction a single unit runs in. The unit operation and
// the ledger write go through the same Tx so they commit together.
type Tx interface {
	migration.Executor

	RecordApplied(ctx context.Context, version string, appliedAt int64) error
	RecordReverted(ctx context.Context, version string) error
}

// Ledger persists which migrations are applied
type Ledger interface {
	EnsureInstalled(ctx context.Context) error
	ListApplied(ctx context.Context) ([]Entry, error)
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Locker is implemented by ledgers able to hold an exclusive
// lock for the duration of a run
type Locker interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// Plan limits how many units a run may process. With RecordOnly the
// ledger is updated but the operations of the units are not executed,
// for schemas that are changed by an external tool.
type Plan struct {
	Steps      int
	All        bool
	RecordOnly bool
}

func (p Plan) Validate() error {
	if !p.All && p.Steps < 0 {
		return errors.Wrapf(ErrNegativeSteps, "got %d", p.Steps)
	}

	return nil
}

func (p Plan) take(migrations migration.Migrations) migration.Migrations {
	if p.All || p.Steps >= len(migrations) {
		return migrations
	}

	return migrations[:p.Steps]
}

// ComputePending returns the registry units missing from the ledger,
// in registry order
func ComputePending(r *migration.Registry, applied []Entry) migration.Migrations {
	set := appliedSet(applied)

	var pending migration.Migrations
	for _, m := range r.All() {
		if _, ok := set[m.Key]; !ok {
			pending = append(pending, m)
		}
	}

	return pending
}

// ComputeApplied returns the registry units present in the ledger in the
// order they were applied. Under the prefix invariant that order is the
// registry order, so the registry position decides when applied_at values
// tie or disagree with it. Versions unknown to the registry are skipped.
func ComputeApplied(r *migration.Registry, applied []Entry) migration.Migrations {
	var result migration.Migrations
	for _, e := range applied {
		if m, ok := r.Lookup(e.Version); ok {
			result = append(result, m)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return r.Position(result[i].Key) < r.Position(result[j].Key)
	})

	return result
}

// UnknownVersions lists ledger versions the registry does not know about
func UnknownVersions(r *migration.Registry, applied []Entry) []string {
	var unknown []string
	for _, e := range applied {
		if r.Position(e.Version) < 0 {
			unknown = append(unknown, e.Version)
		}
	}

	return unknown
}

// CheckPrefix verifies that the applied units form a gap-free prefix
// of the registry
func CheckPrefix(r *migration.Registry, applied []Entry) error {
	set := appliedSet(applied)

	missing := ""
	for _, m := range r.All() {
		_, ok := set[m.Key]
		if !ok {
			if missing == "" {
				missing = m.Key
			}
			continue
		}

		if missing != "" {
			return &ConsistencyError{
				Key:    m.Key,
				Reason: "applied while preceding migration [" + missing + "] is not",
			}
		}
	}

	return nil
}

func appliedSet(applied []Entry) map[string]struct{} {
	set := make(map[string]struct{}, len(applied))
	for _, e := range applied {
		set[e.Version] = struct{}{}
	}
	return set
}
