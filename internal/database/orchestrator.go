package database

import (
	"context"
	"time"

	"github.com/denismitr/shift/internal/logger"
	"github.com/denismitr/shift/migration"
	"github.com/pkg/errors"
)

// Orchestrator runs registry units against a ledger, strictly one by one
// and strictly in registry order
type Orchestrator struct {
	registry *migration.Registry
	ledger   Ledger
	lg       logger.Logger
	clock    migration.ClockFunc
}

// State of a single registry unit
type State struct {
	Key       string
	Name      string
	Applied   bool
	AppliedAt time.Time
}

func NewOrchestrator(r *migration.Registry, l Ledger, lg logger.Logger, clock migration.ClockFunc) *Orchestrator {
	if lg == nil {
		lg = logger.NullLogger{}
	}

	if clock == nil {
		clock = time.Now
	}

	return &Orchestrator{registry: r, ledger: l, lg: lg, clock: clock}
}

// Up applies pending units in registry order, at most as many as the plan allows,
// and returns the keys of the units actually applied
func (o *Orchestrator) Up(ctx context.Context, p Plan) ([]string, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var migrated []string

	err := o.run(ctx, func(applied []Entry) error {
		scheduled := p.take(ComputePending(o.registry, applied))
		if len(scheduled) == 0 {
			o.lg.Event(logger.NoPending, "")
			return nil
		}

		for _, m := range scheduled {
			if err := ctx.Err(); err != nil {
				return errors.Wrapf(err, "migrate interrupted after %d of %d migration(s)", len(migrated), len(scheduled))
			}

			if err := o.migrateOne(ctx, m, p.RecordOnly); err != nil {
				return withCompleted(err, len(migrated))
			}

			migrated = append(migrated, m.Key)
		}

		return nil
	})

	return migrated, err
}

// Down reverts applied units, most recently applied first, at most as many
// as the plan allows, and returns the keys of the units actually reverted
func (o *Orchestrator) Down(ctx context.Context, p Plan) ([]string, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var rolledBack []string

	err := o.run(ctx, func(applied []Entry) error {
		scheduled := p.take(reverse(ComputeApplied(o.registry, applied)))
		if len(scheduled) == 0 {
			o.lg.Event(logger.NoApplied, "")
			return nil
		}

		for _, m := range scheduled {
			if err := ctx.Err(); err != nil {
				return errors.Wrapf(err, "rollback interrupted after %d of %d migration(s)", len(rolledBack), len(scheduled))
			}

			if err := o.rollbackOne(ctx, m, p.RecordOnly); err != nil {
				return withCompleted(err, len(rolledBack))
			}

			rolledBack = append(rolledBack, m.Key)
		}

		return nil
	})

	return rolledBack, err
}

// Status reports every registry unit with its ledger state
func (o *Orchestrator) Status(ctx context.Context) ([]State, error) {
	if err := o.ledger.EnsureInstalled(ctx); err != nil {
		return nil, asStorageError("install", err)
	}

	applied, err := o.ledger.ListApplied(ctx)
	if err != nil {
		return nil, asStorageError("read", err)
	}

	appliedAt := make(map[string]Entry, len(applied))
	for _, e := range applied {
		appliedAt[e.Version] = e
	}

	all := o.registry.All()
	result := make([]State, 0, len(all))
	for _, m := range all {
		s := State{Key: m.Key, Name: m.Name}
		if e, ok := appliedAt[m.Key]; ok {
			s.Applied = true
			s.AppliedAt = e.AppliedTime()
		}

		result = append(result, s)
	}

	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, f func(applied []Entry) error) (err error) {
	if locker, ok := o.ledger.(Locker); ok {
		if lockErr := locker.Lock(ctx); lockErr != nil {
			return asStorageError("lock", lockErr)
		}

		defer func() {
			// the lock must be released even when the run was cancelled
			if unlockErr := locker.Unlock(context.WithoutCancel(ctx)); unlockErr != nil {
				o.lg.Error(errors.Wrap(unlockErr, "could not release migrations lock"))
				if err == nil {
					err = asStorageError("unlock", unlockErr)
				}
			}
		}()
	}

	if err := o.ledger.EnsureInstalled(ctx); err != nil {
		return asStorageError("install", err)
	}

	applied, err := o.ledger.ListApplied(ctx)
	if err != nil {
		return asStorageError("read", err)
	}

	for _, v := range UnknownVersions(o.registry, applied) {
		o.lg.Debugf("ledger version [%s] is not in the registry, ignoring it", v)
	}

	if err := CheckPrefix(o.registry, applied); err != nil {
		return err
	}

	return f(applied)
}

func (o *Orchestrator) migrateOne(ctx context.Context, m *migration.Migration, recordOnly bool) error {
	o.lg.Event(logger.MigrationStarted, m.Key)
	if recordOnly {
		o.lg.Debugf("recording migration [%s] without running it", m.Key)
	} else if scripts := m.MigrateScripts(); scripts != "" {
		o.lg.SQL(scripts)
	}

	// an in-flight unit is finished even if the caller cancels
	unitCtx := context.WithoutCancel(ctx)

	err := o.ledger.InTx(unitCtx, func(tx Tx) error {
		if !recordOnly {
			if err := m.Migrate(unitCtx, tx); err != nil {
				return &ExecutionError{Key: m.Key, Direction: DirectionUp, Err: err}
			}
		}

		if err := tx.RecordApplied(unitCtx, m.Key, o.clock().Unix()); err != nil {
			return ledgerWriteError(m.Key, err)
		}

		return nil
	})

	if err != nil {
		return unitError(m.Key, DirectionUp, err)
	}

	o.lg.Event(logger.MigrationApplied, m.Key)

	return nil
}

func (o *Orchestrator) rollbackOne(ctx context.Context, m *migration.Migration, recordOnly bool) error {
	o.lg.Event(logger.MigrationStarted, m.Key)
	if recordOnly {
		o.lg.Debugf("removing migration [%s] from the ledger without running its rollback", m.Key)
	} else if scripts := m.RollbackScripts(); scripts != "" {
		o.lg.SQL(scripts)
	}

	unitCtx := context.WithoutCancel(ctx)

	err := o.ledger.InTx(unitCtx, func(tx Tx) error {
		if !recordOnly {
			if err := m.Rollback(unitCtx, tx); err != nil {
				return &ExecutionError{Key: m.Key, Direction: DirectionDown, Err: err}
			}
		}

		if err := tx.RecordReverted(unitCtx, m.Key); err != nil {
			return ledgerWriteError(m.Key, err)
		}

		return nil
	})

	if err != nil {
		return unitError(m.Key, DirectionDown, err)
	}

	o.lg.Event(logger.MigrationReverted, m.Key)

	return nil
}

// unitError makes sure a failure of a unit names the unit. Errors of the
// transaction itself, such as a failed begin or commit, and failed ledger
// writes become execution errors since the unit did not take effect.
func unitError(key string, d Direction, err error) error {
	var execErr *ExecutionError
	var consistencyErr *ConsistencyError
	if errors.As(err, &execErr) || errors.As(err, &consistencyErr) {
		return err
	}

	return &ExecutionError{Key: key, Direction: d, Err: err}
}

func ledgerWriteError(key string, err error) error {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return &ConsistencyError{Key: key, Reason: "version is already recorded", Err: err}
	}

	var notFound *NotFoundError
	if errors.As(err, &notFound) {
		return &ConsistencyError{Key: key, Reason: "version to remove is not recorded", Err: err}
	}

	return errors.Wrapf(err, "could not record version [%s]", key)
}

func asStorageError(op string, err error) error {
	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return err
	}

	return &StorageError{Op: op, Err: err}
}

func withCompleted(err error, completed int) error {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		execErr.Completed = completed
	}

	return err
}

func reverse(migrations migration.Migrations) migration.Migrations {
	result := make(migration.Migrations, len(migrations))
	for i := range migrations {
		result[len(migrations)-1-i] = migrations[i]
	}
	return result
}
