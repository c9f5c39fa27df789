package shift

import (
	"context"

	"github.com/denismitr/shift/internal/database"
	"github.com/denismitr/shift/internal/logger"
	"github.com/denismitr/shift/internal/source"
	"github.com/denismitr/shift/migration"
	"github.com/pkg/errors"
)

var (
	ErrGatewayNotInitialized = errors.New("database gateway has not been initialized")
	ErrSourceNotInitialized  = errors.New("migrations source has not been initialized")
)

type CloserFunc func() error

type gateway interface {
	database.Ledger
	database.Locker
	SetLogger(lg logger.Logger)
	Close() error
}

// MigrationState is the state of a single registry unit reported by Status
type MigrationState = database.State

type Migrator struct {
	lg            logger.Logger
	gateway       gateway
	selector      source.Selector
	sourceFactory func(lg logger.Logger) (source.Selector, error)
	clock         migration.ClockFunc
	closerFns     []CloserFunc
}

// NewMigrator creates a migrator using option callbacks to pick the database,
// the source of migrations and the logger. When no source is given the
// local ./migrations folder is used.
func NewMigrator(opts ...OptionFunc) (*Migrator, CloserFunc, error) {
	m := new(Migrator)
	m.lg = logger.NullLogger{}

	for _, oFunc := range opts {
		if err := oFunc(m); err != nil {
			_ = m.close()
			return nil, nil, err
		}
	}

	if m.gateway == nil {
		return nil, nil, ErrGatewayNotInitialized
	}

	// Default selector implementation
	if m.sourceFactory == nil {
		m.sourceFactory = func(lg logger.Logger) (source.Selector, error) {
			return source.NewLocalFolderSource(source.DefaultMigrationsFolder, lg, migration.AnyFormat)
		}
	}

	selector, err := m.sourceFactory(m.lg)
	if err != nil {
		_ = m.close()
		return nil, nil, err
	}

	m.selector = selector
	m.gateway.SetLogger(m.lg)

	return m, m.close, nil
}

// Registry reads all the migrations from the source and fixes their order
func (m *Migrator) Registry(ctx context.Context) (*migration.Registry, error) {
	if m.selector == nil {
		return nil, ErrSourceNotInitialized
	}

	migrations, err := m.selector.Select(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not read migrations")
	}

	return migration.NewRegistry(migrations)
}

// Up applies pending migrations, all of them unless limited with WithSteps,
// and returns the keys of the applied ones
func (m *Migrator) Up(ctx context.Context, cfs ...ActionConfigurator) ([]string, error) {
	act := newAction(cfs...)

	o, err := m.orchestrator(ctx)
	if err != nil {
		m.lg.Error(err)
		return nil, err
	}

	migrated, err := o.Up(ctx, act.plan(true))
	if err != nil {
		m.lg.Error(err)
		return migrated, err
	}

	return migrated, nil
}

// Down reverts the most recently applied migration, or as many as
// WithSteps or WithAllSteps ask for, and returns the keys of the reverted ones
func (m *Migrator) Down(ctx context.Context, cfs ...ActionConfigurator) ([]string, error) {
	act := newAction(cfs...)

	o, err := m.orchestrator(ctx)
	if err != nil {
		m.lg.Error(err)
		return nil, err
	}

	rolledBack, err := o.Down(ctx, act.plan(false))
	if err != nil {
		m.lg.Error(err)
		return rolledBack, err
	}

	return rolledBack, nil
}

// Refresh first rolls back the migrations and then applies exactly
// the rolled back ones again
func (m *Migrator) Refresh(ctx context.Context, cfs ...ActionConfigurator) ([]string, []string, error) {
	act := newAction(cfs...)

	o, err := m.orchestrator(ctx)
	if err != nil {
		m.lg.Error(err)
		return nil, nil, err
	}

	rolledBack, err := o.Down(ctx, act.plan(false))
	if err != nil {
		m.lg.Error(err)
		return rolledBack, nil, err
	}

	if len(rolledBack) == 0 {
		return rolledBack, nil, nil
	}

	migrated, err := o.Up(ctx, database.Plan{Steps: len(rolledBack), RecordOnly: act.recordOnly})
	if err != nil {
		m.lg.Error(err)
		return rolledBack, migrated, err
	}

	return rolledBack, migrated, nil
}

// Status reports every known migration and whether it is applied
func (m *Migrator) Status(ctx context.Context) ([]MigrationState, error) {
	o, err := m.orchestrator(ctx)
	if err != nil {
		return nil, err
	}

	return o.Status(ctx)
}

// Source - returns migrator selector if it implements the full source.Source interface
func (m *Migrator) Source() source.Source {
	if s, ok := m.selector.(source.Source); ok {
		return s
	}

	return nil
}

func (m *Migrator) orchestrator(ctx context.Context) (*database.Orchestrator, error) {
	r, err := m.Registry(ctx)
	if err != nil {
		return nil, err
	}

	return database.NewOrchestrator(r, m.gateway, m.lg, m.clock), nil
}

// Close the migrator
func (m *Migrator) close() error {
	var result error

	for i := len(m.closerFns) - 1; i >= 0; i-- {
		if err := m.closerFns[i](); err != nil {
			m.lg.Error(err)
			if result == nil {
				result = err
			}
		}
	}

	m.closerFns = nil

	if m.gateway != nil {
		if err := m.gateway.Close(); err != nil {
			m.lg.Error(err)
			if result == nil {
				result = err
			}
		}
	}

	return result
}
