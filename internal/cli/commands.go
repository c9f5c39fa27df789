package cli

import (
	"strings"
	"time"

	"github.com/denismitr/shift"
	"github.com/denismitr/shift/internal/logger"
	"github.com/denismitr/shift/internal/source"
	"github.com/denismitr/shift/migration"
	"github.com/pkg/errors"
)

// The Up command applies pending migrations in order.
type Up struct {
	Steps int  `kong:"short='n',default='-1',help='Number of migrations to apply, all pending ones by default.'"`
	Fake  bool `kong:"help='Only record the migrations as applied, do not run them.'"`
}

func (c *Up) Run(appCtx *Context, s *Settings) error {
	cfs, err := configurators(c.Steps, false, c.Fake)
	if err != nil {
		return err
	}

	return withMigrator(appCtx, *s, func(m *shift.Migrator) error {
		migrated, err := m.Up(appCtx.Ctx, cfs...)
		report(appCtx, "applied", migrated)
		return err
	})
}

// The Down command rolls back the most recently applied migrations.
type Down struct {
	Steps int  `kong:"short='n',default='-1',help='Number of migrations to roll back, one by default.'"`
	All   bool `kong:"help='Roll back every applied migration.'"`
	Fake  bool `kong:"help='Only remove the migrations from the migrations table, do not run their rollbacks.'"`
}

func (c *Down) Run(appCtx *Context, s *Settings) error {
	cfs, err := configurators(c.Steps, c.All, c.Fake)
	if err != nil {
		return err
	}

	return withMigrator(appCtx, *s, func(m *shift.Migrator) error {
		rolledBack, err := m.Down(appCtx.Ctx, cfs...)
		report(appCtx, "rolled back", rolledBack)
		return err
	})
}

// The Refresh command rolls back migrations and applies the same ones again.
type Refresh struct {
	Steps int  `kong:"short='n',default='-1',help='Number of migrations to refresh, one by default.'"`
	All   bool `kong:"help='Refresh every applied migration.'"`
	Fake  bool `kong:"help='Only rewrite the migrations table, do not run anything.'"`
}

func (c *Refresh) Run(appCtx *Context, s *Settings) error {
	cfs, err := configurators(c.Steps, c.All, c.Fake)
	if err != nil {
		return err
	}

	return withMigrator(appCtx, *s, func(m *shift.Migrator) error {
		rolledBack, migrated, err := m.Refresh(appCtx.Ctx, cfs...)
		report(appCtx, "rolled back", rolledBack)
		report(appCtx, "applied", migrated)
		return err
	})
}

// The Status command lists every migration with its state.
type Status struct{}

func (c *Status) Run(appCtx *Context, s *Settings) error {
	return withMigrator(appCtx, *s, func(m *shift.Migrator) error {
		states, err := m.Status(appCtx.Ctx)
		if err != nil {
			return err
		}

		data := make([][]string, 0, len(states))
		for _, st := range states {
			state, appliedAt := "pending", ""
			if st.Applied {
				state, appliedAt = "applied", st.AppliedAt.Format(time.RFC3339)
			}

			data = append(data, []string{st.Key, st.Name, state, appliedAt})
		}

		if err := renderTable([]string{"Migration", "Name", "State", "Applied At"}, data, appCtx.Stdout); err != nil {
			return errors.Wrap(err, "could not render migrations table")
		}

		return nil
	})
}

// The Create command writes empty migrate and rollback files for a new migration.
type Create struct {
	Name       []string `kong:"arg,help='Name of the migration, e.g. create users table.'"`
	NoRollback bool     `kong:"help='Do not create the rollback file.'"`
}

func (c *Create) Run(appCtx *Context, s *Settings) error {
	src, err := source.NewLocalFolderSource(s.Folder, logger.NewSlogLogger(appCtx.Logger), s.VersionFormat)
	if err != nil {
		return err
	}

	// keys made from a unix timestamp only sort correctly with that format
	vf := migration.DatetimeFormat
	if s.VersionFormat == migration.TimestampFormat {
		vf = migration.TimestampFormat
	}

	key, err := src.Create(migration.GenerateVersion(appCtx.Now, vf), strings.Join(c.Name, " "), !c.NoRollback)
	if err != nil {
		return err
	}

	appCtx.say("created migration [%s] in %s", key, s.Folder)

	return nil
}

// The Init command writes the configuration file stub.
type Init struct{}

func (c *Init) Run(appCtx *Context, root *CLI) error {
	if err := InitConfig(root.ConfigFile); err != nil {
		return err
	}

	appCtx.say("configuration written to %s", root.ConfigFile)

	return nil
}

func configurators(steps int, all, fake bool) ([]shift.ActionConfigurator, error) {
	cfs, err := shift.CreateConfigurators(steps, all)
	if err != nil {
		return nil, err
	}

	if fake {
		cfs = append(cfs, shift.WithRecordOnly())
	}

	return cfs, nil
}

func withMigrator(appCtx *Context, s Settings, f func(m *shift.Migrator) error) (err error) {
	m, closer, err := openMigrator(appCtx, s)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := closer(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return f(m)
}

func report(appCtx *Context, verb string, keys []string) {
	if len(keys) == 0 {
		return
	}

	appCtx.say("%s %d migration(s): %s", verb, len(keys), strings.Join(keys, ", "))
}
