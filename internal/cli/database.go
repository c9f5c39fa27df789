package cli

import (
	"database/sql"

	"github.com/denismitr/shift"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"github.com/xo/dburl"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrDatabaseURLMissing = errors.New("database url was not defined")
	ErrUnknownDriver      = errors.New("unknown database driver")
)

type (
	// Target is a database URL resolved into a registered driver and its DSN
	Target struct {
		Driver string
		DSN    string
	}

	migratorFactory    func(db *sql.DB, s Settings) shift.OptionFunc
	migratorFactoryMap map[string]migratorFactory
)

var factories = migratorFactoryMap{
	"mysql": func(db *sql.DB, s Settings) shift.OptionFunc {
		return shift.UseMySQL(db, shift.WithMySQLMigrationTable(s.Table))
	},
	"postgres": func(db *sql.DB, s Settings) shift.OptionFunc {
		return shift.UsePostgres(db, shift.WithPostgresMigrationTable(s.Table))
	},
	"pgx": func(db *sql.DB, s Settings) shift.OptionFunc {
		return shift.UsePostgres(db, shift.WithPostgresMigrationTable(s.Table))
	},
	"sqlite3": func(db *sql.DB, s Settings) shift.OptionFunc {
		return shift.UseSqlite(db, shift.WithSqliteMigrationTable(s.Table))
	},
}

// ResolveDatabaseURL turns a database URL into the driver and the DSN to open it with
func ResolveDatabaseURL(rawURL string) (Target, error) {
	if rawURL == "" {
		return Target{}, ErrDatabaseURLMissing
	}

	u, err := dburl.Parse(rawURL)
	if err != nil {
		return Target{}, errors.Wrap(err, "could not parse database url")
	}

	if _, ok := factories[u.Driver]; !ok {
		return Target{}, errors.Wrapf(ErrUnknownDriver, "[%s]", u.Driver)
	}

	t := Target{Driver: u.Driver, DSN: u.DSN}
	if t.Driver == "mysql" {
		// migration files hold several statements each
		cfg, err := mysqldriver.ParseDSN(t.DSN)
		if err != nil {
			return Target{}, errors.Wrap(err, "could not parse mysql dsn")
		}

		cfg.MultiStatements = true
		t.DSN = cfg.FormatDSN()
	}

	return t, nil
}

// openMigrator connects to the database the settings point to. The returned
// closer releases the migrator and then the database handle.
func openMigrator(appCtx *Context, s Settings) (*shift.Migrator, shift.CloserFunc, error) {
	t, err := ResolveDatabaseURL(s.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	db, err := sql.Open(t.Driver, t.DSN)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "could not open %s database", t.Driver)
	}

	m, closer, err := shift.NewMigrator(
		factories[t.Driver](db, s),
		shift.UseLocalFolderSource(s.Folder, shift.WithVersionFormat(s.VersionFormat)),
		shift.UseSlogLogger(appCtx.Logger),
		shift.UseClock(appCtx.Now),
	)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	return m, func() error {
		closeErr := closer()
		if err := db.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
		return closeErr
	}, nil
}
