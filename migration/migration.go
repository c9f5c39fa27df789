package migration

import (
	"bytes"
	"context"
	"database/sql"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	TimestampFormat VersionFormat = "timestamp"
	DatetimeFormat  VersionFormat = "datetime"
	AnyFormat       VersionFormat = "any"
)

var keyRegexp = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]*$`)

type (
	VersionFormat string

	// Executor is the part of a live connection or transaction
	// a migration operation is allowed to use.
	Executor interface {
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}

	// Operation is one direction of a migration
	Operation func(ctx context.Context, ex Executor) error

	// Migration is a named, ordered and reversible change unit.
	// Key is the value written to the ledger.
	Migration struct {
		Key      string
		Name     string
		Migrate  Operation
		Rollback Operation

		// scripts are kept for SQL based units so they can be echoed and inspected
		migrateScripts  []string
		rollbackScripts []string
	}

	ClockFunc func() time.Time
	Factory   func() (*Migration, error)
)

// New creates a factory of a migration unit made of plain SQL scripts
func New(key, name string, migrate, rollback []string) Factory {
	return func() (*Migration, error) {
		if err := ValidateKey(key); err != nil {
			return nil, err
		}

		return &Migration{
			Key:             key,
			Name:            name,
			Migrate:         Scripts(migrate...),
			Rollback:        Scripts(rollback...),
			migrateScripts:  migrate,
			rollbackScripts: rollback,
		}, nil
	}
}

// NewFunc creates a factory of a migration unit implemented in Go,
// e.g. a data migration that reads rows before updating them
func NewFunc(key, name string, migrate, rollback Operation) Factory {
	return func() (*Migration, error) {
		if err := ValidateKey(key); err != nil {
			return nil, err
		}

		if migrate == nil {
			return nil, &ConfigurationError{Key: key, Reason: "migrate operation is required"}
		}

		if rollback == nil {
			rollback = Noop
		}

		return &Migration{Key: key, Name: name, Migrate: migrate, Rollback: rollback}, nil
	}
}

// Noop is an operation that does nothing, used by
// irreversible data migrations as their rollback
func Noop(context.Context, Executor) error {
	return nil
}

// Scripts turns SQL scripts into an operation that executes them one by one
func Scripts(scripts ...string) Operation {
	return func(ctx context.Context, ex Executor) error {
		for i, script := range scripts {
			if strings.TrimSpace(script) == "" {
				continue
			}

			if _, err := ex.ExecContext(ctx, script); err != nil {
				return errors.Wrapf(err, "script #%d failed", i+1)
			}
		}

		return nil
	}
}

func (m *Migration) MigrateScripts() string {
	return joinScripts(m.migrateScripts)
}

func (m *Migration) RollbackScripts() string {
	return joinScripts(m.rollbackScripts)
}

func joinScripts(scripts []string) string {
	var ms bytes.Buffer

	for i := range scripts {
		ms.WriteString(scripts[i])

		if !strings.HasSuffix(scripts[i], ";") {
			ms.WriteString(";")
		}

		if i < len(scripts)-1 {
			ms.WriteString("\n")
		}
	}

	return ms.String()
}

type Migrations []*Migration

func NewMigrations(factories ...Factory) (Migrations, error) {
	migrations := make(Migrations, len(factories))

	for i := range factories {
		m, err := factories[i]()
		if err != nil {
			return nil, err
		}

		migrations[i] = m
	}

	return migrations, nil
}

func (m Migrations) Keys() []string {
	result := make([]string, 0, len(m))
	for i := range m {
		result = append(result, m[i].Key)
	}
	return result
}

func (m Migrations) Len() int {
	return len(m)
}

func (m Migrations) Less(i, j int) bool {
	return m[i].Key < m[j].Key
}

func (m Migrations) Swap(i, j int) {
	m[i], m[j] = m[j], m[i]
}

// ValidateKey checks that a key can be stored in the ledger
func ValidateKey(key string) error {
	if key == "" {
		return &ConfigurationError{Reason: "migration key is empty"}
	}

	if len(key) > 255 {
		return &ConfigurationError{Key: key, Reason: "migration key is longer than 255 characters"}
	}

	if !keyRegexp.MatchString(key) {
		return &ConfigurationError{Key: key, Reason: "migration key contains invalid characters"}
	}

	return nil
}

func CreateKeyFromVersionAndName(version, name string) string {
	var result bytes.Buffer
	result.WriteString(version)
	result.WriteString("_")
	result.WriteString(strings.Replace(strings.ToLower(strings.TrimSpace(name)), " ", "_", -1))
	return result.String()
}

// GenerateVersion produces the version prefix for a new migration key
func GenerateVersion(cf ClockFunc, vf VersionFormat) string {
	now := cf().UTC()
	if vf == TimestampFormat {
		return strconv.FormatInt(now.Unix(), 10)
	}

	return now.Format("20060102150405")
}
