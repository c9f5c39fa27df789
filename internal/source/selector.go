package source

import (
	"context"
	"strings"
	"unicode"

	"github.com/denismitr/shift/migration"
	"github.com/pkg/errors"
)

var (
	ErrInvalidVersion     = errors.New("invalid version in migration filename")
	ErrNotAMigrationFile  = errors.New("not a migration file")
	ErrMissingMigrateFile = errors.New("migrate file is missing")
	ErrMigrationExists    = errors.New("migration already exists")
	ErrFolderDoesNotExist = errors.New("migrations folder does not exist")
	ErrEmptyMigrationName = errors.New("migration name is empty")
)

// Selector produces the units a registry is built from, in registry order
type Selector interface {
	Select(ctx context.Context) (migration.Migrations, error)
}

// Source is a selector able to create new migration units
type Source interface {
	Selector

	IsValid() bool
	AlreadyExists(version, name string) bool
	Create(version, name string, withRollback bool) (string, error)
}

func ucFirst(s string) string {
	r := []rune(s)

	if len(r) == 0 {
		return ""
	}

	f := string(unicode.ToUpper(r[0]))

	return f + string(r[1:])
}

func humanize(s string) string {
	return ucFirst(strings.Replace(s, "_", " ", -1))
}
