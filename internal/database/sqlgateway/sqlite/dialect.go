package sqlite

import (
	"fmt"

	mattn "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	modernc "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

type Options struct {
	MigrationsTable string
}

// Dialect works with both the cgo and the pure Go sqlite drivers
type Dialect struct {
	migrationsTable string
}

func NewDialect(migrationsTable string) *Dialect {
	return &Dialect{migrationsTable: migrationsTable}
}

func (d Dialect) InitQuery() string {
	const createSQL = `CREATE TABLE IF NOT EXISTS "%s" (
		version TEXT NOT NULL PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`

	return fmt.Sprintf(createSQL, d.migrationsTable)
}

func (d Dialect) ReadQuery() string {
	const readSQL = `SELECT version, applied_at FROM "%s" ORDER BY applied_at ASC, version ASC`
	return fmt.Sprintf(readSQL, d.migrationsTable)
}

func (d Dialect) ExistsQuery(version string) (string, []interface{}) {
	const existsSQL = `SELECT COUNT(*) FROM "%s" WHERE version = ?`
	return fmt.Sprintf(existsSQL, d.migrationsTable), []interface{}{version}
}

func (d Dialect) InsertQuery(version string, appliedAt int64) (string, []interface{}) {
	const insertSQL = `INSERT INTO "%s" (version, applied_at) VALUES (?, ?)`
	return fmt.Sprintf(insertSQL, d.migrationsTable), []interface{}{version, appliedAt}
}

func (d Dialect) RemoveQuery(version string) (string, []interface{}) {
	const removeSQL = `DELETE FROM "%s" WHERE version = ?`
	return fmt.Sprintf(removeSQL, d.migrationsTable), []interface{}{version}
}

func (d Dialect) DropQuery() string {
	return fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, d.migrationsTable)
}

func (d Dialect) IsDuplicate(err error) bool {
	var mattnErr mattn.Error
	if errors.As(err, &mattnErr) {
		return mattnErr.ExtendedCode == mattn.ErrConstraintPrimaryKey ||
			mattnErr.ExtendedCode == mattn.ErrConstraintUnique
	}

	var moderncErr *modernc.Error
	if errors.As(err, &moderncErr) {
		return moderncErr.Code() == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY ||
			moderncErr.Code() == sqlitelib.SQLITE_CONSTRAINT_UNIQUE
	}

	return false
}
