package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

const uniqueViolation = "23505"

type Dialect struct {
	migrationsTable string
}

func NewDialect(migrationsTable string) *Dialect {
	return &Dialect{migrationsTable: migrationsTable}
}

func (d Dialect) InitQuery() string {
	const createSQL = `CREATE TABLE IF NOT EXISTS %s (
		version VARCHAR(255) NOT NULL PRIMARY KEY,
		applied_at BIGINT NOT NULL
	)`

	return fmt.Sprintf(createSQL, pq.QuoteIdentifier(d.migrationsTable))
}

func (d Dialect) ReadQuery() string {
	const readSQL = "SELECT version, applied_at FROM %s ORDER BY applied_at ASC, version ASC"
	return fmt.Sprintf(readSQL, pq.QuoteIdentifier(d.migrationsTable))
}

func (d Dialect) ExistsQuery(version string) (string, []interface{}) {
	const existsSQL = "SELECT COUNT(*) FROM %s WHERE version = $1"
	return fmt.Sprintf(existsSQL, pq.QuoteIdentifier(d.migrationsTable)), []interface{}{version}
}

func (d Dialect) InsertQuery(version string, appliedAt int64) (string, []interface{}) {
	const insertSQL = "INSERT INTO %s (version, applied_at) VALUES ($1, $2)"
	return fmt.Sprintf(insertSQL, pq.QuoteIdentifier(d.migrationsTable)), []interface{}{version, appliedAt}
}

func (d Dialect) RemoveQuery(version string) (string, []interface{}) {
	const removeSQL = "DELETE FROM %s WHERE version = $1"
	return fmt.Sprintf(removeSQL, pq.QuoteIdentifier(d.migrationsTable)), []interface{}{version}
}

func (d Dialect) DropQuery() string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", pq.QuoteIdentifier(d.migrationsTable))
}

// IsDuplicate understands both lib/pq and pgx stdlib connections
func (d Dialect) IsDuplicate(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}

	return false
}
