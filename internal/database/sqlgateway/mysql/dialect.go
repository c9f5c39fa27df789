package mysql

import (
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

const (
	DefaultCharset = "utf8mb4"

	duplicateEntry = 1062
)

// Dialect renders the MySQL ledger queries. MySQL commits DDL implicitly,
// so a unit made of DDL and its ledger insert are not atomic: a crash between
// them leaves the schema changed with no ledger entry.
type Dialect struct {
	migrationsTable, charset string
}

func NewDialect(migrationsTable, charset string) *Dialect {
	if charset == "" {
		charset = DefaultCharset
	}

	return &Dialect{migrationsTable: migrationsTable, charset: charset}
}

func (d Dialect) InitQuery() string {
	const createSQL = "CREATE TABLE IF NOT EXISTS `%s` (" +
		"`version` VARCHAR(255) NOT NULL PRIMARY KEY, " +
		"`applied_at` BIGINT NOT NULL" +
		") ENGINE=InnoDB DEFAULT CHARACTER SET=%s"

	return fmt.Sprintf(createSQL, d.migrationsTable, d.charset)
}

func (d Dialect) ReadQuery() string {
	const readSQL = "SELECT `version`, `applied_at` FROM `%s` ORDER BY `applied_at` ASC, `version` ASC"
	return fmt.Sprintf(readSQL, d.migrationsTable)
}

func (d Dialect) ExistsQuery(version string) (string, []interface{}) {
	const existsSQL = "SELECT COUNT(*) FROM `%s` WHERE `version` = ?"
	return fmt.Sprintf(existsSQL, d.migrationsTable), []interface{}{version}
}

func (d Dialect) InsertQuery(version string, appliedAt int64) (string, []interface{}) {
	const insertSQL = "INSERT INTO `%s` (`version`, `applied_at`) VALUES (?, ?)"
	return fmt.Sprintf(insertSQL, d.migrationsTable), []interface{}{version, appliedAt}
}

func (d Dialect) RemoveQuery(version string) (string, []interface{}) {
	const removeSQL = "DELETE FROM `%s` WHERE `version` = ?"
	return fmt.Sprintf(removeSQL, d.migrationsTable), []interface{}{version}
}

func (d Dialect) DropQuery() string {
	return fmt.Sprintf("DROP TABLE IF EXISTS `%s`", d.migrationsTable)
}

func (d Dialect) IsDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == duplicateEntry
}
