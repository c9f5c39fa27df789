package sqlgateway

import (
	"context"
	"testing"

	"github.com/denismitr/shift/internal/database"
	"github.com/denismitr/shift/internal/database/sqlgateway/mysql"
	"github.com/denismitr/shift/internal/database/sqlgateway/postgres"
	"github.com/denismitr/shift/internal/database/sqlgateway/sqlite"
	"github.com/denismitr/shift/migration"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func createSqliteGateway(t *testing.T, table string) (*SQLGateway, *sqlx.Conn) {
	t.Helper()

	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)

	connector := MakeRetryingConnector(db, &ConnectOptions{MaxAttempts: 1})
	g, err := NewSqliteGateway(connector, sqlite.Options{MigrationsTable: table})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = g.Close()
		_ = db.Close()
	})

	conn, err := connector.Connect(context.Background())
	require.NoError(t, err)

	return g, conn
}

func tableExists(t *testing.T, conn *sqlx.Conn, table string) bool {
	t.Helper()

	var count int
	err := conn.GetContext(
		context.Background(),
		&count,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
		table,
	)
	require.NoError(t, err)

	return count > 0
}

// enableDeferredForeignKeys creates parents and children tables where an
// orphan child only fails at commit time
func enableDeferredForeignKeys(t *testing.T, conn *sqlx.Conn) {
	t.Helper()

	for _, q := range []string{
		"PRAGMA foreign_keys = ON",
		"CREATE TABLE parents (id INTEGER PRIMARY KEY)",
		"CREATE TABLE children (id INTEGER PRIMARY KEY, parent_id INTEGER NOT NULL REFERENCES parents (id) DEFERRABLE INITIALLY DEFERRED)",
	} {
		_, err := conn.ExecContext(context.Background(), q)
		require.NoError(t, err)
	}
}

func TestNewGateway(t *testing.T) {
	t.Parallel()

	t.Run("default table name", func(t *testing.T) {
		g, err := NewSqliteGateway(&RetryingConnector{}, sqlite.Options{})
		require.NoError(t, err)

		d, ok := g.dialect.(*sqlite.Dialect)
		require.True(t, ok)
		assert.Contains(t, d.InitQuery(), `"migrations"`)

		_, ok = g.locker.(nullLocker)
		assert.True(t, ok)
	})

	t.Run("custom mysql options", func(t *testing.T) {
		g, err := NewMySQLGateway(&RetryingConnector{}, mysql.Options{
			MigrationsTable: "schema_versions",
			LockKey:         "foobar",
			LockFor:         2,
		})
		require.NoError(t, err)

		d, ok := g.dialect.(*mysql.Dialect)
		require.True(t, ok)
		assert.Contains(t, d.InitQuery(), "`schema_versions`")

		_, ok = g.locker.(*mysql.Locker)
		assert.True(t, ok)
	})

	t.Run("postgres options", func(t *testing.T) {
		g, err := NewPostgresGateway(&RetryingConnector{}, postgres.Options{})
		require.NoError(t, err)

		_, ok := g.dialect.(*postgres.Dialect)
		require.True(t, ok)

		_, ok = g.locker.(*postgres.Locker)
		assert.True(t, ok)
	})

	t.Run("invalid table names are rejected", func(t *testing.T) {
		for _, table := range []string{"foo;drop", "1abc", "foo bar", `foo"`} {
			_, err := NewSqliteGateway(&RetryingConnector{}, sqlite.Options{MigrationsTable: table})
			assert.ErrorIs(t, err, database.ErrInvalidTable, table)
		}
	})
}

func TestSQLGateway_Ledger(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("install is idempotent and starts empty", func(t *testing.T) {
		g, conn := createSqliteGateway(t, "")

		require.NoError(t, g.EnsureInstalled(ctx))
		require.NoError(t, g.EnsureInstalled(ctx))
		assert.True(t, tableExists(t, conn, "migrations"))

		entries, err := g.ListApplied(ctx)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("it records and lists versions", func(t *testing.T) {
		g, _ := createSqliteGateway(t, "ledger")
		require.NoError(t, g.EnsureInstalled(ctx))

		err := g.InTx(ctx, func(tx database.Tx) error {
			if err := tx.RecordApplied(ctx, "2_second", 200); err != nil {
				return err
			}
			return tx.RecordApplied(ctx, "1_first", 100)
		})
		require.NoError(t, err)

		entries, err := g.ListApplied(ctx)
		require.NoError(t, err)
		assert.Equal(t, []database.Entry{
			{Version: "1_first", AppliedAt: 100},
			{Version: "2_second", AppliedAt: 200},
		}, entries)
	})

	t.Run("recording the same version twice is a conflict", func(t *testing.T) {
		g, _ := createSqliteGateway(t, "")
		require.NoError(t, g.EnsureInstalled(ctx))

		require.NoError(t, g.InTx(ctx, func(tx database.Tx) error {
			return tx.RecordApplied(ctx, "1", 100)
		}))

		err := g.InTx(ctx, func(tx database.Tx) error {
			return tx.RecordApplied(ctx, "1", 101)
		})

		var conflictErr *database.ConflictError
		require.ErrorAs(t, err, &conflictErr)
		assert.Equal(t, "1", conflictErr.Key)
	})

	t.Run("removing a missing version is not found", func(t *testing.T) {
		g, _ := createSqliteGateway(t, "")
		require.NoError(t, g.EnsureInstalled(ctx))

		err := g.InTx(ctx, func(tx database.Tx) error {
			return tx.RecordReverted(ctx, "nope")
		})

		var notFoundErr *database.NotFoundError
		require.ErrorAs(t, err, &notFoundErr)
		assert.Equal(t, "nope", notFoundErr.Key)
	})

	t.Run("a failed transaction leaves nothing behind", func(t *testing.T) {
		g, conn := createSqliteGateway(t, "")
		require.NoError(t, g.EnsureInstalled(ctx))

		boom := errors.New("boom")
		err := g.InTx(ctx, func(tx database.Tx) error {
			if _, err := tx.ExecContext(ctx, "CREATE TABLE foo (id INTEGER PRIMARY KEY)"); err != nil {
				return err
			}
			if err := tx.RecordApplied(ctx, "1", 100); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		entries, err := g.ListApplied(ctx)
		require.NoError(t, err)
		assert.Empty(t, entries)
		assert.False(t, tableExists(t, conn, "foo"))
	})

	t.Run("lock and unlock are no-ops for sqlite", func(t *testing.T) {
		g, _ := createSqliteGateway(t, "")
		require.NoError(t, g.Lock(ctx))
		require.NoError(t, g.Unlock(ctx))
	})

	t.Run("drop removes the ledger table", func(t *testing.T) {
		g, conn := createSqliteGateway(t, "")
		require.NoError(t, g.EnsureInstalled(ctx))
		require.NoError(t, g.dropMigrationsTable(ctx))
		assert.False(t, tableExists(t, conn, "migrations"))
	})

	t.Run("a failed commit leaves nothing behind and frees the connection", func(t *testing.T) {
		g, conn := createSqliteGateway(t, "")
		require.NoError(t, g.EnsureInstalled(ctx))
		enableDeferredForeignKeys(t, conn)

		err := g.InTx(ctx, func(tx database.Tx) error {
			if _, err := tx.ExecContext(ctx, "INSERT INTO children (parent_id) VALUES (42)"); err != nil {
				return err
			}
			return tx.RecordApplied(ctx, "1", 100)
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "could not commit transaction")

		entries, err := g.ListApplied(ctx)
		require.NoError(t, err)
		assert.Empty(t, entries)

		require.NoError(t, g.InTx(ctx, func(tx database.Tx) error {
			return tx.RecordApplied(ctx, "1", 100)
		}))
	})
}

func TestSQLGateway_WithOrchestrator(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	createRegistry := func(t *testing.T) *migration.Registry {
		r, err := migration.NewRegistryFromFactories(
			migration.New(
				"1_create_users", "create users",
				[]string{"CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT NOT NULL)"},
				[]string{"DROP TABLE users"},
			),
			migration.New(
				"2_create_posts", "create posts",
				[]string{"CREATE TABLE posts (id INTEGER PRIMARY KEY, user_id INTEGER NOT NULL)"},
				[]string{"DROP TABLE posts"},
			),
			migration.New(
				"3_create_tags", "create tags",
				[]string{"CREATE TABLE tags (id INTEGER PRIMARY KEY, name TEXT NOT NULL)"},
				[]string{"DROP TABLE tags"},
			),
		)
		require.NoError(t, err)
		return r
	}

	t.Run("up and down round trip", func(t *testing.T) {
		g, conn := createSqliteGateway(t, "")
		o := database.NewOrchestrator(createRegistry(t), g, nil, nil)

		migrated, err := o.Up(ctx, database.Plan{All: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"1_create_users", "2_create_posts", "3_create_tags"}, migrated)
		assert.True(t, tableExists(t, conn, "users"))
		assert.True(t, tableExists(t, conn, "posts"))
		assert.True(t, tableExists(t, conn, "tags"))

		migrated, err = o.Up(ctx, database.Plan{All: true})
		require.NoError(t, err)
		assert.Empty(t, migrated)

		rolledBack, err := o.Down(ctx, database.Plan{Steps: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"3_create_tags"}, rolledBack)
		assert.False(t, tableExists(t, conn, "tags"))

		rolledBack, err = o.Down(ctx, database.Plan{All: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"2_create_posts", "1_create_users"}, rolledBack)
		assert.False(t, tableExists(t, conn, "users"))

		entries, err := g.ListApplied(ctx)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("failing unit is rolled back as a whole", func(t *testing.T) {
		r, err := migration.NewRegistryFromFactories(
			migration.New("1_ok", "", []string{"CREATE TABLE a (id INTEGER)"}, []string{"DROP TABLE a"}),
			migration.New("2_broken", "", []string{
				"CREATE TABLE b (id INTEGER)",
				"CREATE TABLE a (id INTEGER)",
			}, []string{"DROP TABLE b"}),
			migration.New("3_never", "", []string{"CREATE TABLE c (id INTEGER)"}, []string{"DROP TABLE c"}),
		)
		require.NoError(t, err)

		g, conn := createSqliteGateway(t, "")
		o := database.NewOrchestrator(r, g, nil, nil)

		migrated, err := o.Up(ctx, database.Plan{All: true})
		require.Error(t, err)

		var execErr *database.ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, "2_broken", execErr.Key)
		assert.Contains(t, execErr.Error(), "script #2 failed")

		assert.Equal(t, []string{"1_ok"}, migrated)
		assert.True(t, tableExists(t, conn, "a"))
		assert.False(t, tableExists(t, conn, "b"))
		assert.False(t, tableExists(t, conn, "c"))

		entries, err := g.ListApplied(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "1_ok", entries[0].Version)
	})

	t.Run("a unit whose commit fails is reported and leaves no trace", func(t *testing.T) {
		r, err := migration.NewRegistryFromFactories(
			migration.New("1_ok", "", []string{"CREATE TABLE a (id INTEGER)"}, []string{"DROP TABLE a"}),
			migration.New("2_orphan", "", []string{
				"CREATE TABLE audit (id INTEGER)",
				"INSERT INTO children (parent_id) VALUES (42)",
			}, []string{"DROP TABLE audit"}),
			migration.New("3_never", "", []string{"CREATE TABLE c (id INTEGER)"}, []string{"DROP TABLE c"}),
		)
		require.NoError(t, err)

		g, conn := createSqliteGateway(t, "")
		enableDeferredForeignKeys(t, conn)
		o := database.NewOrchestrator(r, g, nil, nil)

		migrated, err := o.Up(ctx, database.Plan{All: true})

		var execErr *database.ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, "2_orphan", execErr.Key)
		assert.Equal(t, database.DirectionUp, execErr.Direction)
		assert.Equal(t, 1, execErr.Completed)
		assert.Contains(t, execErr.Error(), "FOREIGN KEY constraint failed")

		assert.Equal(t, []string{"1_ok"}, migrated)
		assert.True(t, tableExists(t, conn, "a"))
		assert.False(t, tableExists(t, conn, "audit"))
		assert.False(t, tableExists(t, conn, "c"))

		entries, err := g.ListApplied(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "1_ok", entries[0].Version)
	})

	t.Run("record only mode touches the ledger but not the schema", func(t *testing.T) {
		g, conn := createSqliteGateway(t, "")
		o := database.NewOrchestrator(createRegistry(t), g, nil, nil)

		migrated, err := o.Up(ctx, database.Plan{Steps: 2, RecordOnly: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"1_create_users", "2_create_posts"}, migrated)
		assert.False(t, tableExists(t, conn, "users"))
		assert.False(t, tableExists(t, conn, "posts"))

		entries, err := g.ListApplied(ctx)
		require.NoError(t, err)
		assert.Len(t, entries, 2)

		rolledBack, err := o.Down(ctx, database.Plan{All: true, RecordOnly: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"2_create_posts", "1_create_users"}, rolledBack)

		entries, err = g.ListApplied(ctx)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}
