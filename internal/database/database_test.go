package database

import (
	"context"
	"testing"

	"github.com/denismitr/shift/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, migration.Executor) error { return nil }

func createRegistry(t *testing.T, keys ...string) *migration.Registry {
	t.Helper()

	factories := make([]migration.Factory, 0, len(keys))
	for _, k := range keys {
		factories = append(factories, migration.NewFunc(k, "", noop, noop))
	}

	r, err := migration.NewRegistryFromFactories(factories...)
	require.NoError(t, err)

	return r
}

func entries(versions ...string) []Entry {
	result := make([]Entry, 0, len(versions))
	for i, v := range versions {
		result = append(result, Entry{Version: v, AppliedAt: int64(1600000000 + i)})
	}
	return result
}

func TestPlan(t *testing.T) {
	t.Parallel()

	t.Run("negative steps are rejected", func(t *testing.T) {
		err := Plan{Steps: -1}.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNegativeSteps)
	})

	t.Run("all ignores steps", func(t *testing.T) {
		assert.NoError(t, Plan{Steps: -1, All: true}.Validate())
	})

	t.Run("take limits the number of migrations", func(t *testing.T) {
		r := createRegistry(t, "1", "2", "3")

		assert.Equal(t, []string{"1", "2"}, Plan{Steps: 2}.take(r.All()).Keys())
		assert.Equal(t, []string{"1", "2", "3"}, Plan{Steps: 10}.take(r.All()).Keys())
		assert.Equal(t, []string{"1", "2", "3"}, Plan{All: true}.take(r.All()).Keys())
		assert.Empty(t, Plan{Steps: 0}.take(r.All()))
	})
}

func TestComputePending(t *testing.T) {
	t.Parallel()

	r := createRegistry(t, "A", "B", "C")

	t.Run("everything is pending on an empty ledger", func(t *testing.T) {
		assert.Equal(t, []string{"A", "B", "C"}, ComputePending(r, nil).Keys())
	})

	t.Run("applied prefix is skipped", func(t *testing.T) {
		assert.Equal(t, []string{"C"}, ComputePending(r, entries("A", "B")).Keys())
	})

	t.Run("nothing is pending when all are applied", func(t *testing.T) {
		assert.Empty(t, ComputePending(r, entries("A", "B", "C")))
	})

	t.Run("unknown versions do not affect the result", func(t *testing.T) {
		assert.Equal(t, []string{"B", "C"}, ComputePending(r, entries("A", "Z")).Keys())
	})
}

func TestComputeApplied(t *testing.T) {
	t.Parallel()

	r := createRegistry(t, "A", "B", "C")

	t.Run("it follows registry order regardless of ledger order", func(t *testing.T) {
		applied := []Entry{
			{Version: "B", AppliedAt: 100},
			{Version: "A", AppliedAt: 100},
		}

		assert.Equal(t, []string{"A", "B"}, ComputeApplied(r, applied).Keys())
	})

	t.Run("unknown versions are skipped", func(t *testing.T) {
		assert.Equal(t, []string{"A"}, ComputeApplied(r, entries("A", "X")).Keys())
		assert.Equal(t, []string{"X"}, UnknownVersions(r, entries("A", "X")))
	})
}

func TestCheckPrefix(t *testing.T) {
	t.Parallel()

	r := createRegistry(t, "A", "B", "C")

	t.Run("a prefix is consistent", func(t *testing.T) {
		assert.NoError(t, CheckPrefix(r, nil))
		assert.NoError(t, CheckPrefix(r, entries("A")))
		assert.NoError(t, CheckPrefix(r, entries("A", "B", "C")))
	})

	t.Run("a gap is a consistency error", func(t *testing.T) {
		err := CheckPrefix(r, entries("A", "C"))
		require.Error(t, err)

		var consistencyErr *ConsistencyError
		require.ErrorAs(t, err, &consistencyErr)
		assert.Equal(t, "C", consistencyErr.Key)
		assert.Contains(t, err.Error(), "[B]")
	})
}
