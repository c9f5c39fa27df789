package retry

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff_Run(t *testing.T) {
	t.Parallel()

	t.Run("single successful try", func(t *testing.T) {
		runs := 0

		err := Backoff{Step: 2 * time.Millisecond, MaxAttempts: 5}.Run(context.Background(), func(attempt int) error {
			runs++
			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, 1, runs)
	})

	t.Run("success from the third time", func(t *testing.T) {
		runs := 0

		err := Backoff{Step: 2 * time.Millisecond, MaxAttempts: 4}.Run(context.Background(), func(attempt int) error {
			runs++
			if attempt < 3 {
				return Error(errors.New("attempt failed"))
			}

			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, 3, runs)
	})

	t.Run("every retried failure is reported with a growing wait", func(t *testing.T) {
		type notification struct {
			attempt int
			wait    time.Duration
			msg     string
		}

		var got []notification
		b := Backoff{
			Step:        time.Millisecond,
			MaxAttempts: 3,
			Notify: func(attempt int, wait time.Duration, err error) {
				got = append(got, notification{attempt: attempt, wait: wait, msg: err.Error()})
			},
		}

		err := b.Run(context.Background(), func(attempt int) error {
			return Error(errors.New("connection refused"))
		})

		require.ErrorIs(t, err, ErrTooManyAttempts)
		assert.Equal(t, []notification{
			{attempt: 1, wait: time.Millisecond, msg: "connection refused"},
			{attempt: 2, wait: 2 * time.Millisecond, msg: "connection refused"},
		}, got)
	})

	t.Run("fails when attempt limit is exhausted", func(t *testing.T) {
		runs := 0

		err := Backoff{Step: 2 * time.Millisecond, MaxAttempts: 4}.Run(context.Background(), func(attempt int) error {
			runs++
			return Error(errors.New("connection refused"))
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTooManyAttempts)
		assert.Contains(t, err.Error(), "connection refused")
		assert.Equal(t, 4, runs)
	})

	t.Run("zero attempts still tries once", func(t *testing.T) {
		runs := 0

		err := Backoff{}.Run(context.Background(), func(attempt int) error {
			runs++
			return Error(errors.New("connection refused"))
		})

		assert.ErrorIs(t, err, ErrTooManyAttempts)
		assert.Equal(t, 1, runs)
	})

	t.Run("an unmarked error is not retried", func(t *testing.T) {
		runs := 0

		err := Backoff{Step: 2 * time.Millisecond, MaxAttempts: 4}.Run(context.Background(), func(attempt int) error {
			runs++
			return errors.New("access denied")
		})

		assert.Error(t, err)
		assert.Equal(t, 1, runs)
	})

	t.Run("stops when context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		runs := 0

		err := Backoff{Step: time.Hour, MaxAttempts: 10}.Run(ctx, func(attempt int) error {
			runs++
			cancel()
			return Error(errors.New("not yet"))
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, runs)
	})
}
