package shift

import (
	"testing"

	"github.com/denismitr/shift/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_createConfigurators(t *testing.T) {
	tt := []struct {
		name                  string
		expectedConfigurators int
		steps                 int
		all                   bool
		up                    database.Plan
		down                  database.Plan
	}{
		{
			name:                  "defaults",
			expectedConfigurators: 0,
			steps:                 -1,
			up:                    database.Plan{All: true},
			down:                  database.Plan{Steps: 1},
		},
		{
			name:                  "only steps",
			expectedConfigurators: 1,
			steps:                 4,
			up:                    database.Plan{Steps: 4},
			down:                  database.Plan{Steps: 4},
		},
		{
			name:                  "zero steps",
			expectedConfigurators: 1,
			steps:                 0,
			up:                    database.Plan{Steps: 0},
			down:                  database.Plan{Steps: 0},
		},
		{
			name:                  "all",
			expectedConfigurators: 1,
			steps:                 -1,
			all:                   true,
			up:                    database.Plan{All: true},
			down:                  database.Plan{All: true},
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			configurators, err := CreateConfigurators(tc.steps, tc.all)
			require.NoError(t, err)
			assert.Len(t, configurators, tc.expectedConfigurators)

			a := newAction(configurators...)

			assert.Equal(t, tc.up, a.plan(true))
			assert.Equal(t, tc.down, a.plan(false))
		})
	}

	t.Run("steps and all are mutually exclusive", func(t *testing.T) {
		_, err := CreateConfigurators(2, true)
		assert.Error(t, err)
	})

	t.Run("only minus one means unset", func(t *testing.T) {
		for _, steps := range []int{-2, -3, -100} {
			_, err := CreateConfigurators(steps, false)
			assert.ErrorIs(t, err, ErrNegativeSteps, steps)

			_, err = CreateConfigurators(steps, true)
			assert.ErrorIs(t, err, ErrNegativeSteps, steps)
		}
	})
}

func Test_action(t *testing.T) {
	t.Parallel()

	t.Run("the last configurator wins", func(t *testing.T) {
		a := newAction(WithAllSteps(), WithSteps(3))
		assert.Equal(t, database.Plan{Steps: 3}, a.plan(false))

		a = newAction(WithSteps(3), WithAllSteps())
		assert.Equal(t, database.Plan{All: true}, a.plan(false))
	})

	t.Run("record only is carried into the plan", func(t *testing.T) {
		a := newAction(WithRecordOnly())
		assert.Equal(t, database.Plan{All: true, RecordOnly: true}, a.plan(true))
		assert.Equal(t, database.Plan{Steps: 1, RecordOnly: true}, a.plan(false))

		a = newAction(WithSteps(2), WithRecordOnly())
		assert.Equal(t, database.Plan{Steps: 2, RecordOnly: true}, a.plan(false))
	})
}
