package shift

import (
	"github.com/denismitr/shift/internal/database"
	"github.com/pkg/errors"
)

type ActionConfigurator func(a *Action)

// Action limits how many migrations a single Up, Down or Refresh processes
type Action struct {
	steps      int
	stepsSet   bool
	all        bool
	recordOnly bool
}

func newAction(cfs ...ActionConfigurator) *Action {
	act := new(Action)
	for _, f := range cfs {
		f(act)
	}
	return act
}

// WithSteps limits the number of migrations, zero means nothing is processed
func WithSteps(steps int) ActionConfigurator {
	return func(a *Action) {
		a.steps = steps
		a.stepsSet = true
		a.all = false
	}
}

// WithAllSteps lifts the limit, which is how Down reverts everything
func WithAllSteps() ActionConfigurator {
	return func(a *Action) {
		a.all = true
		a.stepsSet = false
	}
}

// WithRecordOnly updates the migrations table as if the migrations ran,
// without running them. Useful for a schema that was changed by hand.
func WithRecordOnly() ActionConfigurator {
	return func(a *Action) {
		a.recordOnly = true
	}
}

// plan falls back to everything for Up and to a single step for Down
func (a *Action) plan(defaultAll bool) database.Plan {
	p := database.Plan{RecordOnly: a.recordOnly}

	switch {
	case a.all:
		p.All = true
	case a.stepsSet:
		p.Steps = a.steps
	case defaultAll:
		p.All = true
	default:
		p.Steps = 1
	}

	return p
}

// UnsetSteps is the steps value meaning the default for the action
const UnsetSteps = -1

// CreateConfigurators turns command line values into action configurators
func CreateConfigurators(steps int, all bool) ([]ActionConfigurator, error) {
	if steps < UnsetSteps {
		return nil, errors.Wrapf(database.ErrNegativeSteps, "got %d", steps)
	}

	if all && steps >= 0 {
		return nil, errors.New("steps and all cannot be used together")
	}

	var configurators []ActionConfigurator
	if all {
		configurators = append(configurators, WithAllSteps())
	}

	if steps >= 0 {
		configurators = append(configurators, WithSteps(steps))
	}

	return configurators, nil
}
