package source

import (
	"context"

	"github.com/denismitr/shift/migration"
)

// InMemorySource serves units defined in code, in the order they were given
type InMemorySource struct {
	factories []migration.Factory
}

func NewInMemorySource(factories ...migration.Factory) *InMemorySource {
	return &InMemorySource{factories: factories}
}

func (c *InMemorySource) Select(ctx context.Context) (migration.Migrations, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return migration.NewMigrations(c.factories...)
}
