package migration

// Registry is the immutable, totally ordered list of all known migrations.
// The position of a unit in the registry is the only ordering the runner trusts.
type Registry struct {
	migrations Migrations
	index      map[string]int
}

// NewRegistry validates the units and fixes their order.
// Duplicate or malformed keys result in a *ConfigurationError.
func NewRegistry(migrations Migrations) (*Registry, error) {
	r := &Registry{
		migrations: make(Migrations, 0, len(migrations)),
		index:      make(map[string]int, len(migrations)),
	}

	for _, m := range migrations {
		if m == nil {
			return nil, &ConfigurationError{Reason: "nil migration in registry"}
		}

		if err := ValidateKey(m.Key); err != nil {
			return nil, err
		}

		if m.Migrate == nil || m.Rollback == nil {
			return nil, &ConfigurationError{Key: m.Key, Reason: "both migrate and rollback operations are required"}
		}

		if _, ok := r.index[m.Key]; ok {
			return nil, &ConfigurationError{Key: m.Key, Reason: "duplicate migration key"}
		}

		r.index[m.Key] = len(r.migrations)
		r.migrations = append(r.migrations, m)
	}

	return r, nil
}

// NewRegistryFromFactories builds all the units and then the registry
func NewRegistryFromFactories(factories ...Factory) (*Registry, error) {
	migrations, err := NewMigrations(factories...)
	if err != nil {
		return nil, err
	}

	return NewRegistry(migrations)
}

// All returns the migrations in registry order. The returned slice is a copy.
func (r *Registry) All() Migrations {
	result := make(Migrations, len(r.migrations))
	copy(result, r.migrations)
	return result
}

func (r *Registry) Keys() []string {
	return r.migrations.Keys()
}

func (r *Registry) Len() int {
	return len(r.migrations)
}

// Lookup finds a migration by its key
func (r *Registry) Lookup(key string) (*Migration, bool) {
	i, ok := r.index[key]
	if !ok {
		return nil, false
	}

	return r.migrations[i], true
}

// Position of the migration in the registry order, -1 when unknown
func (r *Registry) Position(key string) int {
	if i, ok := r.index[key]; ok {
		return i
	}

	return -1
}
