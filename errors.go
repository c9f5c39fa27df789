package shift

import (
	"github.com/denismitr/shift/internal/database"
	"github.com/denismitr/shift/migration"
)

type (
	// StorageError - the ledger could not be reached, created or read
	StorageError = database.StorageError
	// ExecutionError - a migrate or rollback operation failed
	ExecutionError = database.ExecutionError
	// ConsistencyError - the ledger contradicts the registry and needs manual repair
	ConsistencyError   = database.ConsistencyError
	ConfigurationError = migration.ConfigurationError
)

var ErrNegativeSteps = database.ErrNegativeSteps
