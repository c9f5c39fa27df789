package database

import (
	"fmt"
)

// StorageError means the ledger could not be reached, created or read.
// It aborts a run before any migration is executed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("migrations ledger %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
func (e *StorageError) Cause() error  { return e.Err }

// ExecutionError means a unit did not take effect: its migrate or rollback
// operation failed, or so did the transaction around it.
// All the units completed before it in the same run stay applied (or reverted).
type ExecutionError struct {
	Key       string
	Direction Direction
	Completed int
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf(
		"%s of migration [%s] failed after %d successful step(s): %v",
		e.Direction, e.Key, e.Completed, e.Err,
	)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
func (e *ExecutionError) Cause() error  { return e.Err }

// ConsistencyError means the ledger contradicts what the runner relies on
// and requires manual intervention. It is never repaired automatically.
type ConsistencyError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ConsistencyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("migrations ledger is inconsistent at [%s]: %s: %v", e.Key, e.Reason, e.Err)
	}

	return fmt.Sprintf("migrations ledger is inconsistent at [%s]: %s", e.Key, e.Reason)
}

func (e *ConsistencyError) Unwrap() error { return e.Err }
func (e *ConsistencyError) Cause() error  { return e.Err }

// ConflictError is returned by a ledger when a version is already recorded
type ConflictError struct {
	Key string
	Err error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("migration version [%s] is already recorded", e.Key)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// NotFoundError is returned by a ledger when a version to delete is not recorded
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("migration version [%s] is not recorded", e.Key)
}
