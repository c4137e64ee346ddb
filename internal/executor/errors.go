package executor

import (
	"errors"
	"fmt"

	"github.com/aqasim81/changelog-migrate/internal/migration"
	"github.com/aqasim81/changelog-migrate/internal/planner"
)

// ErrExecutionFailed indicates a ChangeSet failed to execute.
var ErrExecutionFailed = errors.New("migration execution failed")

// ErrInterrupted indicates the run was cancelled between steps.
var ErrInterrupted = errors.New("migration run interrupted")

// StepError names the ChangeSet whose step failed. It matches both
// ErrExecutionFailed and the underlying database error.
type StepError struct {
	Key       migration.Key
	Direction planner.Direction
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s of changeset %s: %v", ErrExecutionFailed, e.Direction, e.Key, e.Err)
}

// Unwrap exposes ErrExecutionFailed and the cause.
func (e *StepError) Unwrap() []error {
	return []error{ErrExecutionFailed, e.Err}
}
