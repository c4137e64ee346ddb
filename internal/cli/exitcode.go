package cli

import (
	"errors"

	"github.com/aqasim81/changelog-migrate/internal/executor"
	"github.com/aqasim81/changelog-migrate/internal/ledger"
	"github.com/aqasim81/changelog-migrate/internal/lock"
	"github.com/aqasim81/changelog-migrate/internal/planner"
)

// Process exit codes. Anything not listed below exits with exitFailure.
const (
	exitOK        = 0
	exitFailure   = 1
	exitDrift     = 2 // changelog and ledger disagree
	exitLocked    = 3 // another run holds the migration lock
	exitExecution = 4 // a changeset failed or the run was interrupted
	exitPlan      = 5 // the request cannot be planned
)

// errDrift is returned by validate when it found problems.
var errDrift = errors.New("changelog does not match the database history")

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, planner.ErrChecksumConflict), errors.Is(err, errDrift):
		return exitDrift
	case errors.Is(err, lock.ErrLockHeld):
		return exitLocked
	case errors.Is(err, executor.ErrExecutionFailed), errors.Is(err, executor.ErrInterrupted):
		return exitExecution
	case errors.Is(err, planner.ErrRollbackUndefined),
		errors.Is(err, planner.ErrTagNotFound),
		errors.Is(err, planner.ErrUnknownChangeSet),
		errors.Is(err, planner.ErrInvalidCount),
		errors.Is(err, planner.ErrNonTransactional),
		errors.Is(err, ledger.ErrNoHistory):
		return exitPlan
	default:
		return exitFailure
	}
}
