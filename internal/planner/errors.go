package planner

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aqasim81/changelog-migrate/internal/migration"
)

// ErrChecksumConflict indicates an executed ChangeSet was edited afterwards.
var ErrChecksumConflict = errors.New("checksum conflict")

// ErrRollbackUndefined indicates a ChangeSet selected for reversal has no rollback.
var ErrRollbackUndefined = errors.New("rollback undefined")

// ErrTagNotFound indicates no ledger entry carries the requested tag.
var ErrTagNotFound = errors.New("tag not found")

// ErrUnknownChangeSet indicates an applied ledger entry has no ChangeSet in the changelog.
var ErrUnknownChangeSet = errors.New("applied changeset not found in changelog")

// ErrInvalidCount indicates a non-positive rollback count.
var ErrInvalidCount = errors.New("rollback count must be positive")

// ErrNonTransactional indicates a transactional ChangeSet holds a statement
// that cannot run inside a transaction block.
var ErrNonTransactional = errors.New("statement cannot run inside a transaction (set runInTransaction: false)")

// Conflict describes one ChangeSet whose parsed checksum differs from the
// checksum recorded for its last EXECUTED ledger entry.
type Conflict struct {
	Key      migration.Key
	Recorded string
	Current  string
	// Applied is false when the ChangeSet was rolled back since.
	Applied bool
}

// ConflictError lists every conflict found. It matches ErrChecksumConflict.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = fmt.Sprintf("%s (recorded %s, changelog %s)", c.Key, short(c.Recorded), short(c.Current))
	}

	return fmt.Sprintf("%s: %s", ErrChecksumConflict, strings.Join(parts, "; "))
}

// Unwrap lets errors.Is match ErrChecksumConflict.
func (e *ConflictError) Unwrap() error { return ErrChecksumConflict }

func short(sum string) string {
	const n = 12
	if len(sum) <= n {
		return sum
	}

	return sum[:n]
}
