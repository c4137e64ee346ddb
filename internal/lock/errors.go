package lock

import (
	"errors"
	"fmt"
	"time"
)

// ErrLockHeld indicates another owner holds the lock and it is not stale.
var ErrLockHeld = errors.New("migration lock held")

// ErrLockRowMissing indicates the lock table exists without its singleton row.
var ErrLockRowMissing = errors.New("lock row missing (ledger schema not initialized)")

// HeldError reports who holds the lock. It matches ErrLockHeld with errors.Is.
type HeldError struct {
	LockedBy string
	Since    time.Time
}

func (e *HeldError) Error() string {
	if e.Since.IsZero() {
		return fmt.Sprintf("%s by %s", ErrLockHeld, e.LockedBy)
	}

	return fmt.Sprintf("%s by %s since %s", ErrLockHeld, e.LockedBy, e.Since.Format(time.RFC3339))
}

// Unwrap lets errors.Is match ErrLockHeld.
func (e *HeldError) Unwrap() error { return ErrLockHeld }
