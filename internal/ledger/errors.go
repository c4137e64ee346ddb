package ledger

import "errors"

// ErrLedgerCorrupt indicates the ledger violates its own invariants: a
// duplicated order_executed, an unknown exec_type or an unreadable row.
// Nothing may run against a corrupt ledger.
var ErrLedgerCorrupt = errors.New("ledger corrupt")

// ErrNoHistory indicates the ledger has no applied entries.
var ErrNoHistory = errors.New("no applied changesets in ledger")

// ErrSchemaCreation indicates the bookkeeping tables could not be created.
var ErrSchemaCreation = errors.New("creating ledger tables")
