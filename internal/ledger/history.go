package ledger

import (
	"fmt"
	"sort"

	"github.com/aqasim81/changelog-migrate/internal/migration"
)

// History is an immutable, validated snapshot of the ledger ordered by
// order_executed.
type History struct {
	entries []Entry
	latest  map[migration.Key]int // index of the latest entry per key
}

// NewHistory validates entries and returns them as a History. Entries may
// arrive in any order; a duplicated order_executed or unknown exec_type
// yields ErrLedgerCorrupt.
func NewHistory(entries []Entry) (History, error) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OrderExecuted < sorted[j].OrderExecuted
	})

	h := History{entries: sorted, latest: make(map[migration.Key]int, len(sorted))}

	for i, e := range sorted {
		if i > 0 && sorted[i-1].OrderExecuted == e.OrderExecuted {
			return History{}, fmt.Errorf("%w: order_executed %d used twice", ErrLedgerCorrupt, e.OrderExecuted)
		}

		if !e.ExecType.Valid() {
			return History{}, fmt.Errorf("%w: entry %s has exec_type %q", ErrLedgerCorrupt, e.Key(), e.ExecType)
		}

		if e.ID == "" || e.Author == "" {
			return History{}, fmt.Errorf("%w: entry at order %d has no id or author", ErrLedgerCorrupt, e.OrderExecuted)
		}

		h.latest[e.Key()] = i
	}

	return h, nil
}

// Entries returns every event in order_executed order.
func (h History) Entries() []Entry {
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)

	return out
}

// Len returns the number of ledger events.
func (h History) Len() int { return len(h.entries) }

// IsApplied reports whether the key's latest event is EXECUTED.
func (h History) IsApplied(k migration.Key) bool {
	i, ok := h.latest[k]

	return ok && h.entries[i].ExecType == Executed
}

// Applied returns the currently applied entries, ascending by order_executed.
func (h History) Applied() []Entry {
	var out []Entry

	for i, e := range h.entries {
		if h.latest[e.Key()] == i && e.ExecType == Executed {
			out = append(out, e)
		}
	}

	return out
}

// LastExecuted returns the most recent EXECUTED event for the key, whether or
// not it was later rolled back.
func (h History) LastExecuted(k migration.Key) (Entry, bool) {
	for i := len(h.entries) - 1; i >= 0; i-- {
		if e := h.entries[i]; e.Key() == k && e.ExecType == Executed {
			return e, true
		}
	}

	return Entry{}, false
}

// Tagged returns the highest-ordered entry carrying tag.
func (h History) Tagged(tag string) (Entry, bool) {
	if tag == "" {
		return Entry{}, false
	}

	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].Tag == tag {
			return h.entries[i], true
		}
	}

	return Entry{}, false
}
