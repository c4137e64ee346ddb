package database

import (
	"fmt"
	"time"
)

// NullTime scans a nullable timestamp from every supported driver. pgx and
// MySQL (parseTime) produce time.Time; SQLite may produce text. Values are
// normalized to UTC.
type NullTime struct {
	Time  time.Time
	Valid bool
}

var timeLayouts = []string{ //nolint:gochecknoglobals // immutable parse table
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// Scan implements sql.Scanner.
func (n *NullTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*n = NullTime{}
		return nil
	case time.Time:
		*n = NullTime{Time: v.UTC(), Valid: true}
		return nil
	case string:
		return n.parse(v)
	case []byte:
		return n.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into timestamp", src)
	}
}

func (n *NullTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*n = NullTime{Time: t.UTC(), Valid: true}
			return nil
		}
	}

	return fmt.Errorf("unparsable timestamp %q", s)
}
