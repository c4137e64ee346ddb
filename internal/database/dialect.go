package database

import (
	"strconv"
	"strings"

	"github.com/aqasim81/changelog-migrate/internal/parser"
)

// Dialect names the SQL differences the engine has to care about.
type Dialect struct {
	Name string
	// TimestampType is the column type used for ledger and lock timestamps.
	TimestampType string
	// AutoIncrement is appended to a column definition flagged autoIncrement.
	AutoIncrement string
	// SupportsTimeouts reports whether SET lock_timeout / statement_timeout exist.
	SupportsTimeouts bool
	// TransactionalDDL is false where DDL commits implicitly.
	TransactionalDDL bool
	numbered         bool
}

// Supported dialects.
var (
	Postgres = Dialect{ //nolint:gochecknoglobals // immutable dialect descriptor
		Name:             "postgres",
		TimestampType:    "TIMESTAMP",
		AutoIncrement:    "GENERATED BY DEFAULT AS IDENTITY",
		SupportsTimeouts: true,
		TransactionalDDL: true,
		numbered:         true,
	}
	SQLite = Dialect{ //nolint:gochecknoglobals // immutable dialect descriptor
		Name:             "sqlite",
		TimestampType:    "TIMESTAMP",
		AutoIncrement:    "AUTOINCREMENT",
		TransactionalDDL: true,
	}
	MySQL = Dialect{ //nolint:gochecknoglobals // immutable dialect descriptor
		Name:          "mysql",
		TimestampType: "DATETIME(6)",
		AutoIncrement: "AUTO_INCREMENT",
	}
)

// Rebind rewrites `?` placeholders into the dialect's syntax. Question marks
// inside literals, quoted identifiers, dollar-quoted bodies and comments are
// left alone.
func (d Dialect) Rebind(query string) string {
	if !d.numbered || !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder

	b.Grow(len(query) + 8)

	n := 0

	for _, seg := range parser.Segments(query) {
		if seg.Quoted {
			b.WriteString(seg.Text)

			continue
		}

		for _, r := range seg.Text {
			if r != '?' {
				b.WriteRune(r)

				continue
			}

			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		}
	}

	return b.String()
}

// bind rebinds query only when it carries arguments. Statements without
// arguments run exactly as written, so operators such as jsonb ? survive.
func (d Dialect) bind(query string, args []any) string {
	if len(args) == 0 {
		return query
	}

	return d.Rebind(query)
}

// InsertIgnoringDuplicates turns "INSERT INTO ..." into a statement that
// silently skips rows violating a unique key.
func (d Dialect) InsertIgnoringDuplicates(insert string) string {
	if d.Name == MySQL.Name {
		return "INSERT IGNORE" + strings.TrimPrefix(insert, "INSERT")
	}

	return insert + " ON CONFLICT DO NOTHING"
}
