package ledger

import (
	"database/sql"
	"time"

	"github.com/aqasim81/changelog-migrate/internal/migration"
)

// ExecType is the kind of ledger event.
type ExecType string

// Ledger event kinds.
const (
	Executed ExecType = "EXECUTED"
	Rollback ExecType = "ROLLBACK"
)

// Valid reports whether t is a known event kind.
func (t ExecType) Valid() bool {
	return t == Executed || t == Rollback
}

// Entry is one row of DATABASECHANGELOG.
type Entry struct {
	ID            string
	Author        string
	Filename      string
	DateExecuted  time.Time
	OrderExecuted int64
	ExecType      ExecType
	MD5Sum        string
	Description   string
	Comments      string
	Tag           string
	Contexts      string
	Labels        string
	DeploymentID  string
}

// Key returns the ChangeSet key the entry refers to.
func (e Entry) Key() migration.Key {
	return migration.Key{ID: e.ID, Author: e.Author}
}

// nullString maps empty strings to SQL NULL on the way in.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
