package ledger

import "fmt"

// Table names. Unquoted, so PostgreSQL folds them to lower case.
const (
	Table     = "DATABASECHANGELOG"
	LockTable = "DATABASECHANGELOGLOCK"
	// LockRowID is the id of the single lock row.
	LockRowID = 1
)

func createLedgerSQL(timestampType string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id             VARCHAR(255) NOT NULL,
    author         VARCHAR(255) NOT NULL,
    filename       VARCHAR(255) NOT NULL,
    date_executed  %s NOT NULL,
    order_executed INTEGER NOT NULL UNIQUE,
    exec_type      VARCHAR(10) NOT NULL,
    md5sum         VARCHAR(64),
    description    TEXT,
    comments       TEXT,
    tag            VARCHAR(255),
    contexts       VARCHAR(255),
    labels         VARCHAR(255),
    deployment_id  VARCHAR(36)
)`, Table, timestampType)
}

func createLockSQL(timestampType string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id          INTEGER NOT NULL PRIMARY KEY,
    locked      BOOLEAN NOT NULL,
    lockgranted %s NULL,
    lockedby    VARCHAR(255)
)`, LockTable, timestampType)
}

const selectEntriesSQL = `SELECT id, author, filename, date_executed, order_executed, exec_type,
       md5sum, description, comments, tag, contexts, labels, deployment_id
  FROM ` + Table + `
 ORDER BY order_executed`

const insertEntrySQL = `INSERT INTO ` + Table + ` (id, author, filename, date_executed, order_executed,
       exec_type, md5sum, description, comments, tag, contexts, labels, deployment_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
