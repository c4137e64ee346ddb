// Package parser inspects PostgreSQL SQL text with the real PostgreSQL
// grammar (pg_query). It is used to validate raw sql changes and to spot
// statements that cannot run inside a transaction block.
package parser //nolint:revive // intentional: does not conflict with go/parser in internal package

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// ParseResult holds the parsed AST and original SQL.
type ParseResult struct {
	Stmts []*pg_query.RawStmt
	SQL   string
}

// Parse parses a PostgreSQL SQL string and returns the AST.
// Returns an empty result (zero statements) for empty or whitespace-only input.
func Parse(sql string) (*ParseResult, error) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return &ParseResult{SQL: sql}, nil
	}

	tree, err := pg_query.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parsing SQL: %w", err)
	}

	return &ParseResult{
		Stmts: tree.Stmts,
		SQL:   sql,
	}, nil
}

// Inspection summarizes a SQL script.
type Inspection struct {
	Statements int
	// NonTransactional lists statements that PostgreSQL refuses inside a
	// transaction block, e.g. "CREATE INDEX CONCURRENTLY".
	NonTransactional []string
}

// Inspect parses sql and reports what the executor needs to know about it.
func Inspect(sql string) (*Inspection, error) {
	result, err := Parse(sql)
	if err != nil {
		return nil, err
	}

	in := &Inspection{Statements: len(result.Stmts)}

	for _, stmt := range result.Stmts {
		if what := nonTransactional(stmt.GetStmt()); what != "" {
			in.NonTransactional = append(in.NonTransactional, what)
		}
	}

	return in, nil
}

func nonTransactional(node *pg_query.Node) string {
	switch {
	case node.GetIndexStmt() != nil && node.GetIndexStmt().GetConcurrent():
		return "CREATE INDEX CONCURRENTLY"
	case node.GetDropStmt() != nil && node.GetDropStmt().GetConcurrent():
		return "DROP INDEX CONCURRENTLY"
	case node.GetVacuumStmt() != nil:
		return "VACUUM"
	case node.GetCreatedbStmt() != nil:
		return "CREATE DATABASE"
	case node.GetDropdbStmt() != nil:
		return "DROP DATABASE"
	case node.GetReindexStmt() != nil && hasConcurrentlyOption(node.GetReindexStmt().GetParams()):
		return "REINDEX CONCURRENTLY"
	default:
		return ""
	}
}

func hasConcurrentlyOption(params []*pg_query.Node) bool {
	for _, p := range params {
		if def := p.GetDefElem(); def != nil && def.GetDefname() == "concurrently" {
			return true
		}
	}

	return false
}
