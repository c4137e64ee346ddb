package migration

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aqasim81/changelog-migrate/internal/parser"
)

// Kind names an operation kind. The value is the key used in changelog documents.
type Kind string

// Supported change kinds.
const (
	KindCreateTable  Kind = "createTable"
	KindDropTable    Kind = "dropTable"
	KindAddColumn    Kind = "addColumn"
	KindDropColumn   Kind = "dropColumn"
	KindRenameColumn Kind = "renameColumn"
	KindCreateIndex  Kind = "createIndex"
	KindInsert       Kind = "insert"
	KindSQL          Kind = "sql"
)

// Change is one atomic schema or data operation. The set of implementations
// is closed: every implementation dispatches through Visitor, so adding a
// kind forces every Visitor to handle it.
type Change interface {
	Kind() Kind
	Accept(v Visitor) error
}

// Visitor handles every change kind.
type Visitor interface {
	VisitCreateTable(c *CreateTable) error
	VisitDropTable(c *DropTable) error
	VisitAddColumn(c *AddColumn) error
	VisitDropColumn(c *DropColumn) error
	VisitRenameColumn(c *RenameColumn) error
	VisitCreateIndex(c *CreateIndex) error
	VisitInsert(c *Insert) error
	VisitSQL(c *RawSQL) error
}

// Column describes a column definition used by createTable and addColumn.
// DefaultValue is rendered verbatim into the DDL; nil means no default.
type Column struct {
	Name         string       `json:"name"                   yaml:"name"`
	Type         string       `json:"type"                   yaml:"type"`
	DefaultValue *string      `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty"`
	Constraints  *Constraints `json:"constraints,omitempty"  yaml:"constraints,omitempty"`
}

// Constraints holds column constraints. Nullable is a pointer because an
// absent value (database default) differs from an explicit true.
type Constraints struct {
	PrimaryKey    bool  `json:"primaryKey,omitempty"    yaml:"primaryKey,omitempty"`
	AutoIncrement bool  `json:"autoIncrement,omitempty" yaml:"autoIncrement,omitempty"`
	Nullable      *bool `json:"nullable,omitempty"      yaml:"nullable,omitempty"`
	Unique        bool  `json:"unique,omitempty"        yaml:"unique,omitempty"`
}

// CreateTable creates a table with the given columns.
type CreateTable struct {
	TableName string   `json:"tableName" yaml:"tableName"`
	Columns   []Column `json:"columns"   yaml:"columns"`
}

// Kind implements Change.
func (c *CreateTable) Kind() Kind { return KindCreateTable }

// Accept implements Change.
func (c *CreateTable) Accept(v Visitor) error { return v.VisitCreateTable(c) }

// DropTable drops a table if it exists.
type DropTable struct {
	TableName string `json:"tableName" yaml:"tableName"`
}

// Kind implements Change.
func (c *DropTable) Kind() Kind { return KindDropTable }

// Accept implements Change.
func (c *DropTable) Accept(v Visitor) error { return v.VisitDropTable(c) }

// AddColumn adds one or more columns to an existing table.
type AddColumn struct {
	TableName string   `json:"tableName" yaml:"tableName"`
	Columns   []Column `json:"columns"   yaml:"columns"`
}

// Kind implements Change.
func (c *AddColumn) Kind() Kind { return KindAddColumn }

// Accept implements Change.
func (c *AddColumn) Accept(v Visitor) error { return v.VisitAddColumn(c) }

// UnmarshalYAML accepts both the single `column:` form and the `columns:` list.
func (c *AddColumn) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		TableName string   `yaml:"tableName"`
		Column    *Column  `yaml:"column"`
		Columns   []Column `yaml:"columns"`
	}

	if err := node.Decode(&raw); err != nil {
		return err
	}

	c.TableName = raw.TableName
	c.Columns = raw.Columns

	if raw.Column != nil {
		c.Columns = append([]Column{*raw.Column}, c.Columns...)
	}

	return nil
}

// DropColumn removes a column from a table.
type DropColumn struct {
	TableName  string `json:"tableName"  yaml:"tableName"`
	ColumnName string `json:"columnName" yaml:"columnName"`
}

// Kind implements Change.
func (c *DropColumn) Kind() Kind { return KindDropColumn }

// Accept implements Change.
func (c *DropColumn) Accept(v Visitor) error { return v.VisitDropColumn(c) }

// RenameColumn renames a column in place.
type RenameColumn struct {
	TableName     string `json:"tableName"     yaml:"tableName"`
	OldColumnName string `json:"oldColumnName" yaml:"oldColumnName"`
	NewColumnName string `json:"newColumnName" yaml:"newColumnName"`
}

// Kind implements Change.
func (c *RenameColumn) Kind() Kind { return KindRenameColumn }

// Accept implements Change.
func (c *RenameColumn) Accept(v Visitor) error { return v.VisitRenameColumn(c) }

// IndexColumn names one indexed column.
type IndexColumn struct {
	Name string `json:"name" yaml:"name"`
}

// CreateIndex creates a (optionally unique) index.
type CreateIndex struct {
	IndexName string        `json:"indexName"        yaml:"indexName"`
	TableName string        `json:"tableName"        yaml:"tableName"`
	Unique    bool          `json:"unique,omitempty" yaml:"unique,omitempty"`
	Columns   []IndexColumn `json:"columns"          yaml:"columns"`
}

// Kind implements Change.
func (c *CreateIndex) Kind() Kind { return KindCreateIndex }

// Accept implements Change.
func (c *CreateIndex) Accept(v Visitor) error { return v.VisitCreateIndex(c) }

// ColumnValue is one literal column/value pair of an insert.
type ColumnValue struct {
	Name  string
	Value any // string, int, float64, bool or nil as decoded from the document
}

// InsertColumns keeps insert values in document order.
type InsertColumns []ColumnValue

// UnmarshalYAML decodes a mapping while preserving key order.
func (ic *InsertColumns) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: insert columns must be a mapping (line %d)", ErrInvalidChangelog, node.Line)
	}

	out := make(InsertColumns, 0, len(node.Content)/2)

	for i := 0; i+1 < len(node.Content); i += 2 {
		var value any
		if err := node.Content[i+1].Decode(&value); err != nil {
			return fmt.Errorf("decoding insert value %q: %w", node.Content[i].Value, err)
		}

		out = append(out, ColumnValue{Name: node.Content[i].Value, Value: value})
	}

	*ic = out

	return nil
}

// MarshalYAML encodes the columns as an ordered mapping.
func (ic InsertColumns) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}

	for _, cv := range ic {
		val := &yaml.Node{}
		if err := val.Encode(cv.Value); err != nil {
			return nil, fmt.Errorf("encoding insert value %q: %w", cv.Name, err)
		}

		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: cv.Name}, val)
	}

	return node, nil
}

// MarshalJSON encodes the columns as an object. encoding/json sorts map
// keys, so the output does not depend on document key order.
func (ic InsertColumns) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(ic))
	for _, cv := range ic {
		m[cv.Name] = cv.Value
	}

	return json.Marshal(m)
}

// Names returns the column names in document order.
func (ic InsertColumns) Names() []string {
	names := make([]string, len(ic))
	for i, cv := range ic {
		names[i] = cv.Name
	}

	return names
}

// Insert adds one row of literal values.
type Insert struct {
	TableName string        `json:"tableName" yaml:"tableName"`
	Columns   InsertColumns `json:"columns"   yaml:"columns"`
}

// Kind implements Change.
func (c *Insert) Kind() Kind { return KindInsert }

// Accept implements Change.
func (c *Insert) Accept(v Visitor) error { return v.VisitInsert(c) }

// RawSQL executes literal SQL text.
type RawSQL struct {
	SQL string `yaml:"sql"`
}

// Kind implements Change.
func (c *RawSQL) Kind() Kind { return KindSQL }

// Accept implements Change.
func (c *RawSQL) Accept(v Visitor) error { return v.VisitSQL(c) }

// UnmarshalYAML accepts `sql: "..."` as well as `sql: {sql: "..."}`.
func (c *RawSQL) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		c.SQL = strings.TrimSpace(node.Value)
		return nil
	}

	var raw struct {
		SQL string `yaml:"sql"`
	}

	if err := node.Decode(&raw); err != nil {
		return err
	}

	c.SQL = strings.TrimSpace(raw.SQL)

	return nil
}

// MarshalYAML encodes the statement as a plain scalar.
func (c *RawSQL) MarshalYAML() (any, error) {
	return c.SQL, nil
}

// MarshalJSON encodes the whitespace-normalized SQL so formatting-only edits
// do not alter the checksum.
func (c *RawSQL) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		SQL string `json:"sql"`
	}{SQL: NormalizeSQL(c.SQL)})
}

// NormalizeSQL trims the text and collapses whitespace between tokens to one
// space. Whitespace inside literals, quoted identifiers and dollar-quoted
// bodies is kept, since it changes what the statement does.
func NormalizeSQL(sql string) string {
	spans, err := parser.Tokens(sql)
	if err != nil {
		return normalizeSegments(sql)
	}

	var b strings.Builder

	prev := 0

	for _, s := range spans {
		b.WriteString(collapseSpace(sql[prev:s.Start]))
		b.WriteString(sql[s.Start:s.End])
		prev = s.End
	}

	b.WriteString(collapseSpace(sql[prev:]))

	return strings.TrimSpace(b.String())
}

// normalizeSegments is used for text the PostgreSQL scanner rejects, such as
// an unterminated literal.
func normalizeSegments(sql string) string {
	var b strings.Builder

	for _, seg := range parser.Segments(sql) {
		if seg.Quoted {
			b.WriteString(seg.Text)
		} else {
			b.WriteString(collapseSpace(seg.Text))
		}
	}

	return strings.TrimSpace(b.String())
}

func collapseSpace(s string) string {
	if s == "" {
		return ""
	}

	inner := strings.Join(strings.Fields(s), " ")
	if inner == "" {
		return " "
	}

	if isSpace(s[0]) {
		inner = " " + inner
	}

	if isSpace(s[len(s)-1]) {
		inner += " "
	}

	return inner
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}
