// Package translator renders changes into SQL statements for a dialect.
package translator

import (
	"fmt"
	"strings"

	"github.com/aqasim81/changelog-migrate/internal/database"
	"github.com/aqasim81/changelog-migrate/internal/migration"
)

// Statement is one SQL statement with its bind arguments. Args are nil for
// DDL; raw sql changes may hold several statements in SQL.
type Statement struct {
	SQL  string
	Args []any
}

// String renders the statement for dry-run output.
func (s Statement) String() string {
	if len(s.Args) == 0 {
		return s.SQL
	}

	return fmt.Sprintf("%s -- args: %v", s.SQL, s.Args)
}

// Translate renders the changes in order.
func Translate(dialect database.Dialect, changes []migration.Change) ([]Statement, error) {
	t := &translator{dialect: dialect}

	for _, c := range changes {
		if err := c.Accept(t); err != nil {
			return nil, fmt.Errorf("translating %s: %w", c.Kind(), err)
		}
	}

	return t.out, nil
}

type translator struct {
	dialect database.Dialect
	out     []Statement
}

func (t *translator) emit(sql string, args ...any) error {
	t.out = append(t.out, Statement{SQL: sql, Args: args})
	return nil
}

func (t *translator) VisitCreateTable(c *migration.CreateTable) error {
	defs := make([]string, len(c.Columns))
	for i, col := range c.Columns {
		defs[i] = t.columnDef(col)
	}

	return t.emit(fmt.Sprintf("CREATE TABLE %s (%s)", c.TableName, strings.Join(defs, ", ")))
}

func (t *translator) VisitDropTable(c *migration.DropTable) error {
	return t.emit("DROP TABLE IF EXISTS " + c.TableName)
}

func (t *translator) VisitAddColumn(c *migration.AddColumn) error {
	for _, col := range c.Columns {
		if err := t.emit(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", c.TableName, t.columnDef(col))); err != nil {
			return err
		}
	}

	return nil
}

func (t *translator) VisitDropColumn(c *migration.DropColumn) error {
	return t.emit(fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", c.TableName, c.ColumnName))
}

func (t *translator) VisitRenameColumn(c *migration.RenameColumn) error {
	return t.emit(fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", c.TableName, c.OldColumnName, c.NewColumnName))
}

func (t *translator) VisitCreateIndex(c *migration.CreateIndex) error {
	cols := make([]string, len(c.Columns))
	for i, col := range c.Columns {
		cols[i] = col.Name
	}

	unique := ""
	if c.Unique {
		unique = "UNIQUE "
	}

	return t.emit(fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, c.IndexName, c.TableName, strings.Join(cols, ", ")))
}

func (t *translator) VisitInsert(c *migration.Insert) error {
	names := c.Columns.Names()
	marks := make([]string, len(names))
	args := make([]any, len(names))

	for i, cv := range c.Columns {
		marks[i] = "?"
		args[i] = cv.Value
	}

	return t.emit(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		c.TableName, strings.Join(names, ", "), strings.Join(marks, ", ")), args...)
}

func (t *translator) VisitSQL(c *migration.RawSQL) error {
	return t.emit(c.SQL)
}

// columnDef renders "name TYPE [PRIMARY KEY] [autoinc] [NOT NULL] [UNIQUE] [DEFAULT x]".
func (t *translator) columnDef(col migration.Column) string {
	parts := []string{col.Name, col.Type}

	if c := col.Constraints; c != nil {
		if c.PrimaryKey {
			parts = append(parts, "PRIMARY KEY")
		}

		if c.AutoIncrement {
			parts = append(parts, t.dialect.AutoIncrement)
		}

		if c.Nullable != nil && !*c.Nullable {
			parts = append(parts, "NOT NULL")
		}

		if c.Unique {
			parts = append(parts, "UNIQUE")
		}
	}

	if col.DefaultValue != nil {
		parts = append(parts, "DEFAULT "+*col.DefaultValue)
	}

	return strings.Join(parts, " ")
}
