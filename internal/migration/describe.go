package migration

import (
	"fmt"
	"strings"
)

// Describe summarizes changes for the ledger's description column,
// e.g. "createTable tableName=users; createIndex indexName=idx_users_email".
func Describe(changes []Change) string {
	d := &describer{}

	for _, c := range changes {
		_ = c.Accept(d)
	}

	return strings.Join(d.parts, "; ")
}

type describer struct {
	parts []string
}

func (d *describer) add(kind Kind, format string, args ...any) error {
	d.parts = append(d.parts, string(kind)+" "+fmt.Sprintf(format, args...))
	return nil
}

func (d *describer) VisitCreateTable(c *CreateTable) error {
	return d.add(c.Kind(), "tableName=%s", c.TableName)
}

func (d *describer) VisitDropTable(c *DropTable) error {
	return d.add(c.Kind(), "tableName=%s", c.TableName)
}

func (d *describer) VisitAddColumn(c *AddColumn) error {
	names := make([]string, len(c.Columns))
	for i, col := range c.Columns {
		names[i] = col.Name
	}

	return d.add(c.Kind(), "tableName=%s columns=%s", c.TableName, strings.Join(names, ","))
}

func (d *describer) VisitDropColumn(c *DropColumn) error {
	return d.add(c.Kind(), "tableName=%s columnName=%s", c.TableName, c.ColumnName)
}

func (d *describer) VisitRenameColumn(c *RenameColumn) error {
	return d.add(c.Kind(), "tableName=%s %s=>%s", c.TableName, c.OldColumnName, c.NewColumnName)
}

func (d *describer) VisitCreateIndex(c *CreateIndex) error {
	return d.add(c.Kind(), "indexName=%s tableName=%s", c.IndexName, c.TableName)
}

func (d *describer) VisitInsert(c *Insert) error {
	return d.add(c.Kind(), "tableName=%s", c.TableName)
}

func (d *describer) VisitSQL(_ *RawSQL) error {
	d.parts = append(d.parts, string(KindSQL))
	return nil
}
