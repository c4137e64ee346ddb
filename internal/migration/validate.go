package migration

import "fmt"

// validator rejects changes that are missing required parameters.
type validator struct{}

func required(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidChangelog, field)
	}

	return nil
}

func validateColumns(cols []Column) error {
	if len(cols) == 0 {
		return fmt.Errorf("%w: at least one column is required", ErrInvalidChangelog)
	}

	for _, col := range cols {
		if err := required("column name", col.Name); err != nil {
			return err
		}

		if err := required("column type", col.Type); err != nil {
			return fmt.Errorf("column %s: %w", col.Name, err)
		}
	}

	return nil
}

func (validator) VisitCreateTable(c *CreateTable) error {
	if err := required("tableName", c.TableName); err != nil {
		return err
	}

	return validateColumns(c.Columns)
}

func (validator) VisitDropTable(c *DropTable) error {
	return required("tableName", c.TableName)
}

func (validator) VisitAddColumn(c *AddColumn) error {
	if err := required("tableName", c.TableName); err != nil {
		return err
	}

	return validateColumns(c.Columns)
}

func (validator) VisitDropColumn(c *DropColumn) error {
	if err := required("tableName", c.TableName); err != nil {
		return err
	}

	return required("columnName", c.ColumnName)
}

func (validator) VisitRenameColumn(c *RenameColumn) error {
	if err := required("tableName", c.TableName); err != nil {
		return err
	}

	if err := required("oldColumnName", c.OldColumnName); err != nil {
		return err
	}

	return required("newColumnName", c.NewColumnName)
}

func (validator) VisitCreateIndex(c *CreateIndex) error {
	if err := required("indexName", c.IndexName); err != nil {
		return err
	}

	if err := required("tableName", c.TableName); err != nil {
		return err
	}

	if len(c.Columns) == 0 {
		return fmt.Errorf("%w: at least one index column is required", ErrInvalidChangelog)
	}

	for _, col := range c.Columns {
		if err := required("index column name", col.Name); err != nil {
			return err
		}
	}

	return nil
}

func (validator) VisitInsert(c *Insert) error {
	if err := required("tableName", c.TableName); err != nil {
		return err
	}

	if len(c.Columns) == 0 {
		return fmt.Errorf("%w: insert requires at least one column", ErrInvalidChangelog)
	}

	return nil
}

func (validator) VisitSQL(c *RawSQL) error {
	return required("sql", c.SQL)
}
