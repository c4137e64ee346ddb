package migration

// Sample returns the example changelog written by the generate command:
// a users table, a posts table with an index, and a column added later.
func Sample() []*ChangeSet {
	notNull := false
	current := "CURRENT_TIMESTAMP"
	falseLit := "false"

	sets := []*ChangeSet{
		{
			ID:      "1",
			Author:  "john.doe",
			Comment: "Create users table",
			Changes: []Change{&CreateTable{
				TableName: "users",
				Columns: []Column{
					{Name: "id", Type: "INTEGER", Constraints: &Constraints{PrimaryKey: true, AutoIncrement: true}},
					{Name: "username", Type: "VARCHAR(50)", Constraints: &Constraints{Nullable: &notNull, Unique: true}},
					{Name: "email", Type: "VARCHAR(100)", Constraints: &Constraints{Nullable: &notNull}},
					{Name: "created_at", Type: "TIMESTAMP", DefaultValue: &current},
				},
			}},
			Rollback: []Change{&DropTable{TableName: "users"}},
		},
		{
			ID:      "2",
			Author:  "john.doe",
			Comment: "Create posts table",
			Changes: []Change{
				&CreateTable{
					TableName: "posts",
					Columns: []Column{
						{Name: "id", Type: "INTEGER", Constraints: &Constraints{PrimaryKey: true, AutoIncrement: true}},
						{Name: "user_id", Type: "INTEGER", Constraints: &Constraints{Nullable: &notNull}},
						{Name: "title", Type: "VARCHAR(200)"},
						{Name: "content", Type: "TEXT"},
						{Name: "published", Type: "BOOLEAN", DefaultValue: &falseLit},
					},
				},
				&CreateIndex{
					IndexName: "idx_posts_user_id",
					TableName: "posts",
					Columns:   []IndexColumn{{Name: "user_id"}},
				},
			},
			Rollback: []Change{&DropTable{TableName: "posts"}},
		},
		{
			ID:      "3",
			Author:  "jane.smith",
			Comment: "Add phone column to users",
			Changes: []Change{&AddColumn{
				TableName: "users",
				Columns:   []Column{{Name: "phone", Type: "VARCHAR(20)"}},
			}},
			Rollback: []Change{&DropColumn{TableName: "users", ColumnName: "phone"}},
		},
	}

	for _, cs := range sets {
		cs.RunInTransaction = true
		cs.Description = Describe(cs.Changes)
		cs.Checksum = ComputeChecksum(cs)
	}

	return sets
}
