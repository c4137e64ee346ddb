package migration_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/changelog-migrate/internal/migration"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		doc     string
		wantErr error
		check   func(t *testing.T, cl *migration.Changelog)
	}{
		{
			name: "changesets keep document order",
			doc: `databaseChangeLog:
  - changeSet:
      id: b
      author: x
      changes:
        - dropTable: {tableName: t1}
  - changeSet:
      id: a
      author: x
      changes:
        - dropTable: {tableName: t2}
`,
			check: func(t *testing.T, cl *migration.Changelog) {
				t.Helper()
				require.Len(t, cl.ChangeSets, 2)
				assert.Equal(t, "b", cl.ChangeSets[0].ID)
				assert.Equal(t, "a", cl.ChangeSets[1].ID)
				assert.Equal(t, "changelog.yaml", cl.ChangeSets[0].Filename)
				assert.True(t, cl.ChangeSets[0].RunInTransaction)
				assert.False(t, cl.ChangeSets[0].HasRollback())
			},
		},
		{
			name: "same id with different authors is allowed",
			doc: `databaseChangeLog:
  - changeSet: {id: "1", author: x, changes: [{sql: "SELECT 1"}]}
  - changeSet: {id: "1", author: y, changes: [{sql: "SELECT 1"}]}
`,
			check: func(t *testing.T, cl *migration.Changelog) {
				t.Helper()
				require.Len(t, cl.ChangeSets, 2)
				assert.NotNil(t, cl.Lookup(migration.Key{ID: "1", Author: "y"}))
				assert.Nil(t, cl.Lookup(migration.Key{ID: "2", Author: "y"}))
			},
		},
		{
			name: "duplicate key is rejected",
			doc: `databaseChangeLog:
  - changeSet: {id: "1", author: x, changes: [{sql: "SELECT 1"}]}
  - changeSet: {id: "1", author: x, changes: [{sql: "SELECT 2"}]}
`,
			wantErr: migration.ErrDuplicateChangeSet,
		},
		{
			name: "unknown change kind is rejected",
			doc: `databaseChangeLog:
  - changeSet: {id: "1", author: x, changes: [{dropView: {viewName: v}}]}
`,
			wantErr: migration.ErrUnknownChangeKind,
		},
		{
			name: "missing author is rejected",
			doc: `databaseChangeLog:
  - changeSet: {id: "1", changes: [{sql: "SELECT 1"}]}
`,
			wantErr: migration.ErrInvalidChangelog,
		},
		{
			name: "empty changes are rejected",
			doc: `databaseChangeLog:
  - changeSet: {id: "1", author: x, changes: []}
`,
			wantErr: migration.ErrInvalidChangelog,
		},
		{
			name: "missing required parameter is rejected",
			doc: `databaseChangeLog:
  - changeSet: {id: "1", author: x, changes: [{createIndex: {tableName: t, columns: [{name: a}]}}]}
`,
			wantErr: migration.ErrInvalidChangelog,
		},
		{
			name:    "malformed document is rejected",
			doc:     "databaseChangeLog: [",
			wantErr: migration.ErrInvalidChangelog,
		},
		{
			name: "rollback as plain sql string",
			doc: `databaseChangeLog:
  - changeSet:
      id: "1"
      author: x
      changes:
        - sql: CREATE TABLE t (id INT)
      rollback: DROP TABLE t
`,
			check: func(t *testing.T, cl *migration.Changelog) {
				t.Helper()
				cs := cl.ChangeSets[0]
				require.Len(t, cs.Rollback, 1)
				raw, ok := cs.Rollback[0].(*migration.RawSQL)
				require.True(t, ok)
				assert.Equal(t, "DROP TABLE t", raw.SQL)
			},
		},
		{
			name: "rollback as single change mapping",
			doc: `databaseChangeLog:
  - changeSet:
      id: "1"
      author: x
      changes:
        - addColumn:
            tableName: users
            column: {name: phone, type: TEXT}
      rollback:
        dropColumn: {tableName: users, columnName: phone}
`,
			check: func(t *testing.T, cl *migration.Changelog) {
				t.Helper()
				cs := cl.ChangeSets[0]
				require.Len(t, cs.Rollback, 1)
				assert.Equal(t, migration.KindDropColumn, cs.Rollback[0].Kind())

				add, ok := cs.Changes[0].(*migration.AddColumn)
				require.True(t, ok)
				require.Len(t, add.Columns, 1)
				assert.Equal(t, "phone", add.Columns[0].Name)
			},
		},
		{
			name: "contexts labels and runInTransaction",
			doc: `databaseChangeLog:
  - changeSet:
      id: "1"
      author: x
      context: dev, test
      labels: v1
      runInTransaction: false
      changes:
        - sql: CREATE INDEX CONCURRENTLY idx ON t (a)
`,
			check: func(t *testing.T, cl *migration.Changelog) {
				t.Helper()
				cs := cl.ChangeSets[0]
				assert.Equal(t, []string{"dev", "test"}, cs.Contexts)
				assert.Equal(t, []string{"v1"}, cs.Labels)
				assert.False(t, cs.RunInTransaction)
			},
		},
		{
			name: "insert keeps column order",
			doc: `databaseChangeLog:
  - changeSet:
      id: "1"
      author: x
      changes:
        - insert:
            tableName: users
            columns:
              username: admin
              id: 1
              active: true
`,
			check: func(t *testing.T, cl *migration.Changelog) {
				t.Helper()
				ins, ok := cl.ChangeSets[0].Changes[0].(*migration.Insert)
				require.True(t, ok)
				assert.Equal(t, []string{"username", "id", "active"}, ins.Columns.Names())
				assert.Equal(t, 1, ins.Columns[1].Value)
				assert.Equal(t, true, ins.Columns[2].Value)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cl, err := migration.Parse([]byte(tt.doc), "changelog.yaml")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			tt.check(t, cl)
		})
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "changelog.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"databaseChangeLog": [
  {"changeSet": {"id": "1", "author": "x", "changes": [{"dropTable": {"tableName": "t"}}]}}
]}`), 0o600))

	cl, err := migration.LoadFile(jsonPath)
	require.NoError(t, err)
	require.Len(t, cl.ChangeSets, 1)
	assert.Equal(t, jsonPath, cl.Path)

	_, err = migration.LoadFile(filepath.Join(dir, "changelog.xml"))
	require.ErrorIs(t, err, migration.ErrUnsupportedFormat)

	_, err = migration.LoadFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestEncode_roundTrip(t *testing.T) {
	t.Parallel()

	sample := migration.Sample()

	var buf bytes.Buffer
	require.NoError(t, migration.Encode(&buf, sample))

	cl, err := migration.Parse(buf.Bytes(), "generated.yaml")
	require.NoError(t, err)
	require.Len(t, cl.ChangeSets, len(sample))

	for i, want := range sample {
		got := cl.ChangeSets[i]
		assert.Equal(t, want.Key(), got.Key())
		assert.Equal(t, want.Checksum, got.Checksum, "checksum of %s", want.Key())
		assert.Equal(t, want.Description, got.Description)
		assert.Equal(t, want.Comment, got.Comment)
		assert.Len(t, got.Rollback, len(want.Rollback))
	}
}

func TestEncode_nonTransactional(t *testing.T) {
	t.Parallel()

	cs := &migration.ChangeSet{
		ID:       "1",
		Author:   "x",
		Contexts: []string{"prod"},
		Changes:  []migration.Change{&migration.RawSQL{SQL: "CREATE INDEX CONCURRENTLY i ON t (a)"}},
	}

	var buf bytes.Buffer
	require.NoError(t, migration.Encode(&buf, []*migration.ChangeSet{cs}))

	assert.Contains(t, buf.String(), "runInTransaction: false")

	cl, err := migration.Parse(buf.Bytes(), "x.yaml")
	require.NoError(t, err)
	assert.False(t, cl.ChangeSets[0].RunInTransaction)
	assert.Equal(t, []string{"prod"}, cl.ChangeSets[0].Contexts)
}
