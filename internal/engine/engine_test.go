package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomasleon/poorly/internal/core"
	"github.com/tomasleon/poorly/internal/database"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestCreateTableInsertAndSelect(t *testing.T) {
	e := newEngine(t)

	_, err := e.Execute(core.Query{
		Op:    core.OpCreate,
		DB:    database.DefaultName,
		Table: "people",
		NewColumns: []core.ColumnDef{
			{Name: "id", Type: core.DataTypeInt},
			{Name: "name", Type: core.DataTypeString},
		},
	})
	require.NoError(t, err)

	_, err = e.Execute(core.Query{
		Op:     core.OpInsert,
		DB:     database.DefaultName,
		Into:   "people",
		Values: core.ColumnSet{"id": core.IntValue(1), "name": core.StringValue("ada")},
	})
	require.NoError(t, err)

	rows, err := e.Execute(core.Query{Op: core.OpSelect, DB: database.DefaultName, Table: "people"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ada", rows[0]["name"].S)
}

func TestSelectRejectsUnknownProjectedColumn(t *testing.T) {
	e := newEngine(t)
	_, err := e.Execute(core.Query{
		Op:    core.OpCreate,
		DB:    database.DefaultName,
		Table: "people",
		NewColumns: []core.ColumnDef{
			{Name: "id", Type: core.DataTypeInt},
			{Name: "name", Type: core.DataTypeString},
		},
	})
	require.NoError(t, err)
	_, err = e.Execute(core.Query{
		Op: core.OpInsert, DB: database.DefaultName, Into: "people",
		Values: core.ColumnSet{"id": core.IntValue(1), "name": core.StringValue("ada")},
	})
	require.NoError(t, err)

	_, err = e.Execute(core.Query{
		Op: core.OpSelect, DB: database.DefaultName, Table: "people",
		Columns: []string{"nonexistent_col"},
	})
	require.Error(t, err)
	assert.IsType(t, &core.ColumnNotFoundError{}, err)
}

func TestUpdateReturnsPostMutationRows(t *testing.T) {
	e := newEngine(t)
	_, err := e.Execute(core.Query{
		Op: core.OpCreate, DB: database.DefaultName, Table: "people",
		NewColumns: []core.ColumnDef{{Name: "name", Type: core.DataTypeString}, {Name: "age", Type: core.DataTypeInt}},
	})
	require.NoError(t, err)
	_, err = e.Execute(core.Query{Op: core.OpInsert, DB: database.DefaultName, Into: "people",
		Values: core.ColumnSet{"name": core.StringValue("ada"), "age": core.IntValue(30)}})
	require.NoError(t, err)

	rows, err := e.Execute(core.Query{
		Op: core.OpUpdate, DB: database.DefaultName, Table: "people",
		Conditions: core.ColumnSet{"name": core.StringValue("ada")},
		Set:        core.ColumnSet{"age": core.IntValue(31)},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ada", rows[0]["name"].S)
	assert.Equal(t, int64(31), rows[0]["age"].I)
}

func TestDeleteReturnsDeletedRowsAndIsIdempotent(t *testing.T) {
	e := newEngine(t)
	_, err := e.Execute(core.Query{
		Op: core.OpCreate, DB: database.DefaultName, Table: "people",
		NewColumns: []core.ColumnDef{{Name: "name", Type: core.DataTypeString}},
	})
	require.NoError(t, err)
	_, err = e.Execute(core.Query{Op: core.OpInsert, DB: database.DefaultName, Into: "people",
		Values: core.ColumnSet{"name": core.StringValue("ada")}})
	require.NoError(t, err)

	rows, err := e.Execute(core.Query{
		Op: core.OpDelete, DB: database.DefaultName, Table: "people",
		Conditions: core.ColumnSet{"name": core.StringValue("ada")},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ada", rows[0]["name"].S)

	again, err := e.Execute(core.Query{
		Op: core.OpDelete, DB: database.DefaultName, Table: "people",
		Conditions: core.ColumnSet{"name": core.StringValue("ada")},
	})
	require.NoError(t, err)
	assert.Empty(t, again, "re-deleting an already-deleted row must return no rows")
}

func TestShowTablesListsDeclarationOrder(t *testing.T) {
	e := newEngine(t)
	for _, name := range []string{"zebras", "apples"} {
		_, err := e.Execute(core.Query{Op: core.OpCreate, DB: database.DefaultName, Table: name,
			NewColumns: []core.ColumnDef{{Name: "v", Type: core.DataTypeInt}}})
		require.NoError(t, err)
	}
	rows, err := e.Execute(core.Query{Op: core.OpShowTables, DB: database.DefaultName})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "zebras", rows[0]["name"].S)
	assert.Equal(t, "apples", rows[1]["name"].S)
}

func TestJoinAcrossTwoTables(t *testing.T) {
	e := newEngine(t)
	_, err := e.Execute(core.Query{Op: core.OpCreate, DB: database.DefaultName, Table: "authors",
		NewColumns: []core.ColumnDef{{Name: "id", Type: core.DataTypeInt}, {Name: "name", Type: core.DataTypeString}}})
	require.NoError(t, err)
	_, err = e.Execute(core.Query{Op: core.OpCreate, DB: database.DefaultName, Table: "books",
		NewColumns: []core.ColumnDef{{Name: "author_id", Type: core.DataTypeInt}, {Name: "title", Type: core.DataTypeString}}})
	require.NoError(t, err)

	_, err = e.Execute(core.Query{Op: core.OpInsert, DB: database.DefaultName, Into: "authors",
		Values: core.ColumnSet{"id": core.IntValue(1), "name": core.StringValue("ursula")}})
	require.NoError(t, err)
	_, err = e.Execute(core.Query{Op: core.OpInsert, DB: database.DefaultName, Into: "books",
		Values: core.ColumnSet{"author_id": core.IntValue(1), "title": core.StringValue("the dispossessed")}})
	require.NoError(t, err)

	rows, err := e.Execute(core.Query{
		Op: core.OpJoin, DB: database.DefaultName,
		Table1: "authors", Table2: "books",
		JoinOn: map[string]string{"authors.id": "books.author_id"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ursula", rows[0]["authors.name"].S)
	assert.Equal(t, "the dispossessed", rows[0]["books.title"].S)
}

func TestCreateDbSqliteKindAndQuery(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, func() error {
		_, err := e.Execute(core.Query{Op: core.OpCreateDb, Name: "shop", Kind: "sqlite"})
		return err
	}())

	_, err := e.Execute(core.Query{Op: core.OpCreate, DB: "shop", Table: "orders",
		NewColumns: []core.ColumnDef{
			{Name: "id", Type: core.DataTypeSerial},
			{Name: "total", Type: core.DataTypeFloat},
		}})
	require.NoError(t, err)

	_, err = e.Execute(core.Query{Op: core.OpInsert, DB: "shop", Into: "orders",
		Values: core.ColumnSet{"total": core.FloatValue(19.99)}})
	require.NoError(t, err)

	rows, err := e.Execute(core.Query{Op: core.OpSelect, DB: "shop", Table: "orders"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 19.99, rows[0]["total"].F, 0.0001)
}
