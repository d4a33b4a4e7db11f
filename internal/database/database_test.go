package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomasleon/poorly/internal/core"
	"github.com/tomasleon/poorly/internal/schema"
)

func TestOpenCreatesDefaultSchema(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "poorly")

	db, err := Open(dir, "poorly", schema.KindPoorly, nil)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, schema.KindPoorly, db.Kind())
	assert.Empty(t, db.ShowTables())
}

func TestCreateTableThenInsertRoundTrips(t *testing.T) {
	root := t.TempDir()
	db, err := Open(filepath.Join(root, "poorly"), "poorly", schema.KindPoorly, nil)
	require.NoError(t, err)
	defer db.Close()

	columns := []schema.Column{{Name: "name", Type: core.DataTypeString}}
	require.NoError(t, db.CreateTable("pets", columns))
	assert.Equal(t, []string{"pets"}, db.ShowTables())

	tbl, err := db.Table("pets")
	require.NoError(t, err)
	require.NoError(t, tbl.Insert(core.ColumnSet{"name": core.StringValue("fido")}))

	rows, err := tbl.Select(nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "fido", rows[0]["name"].S)
}

func TestCreateTableRejectsDuplicate(t *testing.T) {
	root := t.TempDir()
	db, err := Open(filepath.Join(root, "poorly"), "poorly", schema.KindPoorly, nil)
	require.NoError(t, err)
	defer db.Close()

	columns := []schema.Column{{Name: "name", Type: core.DataTypeString}}
	require.NoError(t, db.CreateTable("pets", columns))
	err = db.CreateTable("pets", columns)
	require.Error(t, err)
	assert.IsType(t, &core.TableAlreadyExistsError{}, err)
}

func TestSchemaSurvivesReopen(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "poorly")

	db, err := Open(dir, "poorly", schema.KindPoorly, nil)
	require.NoError(t, err)
	columns := []schema.Column{{Name: "age", Type: core.DataTypeInt}}
	require.NoError(t, db.CreateTable("ages", columns))
	require.NoError(t, db.Close())

	reopened, err := Open(dir, "poorly", schema.KindPoorly, nil)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, []string{"ages"}, reopened.ShowTables())
}

func TestCatalogRefusesToDropDefaultDatabase(t *testing.T) {
	root := t.TempDir()
	cat, err := NewCatalog(root, nil)
	require.NoError(t, err)
	defer cat.Close()

	err = cat.DropDb(DefaultName)
	require.Error(t, err)
	assert.IsType(t, &core.CannotDropDefaultDbError{}, err)
}

func TestCatalogCreateAndGet(t *testing.T) {
	root := t.TempDir()
	cat, err := NewCatalog(root, nil)
	require.NoError(t, err)
	defer cat.Close()

	require.NoError(t, cat.CreateDb("shop", schema.KindPoorly))
	db, err := cat.Get("shop")
	require.NoError(t, err)
	assert.Equal(t, "shop", db.Name)

	err = cat.CreateDb("shop", schema.KindPoorly)
	require.Error(t, err)
	assert.IsType(t, &core.DatabaseAlreadyExistsError{}, err)
}

func TestCatalogDropRemovesDirectory(t *testing.T) {
	root := t.TempDir()
	cat, err := NewCatalog(root, nil)
	require.NoError(t, err)
	defer cat.Close()

	require.NoError(t, cat.CreateDb("temp", schema.KindPoorly))
	require.NoError(t, cat.DropDb("temp"))

	_, err = cat.Get("temp")
	require.Error(t, err)
	assert.IsType(t, &core.DatabaseNotFoundError{}, err)
}
