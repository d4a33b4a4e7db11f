package schema

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomasleon/poorly/internal/core"
)

func TestCreateTablePreservesDeclarationOrder(t *testing.T) {
	s := New("poorly", KindPoorly)
	require.NoError(t, s.CreateTable("people", []Column{
		{Name: "name", Type: core.DataTypeString},
		{Name: "age", Type: core.DataTypeInt},
	}))

	table, ok := s.Table("people")
	require.True(t, ok)
	require.Len(t, table.Columns, 2)
	assert.Equal(t, "name", table.Columns[0].Name)
	assert.Equal(t, "age", table.Columns[1].Name)
}

func TestCreateTableRejectsUnsupportedColumnType(t *testing.T) {
	s := New("poorly", KindPoorly)
	err := s.CreateTable("people", []Column{{Name: "email", Type: core.DataTypeEmail}})
	require.Error(t, err)
	assert.IsType(t, &core.UnsupportedColumnTypeError{}, err)
}

func TestCreateTableRejectsDuplicateColumns(t *testing.T) {
	s := New("poorly", KindPoorly)
	err := s.CreateTable("people", []Column{
		{Name: "name", Type: core.DataTypeString},
		{Name: "name", Type: core.DataTypeInt},
	})
	require.Error(t, err)
	assert.IsType(t, &core.ColumnAlreadyExistsError{}, err)
}

func TestAlterTableRenamesColumn(t *testing.T) {
	s := New("poorly", KindPoorly)
	require.NoError(t, s.CreateTable("people", []Column{{Name: "nm", Type: core.DataTypeString}}))
	require.NoError(t, s.AlterTable("people", map[string]string{"nm": "name"}))

	table, _ := s.Table("people")
	assert.Equal(t, "name", table.Columns[0].Name)
}

func TestAlterTableRejectsUnknownColumn(t *testing.T) {
	s := New("poorly", KindPoorly)
	require.NoError(t, s.CreateTable("people", []Column{{Name: "name", Type: core.DataTypeString}}))
	err := s.AlterTable("people", map[string]string{"nope": "name2"})
	require.Error(t, err)
	assert.IsType(t, &core.ColumnNotFoundError{}, err)
}

func TestDumpAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New("shop", KindSqlite)
	require.NoError(t, s.CreateTable("orders", []Column{
		{Name: "id", Type: core.DataTypeSerial},
		{Name: "total", Type: core.DataTypeFloat},
	}))
	require.NoError(t, s.Dump(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "shop", loaded.Name)
	assert.Equal(t, KindSqlite, loaded.Kind)
	require.Len(t, loaded.Tables, 1)
	assert.Equal(t, "orders", loaded.Tables[0].Name)
	assert.Equal(t, core.DataTypeSerial, loaded.Tables[0].Columns[0].Type)

	// No stray temp files should remain after the atomic rename.
	entries, err := filepath.Glob(filepath.Join(dir, FileName+".*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestValidateNameRejectsLeadingDigit(t *testing.T) {
	err := ValidateName("1table")
	require.Error(t, err)
	assert.IsType(t, &core.InvalidNameError{}, err)
}
