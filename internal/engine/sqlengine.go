package engine

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/tomasleon/poorly/internal/core"
	"github.com/tomasleon/poorly/internal/schema"
)

// sqlBackend delegates every "sqlite"-kind database to an actual embedded
// SQLite file, one *sql.DB per open database directory.
type sqlBackend struct {
	root string
	log  *core.Logger

	mu    sync.Mutex
	conns map[string]*sql.DB
}

func newSQLBackend(root string, log *core.Logger) *sqlBackend {
	return &sqlBackend{root: root, log: log, conns: make(map[string]*sql.DB)}
}

func (b *sqlBackend) conn(dbName string) (*sql.DB, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.conns[dbName]; ok {
		return c, nil
	}
	path := filepath.Join(b.root, dbName, "data.sqlite3")
	c, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &core.IOError{Err: err}
	}
	b.conns[dbName] = c
	return c, nil
}

func (b *sqlBackend) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.conns {
		c.Close()
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sqlColumnType(dt core.DataType) (string, error) {
	switch dt {
	case core.DataTypeInt:
		return "INTEGER", nil
	case core.DataTypeFloat:
		return "REAL", nil
	case core.DataTypeChar, core.DataTypeString, core.DataTypeEmail:
		return "TEXT", nil
	case core.DataTypeSerial:
		return "INTEGER", nil
	default:
		return "", &core.UnsupportedColumnTypeError{Type: dt, Kind: "sqlite"}
	}
}

// CreateTable issues the physical DDL for a sqlite-kind table. The serial
// column, if any, becomes sqlite's rowid alias so autoincrement is free.
func (b *sqlBackend) CreateTable(dbName, table string, columns []schema.Column) error {
	conn, err := b.conn(dbName)
	if err != nil {
		return err
	}

	defs := make([]string, len(columns))
	for i, c := range columns {
		sqlType, err := sqlColumnType(c.Type)
		if err != nil {
			return err
		}
		def := quoteIdent(c.Name) + " " + sqlType
		if c.Type == core.DataTypeSerial {
			def += " PRIMARY KEY AUTOINCREMENT"
		}
		defs[i] = def
	}

	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(defs, ", "))
	if _, err := conn.Exec(stmt); err != nil {
		return &core.IOError{Err: err}
	}
	return nil
}

// DropTable issues the physical DROP TABLE for a sqlite-kind table.
func (b *sqlBackend) DropTable(dbName, table string) error {
	conn, err := b.conn(dbName)
	if err != nil {
		return err
	}
	if _, err := conn.Exec(fmt.Sprintf("DROP TABLE %s", quoteIdent(table))); err != nil {
		return &core.IOError{Err: err}
	}
	return nil
}

// RenameColumns issues one ALTER TABLE ... RENAME COLUMN per entry, since
// sqlite only supports renaming a single column per statement.
func (b *sqlBackend) RenameColumns(dbName, table string, rename map[string]string) error {
	conn, err := b.conn(dbName)
	if err != nil {
		return err
	}
	for from, to := range rename {
		stmt := fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", quoteIdent(table), quoteIdent(from), quoteIdent(to))
		if _, err := conn.Exec(stmt); err != nil {
			return &core.IOError{Err: err}
		}
	}
	return nil
}

func sqlArg(v core.Value) (interface{}, error) {
	switch v.Kind {
	case core.DataTypeInt, core.DataTypeSerial:
		return v.I, nil
	case core.DataTypeFloat:
		return v.F, nil
	case core.DataTypeChar:
		return string(v.C), nil
	case core.DataTypeString, core.DataTypeEmail:
		return v.S, nil
	default:
		return nil, &core.UnsupportedColumnTypeError{Type: v.Kind, Kind: "sqlite"}
	}
}

// Insert issues a parameterized INSERT, skipping any serial column so
// sqlite assigns its rowid itself.
func (b *sqlBackend) Insert(dbName, table string, columns []schema.Column, values core.ColumnSet) error {
	conn, err := b.conn(dbName)
	if err != nil {
		return err
	}

	var names []string
	var placeholders []string
	var args []interface{}
	for _, c := range columns {
		if c.Type == core.DataTypeSerial {
			if _, present := values[c.Name]; present {
				return &core.ExtraColumnError{Column: c.Name, Table: table}
			}
			continue
		}
		v, ok := values[c.Name]
		if !ok {
			return &core.MissingColumnError{Column: c.Name, Table: table}
		}
		if v.Kind != c.Type {
			coerced, err := v.Coerce(c.Type, c.Name)
			if err != nil {
				return err
			}
			v = coerced
		}
		if err := v.Validate(); err != nil {
			return err
		}
		arg, err := sqlArg(v)
		if err != nil {
			return err
		}
		names = append(names, quoteIdent(c.Name))
		placeholders = append(placeholders, "?")
		args = append(args, arg)
	}

	for name := range values {
		found := false
		for _, c := range columns {
			if c.Name == name {
				found = true
				break
			}
		}
		if !found {
			return &core.ExtraColumnError{Column: name, Table: table}
		}
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(table), strings.Join(names, ", "), strings.Join(placeholders, ", "))
	if _, err := conn.Exec(stmt, args...); err != nil {
		return &core.IOError{Err: err}
	}
	return nil
}

func whereClause(columns []schema.Column, table string, conditions core.ColumnSet) (string, []interface{}, error) {
	if len(conditions) == 0 {
		return "", nil, nil
	}
	var clauses []string
	var args []interface{}
	for name, v := range conditions {
		col, ok := columnByName(columns, name)
		if !ok {
			return "", nil, &core.ColumnNotFoundError{Column: name, Table: table}
		}
		if v.Kind != col.Type {
			coerced, err := v.Coerce(col.Type, name)
			if err != nil {
				return "", nil, err
			}
			v = coerced
		}
		arg, err := sqlArg(v)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, quoteIdent(name)+" = ?")
		args = append(args, arg)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func columnByName(columns []schema.Column, name string) (schema.Column, bool) {
	for _, c := range columns {
		if c.Name == name {
			return c, true
		}
	}
	return schema.Column{}, false
}

// Select issues a parameterized SELECT and decodes the result set back
// into typed values using the schema's declared column types.
func (b *sqlBackend) Select(dbName, table string, columns []schema.Column, conditions core.ColumnSet, projection []string) ([]core.ColumnSet, error) {
	conn, err := b.conn(dbName)
	if err != nil {
		return nil, err
	}

	selectCols := columns
	if len(projection) > 0 {
		selectCols = nil
		for _, name := range projection {
			c, ok := columnByName(columns, name)
			if !ok {
				return nil, &core.ColumnNotFoundError{Column: name, Table: table}
			}
			selectCols = append(selectCols, c)
		}
	}

	names := make([]string, len(selectCols))
	for i, c := range selectCols {
		names[i] = quoteIdent(c.Name)
	}

	where, args, err := whereClause(columns, table, conditions)
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s%s", strings.Join(names, ", "), quoteIdent(table), where)
	rows, err := conn.Query(stmt, args...)
	if err != nil {
		return nil, &core.IOError{Err: err}
	}
	return scanRows(rows, selectCols)
}

func valueFromSQL(raw interface{}, dt core.DataType) (core.Value, error) {
	switch dt {
	case core.DataTypeInt, core.DataTypeSerial:
		switch n := raw.(type) {
		case int64:
			if dt == core.DataTypeSerial {
				return core.SerialValue(uint32(n)), nil
			}
			return core.IntValue(n), nil
		}
	case core.DataTypeFloat:
		switch n := raw.(type) {
		case float64:
			return core.FloatValue(n), nil
		case int64:
			return core.FloatValue(float64(n)), nil
		}
	case core.DataTypeChar:
		if s, ok := asString(raw); ok {
			runes := []rune(s)
			if len(runes) == 1 {
				return core.CharValue(runes[0]), nil
			}
		}
	case core.DataTypeString:
		if s, ok := asString(raw); ok {
			return core.StringValue(s), nil
		}
	case core.DataTypeEmail:
		if s, ok := asString(raw); ok {
			return core.EmailValue(s), nil
		}
	}
	return core.Value{}, &core.CorruptRowError{Table: "", Offset: -1, Reason: fmt.Sprintf("unexpected sqlite value %v for column type %s", raw, dt)}
}

func asString(raw interface{}) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	}
	return "", false
}

// scanRows decodes every row of an already-executed query back into typed
// values using columns' declared types, closing rows before returning.
func scanRows(rows *sql.Rows, columns []schema.Column) ([]core.ColumnSet, error) {
	defer rows.Close()

	var out []core.ColumnSet
	for rows.Next() {
		dest := make([]interface{}, len(columns))
		scanned := make([]interface{}, len(columns))
		for i := range dest {
			dest[i] = &scanned[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, &core.IOError{Err: err}
		}
		row := make(core.ColumnSet, len(columns))
		for i, c := range columns {
			v, err := valueFromSQL(scanned[i], c.Type)
			if err != nil {
				return nil, err
			}
			row[c.Name] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.IOError{Err: err}
	}
	return out, nil
}

// Update issues a parameterized UPDATE ... RETURNING and returns the
// updated rows post-mutation.
func (b *sqlBackend) Update(dbName, table string, columns []schema.Column, conditions, set core.ColumnSet) ([]core.ColumnSet, error) {
	conn, err := b.conn(dbName)
	if err != nil {
		return nil, err
	}

	var assigns []string
	var args []interface{}
	for name, v := range set {
		col, ok := columnByName(columns, name)
		if !ok {
			return nil, &core.ColumnNotFoundError{Column: name, Table: table}
		}
		if col.Type == core.DataTypeSerial {
			return nil, &core.ExtraColumnError{Column: name, Table: table}
		}
		if v.Kind != col.Type {
			coerced, err := v.Coerce(col.Type, name)
			if err != nil {
				return nil, err
			}
			v = coerced
		}
		arg, err := sqlArg(v)
		if err != nil {
			return nil, err
		}
		assigns = append(assigns, quoteIdent(name)+" = ?")
		args = append(args, arg)
	}

	where, whereArgs, err := whereClause(columns, table, conditions)
	if err != nil {
		return nil, err
	}
	args = append(args, whereArgs...)

	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = quoteIdent(c.Name)
	}

	stmt := fmt.Sprintf("UPDATE %s SET %s%s RETURNING %s", quoteIdent(table), strings.Join(assigns, ", "), where, strings.Join(names, ", "))
	rows, err := conn.Query(stmt, args...)
	if err != nil {
		return nil, &core.IOError{Err: err}
	}
	return scanRows(rows, columns)
}

// Delete issues a parameterized DELETE ... RETURNING and returns the
// deleted rows.
func (b *sqlBackend) Delete(dbName, table string, columns []schema.Column, conditions core.ColumnSet) ([]core.ColumnSet, error) {
	conn, err := b.conn(dbName)
	if err != nil {
		return nil, err
	}

	where, args, err := whereClause(columns, table, conditions)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = quoteIdent(c.Name)
	}

	stmt := fmt.Sprintf("DELETE FROM %s%s RETURNING %s", quoteIdent(table), where, strings.Join(names, ", "))
	rows, err := conn.Query(stmt, args...)
	if err != nil {
		return nil, &core.IOError{Err: err}
	}
	return scanRows(rows, columns)
}
