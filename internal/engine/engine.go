// Package engine dispatches a core.Query to the right backend: the native
// table store for "poorly"-kind databases, or the embedded sqlite backend
// for "sqlite"-kind databases. Every call is serialized behind one mutex,
// matching the single-writer-per-process model the rest of this design
// assumes.
package engine

import (
	"sync"

	"github.com/tomasleon/poorly/internal/core"
	"github.com/tomasleon/poorly/internal/database"
	"github.com/tomasleon/poorly/internal/schema"
)

// Engine owns the catalog of open databases and the sqlite backend used by
// "sqlite"-kind databases.
type Engine struct {
	mu sync.Mutex

	catalog *database.Catalog
	sqlite  *sqlBackend
	log     *core.Logger
}

// New opens (or creates) the data directory at root and returns an Engine
// ready to serve queries.
func New(root string, log *core.Logger) (*Engine, error) {
	if log == nil {
		log = core.Discard
	}
	cat, err := database.NewCatalog(root, log)
	if err != nil {
		return nil, err
	}
	return &Engine{catalog: cat, sqlite: newSQLBackend(root, log), log: log}, nil
}

// Close releases every open database and sqlite connection.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sqlite.close()
	return e.catalog.Close()
}

func toSchemaColumns(defs []core.ColumnDef) []schema.Column {
	cols := make([]schema.Column, len(defs))
	for i, d := range defs {
		cols[i] = schema.Column{Name: d.Name, Type: d.Type}
	}
	return cols
}

// Execute runs q against the appropriate backend and returns its result
// rows, if any.
func (e *Engine) Execute(q core.Query) ([]core.ColumnSet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch q.Op {
	case core.OpCreateDb:
		kind, err := schema.ParseKind(q.Kind)
		if err != nil {
			return nil, err
		}
		return nil, e.catalog.CreateDb(q.Name, kind)

	case core.OpDropDb:
		return nil, e.catalog.DropDb(q.Name)

	case core.OpCreate:
		return nil, e.createTable(q)

	case core.OpDrop:
		return nil, e.dropTable(q)

	case core.OpAlter:
		return nil, e.alterTable(q)

	case core.OpShowTables:
		db, err := e.catalog.Get(q.DB)
		if err != nil {
			return nil, err
		}
		names := db.ShowTables()
		rows := make([]core.ColumnSet, len(names))
		for i, n := range names {
			rows[i] = core.ColumnSet{"name": core.StringValue(n)}
		}
		return rows, nil

	case core.OpInsert:
		return nil, e.insert(q)

	case core.OpSelect:
		return e.selectRows(q)

	case core.OpUpdate:
		return e.update(q)

	case core.OpDelete:
		return e.delete(q)

	case core.OpJoin:
		return e.join(q)

	default:
		return nil, &core.CorruptDatabaseError{Database: q.DB, Reason: "unknown query operation"}
	}
}

func (e *Engine) createTable(q core.Query) error {
	db, err := e.catalog.Get(q.DB)
	if err != nil {
		return err
	}
	columns := toSchemaColumns(q.NewColumns)

	if db.Kind() == schema.KindSqlite {
		if err := e.sqlite.CreateTable(q.DB, q.Table, columns); err != nil {
			return err
		}
		if err := db.CreateTable(q.Table, columns); err != nil {
			e.sqlite.DropTable(q.DB, q.Table)
			return err
		}
		return nil
	}
	return db.CreateTable(q.Table, columns)
}

func (e *Engine) dropTable(q core.Query) error {
	db, err := e.catalog.Get(q.DB)
	if err != nil {
		return err
	}
	kind := db.Kind()
	if err := db.DropTable(q.Table); err != nil {
		return err
	}
	if kind == schema.KindSqlite {
		return e.sqlite.DropTable(q.DB, q.Table)
	}
	return nil
}

func (e *Engine) alterTable(q core.Query) error {
	db, err := e.catalog.Get(q.DB)
	if err != nil {
		return err
	}
	if db.Kind() == schema.KindSqlite {
		if err := e.sqlite.RenameColumns(q.DB, q.Table, q.Rename); err != nil {
			return err
		}
	}
	return db.AlterTable(q.Table, q.Rename)
}

func (e *Engine) insert(q core.Query) error {
	db, err := e.catalog.Get(q.DB)
	if err != nil {
		return err
	}
	if db.Kind() == schema.KindSqlite {
		cols, err := db.TableColumns(q.Into)
		if err != nil {
			return err
		}
		return e.sqlite.Insert(q.DB, q.Into, cols, q.Values)
	}
	tbl, err := db.Table(q.Into)
	if err != nil {
		return err
	}
	return tbl.Insert(q.Values)
}

func (e *Engine) selectRows(q core.Query) ([]core.ColumnSet, error) {
	db, err := e.catalog.Get(q.DB)
	if err != nil {
		return nil, err
	}
	if db.Kind() == schema.KindSqlite {
		cols, err := db.TableColumns(q.Table)
		if err != nil {
			return nil, err
		}
		return e.sqlite.Select(q.DB, q.Table, cols, q.Conditions, q.Columns)
	}

	tbl, err := db.Table(q.Table)
	if err != nil {
		return nil, err
	}
	rows, err := tbl.Select(q.Conditions)
	if err != nil {
		return nil, err
	}
	if len(q.Columns) == 0 {
		return rows, nil
	}
	for _, c := range q.Columns {
		if _, found := columnByName(tbl.Columns, c); !found {
			return nil, &core.ColumnNotFoundError{Column: c, Table: q.Table}
		}
	}
	projected := make([]core.ColumnSet, len(rows))
	for i, r := range rows {
		out := make(core.ColumnSet, len(q.Columns))
		for _, c := range q.Columns {
			if v, ok := r[c]; ok {
				out[c] = v
			}
		}
		projected[i] = out
	}
	return projected, nil
}

func (e *Engine) update(q core.Query) ([]core.ColumnSet, error) {
	db, err := e.catalog.Get(q.DB)
	if err != nil {
		return nil, err
	}
	if db.Kind() == schema.KindSqlite {
		cols, err := db.TableColumns(q.Table)
		if err != nil {
			return nil, err
		}
		return e.sqlite.Update(q.DB, q.Table, cols, q.Conditions, q.Set)
	}
	tbl, err := db.Table(q.Table)
	if err != nil {
		return nil, err
	}
	return tbl.Update(q.Conditions, q.Set)
}

func (e *Engine) delete(q core.Query) ([]core.ColumnSet, error) {
	db, err := e.catalog.Get(q.DB)
	if err != nil {
		return nil, err
	}
	if db.Kind() == schema.KindSqlite {
		cols, err := db.TableColumns(q.Table)
		if err != nil {
			return nil, err
		}
		return e.sqlite.Delete(q.DB, q.Table, cols, q.Conditions)
	}
	tbl, err := db.Table(q.Table)
	if err != nil {
		return nil, err
	}
	return tbl.Delete(q.Conditions)
}

func (e *Engine) join(q core.Query) ([]core.ColumnSet, error) {
	db, err := e.catalog.Get(q.DB)
	if err != nil {
		return nil, err
	}
	if db.Kind() != schema.KindPoorly {
		return nil, &core.UnsupportedColumnTypeError{Type: core.DataTypeInt, Kind: "sqlite (join is native-only)"}
	}

	t1, err := db.Table(q.Table1)
	if err != nil {
		return nil, err
	}
	t2, err := db.Table(q.Table2)
	if err != nil {
		return nil, err
	}

	rows1, err := t1.Select(nil)
	if err != nil {
		return nil, err
	}
	rows2, err := t2.Select(nil)
	if err != nil {
		return nil, err
	}
	return hashJoin(q.Table1, rows1, q.Table2, rows2, q.JoinOn, q.Conditions, q.Columns)
}
