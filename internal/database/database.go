// Package database manages the collection of tables that make up one
// open database directory: its schema sidecar and its live table handles.
package database

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/tomasleon/poorly/internal/core"
	"github.com/tomasleon/poorly/internal/schema"
	"github.com/tomasleon/poorly/internal/table"
)

// DefaultName is the database every fresh data directory starts with, and
// the one name CreateDb/DropDb refuse to touch.
const DefaultName = "poorly"

// Database is one open database: its schema and its currently open native
// tables. Tables belonging to a "sqlite" kind schema are not opened here;
// the engine layer delegates those to the SQL backend directly.
type Database struct {
	Name string
	Dir  string

	mu     sync.Mutex
	schema *schema.Schema
	tables map[string]*table.Table
	log    *core.Logger
}

// Open loads (or, if dir doesn't exist yet, creates with kind) the
// database rooted at dir.
func Open(dir, name string, kind schema.Kind, log *core.Logger) (*Database, error) {
	if log == nil {
		log = core.Discard
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &core.IOError{Err: err}
		}
		s := schema.New(name, kind)
		if err := s.Dump(dir); err != nil {
			return nil, err
		}
		log.Info("created database %s (%s) at %s", name, kind, dir)
	}

	s, err := schema.Load(dir)
	if err != nil {
		return nil, err
	}

	db := &Database{Name: s.Name, Dir: dir, schema: s, tables: make(map[string]*table.Table), log: log}
	if s.Kind == schema.KindPoorly {
		for _, t := range s.Tables {
			tbl, err := table.Open(dir, t.Name, toTableColumns(t.Columns), log)
			if err != nil {
				db.closeAll()
				return nil, err
			}
			db.tables[t.Name] = tbl
		}
	}
	return db, nil
}

func toTableColumns(cols []schema.Column) []schema.Column {
	out := make([]schema.Column, len(cols))
	copy(out, cols)
	return out
}

func (db *Database) closeAll() {
	for _, t := range db.tables {
		t.Close()
	}
}

// Close releases every open table handle without deleting anything.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.closeAll()
	return nil
}

// Kind reports the schema kind this database was created with.
func (db *Database) Kind() schema.Kind {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.schema.Kind
}

// ShowTables lists every table name in declaration order.
func (db *Database) ShowTables() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.schema.TableNames()
}

// Table returns the open native table handle for name.
func (db *Database) Table(name string) (*table.Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	t, ok := db.tables[name]
	if !ok {
		return nil, &core.TableNotFoundError{Table: name}
	}
	return t, nil
}

// TableColumns returns the declared column list for name, for callers
// (like the SQL backend) that need the schema without a native handle.
func (db *Database) TableColumns(name string) ([]schema.Column, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	t, ok := db.schema.Table(name)
	if !ok {
		return nil, &core.TableNotFoundError{Table: name}
	}
	return t.Columns, nil
}

// CreateTable adds a table to the schema and, for native databases, opens
// its backing file.
func (db *Database) CreateTable(name string, columns []schema.Column) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.schema.CreateTable(name, columns); err != nil {
		return err
	}
	if err := db.schema.Dump(db.Dir); err != nil {
		return err
	}

	if db.schema.Kind == schema.KindPoorly {
		t, err := table.Open(db.Dir, name, columns, db.log)
		if err != nil {
			db.schema.DropTable(name)
			return err
		}
		db.tables[name] = t
	}
	db.log.Info("created table %s.%s", db.Name, name)
	return nil
}

// DropTable removes a table from the schema and, for native databases,
// deletes its backing file.
func (db *Database) DropTable(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.schema.DropTable(name); err != nil {
		return err
	}
	if t, ok := db.tables[name]; ok {
		if err := t.Drop(db.Dir); err != nil {
			return err
		}
		delete(db.tables, name)
	}
	if err := db.schema.Dump(db.Dir); err != nil {
		return err
	}
	db.log.Info("dropped table %s.%s", db.Name, name)
	return nil
}

// AlterTable renames columns on a table, in both the schema and, for
// native tables, the live column list the table codec reads.
func (db *Database) AlterTable(name string, rename map[string]string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.schema.AlterTable(name, rename); err != nil {
		return err
	}
	if err := db.schema.Dump(db.Dir); err != nil {
		return err
	}
	if t, ok := db.tables[name]; ok {
		newSchema, _ := db.schema.Table(name)
		t.Columns = newSchema.Columns
	}
	db.log.Info("altered table %s.%s", db.Name, name)
	return nil
}

// Catalog manages the set of open databases inside a data directory,
// serializing access with a single mutex; see the engine package for the
// dispatcher that uses it.
type Catalog struct {
	root string
	log  *core.Logger

	mu  sync.Mutex
	dbs map[string]*Database
}

// NewCatalog opens root's default database and returns a catalog ready to
// serve further CreateDb/DropDb/Get calls.
func NewCatalog(root string, log *core.Logger) (*Catalog, error) {
	if log == nil {
		log = core.Discard
	}
	c := &Catalog{root: root, log: log, dbs: make(map[string]*Database)}
	if _, err := c.open(DefaultName); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) dirFor(name string) string {
	return filepath.Join(c.root, name)
}

func (c *Catalog) open(name string) (*Database, error) {
	if db, ok := c.dbs[name]; ok {
		return db, nil
	}
	db, err := Open(c.dirFor(name), name, schema.KindPoorly, c.log)
	if err != nil {
		return nil, err
	}
	c.dbs[name] = db
	return db, nil
}

// Get returns the open database named name, opening it from disk on first
// use if it already exists there.
func (c *Catalog) Get(name string) (*Database, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if db, ok := c.dbs[name]; ok {
		return db, nil
	}
	if _, err := os.Stat(c.dirFor(name)); os.IsNotExist(err) {
		return nil, &core.DatabaseNotFoundError{Name: name}
	}
	return c.open(name)
}

// CreateDb creates a brand new database directory of the given kind.
func (c *Catalog) CreateDb(name string, kind schema.Kind) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.dbs[name]; ok {
		return &core.DatabaseAlreadyExistsError{Name: name}
	}
	if _, err := os.Stat(c.dirFor(name)); err == nil {
		return &core.DatabaseAlreadyExistsError{Name: name}
	}
	if err := schema.ValidateName(name); err != nil {
		return err
	}

	db, err := Open(c.dirFor(name), name, kind, c.log)
	if err != nil {
		return err
	}
	c.dbs[name] = db
	c.log.Info("created database %s", name)
	return nil
}

// DropDb closes and deletes a database directory. The default database
// can never be dropped.
func (c *Catalog) DropDb(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if name == DefaultName {
		return &core.CannotDropDefaultDbError{}
	}

	if db, ok := c.dbs[name]; ok {
		db.Close()
		delete(c.dbs, name)
	} else if _, err := os.Stat(c.dirFor(name)); os.IsNotExist(err) {
		return &core.DatabaseNotFoundError{Name: name}
	}

	if err := os.RemoveAll(c.dirFor(name)); err != nil {
		return &core.IOError{Err: err}
	}
	c.log.Info("dropped database %s", name)
	return nil
}

// Close releases every open database's table handles.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, db := range c.dbs {
		db.Close()
	}
	return nil
}
