// Package schema manages the per-database metadata document: the ordered
// list of tables, each table's ordered column list and types, and the
// backend kind the database was created with.
package schema

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/tomasleon/poorly/internal/core"
)

// FileName is the sidecar document's name inside a database directory.
const FileName = "schema.yaml"

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Kind discriminates a database's storage backend.
type Kind int

const (
	KindPoorly Kind = iota
	KindSqlite
)

func (k Kind) String() string {
	if k == KindSqlite {
		return "sqlite"
	}
	return "poorly"
}

// ParseKind maps a schema.yaml "kind" field back to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "poorly", "":
		return KindPoorly, nil
	case "sqlite":
		return KindSqlite, nil
	default:
		return 0, &core.InvalidNameError{Name: s}
	}
}

// Column is a named, typed slot within a table, in declaration order.
type Column struct {
	Name string
	Type core.DataType
}

// Table is one schema entry: a name and its ordered column list.
type Table struct {
	Name    string
	Columns []Column
}

// Schema is a database's full metadata document.
type Schema struct {
	Name   string
	Kind   Kind
	Tables []Table
}

// New creates an empty schema for a freshly created database.
func New(name string, kind Kind) *Schema {
	return &Schema{Name: name, Kind: kind}
}

// ValidateName reports whether name may be used as a table or column
// identifier.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return &core.InvalidNameError{Name: name}
	}
	return nil
}

func (s *Schema) indexOf(table string) int {
	for i := range s.Tables {
		if s.Tables[i].Name == table {
			return i
		}
	}
	return -1
}

// Table returns the schema entry for name, if present.
func (s *Schema) Table(name string) (Table, bool) {
	i := s.indexOf(name)
	if i < 0 {
		return Table{}, false
	}
	return s.Tables[i], true
}

// TableNames returns table names in schema declaration order.
func (s *Schema) TableNames() []string {
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Name
	}
	return names
}

// CreateTable adds a new table entry. It rejects duplicate names, invalid
// names, empty column lists, duplicate column names, and any column whose
// type does not belong to the schema's backend kind.
func (s *Schema) CreateTable(name string, columns []Column) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if len(columns) == 0 {
		return &core.NoColumnsError{}
	}
	if s.indexOf(name) >= 0 {
		return &core.TableAlreadyExistsError{Table: name}
	}

	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if err := ValidateName(c.Name); err != nil {
			return err
		}
		if seen[c.Name] {
			return &core.ColumnAlreadyExistsError{Column: c.Name, Table: name}
		}
		seen[c.Name] = true

		if s.Kind == KindPoorly && !c.Type.IsNative() {
			return &core.UnsupportedColumnTypeError{Type: c.Type, Kind: "poorly"}
		}
		if s.Kind == KindSqlite && !c.Type.IsSQL() {
			return &core.UnsupportedColumnTypeError{Type: c.Type, Kind: "sqlite"}
		}
	}

	cols := make([]Column, len(columns))
	copy(cols, columns)
	s.Tables = append(s.Tables, Table{Name: name, Columns: cols})
	return nil
}

// DropTable removes a table entry.
func (s *Schema) DropTable(name string) error {
	i := s.indexOf(name)
	if i < 0 {
		return &core.TableNotFoundError{Table: name}
	}
	s.Tables = append(s.Tables[:i], s.Tables[i+1:]...)
	return nil
}

// AlterTable renames columns of an existing table according to rename
// (old name -> new name). Unknown old names, new names colliding with an
// existing column not itself being renamed away, and invalid new names are
// all rejected; on error the table's column list is left unchanged.
func (s *Schema) AlterTable(name string, rename map[string]string) error {
	i := s.indexOf(name)
	if i < 0 {
		return &core.TableNotFoundError{Table: name}
	}
	table := s.Tables[i]

	remaining := make(map[string]string, len(rename))
	for k, v := range rename {
		remaining[k] = v
	}

	newColumns := make([]Column, len(table.Columns))
	for j, c := range table.Columns {
		newName := c.Name
		if to, ok := remaining[c.Name]; ok {
			if err := ValidateName(to); err != nil {
				return err
			}
			newName = to
			delete(remaining, c.Name)
		}
		for k := 0; k < j; k++ {
			if newColumns[k].Name == newName {
				return &core.ColumnAlreadyExistsError{Column: newName, Table: name}
			}
		}
		newColumns[j] = Column{Name: newName, Type: c.Type}
	}

	if len(remaining) > 0 {
		for old := range remaining {
			return &core.ColumnNotFoundError{Column: old, Table: name}
		}
	}

	s.Tables[i].Columns = newColumns
	return nil
}

type yamlColumn struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type yamlTable struct {
	Name    string       `yaml:"name"`
	Columns []yamlColumn `yaml:"columns"`
}

type yamlSchema struct {
	Name   string      `yaml:"name"`
	Kind   string      `yaml:"kind"`
	Tables []yamlTable `yaml:"tables"`
}

// Load reads the schema.yaml sidecar from dir.
func Load(dir string) (*Schema, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, &core.IOError{Err: err}
	}

	var doc yamlSchema
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &core.CorruptDatabaseError{Database: filepath.Base(dir), Reason: err.Error()}
	}

	kind, err := ParseKind(doc.Kind)
	if err != nil {
		return nil, &core.CorruptDatabaseError{Database: doc.Name, Reason: "invalid kind " + doc.Kind}
	}

	s := &Schema{Name: doc.Name, Kind: kind}
	for _, t := range doc.Tables {
		cols := make([]Column, len(t.Columns))
		for i, c := range t.Columns {
			dt, err := core.ParseDataType(c.Type)
			if err != nil {
				return nil, &core.CorruptDatabaseError{Database: doc.Name, Reason: err.Error()}
			}
			cols[i] = Column{Name: c.Name, Type: dt}
		}
		s.Tables = append(s.Tables, Table{Name: t.Name, Columns: cols})
	}
	return s, nil
}

// Dump writes the schema to dir's schema.yaml sidecar. The write goes to a
// uniquely named temporary file first and is renamed into place, so a
// process crash mid-write never leaves a truncated schema.yaml behind.
func (s *Schema) Dump(dir string) error {
	doc := yamlSchema{Name: s.Name, Kind: s.Kind.String()}
	for _, t := range s.Tables {
		yt := yamlTable{Name: t.Name}
		for _, c := range t.Columns {
			yt.Columns = append(yt.Columns, yamlColumn{Name: c.Name, Type: c.Type.String()})
		}
		doc.Tables = append(doc.Tables, yt)
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}

	tmp := filepath.Join(dir, FileName+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &core.IOError{Err: err}
	}
	if err := os.Rename(tmp, filepath.Join(dir, FileName)); err != nil {
		os.Remove(tmp)
		return &core.IOError{Err: err}
	}
	return nil
}
