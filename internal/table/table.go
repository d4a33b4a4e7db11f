// Package table implements the native row store: one flat binary file per
// table, rows appended in place, updates and deletes handled by flipping a
// tombstone byte rather than rewriting the file.
package table

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/tomasleon/poorly/internal/core"
	"github.com/tomasleon/poorly/internal/schema"
)

// Table is one open native-backend table file.
type Table struct {
	Name    string
	Columns []schema.Column

	mu         sync.Mutex
	file       *os.File
	nextSerial uint32
	log        *core.Logger
}

func fileName(dir, name string) string {
	return filepath.Join(dir, name+".ndb")
}

// Open opens (creating if necessary) the table file for name inside dir,
// and scans it once to recover the serial counter's high-water mark.
func Open(dir, name string, columns []schema.Column, log *core.Logger) (*Table, error) {
	if log == nil {
		log = core.Discard
	}
	f, err := os.OpenFile(fileName(dir, name), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, &core.IOError{Err: err}
	}

	t := &Table{Name: name, Columns: columns, file: f, log: log}
	if err := t.recoverSerial(); err != nil {
		f.Close()
		return nil, err
	}
	log.Debug("opened table %s, next serial %d", name, t.nextSerial)
	return t, nil
}

func columnByName(columns []schema.Column, name string) (schema.Column, bool) {
	for _, c := range columns {
		if c.Name == name {
			return c, true
		}
	}
	return schema.Column{}, false
}

func (t *Table) recoverSerial() error {
	serialCol := ""
	for _, c := range t.Columns {
		if c.Type == core.DataTypeSerial {
			serialCol = c.Name
			break
		}
	}
	if serialCol == "" {
		return nil
	}
	return t.scan(func(_ int64, _ byte, values core.ColumnSet) (bool, error) {
		if s := values[serialCol].Serial(); s+1 > t.nextSerial {
			t.nextSerial = s + 1
		}
		return false, nil
	})
}

// scan reads every row (live and tombstoned) from the start of the file,
// invoking fn with the row's starting byte offset. fn returns true to stop
// scanning early.
func (t *Table) scan(fn func(offset int64, tomb byte, values core.ColumnSet) (bool, error)) error {
	if _, err := t.file.Seek(0, io.SeekStart); err != nil {
		return &core.IOError{Err: err}
	}
	r := bufio.NewReader(t.file)

	var offset int64
	for {
		tomb, values, n, err := decodeRow(r, t.Columns)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &core.CorruptRowError{Table: t.Name, Offset: offset, Reason: err.Error()}
		}
		stop, err := fn(offset, tomb, values)
		if err != nil {
			return err
		}
		offset += n
		if stop {
			return nil
		}
	}
}

func (t *Table) matchesAll(values, conditions core.ColumnSet) (bool, error) {
	for col, cond := range conditions {
		v, ok := values[col]
		if !ok {
			return false, &core.ColumnNotFoundError{Column: col, Table: t.Name}
		}
		ok, err := core.MatchCondition(col, v, cond)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Insert appends a new row. Serial columns are assigned by the table, not
// supplied by the caller; supplying one is an error.
func (t *Table) Insert(values core.ColumnSet) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	full := values.Clone()
	for _, c := range t.Columns {
		if c.Type != core.DataTypeSerial {
			continue
		}
		if _, present := full[c.Name]; present {
			return &core.ExtraColumnError{Column: c.Name, Table: t.Name}
		}
		full[c.Name] = core.SerialValue(t.nextSerial)
		t.nextSerial++
	}

	row, err := encodeRow(t.Name, t.Columns, full)
	if err != nil {
		return err
	}
	if _, err := t.file.Seek(0, io.SeekEnd); err != nil {
		return &core.IOError{Err: err}
	}
	if _, err := t.file.Write(row); err != nil {
		return &core.IOError{Err: err}
	}
	return nil
}

// Select returns every live row matching conditions.
func (t *Table) Select(conditions core.ColumnSet) ([]core.ColumnSet, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var results []core.ColumnSet
	err := t.scan(func(_ int64, tomb byte, values core.ColumnSet) (bool, error) {
		if tomb == tombstoneDead {
			return false, nil
		}
		ok, err := t.matchesAll(values, conditions)
		if err != nil {
			return false, err
		}
		if ok {
			results = append(results, values)
		}
		return false, nil
	})
	return results, err
}

type pendingUpdate struct {
	offset int64
	merged core.ColumnSet
}

// Update tombstones every live row matching conditions and appends a new
// row with set's values merged in, returning the rows post-mutation. It
// always appends, even when the new encoding would fit in the old row's
// space; see the schema and table design notes for why.
func (t *Table) Update(conditions, set core.ColumnSet) ([]core.ColumnSet, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var pending []pendingUpdate
	err := t.scan(func(offset int64, tomb byte, values core.ColumnSet) (bool, error) {
		if tomb == tombstoneDead {
			return false, nil
		}
		ok, err := t.matchesAll(values, conditions)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}

		merged := values.Clone()
		for name, v := range set {
			col, found := columnByName(t.Columns, name)
			if !found {
				return false, &core.ColumnNotFoundError{Column: name, Table: t.Name}
			}
			if col.Type == core.DataTypeSerial {
				return false, &core.ExtraColumnError{Column: name, Table: t.Name}
			}
			if v.Kind != col.Type {
				coerced, err := v.Coerce(col.Type, name)
				if err != nil {
					return false, err
				}
				v = coerced
			}
			merged[name] = v
		}
		pending = append(pending, pendingUpdate{offset: offset, merged: merged})
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	updated := make([]core.ColumnSet, 0, len(pending))
	for _, p := range pending {
		if _, err := t.file.WriteAt([]byte{tombstoneDead}, p.offset); err != nil {
			return nil, &core.IOError{Err: err}
		}
		row, err := encodeRow(t.Name, t.Columns, p.merged)
		if err != nil {
			return nil, err
		}
		if _, err := t.file.Seek(0, io.SeekEnd); err != nil {
			return nil, &core.IOError{Err: err}
		}
		if _, err := t.file.Write(row); err != nil {
			return nil, &core.IOError{Err: err}
		}
		updated = append(updated, p.merged)
	}
	return updated, nil
}

// Delete tombstones every live row matching conditions in place and
// returns the rows that were deleted.
func (t *Table) Delete(conditions core.ColumnSet) ([]core.ColumnSet, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	type deletion struct {
		offset int64
		values core.ColumnSet
	}
	var pending []deletion
	err := t.scan(func(offset int64, tomb byte, values core.ColumnSet) (bool, error) {
		if tomb == tombstoneDead {
			return false, nil
		}
		ok, err := t.matchesAll(values, conditions)
		if err != nil {
			return false, err
		}
		if ok {
			pending = append(pending, deletion{offset: offset, values: values})
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	deleted := make([]core.ColumnSet, 0, len(pending))
	for _, d := range pending {
		if _, err := t.file.WriteAt([]byte{tombstoneDead}, d.offset); err != nil {
			return nil, &core.IOError{Err: err}
		}
		deleted = append(deleted, d.values)
	}
	return deleted, nil
}

// Close releases the underlying file handle without deleting any data.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.Close()
}

// Drop closes and removes the table's file from disk.
func (t *Table) Drop(dir string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.file.Close()
	if err := os.Remove(fileName(dir, t.Name)); err != nil && !os.IsNotExist(err) {
		return &core.IOError{Err: err}
	}
	return nil
}
